package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
	"golang.org/x/time/rate"
)

// Notion allows an average of three requests per second per integration.
const (
	defaultRequestRate  = rate.Limit(3)
	defaultRequestBurst = 3
)

// NotionClient implements NotionService with the notionapi SDK. Every call
// waits on a shared limiter so a full mirror of a large log stays under the
// integration's request rate.
type NotionClient struct {
	api     *notionapi.Client
	limiter *rate.Limiter
}

// NewNotionClient returns a client authenticated with an integration token.
func NewNotionClient(token string) *NotionClient {
	return NewNotionClientWithLimit(token, defaultRequestRate, defaultRequestBurst)
}

// NewNotionClientWithLimit is NewNotionClient with a custom request rate.
func NewNotionClientWithLimit(token string, r rate.Limit, burst int) *NotionClient {
	return &NotionClient{
		api:     notionapi.NewClient(notionapi.Token(token)),
		limiter: rate.NewLimiter(r, burst),
	}
}

func (n *NotionClient) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("CreatePage: %w", err)
	}
	page, err := n.api.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent:     notionapi.Parent{Type: notionapi.ParentTypeDatabaseID, DatabaseID: notionapi.DatabaseID(databaseID)},
		Properties: properties,
	})
	if err != nil {
		return nil, fmt.Errorf("CreatePage: database %s: %w", databaseID, err)
	}
	return page, nil
}

func (n *NotionClient) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("UpdatePage: %w", err)
	}
	page, err := n.api.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{Properties: properties})
	if err != nil {
		return nil, fmt.Errorf("UpdatePage: page %s: %w", pageID, err)
	}
	return page, nil
}

// QueryDatabase fetches one cursor page of a database query.
func (n *NotionClient) QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("QueryDatabase: %w", err)
	}
	resp, err := n.api.Database.Query(ctx, notionapi.DatabaseID(databaseID), filter)
	if err != nil {
		return nil, fmt.Errorf("QueryDatabase: database %s: %w", databaseID, err)
	}
	return resp, nil
}

func (n *NotionClient) ArchivePage(ctx context.Context, pageID string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("ArchivePage: %w", err)
	}
	if _, err := n.api.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{Archived: true}); err != nil {
		return fmt.Errorf("ArchivePage: page %s: %w", pageID, err)
	}
	return nil
}

var _ NotionService = (*NotionClient)(nil)
