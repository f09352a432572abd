package notionsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/jomei/notionapi"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// MockNotionService is a mock implementation of NotionService.
type MockNotionService struct {
	CreatePageFunc    func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	UpdatePageFunc    func(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)
	QueryDatabaseFunc func(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	ArchivePageFunc   func(ctx context.Context, pageID string) error

	created  []notionapi.Properties
	updated  []string
	archived []string
}

func (m *MockNotionService) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	m.created = append(m.created, properties)
	if m.CreatePageFunc != nil {
		return m.CreatePageFunc(ctx, databaseID, properties)
	}
	return &notionapi.Page{ID: notionapi.ObjectID("new")}, nil
}

func (m *MockNotionService) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	m.updated = append(m.updated, pageID)
	if m.UpdatePageFunc != nil {
		return m.UpdatePageFunc(ctx, pageID, properties)
	}
	return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
}

func (m *MockNotionService) QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if m.QueryDatabaseFunc != nil {
		return m.QueryDatabaseFunc(ctx, databaseID, filter)
	}
	return &notionapi.DatabaseQueryResponse{}, nil
}

func (m *MockNotionService) ArchivePage(ctx context.Context, pageID string) error {
	m.archived = append(m.archived, pageID)
	if m.ArchivePageFunc != nil {
		return m.ArchivePageFunc(ctx, pageID)
	}
	return nil
}

var at = time.Date(2025, time.September, 10, 14, 30, 0, 0, time.UTC)

func page(id, key string, category domain.Category) notionapi.Page {
	props := notionapi.Properties{}
	if key != "" {
		props[PropKey] = &notionapi.RichTextProperty{RichText: []notionapi.RichText{{PlainText: key}}}
	}
	if category != "" {
		props[PropCategory] = &notionapi.SelectProperty{Select: notionapi.Option{Name: string(category)}}
	}
	return notionapi.Page{ID: notionapi.ObjectID(id), Properties: props}
}

func tx(id string, category domain.Category) domain.Transaction {
	return domain.Transaction{ID: id, Type: domain.TxSent, Amount: 12.5, Date: at, Contact: "Padaria", Category: category}
}

func key(id string) string { return PageKey(domain.Key{ID: id, DateMs: at.UnixMilli()}) }

func TestSync(t *testing.T) {
	mock := &MockNotionService{
		QueryDatabaseFunc: func(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			if filter.StartCursor == "" {
				return &notionapi.DatabaseQueryResponse{
					Results:    []notionapi.Page{page("p-same", key("same"), ""), page("p-legacy", "", "")},
					HasMore:    true,
					NextCursor: "c1",
				}, nil
			}
			return &notionapi.DatabaseQueryResponse{
				Results: []notionapi.Page{
					page("p-gone", key("gone"), ""),
					page("p-recat", key("recat"), domain.CategoryFood),
					page("p-dup", key("same"), ""),
				},
			}, nil
		},
	}

	s := NewSyncer(mock, "db", time.UTC, false, zerolog.Nop())
	res, err := s.Sync(context.Background(), []domain.Transaction{tx("same", ""), tx("recat", domain.CategoryBills), tx("new", domain.CategoryLeisure)})
	require.NoError(t, err)

	assert.Equal(t, Result{Created: 1, Updated: 1, Archived: 3, Skipped: 1}, res)
	assert.ElementsMatch(t, []string{"p-legacy", "p-gone", "p-dup"}, mock.archived)
	assert.Equal(t, []string{"p-recat"}, mock.updated)
	require.Len(t, mock.created, 1)

	props := mock.created[0]
	assert.Equal(t, notionapi.RichTextProperty{RichText: richText(key("new"))}, props[PropKey])
	assert.Equal(t, notionapi.SelectProperty{Select: notionapi.Option{Name: "Laser"}}, props[PropCategory])
	assert.Equal(t, notionapi.NumberProperty{Number: 12.5}, props[PropAmount])
}

func TestSync_ClearedCategoryReplacesPage(t *testing.T) {
	mock := &MockNotionService{
		QueryDatabaseFunc: func(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			return &notionapi.DatabaseQueryResponse{Results: []notionapi.Page{page("p1", key("a"), domain.CategoryFood)}}, nil
		},
	}

	res, err := NewSyncer(mock, "db", nil, false, zerolog.Nop()).Sync(context.Background(), []domain.Transaction{tx("a", "")})
	require.NoError(t, err)
	assert.Equal(t, Result{Created: 1, Archived: 1}, res)
	assert.NotContains(t, mock.created[0], PropCategory)
}

func TestSync_DryRun(t *testing.T) {
	mock := &MockNotionService{
		QueryDatabaseFunc: func(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			return &notionapi.DatabaseQueryResponse{Results: []notionapi.Page{page("p1", key("gone"), "")}}, nil
		},
	}

	res, err := NewSyncer(mock, "db", time.UTC, true, zerolog.Nop()).Sync(context.Background(), []domain.Transaction{tx("a", "")})
	require.NoError(t, err)
	assert.Equal(t, Result{Created: 1, Archived: 1}, res)
	assert.Empty(t, mock.created)
	assert.Empty(t, mock.archived)
}

func TestSync_Failures(t *testing.T) {
	t.Run("query error aborts", func(t *testing.T) {
		mock := &MockNotionService{
			QueryDatabaseFunc: func(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
				return nil, errors.New("unauthorized")
			},
		}
		_, err := NewSyncer(mock, "db", time.UTC, false, zerolog.Nop()).Sync(context.Background(), nil)
		assert.ErrorContains(t, err, "unauthorized")
	})

	t.Run("page errors are counted", func(t *testing.T) {
		mock := &MockNotionService{
			CreatePageFunc: func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
				return nil, errors.New("rate limited")
			},
		}
		res, err := NewSyncer(mock, "db", time.UTC, false, zerolog.Nop()).Sync(context.Background(), []domain.Transaction{tx("a", ""), tx("b", "")})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Failed)
		assert.Equal(t, "created 0, updated 0, archived 0, skipped 0, failed 2", res.String())
	})
}

func TestPageKey(t *testing.T) {
	k := domain.Key{ID: "pix@nubank", DateMs: 1757514600000}
	got, err := ParseKey(PageKey(k))
	require.NoError(t, err)
	assert.Equal(t, k, got)

	for _, bad := range []string{"", "noat", "@123", "id@notanumber"} {
		_, err := ParseKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestNotionClient_WaitsOnLimiter(t *testing.T) {
	client := NewNotionClientWithLimit("secret_test", rate.Limit(1), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.ArchivePage(ctx, "page-1")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = client.QueryDatabase(ctx, "db", &notionapi.DatabaseQueryRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}
