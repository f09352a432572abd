package notionsync

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/pixtracker/internal/domain"
	"github.com/dvloznov/pixtracker/internal/logger"
	"github.com/jomei/notionapi"
	"github.com/rs/zerolog"
)

// queryPageSize is the page size of database queries.
const queryPageSize = 100

// Result counts what one sync did.
type Result struct {
	Created  int
	Updated  int
	Archived int
	Skipped  int
	Failed   int
}

func (r Result) String() string {
	return fmt.Sprintf("created %d, updated %d, archived %d, skipped %d, failed %d",
		r.Created, r.Updated, r.Archived, r.Skipped, r.Failed)
}

// Syncer mirrors the transaction log into a Notion database. The Transaction
// Key property links pages to log entries.
type Syncer struct {
	client NotionService
	dbID   string
	loc    *time.Location
	dryRun bool
	log    zerolog.Logger
}

// NewSyncer returns a Syncer writing to databaseID. In dry-run mode it only
// logs what it would do.
func NewSyncer(client NotionService, databaseID string, loc *time.Location, dryRun bool, log zerolog.Logger) *Syncer {
	return &Syncer{
		client: client,
		dbID:   databaseID,
		loc:    loc,
		dryRun: dryRun,
		log:    logger.WithComponent(log, "notionsync"),
	}
}

// Sync reconciles the database with txs:
//  1. pages without a key, duplicated, or whose entry left the log are archived
//  2. pages whose category drifted are updated
//  3. entries without a page get one
//
// Per-page failures are logged and counted; only a failed listing aborts.
func (s *Syncer) Sync(ctx context.Context, txs []domain.Transaction) (Result, error) {
	var res Result
	log := s.log.With().Bool("dry_run", s.dryRun).Logger()

	pages, err := queryAllNotionPages(ctx, s.client, s.dbID)
	if err != nil {
		return res, fmt.Errorf("Sync: %w", err)
	}
	log.Info().Int("notion_page_count", len(pages)).Int("transaction_count", len(txs)).Msg("Starting transaction sync to Notion")

	wanted := make(map[string]domain.Transaction, len(txs))
	for _, tx := range txs {
		wanted[PageKey(tx.Key())] = tx
	}

	existing := make(map[string]notionapi.Page, len(pages))
	for _, page := range pages {
		key := extractKey(page)
		tx, ok := wanted[key]
		_, dup := existing[key]

		if key == "" || !ok || dup {
			if s.archive(ctx, log, page, key) {
				res.Archived++
			} else {
				res.Failed++
			}
			continue
		}
		if extractCategory(page) == tx.Category {
			existing[key] = page
			res.Skipped++
			continue
		}
		if tx.Category == "" {
			// A select cannot be cleared through the SDK; replace the page.
			if s.archive(ctx, log, page, key) {
				res.Archived++
			} else {
				res.Failed++
			}
			continue
		}
		existing[key] = page
		if s.updateCategory(ctx, log, page, tx) {
			res.Updated++
		} else {
			res.Failed++
		}
	}

	for _, tx := range txs {
		key := PageKey(tx.Key())
		if _, ok := existing[key]; ok {
			continue
		}
		if s.create(ctx, log, tx, key) {
			res.Created++
			existing[key] = notionapi.Page{}
		} else {
			res.Failed++
		}
	}

	log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("archived", res.Archived).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("Transaction sync completed")
	return res, nil
}

func (s *Syncer) archive(ctx context.Context, log zerolog.Logger, page notionapi.Page, key string) bool {
	if s.dryRun {
		log.Info().Str("transaction_key", key).Str("page_id", string(page.ID)).Msg("[DRY RUN] Would archive stale Notion page")
		return true
	}
	if err := s.client.ArchivePage(ctx, string(page.ID)); err != nil {
		log.Warn().Err(err).Str("transaction_key", key).Str("page_id", string(page.ID)).Msg("Failed to archive stale Notion page")
		return false
	}
	log.Debug().Str("transaction_key", key).Str("page_id", string(page.ID)).Msg("Archived stale Notion page")
	return true
}

func (s *Syncer) updateCategory(ctx context.Context, log zerolog.Logger, page notionapi.Page, tx domain.Transaction) bool {
	if s.dryRun {
		log.Info().Str("tx_id", tx.ID).Str("page_id", string(page.ID)).Msg("[DRY RUN] Would update Notion page category")
		return true
	}

	props := notionapi.Properties{PropCategory: categoryProperty(tx.Category)}
	if _, err := s.client.UpdatePage(ctx, string(page.ID), props); err != nil {
		log.Warn().Err(err).Str("tx_id", tx.ID).Str("page_id", string(page.ID)).Msg("Failed to update Notion page")
		return false
	}
	return true
}

func (s *Syncer) create(ctx context.Context, log zerolog.Logger, tx domain.Transaction, key string) bool {
	if s.dryRun {
		log.Info().Str("transaction_key", key).Msg("[DRY RUN] Would create Notion page")
		return true
	}
	page, err := s.client.CreatePage(ctx, s.dbID, TransactionToNotionProperties(tx, s.loc))
	if err != nil {
		log.Warn().Err(err).Str("transaction_key", key).Msg("Failed to create Notion page")
		return false
	}
	log.Debug().Str("transaction_key", key).Str("page_id", string(page.ID)).Msg("Created Notion page")
	return true
}

// queryAllNotionPages follows the query cursor until the database is exhausted.
func queryAllNotionPages(ctx context.Context, client NotionService, databaseID string) ([]notionapi.Page, error) {
	var all []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: queryPageSize}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := client.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}
		all = append(all, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}
	return all, nil
}
