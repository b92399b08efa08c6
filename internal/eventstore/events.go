package eventstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/ignite/analytics-import/internal/domain"
)

// insertChunkSize bounds one multi-row INSERT statement. Snowflake handles
// wide VALUES lists well but the statement text still has to stay sane.
const insertChunkSize = 500

const eventColumns = `SITE_ID, IMPORT_ID, SESSION_ID, HOSTNAME, BROWSER, OS, DEVICE, SCREEN,
	LANGUAGE, COUNTRY, SUBDIVISION, CITY, URL_PATH, URL_QUERY,
	REFERRER_PATH, REFERRER_QUERY, REFERRER_DOMAIN, PAGE_TITLE,
	EVENT_TYPE, EVENT_NAME, DISTINCT_ID, CREATED_AT`

const eventColumnCount = 22

// InsertBatch bulk-inserts events scoped to (siteID, importID) using
// chunked multi-row VALUES statements.
func (c *Client) InsertBatch(ctx context.Context, siteID, importID string, events []domain.Event) error {
	for start := 0; start < len(events); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(events) {
			end = len(events)
		}
		if err := c.insertChunk(ctx, siteID, importID, events[start:end]); err != nil {
			return fmt.Errorf("insert events chunk at row %d: %w", start, err)
		}
	}
	return nil
}

func (c *Client) insertChunk(ctx context.Context, siteID, importID string, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", eventColumnCount), ", ") + ")"
	placeholders := make([]string, len(events))
	args := make([]any, 0, len(events)*eventColumnCount)

	for i, ev := range events {
		placeholders[i] = row
		args = append(args,
			siteID, importID, ev.SessionID, ev.Hostname, ev.Browser, ev.OS, ev.Device, ev.Screen,
			ev.Language, ev.Country, ev.Subdivision, ev.City, ev.URLPath, ev.URLQuery,
			ev.ReferrerPath, ev.ReferrerQuery, ev.ReferrerDomain, ev.PageTitle,
			ev.EventType, ev.EventName, ev.DistinctID, ev.CreatedAt,
		)
	}

	query := `INSERT INTO WEBSITE_EVENT_IMPORT (` + eventColumns + `) VALUES ` +
		strings.Join(placeholders, ", ")

	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert events: %w", err)
	}
	return nil
}

// DeleteByImport removes every event belonging to (siteID, importID) and
// returns the number of rows removed. An empty set deletes zero rows and
// is not an error.
func (c *Client) DeleteByImport(ctx context.Context, siteID, importID string) (int64, error) {
	res, err := c.db.ExecContext(ctx, `
		DELETE FROM WEBSITE_EVENT_IMPORT
		WHERE SITE_ID = ? AND IMPORT_ID = ?
	`, siteID, importID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read deleted row count: %w", err)
	}
	return n, nil
}
