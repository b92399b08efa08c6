package importjob

import (
	"context"
	"time"

	"github.com/ignite/analytics-import/internal/domain"
)

// Repository defines the data access contract for import records.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single import record. Returns ErrNotFound if it
	// doesn't exist.
	Get(ctx context.Context, id string) (*domain.ImportRecord, error)

	// ListBySite returns all import records for a site, newest first.
	ListBySite(ctx context.Context, siteID string) ([]domain.ImportRecord, error)

	// Create inserts a new record in pending status.
	Create(ctx context.Context, rec *domain.ImportRecord) error

	// UpdateStatus transitions a record's status. The update is applied
	// only when the record is currently in one of the from statuses, so
	// concurrent transitions cannot double-fire; returns ErrNotFound when
	// no row matched.
	UpdateStatus(ctx context.Context, id string, to domain.ImportStatus, from ...domain.ImportStatus) error

	// AddCounts bumps the parsed/skipped/errored counters. Counters are
	// monotonically non-decreasing; deltas must not be negative.
	AddCounts(ctx context.Context, id string, parsed, skipped, errored int64) error

	// Delete removes a record. Returns ErrNotFound if it doesn't exist.
	Delete(ctx context.Context, id string) error

	// ListStaleTerminal returns terminal-state records whose StartedAt is
	// older than the cutoff. Used by the reclamation worker.
	ListStaleTerminal(ctx context.Context, olderThan time.Time) ([]domain.ImportRecord, error)

	// ListStaleActive returns pending/processing records whose StartedAt is
	// older than the cutoff. Used by the FailStale policy hook.
	ListStaleActive(ctx context.Context, olderThan time.Time) ([]domain.ImportRecord, error)
}

// EventStore defines the columnar-store contract for imported events.
type EventStore interface {
	// InsertBatch writes events scoped to (siteID, importID).
	InsertBatch(ctx context.Context, siteID, importID string, events []domain.Event) error

	// DeleteByImport removes every event scoped to (siteID, importID) and
	// returns the number of rows removed. Deleting an empty set is a no-op,
	// not an error.
	DeleteByImport(ctx context.Context, siteID, importID string) (int64, error)
}

// FileStore deletes uploaded file artifacts by derived location.
type FileStore interface {
	// Delete removes the file at loc. Returns (false, nil) when the file
	// is already gone — absence is success, not failure.
	Delete(ctx context.Context, loc domain.StorageLocation) (bool, error)
}
