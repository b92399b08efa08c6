package importjob

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/analytics-import/internal/domain"
)

// TierProvider resolves the subscription-tier import window for a site.
// Quota computation itself is external to this service.
type TierProvider interface {
	WindowMonths(ctx context.Context, siteID string) (int, error)
}

// Service implements import lifecycle business logic. It coordinates the
// record store, event store, and file store, and owns the state machine
// pending → processing → {completed | failed}. All public methods are safe
// for concurrent use if the underlying stores are concurrency-safe.
type Service struct {
	repo   Repository
	events EventStore
	tiers  TierProvider

	files         FileStore
	storagePrefix string
	remoteFiles   bool
}

// NewService creates an import lifecycle service backed by the given stores.
func NewService(repo Repository, events EventStore, tiers TierProvider) *Service {
	return &Service{repo: repo, events: events, tiers: tiers}
}

// AttachFileStore enables best-effort removal of the uploaded file artifact
// when an import is deleted. Without it the artifact would be orphaned: once
// the record is gone, reclamation can never find the file again.
func (s *Service) AttachFileStore(files FileStore, storagePrefix string, remote bool) {
	s.files = files
	s.storagePrefix = storagePrefix
	s.remoteFiles = remote
}

// BatchResult reports what happened to one submitted batch.
type BatchResult struct {
	ImportedCount int `json:"imported_count"`
	SkippedCount  int `json:"skipped_count"`
}

// Create announces a new import: a pending record plus the allowed date
// range the client-side parser must filter against.
func (s *Service) Create(ctx context.Context, siteID, fileName string) (*domain.ImportRecord, domain.AllowedDateRange, error) {
	var zero domain.AllowedDateRange
	if siteID == "" {
		return nil, zero, fmt.Errorf("site id is required")
	}
	if fileName == "" {
		return nil, zero, fmt.Errorf("file name is required")
	}

	months, err := s.tiers.WindowMonths(ctx, siteID)
	if err != nil {
		return nil, zero, fmt.Errorf("resolve import window: %w", err)
	}
	if !domain.ValidWindowMonths(months) {
		return nil, zero, ErrInvalidWindow
	}

	rec := &domain.ImportRecord{
		ID:        uuid.New().String(),
		SiteID:    siteID,
		FileName:  fileName,
		Status:    domain.ImportPending,
		StartedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, zero, fmt.Errorf("create import record: %w", err)
	}

	return rec, domain.RangeForWindow(rec.StartedAt, months), nil
}

// Get returns an import record after verifying site ownership.
func (s *Service) Get(ctx context.Context, siteID, importID string) (*domain.ImportRecord, error) {
	rec, err := s.repo.Get(ctx, importID)
	if err != nil {
		return nil, err
	}
	if rec.SiteID != siteID {
		return nil, ErrWrongSite
	}
	return rec, nil
}

// List returns all imports for a site, newest first.
func (s *Service) List(ctx context.Context, siteID string) ([]domain.ImportRecord, error) {
	return s.repo.ListBySite(ctx, siteID)
}

// SubmitBatch ingests one batch of events for an import. The first accepted
// batch moves the record from pending to processing. Row timestamps are
// re-checked against the site's allowed range — client-side filtering is
// untrusted input — and out-of-range rows are dropped and counted skipped.
func (s *Service) SubmitBatch(ctx context.Context, siteID, importID string, events []domain.Event) (BatchResult, error) {
	if len(events) == 0 {
		return BatchResult{}, ErrEmptyBatch
	}

	rec, err := s.Get(ctx, siteID, importID)
	if err != nil {
		return BatchResult{}, err
	}
	if rec.Status.IsTerminal() {
		return BatchResult{}, ErrAlreadyTerminal
	}

	months, err := s.tiers.WindowMonths(ctx, siteID)
	if err != nil {
		return BatchResult{}, fmt.Errorf("resolve import window: %w", err)
	}
	// Anchored at StartedAt so the check matches the range Create issued to
	// the client. Anchoring at the current time would shift the window under
	// a long-running upload and reject rows the client was told are fine.
	allowed := domain.RangeForWindow(rec.StartedAt, months)

	accepted := make([]domain.Event, 0, len(events))
	skipped := 0
	for _, ev := range events {
		if !allowed.Contains(ev.CreatedAt) {
			skipped++
			continue
		}
		accepted = append(accepted, ev)
	}

	if rec.Status == domain.ImportPending {
		if err := s.repo.UpdateStatus(ctx, importID, domain.ImportProcessing, domain.ImportPending); err != nil && !errors.Is(err, ErrNotFound) {
			return BatchResult{}, fmt.Errorf("transition to processing: %w", err)
		}
	}

	if len(accepted) > 0 {
		if err := s.events.InsertBatch(ctx, siteID, importID, accepted); err != nil {
			return BatchResult{}, fmt.Errorf("insert events: %w", err)
		}
	}
	if err := s.repo.AddCounts(ctx, importID, int64(len(accepted)), int64(skipped), 0); err != nil {
		return BatchResult{}, fmt.Errorf("update counts: %w", err)
	}

	return BatchResult{ImportedCount: len(accepted), SkippedCount: skipped}, nil
}

// Complete marks an import finished with no fatal errors, recording the
// client's final errored-row tally. Re-delivery of the same terminal signal
// is a no-op and does not count the errors again; a conflicting terminal
// signal is rejected — there is exactly one terminal transition per import.
func (s *Service) Complete(ctx context.Context, siteID, importID string, errored int64) error {
	return s.finish(ctx, siteID, importID, domain.ImportCompleted, errored)
}

// Fail marks an import as failed after a client-reported fatal error.
func (s *Service) Fail(ctx context.Context, siteID, importID string, errored int64) error {
	return s.finish(ctx, siteID, importID, domain.ImportFailed, errored)
}

// finish applies a terminal transition. The errored tally is recorded only
// when the transition actually fires, so duplicate deliveries carrying the
// same count cannot inflate it.
func (s *Service) finish(ctx context.Context, siteID, importID string, terminal domain.ImportStatus, errored int64) error {
	rec, err := s.Get(ctx, siteID, importID)
	if err != nil {
		return err
	}
	if rec.Status == terminal {
		return nil // idempotent re-delivery
	}
	if rec.Status.IsTerminal() {
		return ErrAlreadyTerminal
	}

	err = s.repo.UpdateStatus(ctx, importID, terminal, domain.ImportPending, domain.ImportProcessing)
	if errors.Is(err, ErrNotFound) {
		// Lost a race with another terminal transition. Re-read to decide
		// whether the winner matched us (idempotent) or conflicted. The
		// winning delivery owns the errored tally.
		cur, getErr := s.repo.Get(ctx, importID)
		if getErr != nil {
			return getErr
		}
		if cur.Status == terminal {
			return nil
		}
		return ErrAlreadyTerminal
	}
	if err != nil {
		return fmt.Errorf("transition to %s: %w", terminal, err)
	}

	if errored > 0 {
		if err := s.repo.AddCounts(ctx, importID, 0, 0, errored); err != nil {
			return fmt.Errorf("record errored rows: %w", err)
		}
	}
	return nil
}

// Delete removes an import and all of its events. Only terminal imports may
// be deleted; removing a pending/processing import mid-write is rejected.
//
// Events are deleted before the record so a partial failure leaves the
// record behind to drive a retry — never unreachable events with no record.
// If the record deletion itself fails, the events are already gone; that
// inconsistency is surfaced to the caller, not hidden.
//
// The uploaded file artifact is removed last, best effort: once the record
// is gone the reclamation worker can never find the file again, so this is
// the artifact's only remaining cleanup path. A storage failure here is
// logged but does not fail the delete.
func (s *Service) Delete(ctx context.Context, siteID, importID string) error {
	rec, err := s.Get(ctx, siteID, importID)
	if err != nil {
		return err
	}
	if !rec.Status.IsTerminal() {
		return ErrImportActive
	}

	n, err := s.events.DeleteByImport(ctx, siteID, importID)
	if err != nil {
		return fmt.Errorf("delete events: %w", err)
	}
	if n > 0 {
		log.Printf("[importjob.Service] Import %s: deleted %d events", importID, n)
	}

	if err := s.repo.Delete(ctx, importID); err != nil {
		if errors.Is(err, ErrNotFound) {
			// A concurrent delete won between our two steps. Both paths are
			// idempotent, so the outcome converged.
			return nil
		}
		return fmt.Errorf("events removed but import record %s remains, retry delete: %w", importID, err)
	}

	s.removeArtifact(ctx, rec)
	return nil
}

func (s *Service) removeArtifact(ctx context.Context, rec *domain.ImportRecord) {
	if s.files == nil {
		return
	}
	loc := domain.DeriveLocation(s.storagePrefix, rec.ID, rec.FileName, s.remoteFiles)
	if _, err := s.files.Delete(ctx, loc); err != nil {
		log.Printf("[importjob.Service] Import %s: failed to remove uploaded file %s: %v", rec.ID, loc.Key, err)
	}
}

// FailStale is the policy hook for imports stuck in a non-terminal state
// (client crashed mid-upload). Nothing in the core calls it on a schedule;
// the operator or an external task decides the cutoff. Returns the number
// of imports failed.
func (s *Service) FailStale(ctx context.Context, olderThan time.Time) (int, error) {
	stale, err := s.repo.ListStaleActive(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("list stale imports: %w", err)
	}

	failed := 0
	for _, rec := range stale {
		err := s.repo.UpdateStatus(ctx, rec.ID, domain.ImportFailed, domain.ImportPending, domain.ImportProcessing)
		if errors.Is(err, ErrNotFound) {
			continue // reached a terminal state since the scan
		}
		if err != nil {
			return failed, fmt.Errorf("fail stale import %s: %w", rec.ID, err)
		}
		failed++
	}
	if failed > 0 {
		log.Printf("[importjob.Service] Failed %d imports stuck before %s", failed, olderThan.Format(time.RFC3339))
	}
	return failed, nil
}
