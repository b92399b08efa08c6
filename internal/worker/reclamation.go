package worker

import (
	"context"
	"log"
	"time"

	"github.com/ignite/analytics-import/internal/domain"
	"github.com/ignite/analytics-import/internal/service/importjob"
)

// =============================================================================
// RECLAMATION WORKER — Removes Files Left Behind by Old Terminal Imports
// =============================================================================
// Completed and failed imports leave their uploaded CSV artifact in file
// storage. Once a terminal import is past the retention window the file has
// no further use, so a daily pass deletes it. Import records themselves are
// never touched here — they are retained for audit and only removed by an
// explicit user delete.
//
// The worker is safe to run concurrently with user deletes on the same
// import: both paths treat an absent file as success, so the outcome
// converges regardless of ordering. Neither path assumes exclusive
// ownership of a record.

const (
	// DefaultRetentionDays is how long terminal import files are kept.
	DefaultRetentionDays = 7

	// DefaultRunHourUTC is the fixed daily run time.
	DefaultRunHourUTC = 3
)

// RecordSource lists the terminal imports eligible for reclamation.
type RecordSource interface {
	ListStaleTerminal(ctx context.Context, olderThan time.Time) ([]domain.ImportRecord, error)
}

// RunStats aggregates one reclamation pass. One record's failure never
// halts the batch, so failed records show up here rather than as an error.
type RunStats struct {
	Scanned     int `json:"scanned"`
	Deleted     int `json:"deleted"`
	AlreadyGone int `json:"already_gone"`
	Failed      int `json:"failed"`
}

// ReclamationWorker deletes stale terminal-import files on a fixed daily
// schedule. It owns its own lifecycle: Start blocks until the context is
// cancelled, an in-flight pass always completes, and TriggerNow runs the
// identical logic on demand.
type ReclamationWorker struct {
	records RecordSource
	files   importjob.FileStore

	storagePrefix string
	remote        bool
	retention     time.Duration
	runHourUTC    int
}

// NewReclamationWorker creates a reclamation worker with default schedule
// and retention. storagePrefix and remote mirror how upload locations were
// derived when the files were written.
func NewReclamationWorker(records RecordSource, files importjob.FileStore, storagePrefix string, remote bool) *ReclamationWorker {
	return &ReclamationWorker{
		records:       records,
		files:         files,
		storagePrefix: storagePrefix,
		remote:        remote,
		retention:     DefaultRetentionDays * 24 * time.Hour,
		runHourUTC:    DefaultRunHourUTC,
	}
}

// SetRetention overrides the retention window (for ops and tests).
func (w *ReclamationWorker) SetRetention(d time.Duration) { w.retention = d }

// SetRunHour overrides the daily UTC run hour.
func (w *ReclamationWorker) SetRunHour(hour int) { w.runHourUTC = hour }

// Start begins the daily loop. It blocks until ctx is cancelled; no new
// pass starts after cancellation, and the current pass finishes first.
func (w *ReclamationWorker) Start(ctx context.Context) {
	log.Printf("[Reclamation] Starting (daily at %02d:00 UTC, retention=%s)", w.runHourUTC, w.retention)

	for {
		wait := time.Until(w.nextRun(time.Now().UTC()))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Println("[Reclamation] Stopping")
			return
		case <-timer.C:
			w.safeRun(ctx)
		}
	}
}

// TriggerNow runs one reclamation pass immediately, sharing the scheduled
// path's logic. Intended for operational use.
func (w *ReclamationWorker) TriggerNow(ctx context.Context) RunStats {
	return w.safeRun(ctx)
}

// nextRun returns the next occurrence of the fixed UTC run hour.
func (w *ReclamationWorker) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), w.runHourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// safeRun guards a pass against panics so a single bad run can never
// silently kill the recurring schedule.
func (w *ReclamationWorker) safeRun(ctx context.Context) (stats RunStats) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Reclamation] Run panicked: %v", r)
		}
	}()
	return w.runOnce(ctx)
}

// runOnce scans terminal imports past retention and deletes their files.
// Running it twice in a row is safe: the second pass finds the same or
// fewer files and reports each absence as already-gone.
//
// The pass runs detached from the caller's cancellation: the scheduler's
// context stops new runs from starting, it never abandons a batch halfway.
func (w *ReclamationWorker) runOnce(ctx context.Context) RunStats {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	cutoff := start.UTC().Add(-w.retention)

	var stats RunStats
	stale, err := w.records.ListStaleTerminal(ctx, cutoff)
	if err != nil {
		log.Printf("[Reclamation] Failed to list stale imports: %v", err)
		return stats
	}
	stats.Scanned = len(stale)

	for _, rec := range stale {
		loc := domain.DeriveLocation(w.storagePrefix, rec.ID, rec.FileName, w.remote)
		deleted, err := w.files.Delete(ctx, loc)
		switch {
		case err != nil:
			stats.Failed++
			log.Printf("[Reclamation] Failed to delete %s for import %s: %v", loc.Key, rec.ID, err)
		case deleted:
			stats.Deleted++
		default:
			stats.AlreadyGone++
		}
	}

	log.Printf("[Reclamation] Pass completed in %s: scanned=%d deleted=%d already_gone=%d failed=%d",
		time.Since(start).Round(time.Millisecond), stats.Scanned, stats.Deleted, stats.AlreadyGone, stats.Failed)
	return stats
}
