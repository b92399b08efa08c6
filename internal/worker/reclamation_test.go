package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ignite/analytics-import/internal/domain"
)

// mockRecordSource serves a fixed set of stale terminal records.
type mockRecordSource struct {
	records []domain.ImportRecord
	err     error
}

func (m *mockRecordSource) ListStaleTerminal(_ context.Context, olderThan time.Time) ([]domain.ImportRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.ImportRecord
	for _, rec := range m.records {
		if rec.StartedAt.Before(olderThan) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// mockFileStore tracks which keys exist and which deletes were attempted.
type mockFileStore struct {
	mu       sync.Mutex
	existing map[string]bool
	failKeys map[string]bool
	deleted  []string
}

func newMockFileStore(keys ...string) *mockFileStore {
	existing := make(map[string]bool, len(keys))
	for _, k := range keys {
		existing[k] = true
	}
	return &mockFileStore{existing: existing, failKeys: make(map[string]bool)}
}

func (m *mockFileStore) Delete(_ context.Context, loc domain.StorageLocation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failKeys[loc.Key] {
		return false, errors.New("storage unavailable")
	}
	if !m.existing[loc.Key] {
		return false, nil
	}
	delete(m.existing, loc.Key)
	m.deleted = append(m.deleted, loc.Key)
	return true, nil
}

func terminalRecord(id, fileName string, age time.Duration) domain.ImportRecord {
	return domain.ImportRecord{
		ID:        id,
		SiteID:    "site-001",
		FileName:  fileName,
		Status:    domain.ImportCompleted,
		StartedAt: time.Now().UTC().Add(-age),
	}
}

func TestRunOnce_DeletesOnlyStaleFiles(t *testing.T) {
	old := terminalRecord("imp-old", "old.csv", 10*24*time.Hour)
	fresh := terminalRecord("imp-fresh", "fresh.csv", 2*24*time.Hour)
	records := &mockRecordSource{records: []domain.ImportRecord{old, fresh}}

	oldKey := domain.DeriveLocation("/data", old.ID, old.FileName, false).Key
	freshKey := domain.DeriveLocation("/data", fresh.ID, fresh.FileName, false).Key
	files := newMockFileStore(oldKey, freshKey)

	w := NewReclamationWorker(records, files, "/data", false)
	stats := w.TriggerNow(context.Background())

	if stats.Scanned != 1 || stats.Deleted != 1 {
		t.Errorf("expected scanned=1 deleted=1, got %+v", stats)
	}
	if len(files.deleted) != 1 || files.deleted[0] != oldKey {
		t.Errorf("expected only the stale file deleted, got %v", files.deleted)
	}
	if !files.existing[freshKey] {
		t.Error("file inside retention must survive")
	}
}

func TestRunOnce_AbsentFileIsAlreadyGone(t *testing.T) {
	rec := terminalRecord("imp-1", "events.csv", 10*24*time.Hour)
	records := &mockRecordSource{records: []domain.ImportRecord{rec}}
	files := newMockFileStore() // nothing on disk

	w := NewReclamationWorker(records, files, "/data", false)
	stats := w.TriggerNow(context.Background())

	if stats.AlreadyGone != 1 || stats.Deleted != 0 || stats.Failed != 0 {
		t.Errorf("expected already_gone=1, got %+v", stats)
	}
}

func TestRunOnce_IsIdempotent(t *testing.T) {
	rec := terminalRecord("imp-1", "events.csv", 10*24*time.Hour)
	records := &mockRecordSource{records: []domain.ImportRecord{rec}}
	key := domain.DeriveLocation("/data", rec.ID, rec.FileName, false).Key
	files := newMockFileStore(key)

	w := NewReclamationWorker(records, files, "/data", false)

	first := w.TriggerNow(context.Background())
	second := w.TriggerNow(context.Background())

	if first.Deleted != 1 {
		t.Errorf("first pass should delete, got %+v", first)
	}
	if second.Deleted != 0 || second.AlreadyGone != 1 {
		t.Errorf("second pass should find the file already gone, got %+v", second)
	}
}

func TestRunOnce_OneFailureDoesNotHaltBatch(t *testing.T) {
	a := terminalRecord("imp-a", "a.csv", 10*24*time.Hour)
	b := terminalRecord("imp-b", "b.csv", 10*24*time.Hour)
	c := terminalRecord("imp-c", "c.csv", 10*24*time.Hour)
	records := &mockRecordSource{records: []domain.ImportRecord{a, b, c}}

	keyA := domain.DeriveLocation("/data", a.ID, a.FileName, false).Key
	keyB := domain.DeriveLocation("/data", b.ID, b.FileName, false).Key
	keyC := domain.DeriveLocation("/data", c.ID, c.FileName, false).Key
	files := newMockFileStore(keyA, keyB, keyC)
	files.failKeys[keyB] = true

	w := NewReclamationWorker(records, files, "/data", false)
	stats := w.TriggerNow(context.Background())

	if stats.Deleted != 2 || stats.Failed != 1 {
		t.Errorf("expected deleted=2 failed=1, got %+v", stats)
	}
}

func TestRunOnce_ListFailureReturnsEmptyStats(t *testing.T) {
	records := &mockRecordSource{err: errors.New("db down")}
	w := NewReclamationWorker(records, newMockFileStore(), "/data", false)

	stats := w.TriggerNow(context.Background())
	if stats != (RunStats{}) {
		t.Errorf("expected zero stats on list failure, got %+v", stats)
	}
}

func TestRunOnce_RetentionOverride(t *testing.T) {
	rec := terminalRecord("imp-1", "events.csv", 2*24*time.Hour)
	records := &mockRecordSource{records: []domain.ImportRecord{rec}}
	key := domain.DeriveLocation("/data", rec.ID, rec.FileName, false).Key
	files := newMockFileStore(key)

	w := NewReclamationWorker(records, files, "/data", false)
	w.SetRetention(24 * time.Hour)

	stats := w.TriggerNow(context.Background())
	if stats.Deleted != 1 {
		t.Errorf("expected 2-day-old file deleted under 1-day retention, got %+v", stats)
	}
}

func TestRunOnce_CompletesAfterCancellation(t *testing.T) {
	a := terminalRecord("imp-a", "a.csv", 10*24*time.Hour)
	b := terminalRecord("imp-b", "b.csv", 10*24*time.Hour)
	records := &mockRecordSource{records: []domain.ImportRecord{a, b}}

	keyA := domain.DeriveLocation("/data", a.ID, a.FileName, false).Key
	keyB := domain.DeriveLocation("/data", b.ID, b.FileName, false).Key
	files := newMockFileStore(keyA, keyB)

	w := NewReclamationWorker(records, files, "/data", false)

	// Shutdown cancels the scheduler's context; a pass already under way
	// must still finish the whole batch.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats := w.TriggerNow(ctx)
	if stats.Scanned != 2 || stats.Deleted != 2 {
		t.Errorf("expected scanned=2 deleted=2, got %+v", stats)
	}
}

func TestNextRun_SameDayAndNextDay(t *testing.T) {
	w := NewReclamationWorker(&mockRecordSource{}, newMockFileStore(), "/data", false)
	w.SetRunHour(3)

	before := time.Date(2026, 8, 31, 1, 0, 0, 0, time.UTC)
	if got := w.nextRun(before); got != time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC) {
		t.Errorf("expected same-day run, got %v", got)
	}

	after := time.Date(2026, 8, 31, 4, 0, 0, 0, time.UTC)
	if got := w.nextRun(after); got != time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC) {
		t.Errorf("expected next-day run, got %v", got)
	}

	exact := time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC)
	if got := w.nextRun(exact); got != time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC) {
		t.Errorf("run hour exactly now must schedule tomorrow, got %v", got)
	}
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	w := NewReclamationWorker(&mockRecordSource{}, newMockFileStore(), "/data", false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after context cancel")
	}
}
