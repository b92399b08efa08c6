package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/analytics-import/internal/domain"
	"github.com/ignite/analytics-import/internal/service/importjob"
)

// ImportRecordRepo implements importjob.Repository against PostgreSQL.
type ImportRecordRepo struct{ db *sql.DB }

// NewImportRecordRepo creates a Postgres-backed import record repository.
func NewImportRecordRepo(db *sql.DB) *ImportRecordRepo { return &ImportRecordRepo{db: db} }

const importColumns = `id, site_id, file_name, status,
       parsed_count, skipped_count, errored_count, started_at, completed_at`

func scanImport(row interface{ Scan(...any) error }) (*domain.ImportRecord, error) {
	rec := &domain.ImportRecord{}
	err := row.Scan(
		&rec.ID, &rec.SiteID, &rec.FileName, &rec.Status,
		&rec.ParsedCount, &rec.SkippedCount, &rec.ErroredCount,
		&rec.StartedAt, &rec.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *ImportRecordRepo) Get(ctx context.Context, id string) (*domain.ImportRecord, error) {
	rec, err := scanImport(r.db.QueryRowContext(ctx, `
		SELECT `+importColumns+`
		FROM analytics_imports
		WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, importjob.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get import: %w", err)
	}
	return rec, nil
}

func (r *ImportRecordRepo) ListBySite(ctx context.Context, siteID string) ([]domain.ImportRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+importColumns+`
		FROM analytics_imports
		WHERE site_id = $1
		ORDER BY started_at DESC
	`, siteID)
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	defer rows.Close()
	return collectImports(rows)
}

func (r *ImportRecordRepo) Create(ctx context.Context, rec *domain.ImportRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO analytics_imports
			(id, site_id, file_name, status, parsed_count, skipped_count, errored_count, started_at)
		VALUES ($1, $2, $3, $4, 0, 0, 0, $5)
	`, rec.ID, rec.SiteID, rec.FileName, rec.Status, rec.StartedAt)
	if err != nil {
		return fmt.Errorf("create import: %w", err)
	}
	return nil
}

// UpdateStatus applies the transition only when the current status is one of
// from, so two racing terminal signals cannot both fire. completed_at is set
// when the target status is terminal.
func (r *ImportRecordRepo) UpdateStatus(ctx context.Context, id string, to domain.ImportStatus, from ...domain.ImportStatus) error {
	if len(from) == 0 {
		return fmt.Errorf("update status: at least one from status required")
	}

	args := []any{id, string(to), to.IsTerminal()}
	placeholders := make([]string, len(from))
	for i, st := range from {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, string(st))
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE analytics_imports
		SET status = $2,
		    completed_at = CASE WHEN $3 THEN NOW() ELSE completed_at END
		WHERE id = $1 AND status IN (`+strings.Join(placeholders, ", ")+`)
	`, args...)
	if err != nil {
		return fmt.Errorf("update import status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update import status: %w", err)
	}
	if n == 0 {
		return importjob.ErrNotFound
	}
	return nil
}

// AddCounts bumps the row counters. GREATEST keeps them monotonic even if a
// caller ever passes a negative delta.
func (r *ImportRecordRepo) AddCounts(ctx context.Context, id string, parsed, skipped, errored int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE analytics_imports
		SET parsed_count  = GREATEST(parsed_count  + $2, parsed_count),
		    skipped_count = GREATEST(skipped_count + $3, skipped_count),
		    errored_count = GREATEST(errored_count + $4, errored_count)
		WHERE id = $1
	`, id, parsed, skipped, errored)
	if err != nil {
		return fmt.Errorf("update import counts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update import counts: %w", err)
	}
	if n == 0 {
		return importjob.ErrNotFound
	}
	return nil
}

func (r *ImportRecordRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM analytics_imports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete import: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete import: %w", err)
	}
	if n == 0 {
		return importjob.ErrNotFound
	}
	return nil
}

func (r *ImportRecordRepo) ListStaleTerminal(ctx context.Context, olderThan time.Time) ([]domain.ImportRecord, error) {
	return r.listStale(ctx, olderThan, domain.ImportCompleted, domain.ImportFailed)
}

func (r *ImportRecordRepo) ListStaleActive(ctx context.Context, olderThan time.Time) ([]domain.ImportRecord, error) {
	return r.listStale(ctx, olderThan, domain.ImportPending, domain.ImportProcessing)
}

func (r *ImportRecordRepo) listStale(ctx context.Context, olderThan time.Time, statuses ...domain.ImportStatus) ([]domain.ImportRecord, error) {
	args := []any{olderThan}
	placeholders := make([]string, len(statuses))
	for i, st := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, string(st))
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+importColumns+`
		FROM analytics_imports
		WHERE started_at < $1 AND status IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY started_at ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list stale imports: %w", err)
	}
	defer rows.Close()
	return collectImports(rows)
}

func collectImports(rows *sql.Rows) ([]domain.ImportRecord, error) {
	var out []domain.ImportRecord
	for rows.Next() {
		rec, err := scanImport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate imports: %w", err)
	}
	return out, nil
}
