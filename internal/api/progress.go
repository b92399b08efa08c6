package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// progressTTL keeps snapshots around long enough for the UI to read the
// final state of a finished import.
const progressTTL = 24 * time.Hour

// ImportProgress is the client-visible progress snapshot for one import.
type ImportProgress struct {
	ImportID  string    `json:"import_id"`
	Status    string    `json:"status"`
	Parsed    int64     `json:"parsed"`
	Skipped   int64     `json:"skipped"`
	Errored   int64     `json:"errored"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProgressStore caches per-import progress snapshots in Redis so progress
// polling never touches the record store.
type ProgressStore struct {
	redis *redis.Client
}

// NewProgressStore creates a Redis-backed progress store.
func NewProgressStore(client *redis.Client) *ProgressStore {
	return &ProgressStore{redis: client}
}

func progressKey(importID string) string {
	return fmt.Sprintf("import:progress:%s", importID)
}

// Set stores a snapshot. Failures are returned but callers treat the cache
// as best-effort; the record store remains the source of truth.
func (p *ProgressStore) Set(ctx context.Context, progress *ImportProgress) error {
	progress.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	if err := p.redis.Set(ctx, progressKey(progress.ImportID), data, progressTTL).Err(); err != nil {
		return fmt.Errorf("store progress: %w", err)
	}
	return nil
}

// Get returns the snapshot for an import, or (nil, nil) when none exists.
func (p *ProgressStore) Get(ctx context.Context, importID string) (*ImportProgress, error) {
	data, err := p.redis.Get(ctx, progressKey(importID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read progress: %w", err)
	}

	var progress ImportProgress
	if err := json.Unmarshal(data, &progress); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	return &progress, nil
}
