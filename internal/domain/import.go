package domain

import (
	"path"
	"strings"
	"time"
)

// ImportStatus enumerates the lifecycle states of an import job.
type ImportStatus string

const (
	ImportPending    ImportStatus = "pending"
	ImportProcessing ImportStatus = "processing"
	ImportCompleted  ImportStatus = "completed"
	ImportFailed     ImportStatus = "failed"
)

// IsTerminal returns true if the import is in a final state.
// No progress transition ever leaves a terminal state.
func (s ImportStatus) IsTerminal() bool {
	return s == ImportCompleted || s == ImportFailed
}

// CanTransition reports whether moving from s to next is a legal
// lifecycle transition.
func (s ImportStatus) CanTransition(next ImportStatus) bool {
	switch s {
	case ImportPending:
		return next == ImportProcessing || next == ImportFailed
	case ImportProcessing:
		return next == ImportCompleted || next == ImportFailed
	default:
		return false
	}
}

// ImportRecord is the metadata row for one bulk import job. ID, SiteID and
// FileName are immutable after creation; counts only grow while processing.
type ImportRecord struct {
	ID       string       `json:"id" db:"id"`
	SiteID   string       `json:"site_id" db:"site_id"`
	FileName string       `json:"file_name" db:"file_name"`
	Status   ImportStatus `json:"status" db:"status"`

	ParsedCount  int64 `json:"parsed_count" db:"parsed_count"`
	SkippedCount int64 `json:"skipped_count" db:"skipped_count"`
	ErroredCount int64 `json:"errored_count" db:"errored_count"`

	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
}

// Event is one imported analytics event. Every event belongs to exactly one
// (SiteID, ImportID) pair for its lifetime in the event store; both are
// carried on the record rather than the event so batches stay flat.
type Event struct {
	SessionID      string    `json:"session_id"`
	Hostname       string    `json:"hostname"`
	Browser        string    `json:"browser"`
	OS             string    `json:"os"`
	Device         string    `json:"device"`
	Screen         string    `json:"screen"`
	Language       string    `json:"language"`
	Country        string    `json:"country"`
	Subdivision    string    `json:"subdivision"`
	City           string    `json:"city"`
	URLPath        string    `json:"url_path"`
	URLQuery       string    `json:"url_query"`
	ReferrerPath   string    `json:"referrer_path"`
	ReferrerQuery  string    `json:"referrer_query"`
	ReferrerDomain string    `json:"referrer_domain"`
	PageTitle      string    `json:"page_title"`
	EventType      int       `json:"event_type"`
	EventName      string    `json:"event_name"`
	DistinctID     string    `json:"distinct_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// HistoricalWindowMonths are the subscription-tier import windows.
var HistoricalWindowMonths = []int{6, 24, 60}

// ValidWindowMonths reports whether months is one of the allowed tiers.
func ValidWindowMonths(months int) bool {
	for _, m := range HistoricalWindowMonths {
		if m == months {
			return true
		}
	}
	return false
}

// AllowedDateRange is the quota-derived window of event timestamps a tier is
// permitted to import. Computed from the subscription tier by an external
// collaborator and passed into the parser as configuration.
type AllowedDateRange struct {
	EarliestAllowedDate time.Time `json:"earliest_allowed_date"`
	LatestAllowedDate   time.Time `json:"latest_allowed_date"`
	WindowMonths        int       `json:"window_months"`
}

// RangeForWindow builds the allowed range ending at now for the given
// tier window. The caller is responsible for validating months.
func RangeForWindow(now time.Time, months int) AllowedDateRange {
	return AllowedDateRange{
		EarliestAllowedDate: now.AddDate(0, -months, 0),
		LatestAllowedDate:   now,
		WindowMonths:        months,
	}
}

// Contains reports whether t falls inside the allowed range (inclusive).
func (r AllowedDateRange) Contains(t time.Time) bool {
	return !t.Before(r.EarliestAllowedDate) && !t.After(r.LatestAllowedDate)
}

// StorageLocation names the uploaded file artifact for an import. It is
// derived, never persisted, and never shared across import ids. Remote
// selects the object-storage backend over the local filesystem.
type StorageLocation struct {
	Key    string `json:"key"`
	Remote bool   `json:"remote"`
}

// DeriveLocation deterministically maps (importID, fileName) to a storage
// location under prefix. The file name is flattened to its base name so a
// crafted name cannot escape the import's directory.
func DeriveLocation(prefix, importID, fileName string, remote bool) StorageLocation {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload.csv"
	}
	return StorageLocation{
		Key:    path.Join(prefix, "imports", importID, base),
		Remote: remote,
	}
}
