package worker

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ignite/analytics-import/internal/domain"
)

// =============================================================================
// CSV IMPORT PARSER — Streaming Event File Processing
// =============================================================================
// Stream-parses a historical event CSV without loading it into memory,
// validates each row against the allowed date range, batches accepted rows,
// and reports to the orchestrating caller over a bounded message channel.
// The parser performs no network I/O itself; the consumer transmits batches
// to the batch-import endpoint and drives the import state machine.

const (
	// ImportBatchSize is the number of validated rows per CHUNK message.
	ImportBatchSize = 500

	// progressUpdateFreq controls how often PROGRESS messages are emitted.
	progressUpdateFreq = 1000

	// maxErrorDetails caps the per-row error sample carried on COMPLETE.
	maxErrorDetails = 50

	// messageBuffer bounds the outbound channel. A slow consumer blocks the
	// parser here instead of dropping data.
	messageBuffer = 4
)

// MessageType discriminates parser messages.
type MessageType string

const (
	MessageProgress MessageType = "progress"
	MessageChunk    MessageType = "chunk"
	MessageComplete MessageType = "complete"
	MessageError    MessageType = "error"
)

// RowError records one unparseable row.
type RowError struct {
	Row     int64  `json:"row"`
	Message string `json:"message"`
}

// Message is one outbound parser message. Fields are populated per type:
// counts on progress and complete, Events on chunk, ErrorDetails on
// complete, Err on error.
type Message struct {
	Type MessageType `json:"type"`

	Parsed  int64 `json:"parsed"`
	Skipped int64 `json:"skipped"`
	Errored int64 `json:"errored"`

	Events       []domain.Event `json:"events,omitempty"`
	ErrorDetails []RowError     `json:"error_details,omitempty"`
	Err          string         `json:"err,omitempty"`
}

// StartRequest carries everything the parser needs for one file.
type StartRequest struct {
	File     io.Reader
	SiteID   string
	ImportID string
	Allowed  domain.AllowedDateRange
}

// CSVImporter parses one event CSV per Start call. Safe to Cancel from any
// goroutine; a cancelled run stops at the next batch boundary and emits
// nothing further.
type CSVImporter struct {
	cancelled atomic.Bool
}

// NewCSVImporter creates a parser.
func NewCSVImporter() *CSVImporter {
	return &CSVImporter{}
}

// Cancel requests that parsing stop at the next safe checkpoint. Progress
// already emitted stays valid; the orchestrator decides what the import
// record becomes.
func (p *CSVImporter) Cancel() {
	p.cancelled.Store(true)
}

// Start begins parsing in its own goroutine and returns the message
// channel. The channel is closed when parsing ends for any reason. Exactly
// one COMPLETE is emitted on natural end-of-file; none after cancellation.
func (p *CSVImporter) Start(ctx context.Context, req StartRequest) <-chan Message {
	out := make(chan Message, messageBuffer)
	go func() {
		defer close(out)
		p.run(ctx, req, out)
	}()
	return out
}

// expected CSV columns; created_at is the only hard requirement.
var eventColumnNames = []string{
	"session_id", "hostname", "browser", "os", "device", "screen",
	"language", "country", "subdivision", "city", "url_path", "url_query",
	"referrer_path", "referrer_query", "referrer_domain", "page_title",
	"event_type", "event_name", "distinct_id", "created_at",
}

func (p *CSVImporter) run(ctx context.Context, req StartRequest, out chan<- Message) {
	reader := csv.NewReader(bufio.NewReaderSize(req.File, 1024*1024))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		p.emit(ctx, out, Message{Type: MessageError, Err: "file is empty"})
		return
	}
	if err != nil {
		p.emit(ctx, out, Message{Type: MessageError, Err: fmt.Sprintf("failed to read header: %v", err)})
		return
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[normalizeColumn(name)] = i
	}
	createdIdx, ok := cols["created_at"]
	if !ok {
		p.emit(ctx, out, Message{Type: MessageError, Err: "missing required column created_at"})
		return
	}

	var parsed, skipped, errored int64
	var details []RowError
	var row int64
	batch := make([]domain.Event, 0, ImportBatchSize)

	flush := func() bool {
		if len(batch) == 0 {
			return true
		}
		events := make([]domain.Event, len(batch))
		copy(events, batch)
		batch = batch[:0]
		return p.emit(ctx, out, Message{Type: MessageChunk, Events: events})
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			// One bad row must not abort the whole file.
			errored++
			if len(details) < maxErrorDetails {
				details = append(details, RowError{Row: row, Message: fmt.Sprintf("parse error: %v", err)})
			}
			continue
		}

		if createdIdx >= len(record) {
			errored++
			if len(details) < maxErrorDetails {
				details = append(details, RowError{Row: row, Message: "row too short: missing created_at"})
			}
			continue
		}

		createdAt, err := parseEventTime(record[createdIdx])
		if err != nil {
			errored++
			if len(details) < maxErrorDetails {
				details = append(details, RowError{Row: row, Message: fmt.Sprintf("invalid created_at %q", record[createdIdx])})
			}
			continue
		}

		if !req.Allowed.Contains(createdAt) {
			skipped++
			continue
		}

		batch = append(batch, buildEvent(cols, record, createdAt))
		parsed++

		if len(batch) >= ImportBatchSize {
			if p.stopped(ctx) {
				return
			}
			if !flush() {
				return
			}
		}

		if row%progressUpdateFreq == 0 {
			if !p.emit(ctx, out, Message{Type: MessageProgress, Parsed: parsed, Skipped: skipped, Errored: errored}) {
				return
			}
		}
	}

	if p.stopped(ctx) {
		return
	}
	if !flush() {
		return
	}

	p.emit(ctx, out, Message{
		Type:         MessageComplete,
		Parsed:       parsed,
		Skipped:      skipped,
		Errored:      errored,
		ErrorDetails: details,
	})
}

// stopped reports whether cancellation or context expiry was observed.
func (p *CSVImporter) stopped(ctx context.Context) bool {
	return p.cancelled.Load() || ctx.Err() != nil
}

// emit sends one message, honoring cancellation. Returns false when the
// run should stop without sending anything further.
func (p *CSVImporter) emit(ctx context.Context, out chan<- Message, msg Message) bool {
	if p.stopped(ctx) {
		return false
	}
	select {
	case out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

func buildEvent(cols map[string]int, record []string, createdAt time.Time) domain.Event {
	field := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	eventType := 1
	if raw := field("event_type"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			eventType = n
		}
	}

	return domain.Event{
		SessionID:      field("session_id"),
		Hostname:       field("hostname"),
		Browser:        field("browser"),
		OS:             field("os"),
		Device:         field("device"),
		Screen:         field("screen"),
		Language:       field("language"),
		Country:        field("country"),
		Subdivision:    field("subdivision"),
		City:           field("city"),
		URLPath:        field("url_path"),
		URLQuery:       field("url_query"),
		ReferrerPath:   field("referrer_path"),
		ReferrerQuery:  field("referrer_query"),
		ReferrerDomain: field("referrer_domain"),
		PageTitle:      field("page_title"),
		EventType:      eventType,
		EventName:      field("event_name"),
		DistinctID:     field("distinct_id"),
		CreatedAt:      createdAt,
	}
}

// parseEventTime accepts the timestamp formats seen in exported event
// files: RFC3339, the common space-separated form, and epoch seconds.
func parseEventTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05", raw); err == nil {
		return t.UTC(), nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

func normalizeColumn(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")
	return normalized
}
