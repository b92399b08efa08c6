package api

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ignite/analytics-import/internal/domain"
	"github.com/ignite/analytics-import/internal/pkg/httputil"
	"github.com/ignite/analytics-import/internal/service/importjob"
)

// ImportHandlers exposes the import lifecycle over HTTP.
type ImportHandlers struct {
	svc      *importjob.Service
	progress *ProgressStore
}

// NewImportHandlers creates the import HTTP handlers.
func NewImportHandlers(svc *importjob.Service, progress *ProgressStore) *ImportHandlers {
	return &ImportHandlers{svc: svc, progress: progress}
}

// RegisterRoutes mounts the site-scoped import routes. The router must
// already carry RequireSiteAccess.
func (h *ImportHandlers) RegisterRoutes(r chi.Router) {
	r.Post("/imports", h.HandleCreateImport)
	r.Get("/imports", h.HandleListImports)
	r.Get("/imports/{importID}", h.HandleGetImport)
	r.Get("/imports/{importID}/progress", h.HandleGetProgress)
	r.Post("/imports/{importID}/events", h.HandleSubmitBatch)
	r.Post("/imports/{importID}/complete", h.HandleCompleteImport)
	r.Post("/imports/{importID}/fail", h.HandleFailImport)
	r.Delete("/imports/{importID}", requireAdmin(h.HandleDeleteImport))
}

// createImportRequest announces a new import.
type createImportRequest struct {
	FileName string `json:"file_name"`
}

// createImportResponse returns the pending record plus the date range the
// client-side parser must filter against.
type createImportResponse struct {
	Import       *domain.ImportRecord    `json:"import"`
	AllowedRange domain.AllowedDateRange `json:"allowed_date_range"`
}

// HandleCreateImport creates a pending import record.
func (h *ImportHandlers) HandleCreateImport(w http.ResponseWriter, r *http.Request) {
	var req createImportRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.FileName == "" {
		httputil.BadRequest(w, "file_name is required")
		return
	}

	siteID := chi.URLParam(r, "siteID")
	rec, allowed, err := h.svc.Create(r.Context(), siteID, req.FileName)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.snapshotProgress(r.Context(), rec)
	httputil.Created(w, createImportResponse{Import: rec, AllowedRange: allowed})
}

// HandleListImports returns all imports for the site, newest first.
func (h *ImportHandlers) HandleListImports(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	imports, err := h.svc.List(r.Context(), siteID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if imports == nil {
		imports = []domain.ImportRecord{}
	}
	httputil.OK(w, map[string]any{"imports": imports})
}

// HandleGetImport returns one import record.
func (h *ImportHandlers) HandleGetImport(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.loadImport(w, r)
	if !ok {
		return
	}
	httputil.OK(w, rec)
}

// HandleGetProgress serves the cached progress snapshot, falling back to
// the record store when the cache is cold.
func (h *ImportHandlers) HandleGetProgress(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.loadImport(w, r)
	if !ok {
		return
	}

	if snap, err := h.progress.Get(r.Context(), rec.ID); err == nil && snap != nil {
		httputil.OK(w, snap)
		return
	}
	httputil.OK(w, progressFromRecord(rec))
}

// batchRequest is one chunk of client-parsed events.
type batchRequest struct {
	Events []domain.Event `json:"events"`
}

// batchResponse mirrors the batch import submission contract.
type batchResponse struct {
	Success       bool   `json:"success"`
	ImportedCount int    `json:"imported_count"`
	Message       string `json:"message,omitempty"`
	Error         string `json:"error,omitempty"`
}

// HandleSubmitBatch ingests one batch of events for an import.
func (h *ImportHandlers) HandleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")
	if _, err := uuid.Parse(importID); err != nil {
		httputil.BadRequest(w, "invalid import id")
		return
	}

	var req batchRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	siteID := chi.URLParam(r, "siteID")
	result, err := h.svc.SubmitBatch(r.Context(), siteID, importID, req.Events)
	if errors.Is(err, importjob.ErrEmptyBatch) {
		httputil.BadRequest(w, "batch contains no events")
		return
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if rec, err := h.svc.Get(r.Context(), siteID, importID); err == nil {
		h.snapshotProgress(r.Context(), rec)
	}

	resp := batchResponse{Success: true, ImportedCount: result.ImportedCount}
	if result.SkippedCount > 0 {
		resp.Message = "some events fell outside the allowed date range and were skipped"
	}
	httputil.OK(w, resp)
}

// completeRequest carries the client parser's final totals. Only the
// errored count matters server-side; parsed/skipped were already counted
// per batch.
type completeRequest struct {
	Errored int64 `json:"errored"`
}

// HandleCompleteImport applies the terminal completed transition.
func (h *ImportHandlers) HandleCompleteImport(w http.ResponseWriter, r *http.Request) {
	h.finishImport(w, r, domain.ImportCompleted)
}

// HandleFailImport applies the terminal failed transition.
func (h *ImportHandlers) HandleFailImport(w http.ResponseWriter, r *http.Request) {
	h.finishImport(w, r, domain.ImportFailed)
}

func (h *ImportHandlers) finishImport(w http.ResponseWriter, r *http.Request, terminal domain.ImportStatus) {
	importID := chi.URLParam(r, "importID")
	if _, err := uuid.Parse(importID); err != nil {
		httputil.BadRequest(w, "invalid import id")
		return
	}
	siteID := chi.URLParam(r, "siteID")

	// The body is optional: fail signals usually carry nothing. The errored
	// tally rides along with the transition so a re-delivered signal cannot
	// count it twice.
	var req completeRequest
	if r.ContentLength > 0 {
		if !httputil.Decode(w, r, &req) {
			return
		}
	}

	var err error
	if terminal == domain.ImportCompleted {
		err = h.svc.Complete(r.Context(), siteID, importID, req.Errored)
	} else {
		err = h.svc.Fail(r.Context(), siteID, importID, req.Errored)
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if rec, getErr := h.svc.Get(r.Context(), siteID, importID); getErr == nil {
		h.snapshotProgress(r.Context(), rec)
	}
	httputil.OK(w, map[string]string{"message": "import " + string(terminal)})
}

// HandleDeleteImport removes a terminal import and all of its events.
// Requires site administrator access (enforced by requireAdmin).
func (h *ImportHandlers) HandleDeleteImport(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")
	if _, err := uuid.Parse(importID); err != nil {
		httputil.BadRequest(w, "invalid import id")
		return
	}

	siteID := chi.URLParam(r, "siteID")
	if err := h.svc.Delete(r.Context(), siteID, importID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"message": "import deleted"})
}

func (h *ImportHandlers) loadImport(w http.ResponseWriter, r *http.Request) (*domain.ImportRecord, bool) {
	importID := chi.URLParam(r, "importID")
	if _, err := uuid.Parse(importID); err != nil {
		httputil.BadRequest(w, "invalid import id")
		return nil, false
	}

	rec, err := h.svc.Get(r.Context(), chi.URLParam(r, "siteID"), importID)
	if err != nil {
		h.writeServiceError(w, err)
		return nil, false
	}
	return rec, true
}

// writeServiceError maps importjob sentinels onto status codes.
func (h *ImportHandlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, importjob.ErrNotFound):
		httputil.NotFound(w, "import not found")
	case errors.Is(err, importjob.ErrWrongSite):
		httputil.Forbidden(w, "import belongs to a different site")
	case errors.Is(err, importjob.ErrImportActive):
		httputil.BadRequest(w, "cannot delete active import")
	case errors.Is(err, importjob.ErrAlreadyTerminal):
		httputil.BadRequest(w, "import already finished")
	case errors.Is(err, importjob.ErrInvalidWindow):
		httputil.BadRequest(w, "invalid import window for subscription tier")
	default:
		httputil.InternalError(w, err)
	}
}

// snapshotProgress refreshes the Redis progress cache. Best effort: cache
// misses fall back to the record store on read.
func (h *ImportHandlers) snapshotProgress(ctx context.Context, rec *domain.ImportRecord) {
	if err := h.progress.Set(ctx, progressFromRecord(rec)); err != nil {
		log.Printf("[ImportAPI] Failed to cache progress for %s: %v", rec.ID, err)
	}
}

func progressFromRecord(rec *domain.ImportRecord) *ImportProgress {
	return &ImportProgress{
		ImportID: rec.ID,
		Status:   string(rec.Status),
		Parsed:   rec.ParsedCount,
		Skipped:  rec.SkippedCount,
		Errored:  rec.ErroredCount,
	}
}
