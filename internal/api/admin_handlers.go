package api

import (
	"context"
	"net/http"

	"github.com/ignite/analytics-import/internal/pkg/httputil"
	"github.com/ignite/analytics-import/internal/worker"
)

// Reclaimer is the manual-trigger surface of the reclamation worker.
type Reclaimer interface {
	TriggerNow(ctx context.Context) worker.RunStats
}

// AdminHandlers exposes operational endpoints. These sit behind a static
// operator token, not site-scoped auth.
type AdminHandlers struct {
	reclaimer Reclaimer
	opsToken  string
}

// NewAdminHandlers creates the admin HTTP handlers.
func NewAdminHandlers(reclaimer Reclaimer, opsToken string) *AdminHandlers {
	return &AdminHandlers{reclaimer: reclaimer, opsToken: opsToken}
}

// HandleRunReclamation triggers one reclamation pass and returns its
// aggregate counts. Shares the exact logic of the scheduled run.
func (h *AdminHandlers) HandleRunReclamation(w http.ResponseWriter, r *http.Request) {
	if h.opsToken == "" || bearerToken(r) != h.opsToken {
		httputil.Forbidden(w, "operator access required")
		return
	}
	stats := h.reclaimer.TriggerNow(r.Context())
	httputil.OK(w, stats)
}
