package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/relaytaker/internal/domain"
)

// AuditLog lists audit entries newest first.
type AuditLog interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

type AuditHandler struct {
	log    AuditLog
	logger *slog.Logger
}

func NewAuditHandler(log AuditLog, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{log: log, logger: logger}
}

// List returns terminal fill events from the audit log.
// GET /api/audit?limit=50&offset=0
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.log.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), "failed to list audit entries")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
