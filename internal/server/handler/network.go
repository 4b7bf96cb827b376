package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// NetworkChecker produces the wrong-network advisory.
type NetworkChecker interface {
	Check(ctx context.Context) (string, error)
}

type NetworkHandler struct {
	checker NetworkChecker
	logger  *slog.Logger
}

func NewNetworkHandler(checker NetworkChecker, logger *slog.Logger) *NetworkHandler {
	return &NetworkHandler{checker: checker, logger: logger}
}

// Network returns {"ok":true} on the expected network and the advisory
// otherwise.
// GET /api/network
func (h *NetworkHandler) Network(w http.ResponseWriter, r *http.Request) {
	advisory, err := h.checker.Check(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       advisory == "",
		"advisory": advisory,
	})
}
