package handler

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// StatusHandler reports how the process is running.
type StatusHandler struct {
	mode      string
	account   common.Address
	startedAt time.Time
}

func NewStatusHandler(mode string, account common.Address, startedAt time.Time) *StatusHandler {
	return &StatusHandler{mode: mode, account: account, startedAt: startedAt}
}

// GET /api/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"account":        h.account.Hex(),
		"started_at":     h.startedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
