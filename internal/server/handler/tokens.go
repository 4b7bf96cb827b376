package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// SymbolResolver maps a token address to its display symbol.
type SymbolResolver interface {
	ResolveSymbol(ctx context.Context, addr common.Address) (string, bool, error)
}

type TokensHandler struct {
	resolver SymbolResolver
	logger   *slog.Logger
}

func NewTokensHandler(resolver SymbolResolver, logger *slog.Logger) *TokensHandler {
	return &TokensHandler{resolver: resolver, logger: logger}
}

// Symbol returns the display symbol of a token; the wrapped-currency token
// reads as ETH.
// GET /api/tokens/{address}/symbol
func (h *TokensHandler) Symbol(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("address")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid token address")
		return
	}
	addr := common.HexToAddress(raw)

	symbol, found, err := h.resolver.ResolveSymbol(r.Context(), addr)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: resolve symbol failed",
			slog.String("address", addr.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, statusFor(err), err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "unknown token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": addr.Hex(), "symbol": symbol})
}
