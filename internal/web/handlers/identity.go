package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/identity-matcher/internal/ledger"
)

// IdentityReader reads registered identities. *ledger.Client implements it.
type IdentityReader interface {
	IdentityOf(ctx context.Context, user common.Address) (*ledger.Entry, error)
	IdentityByProfile(ctx context.Context, profileID int64) (*ledger.Entry, error)
}

// IdentityHandler exposes ledger identity lookups.
type IdentityHandler struct {
	ledger IdentityReader
	logger *slog.Logger
}

func NewIdentityHandler(l IdentityReader, logger *slog.Logger) *IdentityHandler {
	return &IdentityHandler{ledger: l, logger: logger}
}

// ByAddress handles GET /identities/{address}.
func (h *IdentityHandler) ByAddress(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		respondError(w, http.StatusServiceUnavailable, "ledger is not configured")
		return
	}
	address := chi.URLParam(r, "address")
	if !common.IsHexAddress(address) {
		respondError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}
	entry, err := h.ledger.IdentityOf(r.Context(), common.HexToAddress(address))
	h.respondEntry(w, entry, err)
}

// ByProfile handles GET /profiles/{id}/identity.
func (h *IdentityHandler) ByProfile(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		respondError(w, http.StatusServiceUnavailable, "ledger is not configured")
		return
	}
	profileID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || profileID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid profile id")
		return
	}
	entry, err := h.ledger.IdentityByProfile(r.Context(), profileID)
	h.respondEntry(w, entry, err)
}

func (h *IdentityHandler) respondEntry(w http.ResponseWriter, entry *ledger.Entry, err error) {
	if err != nil {
		h.logger.Error("ledger read failed", "error", err)
		respondError(w, http.StatusBadGateway, "failed to read from ledger")
		return
	}
	if !entry.Registered() {
		respondError(w, http.StatusNotFound, "identity not registered")
		return
	}
	respondJSON(w, http.StatusOK, entry)
}
