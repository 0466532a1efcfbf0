package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kozaktomas/identity-matcher/internal/ledger"
	"github.com/kozaktomas/identity-matcher/internal/verification"
	"github.com/kozaktomas/identity-matcher/internal/web/middleware"
)

// Registrar commits an outcome to the ledger. *verification.Registrar implements it.
type Registrar interface {
	Register(ctx context.Context, userAddress string, outcome verification.Outcome) (*ledger.Receipt, error)
}

// RegisterHandler commits the caller's latest matched outcome.
type RegisterHandler struct {
	registrar Registrar
	attempts  *verification.Attempts
	logger    *slog.Logger
}

// NewRegisterHandler creates a new register handler. A nil registrar means
// the ledger is not configured.
func NewRegisterHandler(registrar Registrar, attempts *verification.Attempts, logger *slog.Logger) *RegisterHandler {
	return &RegisterHandler{registrar: registrar, attempts: attempts, logger: logger}
}

// Register handles POST /register.
func (h *RegisterHandler) Register(w http.ResponseWriter, r *http.Request) {
	if h.registrar == nil {
		respondError(w, http.StatusServiceUnavailable, "ledger is not configured")
		return
	}
	wallet := middleware.GetWalletFromContext(r.Context())

	attemptID, outcome, ok := h.attempts.LatestAttempt(wallet)
	if !ok {
		respondError(w, http.StatusConflict, verification.ErrNoOutcome.Error())
		return
	}

	receipt, err := h.registrar.Register(r.Context(), wallet, *outcome)
	if err != nil {
		status := registrationErrorStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("registration failed", "user_address", wallet, "error", err)
		}
		respondError(w, status, err.Error())
		return
	}

	h.attempts.Forget(wallet, attemptID)
	respondJSON(w, http.StatusOK, map[string]any{
		"registered":   true,
		"user_address": wallet,
		"profile_id":   *outcome.Judgement.MatchedProfile,
		"receipt":      receipt,
	})
}

func registrationErrorStatus(err error) int {
	var rejection *ledger.RejectionError
	switch {
	case errors.As(err, &rejection):
		return http.StatusBadGateway
	case errors.Is(err, verification.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotMatched), errors.Is(err, ledger.ErrNoMatchedProfile):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrWalletNotConnected),
		errors.Is(err, ledger.ErrWalletMismatch),
		errors.Is(err, ledger.ErrWrongNetwork):
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}
