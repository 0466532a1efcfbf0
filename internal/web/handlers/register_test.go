package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/identity-matcher/internal/ai"
	"github.com/kozaktomas/identity-matcher/internal/ledger"
	"github.com/kozaktomas/identity-matcher/internal/verification"
)

type stubRegistrar struct {
	receipt *ledger.Receipt
	err     error
	calls   int

	onRegister func()
}

func (s *stubRegistrar) Register(ctx context.Context, userAddress string, outcome verification.Outcome) (*ledger.Receipt, error) {
	s.calls++
	if s.onRegister != nil {
		s.onRegister()
	}
	return s.receipt, s.err
}

func attemptsWithOutcome(t *testing.T) *verification.Attempts {
	t.Helper()
	attempts := verification.NewAttempts(time.Minute)
	id := attempts.Begin(testWallet)
	outcome := verification.Outcome{
		Judgement:    ai.Judgement{MatchScore: 87, Confidence: 90, IsMatch: true, MatchedProfile: profile(42)},
		ContentID:    "bafy-candidate",
		CandidateURL: "https://gw.example.com/ipfs/bafy-candidate",
	}
	if !attempts.Complete(testWallet, id, outcome) {
		t.Fatal("expected attempt to complete")
	}
	return attempts
}

func postRegister(h *RegisterHandler) *httptest.ResponseRecorder {
	req := requestWithWallet(httptest.NewRequest("POST", "/api/v1/register", nil), testWallet)
	recorder := httptest.NewRecorder()
	h.Register(recorder, req)
	return recorder
}

func TestRegisterHandler_Success(t *testing.T) {
	registrar := &stubRegistrar{receipt: &ledger.Receipt{TxHash: "0xabc", BlockNumber: 12, GasUsed: 21000}}
	attempts := attemptsWithOutcome(t)
	h := NewRegisterHandler(registrar, attempts, testLogger())

	recorder := postRegister(h)

	assertStatusCode(t, recorder, http.StatusOK)
	var resp struct {
		Registered bool           `json:"registered"`
		ProfileID  int64          `json:"profile_id"`
		Receipt    ledger.Receipt `json:"receipt"`
	}
	parseJSONResponse(t, recorder, &resp)
	if !resp.Registered || resp.ProfileID != 42 || resp.Receipt.TxHash != "0xabc" {
		t.Errorf("unexpected response %+v", resp)
	}
	if _, ok := attempts.Latest(testWallet); ok {
		t.Error("expected the registered outcome to be forgotten")
	}
}

func TestRegisterHandler_SuccessKeepsNewerAttempt(t *testing.T) {
	attempts := attemptsWithOutcome(t)
	var newer string
	registrar := &stubRegistrar{
		receipt:    &ledger.Receipt{TxHash: "0xabc"},
		onRegister: func() { newer = attempts.Begin(testWallet) },
	}
	h := NewRegisterHandler(registrar, attempts, testLogger())

	recorder := postRegister(h)

	assertStatusCode(t, recorder, http.StatusOK)
	if !attempts.Current(testWallet, newer) {
		t.Error("expected the attempt started during registration to survive")
	}
	if !attempts.Complete(testWallet, newer, verification.Outcome{ContentID: "bafy-newer"}) {
		t.Error("expected the newer attempt to complete, not be superseded")
	}
}

func TestRegisterHandler_NoOutcome(t *testing.T) {
	registrar := &stubRegistrar{}
	h := NewRegisterHandler(registrar, verification.NewAttempts(time.Minute), testLogger())

	recorder := postRegister(h)

	assertStatusCode(t, recorder, http.StatusConflict)
	assertJSONError(t, recorder, verification.ErrNoOutcome.Error())
	if registrar.calls != 0 {
		t.Errorf("expected no registrar calls, got %d", registrar.calls)
	}
}

func TestRegisterHandler_LedgerNotConfigured(t *testing.T) {
	h := NewRegisterHandler(nil, attemptsWithOutcome(t), testLogger())

	recorder := postRegister(h)

	assertStatusCode(t, recorder, http.StatusServiceUnavailable)
	assertJSONError(t, recorder, "ledger is not configured")
}

func TestRegisterHandler_RejectionIsVerbatim(t *testing.T) {
	registrar := &stubRegistrar{err: &ledger.RejectionError{Reason: "Profile already registered", TxHash: "0xdef"}}
	attempts := attemptsWithOutcome(t)
	h := NewRegisterHandler(registrar, attempts, testLogger())

	recorder := postRegister(h)

	assertStatusCode(t, recorder, http.StatusBadGateway)
	assertJSONError(t, recorder, "Profile already registered")
	if _, ok := attempts.Latest(testWallet); !ok {
		t.Error("expected the outcome to be kept after a rejection")
	}
}

func TestRegistrationErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&ledger.RejectionError{Reason: "nope"}, http.StatusBadGateway},
		{fmt.Errorf("wrapped: %w", &ledger.RejectionError{Reason: "nope"}), http.StatusBadGateway},
		{verification.ErrInvalidAddress, http.StatusBadRequest},
		{ledger.ErrNotMatched, http.StatusConflict},
		{ledger.ErrNoMatchedProfile, http.StatusConflict},
		{ledger.ErrWalletNotConnected, http.StatusPreconditionFailed},
		{ledger.ErrWalletMismatch, http.StatusPreconditionFailed},
		{ledger.ErrWrongNetwork, http.StatusPreconditionFailed},
		{errors.New("dial tcp: connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := registrationErrorStatus(tt.err); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
