package verification

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kozaktomas/identity-matcher/internal/database"
	"github.com/kozaktomas/identity-matcher/internal/fingerprint"
	"github.com/kozaktomas/identity-matcher/internal/ledger"
	"github.com/kozaktomas/identity-matcher/internal/metrics"
)

// ErrNoOutcome is returned when an address has no completed attempt to register.
var ErrNoOutcome = errors.New("no verification outcome to register")

// Ledger is the part of *ledger.Client the registrar needs.
type Ledger interface {
	WalletAddress() (common.Address, bool)
	ChainID(ctx context.Context) (int64, error)
	RequiredChainID() int64
	RegisterIdentity(ctx context.Context, profileID int64, hashedURL, contentID string, score float64) (*ledger.Receipt, error)
}

// Registrar commits matched outcomes to the ledger.
type Registrar struct {
	ledger     Ledger
	hasher     *fingerprint.Hasher
	contentURL ContentURLFunc
	audit      database.RegistrationStore
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewRegistrar(l Ledger, hasher *fingerprint.Hasher, contentURL ContentURLFunc, audit database.RegistrationStore, m *metrics.Metrics, logger *slog.Logger) *Registrar {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{ledger: l, hasher: hasher, contentURL: contentURL, audit: audit, metrics: m, logger: logger}
}

// Preconditions gathers the state Register checks before committing.
func (r *Registrar) Preconditions(ctx context.Context, userAddress string, outcome Outcome) (ledger.Preconditions, error) {
	wallet, connected := r.ledger.WalletAddress()
	p := ledger.Preconditions{
		WalletConnected: connected,
		WalletAddress:   wallet,
		UserAddress:     common.HexToAddress(userAddress),
		RequiredChainID: r.ledger.RequiredChainID(),
		IsMatch:         outcome.Judgement.IsMatch,
		MatchedProfile:  outcome.Judgement.MatchedProfile,
	}
	if !common.IsHexAddress(userAddress) {
		return p, ErrInvalidAddress
	}
	if connected {
		chainID, err := r.ledger.ChainID(ctx)
		if err != nil {
			return p, err
		}
		p.ChainID = chainID
	}
	return p, nil
}

// Register checks the preconditions and commits the outcome once. Rejections
// come back as *ledger.RejectionError with the ledger's reason. A failed
// audit insert after a successful commit is logged only.
func (r *Registrar) Register(ctx context.Context, userAddress string, outcome Outcome) (*ledger.Receipt, error) {
	ctx, span := tracer.Start(ctx, "verification.Register")
	defer span.End()

	pre, err := r.Preconditions(ctx, userAddress, outcome)
	if err != nil {
		r.metrics.ObserveRegistration("error")
		return nil, err
	}
	if err := pre.Check(); err != nil {
		r.metrics.ObserveRegistration("precondition_failed")
		return nil, err
	}

	profileID := *outcome.Judgement.MatchedProfile
	hashedURL := r.hasher.Hash(r.contentURL(outcome.ContentID))
	span.SetAttributes(attribute.Int64("profile_id", profileID))

	receipt, err := r.ledger.RegisterIdentity(ctx, profileID, hashedURL, outcome.ContentID, outcome.Judgement.MatchScore)
	if err != nil {
		span.RecordError(err)
		var rejection *ledger.RejectionError
		if errors.As(err, &rejection) {
			r.metrics.ObserveRegistration("rejected")
		} else {
			r.metrics.ObserveRegistration("error")
		}
		r.logger.Warn("identity registration failed", "user_address", userAddress, "profile_id", profileID, "error", err)
		return nil, err
	}
	r.metrics.ObserveRegistration("success")

	if r.audit != nil {
		reg := &database.Registration{
			UserAddress: userAddress,
			ProfileID:   profileID,
			HashedURL:   hashedURL,
			ContentID:   outcome.ContentID,
			MatchScore:  int(ledger.RoundScore(outcome.Judgement.MatchScore)),
			TxHash:      receipt.TxHash,
			BlockNumber: receipt.BlockNumber,
		}
		if err := r.audit.InsertRegistration(ctx, reg); err != nil {
			r.logger.Error("failed to store registration audit row", "tx", receipt.TxHash, "error", err)
		}
	}
	return receipt, nil
}
