// Package ledger talks to the IdentityRegistry contract over JSON-RPC.
package ledger

import (
	"context"
	"crypto/ecdsa"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kozaktomas/identity-matcher/internal/config"
)

//go:embed registry.abi.json
var registryABIJSON string

var registryABI = mustParseABI(registryABIJSON)

var tracer = otel.Tracer("identity-matcher/ledger")

var ErrMissingContract = errors.New("ledger contract address not configured")

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		// embedded at build time, so this only fires on a broken release
		panic("failed to parse embedded registry ABI: " + err.Error())
	}
	return parsed
}

// Backend is the subset of an RPC client the registry needs.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// Entry is an identity as stored on the ledger.
type Entry struct {
	ProfileID  int64     `json:"profile_id"`
	HashedURL  string    `json:"hashed_url"`
	ContentID  string    `json:"content_id"`
	MatchScore uint64    `json:"match_score"`
	Timestamp  time.Time `json:"timestamp"`
}

// Registered reports whether the entry holds an identity. The contract
// returns a zero struct for unknown keys.
func (e *Entry) Registered() bool {
	return e.ProfileID != 0
}

// identityTuple mirrors the ABI tuple so abi.ConvertType can fill it.
type identityTuple struct {
	ProfileId  *big.Int
	HashedUrl  string
	IpfsCid    string
	MatchScore *big.Int
	Timestamp  *big.Int
}

func (t *identityTuple) entry() *Entry {
	e := &Entry{HashedURL: t.HashedUrl, ContentID: t.IpfsCid}
	if t.ProfileId != nil {
		e.ProfileID = t.ProfileId.Int64()
	}
	if t.MatchScore != nil {
		e.MatchScore = t.MatchScore.Uint64()
	}
	if t.Timestamp != nil && t.Timestamp.Sign() > 0 {
		e.Timestamp = time.Unix(t.Timestamp.Int64(), 0).UTC()
	}
	return e
}

// Receipt summarizes a mined transaction.
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	GasUsed     uint64 `json:"gas_used"`
}

type Client struct {
	backend        Backend
	contract       *bind.BoundContract
	address        common.Address
	key            *ecdsa.PrivateKey
	wallet         common.Address
	requiredChain  int64
	receiptTimeout time.Duration
	logger         *slog.Logger
	closeFn        func()
}

// Dial connects to cfg.RPCURL and binds the registry contract.
func Dial(ctx context.Context, cfg config.LedgerConfig, logger *slog.Logger) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, errors.New("ledger RPC URL not configured")
	}
	rpcClient, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger RPC: %w", err)
	}
	c, err := NewClient(rpcClient, cfg, logger)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}
	c.closeFn = rpcClient.Close
	return c, nil
}

// NewClient binds the registry on an existing backend. An empty private key
// yields a read-only client.
func NewClient(backend Backend, cfg config.LedgerConfig, logger *slog.Logger) (*Client, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, ErrMissingContract
	}
	if logger == nil {
		logger = slog.Default()
	}

	address := common.HexToAddress(cfg.ContractAddress)
	c := &Client{
		backend:        backend,
		contract:       bind.NewBoundContract(address, registryABI, backend, backend, backend),
		address:        address,
		requiredChain:  cfg.ChainID,
		receiptTimeout: cfg.ReceiptTimeout,
		logger:         logger.With("contract", address.Hex()),
	}

	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid ledger private key: %w", err)
		}
		c.key = key
		c.wallet = crypto.PubkeyToAddress(key.PublicKey)
	}
	return c, nil
}

func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

func (c *Client) ContractAddress() common.Address {
	return c.address
}

// RequiredChainID is the network registrations must be sent to.
func (c *Client) RequiredChainID() int64 {
	return c.requiredChain
}

// WalletAddress returns the signing address and whether a wallet is connected.
func (c *Client) WalletAddress() (common.Address, bool) {
	return c.wallet, c.key != nil
}

// ChainID asks the RPC endpoint which network it serves.
func (c *Client) ChainID(ctx context.Context) (int64, error) {
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to query chain id: %w", err)
	}
	return id.Int64(), nil
}

// RoundScore converts an oracle score to the integer stored on the ledger.
func RoundScore(score float64) uint64 {
	if score <= 0 || math.IsNaN(score) {
		return 0
	}
	return uint64(math.Round(score))
}

// RegisterIdentity commits an identity for the connected wallet and waits for
// it to be mined. It is never retried: a rejection comes back as
// *RejectionError carrying the ledger's reason.
func (c *Client) RegisterIdentity(ctx context.Context, profileID int64, hashedURL, contentID string, score float64) (*Receipt, error) {
	ctx, span := tracer.Start(ctx, "ledger.RegisterIdentity")
	defer span.End()
	span.SetAttributes(attribute.Int64("profile_id", profileID))

	rounded := RoundScore(score)
	receipt, err := c.transact(ctx, "registerIdentity",
		big.NewInt(profileID), hashedURL, contentID, new(big.Int).SetUint64(rounded))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	c.logger.Info("identity registered",
		"profile_id", profileID,
		"match_score", rounded,
		"tx", receipt.TxHash,
		"block", receipt.BlockNumber)
	return receipt, nil
}

// SetReferenceImages points the contract at a published catalog snapshot.
// The contract only accepts this from its admin.
func (c *Client) SetReferenceImages(ctx context.Context, contentID string) (*Receipt, error) {
	ctx, span := tracer.Start(ctx, "ledger.SetReferenceImages")
	defer span.End()

	receipt, err := c.transact(ctx, "setReferenceImages", contentID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	c.logger.Info("reference images published", "content_id", contentID, "tx", receipt.TxHash)
	return receipt, nil
}

func (c *Client) transact(ctx context.Context, method string, args ...interface{}) (*Receipt, error) {
	if c.key == nil {
		return nil, ErrWalletNotConnected
	}

	chainID, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query chain id: %w", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx

	input, err := registryABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", method, err)
	}

	// Estimating up front surfaces the contract's revert reason before
	// anything is broadcast.
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From: c.wallet,
		To:   &c.address,
		Data: input,
	})
	if err != nil {
		return nil, reject(err, "")
	}
	opts.GasLimit = gas

	tx, err := c.contract.Transact(opts, method, args...)
	if err != nil {
		return nil, reject(err, "")
	}
	c.logger.Debug("transaction sent", "method", method, "tx", tx.Hash().Hex())

	waitCtx := ctx
	if c.receiptTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.receiptTimeout)
		defer cancel()
	}
	receipt, err := bind.WaitMined(waitCtx, c.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for transaction %s: %w", tx.Hash().Hex(), err)
	}

	if receipt.Status == types.ReceiptStatusFailed {
		return nil, c.replayRevert(ctx, tx, receipt)
	}

	return &Receipt{
		TxHash:      tx.Hash().Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}

// replayRevert re-executes a reverted transaction at its block to recover
// the reason, which receipts do not carry.
func (c *Client) replayRevert(ctx context.Context, tx *types.Transaction, receipt *types.Receipt) error {
	txHash := tx.Hash().Hex()
	_, err := c.backend.CallContract(ctx, ethereum.CallMsg{
		From:  c.wallet,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}, receipt.BlockNumber)
	if err != nil {
		return reject(err, txHash)
	}
	return &RejectionError{Reason: "transaction reverted", TxHash: txHash}
}

// IdentityOf reads the identity registered by a wallet.
func (c *Client) IdentityOf(ctx context.Context, user common.Address) (*Entry, error) {
	return c.readIdentity(ctx, "getIdentity", user)
}

// IdentityByProfile reads the identity registered for a profile.
func (c *Client) IdentityByProfile(ctx context.Context, profileID int64) (*Entry, error) {
	return c.readIdentity(ctx, "getIdentityByProfile", big.NewInt(profileID))
}

func (c *Client) readIdentity(ctx context.Context, method string, arg interface{}) (*Entry, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, arg); err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unexpected %s output: %d values", method, len(out))
	}
	tuple := *abi.ConvertType(out[0], new(identityTuple)).(*identityTuple)
	return tuple.entry(), nil
}

// Admin returns the contract administrator.
func (c *Client) Admin(ctx context.Context) (common.Address, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "admin"); err != nil {
		return common.Address{}, fmt.Errorf("failed to call admin: %w", err)
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// ReferenceImagesStorage returns the content id of the published catalog snapshot.
func (c *Client) ReferenceImagesStorage(ctx context.Context) (string, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "referenceImagesStorage"); err != nil {
		return "", fmt.Errorf("failed to call referenceImagesStorage: %w", err)
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}
