package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/identity-matcher/internal/config"
	"github.com/kozaktomas/identity-matcher/internal/logging"
)

const testContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

// revertError mimics the JSON-RPC error returned for a reverted call.
type revertError struct {
	data string
}

func (e revertError) Error() string          { return "execution reverted" }
func (e revertError) ErrorData() interface{} { return e.data }

func revertWith(t *testing.T, reason string) revertError {
	t.Helper()
	stringTy, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: stringTy}}.Pack(reason)
	require.NoError(t, err)
	// Error(string) selector
	data := append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...)
	return revertError{data: hexutil.Encode(data)}
}

type fakeBackend struct {
	chainID       *big.Int
	outputs       map[string][]byte
	callErrs      map[string]error
	estimateErr   error
	receiptStatus uint64

	mu   sync.Mutex
	sent []*types.Transaction
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		chainID:       big.NewInt(314159),
		outputs:       map[string][]byte{},
		callErrs:      map[string]error{},
		receiptStatus: types.ReceiptStatusSuccessful,
	}
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method, err := registryABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	if err := f.callErrs[method.Name]; err != nil {
		return nil, err
	}
	return f.outputs[method.Name], nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(41), BaseFee: big.NewInt(100)}, nil
}

func (f *fakeBackend) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1000), nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(10), nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 120000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (f *fakeBackend) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("subscriptions not supported")
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{
		Status:      f.receiptStatus,
		TxHash:      hash,
		BlockNumber: big.NewInt(42),
		GasUsed:     98765,
	}, nil
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return f.chainID, nil
}

func newTestClient(t *testing.T, backend *fakeBackend, withKey bool) (*Client, common.Address) {
	t.Helper()
	cfg := config.LedgerConfig{
		ContractAddress: testContract,
		ChainID:         314159,
		ReceiptTimeout:  5 * time.Second,
	}
	var wallet common.Address
	if withKey {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		cfg.PrivateKey = hexutil.Encode(crypto.FromECDSA(key))
		wallet = crypto.PubkeyToAddress(key.PublicKey)
	}
	c, err := NewClient(backend, cfg, logging.Discard())
	require.NoError(t, err)
	return c, wallet
}

func TestNewClient_RequiresContractAddress(t *testing.T) {
	_, err := NewClient(newFakeBackend(), config.LedgerConfig{ContractAddress: "not-an-address"}, logging.Discard())
	assert.ErrorIs(t, err, ErrMissingContract)
}

func TestNewClient_InvalidKey(t *testing.T) {
	_, err := NewClient(newFakeBackend(), config.LedgerConfig{ContractAddress: testContract, PrivateKey: "0xzz"}, logging.Discard())
	assert.Error(t, err)
}

func TestRegisterIdentity_SendsRoundedScore(t *testing.T) {
	backend := newFakeBackend()
	c, wallet := newTestClient(t, backend, true)

	addr, ok := c.WalletAddress()
	require.True(t, ok)
	assert.Equal(t, wallet, addr)

	receipt, err := c.RegisterIdentity(context.Background(), 2, "abc123", "bafkreicid", 86.6)
	require.NoError(t, err)

	require.Len(t, backend.sent, 1)
	tx := backend.sent[0]
	assert.Equal(t, tx.Hash().Hex(), receipt.TxHash)
	assert.Equal(t, uint64(42), receipt.BlockNumber)
	assert.Equal(t, uint64(98765), receipt.GasUsed)
	assert.Equal(t, uint64(120000), tx.Gas())
	assert.Equal(t, common.HexToAddress(testContract), *tx.To())

	method, err := registryABI.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "registerIdentity", method.Name)

	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	require.Len(t, args, 4)
	assert.Equal(t, int64(2), args[0].(*big.Int).Int64())
	assert.Equal(t, "abc123", args[1])
	assert.Equal(t, "bafkreicid", args[2])
	assert.Equal(t, int64(87), args[3].(*big.Int).Int64())
}

func TestRegisterIdentity_NoWallet(t *testing.T) {
	backend := newFakeBackend()
	c, _ := newTestClient(t, backend, false)

	_, err := c.RegisterIdentity(context.Background(), 1, "h", "cid", 90)

	assert.ErrorIs(t, err, ErrWalletNotConnected)
	assert.Empty(t, backend.sent)
}

func TestRegisterIdentity_RejectedBeforeBroadcast(t *testing.T) {
	backend := newFakeBackend()
	backend.estimateErr = revertWith(t, "Identity already registered for this address")
	c, _ := newTestClient(t, backend, true)

	_, err := c.RegisterIdentity(context.Background(), 1, "h", "cid", 90)

	var rejection *RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, "Identity already registered for this address", err.Error())
	assert.Empty(t, rejection.TxHash)
	assert.Empty(t, backend.sent)
}

func TestRegisterIdentity_PlainErrorKeepsMessage(t *testing.T) {
	backend := newFakeBackend()
	backend.estimateErr = errors.New("insufficient funds for gas * price + value")
	c, _ := newTestClient(t, backend, true)

	_, err := c.RegisterIdentity(context.Background(), 1, "h", "cid", 90)

	var rejection *RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, "insufficient funds for gas * price + value", rejection.Reason)
}

func TestRegisterIdentity_RevertedReceipt(t *testing.T) {
	backend := newFakeBackend()
	backend.receiptStatus = types.ReceiptStatusFailed
	backend.callErrs["registerIdentity"] = revertWith(t, "Profile already claimed")
	c, _ := newTestClient(t, backend, true)

	_, err := c.RegisterIdentity(context.Background(), 3, "h", "cid", 75)

	var rejection *RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, "Profile already claimed", rejection.Reason)
	require.Len(t, backend.sent, 1)
	assert.Equal(t, backend.sent[0].Hash().Hex(), rejection.TxHash)
}

func TestIdentityOf(t *testing.T) {
	backend := newFakeBackend()
	packed, err := registryABI.Methods["getIdentity"].Outputs.Pack(identityTuple{
		ProfileId:  big.NewInt(2),
		HashedUrl:  "deadbeef",
		IpfsCid:    "bafkreicid",
		MatchScore: big.NewInt(87),
		Timestamp:  big.NewInt(1700000000),
	})
	require.NoError(t, err)
	backend.outputs["getIdentity"] = packed
	c, _ := newTestClient(t, backend, false)

	entry, err := c.IdentityOf(context.Background(), common.HexToAddress("0x1111111111111111111111111111111111111111"))
	require.NoError(t, err)

	assert.True(t, entry.Registered())
	assert.Equal(t, int64(2), entry.ProfileID)
	assert.Equal(t, "deadbeef", entry.HashedURL)
	assert.Equal(t, "bafkreicid", entry.ContentID)
	assert.Equal(t, uint64(87), entry.MatchScore)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), entry.Timestamp)
}

func TestIdentityByProfile_Unregistered(t *testing.T) {
	backend := newFakeBackend()
	packed, err := registryABI.Methods["getIdentityByProfile"].Outputs.Pack(identityTuple{
		ProfileId:  big.NewInt(0),
		MatchScore: big.NewInt(0),
		Timestamp:  big.NewInt(0),
	})
	require.NoError(t, err)
	backend.outputs["getIdentityByProfile"] = packed
	c, _ := newTestClient(t, backend, false)

	entry, err := c.IdentityByProfile(context.Background(), 9)
	require.NoError(t, err)
	assert.False(t, entry.Registered())
	assert.True(t, entry.Timestamp.IsZero())
}

func TestAdminAndReferenceImagesStorage(t *testing.T) {
	backend := newFakeBackend()
	admin := common.HexToAddress("0x2222222222222222222222222222222222222222")

	packedAdmin, err := registryABI.Methods["admin"].Outputs.Pack(admin)
	require.NoError(t, err)
	packedStorage, err := registryABI.Methods["referenceImagesStorage"].Outputs.Pack("bafkreisnapshot")
	require.NoError(t, err)
	backend.outputs["admin"] = packedAdmin
	backend.outputs["referenceImagesStorage"] = packedStorage
	c, _ := newTestClient(t, backend, false)

	gotAdmin, err := c.Admin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, admin, gotAdmin)

	cid, err := c.ReferenceImagesStorage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bafkreisnapshot", cid)
}

func TestSetReferenceImages(t *testing.T) {
	backend := newFakeBackend()
	c, _ := newTestClient(t, backend, true)

	_, err := c.SetReferenceImages(context.Background(), "bafkreisnapshot")
	require.NoError(t, err)

	require.Len(t, backend.sent, 1)
	args, err := registryABI.Methods["setReferenceImages"].Inputs.Unpack(backend.sent[0].Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, "bafkreisnapshot", args[0])
}

func TestRoundScore(t *testing.T) {
	assert.Equal(t, uint64(87), RoundScore(86.5))
	assert.Equal(t, uint64(86), RoundScore(86.49))
	assert.Equal(t, uint64(0), RoundScore(-3))
	assert.Equal(t, uint64(100), RoundScore(100))
}

func TestPreconditions(t *testing.T) {
	wallet := common.HexToAddress("0x1111111111111111111111111111111111111111")
	other := common.HexToAddress("0x3333333333333333333333333333333333333333")
	profile := int64(2)
	zero := int64(0)

	valid := Preconditions{
		WalletConnected: true,
		WalletAddress:   wallet,
		UserAddress:     wallet,
		ChainID:         314159,
		RequiredChainID: 314159,
		IsMatch:         true,
		MatchedProfile:  &profile,
	}
	require.NoError(t, valid.Check())

	tests := []struct {
		name   string
		modify func(p *Preconditions)
		want   error
	}{
		{"not connected", func(p *Preconditions) { p.WalletConnected = false }, ErrWalletNotConnected},
		{"other wallet", func(p *Preconditions) { p.UserAddress = other }, ErrWalletMismatch},
		{"wrong network", func(p *Preconditions) { p.ChainID = 1 }, ErrWrongNetwork},
		{"no match", func(p *Preconditions) { p.IsMatch = false }, ErrNotMatched},
		{"missing profile", func(p *Preconditions) { p.MatchedProfile = nil }, ErrNoMatchedProfile},
		{"zero profile", func(p *Preconditions) { p.MatchedProfile = &zero }, ErrNoMatchedProfile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.modify(&p)
			assert.ErrorIs(t, p.Check(), tt.want)
		})
	}
}
