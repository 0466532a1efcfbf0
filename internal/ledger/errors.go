package ledger

import (
	"errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	ErrWalletNotConnected = errors.New("wallet not connected")
	ErrWalletMismatch     = errors.New("connected wallet does not match the verified address")
	ErrWrongNetwork       = errors.New("wallet is connected to the wrong network")
	ErrNotMatched         = errors.New("verification did not produce a match")
	ErrNoMatchedProfile   = errors.New("verification has no matched profile")
)

// RejectionError is returned when the ledger refuses a state-changing call.
// Error returns the ledger's reason unchanged so it can be shown to the user.
type RejectionError struct {
	Reason string
	TxHash string // empty when the call was refused before broadcast
	Err    error
}

func (e *RejectionError) Error() string {
	return e.Reason
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}

func reject(err error, txHash string) *RejectionError {
	return &RejectionError{Reason: revertReason(err), TxHash: txHash, Err: err}
}

// revertReason decodes an Error(string) payload carried by an RPC error.
// Anything else falls back to the error text.
func revertReason(err error) string {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if hexData, ok := dataErr.ErrorData().(string); ok {
			if data, decodeErr := hexutil.Decode(hexData); decodeErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason
				}
			}
		}
	}
	return err.Error()
}
