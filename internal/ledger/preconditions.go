package ledger

import "github.com/ethereum/go-ethereum/common"

// Preconditions are checked by the caller before any state-changing call.
type Preconditions struct {
	WalletConnected bool
	WalletAddress   common.Address
	UserAddress     common.Address
	ChainID         int64
	RequiredChainID int64
	IsMatch         bool
	MatchedProfile  *int64
}

// Check returns the first violated precondition, in the order a user would fix them.
func (p Preconditions) Check() error {
	switch {
	case !p.WalletConnected:
		return ErrWalletNotConnected
	case p.WalletAddress != p.UserAddress:
		return ErrWalletMismatch
	case p.ChainID != p.RequiredChainID:
		return ErrWrongNetwork
	case !p.IsMatch:
		return ErrNotMatched
	case p.MatchedProfile == nil || *p.MatchedProfile <= 0:
		return ErrNoMatchedProfile
	}
	return nil
}
