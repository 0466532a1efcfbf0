package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

type contextKey string

const walletContextKey contextKey = "wallet"

// WalletHeader carries the caller's wallet address.
const WalletHeader = "X-Wallet-Address"

// RequireAdmin is middleware that requires the admin bearer token.
// An empty token disables every admin route.
func RequireAdmin(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				http.Error(w, `{"error": "admin access is not configured"}`, http.StatusForbidden)
				return
			}
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireWallet is middleware that requires a valid wallet address header
// and stores its checksummed form in the request context.
func RequireWallet() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			address := strings.TrimSpace(r.Header.Get(WalletHeader))
			if address == "" {
				http.Error(w, `{"error": "wallet address header is required"}`, http.StatusUnauthorized)
				return
			}
			if !common.IsHexAddress(address) {
				http.Error(w, `{"error": "invalid wallet address"}`, http.StatusBadRequest)
				return
			}
			ctx := SetWalletInContext(r.Context(), common.HexToAddress(address).Hex())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetWalletFromContext retrieves the wallet address from the request context.
func GetWalletFromContext(ctx context.Context) string {
	address, _ := ctx.Value(walletContextKey).(string)
	return address
}

// SetWalletInContext adds a wallet address to the context.
// This is primarily for testing - use RequireWallet middleware in production.
func SetWalletInContext(ctx context.Context, address string) context.Context {
	return context.WithValue(ctx, walletContextKey, address)
}
