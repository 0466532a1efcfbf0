package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireAdmin(t *testing.T) {
	handlerCalled := false
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		token      string
		header     string
		wantStatus int
		wantCalled bool
	}{
		{"valid token", "s3cret", "Bearer s3cret", http.StatusOK, true},
		{"wrong token", "s3cret", "Bearer nope", http.StatusUnauthorized, false},
		{"missing header", "s3cret", "", http.StatusUnauthorized, false},
		{"not bearer", "s3cret", "s3cret", http.StatusUnauthorized, false},
		{"admin disabled", "", "Bearer ", http.StatusForbidden, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlerCalled = false
			w := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/api/v1/catalog", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			RequireAdmin(tt.token)(testHandler).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
			if handlerCalled != tt.wantCalled {
				t.Errorf("handler called = %v, want %v", handlerCalled, tt.wantCalled)
			}
		})
	}
}

func TestRequireWallet(t *testing.T) {
	var seen string
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetWalletFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	protected := RequireWallet()(testHandler)

	t.Run("checksums the address", func(t *testing.T) {
		seen = ""
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/v1/records", nil)
		req.Header.Set(WalletHeader, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")

		protected.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		if seen != "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed" {
			t.Errorf("wallet = %s", seen)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/records", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("invalid address", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/v1/records", nil)
		req.Header.Set(WalletHeader, "0x1234")
		protected.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

func TestGetWalletFromContext(t *testing.T) {
	ctx := SetWalletInContext(context.Background(), "0xabc")
	if got := GetWalletFromContext(ctx); got != "0xabc" {
		t.Errorf("wallet = %s, want 0xabc", got)
	}
	if got := GetWalletFromContext(context.Background()); got != "" {
		t.Errorf("expected empty wallet, got %s", got)
	}
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := CORS("https://app.example.com, https://other.example.com")(next)

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"https://app.example.com", true},
		{"https://other.example.com", true},
		{"http://localhost:5173", true},
		{"https://evil.example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		h.ServeHTTP(w, req)

		got := w.Header().Get("Access-Control-Allow-Origin")
		if tt.allowed && got != tt.origin {
			t.Errorf("origin %q: expected to be allowed, got %q", tt.origin, got)
		}
		if !tt.allowed && got != "" {
			t.Errorf("origin %q: expected no CORS header, got %q", tt.origin, got)
		}
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/", nil))
	if w.Code != http.StatusOK {
		t.Errorf("preflight status = %d, want 200", w.Code)
	}
}
