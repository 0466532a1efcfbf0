package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kozaktomas/identity-matcher/internal/health"
)

// errInvalidRequestBody is a shared error message for invalid request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// HealthHandler answers liveness probes and, with ?deep=1, runs every
// integration check.
type HealthHandler struct {
	checker *health.Checker
}

func NewHealthHandler(checker *health.Checker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Get handles the health check endpoint.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("deep") == "" || h.checker == nil {
		respondJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
		return
	}

	checks := h.checker.Run(r.Context())
	status, code := "ok", http.StatusOK
	if !health.Healthy(checks) {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]any{
		"status": status,
		"checks": checks,
	})
}
