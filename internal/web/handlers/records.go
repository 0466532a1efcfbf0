package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kozaktomas/identity-matcher/internal/database"
	"github.com/kozaktomas/identity-matcher/internal/web/middleware"
)

const defaultRecordsLimit = 50

// RecordsHandler lists verification records for the calling wallet.
type RecordsHandler struct {
	records database.RecordReader
	logger  *slog.Logger
}

func NewRecordsHandler(records database.RecordReader, logger *slog.Logger) *RecordsHandler {
	return &RecordsHandler{records: records, logger: logger}
}

// List handles GET /records?limit=N, newest first.
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	wallet := middleware.GetWalletFromContext(r.Context())

	limit := defaultRecordsLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := h.records.ListVerificationRecords(r.Context(), wallet, limit)
	if err != nil {
		h.logger.Error("failed to list verification records", "user_address", wallet, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list verification records")
		return
	}
	if records == nil {
		records = []database.VerificationRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_address": wallet,
		"records":      records,
	})
}
