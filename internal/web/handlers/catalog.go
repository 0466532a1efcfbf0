package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/kozaktomas/identity-matcher/internal/catalog"
	"github.com/kozaktomas/identity-matcher/internal/constants"
	"github.com/kozaktomas/identity-matcher/internal/database"
)

// CatalogService is the part of *catalog.Catalog the handler needs.
type CatalogService interface {
	List(ctx context.Context) ([]database.ReferenceImage, error)
	AddBatch(ctx context.Context, profileID int64, files []catalog.File, onResult func(done, total int, r catalog.BatchResult)) ([]catalog.BatchResult, error)
}

// CatalogHandler handles reference image endpoints.
type CatalogHandler struct {
	catalog CatalogService
	logger  *slog.Logger
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(c CatalogService, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: c, logger: logger}
}

// List returns every reference image ordered by profile id.
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	images, err := h.catalog.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list catalog", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list reference images")
		return
	}
	if images == nil {
		images = []database.ReferenceImage{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"images": images,
		"count":  len(images),
	})
}

// readUploadedFiles reads multipart files into memory.
func readUploadedFiles(files []*multipart.FileHeader) ([]catalog.File, error) {
	out := make([]catalog.File, 0, len(files))
	for _, fileHeader := range files {
		if err := func() error {
			file, err := fileHeader.Open()
			if err != nil {
				return fmt.Errorf("failed to open file: %s", sanitizeForLog(fileHeader.Filename))
			}
			defer file.Close()

			data, err := io.ReadAll(io.LimitReader(file, constants.MaxUploadSize+1))
			if err != nil {
				return errors.New("failed to read file")
			}
			if len(data) > constants.MaxUploadSize {
				return fmt.Errorf("file too large: %s", sanitizeForLog(fileHeader.Filename))
			}
			out = append(out, catalog.File{Name: filepath.Base(fileHeader.Filename), Data: data})
			return nil
		}(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Add handles multipart batch uploads of reference images for one profile.
// Files are stored independently; the response lists each file's outcome.
func (h *CatalogHandler) Add(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxBatchSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	profileID, err := strconv.ParseInt(r.FormValue("profile_id"), 10, 64)
	if err != nil || profileID <= 0 {
		respondError(w, http.StatusBadRequest, "profile_id must be a positive integer")
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		respondError(w, http.StatusBadRequest, "no files provided")
		return
	}

	files, err := readUploadedFiles(headers)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := h.catalog.AddBatch(r.Context(), profileID, files, nil)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	added, failed := catalog.Summarize(results)
	h.logger.Info("catalog batch processed", "profile_id", profileID, "added", added, "failed", failed)

	respondJSON(w, http.StatusOK, map[string]any{
		"profile_id": profileID,
		"added":      added,
		"failed":     failed,
		"results":    results,
	})
}
