// Package catalog manages the reference images that verification compares against.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kozaktomas/identity-matcher/internal/database"
	"github.com/kozaktomas/identity-matcher/internal/imaging"
	"github.com/kozaktomas/identity-matcher/internal/metrics"
	"github.com/kozaktomas/identity-matcher/internal/storage"
)

var tracer = otel.Tracer("identity-matcher/catalog")

var (
	ErrInvalidProfileID = errors.New("profile id must be a positive integer")
	ErrNoFiles          = errors.New("no files provided")
)

// Uploader stores a file and returns its content id. *storage.Lighthouse implements it.
type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader, size int64, progress storage.ProgressFunc) (*storage.UploadResult, error)
}

// File is one image submitted for a profile.
type File struct {
	Name string
	Data []byte
}

// BatchResult is the outcome for a single file of a batch.
type BatchResult struct {
	FileName       string                   `json:"file_name"`
	ReferenceImage *database.ReferenceImage `json:"reference_image,omitempty"`
	Err            error                    `json:"-"`
	Error          string                   `json:"error,omitempty"`
}

// Catalog adds and lists reference images.
type Catalog struct {
	store    database.CatalogWriter
	uploader Uploader
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func New(store database.CatalogWriter, uploader Uploader, m *metrics.Metrics, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{store: store, uploader: uploader, metrics: m, logger: logger}
}

// AddBatch validates, uploads and persists every file for profileID. Files are
// independent: a failure is reported in that file's result and never undoes
// files stored before it. The error return is reserved for invalid input.
// onResult, if set, is called after each file.
func (c *Catalog) AddBatch(ctx context.Context, profileID int64, files []File, onResult func(done, total int, r BatchResult)) ([]BatchResult, error) {
	if profileID <= 0 {
		return nil, ErrInvalidProfileID
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	ctx, span := tracer.Start(ctx, "catalog.AddBatch")
	defer span.End()
	span.SetAttributes(attribute.Int64("profile_id", profileID), attribute.Int("files", len(files)))

	results := make([]BatchResult, 0, len(files))
	for i, f := range files {
		result := BatchResult{FileName: f.Name}
		img, err := c.addOne(ctx, profileID, f)
		if err != nil {
			result.Err = err
			result.Error = err.Error()
			c.logger.Warn("reference image not added", "file", f.Name, "profile_id", profileID, "error", err)
		} else {
			result.ReferenceImage = img
			c.logger.Info("reference image added", "file", f.Name, "profile_id", profileID, "content_id", img.ContentID)
		}
		c.metrics.ObserveCatalogAdd(err)
		results = append(results, result)

		if onResult != nil {
			onResult(i+1, len(files), result)
		}
	}
	return results, nil
}

func (c *Catalog) addOne(ctx context.Context, profileID int64, f File) (*database.ReferenceImage, error) {
	if _, err := imaging.Detect(f.Data); err != nil {
		return nil, err
	}

	uploaded, err := c.uploader.Upload(ctx, f.Name, bytes.NewReader(f.Data), int64(len(f.Data)), nil)
	c.metrics.ObserveUpload(err, int64(len(f.Data)))
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}

	img := &database.ReferenceImage{
		ProfileID: profileID,
		ContentID: uploaded.ContentID,
		URL:       uploaded.URL,
	}
	if err := c.store.AddReferenceImage(ctx, img); err != nil {
		return nil, fmt.Errorf("failed to save reference image: %w", err)
	}
	return img, nil
}

// List returns all reference images ordered by profile id.
func (c *Catalog) List(ctx context.Context) ([]database.ReferenceImage, error) {
	images, err := c.store.ListReferenceImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reference images: %w", err)
	}
	return images, nil
}

// Count returns the number of reference images.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	n, err := c.store.CountReferenceImages(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count reference images: %w", err)
	}
	return n, nil
}

// Summarize counts successful and failed results.
func Summarize(results []BatchResult) (added, failed int) {
	for _, r := range results {
		if r.Err != nil {
			failed++
		} else {
			added++
		}
	}
	return added, failed
}
