package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/identity-matcher/internal/database"
	"github.com/kozaktomas/identity-matcher/internal/ledger"
)

var ErrEmptyCatalog = errors.New("catalog has no reference images")

const manifestVersion = 1

// Manifest is the snapshot of the catalog published to the content store.
type Manifest struct {
	Version     int             `json:"version"`
	GeneratedAt time.Time       `json:"generated_at"`
	Images      []ManifestEntry `json:"images"`
}

type ManifestEntry struct {
	ProfileID int64  `json:"profile_id"`
	ContentID string `json:"content_id"`
	URL       string `json:"url"`
}

// SnapshotPublisher records the manifest's content id. *ledger.Client implements it.
type SnapshotPublisher interface {
	SetReferenceImages(ctx context.Context, contentID string) (*ledger.Receipt, error)
}

type PublishResult struct {
	ContentID string          `json:"content_id"`
	URL       string          `json:"url"`
	Images    int             `json:"images"`
	Receipt   *ledger.Receipt `json:"receipt,omitempty"`
}

// BuildManifest snapshots images in the order given.
func BuildManifest(images []database.ReferenceImage, now time.Time) Manifest {
	m := Manifest{Version: manifestVersion, GeneratedAt: now.UTC(), Images: make([]ManifestEntry, len(images))}
	for i, img := range images {
		m.Images[i] = ManifestEntry{ProfileID: img.ProfileID, ContentID: img.ContentID, URL: img.URL}
	}
	return m
}

// Publish uploads a manifest of the current catalog and, when publisher is
// non-nil, points the ledger at it. A ledger failure still returns the
// uploaded manifest's location alongside the error.
func (c *Catalog) Publish(ctx context.Context, publisher SnapshotPublisher) (*PublishResult, error) {
	ctx, span := tracer.Start(ctx, "catalog.Publish")
	defer span.End()

	images, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, ErrEmptyCatalog
	}

	body, err := json.MarshalIndent(BuildManifest(images, time.Now()), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}

	uploaded, err := c.uploader.Upload(ctx, "reference-images.json", bytes.NewReader(body), int64(len(body)), nil)
	c.metrics.ObserveUpload(err, int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to upload manifest: %w", err)
	}

	result := &PublishResult{ContentID: uploaded.ContentID, URL: uploaded.URL, Images: len(images)}
	c.logger.Info("catalog manifest uploaded", "content_id", uploaded.ContentID, "images", len(images))

	if publisher == nil {
		return result, nil
	}
	receipt, err := publisher.SetReferenceImages(ctx, uploaded.ContentID)
	if err != nil {
		span.RecordError(err)
		return result, fmt.Errorf("failed to publish manifest on ledger: %w", err)
	}
	result.Receipt = receipt
	return result, nil
}
