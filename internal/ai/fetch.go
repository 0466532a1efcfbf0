package ai

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/kozaktomas/identity-matcher/internal/imaging"
)

// ImageFetcher downloads gateway images for providers that need inline bytes.
type ImageFetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewImageFetcher(client *http.Client, maxBytes int64) *ImageFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &ImageFetcher{client: client, maxBytes: maxBytes}
}

// Fetch returns the image bytes and their detected MIME type.
func (f *ImageFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("could not create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("could not fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("image fetch failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("could not read image: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, "", fmt.Errorf("image exceeds %d bytes", f.maxBytes)
	}

	mimeType, err := imaging.MIMEType(data)
	if err != nil {
		return nil, "", err
	}
	return data, mimeType, nil
}
