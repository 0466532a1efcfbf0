// Package storage uploads files to Lighthouse, a content-addressed store pinned on IPFS.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/kozaktomas/identity-matcher/internal/config"
)

// ErrMissingAPIKey is returned when no Lighthouse API key is configured.
var ErrMissingAPIKey = errors.New("lighthouse API key is not configured")

// ProgressFunc receives the percentage (0-100) of the file streamed so far.
type ProgressFunc func(percent int)

// UploadResult describes a stored file.
type UploadResult struct {
	Name      string `json:"name"`
	ContentID string `json:"content_id"`
	Size      int64  `json:"size"`
	URL       string `json:"url"`
}

// lighthouseResponse is the body returned by the Lighthouse add endpoint.
type lighthouseResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// Lighthouse is a client for the Lighthouse upload API.
type Lighthouse struct {
	apiKey    string
	uploadURL string
	storage   config.StorageConfig
	client    *http.Client
}

// New creates a Lighthouse client from configuration.
func New(cfg config.StorageConfig) (*Lighthouse, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	return &Lighthouse{
		apiKey:    cfg.APIKey,
		uploadURL: cfg.UploadURL,
		storage:   cfg,
		client:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// ContentURL returns the public gateway URL for a content id.
func (l *Lighthouse) ContentURL(cid string) string {
	return l.storage.ContentURL(cid)
}

// Upload streams r to Lighthouse as a multipart "file" field and returns the
// content id. size is the number of bytes r will yield; pass -1 if unknown,
// in which case progress is only reported on completion.
func (l *Lighthouse) Upload(ctx context.Context, name string, r io.Reader, size int64, progress ProgressFunc) (*UploadResult, error) {
	var head bytes.Buffer
	writer := multipart.NewWriter(&head)
	if _, err := writer.CreateFormFile("file", name); err != nil {
		return nil, fmt.Errorf("could not create form file: %w", err)
	}
	headLen := head.Len()
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("could not close writer: %w", err)
	}
	tail := bytes.Clone(head.Bytes()[headLen:])
	head.Truncate(headLen)

	pr := &progressReader{r: r, total: size, report: progress, last: -1}
	body := io.MultiReader(&head, pr, bytes.NewReader(tail))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.uploadURL, body)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	if size >= 0 {
		req.ContentLength = int64(headLen) + size + int64(len(tail))
	}
	req.Header.Set("Authorization", "Bearer "+l.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}

	var lr lighthouseResponse
	if err := json.Unmarshal(raw, &lr); err != nil {
		return nil, fmt.Errorf("could not unmarshal response: %w", err)
	}
	if lr.Hash == "" {
		return nil, errors.New("upload response did not include a content id")
	}

	pr.finish()

	result := &UploadResult{
		Name:      lr.Name,
		ContentID: lr.Hash,
		URL:       l.ContentURL(lr.Hash),
	}
	if result.Name == "" {
		result.Name = name
	}
	if n, err := strconv.ParseInt(lr.Size, 10, 64); err == nil {
		result.Size = n
	} else {
		result.Size = pr.read
	}
	return result, nil
}

// UploadBytes uploads an in-memory payload without progress reporting.
func (l *Lighthouse) UploadBytes(ctx context.Context, name string, data []byte) (*UploadResult, error) {
	return l.Upload(ctx, name, bytes.NewReader(data), int64(len(data)), nil)
}

// progressReader reports whole-percent progress as the wrapped reader is consumed.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	last   int
	report ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 {
		// 100 is held back until the store acknowledges the file.
		p.emit(int(min(p.read*100/p.total, 99)))
	}
	return n, err
}

func (p *progressReader) finish() {
	p.emit(100)
}

func (p *progressReader) emit(percent int) {
	if p.report == nil || percent <= p.last {
		return
	}
	p.last = percent
	p.report(percent)
}

// readErrorBody reads a bounded amount of the response body for error messages.
func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "(could not read body)"
	}
	return strings.TrimSpace(string(body))
}
