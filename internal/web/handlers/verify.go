package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/identity-matcher/internal/constants"
	"github.com/kozaktomas/identity-matcher/internal/database"
	"github.com/kozaktomas/identity-matcher/internal/imaging"
	"github.com/kozaktomas/identity-matcher/internal/matcher"
	"github.com/kozaktomas/identity-matcher/internal/storage"
	"github.com/kozaktomas/identity-matcher/internal/verification"
	"github.com/kozaktomas/identity-matcher/internal/web/middleware"
)

// Verifier runs one verification attempt. *verification.Pipeline implements it.
type Verifier interface {
	Verify(ctx context.Context, userAddress, name string, r io.Reader, size int64, hooks verification.Hooks) (*verification.Result, error)
}

// VerifyHandler handles verification endpoints.
type VerifyHandler struct {
	verifier   Verifier
	references database.CatalogReader
	jobManager *JobManager
	logger     *slog.Logger
}

// NewVerifyHandler creates a new verify handler.
func NewVerifyHandler(v Verifier, references database.CatalogReader, jm *JobManager, logger *slog.Logger) *VerifyHandler {
	return &VerifyHandler{verifier: v, references: references, jobManager: jm, logger: logger}
}

// Start accepts a candidate image and verifies it in the background.
func (h *VerifyHandler) Start(w http.ResponseWriter, r *http.Request) {
	wallet := middleware.GetWalletFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	if _, err := imaging.Detect(data); err != nil {
		respondError(w, http.StatusBadRequest, imaging.ErrNotImage.Error())
		return
	}

	// Reject an empty catalog before anything leaves the server.
	count, err := h.references.CountReferenceImages(r.Context())
	if err != nil {
		h.logger.Error("failed to count reference images", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load reference images")
		return
	}
	if count == 0 {
		respondError(w, http.StatusConflict, verification.ErrNoReferenceImages.Error())
		return
	}

	jobID := uuid.New().String()
	job := h.jobManager.CreateJob(jobID, wallet, filepath.Base(header.Filename))

	go h.runVerifyJob(job, data)

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id":       jobID,
		"user_address": wallet,
		"status":       string(JobStatusPending),
	})
}

// Status returns the status of a verification job
func (h *VerifyHandler) Status(w http.ResponseWriter, r *http.Request) {
	job := h.jobManager.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job.Snapshot())
}

// Events streams job events via SSE
func (h *VerifyHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) SSEJob {
			job := h.jobManager.GetJob(id)
			if job == nil {
				return nil
			}
			return job
		},
		func(job SSEJob) any {
			return job.(*VerifyJob).Snapshot()
		},
	)
}

// Cancel cancels a verification job
func (h *VerifyHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job := h.jobManager.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	job.Cancel()
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// runVerifyJob runs the attempt in the background
func (h *VerifyHandler) runVerifyJob(job *VerifyJob, data []byte) {
	ctx, cancel := context.WithCancel(context.Background())
	job.setCancel(cancel)
	defer cancel()
	if job.GetStatus() == JobStatusCancelled {
		return
	}

	job.update(func(s *VerifyJobState) {
		if s.Status == JobStatusPending {
			s.Status = JobStatusRunning
		}
	})
	job.SendEvent(JobEvent{Type: "started", Message: "Verification started"})

	hooks := verification.Hooks{
		OnUploadProgress: func(percent int) {
			job.update(func(s *VerifyJobState) { s.UploadProgress = percent })
			job.SendEvent(JobEvent{Type: "upload_progress", Data: map[string]int{"percent": percent}})
		},
		OnUploaded: func(res *storage.UploadResult) {
			job.SendEvent(JobEvent{Type: "uploaded", Data: map[string]string{
				"content_id": res.ContentID,
				"url":        res.URL,
			}})
		},
		OnCompared: func(p matcher.ProgressInfo) {
			job.update(func(s *VerifyJobState) {
				s.Compared = p.Current
				s.References = p.Total
			})
			j := p.Comparison.Judgement
			job.SendEvent(JobEvent{Type: "compared", Data: map[string]any{
				"current":     p.Current,
				"total":       p.Total,
				"profile_id":  p.Comparison.Reference.ProfileID,
				"match_score": j.MatchScore,
				"confidence":  j.Confidence,
				"is_match":    j.IsMatch,
				"degraded":    j.Degraded,
			}})
		},
	}

	res, err := h.verifier.Verify(ctx, job.UserAddress, job.FileName, bytes.NewReader(data), int64(len(data)), hooks)
	if err != nil {
		if errors.Is(err, context.Canceled) || job.GetStatus() == JobStatusCancelled {
			return
		}
		h.failJob(job, err.Error())
		return
	}

	result := buildJobResult(res)
	if res.RecordErr != nil {
		h.logger.Warn("verification record not stored", "job", job.ID, "error", res.RecordErr)
	}
	if res.Superseded {
		job.SendEvent(JobEvent{Type: "superseded", Message: "A newer verification for this wallet replaced this one"})
	}

	now := time.Now()
	completed := false
	job.update(func(s *VerifyJobState) {
		// A cancelled job stays cancelled even if the attempt raced to the end.
		if s.Status == JobStatusCancelled {
			return
		}
		s.Status = JobStatusCompleted
		s.CompletedAt = &now
		s.Result = result
		completed = true
	})
	if !completed {
		return
	}
	job.SendEvent(JobEvent{Type: "completed", Message: "Verification completed", Data: result})
}

func buildJobResult(res *verification.Result) *VerifyJobResult {
	j := res.Outcome.Judgement
	result := &VerifyJobResult{
		ContentID:      res.Outcome.ContentID,
		CandidateURL:   res.Outcome.CandidateURL,
		Judgement:      j,
		EffectiveScore: matcher.EffectiveScore(j),
		Superseded:     res.Superseded,
		Registrable:    !res.Superseded && j.IsMatch && j.MatchedProfile != nil,
	}
	if res.Selection != nil {
		result.Comparisons = res.Selection.Comparisons
	}
	if res.Record != nil && res.RecordErr == nil {
		result.RecordID = res.Record.ID
	}
	if res.RecordErr != nil {
		result.RecordError = res.RecordErr.Error()
	}
	return result
}

func (h *VerifyHandler) failJob(job *VerifyJob, message string) {
	now := time.Now()
	job.update(func(s *VerifyJobState) {
		if s.Status == JobStatusCancelled {
			return
		}
		s.Status = JobStatusFailed
		s.Error = message
		s.CompletedAt = &now
	})
	h.logger.Warn("verification job failed", "job", job.ID, "error", sanitizeForLog(message))
	job.SendEvent(JobEvent{Type: "job_error", Message: message})
}
