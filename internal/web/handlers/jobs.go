package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/identity-matcher/internal/ai"
	"github.com/kozaktomas/identity-matcher/internal/constants"
	"github.com/kozaktomas/identity-matcher/internal/matcher"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// VerifyJob represents an async verification attempt.
type VerifyJob struct {
	EventBroadcaster
	VerifyJobState
}

// VerifyJobState is the encodable part of a VerifyJob.
type VerifyJobState struct {
	ID             string           `json:"id"`
	UserAddress    string           `json:"user_address"`
	FileName       string           `json:"file_name"`
	Status         JobStatus        `json:"status"`
	UploadProgress int              `json:"upload_progress"`
	Compared       int              `json:"compared"`
	References     int              `json:"references"`
	Error          string           `json:"error,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	Result         *VerifyJobResult `json:"result,omitempty"`
}

// GetStatus returns the current job status (implements SSEJob).
func (j *VerifyJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// Snapshot returns a copy of the state safe to encode while the job is running.
func (j *VerifyJob) Snapshot() VerifyJobState {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.VerifyJobState
}

// update mutates the job state under its lock.
func (j *VerifyJob) update(fn func(s *VerifyJobState)) {
	j.mu.Lock()
	fn(&j.VerifyJobState)
	j.mu.Unlock()
}

// Cancel cancels the verification job.
func (j *VerifyJob) Cancel() {
	j.EventBroadcaster.Cancel()
	j.mu.Lock()
	j.Status = JobStatusCancelled
	j.mu.Unlock()
}

// VerifyJobResult is the public view of a finished attempt.
type VerifyJobResult struct {
	ContentID      string               `json:"content_id"`
	CandidateURL   string               `json:"candidate_url"`
	Judgement      ai.Judgement         `json:"judgement"`
	EffectiveScore float64              `json:"effective_score"`
	Comparisons    []matcher.Comparison `json:"comparisons"`
	RecordID       string               `json:"record_id,omitempty"`
	RecordError    string               `json:"record_error,omitempty"`
	Superseded     bool                 `json:"superseded"`
	Registrable    bool                 `json:"registrable"`
}

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// Cancel cancels the job via context and sends a cancelled event.
func (b *EventBroadcaster) Cancel() {
	b.mu.RLock()
	cancel := b.cancel
	b.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	b.SendEvent(JobEvent{Type: "cancelled", Message: "Job cancelled by user"})
}

func (b *EventBroadcaster) setCancel(cancel context.CancelFunc) {
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
}

// JobManager manages async jobs.
type JobManager struct {
	jobs map[string]*VerifyJob
	mu   sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*VerifyJob),
	}
}

// CreateJob creates a new verification job.
func (m *JobManager) CreateJob(id, userAddress, fileName string) *VerifyJob {
	job := &VerifyJob{VerifyJobState: VerifyJobState{
		ID:          id,
		UserAddress: userAddress,
		FileName:    fileName,
		Status:      JobStatusPending,
		StartedAt:   time.Now(),
	}}

	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	return job
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *VerifyJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// DeleteJob removes a job.
func (m *JobManager) DeleteJob(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
}

// PruneFinished drops terminal jobs that completed before cutoff.
func (m *JobManager) PruneFinished(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, job := range m.jobs {
		snap := job.Snapshot()
		if isJobTerminal(snap.Status) && snap.CompletedAt != nil && snap.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}
