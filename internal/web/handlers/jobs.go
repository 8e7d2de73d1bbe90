package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/attendance-tracker/internal/attendance"
	"github.com/kozaktomas/attendance-tracker/internal/roster"
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

// TrainJob is an async training run over the whole roster.
type TrainJob struct {
	attendance.Broadcaster[JobEvent]

	cancel context.CancelFunc
	mu     sync.RWMutex

	ID          string
	Status      JobStatus
	Total       int
	Processed   int
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
	Result      *roster.TrainResult
}

// TrainJobView is the JSON form of a TrainJob.
type TrainJobView struct {
	ID          string              `json:"id"`
	Status      JobStatus           `json:"status"`
	Total       int                 `json:"total"`
	Processed   int                 `json:"processed"`
	Error       string              `json:"error,omitempty"`
	StartedAt   time.Time           `json:"started_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Result      *roster.TrainResult `json:"result,omitempty"`
}

// GetStatus returns the current job status (implements SSEJob).
func (j *TrainJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// View returns a copy safe to encode while the job is running.
func (j *TrainJob) View() TrainJobView {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return TrainJobView{
		ID:          j.ID,
		Status:      j.Status,
		Total:       j.Total,
		Processed:   j.Processed,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Result:      j.Result,
	}
}

// Cancel stops the training run and tells listeners about it.
func (j *TrainJob) Cancel() {
	if j.cancel != nil {
		j.cancel()
	}
	j.mu.Lock()
	j.Status = JobStatusCancelled
	j.mu.Unlock()
	j.SendEvent(JobEvent{Type: "cancelled", Message: "Job cancelled by user"})
}

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
}

// JobManager manages async jobs. At most one training job runs at a time.
type JobManager struct {
	jobs    map[string]*TrainJob
	running string
	mu      sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*TrainJob),
	}
}

// CreateJob registers a pending training job. It returns the running job and
// false when another one has not finished yet.
func (m *JobManager) CreateJob(id string, total int, cancel context.CancelFunc) (*TrainJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.jobs[m.running]; ok && !isJobTerminal(cur.GetStatus()) {
		return cur, false
	}

	job := &TrainJob{
		ID:        id,
		Status:    JobStatusPending,
		Total:     total,
		StartedAt: time.Now(),
	}
	job.cancel = cancel
	m.jobs[id] = job
	m.running = id
	return job, true
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *TrainJob {
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
