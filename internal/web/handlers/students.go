package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/attendance-tracker/internal/app"
	"github.com/kozaktomas/attendance-tracker/internal/constants"
	"github.com/kozaktomas/attendance-tracker/internal/database"
	"github.com/kozaktomas/attendance-tracker/internal/facematch"
)

// StudentsHandler handles roster browsing, enrollment and training.
type StudentsHandler struct {
	app  *app.App
	jobs *JobManager
}

func NewStudentsHandler(a *app.App, jobs *JobManager) *StudentsHandler {
	return &StudentsHandler{app: a, jobs: jobs}
}

// StudentView is the JSON form of a roster entry.
type StudentView struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Course     string     `json:"course"`
	ImageCount int        `json:"image_count"`
	Histogram  bool       `json:"has_histogram"`
	Embedding  bool       `json:"has_embedding"`
	TrainedAt  *time.Time `json:"trained_at,omitempty"`
}

func studentView(s *facematch.Student) StudentView {
	v := StudentView{ID: s.ID, Name: s.Name, Course: s.Course}
	if rep := s.Representation(); rep != nil {
		v.ImageCount = rep.ImageCount()
		v.Histogram = len(rep.Histogram()) > 0
		v.Embedding = len(rep.Embedding()) > 0
		if t := rep.TrainedAt(); !t.IsZero() {
			v.TrainedAt = &t
		}
	}
	return v
}

// List returns roster entries, optionally filtered by name query and course.
func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	students := h.app.Roster.Search(q.Get("q"), q.Get("course"))
	out := make([]StudentView, 0, len(students))
	for _, s := range students {
		out = append(out, studentView(s))
	}
	respondJSON(w, http.StatusOK, out)
}

// CreateStudentRequest is the body of POST /students.
type CreateStudentRequest struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Course string `json:"course"`
	Email  string `json:"email"`
}

// Create registers or renames a student.
func (h *StudentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.ID == "" || req.Name == "" {
		respondError(w, http.StatusBadRequest, "id and name are required")
		return
	}
	s, err := h.app.Trainer.Register(r.Context(), database.StoredStudent{
		ID:     req.ID,
		Name:   req.Name,
		Course: req.Course,
		Email:  req.Email,
	})
	if err != nil {
		respondServiceError(w, h.app.Log, "failed to register student", err)
		return
	}
	respondJSON(w, http.StatusCreated, studentView(s))
}

// Delete removes a student together with images and attendance.
func (h *StudentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Trainer.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, h.app.Log, "failed to delete student", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Enroll replaces a student's enrollment images with the uploaded files.
func (h *StudentsHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	images, err := readMultipartImages(r, "images", constants.MaxEnrollUploadSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.app.Trainer.Enroll(r.Context(), chi.URLParam(r, "id"), images)
	if err != nil {
		respondServiceError(w, h.app.Log, "failed to enroll student", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Similar lists the students whose embeddings are closest to the given one.
func (h *StudentsHandler) Similar(w http.ResponseWriter, r *http.Request) {
	limit := constants.DefaultSimilarLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > constants.DefaultHandlerPageSize {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	similar, err := h.app.Trainer.Similar(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		respondServiceError(w, h.app.Log, "failed to find similar students", err)
		return
	}
	if similar == nil {
		similar = []database.SimilarStudent{}
	}
	respondJSON(w, http.StatusOK, similar)
}

// Train starts an async training run. Only one run may be active.
func (h *StudentsHandler) Train(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(context.Background())
	job, created := h.jobs.CreateJob(uuid.NewString(), h.app.Roster.Len(), cancel)
	if !created {
		cancel()
		respondJSON(w, http.StatusConflict, job.View())
		return
	}

	go h.runTraining(ctx, job)
	respondJSON(w, http.StatusAccepted, job.View())
}

func (h *StudentsHandler) runTraining(ctx context.Context, job *TrainJob) {
	job.mu.Lock()
	job.Status = JobStatusRunning
	job.mu.Unlock()
	job.SendEvent(JobEvent{Type: "started", Data: job.View()})

	res, err := h.app.Trainer.Train(ctx, func(st facematch.StudentTraining) {
		job.mu.Lock()
		job.Processed++
		job.mu.Unlock()
		job.SendEvent(JobEvent{Type: "progress", Data: st})
	})

	now := time.Now()
	job.mu.Lock()
	job.CompletedAt = &now
	switch {
	case job.Status == JobStatusCancelled:
	case err != nil:
		job.Status = JobStatusFailed
		job.Error = err.Error()
	case res.Err != "":
		job.Status = JobStatusFailed
		job.Error = res.Err
	default:
		job.Status = JobStatusCompleted
		job.Result = &res
	}
	status, message := job.Status, job.Error
	job.mu.Unlock()

	switch status {
	case JobStatusCompleted:
		job.SendEvent(JobEvent{Type: "completed", Data: res})
	case JobStatusFailed:
		h.app.Log.Error("training job failed", "job", job.ID, "error", message)
		job.SendEvent(JobEvent{Type: "job_error", Message: message})
	}
}

func (h *StudentsHandler) lookupJob(id string) SSEJob {
	if job := h.jobs.GetJob(id); job != nil {
		return job
	}
	return nil
}

// TrainStatus returns a training job.
func (h *StudentsHandler) TrainStatus(w http.ResponseWriter, r *http.Request) {
	job := h.jobs.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job.View())
}

// TrainEvents streams training progress via SSE.
func (h *StudentsHandler) TrainEvents(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r, h.lookupJob, func(job SSEJob) any {
		return job.(*TrainJob).View()
	})
}

// TrainCancel cancels a running training job.
func (h *StudentsHandler) TrainCancel(w http.ResponseWriter, r *http.Request) {
	job := h.jobs.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if isJobTerminal(job.GetStatus()) {
		respondError(w, http.StatusConflict, "job already finished")
		return
	}
	job.Cancel()
	respondJSON(w, http.StatusOK, job.View())
}
