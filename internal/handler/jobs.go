package handler

import (
	"bufio"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/erp-vision-middleware/internal/service"
)

// Job states.
const (
	JobRunning  = "running"
	JobComplete = "complete"
	JobError    = "error"
)

// JobStatus represents the current state of a background library build.
type JobStatus struct {
	ID          string                    `json:"id"`
	Status      string                    `json:"status"` // running, complete, error
	Report      *service.InitializeReport `json:"report,omitempty"`
	Error       string                    `json:"error,omitempty"`
	StartedAt   time.Time                 `json:"started_at"`
	CompletedAt time.Time                 `json:"completed_at,omitempty"`
}

func (j JobStatus) done() bool { return j.Status == JobComplete || j.Status == JobError }

// JobTracker keeps library build jobs in memory.
type JobTracker struct {
	mu   sync.RWMutex
	jobs map[string]*JobStatus
	subs map[string][]chan JobStatus // subscribers per job
}

// NewJobTracker creates a new job tracker.
func NewJobTracker() *JobTracker {
	return &JobTracker{
		jobs: make(map[string]*JobStatus),
		subs: make(map[string][]chan JobStatus),
	}
}

// CreateJob registers a running job.
func (t *JobTracker) CreateJob(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[id] = &JobStatus{ID: id, Status: JobRunning, StartedAt: time.Now()}
}

// FinishJob records the outcome of a job and notifies subscribers.
func (t *JobTracker) FinishJob(id string, report *service.InitializeReport, err error) {
	t.mu.Lock()
	job, ok := t.jobs[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	job.Report = report
	job.Status = JobComplete
	if err != nil {
		job.Status = JobError
		job.Error = err.Error()
	}
	job.CompletedAt = time.Now()
	snapshot := *job

	// Sends stay under the lock so Unsubscribe cannot close a channel mid-send.
	for _, ch := range t.subs[id] {
		select {
		case ch <- snapshot:
		default:
		}
	}
	t.mu.Unlock()
}

// GetJob returns a job status.
func (t *JobTracker) GetJob(id string) (*JobStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	if !ok {
		return nil, false
	}
	snapshot := *job
	return &snapshot, true
}

// Subscribe returns a channel that receives job updates.
func (t *JobTracker) Subscribe(id string) chan JobStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan JobStatus, 1)
	t.subs[id] = append(t.subs[id], ch)
	return ch
}

// Unsubscribe removes a channel from subscribers.
func (t *JobTracker) Unsubscribe(id string, ch chan JobStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	subs := t.subs[id]
	for i, s := range subs {
		if s == ch {
			t.subs[id] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	close(ch)
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	tracker *JobTracker
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(tracker *JobTracker) *JobsHandler {
	return &JobsHandler{tracker: tracker}
}

// Register sets up job routes.
func (h *JobsHandler) Register(router fiber.Router) {
	jobs := router.Group("/jobs")
	jobs.Get("/:id", h.GetStatus)
	jobs.Get("/:id/stream", h.StreamSSE)
}

// GetStatus returns the current job status.
func (h *JobsHandler) GetStatus(c fiber.Ctx) error {
	job, ok := h.tracker.GetJob(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
	}
	return c.JSON(job)
}

// StreamSSE streams the job outcome via Server-Sent Events.
func (h *JobsHandler) StreamSSE(c fiber.Ctx) error {
	id := c.Params("id")

	if _, ok := h.tracker.GetJob(id); !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
	}

	// Subscribe before reading the state so a FinishJob in between is not missed.
	ch := h.tracker.Subscribe(id)
	job, _ := h.tracker.GetJob(id)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	if job.done() {
		h.tracker.Unsubscribe(id, ch)
		data, _ := json.Marshal(job)
		return c.SendString(fmt.Sprintf("event: %s\ndata: %s\n\n", job.Status, data))
	}

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer h.tracker.Unsubscribe(id, ch)

		data, _ := json.Marshal(job)
		fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
		w.Flush()

		timeout := time.After(30 * time.Minute)
		for {
			select {
			case update, ok := <-ch:
				if !ok {
					return
				}
				data, _ := json.Marshal(update)
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", update.Status, data)
				w.Flush()
				if update.done() {
					return
				}
			case <-timeout:
				slog.Warn("SSE timeout", "job_id", id)
				return
			}
		}
	})
}
