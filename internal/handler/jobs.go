package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// Job kinds.
const (
	JobRefreshCommits = "refresh_commits"
	JobReindex        = "reindex"
)

// Job states.
const (
	JobRunning  = "running"
	JobComplete = "complete"
	JobError    = "error"
)

// JobStatus is the observable state of a background project job.
type JobStatus struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	ProjectID   string     `json:"project_id"`
	UserID      string     `json:"user_id"`
	Status      string     `json:"status"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (j *JobStatus) done() bool {
	return j.Status == JobComplete || j.Status == JobError
}

// JobTracker runs project jobs in the background and keeps their state in memory.
type JobTracker struct {
	mu      sync.RWMutex
	jobs    map[string]*JobStatus
	subs    map[string][]chan JobStatus
	timeout time.Duration
}

// NewJobTracker creates a tracker whose jobs are cancelled after timeout.
func NewJobTracker(timeout time.Duration) *JobTracker {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &JobTracker{
		jobs:    make(map[string]*JobStatus),
		subs:    make(map[string][]chan JobStatus),
		timeout: timeout,
	}
}

// Start registers a job and runs fn in its own goroutine. The job outlives
// the request that started it.
func (t *JobTracker) Start(kind, projectID, userID string, fn func(ctx context.Context) (any, error)) JobStatus {
	job := &JobStatus{
		ID:        uuid.NewString(),
		Kind:      kind,
		ProjectID: projectID,
		UserID:    userID,
		Status:    JobRunning,
		StartedAt: time.Now(),
	}
	t.mu.Lock()
	t.jobs[job.ID] = job
	snapshot := *job
	t.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()

		result, err := fn(ctx)
		if err != nil {
			slog.Error("job failed", "job_id", job.ID, "kind", kind, "project_id", projectID, "error", err)
			t.finish(job.ID, nil, err)
			return
		}
		slog.Info("job complete", "job_id", job.ID, "kind", kind, "project_id", projectID)
		t.finish(job.ID, result, nil)
	}()

	return snapshot
}

func (t *JobTracker) finish(id string, result any, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return
	}
	now := time.Now()
	job.CompletedAt = &now
	if err != nil {
		job.Status = JobError
		_, job.Error = statusFor(err)
	} else {
		job.Status = JobComplete
		job.Result = result
	}
	snapshot := *job

	// Subscribers are notified under the lock so Unsubscribe cannot close a channel mid-send.
	for _, ch := range t.subs[id] {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// GetJob returns a copy of a job's state.
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

// Subscribe returns a channel that receives the job's final state.
func (t *JobTracker) Subscribe(id string) chan JobStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan JobStatus, 1)
	t.subs[id] = append(t.subs[id], ch)
	return ch
}

// Unsubscribe removes and closes a subscription.
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
	if len(t.subs[id]) == 0 {
		delete(t.subs, id)
	}
	close(ch)
}

// Wait blocks until the job finishes or ctx is done.
func (t *JobTracker) Wait(ctx context.Context, id string) (*JobStatus, error) {
	ch := t.Subscribe(id)
	defer t.Unsubscribe(id, ch)

	// The job may have finished before the subscription existed.
	if job, ok := t.GetJob(id); !ok {
		return nil, fmt.Errorf("job %s not found", id)
	} else if job.done() {
		return job, nil
	}

	select {
	case job := <-ch:
		return &job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
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

// lookup returns the job if it belongs to the current user.
func (h *JobsHandler) lookup(c fiber.Ctx) (*JobStatus, error) {
	user := currentUser(c)
	if user == nil {
		return nil, unauthorized(c)
	}
	job, ok := h.tracker.GetJob(c.Params("id"))
	if !ok || job.UserID != user.ID {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
	}
	return job, nil
}

// GetStatus returns the current job status.
func (h *JobsHandler) GetStatus(c fiber.Ctx) error {
	job, err := h.lookup(c)
	if job == nil {
		return err
	}
	return c.JSON(job)
}

// StreamSSE streams job updates via Server-Sent Events.
func (h *JobsHandler) StreamSSE(c fiber.Ctx) error {
	job, err := h.lookup(c)
	if job == nil {
		return err
	}
	setSSEHeaders(c)

	if job.done() {
		data, _ := json.Marshal(job)
		return c.SendString(fmt.Sprintf("event: %s\ndata: %s\n\n", job.Status, data))
	}

	ch := h.tracker.Subscribe(job.ID)
	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer h.tracker.Unsubscribe(job.ID, ch)

		writeEvent(w, "progress", job)
		if err := w.Flush(); err != nil {
			return
		}

		// Finished between GetJob and Subscribe.
		if latest, ok := h.tracker.GetJob(job.ID); ok && latest.done() {
			writeEvent(w, latest.Status, latest)
			_ = w.Flush()
			return
		}

		timeout := time.After(h.tracker.timeout)
		select {
		case update, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, update.Status, update)
			_ = w.Flush()
		case <-timeout:
			slog.Warn("SSE timeout", "job_id", job.ID)
		}
	})
}

func setSSEHeaders(c fiber.Ctx) {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
}

// writeEvent writes one SSE event with a JSON payload.
func writeEvent(w *bufio.Writer, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("encode SSE payload", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
