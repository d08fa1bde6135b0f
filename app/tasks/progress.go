package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/productdb/eoxsync/app/cache"
)

const ProgressTTL = 8 * time.Hour

const progressSwapAttempts = 5

type TaskState string

const (
	StatePending    TaskState = "pending"
	StateProcessing TaskState = "processing"
	StateSuccess    TaskState = "success"
	StateFailed     TaskState = "failed"
)

func (s TaskState) rank() int {
	switch s {
	case StatePending:
		return 0
	case StateProcessing:
		return 1
	case StateSuccess, StateFailed:
		return 2
	default:
		return -1
	}
}

func (s TaskState) Terminal() bool {
	return s.rank() == 2
}

// Progress is the snapshot polled by operators while a task runs.
type Progress struct {
	State         TaskState   `json:"state"`
	StatusMessage string      `json:"status_message"`
	ErrorMessage  string      `json:"error_message,omitempty"`
	Data          interface{} `json:"data,omitempty"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// TaskMeta describes how a viewer presents a task.
type TaskMeta struct {
	TaskID       string `json:"task_id"`
	Title        string `json:"title"`
	AutoRedirect bool   `json:"auto_redirect"`
	RedirectTo   string `json:"redirect_to"`
}

// ProgressTracker stores task metadata and progress in the shared cache.
type ProgressTracker struct {
	cache cache.Cache
}

func NewProgressTracker(c cache.Cache) *ProgressTracker {
	return &ProgressTracker{cache: c}
}

func metaKey(taskID string) string {
	return "task_meta_" + taskID
}

func stateKey(taskID string) string {
	return "task_state_" + taskID
}

// Register stores meta and marks the task pending.
func (p *ProgressTracker) Register(ctx context.Context, meta TaskMeta) error {
	if err := p.cache.Set(ctx, metaKey(meta.TaskID), meta, ProgressTTL); err != nil {
		return fmt.Errorf("failed to store task meta: %w", err)
	}
	return p.Update(ctx, meta.TaskID, StatePending, "Task is waiting for a worker", nil)
}

// Update publishes a new snapshot. State changes never move backwards and a
// terminal state is final.
func (p *ProgressTracker) Update(ctx context.Context, taskID string, state TaskState, message string, data interface{}) error {
	return p.update(ctx, taskID, Progress{State: state, StatusMessage: message, Data: data})
}

func (p *ProgressTracker) Fail(ctx context.Context, taskID string, message string, cause error) error {
	progress := Progress{State: StateFailed, StatusMessage: message}
	if cause != nil {
		progress.ErrorMessage = cause.Error()
	}
	return p.update(ctx, taskID, progress)
}

// update swaps the stored snapshot for next. Concurrent writers are detected
// by the compare-and-swap and the transition is re-checked against their state.
func (p *ProgressTracker) update(ctx context.Context, taskID string, next Progress) error {
	for attempt := 0; attempt < progressSwapAttempts; attempt++ {
		raw, current, err := p.read(ctx, taskID)
		if err != nil {
			return err
		}
		if current != nil {
			if current.State.Terminal() || next.State.rank() < current.State.rank() {
				slog.Debug("Ignoring task state regression", "id", taskID, "current", current.State, "next", next.State)
				return nil
			}
		}

		next.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode task progress: %w", err)
		}
		swapped, err := p.cache.CompareAndSwap(ctx, stateKey(taskID), raw, string(data), ProgressTTL)
		if err != nil {
			return fmt.Errorf("failed to store task progress: %w", err)
		}
		if swapped {
			return nil
		}
		slog.Debug("Task progress changed concurrently, retrying", "id", taskID, "attempt", attempt+1)
	}
	return fmt.Errorf("failed to store task progress: %d concurrent updates for task %s", progressSwapAttempts, taskID)
}

// Get returns nil when nothing is known about the task.
func (p *ProgressTracker) Get(ctx context.Context, taskID string) (*Progress, error) {
	_, progress, err := p.read(ctx, taskID)
	return progress, err
}

func (p *ProgressTracker) read(ctx context.Context, taskID string) (string, *Progress, error) {
	raw, err := p.cache.Get(ctx, stateKey(taskID))
	if err != nil {
		return "", nil, fmt.Errorf("failed to read task progress: %w", err)
	}
	if raw == "" {
		return "", nil, nil
	}

	var progress Progress
	if err := json.Unmarshal([]byte(raw), &progress); err != nil {
		return "", nil, fmt.Errorf("failed to decode task progress: %w", err)
	}
	return raw, &progress, nil
}

func (p *ProgressTracker) GetMeta(ctx context.Context, taskID string) (*TaskMeta, error) {
	raw, err := p.cache.Get(ctx, metaKey(taskID))
	if err != nil {
		return nil, fmt.Errorf("failed to read task meta: %w", err)
	}
	if raw == "" {
		return nil, nil
	}

	var meta TaskMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("failed to decode task meta: %w", err)
	}
	return &meta, nil
}
