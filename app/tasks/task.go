package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskTypePeriodicSync  TaskType = "periodic_sync"
	TaskTypeManualSync    TaskType = "manual_sync"
	TaskTypeInitialImport TaskType = "initial_import"
)

const (
	DefaultTimeout = 5 * time.Minute
)

type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	Start()
	GetDuration() time.Duration
	Timeout() time.Duration
}

type Task struct {
	ID        string
	Type      TaskType
	StartedAt *time.Time
	timeout   time.Duration
}

func (t *Task) GetID() string {
	return t.ID
}

func (t *Task) GetType() TaskType {
	return t.Type
}

func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}

// Timeout is the hard deadline applied to Execute.
func (t *Task) Timeout() time.Duration {
	if t.timeout <= 0 {
		return DefaultTimeout
	}
	return t.timeout
}

// NewTask creates a task; an empty id gets a fresh UUID.
func NewTask(taskType TaskType, id string, timeout time.Duration) Task {
	if id == "" {
		id = NewTaskID()
	}

	return Task{
		ID:      id,
		Type:    taskType,
		timeout: timeout,
	}
}

func NewTaskID() string {
	return uuid.NewString()
}
