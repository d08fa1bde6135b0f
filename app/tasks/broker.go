package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/productdb/eoxsync/app/cache"
)

const (
	BrokerQueueKey  = "eoxsync:task_queue"
	brokerPollDelay = 5 * time.Second
)

// Request is the serialized form of a task passed between processes.
type Request struct {
	ID       string   `json:"id"`
	Type     TaskType `json:"type"`
	Years    []int    `json:"years,omitempty"`
	Force    bool     `json:"force,omitempty"`
	LockHeld bool     `json:"lock_held,omitempty"`
}

// Broker hands task requests to whichever worker process pops them first.
type Broker struct {
	queue cache.Queue
	key   string
}

func NewBroker(queue cache.Queue) *Broker {
	return &Broker{queue: queue, key: BrokerQueueKey}
}

func (b *Broker) Dispatch(ctx context.Context, req Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode task request: %w", err)
	}
	if err := b.queue.Push(ctx, b.key, string(payload)); err != nil {
		return fmt.Errorf("failed to dispatch task %s: %w", req.ID, err)
	}
	slog.Debug("Task dispatched", "type", string(req.Type), "id", req.ID)
	return nil
}

// Consume pops requests until ctx is done and passes each to handle.
func (b *Broker) Consume(ctx context.Context, handle func(Request)) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		payload, err := b.queue.Pop(ctx, b.key, brokerPollDelay)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("Failed to read from task queue", "error", err)
			sleepContext(ctx, time.Second)
			continue
		}
		if payload == "" {
			continue
		}

		var req Request
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			slog.Error("Dropping malformed task request", "payload", payload, "error", err)
			continue
		}
		handle(req)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
