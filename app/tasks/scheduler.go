package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/productdb/eoxsync/app/metrics"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	orchestrator *Orchestrator
	broker       *Broker
	interval     time.Duration
	workerCount  int
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	taskQueue    chan TaskInterface
}

// NewScheduler creates the worker pool. A nil broker disables consuming
// requests from other processes.
func NewScheduler(orchestrator *Orchestrator, broker *Broker, interval time.Duration, workerCount int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		orchestrator: orchestrator,
		broker:       broker,
		interval:     interval,
		workerCount:  workerCount,
		ctx:          ctx,
		cancel:       cancel,
		taskQueue:    make(chan TaskInterface, 32),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueuePeriodicSync()
			}
		}
	}()

	if s.broker != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.broker.Consume(s.ctx, s.handleRequest)
		}()
	}
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// Dispatch enqueues req in this process. It serves single-process setups
// without a shared broker.
func (s *Scheduler) Dispatch(_ context.Context, req Request) error {
	task, err := s.orchestrator.TaskFromRequest(req)
	if err != nil {
		return err
	}
	return s.EnqueueTask(task)
}

func (s *Scheduler) handleRequest(req Request) {
	if err := s.Dispatch(s.ctx, req); err != nil {
		slog.Error("Failed to enqueue task from broker", "type", string(req.Type), "id", req.ID, "error", err)
		s.orchestrator.progress.Fail(s.ctx, req.ID, "Task could not be scheduled", err)
	}
}

// enqueueStartupTasks catches up on a periodic run missed while the
// process was down.
func (s *Scheduler) enqueueStartupTasks() {
	if !s.orchestrator.SyncDue(s.interval) {
		slog.Debug("Periodic synchronization not due")
		return
	}
	s.enqueuePeriodicSync()
}

func (s *Scheduler) enqueuePeriodicSync() {
	task := s.orchestrator.NewPeriodicSyncTask("", false)
	if err := s.EnqueueTask(task); err != nil {
		slog.Warn("Failed to enqueue PeriodicSyncTask", "error", err)
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, task.Timeout())
	defer cancel()

	err := task.Execute(taskCtx)

	metrics.TaskDuration.WithLabelValues(string(task.GetType())).Observe(task.GetDuration().Seconds())

	if err == nil {
		metrics.TaskRuns.WithLabelValues(string(task.GetType()), string(StateSuccess)).Inc()
		slog.Info("Task completed", "type", string(task.GetType()), "id", task.GetID(), "duration", task.GetDuration())
		return
	}

	// Failed runs are not re-enqueued. The task already reported a terminal
	// failed state and the next trigger starts a fresh run.
	metrics.TaskRuns.WithLabelValues(string(task.GetType()), string(StateFailed)).Inc()
	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "error", err)
}
