package tasks

import "context"

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application to run the synchronization in the background.
// Example usage:
//
//	scheduler := NewScheduler(orchestrator, broker, interval, workerCount)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(orchestrator.NewPeriodicSyncTask("", true))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	Dispatch(ctx context.Context, req Request) error
}
