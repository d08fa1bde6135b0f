package api

import (
	"context"

	"github.com/productdb/eoxsync/app/cache"
	"github.com/productdb/eoxsync/app/database"
	"github.com/productdb/eoxsync/app/tasks"
)

// SyncTrigger starts runs on behalf of API clients.
type SyncTrigger interface {
	TriggerManualSync(ctx context.Context) (string, error)
	InitialImportStatus(ctx context.Context) (*tasks.InitialImportStatus, error)
}

type ProgressReader interface {
	Get(ctx context.Context, taskID string) (*tasks.Progress, error)
	GetMeta(ctx context.Context, taskID string) (*tasks.TaskMeta, error)
}

var (
	_ SyncTrigger    = (*tasks.Orchestrator)(nil)
	_ ProgressReader = (*tasks.ProgressTracker)(nil)
)

type Handler struct {
	trigger       SyncTrigger
	progress      ProgressReader
	catalog       database.ProductRepository
	notifications database.NotificationRepository
	cache         cache.Cache
	version       string
}
