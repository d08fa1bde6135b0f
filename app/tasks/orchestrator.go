package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/productdb/eoxsync/app/cache"
	"github.com/productdb/eoxsync/app/ciscoapi"
	"github.com/productdb/eoxsync/app/database"
	"github.com/productdb/eoxsync/app/eox"
	"github.com/productdb/eoxsync/app/settings"
)

const (
	SyncTaskTitle          = "Synchronize local database with Cisco EoX API"
	InitialImportTaskTitle = "Initial data import from the Cisco EoX API"
	NotificationsPath      = "/api/notifications"
)

// Dispatcher delivers a task request to a worker.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) error
}

var _ Dispatcher = (*Broker)(nil)

// Orchestrator owns the entry points of the EoX synchronization and builds
// the tasks the scheduler executes.
type Orchestrator struct {
	settings      *settings.Store
	cache         cache.Cache
	catalog       database.ProductRepository
	notifications database.NotificationRepository
	httpClient    *http.Client
	dispatcher    Dispatcher
	progress      *ProgressTracker
	syncLock      *RunLock
	initialLock   *RunLock
	vendorName    string
	userAgent     string
	sleep         func(ctx context.Context, d time.Duration) error
}

type OrchestratorConfig struct {
	Settings      *settings.Store
	Cache         cache.Cache
	Catalog       database.ProductRepository
	Notifications database.NotificationRepository
	HTTPClient    *http.Client
	Dispatcher    Dispatcher
	VendorName    string
	UserAgent     string
}

func NewOrchestrator(c OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		settings:      c.Settings,
		cache:         c.Cache,
		catalog:       c.Catalog,
		notifications: c.Notifications,
		httpClient:    c.HTTPClient,
		dispatcher:    c.Dispatcher,
		progress:      NewProgressTracker(c.Cache),
		syncLock:      NewSyncLock(c.Cache),
		initialLock:   NewInitialImportLock(c.Cache),
		vendorName:    c.VendorName,
		userAgent:     c.UserAgent,
		sleep:         sleepContext,
	}
}

func (o *Orchestrator) Progress() *ProgressTracker {
	return o.progress
}

// TriggerManualSync starts a forced synchronization. While another sync
// holds the run-lock it returns *RunInProgressError with the active task ID
// and contacts nobody upstream.
func (o *Orchestrator) TriggerManualSync(ctx context.Context) (string, error) {
	snapshot, err := o.settings.Load()
	if err != nil {
		return "", err
	}
	if !snapshot.Global.APIEnabled {
		return "", ErrAPIDisabled
	}

	taskID := NewTaskID()
	if err := o.syncLock.Acquire(ctx, taskID); err != nil {
		var inProgress *RunInProgressError
		if errors.As(err, &inProgress) {
			slog.Info("Synchronization already running", "id", inProgress.TaskID)
		}
		return "", err
	}

	meta := TaskMeta{TaskID: taskID, Title: SyncTaskTitle, AutoRedirect: false, RedirectTo: NotificationsPath}
	req := Request{ID: taskID, Type: TaskTypeManualSync, Force: true, LockHeld: true}
	if err := o.start(ctx, o.syncLock, meta, req); err != nil {
		return "", err
	}
	return taskID, nil
}

// TriggerInitialImport starts the backfill for years unless one is running.
func (o *Orchestrator) TriggerInitialImport(ctx context.Context, years []int) (string, error) {
	snapshot, err := o.settings.Load()
	if err != nil {
		return "", err
	}
	if !snapshot.Global.APIEnabled {
		return "", ErrAPIDisabled
	}
	if len(years) == 0 {
		return "", ErrNoYears
	}

	taskID := NewTaskID()
	if err := o.initialLock.Acquire(ctx, taskID); err != nil {
		return "", err
	}
	if err := o.cache.Set(ctx, InitialImportLastRunKey, taskID, InitialImportLockTTL); err != nil {
		slog.Warn("Failed to record initial import task", "id", taskID, "error", err)
	}

	meta := TaskMeta{TaskID: taskID, Title: InitialImportTaskTitle, AutoRedirect: false, RedirectTo: NotificationsPath}
	req := Request{ID: taskID, Type: TaskTypeInitialImport, Years: years, LockHeld: true}
	if err := o.start(ctx, o.initialLock, meta, req); err != nil {
		return "", err
	}
	return taskID, nil
}

func (o *Orchestrator) start(ctx context.Context, lock *RunLock, meta TaskMeta, req Request) error {
	if err := o.progress.Register(ctx, meta); err != nil {
		slog.Warn("Failed to register task progress", "id", meta.TaskID, "error", err)
	}

	if err := o.dispatcher.Dispatch(ctx, req); err != nil {
		if relErr := lock.Release(ctx, req.ID); relErr != nil {
			slog.Error("Failed to release run-lock", "id", req.ID, "error", relErr)
		}
		o.progress.Fail(ctx, req.ID, "Task could not be scheduled", err)
		return err
	}
	return nil
}

// TaskFromRequest rebuilds a task received through the broker.
func (o *Orchestrator) TaskFromRequest(req Request) (TaskInterface, error) {
	switch req.Type {
	case TaskTypePeriodicSync, TaskTypeManualSync:
		task := o.NewPeriodicSyncTask(req.ID, req.Force)
		task.Type = req.Type
		task.lockHeld = req.LockHeld
		return task, nil
	case TaskTypeInitialImport:
		task := o.NewInitialImportTask(req.ID, req.Years)
		task.lockHeld = req.LockHeld
		return task, nil
	default:
		return nil, fmt.Errorf("unknown task type %q", req.Type)
	}
}

// InitialImportStatus describes the most recent backfill.
type InitialImportStatus struct {
	TaskID   string    `json:"task_id"`
	Running  bool      `json:"running"`
	Progress *Progress `json:"progress,omitempty"`
}

func (o *Orchestrator) InitialImportStatus(ctx context.Context) (*InitialImportStatus, error) {
	taskID, err := o.cache.Get(ctx, InitialImportLastRunKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read last initial import: %w", err)
	}
	if taskID == "" {
		return nil, nil
	}

	holder, err := o.initialLock.Holder(ctx)
	if err != nil {
		return nil, err
	}

	progress, err := o.progress.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}

	return &InitialImportStatus{TaskID: taskID, Running: holder == taskID, Progress: progress}, nil
}

// SyncDue reports whether the gates allow a periodic run and the last run
// is at least interval ago.
func (o *Orchestrator) SyncDue(interval time.Duration) bool {
	snapshot, err := o.settings.Load()
	if err != nil {
		slog.Warn("Failed to load settings", "error", err)
		return false
	}
	if !snapshot.Global.APIEnabled || !snapshot.Crawler.PeriodicSyncEnabled {
		return false
	}

	last, err := time.ParseInLocation(settings.ExecutionTimeLayout, snapshot.Crawler.LastExecutionTime, time.Local)
	if err != nil {
		return true
	}
	return time.Since(last) >= interval
}

// newCrawler builds the upstream stack from one settings snapshot.
func (o *Orchestrator) newCrawler(snapshot *settings.Settings) *eox.Crawler {
	tokens := ciscoapi.NewTokenManager(o.httpClient, o.cache, ciscoapi.Credentials{
		ClientID:     snapshot.CiscoAPI.ClientID,
		ClientSecret: snapshot.CiscoAPI.ClientSecret,
		AuthURL:      snapshot.AuthURL(),
	}, o.userAgent)
	client := ciscoapi.NewClient(o.httpClient, tokens, snapshot.BaseURL(), o.userAgent)
	reconciler := eox.NewReconciler(o.catalog, o.vendorName)

	return eox.NewCrawler(client, reconciler, o.catalog, snapshot.WaitTime())
}

func (o *Orchestrator) notify(ctx context.Context, n database.Notification) {
	if _, err := o.notifications.CreateNotification(ctx, n); err != nil {
		slog.Error("Failed to create notification", "title", n.Title, "error", err)
	}
}
