package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/productdb/eoxsync/app/cache"
	"github.com/productdb/eoxsync/app/database"
	"github.com/productdb/eoxsync/app/tasks"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 500
)

func NewHandler(trigger SyncTrigger, progress ProgressReader, catalog database.ProductRepository,
	notifications database.NotificationRepository, c cache.Cache, version string) *Handler {
	return &Handler{
		trigger:       trigger,
		progress:      progress,
		catalog:       catalog,
		notifications: notifications,
		cache:         c,
		version:       version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
	}

	if count, err := h.catalog.GetProductCount(c.Request.Context()); err == nil {
		health["products"] = count
	}

	health["cache"] = h.cache.Health(c.Request.Context())

	c.JSON(http.StatusOK, health)
}

// APITriggerSync runs the manual synchronization. A held run-lock answers
// 409 with the ID of the active task.
func (h *Handler) APITriggerSync(c *gin.Context) {
	taskID, err := h.trigger.TriggerManualSync(c.Request.Context())

	var inProgress *tasks.RunInProgressError
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{
			"task_id":    taskID,
			"status_url": "/api/tasks/" + taskID,
		})

	case errors.As(err, &inProgress):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Synchronization already in progress",
			"task_id": inProgress.TaskID,
		})

	case errors.Is(err, tasks.ErrAPIDisabled):
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": err.Error()})

	default:
		slog.Error("Failed to trigger synchronization", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to trigger synchronization",
			"details": err.Error(),
		})
	}
}

func (h *Handler) APIGetTask(c *gin.Context) {
	taskID := c.Param("id")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing task ID parameter"})
		return
	}

	meta, err := h.progress.GetMeta(c.Request.Context(), taskID)
	if err != nil {
		slog.Error("Cache error", "operation", "get_task_meta", "task_id", taskID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cache error"})
		return
	}

	progress, err := h.progress.Get(c.Request.Context(), taskID)
	if err != nil {
		slog.Error("Cache error", "operation", "get_task_progress", "task_id", taskID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cache error"})
		return
	}

	if meta == nil && progress == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"task_id":  taskID,
		"meta":     meta,
		"progress": progress,
	})
}

func (h *Handler) APIInitialImportStatus(c *gin.Context) {
	status, err := h.trigger.InitialImportStatus(c.Request.Context())
	if err != nil {
		slog.Error("Failed to read initial import status", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cache error"})
		return
	}
	if status == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No initial import was executed"})
		return
	}

	c.JSON(http.StatusOK, status)
}

func (h *Handler) APIListNotifications(c *gin.Context) {
	limit := defaultNotificationLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxNotificationLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
		limit = n
	}

	list, err := h.notifications.GetRecentNotifications(c.Request.Context(), limit)
	if err != nil {
		slog.Error("Database error", "operation", "get_notifications", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if list == nil {
		list = []database.Notification{}
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": list,
		"total":         len(list),
	})
}
