package tasks

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/productdb/eoxsync/app/database"
	"github.com/productdb/eoxsync/app/eox"
)

const (
	PeriodicSyncSoftDeadline = 23 * time.Hour
	PeriodicSyncHardDeadline = 24 * time.Hour

	SyncNotificationTitle = "Synchronization with Cisco EoX API"
	statusNotEnabled      = "task not enabled"
	statusNoQueries       = "No Cisco EoX API queries configured."
)

// PeriodicSyncTask runs every configured product query. Force skips the
// periodic_sync_enabled gate and is set for manual triggers.
type PeriodicSyncTask struct {
	Task
	Force bool

	orchestrator *Orchestrator
	lockHeld     bool
}

// QueryResult is the outcome of one configured query.
type QueryResult struct {
	Query  string         `json:"query"`
	Report *eox.RunReport `json:"report,omitempty"`
	Err    error          `json:"-"`
	Error  string         `json:"error,omitempty"`
}

func (o *Orchestrator) NewPeriodicSyncTask(id string, force bool) *PeriodicSyncTask {
	taskType := TaskTypePeriodicSync
	if force {
		taskType = TaskTypeManualSync
	}
	return &PeriodicSyncTask{
		Task:         NewTask(taskType, id, PeriodicSyncHardDeadline),
		Force:        force,
		orchestrator: o,
	}
}

func (t *PeriodicSyncTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	o := t.orchestrator

	if !t.lockHeld {
		if err := o.syncLock.Acquire(ctx, t.ID); err != nil {
			if errors.Is(err, ErrRunInProgress) {
				slog.Info("Synchronization already running, skipping", "id", t.ID, "error", err)
				return nil
			}
			return err
		}
	}
	defer func() {
		// The context may already be done after the hard deadline.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := o.syncLock.Release(releaseCtx, t.ID); err != nil {
			slog.Error("Failed to release run-lock", "id", t.ID, "error", err)
		}
	}()

	soft := time.AfterFunc(PeriodicSyncSoftDeadline, func() {
		slog.Warn("Synchronization exceeds soft time limit", "id", t.ID, "limit", PeriodicSyncSoftDeadline.String())
	})
	defer soft.Stop()

	err := t.run(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		slog.Error("Synchronization exceeded hard time limit", "id", t.ID, "limit", PeriodicSyncHardDeadline.String())
		o.notify(context.Background(), database.Notification{
			Title:          SyncNotificationTitle,
			Type:           database.NotificationError,
			SummaryMessage: "The synchronization with the Cisco EoX API was aborted because it exceeded the time limit.",
		})
	}
	if err != nil {
		o.progress.Fail(context.Background(), t.ID, "Synchronization failed", err)
	}
	return err
}

func (t *PeriodicSyncTask) run(ctx context.Context) error {
	o := t.orchestrator

	snapshot, err := o.settings.Load()
	if err != nil {
		o.progress.Fail(ctx, t.ID, "Cannot load settings", err)
		return fmt.Errorf("failed to load settings: %w", err)
	}

	if !snapshot.Global.APIEnabled {
		o.notify(ctx, database.Notification{
			Title:          SyncNotificationTitle,
			Type:           database.NotificationWarning,
			SummaryMessage: "Cisco API access not enabled, synchronization not executed.",
		})
		o.progress.Fail(ctx, t.ID, "Cisco API access not enabled", ErrAPIDisabled)
		return ErrAPIDisabled
	}

	if !t.Force && !snapshot.Crawler.PeriodicSyncEnabled {
		slog.Info("Periodic synchronization not enabled, skipping", "id", t.ID)
		return o.progress.Update(ctx, t.ID, StateSuccess, statusNotEnabled, nil)
	}

	if !snapshot.HasCredentials() {
		o.notify(ctx, database.Notification{
			Title:          SyncNotificationTitle,
			Type:           database.NotificationWarning,
			SummaryMessage: "Cisco API client credentials not configured, synchronization not executed.",
		})
		o.progress.Fail(ctx, t.ID, "Cisco API client credentials not configured", ErrMissingCredentials)
		return ErrMissingCredentials
	}

	queries := snapshot.Queries()
	if len(queries) == 0 {
		o.notify(ctx, database.Notification{
			Title:          SyncNotificationTitle,
			Type:           database.NotificationWarning,
			SummaryMessage: statusNoQueries,
		})
		o.progress.Fail(ctx, t.ID, statusNoQueries, ErrNoQueries)
		return ErrNoQueries
	}

	blacklist := eox.CompileBlacklist(snapshot.Crawler.BlacklistRegex)
	policy := eox.Policy{
		CreateMissing: snapshot.Crawler.AutoCreateNewProducts,
		Blacklist:     blacklist,
	}
	crawler := o.newCrawler(snapshot)
	wait := snapshot.WaitTime()

	slog.Info("Synchronization with Cisco EoX API started", "id", t.ID, "queries", len(queries), "force", t.Force)

	results := make([]QueryResult, 0, len(queries))
	for i, query := range queries {
		o.progress.Update(ctx, t.ID, StateProcessing, fmt.Sprintf("Execute query %d of %d: %s", i+1, len(queries), query), nil)

		if err := o.sleep(ctx, wait); err != nil {
			return err
		}

		report, err := crawler.CrawlByPattern(ctx, query, policy)
		result := QueryResult{Query: query, Report: report, Err: err}
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			result.Error = err.Error()
		}
		results = append(results, result)
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}

	severity := database.NotificationInfo
	switch {
	case failed == len(results):
		severity = database.NotificationError
	case failed > 0:
		severity = database.NotificationWarning
	}

	summary := summarizeQueries(results)
	o.notify(ctx, database.Notification{
		Title:           SyncNotificationTitle,
		Type:            severity,
		SummaryMessage:  summary,
		DetailedMessage: detailQueries(results, len(blacklist.Invalid())),
	})

	if err := o.settings.RecordLastExecution(time.Now(), resultLines(results)); err != nil {
		slog.Warn("Failed to record last execution", "error", err)
	}

	slog.Info("Synchronization with Cisco EoX API finished", "id", t.ID, "queries", len(results), "failed", failed,
		"invalid_blacklist_patterns", len(blacklist.Invalid()))

	if failed == len(results) {
		o.progress.Fail(ctx, t.ID, summary, results[0].Err)
		return fmt.Errorf("all %d queries failed: %w", failed, results[0].Err)
	}
	return o.progress.Update(ctx, t.ID, StateSuccess, summary, results)
}

// summarizeQueries renders the operator summary, one list entry per query.
func summarizeQueries(results []QueryResult) string {
	var b strings.Builder
	b.WriteString(`<p style="text-align: left;">The following queries were executed:<br><ul style="text-align: left;">`)
	for _, r := range results {
		query := html.EscapeString(r.Query)
		if r.Err != nil {
			fmt.Fprintf(&b, `<li class="text-danger"><code>%s</code> (failed, %s)</li>`, query, html.EscapeString(r.Err.Error()))
			continue
		}
		fmt.Fprintf(&b, `<li><code>%s</code> (<b>affects %d products</b>, success)</li>`, query, affected(r.Report))
	}
	b.WriteString("</ul></p>")
	return b.String()
}

func detailQueries(results []QueryResult, invalidPatterns int) string {
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "Query %s\n", r.Query)
		if r.Report != nil {
			for _, o := range r.Report.Outcomes {
				fmt.Fprintf(&b, "  %s\n", outcomeLine(o))
			}
		}
		if r.Err != nil {
			fmt.Fprintf(&b, "  failed: %s\n", r.Err)
		}
	}
	if invalidPatterns > 0 {
		fmt.Fprintf(&b, "%d invalid product blacklist pattern(s) were ignored\n", invalidPatterns)
	}
	return b.String()
}

func resultLines(results []QueryResult) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			lines = append(lines, fmt.Sprintf("%s: failed (%s)", r.Query, r.Err))
			continue
		}
		c := r.Report.Counts()
		lines = append(lines, fmt.Sprintf("%s: %d created, %d updated, %d blacklisted, %d failed",
			r.Query, c.Created, c.Updated, c.Blacklisted, c.Failed))
	}
	return lines
}

func outcomeLine(o eox.Outcome) string {
	if o.ProductID == "" {
		return o.Message
	}
	switch {
	case o.Blacklisted:
		return fmt.Sprintf("%s: blacklisted entry (not updated)", o.ProductID)
	case o.Message != "":
		return fmt.Sprintf("%s: %s", o.ProductID, o.Message)
	case o.Created:
		return fmt.Sprintf("%s: created", o.ProductID)
	case o.Updated:
		return fmt.Sprintf("%s: updated", o.ProductID)
	default:
		return fmt.Sprintf("%s: not in database", o.ProductID)
	}
}

// affected counts the records a query returned.
func affected(report *eox.RunReport) int {
	if report == nil {
		return 0
	}
	n := 0
	for _, o := range report.Outcomes {
		if o.ProductID != "" {
			n++
		}
	}
	return n
}
