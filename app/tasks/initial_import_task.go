package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/productdb/eoxsync/app/database"
	"github.com/productdb/eoxsync/app/eox"
)

const (
	InitialImportTimeout = InitialImportLockTTL

	InitialImportFinishedTitle = "Initial data import finished"
	InitialImportFailedTitle   = "Initial data import failed"
	statusNoYears              = "No years provided, nothing to do."
)

// InitialImportTask backfills the catalog year by year. Every record is
// created when missing and the blacklist does not apply.
type InitialImportTask struct {
	Task
	Years []int

	orchestrator *Orchestrator
	lockHeld     bool
}

// YearResult is the outcome of one year of the backfill.
type YearResult struct {
	Year   int            `json:"year"`
	Report *eox.RunReport `json:"report,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func (o *Orchestrator) NewInitialImportTask(id string, years []int) *InitialImportTask {
	return &InitialImportTask{
		Task:         NewTask(TaskTypeInitialImport, id, InitialImportTimeout),
		Years:        years,
		orchestrator: o,
	}
}

func (t *InitialImportTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	o := t.orchestrator

	if !t.lockHeld {
		if err := o.initialLock.Acquire(ctx, t.ID); err != nil {
			return err
		}
		if err := o.cache.Set(ctx, InitialImportLastRunKey, t.ID, InitialImportLockTTL); err != nil {
			slog.Warn("Failed to record initial import task", "id", t.ID, "error", err)
		}
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := o.initialLock.Release(releaseCtx, t.ID); err != nil {
			slog.Error("Failed to release run-lock", "id", t.ID, "error", err)
		}
	}()

	err := t.run(ctx)
	if err != nil {
		o.progress.Fail(context.Background(), t.ID, "Initial import failed", err)
	}
	return err
}

func (t *InitialImportTask) run(ctx context.Context) error {
	o := t.orchestrator

	if len(t.Years) == 0 {
		return o.progress.Update(ctx, t.ID, StateSuccess, statusNoYears, nil)
	}

	snapshot, err := o.settings.Load()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	for _, gate := range []struct {
		failed bool
		err    error
	}{
		{!snapshot.Global.APIEnabled, ErrAPIDisabled},
		{!snapshot.HasCredentials(), ErrMissingCredentials},
	} {
		if gate.failed {
			o.notify(ctx, database.Notification{
				Title:          InitialImportFailedTitle,
				Type:           database.NotificationWarning,
				SummaryMessage: fmt.Sprintf("Initial import not executed: %s.", gate.err),
			})
			return gate.err
		}
	}

	crawler := o.newCrawler(snapshot)
	wait := snapshot.WaitTime()
	policy := eox.Policy{CreateMissing: true}

	slog.Info("Initial import started", "id", t.ID, "years", t.Years)

	var succeeded, failed []string
	results := make([]YearResult, 0, len(t.Years))
	for i, year := range t.Years {
		o.progress.Update(ctx, t.ID, StateProcessing, fmt.Sprintf("Import year %d (%d of %d)", year, i+1, len(t.Years)), nil)

		if err := o.sleep(ctx, wait); err != nil {
			return err
		}

		report, err := crawler.CrawlByYear(ctx, year, policy)
		result := YearResult{Year: year, Report: report}
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return err
			}
			result.Error = err.Error()
			failed = append(failed, strconv.Itoa(year))
			o.notify(ctx, database.Notification{
				Title:           InitialImportFailedTitle,
				Type:            database.NotificationError,
				SummaryMessage:  fmt.Sprintf("The initial import of the EoX data for year %d failed.", year),
				DetailedMessage: err.Error(),
			})
		} else {
			succeeded = append(succeeded, strconv.Itoa(year))
		}
		results = append(results, result)
	}

	status := "The EoX data were successfully downloaded for the following years: "
	if len(succeeded) == 0 {
		status += "None"
	} else {
		status += strings.Join(succeeded, ",")
	}
	if len(failed) > 0 {
		status += fmt.Sprintf(" (for %s the synchronization failed)", strings.Join(failed, ","))
	}

	severity := database.NotificationSuccess
	switch {
	case len(succeeded) == 0:
		severity = database.NotificationError
	case len(failed) > 0:
		severity = database.NotificationWarning
	}
	o.notify(ctx, database.Notification{
		Title:           InitialImportFinishedTitle,
		Type:            severity,
		SummaryMessage:  status,
		DetailedMessage: detailYears(results),
	})

	slog.Info("Initial import finished", "id", t.ID, "succeeded", len(succeeded), "failed", len(failed))
	return o.progress.Update(ctx, t.ID, StateSuccess, status, results)
}

func detailYears(results []YearResult) string {
	var b strings.Builder
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(&b, "%d: failed (%s)\n", r.Year, r.Error)
			continue
		}
		c := r.Report.Counts()
		fmt.Fprintf(&b, "%d: %d created, %d updated, %d suppressed, %d failed\n",
			r.Year, c.Created, c.Updated, c.Suppressed, c.Failed)
	}
	return b.String()
}
