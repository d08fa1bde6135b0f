package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/productdb/eoxsync/app/tasks"
)

// inlineDispatcher keeps the request so the command can execute it in the
// current process.
type inlineDispatcher struct {
	mu  sync.Mutex
	req *tasks.Request
}

func (d *inlineDispatcher) Dispatch(_ context.Context, req tasks.Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.req = &req
	return nil
}

func (d *inlineDispatcher) run(rt *runtime) error {
	d.mu.Lock()
	req := d.req
	d.mu.Unlock()
	if req == nil {
		return fmt.Errorf("no task was dispatched")
	}

	task, err := rt.orchestrator.TaskFromRequest(*req)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), task.Timeout())
	defer cancel()

	task.Start()
	if err := task.Execute(ctx); err != nil {
		return err
	}
	slog.Info("Task completed", "type", string(task.GetType()), "id", task.GetID(), "duration", task.GetDuration())

	return printProgress(ctx, rt, task.GetID())
}

// newCommandRuntime runs the task in this process when foreground is set or
// no broker is shared with a server.
func newCommandRuntime(foreground bool) (*runtime, *inlineDispatcher, error) {
	var inline *inlineDispatcher
	var dispatcher tasks.Dispatcher
	if foreground || opts.RedisAddr == "" {
		inline = &inlineDispatcher{}
		dispatcher = inline
	}

	rt, err := newRuntime(dispatcher)
	if err != nil {
		return nil, nil, err
	}
	return rt, inline, nil
}

type syncCommand struct {
	Foreground bool `long:"foreground" description:"Run the synchronization in this process instead of a worker"`
}

func (c *syncCommand) Execute(_ []string) error {
	rt, inline, err := newCommandRuntime(c.Foreground)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := context.Background()
	taskID, err := rt.orchestrator.TriggerManualSync(ctx)
	if err != nil {
		var inProgress *tasks.RunInProgressError
		if errors.As(err, &inProgress) {
			fmt.Fprintf(os.Stderr, "Synchronization already in progress (task %s)\n", inProgress.TaskID)
			printProgress(ctx, rt, inProgress.TaskID)
		}
		return err
	}

	if inline != nil {
		return inline.run(rt)
	}

	fmt.Printf("Synchronization scheduled, task ID %s\n", taskID)
	return nil
}

type initialImportCommand struct {
	Foreground bool `long:"foreground" description:"Run the import in this process instead of a worker"`
	Args       struct {
		Years []int `positional-arg-name:"YEAR" required:"1" description:"Announcement years to import"`
	} `positional-args:"yes" required:"yes"`
}

func (c *initialImportCommand) Execute(_ []string) error {
	rt, inline, err := newCommandRuntime(c.Foreground)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := context.Background()
	taskID, err := rt.orchestrator.TriggerInitialImport(ctx, c.Args.Years)
	if err != nil {
		if errors.Is(err, tasks.ErrRunInProgress) {
			fmt.Fprintln(os.Stderr, "Initial import already in progress")
			printImportStatus(ctx, rt)
		}
		return err
	}

	if inline != nil {
		return inline.run(rt)
	}

	fmt.Printf("Initial import scheduled, task ID %s\n", taskID)
	return nil
}

type initialImportStatusCommand struct{}

func (c *initialImportStatusCommand) Execute(_ []string) error {
	rt, err := newRuntime(nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	return printImportStatus(context.Background(), rt)
}

func printImportStatus(ctx context.Context, rt *runtime) error {
	status, err := rt.orchestrator.InitialImportStatus(ctx)
	if err != nil {
		return err
	}
	if status == nil {
		fmt.Println("No initial import was executed.")
		return nil
	}
	return printJSON(status)
}

func printProgress(ctx context.Context, rt *runtime, taskID string) error {
	progress, err := rt.orchestrator.Progress().Get(ctx, taskID)
	if err != nil {
		return err
	}
	if progress == nil {
		fmt.Printf("No progress recorded for task %s\n", taskID)
		return nil
	}
	return printJSON(map[string]interface{}{"task_id": taskID, "progress": progress})
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
