package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/productdb/eoxsync/app/api"
	"github.com/productdb/eoxsync/app/cache"
	"github.com/productdb/eoxsync/app/cfg"
	"github.com/productdb/eoxsync/app/database"
	"github.com/productdb/eoxsync/app/settings"
	"github.com/productdb/eoxsync/app/tasks"
)

var opts cfg.Options

func main() {
	parser := cfg.NewParser(&opts)
	parser.CommandHandler = func(command flags.Commander, args []string) error {
		c, err := cfg.Load(&opts)
		if err != nil {
			return err
		}
		setupLogging(c.Debug)
		return command.Execute(args)
	}

	parser.AddCommand("serve", "Run the scheduler, the task consumer and the HTTP server", "", &serveCommand{})
	parser.AddCommand("sync", "Trigger a forced synchronization with the Cisco EoX API", "", &syncCommand{})
	parser.AddCommand("initial-import", "Import the EoX data of the given announcement years", "", &initialImportCommand{})
	parser.AddCommand("initial-import-status", "Print the status of the most recent initial import", "", &initialImportStatusCommand{})

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		if errors.Is(err, tasks.ErrRunInProgress) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// runtime holds the components shared by all commands.
type runtime struct {
	cfg           *cfg.Cfg
	store         cache.Store
	db            *database.DB
	catalog       *database.ProductStore
	notifications *database.NotificationStore
	broker        *tasks.Broker
	orchestrator  *tasks.Orchestrator
}

// newRuntime connects the cache and the catalog. A nil dispatcher routes
// task requests through the broker.
func newRuntime(dispatcher tasks.Dispatcher) (*runtime, error) {
	c := cfg.Get()
	rt := &runtime{cfg: c}

	if c.RedisAddr != "" {
		redis, err := cache.NewRedis(c.RedisAddr, c.RedisPassword, c.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		rt.store = redis
	} else {
		slog.Warn("No Redis address configured, using in-process cache (runs are not shared between processes)")
		rt.store = cache.NewMemory()
	}

	db, err := database.NewConnection(c.DBPath)
	if err != nil {
		rt.store.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	rt.db = db

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Database ready", "path", c.DBPath, "schema_version", version, "dirty", dirty)

	rt.catalog = database.NewProductStore(db)
	rt.notifications = database.NewNotificationStore(db)
	rt.broker = tasks.NewBroker(rt.store)

	if dispatcher == nil {
		dispatcher = rt.broker
	}
	rt.orchestrator = tasks.NewOrchestrator(tasks.OrchestratorConfig{
		Settings:      settings.NewStore(c.SettingsFile),
		Cache:         rt.store,
		Catalog:       rt.catalog,
		Notifications: rt.notifications,
		HTTPClient:    &http.Client{Timeout: c.HTTPTimeoutDuration()},
		Dispatcher:    dispatcher,
		VendorName:    c.VendorName,
		UserAgent:     c.UserAgent,
	})

	return rt, nil
}

func (rt *runtime) Close() {
	if rt.db != nil {
		rt.db.Close()
	}
	if rt.store != nil {
		rt.store.Close()
	}
}

type serveCommand struct{}

func (c *serveCommand) Execute(_ []string) error {
	rt, err := newRuntime(nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	conf := rt.cfg
	slog.Info("Starting ProductDB EoX Sync server", "version", conf.Version)

	slog.Info("Starting background scheduler", "workers", conf.WorkerCount, "interval", conf.SchedulerInterval)
	scheduler := tasks.NewScheduler(rt.orchestrator, rt.broker,
		time.Duration(conf.SchedulerInterval)*time.Second, conf.WorkerCount)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(rt.orchestrator, rt.orchestrator.Progress(), rt.catalog, rt.notifications, rt.store, conf.Version)
	httpServer := &http.Server{
		Addr:         ":" + conf.Port,
		Handler:      api.NewServer(handler, conf.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", conf.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case serveErr = <-serverErrChan:
		slog.Error("Server error", "error", serveErr)
	}

	slog.Info("Shutting down server gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	return serveErr
}
