package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

// Options holds the global command-line options shared by every command.
type Options struct {
	// Storage
	DBPath string `long:"db-path" env:"DB_PATH" default:"./productdb.sqlite" description:"Path of the SQLite product catalog"`

	// Shared cache and broker
	RedisAddr     string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for the shared cache and task broker (in-process cache when empty)"`
	RedisPassword string `long:"redis-password" env:"REDIS_PASSWORD" description:"Redis password"`
	RedisDB       int    `long:"redis-db" env:"REDIS_DB" default:"0" description:"Redis database number"`

	// Application configuration
	SettingsFile      string `long:"settings-file" env:"SETTINGS_FILE" default:"./settings.yml" description:"Operator settings file, re-read at the start of each run"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"2" description:"Number of background task workers"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"86400" description:"Periodic synchronization interval in seconds"`
	VendorName        string `long:"vendor-name" env:"VENDOR_NAME" default:"Cisco Systems" description:"Catalog vendor assigned to created products"`

	// Application metadata
	UserAgent   string `long:"user-agent" env:"USER_AGENT" default:"ProductDB EoX Sync/1.0" description:"User agent string for HTTP requests"`
	HTTPTimeout int    `long:"http-timeout" env:"HTTP_TIMEOUT" default:"60" description:"Timeout in seconds for upstream HTTP requests"`
	Timezone    string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, Europe/Berlin)"`
	Debug       bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

// NewParser returns a go-flags parser bound to opts; commands are added by the caller.
func NewParser(opts *Options) *flags.Parser {
	return flags.NewParser(opts, flags.Default)
}

// Load converts parsed options into the process configuration and makes it
// available through Get.
func Load(opts *Options) (*Cfg, error) {
	if opts == nil {
		return nil, fmt.Errorf("options are nil")
	}
	if opts.WorkerCount <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", opts.WorkerCount)
	}
	if opts.SchedulerInterval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be positive, got %d", opts.SchedulerInterval)
	}

	cfg := &Cfg{
		DBPath:            opts.DBPath,
		RedisAddr:         opts.RedisAddr,
		RedisPassword:     opts.RedisPassword,
		RedisDB:           opts.RedisDB,
		SettingsFile:      opts.SettingsFile,
		Port:              opts.Port,
		APIAccessKey:      opts.APIAccessKey,
		WorkerCount:       opts.WorkerCount,
		SchedulerInterval: opts.SchedulerInterval,
		VendorName:        opts.VendorName,
		UserAgent:         opts.UserAgent,
		HTTPTimeout:       opts.HTTPTimeout,
		Timezone:          opts.Timezone,
		Debug:             opts.Debug,
		Version:           GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// HTTPTimeoutDuration returns the upstream request timeout.
func (c *Cfg) HTTPTimeoutDuration() time.Duration {
	if c.HTTPTimeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.HTTPTimeout) * time.Second
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
