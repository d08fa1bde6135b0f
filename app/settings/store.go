package settings

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const ExecutionTimeLayout = "2006-01-02 15:04:05"

// Store reads and writes the settings file. The file is re-read on every
// Load so that operator changes apply to the next run without a restart.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns a snapshot of the current settings. A missing file yields the
// defaults, which leave the API and the periodic synchronization disabled.
func (s *Store) Load() (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load()
}

func (s *Store) load() (*Settings, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		slog.Debug("Settings file not found, using defaults", "path", s.path)
		return &Settings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validate(&settings); err != nil {
		return nil, fmt.Errorf("invalid settings %s: %w", s.path, err)
	}

	return &settings, nil
}

// Save writes the settings atomically.
func (s *Store) Save(settings *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.save(settings)
}

func (s *Store) save(settings *Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*.yml")
	if err != nil {
		return fmt.Errorf("failed to create temporary settings file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}

// RecordLastExecution stores the time and result lines of the last periodic
// synchronization. The file is re-read first so concurrent operator edits
// are not lost.
func (s *Store) RecordLastExecution(at time.Time, results []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.load()
	if err != nil {
		return err
	}

	settings.Crawler.LastExecutionTime = at.Format(ExecutionTimeLayout)
	settings.Crawler.LastExecutionResult = strings.Join(results, "\n")

	return s.save(settings)
}

func validate(settings *Settings) error {
	if settings.Crawler.SyncWaitTime != nil && *settings.Crawler.SyncWaitTime < 0 {
		return fmt.Errorf("eox_api_sync_wait_time must be non-negative")
	}

	urls := map[string]string{
		"auth_url": settings.CiscoAPI.AuthURL,
		"base_url": settings.CiscoAPI.BaseURL,
	}
	for name, value := range urls {
		if value != "" && !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
			return fmt.Errorf("%s must be an http(s) URL", name)
		}
	}

	return nil
}
