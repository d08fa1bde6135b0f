package settings

import (
	"strings"
	"time"
)

const (
	DefaultAuthURL  = "https://id.cisco.com/oauth2/default/v1/token"
	DefaultBaseURL  = "https://apix.cisco.com"
	DefaultWaitTime = 5
)

// Settings is the operator-editable configuration of the EoX synchronization.
// A value returned by Store.Load is a snapshot and is never refreshed.
type Settings struct {
	Global   GlobalSection   `yaml:"global"`
	CiscoAPI CiscoAPISection `yaml:"cisco_api"`
	Crawler  CrawlerSection  `yaml:"cisco_eox_api_crawler"`
}

type GlobalSection struct {
	APIEnabled bool `yaml:"api_enabled"`
}

type CiscoAPISection struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AuthURL      string `yaml:"auth_url"`
	BaseURL      string `yaml:"base_url"`
}

type CrawlerSection struct {
	PeriodicSyncEnabled   bool   `yaml:"periodic_sync_enabled"`
	AutoCreateNewProducts bool   `yaml:"auto_create_new_products"`
	Queries               string `yaml:"eox_api_queries"`
	BlacklistRegex        string `yaml:"product_blacklist_regex"`
	SyncWaitTime          *int   `yaml:"eox_api_sync_wait_time,omitempty"` // seconds

	LastExecutionTime   string `yaml:"eox_api_auto_sync_last_execution_time"`
	LastExecutionResult string `yaml:"eox_api_auto_sync_last_execution_result"`
}

// Queries returns the configured product patterns, one per non-empty line.
func (s *Settings) Queries() []string {
	var queries []string
	for _, line := range strings.Split(strings.ReplaceAll(s.Crawler.Queries, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			queries = append(queries, line)
		}
	}
	return queries
}

// WaitTime is the delay inserted before each upstream query.
func (s *Settings) WaitTime() time.Duration {
	if s.Crawler.SyncWaitTime == nil {
		return DefaultWaitTime * time.Second
	}
	if *s.Crawler.SyncWaitTime <= 0 {
		return 0
	}
	return time.Duration(*s.Crawler.SyncWaitTime) * time.Second
}

func (s *Settings) HasCredentials() bool {
	return s.CiscoAPI.ClientID != "" && s.CiscoAPI.ClientSecret != ""
}

func (s *Settings) AuthURL() string {
	if s.CiscoAPI.AuthURL == "" {
		return DefaultAuthURL
	}
	return s.CiscoAPI.AuthURL
}

func (s *Settings) BaseURL() string {
	if s.CiscoAPI.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimSuffix(s.CiscoAPI.BaseURL, "/")
}
