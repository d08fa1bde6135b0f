package tasks

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/productdb/eoxsync/app/cache"
	"github.com/productdb/eoxsync/app/database"
	"github.com/productdb/eoxsync/app/settings"
)

const recordsBody = `{
	"PaginationResponseRecord": {"PageIndex": 1, "LastIndex": 1, "TotalRecords": 2, "PageRecords": 2},
	"EOXRecord": [
		{"EOLProductID": "%[1]s-8PC-S", "ProductIDDescription": "Switch", "UpdatedTimeStamp": {"value": "2015-11-03", "dateFormat": "YYYY-MM-DD"}, "EndOfSaleDate": {"value": "2016-10-30", "dateFormat": "YYYY-MM-DD"}},
		{"EOLProductID": "%[1]s-12PC-S", "ProductIDDescription": "Switch", "UpdatedTimeStamp": {"value": "2015-11-03", "dateFormat": "YYYY-MM-DD"}}
	]
}`

// upstream fakes the token and data endpoints. Paths containing FAIL
// answer with HTTP 500.
type upstream struct {
	auth     *httptest.Server
	api      *httptest.Server
	tokens   int32
	requests int32

	mu    sync.Mutex
	paths []string
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}

	u.auth = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.tokens, 1)
		fmt.Fprint(w, `{"access_token":"token","token_type":"Bearer","expires_in":3599}`)
	}))
	u.api = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.requests, 1)
		u.mu.Lock()
		u.paths = append(u.paths, r.URL.Path)
		u.mu.Unlock()

		if strings.Contains(r.URL.Path, "FAIL") || strings.Contains(r.URL.Path, "2017-") {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, "internal error")
			return
		}

		prefix := "WS-C3560C"
		if segments := strings.Split(r.URL.Path, "/"); strings.Contains(r.URL.Path, "EOXByDates") {
			prefix = "YEAR-" + segments[len(segments)-2][:4]
		}
		fmt.Fprintf(w, recordsBody, prefix)
	}))
	t.Cleanup(func() {
		u.auth.Close()
		u.api.Close()
	})
	return u
}

func (u *upstream) calls() int32 {
	return atomic.LoadInt32(&u.tokens) + atomic.LoadInt32(&u.requests)
}

type recordingDispatcher struct {
	mu       sync.Mutex
	requests []Request
	err      error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, req Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.requests = append(d.requests, req)
	return nil
}

type fixture struct {
	orchestrator  *Orchestrator
	store         *cache.Memory
	settings      *settings.Store
	catalog       *database.ProductStore
	notifications *database.NotificationStore
	dispatcher    *recordingDispatcher
	upstream      *upstream
}

// newFixture builds an orchestrator against a fresh catalog and the fake
// upstream. crawler is appended to the cisco_eox_api_crawler section.
func newFixture(t *testing.T, apiEnabled bool, crawler string) *fixture {
	t.Helper()

	u := newUpstream(t)

	path := filepath.Join(t.TempDir(), "settings.yml")
	content := fmt.Sprintf(`global:
  api_enabled: %t
cisco_api:
  client_id: "id"
  client_secret: "secret"
  auth_url: %q
  base_url: %q
cisco_eox_api_crawler:
  eox_api_sync_wait_time: 0
%s`, apiEnabled, u.auth.URL, u.api.URL, crawler)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "catalog.sqlite"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	f := &fixture{
		store:         cache.NewMemory(),
		settings:      settings.NewStore(path),
		catalog:       database.NewProductStore(db),
		notifications: database.NewNotificationStore(db),
		dispatcher:    &recordingDispatcher{},
		upstream:      u,
	}
	f.orchestrator = NewOrchestrator(OrchestratorConfig{
		Settings:      f.settings,
		Cache:         f.store,
		Catalog:       f.catalog,
		Notifications: f.notifications,
		HTTPClient:    http.DefaultClient,
		Dispatcher:    f.dispatcher,
		VendorName:    "Cisco Systems",
		UserAgent:     "eoxsync-test",
	})
	return f
}

func (f *fixture) notificationList(t *testing.T) []database.Notification {
	t.Helper()
	list, err := f.notifications.GetRecentNotifications(context.Background(), 100)
	if err != nil {
		t.Fatalf("Failed to read notifications: %v", err)
	}
	return list
}

func (f *fixture) progress(t *testing.T, taskID string) *Progress {
	t.Helper()
	p, err := f.orchestrator.Progress().Get(context.Background(), taskID)
	if err != nil {
		t.Fatalf("Failed to read progress: %v", err)
	}
	if p == nil {
		t.Fatalf("Expected progress for task %s", taskID)
	}
	return p
}
