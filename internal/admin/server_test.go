package admin

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nite-io/wakeproxy/internal/activity"
	"github.com/nite-io/wakeproxy/internal/config"
	"github.com/nite-io/wakeproxy/internal/driver"
	"github.com/nite-io/wakeproxy/internal/driver/drivertest"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	return l
}

func storeFromDoc(t *testing.T, contents string) *config.Store {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := config.NewStore(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func newTestServer(t *testing.T, fake *drivertest.Fake) *Server {
	store := storeFromDoc(t, `{
		"containers": {
			"wiki": {"host": "wiki.example.com", "path": "wiki", "url": "http://127.0.0.1:1", "active": true}
		},
		"order": ["wiki"]
	}`)
	reg := driver.Registry{Runtime: fake}
	tracker := activity.New(testLogger())
	return New(testLogger(), tracker, reg, store)
}

func TestStatusReportsRunningState(t *testing.T) {
	fake := drivertest.New()
	fake.SetRunning("wiki", true, time.Now())
	s := newTestServer(t, fake)

	req := httptest.NewRequest(http.MethodGet, "/api/containers/wiki/status", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"running":true`) {
		t.Fatalf("expected running:true in body, got %s", rec.Body.String())
	}
}

func TestStatusUnknownBackendNotFound(t *testing.T) {
	fake := drivertest.New()
	s := newTestServer(t, fake)

	req := httptest.NewRequest(http.MethodGet, "/api/containers/ghost/status", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStartTriggersDriverAndDebounces(t *testing.T) {
	fake := drivertest.New()
	s := newTestServer(t, fake)

	req := httptest.NewRequest(http.MethodPost, "/api/containers/wiki/start", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/api/containers/wiki/start", nil)
	rec2 := httptest.NewRecorder()
	s.ServeHTTP(rec2, req2)

	if rec2.Code != http.StatusAccepted {
		t.Fatalf("expected second start call to also report 202 (debounced), got %d", rec2.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for fake.CountStart("wiki") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fake.CountStart("wiki") != 1 {
		t.Fatalf("expected exactly one Start call, got %d", fake.CountStart("wiki"))
	}
}

func TestStopReleasesGuardOnSuccess(t *testing.T) {
	fake := drivertest.New()
	fake.SetRunning("wiki", true, time.Now())
	s := newTestServer(t, fake)

	req := httptest.NewRequest(http.MethodPost, "/api/containers/wiki/stop", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if fake.CountStop("wiki") != 1 {
		t.Fatalf("expected exactly one Stop call, got %d", fake.CountStop("wiki"))
	}
	if s.tracker.IsStopping("wiki") {
		t.Fatal("stopping guard should be released after a successful stop")
	}
}
