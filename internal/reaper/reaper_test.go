package reaper

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nite-io/wakeproxy/internal/activity"
	"github.com/nite-io/wakeproxy/internal/config"
	"github.com/nite-io/wakeproxy/internal/driver"
	"github.com/nite-io/wakeproxy/internal/driver/drivertest"
	"github.com/nite-io/wakeproxy/internal/group"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func storeFromDoc(t *testing.T, jsonDoc string) *config.Store {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(jsonDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	st, err := config.NewStore(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestTickStopsIdleBackend(t *testing.T) {
	activated := time.Now().Add(-200 * time.Second)
	doc := `{
		"containers": {"B": {"host": "b", "path": "b", "url": "http://b", "idleTimeout": 30, "active": true, "activatedAt": "` + activated.Format(time.RFC3339) + `"}},
		"order": ["B"]
	}`
	store := storeFromDoc(t, doc)

	fake := drivertest.New()
	fake.SetRunning("B", true, time.Now().Add(-120*time.Second))

	tr := activity.New(testLogger())
	tr.InitLastActivity("B", time.Now().Add(-40*time.Second))

	reg := driver.Registry{Runtime: fake, Virtualization: fake}
	mgr := group.New(testLogger(), tr, reg)
	r := New(testLogger(), tr, reg, store, mgr)

	r.Tick(context.Background())

	if fake.CountStop("B") != 1 {
		t.Fatalf("expected exactly one stop call, got %d", fake.CountStop("B"))
	}
	if tr.IsStopping("B") {
		t.Fatal("stopping guard should be released after the sweep")
	}
}

func TestTickSkipsWhenIdleTimeoutZero(t *testing.T) {
	doc := `{
		"containers": {"B": {"host": "b", "path": "b", "url": "http://b", "idleTimeout": 0, "active": true}},
		"order": ["B"]
	}`
	store := storeFromDoc(t, doc)

	fake := drivertest.New()
	fake.SetRunning("B", true, time.Now().Add(-1000*time.Second))

	tr := activity.New(testLogger())
	tr.InitLastActivity("B", time.Now().Add(-1000*time.Second))

	reg := driver.Registry{Runtime: fake, Virtualization: fake}
	mgr := group.New(testLogger(), tr, reg)
	r := New(testLogger(), tr, reg, store, mgr)

	r.Tick(context.Background())

	if fake.CountStop("B") != 0 {
		t.Fatal("idleTimeout=0 must disable idle stopping")
	}
}

func TestTickSkipsBackendWithoutActivatedAt(t *testing.T) {
	doc := `{
		"containers": {"B": {"host": "b", "path": "b", "url": "http://b", "idleTimeout": 30, "active": true}},
		"order": ["B"]
	}`
	store := storeFromDoc(t, doc)

	fake := drivertest.New()
	fake.SetRunning("B", true, time.Now().Add(-1000*time.Second))

	tr := activity.New(testLogger())
	tr.InitLastActivity("B", time.Now().Add(-1000*time.Second))

	reg := driver.Registry{Runtime: fake, Virtualization: fake}
	mgr := group.New(testLogger(), tr, reg)
	r := New(testLogger(), tr, reg, store, mgr)

	r.Tick(context.Background())

	if fake.CountStop("B") != 0 {
		t.Fatal("a backend that was never activated must never be reaped")
	}
}

func TestTickExemptsGroupMemberFromIndividualTimeout(t *testing.T) {
	activated := time.Now().Add(-200 * time.Second)
	doc := `{
		"containers": {"X": {"host": "x", "path": "x", "url": "http://x", "idleTimeout": 10, "active": true, "activatedAt": "` + activated.Format(time.RFC3339) + `"}},
		"order": ["X"],
		"groups": {"G": {"active": true, "idleTimeout": 3600, "containers": ["X"]}},
		"groupOrder": ["G"]
	}`
	store := storeFromDoc(t, doc)

	fake := drivertest.New()
	fake.SetRunning("X", true, time.Now().Add(-120*time.Second))

	tr := activity.New(testLogger())
	tr.InitLastActivity("X", time.Now().Add(-40*time.Second))

	reg := driver.Registry{Runtime: fake, Virtualization: fake}
	mgr := group.New(testLogger(), tr, reg)
	r := New(testLogger(), tr, reg, store, mgr)

	r.Tick(context.Background())

	if fake.CountStop("X") != 0 {
		t.Fatal("group member must be exempt from individual-timeout evaluation")
	}
}
