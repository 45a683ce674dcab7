package scheduler

import (
	"os"
	"path/filepath"
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

// mustMonday09 returns a time.Time on a Monday at exactly 09:00 local.
func mustMonday09(t *testing.T) time.Time {
	t.Helper()
	// 2024-01-01 was a Monday.
	return time.Date(2024, 1, 1, 9, 0, 0, 0, time.Local)
}

func TestTickFiresStartOnMatchingDayAndMinute(t *testing.T) {
	doc := `{
		"containers": {"Z": {"host": "z", "path": "z", "url": "http://z", "active": true}},
		"schedules": [{"target": "Z", "targetType": "container", "timers": [{"days": [1], "startTime": "09:00", "stopTime": "18:00", "active": true}]}]
	}`
	store := storeFromDoc(t, doc)

	fake := drivertest.New()
	tr := activity.New(testLogger())
	reg := driver.Registry{Runtime: fake, Virtualization: fake}
	s := New(testLogger(), tr, reg, store)

	s.Tick(mustMonday09(t))
	time.Sleep(20 * time.Millisecond) // start is fired via goroutine

	if fake.CountStart("Z") != 1 {
		t.Fatalf("expected exactly one start, got %d", fake.CountStart("Z"))
	}
}

func TestTickDoesNotFireOnOtherMinutes(t *testing.T) {
	doc := `{
		"containers": {"Z": {"host": "z", "path": "z", "url": "http://z", "active": true}},
		"schedules": [{"target": "Z", "targetType": "container", "timers": [{"days": [1], "startTime": "09:00", "stopTime": "18:00", "active": true}]}]
	}`
	store := storeFromDoc(t, doc)

	fake := drivertest.New()
	tr := activity.New(testLogger())
	reg := driver.Registry{Runtime: fake, Virtualization: fake}
	s := New(testLogger(), tr, reg, store)

	other := mustMonday09(t).Add(time.Minute)
	s.Tick(other)
	time.Sleep(20 * time.Millisecond)

	if fake.CountStart("Z") != 0 {
		t.Fatal("schedule must not fire on a non-matching minute")
	}
}

func TestTickDoesNotFireOnOtherDays(t *testing.T) {
	doc := `{
		"containers": {"Z": {"host": "z", "path": "z", "url": "http://z", "active": true}},
		"schedules": [{"target": "Z", "targetType": "container", "timers": [{"days": [1], "startTime": "09:00", "stopTime": "18:00", "active": true}]}]
	}`
	store := storeFromDoc(t, doc)

	fake := drivertest.New()
	tr := activity.New(testLogger())
	reg := driver.Registry{Runtime: fake, Virtualization: fake}
	s := New(testLogger(), tr, reg, store)

	tuesday := mustMonday09(t).AddDate(0, 0, 1)
	s.Tick(tuesday)
	time.Sleep(20 * time.Millisecond)

	if fake.CountStart("Z") != 0 {
		t.Fatal("schedule must not fire on a non-matching day")
	}
}

func TestScheduledStopSkipsWhenAlreadyStopping(t *testing.T) {
	doc := `{
		"containers": {"Z": {"host": "z", "path": "z", "url": "http://z", "active": true}},
		"schedules": [{"target": "Z", "targetType": "container", "timers": [{"days": [1], "startTime": "09:00", "stopTime": "09:01", "active": true}]}]
	}`
	store := storeFromDoc(t, doc)

	fake := drivertest.New()
	tr := activity.New(testLogger())
	reg := driver.Registry{Runtime: fake, Virtualization: fake}
	s := New(testLogger(), tr, reg, store)

	tr.TryStop("Z") // simulate the reaper winning the race

	s.Tick(mustMonday09(t).Add(time.Minute))

	if fake.CountStop("Z") != 0 {
		t.Fatal("scheduled stop must yield to an in-flight stopping guard")
	}
}

func TestScheduledStartBypassesDebounce(t *testing.T) {
	doc := `{
		"containers": {"Z": {"host": "z", "path": "z", "url": "http://z", "active": true}},
		"schedules": [{"target": "Z", "targetType": "container", "timers": [{"days": [1], "startTime": "09:00", "stopTime": "18:00", "active": true}]}]
	}`
	store := storeFromDoc(t, doc)

	fake := drivertest.New()
	tr := activity.New(testLogger())
	tr.TryStart("Z", mustMonday09(t)) // dispatcher already started it moments ago

	reg := driver.Registry{Runtime: fake, Virtualization: fake}
	s := New(testLogger(), tr, reg, store)

	s.Tick(mustMonday09(t))
	time.Sleep(20 * time.Millisecond)

	if fake.CountStart("Z") != 1 {
		t.Fatal("scheduled start must bypass the recentlyStarted debounce")
	}
}
