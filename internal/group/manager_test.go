package group

import (
	"context"
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

func TestIsIdleRequiresAllMembersIdle(t *testing.T) {
	fake := drivertest.New()
	tr := activity.New(testLogger())
	mgr := New(testLogger(), tr, driver.Registry{Runtime: fake, Virtualization: fake})

	now := time.Now()
	fake.SetRunning("X", true, now.Add(-120*time.Second))
	fake.SetRunning("Y", true, now.Add(-120*time.Second))
	tr.InitLastActivity("X", now.Add(-40*time.Second))
	tr.InitLastActivity("Y", now.Add(-10*time.Second))

	g := &config.Group{Name: "G", Active: true, IdleTimeout: 30}
	members := []*config.Backend{
		{Name: "X", Active: true},
		{Name: "Y", Active: true},
	}

	if mgr.IsIdle(context.Background(), g, members, now) {
		t.Fatal("group should not be idle while Y is active")
	}
}

func TestIsIdleZeroTimeoutDisabled(t *testing.T) {
	fake := drivertest.New()
	tr := activity.New(testLogger())
	mgr := New(testLogger(), tr, driver.Registry{Runtime: fake, Virtualization: fake})

	g := &config.Group{Name: "G", Active: true, IdleTimeout: 0}
	members := []*config.Backend{{Name: "X", Active: true}}

	if mgr.IsIdle(context.Background(), g, members, time.Now()) {
		t.Fatal("idleTimeout=0 must disable group idle stopping")
	}
}

func TestIsIdleEmptyMembersNoOp(t *testing.T) {
	fake := drivertest.New()
	tr := activity.New(testLogger())
	mgr := New(testLogger(), tr, driver.Registry{Runtime: fake, Virtualization: fake})

	g := &config.Group{Name: "G", Active: true, IdleTimeout: 30}

	if mgr.IsIdle(context.Background(), g, nil, time.Now()) {
		t.Fatal("empty group must never be considered idle")
	}
}

func TestStopSkipsMembersAlreadyStopping(t *testing.T) {
	fake := drivertest.New()
	tr := activity.New(testLogger())
	mgr := New(testLogger(), tr, driver.Registry{Runtime: fake, Virtualization: fake})

	now := time.Now()
	fake.SetRunning("X", true, now)
	fake.SetRunning("Y", true, now)

	tr.TryStop("X") // simulate a concurrent stop already in flight

	g := &config.Group{Name: "G", Active: true, IdleTimeout: 30}
	members := []*config.Backend{{Name: "X", Active: true}, {Name: "Y", Active: true}}

	mgr.Stop(context.Background(), g, members)

	if fake.CountStop("X") != 0 {
		t.Fatal("X should have been skipped because it was already stopping")
	}
	if fake.CountStop("Y") != 1 {
		t.Fatal("Y should have been stopped exactly once")
	}
}
