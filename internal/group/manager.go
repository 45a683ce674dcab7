// Package group implements the group lifecycle semantics of spec.md
// §4.4: members move together on start, and are only stopped together
// once every member is independently idle.
package group

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nite-io/wakeproxy/internal/activity"
	"github.com/nite-io/wakeproxy/internal/config"
	"github.com/nite-io/wakeproxy/internal/driver"
	"github.com/nite-io/wakeproxy/internal/metrics"
)

// Manager resolves group membership against the current config
// snapshot and drives group-wide start/stop through the same Driver
// registry and Tracker the dispatcher and reaper use.
type Manager struct {
	logger   *logrus.Logger
	tracker  *activity.Tracker
	registry driver.Registry
}

func New(logger *logrus.Logger, tracker *activity.Tracker, registry driver.Registry) *Manager {
	return &Manager{logger: logger, tracker: tracker, registry: registry}
}

// Start iterates g's members in declared order, skipping any that are
// inactive or already running, and starts the rest. Per spec.md §5,
// start does not wait for one member before advancing to the next.
func (m *Manager) Start(ctx context.Context, g *config.Group, members []*config.Backend) {
	for _, b := range members {
		if !b.Active {
			continue
		}

		drv := m.registry.For(b.Name)
		if drv == nil {
			continue
		}

		running, err := drv.IsRunning(ctx, b.Name)
		if err == nil && running {
			continue
		}

		if !m.tracker.TryStart(b.Name, time.Now()) {
			continue
		}

		go func(name string, d driver.Driver) {
			if err := d.Start(ctx, name); err != nil {
				m.logger.WithFields(logrus.Fields{"backend": name, "group": g.Name, "error": err}).Error("group start failed")
			}
		}(b.Name, drv)
	}
}

// Stop iterates g's members in declared order, skipping any currently
// guarded by stopping, and stops the rest sequentially and
// synchronously per spec.md §5.
func (m *Manager) Stop(ctx context.Context, g *config.Group, members []*config.Backend) {
	for _, b := range members {
		if m.tracker.IsStopping(b.Name) {
			m.logger.WithFields(logrus.Fields{"backend": b.Name, "group": g.Name}).Info("skip group stop: already stopping")
			continue
		}

		drv := m.registry.For(b.Name)
		if drv == nil {
			continue
		}

		if !m.tracker.TryStop(b.Name) {
			continue
		}

		if err := drv.Stop(ctx, b.Name); err != nil {
			m.logger.WithFields(logrus.Fields{"backend": b.Name, "group": g.Name, "error": err}).Error("group stop failed")
		} else {
			metrics.StopCount.Inc(1)
		}
		m.tracker.ReleaseStop(b.Name)
	}
}

// IsIdle evaluates the group-idle predicate of spec.md §4.4: every
// member must be running, active, idle longer than the group's
// idleTimeout, and started longer ago than the group's idleTimeout.
func (m *Manager) IsIdle(ctx context.Context, g *config.Group, members []*config.Backend, now time.Time) bool {
	if g.IdleTimeout <= 0 || len(members) == 0 {
		return false
	}

	threshold := time.Duration(g.IdleTimeout) * time.Second

	for _, b := range members {
		if !b.Active {
			return false
		}

		drv := m.registry.For(b.Name)
		if drv == nil {
			return false
		}

		running, err := drv.IsRunning(ctx, b.Name)
		if err != nil || !running {
			return false
		}

		last, ok := m.tracker.LastActivity(b.Name)
		if !ok || now.Sub(last) <= threshold {
			return false
		}

		startedAt, ok := drv.StartedAt(ctx, b.Name)
		if !ok || now.Sub(startedAt) <= threshold {
			return false
		}
	}

	return true
}
