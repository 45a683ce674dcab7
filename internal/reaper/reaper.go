// Package reaper implements the periodic idle sweeper of spec.md
// §4.5: it stops backends and groups that have been idle beyond their
// configured timeout, honoring the stopping guard and the
// activatedAt/startedAt races the teacher's own checkLoop in
// worker.go was written to defeat.
package reaper

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nite-io/wakeproxy/internal/activity"
	"github.com/nite-io/wakeproxy/internal/config"
	"github.com/nite-io/wakeproxy/internal/driver"
	"github.com/nite-io/wakeproxy/internal/group"
	"github.com/nite-io/wakeproxy/internal/metrics"
)

// TickInterval is the reaper's sweep period, per spec.md §4.5.
const TickInterval = 10 * time.Second

// maxConcurrentChecks bounds parallel driver status calls per sweep.
const maxConcurrentChecks = 10

type Reaper struct {
	logger   *logrus.Logger
	tracker  *activity.Tracker
	registry driver.Registry
	store    *config.Store
	groups   *group.Manager
}

func New(logger *logrus.Logger, tracker *activity.Tracker, registry driver.Registry, store *config.Store, groups *group.Manager) *Reaper {
	return &Reaper{logger: logger, tracker: tracker, registry: registry, store: store, groups: groups}
}

// Run blocks, sweeping every TickInterval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick runs one sweep. It is exported so tests can drive it
// deterministically instead of waiting on the real ticker.
func (r *Reaper) Tick(ctx context.Context) {
	doc := r.store.Snapshot()
	now := time.Now()

	running := r.batchIsRunning(ctx, doc)

	for _, name := range doc.Order {
		b, ok := doc.Containers[name]
		if !ok {
			continue
		}
		r.evaluateBackend(ctx, doc, b, running[b.Name], now)
	}

	for _, gname := range doc.GroupOrder {
		g, ok := doc.Groups[gname]
		if !ok {
			continue
		}
		r.evaluateGroup(ctx, doc, g, now)
	}
}

// batchIsRunning queries every backend's driver, bounded to
// maxConcurrentChecks in flight at once, per spec.md §4.5.
func (r *Reaper) batchIsRunning(ctx context.Context, doc *config.Document) map[string]bool {
	type result struct {
		name    string
		running bool
	}

	names := make([]string, 0, len(doc.Containers))
	for name := range doc.Containers {
		names = append(names, name)
	}

	sem := make(chan struct{}, maxConcurrentChecks)
	results := make(chan result, len(names))

	for _, name := range names {
		sem <- struct{}{}
		go func(name string) {
			defer func() { <-sem }()

			drv := r.registry.For(name)
			running := false
			if drv != nil {
				if ok, err := drv.IsRunning(ctx, name); err == nil {
					running = ok
				}
			}
			results <- result{name: name, running: running}
		}(name)
	}

	out := make(map[string]bool, len(names))
	for i := 0; i < len(names); i++ {
		res := <-results
		out[res.name] = res.running
	}
	return out
}

// evaluateBackend implements the individual path of spec.md §4.5.
func (r *Reaper) evaluateBackend(ctx context.Context, doc *config.Document, b *config.Backend, running bool, now time.Time) {
	if !b.Active || b.IdleTimeout <= 0 {
		return
	}
	if len(doc.GroupsContaining(b.Name)) > 0 {
		return
	}

	last, ok := r.tracker.LastActivity(b.Name)
	if !ok {
		r.tracker.InitLastActivity(b.Name, now)
		return
	}

	threshold := time.Duration(b.IdleTimeout) * time.Second
	timeoutReached := now.Sub(last) > threshold

	if !running || !timeoutReached {
		return
	}

	drv := r.registry.For(b.Name)
	if drv == nil {
		return
	}

	startedAt, hasStartedAt := drv.StartedAt(ctx, b.Name)
	if !hasStartedAt || now.Sub(startedAt) <= threshold {
		return
	}

	if b.ActivatedAt == nil || now.Sub(*b.ActivatedAt) <= threshold {
		return
	}

	if !r.tracker.TryStop(b.Name) {
		return
	}
	defer r.tracker.ReleaseStop(b.Name)

	r.logger.WithField("backend", b.Name).Info("reaper stopping idle backend")
	if err := drv.Stop(ctx, b.Name); err != nil {
		r.logger.WithFields(logrus.Fields{"backend": b.Name, "error": err}).Error("reaper stop failed")
	} else {
		metrics.StopCount.Inc(1)
	}
}

// evaluateGroup implements the group path of spec.md §4.5.
func (r *Reaper) evaluateGroup(ctx context.Context, doc *config.Document, g *config.Group, now time.Time) {
	if !g.Active || g.IdleTimeout <= 0 {
		return
	}

	members := doc.GroupMembers(g.Name)
	if !r.groups.IsIdle(ctx, g, members, now) {
		return
	}

	r.logger.WithField("group", g.Name).Info("reaper stopping idle group")
	r.groups.Stop(ctx, g, members)
}
