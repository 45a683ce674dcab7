// Package scheduler evaluates the day-of-week + HH:MM timer rules of
// spec.md §4.6, issuing unconditional start/stop actions independent
// of the idle reaper. The periodic tick itself rides on
// github.com/robfig/cron/v3, the same scheduling library the pack's
// mercator-hq-jupiter and zulandar-railyard daemons use; the
// day/time-window matching is bespoke, since cron expressions don't
// naturally express "N independent HH:MM points, each individually
// toggleable".
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/nite-io/wakeproxy/internal/activity"
	"github.com/nite-io/wakeproxy/internal/config"
	"github.com/nite-io/wakeproxy/internal/driver"
	"github.com/nite-io/wakeproxy/internal/metrics"
)

// tickSpec matches spec.md §4.6's "runs every 59 s".
const tickSpec = "@every 59s"

type Scheduler struct {
	logger   *logrus.Logger
	tracker  *activity.Tracker
	registry driver.Registry
	store    *config.Store

	cron *cron.Cron
}

func New(logger *logrus.Logger, tracker *activity.Tracker, registry driver.Registry, store *config.Store) *Scheduler {
	return &Scheduler{
		logger:   logger,
		tracker:  tracker,
		registry: registry,
		store:    store,
		cron:     cron.New(),
	}
}

// Run blocks until ctx is cancelled, evaluating schedule rules once
// per tickSpec.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(tickSpec, func() { s.Tick(time.Now()) }); err != nil {
		return err
	}

	s.cron.Start()
	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	return nil
}

// Tick evaluates every schedule rule against now. Exported so tests
// can drive specific instants deterministically.
func (s *Scheduler) Tick(now time.Time) {
	doc := s.store.Snapshot()

	for _, rule := range doc.Schedules {
		if !s.targetActive(doc, rule) {
			continue
		}

		members := s.resolveMembers(doc, rule)
		weekday := int(now.Weekday())
		hhmm := now.Format("15:04")

		for _, timer := range rule.Timers {
			if !timer.Active || !containsDay(timer.Days, weekday) {
				continue
			}

			if hhmm == timer.StartTime {
				s.start(members)
			}
			if hhmm == timer.StopTime {
				s.stop(members)
			}
		}
	}
}

func (s *Scheduler) targetActive(doc *config.Document, rule config.ScheduleRule) bool {
	switch rule.TargetType {
	case config.TargetContainer:
		b, ok := doc.Containers[rule.Target]
		return ok && b.Active
	case config.TargetGroup:
		g, ok := doc.Groups[rule.Target]
		return ok && g.Active
	default:
		return false
	}
}

func (s *Scheduler) resolveMembers(doc *config.Document, rule config.ScheduleRule) []*config.Backend {
	switch rule.TargetType {
	case config.TargetContainer:
		if b, ok := doc.Containers[rule.Target]; ok {
			return []*config.Backend{b}
		}
		return nil
	case config.TargetGroup:
		return doc.GroupMembers(rule.Target)
	default:
		return nil
	}
}

// start is unconditional: it bypasses the recentlyStarted debounce
// per spec.md §4.6.
func (s *Scheduler) start(members []*config.Backend) {
	for _, b := range members {
		drv := s.registry.For(b.Name)
		if drv == nil {
			continue
		}

		go func(name string, d driver.Driver) {
			if err := d.Start(context.Background(), name); err != nil {
				s.logger.WithFields(logrus.Fields{"backend": name, "error": err}).Error("scheduled start failed")
			}
		}(b.Name, drv)
	}
}

// stop respects the per-member stopping guard: a schedule-triggered
// stop that loses the race to the reaper logs a skip rather than
// overriding the guard, per spec.md §4.6.
func (s *Scheduler) stop(members []*config.Backend) {
	for _, b := range members {
		if !s.tracker.TryStop(b.Name) {
			s.logger.WithField("backend", b.Name).Info("scheduled stop skipped: already stopping")
			continue
		}

		drv := s.registry.For(b.Name)
		if drv != nil {
			if err := drv.Stop(context.Background(), b.Name); err != nil {
				s.logger.WithFields(logrus.Fields{"backend": b.Name, "error": err}).Error("scheduled stop failed")
			} else {
				metrics.StopCount.Inc(1)
			}
		}
		s.tracker.ReleaseStop(b.Name)
	}
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
