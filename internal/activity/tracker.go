// Package activity holds the per-backend runtime bookkeeping the
// dispatcher, reaper and scheduler all read and write: last-access
// timestamps, the start debounce, and the stop guard. None of this is
// persisted; it is rebuilt as backends are sighted, per spec.md §3.
package activity

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// debounceWindow is the duration a recentlyStarted entry survives
// before self-expiring, per spec.md §4.7.
const debounceWindow = 30 * time.Second

// logRateLimit bounds how often lastActivity updates are logged for a
// given backend, per spec.md §4.3 ("≤ one log entry per backend per 5s").
const logRateLimit = 5 * time.Second

type startEntry struct {
	startedAt time.Time
	expiry    time.Time
}

// Tracker is the single-writer-per-map state bundle spec.md §5
// prescribes in place of the teacher's module-level globals. A single
// mutex guards all of its maps.
type Tracker struct {
	logger *logrus.Logger

	mu             sync.Mutex
	lastActivity   map[string]time.Time
	recentlyStart  map[string]startEntry
	stopping       map[string]bool
	lastLoggedAt   map[string]time.Time
}

func New(logger *logrus.Logger) *Tracker {
	return &Tracker{
		logger:        logger,
		lastActivity:  make(map[string]time.Time),
		recentlyStart: make(map[string]startEntry),
		stopping:      make(map[string]bool),
		lastLoggedAt:  make(map[string]time.Time),
	}
}

// Touch records inbound activity for name. Called by the dispatcher for
// every request matched to an active backend, before the running check,
// so holding-page, HTTP and WebSocket requests all count.
func (t *Tracker) Touch(name string) {
	now := time.Now()

	t.mu.Lock()
	t.lastActivity[name] = now
	shouldLog := now.Sub(t.lastLoggedAt[name]) >= logRateLimit
	if shouldLog {
		t.lastLoggedAt[name] = now
	}
	t.mu.Unlock()

	if shouldLog {
		t.logger.WithField("backend", name).Debug("activity recorded")
	}
}

// LastActivity returns the last recorded activity instant and whether
// one has ever been recorded.
func (t *Tracker) LastActivity(name string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ts, ok := t.lastActivity[name]
	return ts, ok
}

// InitLastActivity sets name's last-activity to now only if it has
// none yet. Used both by config-swap onboarding (spec.md §4.8) and by
// the reaper's "first observation" rule (spec.md §4.5 step 2).
func (t *Tracker) InitLastActivity(name string, now time.Time) (initialized bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.lastActivity[name]; exists {
		return false
	}
	t.lastActivity[name] = now
	return true
}

// TryStart atomically checks and sets the start debounce for name.
// It returns true if the caller should actually issue Start — i.e. no
// unexpired recentlyStarted entry exists. This is the single critical
// section spec.md §5 requires for the debounce guard.
func (t *Tracker) TryStart(name string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.recentlyStart[name]; ok && now.Before(entry.expiry) {
		return false
	}

	t.recentlyStart[name] = startEntry{startedAt: now, expiry: now.Add(debounceWindow)}
	return true
}

// RecentlyStarted reports whether name is still within its debounce
// window, without mutating state. The dispatcher consults this before
// triggering a start action, to skip redundant lifecycle work while a
// start it already issued is still in flight for name.
func (t *Tracker) RecentlyStarted(name string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.recentlyStart[name]
	return ok && now.Before(entry.expiry)
}

// TryStop atomically acquires the stopping guard for name. It returns
// false if a stop is already in flight.
func (t *Tracker) TryStop(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopping[name] {
		return false
	}
	t.stopping[name] = true
	return true
}

// ReleaseStop clears the stopping guard once a stop call completes,
// regardless of its outcome.
func (t *Tracker) ReleaseStop(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.stopping, name)
}

// IsStopping reports whether a stop is currently in flight for name.
func (t *Tracker) IsStopping(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.stopping[name]
}

// Reconcile applies spec.md §4.8's config-change handling: names newly
// present get an initialized lastActivity; names no longer present
// have their bookkeeping dropped. In-flight operations keyed by
// dropped names are allowed to complete; their eventual ReleaseStop
// call is harmless against an already-deleted key.
func (t *Tracker) Reconcile(currentNames map[string]bool, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for name := range currentNames {
		if _, exists := t.lastActivity[name]; !exists {
			t.lastActivity[name] = now
		}
	}

	for name := range t.lastActivity {
		if !currentNames[name] {
			delete(t.lastActivity, name)
			delete(t.recentlyStart, name)
			delete(t.stopping, name)
			delete(t.lastLoggedAt, name)
		}
	}
}
