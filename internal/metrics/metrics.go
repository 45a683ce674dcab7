// Package metrics wires the proxy's request and lifecycle counters
// through github.com/rcrowley/go-metrics, the same registry the
// teacher used in stats.go/stats/metrics.go, extended with per-backend
// and per-action counters this system's dispatcher/reaper/scheduler
// need.
package metrics

import (
	"fmt"
	golog "log"
	"os"
	"sync"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

var (
	RequestCount      gometrics.Counter
	RequestErrorCount gometrics.Counter
	RequestTimer      gometrics.Timer

	StartCount gometrics.Counter
	StopCount  gometrics.Counter
)

func init() {
	RequestCount = gometrics.NewCounter()
	gometrics.Register("wakeproxy-requests", RequestCount)

	RequestErrorCount = gometrics.NewCounter()
	gometrics.Register("wakeproxy-requests-errors", RequestErrorCount)

	RequestTimer = gometrics.NewTimer()
	gometrics.Register("wakeproxy-request-time", RequestTimer)

	StartCount = gometrics.NewCounter()
	gometrics.Register("wakeproxy-starts", StartCount)

	StopCount = gometrics.NewCounter()
	gometrics.Register("wakeproxy-stops", StopCount)
}

// BackendCounters holds per-backend live/total connection counters,
// registered and torn down alongside a backend's presence in the
// config snapshot.
type BackendCounters struct {
	Live  gometrics.Counter
	Total gometrics.Counter
}

var (
	backendsMu sync.Mutex
	backends   = map[string]*BackendCounters{}
)

// RegisterBackend creates and registers a backend's counters, or
// returns the ones already registered for name. The dispatcher looks
// these up per request via Backend.
func RegisterBackend(name string) *BackendCounters {
	backendsMu.Lock()
	defer backendsMu.Unlock()

	if bc, ok := backends[name]; ok {
		return bc
	}

	live := gometrics.NewCounter()
	total := gometrics.NewCounter()

	gometrics.Register(fmt.Sprintf("%s_live_connections", name), live)
	gometrics.Register(fmt.Sprintf("%s_total_connections", name), total)

	bc := &BackendCounters{Live: live, Total: total}
	backends[name] = bc
	return bc
}

// UnregisterBackend removes a backend's counters from the registry.
func UnregisterBackend(name string) {
	backendsMu.Lock()
	delete(backends, name)
	backendsMu.Unlock()

	gometrics.Unregister(fmt.Sprintf("%s_live_connections", name))
	gometrics.Unregister(fmt.Sprintf("%s_total_connections", name))
}

// Backend returns the counters registered for name, if any. Used by
// the dispatcher to track live/total connections per proxied request.
func Backend(name string) (*BackendCounters, bool) {
	backendsMu.Lock()
	defer backendsMu.Unlock()

	bc, ok := backends[name]
	return bc, ok
}

// Collect periodically dumps the registry to stderr, mirroring the
// teacher's CollectStats in stats.go.
func Collect(interval time.Duration) {
	gometrics.Log(gometrics.DefaultRegistry, interval, golog.New(os.Stderr, "[metrics] ", golog.LstdFlags))
}
