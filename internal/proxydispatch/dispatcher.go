// Package proxydispatch implements the request dispatcher of
// spec.md §4.2: it matches inbound HTTP/WebSocket traffic to a
// backend, serves the holding page while the workload starts, and
// forwards traffic once it is ready.
package proxydispatch

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nite-io/wakeproxy/internal/activity"
	"github.com/nite-io/wakeproxy/internal/config"
	"github.com/nite-io/wakeproxy/internal/driver"
	"github.com/nite-io/wakeproxy/internal/group"
	"github.com/nite-io/wakeproxy/internal/metrics"
)

type Dispatcher struct {
	logger  *logrus.Logger
	tracker *activity.Tracker
	reg     driver.Registry
	store   *config.Store
	groups  *group.Manager
	holding *HoldingPage
}

func New(logger *logrus.Logger, tracker *activity.Tracker, reg driver.Registry, store *config.Store, groups *group.Manager, holding *HoldingPage) *Dispatcher {
	return &Dispatcher{logger: logger, tracker: tracker, reg: reg, store: store, groups: groups, holding: holding}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	metrics.RequestCount.Inc(1)
	defer metrics.RequestTimer.UpdateSince(start)

	doc := d.store.Snapshot()

	res, ok := match(doc, r.Host, r.URL.Path)
	if !ok {
		metrics.RequestErrorCount.Inc(1)
		http.NotFound(w, r)
		return
	}
	b := res.backend

	if b.Host == "" || b.Path == "" {
		metrics.RequestErrorCount.Inc(1)
		d.logger.WithField("backend", b.Name).Error("backend misconfigured: missing host or path")
		http.Error(w, "misconfigured backend", http.StatusInternalServerError)
		return
	}

	if !b.Active {
		metrics.RequestErrorCount.Inc(1)
		d.logger.WithField("backend", b.Name).Warn("request to inactive backend")
		http.Error(w, "backend inactive", http.StatusForbidden)
		return
	}

	d.tracker.Touch(b.Name)

	drv := d.reg.For(b.Name)

	statusCtx, cancel := context.WithTimeout(r.Context(), driver.StatusDeadline)
	running := false
	if drv != nil {
		if ok, err := drv.IsRunning(statusCtx, b.Name); err == nil {
			running = ok
		}
	}
	cancel()

	if !running {
		d.serveHoldingPage(w, b)
		if !d.tracker.RecentlyStarted(b.Name, time.Now()) {
			d.triggerStart(doc, res)
		}
		return
	}

	if isWebSocketUpgrade(r) {
		if bc, ok := metrics.Backend(b.Name); ok {
			bc.Total.Inc(1)
			bc.Live.Inc(1)
			defer bc.Live.Dec(1)
		}
		if err := bridgeWebSocket(d.logger, w, r, b.URL); err != nil {
			d.logger.WithFields(logrus.Fields{"backend": b.Name, "error": err}).Error("websocket bridge failed")
			http.Error(w, d.holding.Render(b.Path, b.Host, b.Name), http.StatusBadGateway)
		}
		return
	}

	d.proxyHTTP(w, r, b)
}

func (d *Dispatcher) serveHoldingPage(w http.ResponseWriter, b *config.Backend) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(d.holding.Render(b.Path, b.Host, b.Name)))
}

// triggerStart initiates a start action for a not-yet-running match,
// group-aware per spec.md §4.4: a request that resolved through a
// group starts every eligible member, not just the one that matched.
func (d *Dispatcher) triggerStart(doc *config.Document, res matchResult) {
	ctx := context.Background()

	if res.group != nil {
		members := doc.GroupMembers(res.group.Name)
		d.groups.Start(ctx, res.group, members)
		return
	}

	b := res.backend
	if !d.tracker.TryStart(b.Name, time.Now()) {
		return
	}

	drv := d.reg.For(b.Name)
	if drv == nil {
		return
	}

	go func() {
		metrics.StartCount.Inc(1)
		if err := drv.Start(ctx, b.Name); err != nil {
			d.logger.WithFields(logrus.Fields{"backend": b.Name, "error": err}).Error("dispatcher start failed")
		}
	}()
}

func (d *Dispatcher) proxyHTTP(w http.ResponseWriter, r *http.Request, b *config.Backend) {
	target, err := url.Parse(b.URL)
	if err != nil {
		d.logger.WithFields(logrus.Fields{"backend": b.Name, "error": err}).Error("invalid backend url")
		http.Error(w, "misconfigured backend", http.StatusInternalServerError)
		return
	}

	if bc, ok := metrics.Backend(b.Name); ok {
		bc.Total.Inc(1)
		bc.Live.Inc(1)
		defer bc.Live.Dec(1)
	}

	headerSent := &trackingWriter{ResponseWriter: w}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(rw http.ResponseWriter, req *http.Request, err error) {
		metrics.RequestErrorCount.Inc(1)
		d.logger.WithFields(logrus.Fields{"backend": b.Name, "error": err}).Error("upstream proxy error")

		if headerSent.wrote {
			return
		}
		rw.Header().Set("Content-Type", "text/html; charset=utf-8")
		rw.WriteHeader(http.StatusBadGateway)
		rw.Write([]byte(d.holding.Render(b.Path, b.Host, b.Name)))
	}

	proxy.ServeHTTP(headerSent, r)
}

// trackingWriter records whether headers have already been flushed,
// so the error handler can decide between a 502 holding page (nothing
// sent yet) and letting the connection close (already streaming).
type trackingWriter struct {
	http.ResponseWriter
	wrote bool
}

func (t *trackingWriter) WriteHeader(status int) {
	t.wrote = true
	t.ResponseWriter.WriteHeader(status)
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	t.wrote = true
	return t.ResponseWriter.Write(b)
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade") &&
		strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
