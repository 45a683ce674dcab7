package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nite-io/wakeproxy/internal/activity"
	"github.com/nite-io/wakeproxy/internal/admin"
	"github.com/nite-io/wakeproxy/internal/config"
	"github.com/nite-io/wakeproxy/internal/driver"
	"github.com/nite-io/wakeproxy/internal/group"
	"github.com/nite-io/wakeproxy/internal/logging"
	"github.com/nite-io/wakeproxy/internal/metrics"
	"github.com/nite-io/wakeproxy/internal/proxydispatch"
	"github.com/nite-io/wakeproxy/internal/reaper"
	"github.com/nite-io/wakeproxy/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reverse proxy",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := logging.New(envOr("LOG_LEVEL", "info"))

	store, err := config.NewStore(configPath, logger)
	if err != nil {
		return fmt.Errorf("wakeproxy: loading config: %w", err)
	}

	runtimeDriver, err := driver.NewRuntimeDriver(driver.NormalizeDockerProxyURL(os.Getenv("DOCKER_PROXY_URL")), logger)
	if err != nil {
		return fmt.Errorf("wakeproxy: initializing runtime driver: %w", err)
	}

	virtDriver, err := driver.NewVirtualizationDriver(store.Snapshot().APIKeys.PVE, logger)
	if err != nil {
		return fmt.Errorf("wakeproxy: initializing virtualization driver: %w", err)
	}

	registry := driver.Registry{Runtime: runtimeDriver}
	if virtDriver != nil {
		registry.Virtualization = virtDriver
	} else {
		logger.Warn("virtualization driver disabled: no apiKeys.pve configured")
	}

	tracker := activity.New(logger)
	groups := group.New(logger, tracker, registry)
	reap := reaper.New(logger, tracker, registry, store, groups)
	sched := scheduler.New(logger, tracker, registry, store)

	holding, err := proxydispatch.LoadHoldingPage(os.Getenv("HOLDING_PAGE_PATH"))
	if err != nil {
		return fmt.Errorf("wakeproxy: loading holding page: %w", err)
	}

	dispatcher := proxydispatch.New(logger, tracker, registry, store, groups, holding)

	known := initBackendState(tracker, store.Snapshot())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go watchConfigChanges(ctx, store, tracker, known)
	go metrics.Collect(60 * time.Second)

	errc := make(chan error, 4)

	go func() { errc <- store.Watch(ctx) }()
	go func() { errc <- reap.Run(ctx) }()
	go func() { errc <- sched.Run(ctx) }()

	port := envOr("PORT", "10000")
	proxyServer := &http.Server{Addr: ":" + port, Handler: dispatcher}
	go func() {
		logger.WithField("port", port).Info("proxy listening")
		if err := proxyServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("proxy server: %w", err)
		}
	}()

	// The admin surface is optional: it only listens when UI_PORT is
	// explicitly set, per spec.md §6.
	var adminHTTPServer *http.Server
	if uiPort := os.Getenv("UI_PORT"); uiPort != "" {
		adminServer := admin.New(logger, tracker, registry, store)
		adminHTTPServer = &http.Server{Addr: ":" + uiPort, Handler: adminServer}
		go func() {
			logger.WithField("port", uiPort).Info("admin server listening")
			if err := adminHTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("admin server: %w", err)
			}
		}()
	} else {
		logger.Info("admin server disabled: UI_PORT not set")
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigc:
		logger.WithField("signal", sig).Info("shutting down")
	case err := <-errc:
		logger.WithField("error", err).Error("component failed, shutting down")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	proxyServer.Shutdown(shutdownCtx)
	if adminHTTPServer != nil {
		adminHTTPServer.Shutdown(shutdownCtx)
	}

	return nil
}

// initBackendState primes the activity tracker and per-backend metric
// counters from the initial config snapshot, returning the backend
// name set watchConfigChanges needs to diff future snapshots against.
func initBackendState(tracker *activity.Tracker, doc *config.Document) map[string]bool {
	now := time.Now()
	names := make(map[string]bool, len(doc.Containers))
	for name := range doc.Containers {
		names[name] = true
		tracker.InitLastActivity(name, now)
		metrics.RegisterBackend(name)
	}
	return names
}

// watchConfigChanges keeps the activity tracker's bookkeeping and the
// per-backend metric counters in step with the live config snapshot,
// per spec.md §4.8.
func watchConfigChanges(ctx context.Context, store *config.Store, tracker *activity.Tracker, known map[string]bool) {
	changes := store.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			doc := store.Snapshot()
			current := make(map[string]bool, len(doc.Containers))
			for name := range doc.Containers {
				current[name] = true
				if !known[name] {
					metrics.RegisterBackend(name)
				}
			}
			for name := range known {
				if !current[name] {
					metrics.UnregisterBackend(name)
				}
			}
			known = current
			tracker.Reconcile(current, time.Now())
		}
	}
}
