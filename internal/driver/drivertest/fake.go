// Package drivertest provides an in-memory driver.Driver used by
// admin, dispatcher, group, reaper and scheduler tests so they can assert on
// start/stop call counts without a real container runtime.
package drivertest

import (
	"context"
	"sync"
	"time"
)

type Fake struct {
	mu sync.Mutex

	running    map[string]bool
	startedAt  map[string]time.Time
	StartCalls map[string]int
	StopCalls  map[string]int

	StartErr error
	StopErr  error
}

func New() *Fake {
	return &Fake{
		running:    make(map[string]bool),
		startedAt:  make(map[string]time.Time),
		StartCalls: make(map[string]int),
		StopCalls:  make(map[string]int),
	}
}

// SetRunning seeds initial state for a test, optionally with a
// specific StartedAt instant.
func (f *Fake) SetRunning(name string, running bool, startedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.running[name] = running
	if running {
		f.startedAt[name] = startedAt
	} else {
		delete(f.startedAt, name)
	}
}

func (f *Fake) IsRunning(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.running[name], nil
}

func (f *Fake) Start(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.StartCalls[name]++
	if f.StartErr != nil {
		return f.StartErr
	}
	if !f.running[name] {
		f.running[name] = true
		f.startedAt[name] = time.Now()
	}
	return nil
}

func (f *Fake) Stop(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.StopCalls[name]++
	if f.StopErr != nil {
		return f.StopErr
	}
	f.running[name] = false
	delete(f.startedAt, name)
	return nil
}

func (f *Fake) List(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.running))
	for name := range f.running {
		names = append(names, name)
	}
	return names, nil
}

func (f *Fake) StartedAt(ctx context.Context, name string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.startedAt[name]
	return t, ok
}

func (f *Fake) CountStart(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.StartCalls[name]
}

func (f *Fake) CountStop(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.StopCalls[name]
}
