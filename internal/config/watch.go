package config

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// debounceWindow bounds change-detection latency per spec.md §6: the
// config store's file-watch poll interval must be ≤ 500 ms.
const debounceWindow = 400 * time.Millisecond

// Store owns the current configuration Document and swaps it
// atomically whenever the backing file changes. Readers call
// Snapshot; they never observe a torn mix of old and new state.
type Store struct {
	path   string
	logger *logrus.Logger

	current atomic.Pointer[Document]

	mu   sync.Mutex
	subs []chan struct{}
}

// NewStore loads path once and returns a Store ready to Watch.
func NewStore(path string, logger *logrus.Logger) (*Store, error) {
	doc, err := Load(path)
	if err != nil {
		return nil, err
	}

	s := &Store{path: path, logger: logger}
	s.current.Store(doc)

	return s, nil
}

// Snapshot returns the currently active Document. The returned value
// is immutable; callers must not mutate it.
func (s *Store) Snapshot() *Document {
	return s.current.Load()
}

// Subscribe returns a channel that receives a value every time the
// snapshot is replaced. The channel is buffered so a slow subscriber
// doesn't block reload.
func (s *Store) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()

	return ch
}

func (s *Store) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Watch blocks, reloading the document on every filesystem event
// until ctx is cancelled. A parse or validation failure is logged and
// the last good snapshot is retained, per spec.md §7.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(s.path); err != nil {
		return err
	}

	var (
		debounceTimer *time.Timer
		reloadC       = make(chan struct{}, 1)
	)

	scheduleReload := func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceTimer = time.AfterFunc(debounceWindow, func() {
			select {
			case reloadC <- struct{}{}:
			default:
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			scheduleReload()

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.WithField("error", werr).Warn("config watcher error")

		case <-reloadC:
			s.reload()
		}
	}
}

func (s *Store) reload() {
	doc, err := Load(s.path)
	if err != nil {
		s.logger.WithField("error", err).Error("config reload failed, keeping last good snapshot")
		return
	}

	s.current.Store(doc)
	s.notify()
	s.logger.Info("config reloaded")
}
