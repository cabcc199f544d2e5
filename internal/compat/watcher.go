package compat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// setFile is the on-disk form of a compatibility list:
//
//	versions:
//	  - 1.0.0
//	  - 1.1.0
type setFile struct {
	Versions []string `yaml:"versions"`
}

// LoadSetFile reads a compatibility list from a YAML file.
func LoadSetFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read compatibility file: %w", err)
	}
	var sf setFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse compatibility file: %w", err)
	}
	return sf.Versions, nil
}

// Watcher reloads a compatibility file into a Negotiator whenever it changes.
// It watches the parent directory so editors that replace the file on save
// are handled.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	negotiator  *Negotiator
	path        string
	debounceDur time.Duration
	logger      *zap.Logger
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewWatcher creates a watcher for path. Call Start to begin watching.
func NewWatcher(path string, n *Negotiator, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve compatibility file: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     w,
		negotiator:  n,
		path:        abs,
		debounceDur: 200 * time.Millisecond,
		logger:      logger,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start loads the file once and then watches it in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.reload(); err != nil {
		w.logger.Warn("Initial compatibility file load failed", zap.Error(err))
	}

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	go w.loop(ctx)
	return nil
}

// Stop ends watching and waits for the goroutine to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	return w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounceDur)
			} else {
				timer.Reset(w.debounceDur)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			if err := w.reload(); err != nil {
				w.logger.Warn("Compatibility file reload failed; keeping previous list", zap.Error(err))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Compatibility watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() error {
	versions, err := LoadSetFile(w.path)
	if err != nil {
		return err
	}
	w.negotiator.SetVersions(versions)
	return nil
}
