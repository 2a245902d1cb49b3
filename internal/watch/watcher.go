// Package watch follows session documents edited outside the API.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/growthlab/internal/gc"
	"github.com/starford/growthlab/internal/session"
)

// Event kinds passed to the callback.
const (
	Changed = "session.changed"
	Removed = "session.removed"
)

// EventCallback is called for every session document change.
type EventCallback func(kind, session string)

// Sweeper collects the media of a session.
type Sweeper interface {
	Sweep(ctx context.Context, name string) (gc.SweepReport, error)
}

// Option configures Watch.
type Option func(*config)

type config struct {
	sweeper  Sweeper
	debounce time.Duration
}

// WithSweeper sweeps a session's media after its document is removed or
// renamed away.
func WithSweeper(s Sweeper) Option {
	return func(c *config) { c.sweeper = s }
}

// WithDebounce sets how long removals settle before sweeping.
func WithDebounce(d time.Duration) Option {
	return func(c *config) { c.debounce = d }
}

// Watch starts an fsnotify watcher on sessionsDir and processes events until
// ctx is cancelled.
//
// Editors that save by renaming a new file over the old one produce a
// removal followed by a create. Sweeps are therefore delayed by the debounce
// interval and read every document again when they run.
func Watch(ctx context.Context, sessionsDir string, logger *slog.Logger, cb EventCallback, opts ...Option) error {
	cfg := config{debounce: time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := os.MkdirAll(sessionsDir, 0o755); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(sessionsDir); err != nil {
		return fmt.Errorf("watch: add %s: %w", sessionsDir, err)
	}

	logger.Info("watcher: started", slog.String("dir", sessionsDir))

	pending := make(map[string]struct{})
	var sweepTimer *time.Timer
	var sweepCh <-chan time.Time

	scheduleSweep := func(name string) {
		if cfg.sweeper == nil {
			return
		}
		pending[name] = struct{}{}
		if sweepTimer == nil {
			sweepTimer = time.NewTimer(cfg.debounce)
			sweepCh = sweepTimer.C
		} else {
			sweepTimer.Reset(cfg.debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if sweepTimer != nil {
				sweepTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-sweepCh:
			for name := range pending {
				rep, err := cfg.sweeper.Sweep(ctx, name)
				if err != nil {
					logger.Warn("watcher: sweep failed", slog.String("session", name), slog.String("error", err.Error()))
					continue
				}
				logger.Debug("watcher: swept", slog.String("session", name), slog.Int("deleted", rep.Deleted))
			}
			clear(pending)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name, ok := sessionName(ev.Name)
			if !ok {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				logger.Debug("watcher: changed", slog.String("session", name))
				if cb != nil {
					cb(Changed, name)
				}

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				logger.Debug("watcher: removed", slog.String("session", name))
				if cb != nil {
					cb(Removed, name)
				}
				scheduleSweep(name)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// sessionName maps a document path to its session, ignoring temp files and
// anything that is not a plain session document.
func sessionName(p string) (string, bool) {
	base := filepath.Base(p)
	if !strings.HasSuffix(base, ".md") {
		return "", false
	}
	name := strings.TrimSuffix(base, ".md")
	clean, err := session.Sanitize(name)
	if err != nil || clean != name {
		return "", false
	}
	return name, true
}
