// Package watchdog implements the edge's Watchdog: detects stalled plugins
// and a dead HTTP server, restarting the whole process when either
// threshold trips.
package watchdog

import (
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/ghuser/xscontrol/pkg/logger"
	"github.com/ghuser/xscontrol/pkg/model"
)

const (
	tickInterval     = 10 * time.Second
	staleThreshold   = 30 * time.Second
	restartWindow    = 60 * time.Second
	restartThreshold = 3
)

// PluginObserver is the subset of edge/plugin.Supervisor the watchdog reads:
// a snapshot of every loaded plugin's runtime record.
type PluginObserver interface {
	Records() []model.PluginRuntimeRecord
}

// Watchdog ticks every 10 s, checking HTTP liveness and plugin heartbeats.
type Watchdog struct {
	log       logger.Logger
	plugins   PluginObserver
	httpAlive func() bool
	restart   func()

	mu           sync.Mutex
	unresponsive map[string][]time.Time
}

// New returns a Watchdog. httpAlive reports whether the edge HTTP server is
// still serving; its loss triggers an immediate restart.
func New(log logger.Logger, plugins PluginObserver, httpAlive func() bool) *Watchdog {
	w := &Watchdog{
		log:          log,
		plugins:      plugins,
		httpAlive:    httpAlive,
		unresponsive: map[string][]time.Time{},
	}
	w.restart = w.reexec
	return w
}

// Run ticks every 10 s until ctx is done.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *Watchdog) tick() {
	if !w.httpAlive() {
		w.log.Error("watchdog: http server down, restarting process")
		w.restart()
		return
	}

	now := time.Now()
	for _, rec := range w.plugins.Records() {
		if rec.LastHeartbeatUnixNano == 0 {
			continue // plugin hasn't completed a first loop iteration yet
		}
		age := now.Sub(time.Unix(0, rec.LastHeartbeatUnixNano))
		if age <= staleThreshold {
			continue
		}

		w.log.Warn("watchdog: plugin unresponsive", "plugin", rec.Descriptor.Name, "age", age)
		if w.recordUnresponsive(rec.Descriptor.Name, now) >= restartThreshold {
			w.log.Error("watchdog: plugin unresponsive 3x within 60s, restarting process", "plugin", rec.Descriptor.Name)
			w.restart()
			return
		}
	}
}

// recordUnresponsive appends now to name's unresponsive-observation history,
// drops entries outside the sliding window, and returns the window's count.
func (w *Watchdog) recordUnresponsive(name string, now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-restartWindow)
	kept := w.unresponsive[name][:0]
	for _, t := range w.unresponsive[name] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	w.unresponsive[name] = kept
	return len(kept)
}

// reexec re-executes the process image preserving the original argument
// vector, the stdlib equivalent of os.execv — no pack library wraps
// process re-exec.
func (w *Watchdog) reexec() {
	exe, err := os.Executable()
	if err != nil {
		w.log.Error("watchdog: cannot resolve executable path, aborting restart", "error", err)
		return
	}
	w.log.Error("watchdog: re-executing process", "exe", exe, "args", os.Args)
	if err := syscall.Exec(exe, os.Args, os.Environ()); err != nil {
		w.log.Error("watchdog: re-exec failed", "error", err)
	}
}
