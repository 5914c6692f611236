package plugin

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ghuser/xscontrol/pkg/auth"
	"github.com/ghuser/xscontrol/pkg/logger"
	"github.com/ghuser/xscontrol/pkg/model"
)

const (
	restartBackoff = 2 * time.Second
	restartWindow  = 60 * time.Second
	stopDeadline   = 5 * time.Second
)

// BusPublisher is the subset of edge/bus.Bus a plugin needs to publish.
type BusPublisher interface {
	Publish(ctx context.Context, topic string, payload map[string]any) error
}

// RulesEvaluator is the subset of edge/rules.Engine a plugin needs.
type RulesEvaluator interface {
	Evaluate(ctx model.RulesContext)
}

type record struct {
	desc   model.PluginDescriptor
	plugin Plugin
	cancel context.CancelFunc

	state     atomic.Value // model.PluginState
	heartbeat atomic.Int64 // unix nano, single-writer (the plugin), single-reader (watchdog/status)

	mu       sync.Mutex
	restarts []time.Time
}

func (r *record) setState(s model.PluginState) { r.state.Store(s) }

func (r *record) getState() model.PluginState {
	s, _ := r.state.Load().(model.PluginState)
	if s == "" {
		return model.PluginStarting
	}
	return s
}

// recordRestart appends now to the restart history, drops entries outside
// the sliding window, and returns the window's current count.
func (r *record) recordRestart() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-restartWindow)
	kept := r.restarts[:0]
	for _, t := range r.restarts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.restarts = append(kept, now)
	return len(r.restarts)
}

func (r *record) restartCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.restarts)
}

// Supervisor discovers plugin bundles, instantiates them from the static
// registry, and runs each under a crash-restart loop with an atomic
// heartbeat and a bounded, per-plugin shutdown deadline.
type Supervisor struct {
	log          logger.Logger
	bus          BusPublisher
	rules        RulesEvaluator
	verifyDigest bool

	mu      sync.RWMutex
	records map[string]*record
}

// NewSupervisor returns a Supervisor with no plugins loaded.
func NewSupervisor(log logger.Logger, bus BusPublisher, rules RulesEvaluator, verifyDigest bool) *Supervisor {
	return &Supervisor{
		log:          log,
		bus:          bus,
		rules:        rules,
		verifyDigest: verifyDigest,
		records:      map[string]*record{},
	}
}

// LoadAll discovers manifests under root, instantiates each registered
// plugin, and launches a supervised worker goroutine for it. A manifest
// whose name has no registered constructor is skipped and logged; it does
// not fail the whole load.
func (s *Supervisor) LoadAll(ctx context.Context, root string) error {
	descs, err := discoverManifests(root)
	if err != nil {
		return err
	}

	for _, desc := range descs {
		ctor, ok := lookup(desc.Name)
		if !ok {
			s.log.Warn("no registered plugin for manifest", "name", desc.Name)
			continue
		}

		digest, err := auth.VerifyPluginDigest(desc.BundlePath, s.verifyDigest)
		if err != nil {
			s.log.Error("plugin integrity check failed", "plugin", desc.Name, "error", err)
			continue
		}
		desc.DigestSHA256 = digest

		rec := &record{desc: desc, plugin: ctor(desc)}
		rec.setState(model.PluginStarting)

		workerCtx, cancel := context.WithCancel(ctx)
		rec.cancel = cancel

		s.mu.Lock()
		s.records[desc.Name] = rec
		s.mu.Unlock()

		go s.runSupervised(workerCtx, rec)
		s.log.Info("plugin loaded", "plugin", desc.Name, "version", desc.Version)
	}
	return nil
}

func (s *Supervisor) runSupervised(ctx context.Context, rec *record) {
	caps := Capabilities{
		Publish:   s.bus.Publish,
		Evaluate:  s.rules.Evaluate,
		Heartbeat: func() { rec.heartbeat.Store(time.Now().UnixNano()) },
	}

	for {
		rec.setState(model.PluginRunning)
		err := rec.plugin.OnStart(ctx, caps)

		if ctx.Err() != nil {
			rec.setState(model.PluginStopped)
			return
		}
		if err == nil {
			// OnStart returned voluntarily (not via cancellation). Treat
			// this as a clean stop rather than restarting indefinitely.
			rec.setState(model.PluginStopped)
			return
		}

		rec.setState(model.PluginCrashed)
		count := rec.recordRestart()
		s.log.Error("plugin crashed, restarting", "plugin", rec.desc.Name, "restart_count", count, "error", err)

		select {
		case <-time.After(restartBackoff):
		case <-ctx.Done():
			rec.setState(model.PluginStopped)
			return
		}
	}
}

// Stop cancels every plugin's context and invokes OnStop with a bounded
// deadline per plugin, in parallel; a slow or failing plugin never blocks
// the others from stopping.
func (s *Supervisor) Stop() {
	s.mu.RLock()
	recs := make([]*record, 0, len(s.records))
	for _, r := range s.records {
		recs = append(recs, r)
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, rec := range recs {
		wg.Add(1)
		go func(rec *record) {
			defer wg.Done()
			rec.cancel()
			ctx, cancel := context.WithTimeout(context.Background(), stopDeadline)
			defer cancel()
			if err := rec.plugin.OnStop(ctx); err != nil {
				s.log.Error("plugin OnStop failed", "plugin", rec.desc.Name, "error", err)
			}
		}(rec)
	}
	wg.Wait()
}

// Records returns a read-only snapshot of every loaded plugin's runtime
// state, for the watchdog and the status HTTP surface.
func (s *Supervisor) Records() []model.PluginRuntimeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.PluginRuntimeRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, model.PluginRuntimeRecord{
			Descriptor:            rec.desc,
			State:                 rec.getState(),
			LastHeartbeatUnixNano: rec.heartbeat.Load(),
			RestartCount:          rec.restartCount(),
		})
	}
	return out
}

// Heartbeat returns the named plugin's last heartbeat (unix nano) and
// whether that plugin is currently loaded, for the watchdog's staleness
// check.
func (s *Supervisor) Heartbeat(name string) (int64, bool) {
	s.mu.RLock()
	rec, ok := s.records[name]
	s.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return rec.heartbeat.Load(), true
}
