// Package plugin supervises in-process telemetry plugins: discovery from
// manifest-bearing directories, instantiation from a static compile-in
// registry, and a crash-restart loop with atomic heartbeat tracking.
package plugin

import (
	"context"

	"github.com/ghuser/xscontrol/pkg/model"
)

// Capabilities is the capability set injected into a plugin at start time:
// a handle to publish on the bus, a handle to evaluate rules against the
// same context a publish produced, and a heartbeat callback the plugin must
// call on every loop iteration. Plugins never hold a back-reference to the
// Supervisor: this is a flat set of functions, not an object graph.
type Capabilities struct {
	Publish   func(ctx context.Context, topic string, payload map[string]any) error
	Evaluate  func(ctx model.RulesContext)
	Heartbeat func()
}

// Plugin is a unit of work hosted by the edge supervisor.
type Plugin interface {
	// OnStart runs the plugin's main loop. It returns only on error or when
	// ctx is canceled. A non-nil error (while ctx is still live) triggers a
	// supervised restart after a fixed back-off.
	OnStart(ctx context.Context, caps Capabilities) error
	// OnStop performs best-effort cleanup. Called with a bounded deadline.
	OnStop(ctx context.Context) error
}

// Constructor builds a Plugin instance from its discovered descriptor.
type Constructor func(desc model.PluginDescriptor) Plugin
