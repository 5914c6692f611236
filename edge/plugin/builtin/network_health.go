// Package builtin provides the three stand-in plugins shipped with the
// edge binary: random-telemetry generators standing in for real sensors.
package builtin

import (
	"context"
	"math/rand"
	"time"

	"github.com/ghuser/xscontrol/edge/plugin"
	"github.com/ghuser/xscontrol/pkg/model"
)

func init() {
	plugin.Register("network_health", newNetworkHealth)
}

type networkHealth struct {
	desc model.PluginDescriptor
}

func newNetworkHealth(desc model.PluginDescriptor) plugin.Plugin {
	return &networkHealth{desc: desc}
}

func (p *networkHealth) OnStart(ctx context.Context, caps plugin.Capabilities) error {
	for {
		caps.Heartbeat()

		latency := float64(50 + rand.Intn(201)) // 50..250ms
		ruleCtx := model.RulesContext{"network_latency": latency}

		if err := caps.Publish(ctx, "network/metrics", map[string]any{"network_latency": latency}); err != nil {
			return err
		}
		caps.Evaluate(ruleCtx)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(10 * time.Second):
		}
	}
}

func (p *networkHealth) OnStop(_ context.Context) error {
	return nil
}
