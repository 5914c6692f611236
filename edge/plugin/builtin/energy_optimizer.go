package builtin

import (
	"context"
	"math/rand"
	"time"

	"github.com/ghuser/xscontrol/edge/plugin"
	"github.com/ghuser/xscontrol/pkg/model"
)

func init() {
	plugin.Register("energy_optimizer", newEnergyOptimizer)
}

type energyOptimizer struct {
	desc model.PluginDescriptor
}

func newEnergyOptimizer(desc model.PluginDescriptor) plugin.Plugin {
	return &energyOptimizer{desc: desc}
}

func (p *energyOptimizer) OnStart(ctx context.Context, caps plugin.Capabilities) error {
	for {
		caps.Heartbeat()

		level := float64(20 + rand.Intn(81)) // 20..100%
		ruleCtx := model.RulesContext{"energy_level": level}

		if err := caps.Publish(ctx, "energy/status", map[string]any{"energy_level": level}); err != nil {
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

func (p *energyOptimizer) OnStop(_ context.Context) error {
	return nil
}
