package builtin

import (
	"context"
	"math/rand"
	"time"

	"github.com/ghuser/xscontrol/edge/plugin"
	"github.com/ghuser/xscontrol/pkg/model"
)

func init() {
	plugin.Register("edgelink_ai", newEdgeLinkAI)
}

type edgeLinkAI struct {
	desc model.PluginDescriptor
}

func newEdgeLinkAI(desc model.PluginDescriptor) plugin.Plugin {
	return &edgeLinkAI{desc: desc}
}

// linkLatencies mirrors links = {"5G": ..., "VSAT": ..., "LTE": ...} in the
// original plugin: each link type has a distinct simulated latency range.
func linkLatencies() map[string]int {
	return map[string]int{
		"5G":   40 + rand.Intn(81),  // 40..120ms
		"VSAT": 120 + rand.Intn(131), // 120..250ms
		"LTE":  60 + rand.Intn(121), // 60..180ms
	}
}

func bestLink(links map[string]int) (string, int) {
	best, bestLatency := "", 0
	first := true
	for name, latency := range links {
		if first || latency < bestLatency {
			best, bestLatency = name, latency
			first = false
		}
	}
	return best, bestLatency
}

func (p *edgeLinkAI) OnStart(ctx context.Context, caps plugin.Capabilities) error {
	for {
		caps.Heartbeat()

		links := linkLatencies()
		best, latency := bestLink(links)
		ruleCtx := model.RulesContext{"network_latency": float64(latency)}

		payload := map[string]any{"edgelink_best": best, "network_latency": latency}
		if err := caps.Publish(ctx, "edgelink/route", payload); err != nil {
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

func (p *edgeLinkAI) OnStop(_ context.Context) error {
	return nil
}
