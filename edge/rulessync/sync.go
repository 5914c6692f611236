// Package rulessync implements the edge's Rules Sync component: persist a
// controller-pushed ruleset to disk, reload the rules engine, and
// acknowledge on the bus.
package rulessync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ghuser/xscontrol/pkg/logger"
	"github.com/ghuser/xscontrol/pkg/model"
	"github.com/ghuser/xscontrol/pkg/storage"
)

// BusPublisher is the subset of edge/bus.Bus a rules-update ack needs.
type BusPublisher interface {
	Publish(ctx context.Context, topic string, payload map[string]any) error
}

// Engine is the subset of edge/rules.Engine Sync needs.
type Engine interface {
	Load(path string) error
}

// Sync persists pushed rulesets delivered by edge/bridge's rules listener
// role and reloads the rules engine from them.
type Sync struct {
	log    logger.Logger
	engine Engine
	bus    BusPublisher
	path   string
}

// New returns a Sync that persists pushed rulesets to path.
func New(log logger.Logger, engine Engine, bus BusPublisher, path string) *Sync {
	return &Sync{log: log, engine: engine, bus: bus, path: path}
}

// HandleUpdate accepts either a bare JSON array of rules or {"rules": [...]}.
// A malformed payload is logged at warn and leaves the on-disk ruleset and
// the engine untouched.
func (s *Sync) HandleUpdate(ctx context.Context, edgeID string, payload []byte) {
	rules, err := parseRulesPayload(payload)
	if err != nil {
		s.log.Warn("rulessync: malformed payload", "edge_id", edgeID, "error", err)
		return
	}

	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		s.log.Error("rulessync: marshal rules failed", "error", err)
		return
	}
	if err := storage.WriteFileAtomic(s.path, data); err != nil {
		s.log.Error("rulessync: write rules file failed", "path", s.path, "error", err)
		return
	}
	if err := s.engine.Load(s.path); err != nil {
		s.log.Error("rulessync: engine reload failed", "error", err)
		return
	}
	s.log.Info("rulessync: rules updated", "path", s.path, "count", len(rules))

	ack := map[string]any{
		"edge_id": edgeID,
		"status":  "ack",
		"result":  fmt.Sprintf("%d rules updated", len(rules)),
	}
	if err := s.bus.Publish(ctx, fmt.Sprintf("ack/rules_update/%s", edgeID), ack); err != nil {
		s.log.Error("rulessync: failed to publish ack", "edge_id", edgeID, "error", err)
	}
}

func parseRulesPayload(payload []byte) ([]model.Rule, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	if trimmed[0] == '[' {
		var rules []model.Rule
		if err := json.Unmarshal(trimmed, &rules); err != nil {
			return nil, err
		}
		return rules, nil
	}

	var wrapper struct {
		Rules []model.Rule `json:"rules"`
	}
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return nil, err
	}
	if wrapper.Rules == nil {
		return nil, fmt.Errorf("missing rules field")
	}
	return wrapper.Rules, nil
}
