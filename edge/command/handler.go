// Package command implements the edge's Command Handler: execute
// controller-issued commands and always emit exactly one acknowledgement
// event on the bus.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ghuser/xscontrol/pkg/logger"
	"github.com/ghuser/xscontrol/pkg/model"
	"github.com/ghuser/xscontrol/pkg/storage"
)

// BusPublisher is the subset of edge/bus.Bus a command ack needs.
type BusPublisher interface {
	Publish(ctx context.Context, topic string, payload map[string]any) error
}

// RulesReloader is the subset of edge/rules.Engine the reload_rules action
// needs: reload from the configured path and report the active rule count.
type RulesReloader interface {
	Load(path string) error
	Rules() []model.Rule
}

type incoming struct {
	CmdID  string          `json:"cmd_id"`
	EdgeID string          `json:"edge_id"`
	Action string          `json:"action"`
	Rules  json.RawMessage `json:"rules,omitempty"`
}

// Handler executes controller commands delivered by edge/bridge's command
// listener role.
type Handler struct {
	log       logger.Logger
	bus       BusPublisher
	rules     RulesReloader
	rulesPath string
}

// New returns a Handler that persists pushed rules to rulesPath.
func New(log logger.Logger, bus BusPublisher, rules RulesReloader, rulesPath string) *Handler {
	return &Handler{log: log, bus: bus, rules: rules, rulesPath: rulesPath}
}

// Handle decodes one command payload, executes it, and publishes exactly
// one ack on ack/<cmd_id> regardless of whether execution succeeded —
// failures are reported in the ack's result string, never as a transport
// error.
func (h *Handler) Handle(ctx context.Context, payload []byte) {
	var cmd incoming
	if err := json.Unmarshal(payload, &cmd); err != nil {
		h.log.Error("command: malformed payload", "error", err)
		return
	}

	result := h.execute(cmd)
	h.log.Info("command: executed", "edge_id", cmd.EdgeID, "action", cmd.Action, "result", result)

	ack := map[string]any{
		"cmd_id":  cmd.CmdID,
		"edge_id": cmd.EdgeID,
		"status":  "ack",
		"result":  result,
	}
	if err := h.bus.Publish(ctx, fmt.Sprintf("ack/%s", cmd.CmdID), ack); err != nil {
		h.log.Error("command: failed to publish ack", "cmd_id", cmd.CmdID, "error", err)
	}
}

func (h *Handler) execute(cmd incoming) string {
	switch cmd.Action {
	case "reload_rules":
		return h.reloadRules(cmd)
	default:
		return fmt.Sprintf("Unhandled action: %s", cmd.Action)
	}
}

func (h *Handler) reloadRules(cmd incoming) string {
	if hasInlineRules(cmd.Rules) {
		if err := storage.WriteFileAtomic(h.rulesPath, cmd.Rules); err != nil {
			return fmt.Sprintf("Error: %v", err)
		}
	}
	if err := h.rules.Load(h.rulesPath); err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return fmt.Sprintf("Rules reloaded (%d rules)", len(h.rules.Rules()))
}

func hasInlineRules(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
