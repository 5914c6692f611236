// Package dispatch implements the controller's Command Dispatch operation:
// mint a command ID, log it as SENT, and publish it to the target edge over
// MQTT.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ghuser/xscontrol/pkg/logger"
	"github.com/ghuser/xscontrol/pkg/model"
)

// Publisher is the subset of controller/broker.Client dispatch needs.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Store is the subset of pkg/storage.ControllerStore dispatch needs.
type Store interface {
	PutCommand(entry model.CommandLogEntry) error
}

// Request is one command-send request.
type Request struct {
	EdgeID  string         `json:"edge_id" validate:"required"`
	Action  string         `json:"action" validate:"required"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Result is returned to the HTTP caller on a successful dispatch.
type Result struct {
	CmdID string `json:"cmd_id"`
	Topic string `json:"topic"`
}

// Dispatch sends commands to edges over the shared broker connection.
type Dispatch struct {
	log   logger.Logger
	store Store
	pub   Publisher
}

// New returns a Dispatch.
func New(log logger.Logger, store Store, pub Publisher) *Dispatch {
	return &Dispatch{log: log, store: store, pub: pub}
}

// Send validates req, mints a command ID, records it as SENT, and publishes
// it. A publish failure is returned to the caller and is never retried —
// the operator resends explicitly rather than risk a command firing twice.
func (d *Dispatch) Send(_ context.Context, req Request) (Result, error) {
	if req.EdgeID == "" || req.Action == "" {
		return Result{}, fmt.Errorf("%w: edge_id and action are required", model.ErrBadRequest)
	}

	cmdID := uuid.NewString()

	command := map[string]any{
		"cmd_id":    cmdID,
		"edge_id":   req.EdgeID,
		"type":      "command",
		"action":    req.Action,
		"params":    req.Payload,
		"timestamp": time.Now(),
	}

	entry := model.CommandLogEntry{
		CmdID:   cmdID,
		EdgeID:  req.EdgeID,
		Command: command,
		Status:  model.CommandSent,
		SentAt:  time.Now(),
	}
	if err := d.store.PutCommand(entry); err != nil {
		return Result{}, fmt.Errorf("dispatch: log command: %w", err)
	}

	data, err := json.Marshal(command)
	if err != nil {
		return Result{}, fmt.Errorf("dispatch: marshal command: %w", err)
	}

	topic := fmt.Sprintf("xsctrl/commands/%s", req.EdgeID)
	if err := d.pub.Publish(topic, data); err != nil {
		d.log.Error("dispatch: publish failed", "cmd_id", cmdID, "edge_id", req.EdgeID, "error", err)
		return Result{}, fmt.Errorf("dispatch: publish: %w", err)
	}

	d.log.Info("dispatch: command sent", "cmd_id", cmdID, "edge_id", req.EdgeID, "action", req.Action)
	return Result{CmdID: cmdID, Topic: topic}, nil
}

