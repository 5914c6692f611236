// Package model holds the data types shared between the edge and controller
// runtimes: events on the local bus, plugin bookkeeping, rules, and the
// controller's persisted records.
package model

import "time"

// Event is a single publish on the edge Data Bus: a topic and a JSON-ish
// payload, timestamped at publish time. Immutable once created.
type Event struct {
	Topic     string         `json:"topic"`
	Payload   map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// PluginState is the run state of a supervised plugin.
type PluginState string

const (
	PluginStarting PluginState = "starting"
	PluginRunning  PluginState = "running"
	PluginCrashed  PluginState = "crashed"
	PluginStopped  PluginState = "stopped"
)

// PluginDescriptor identifies a discovered plugin bundle.
type PluginDescriptor struct {
	Name        string
	Version     string
	Description string
	BundlePath  string
	DigestSHA256 string // hex, optional
}

// PluginRuntimeRecord tracks a plugin's live state. Mutated only by the
// supervisor; LastHeartbeatUnixNano is written by the plugin itself and read
// by the watchdog as a relaxed atomic value (see edge/plugin).
type PluginRuntimeRecord struct {
	Descriptor         PluginDescriptor
	State              PluginState
	LastHeartbeatUnixNano int64
	RestartCount       int
}

// Rule is one entry of a ruleset: a name, a predicate over the algebra
// described in edge/rules, and an opaque action tag.
type Rule struct {
	Name string `json:"name"`
	If   string `json:"if"`
	Then string `json:"then"`
}

// RulesContext is the variable→value map assembled per-publish and handed to
// the rules engine for evaluation. Ephemeral — never persisted as-is.
type RulesContext map[string]float64

// EdgeStatus is the controller's view of an edge's liveness.
type EdgeStatus string

const (
	EdgeOnline  EdgeStatus = "ONLINE"
	EdgeOffline EdgeStatus = "OFFLINE"
)

// EdgeRecord is the controller's record of one edge node.
type EdgeRecord struct {
	EdgeID   string     `json:"edge_id"`
	Version  string     `json:"version"`
	LastSeen time.Time  `json:"last_seen"`
	Status   EdgeStatus `json:"status"`
}

// TelemetryRecord is one append-only row of ingested telemetry.
type TelemetryRecord struct {
	ID        uint64         `json:"id"`
	EdgeID    string         `json:"edge_id"`
	Topic     string         `json:"topic"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"ts"`
}

// CommandStatus is the lifecycle state of a dispatched command.
type CommandStatus string

const (
	CommandSent   CommandStatus = "SENT"
	CommandAck    CommandStatus = "ACK"
	CommandFailed CommandStatus = "FAILED"
)

// CommandLogEntry tracks one dispatched command from send to ack.
type CommandLogEntry struct {
	CmdID    string         `json:"cmd_id"`
	EdgeID   string         `json:"edge_id"`
	Command  map[string]any `json:"command"`
	Status   CommandStatus  `json:"status"`
	Result   string         `json:"result,omitempty"`
	SentAt   time.Time      `json:"ts_sent"`
	AckedAt  *time.Time     `json:"ts_ack,omitempty"`
}

// BroadcastTarget is the sentinel edge_id used for a ruleset pushed to every
// edge rather than a specific one.
const BroadcastTarget = "ALL"

// RulesetRecord is an append-only audit row for a pushed ruleset.
type RulesetRecord struct {
	EdgeID     string    `json:"edge_id"`
	Rules      []Rule    `json:"rules"`
	UploadedAt time.Time `json:"ts_uploaded"`
}
