// Package bridge implements the edge node's MQTT bridge: a single
// long-lived broker connection exposing a synchronous publish path and two
// listener roles — commands and rules — whose subscriptions are retried
// independently, to the rest of the edge runtime.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ghuser/xscontrol/pkg/logger"
)

const (
	connectTimeout   = 10 * time.Second
	publishTimeout   = 5 * time.Second
	subscribeTimeout = 10 * time.Second
	reconnectBackoff = 5 * time.Second
)

// CommandHandler is the narrow capability edge/command.Handler satisfies:
// decode and execute one inbound command payload.
type CommandHandler interface {
	Handle(ctx context.Context, payload []byte)
}

// RulesHandler is the narrow capability edge/rulessync.Sync satisfies:
// decode and apply one inbound ruleset push.
type RulesHandler interface {
	HandleUpdate(ctx context.Context, edgeID string, payload []byte)
}

// ResolveEdgeID returns configured unchanged when non-empty, else mints a
// random 4-digit suffixed ID once per process.
func ResolveEdgeID(configured string) string {
	if configured != "" {
		return configured
	}
	return fmt.Sprintf("xsedge-%04d", rand.Intn(10000))
}

// Bridge maintains one paho MQTT client for an edge node and fans inbound
// messages out to the command and rules handlers. Satisfies edge/bus.Bridge
// (Publish) and pkg/httpx.HealthChecker (Ping).
type Bridge struct {
	log      logger.Logger
	edgeID   string
	cmd      CommandHandler
	rules    RulesHandler
	brokerURL string

	mu     sync.Mutex
	client mqtt.Client
	cancel context.CancelFunc
}

// New returns a Bridge for edgeID, not yet connected.
func New(log logger.Logger, brokerURL, edgeID string, cmd CommandHandler, rules RulesHandler) *Bridge {
	return &Bridge{
		log:       log,
		edgeID:    edgeID,
		cmd:       cmd,
		rules:     rules,
		brokerURL: brokerURL,
	}
}

// Start opens the long-lived broker connection and arms the command/rules
// subscriptions. Subscriptions are (re-)established from the client's
// OnConnect handler, so a reconnect after a transport failure also restores
// them without the caller doing anything.
func (b *Bridge) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	opts := mqtt.NewClientOptions().
		AddBroker(b.brokerURL).
		SetClientID(b.edgeID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			b.log.Error("bridge: connection lost, disconnected", "edge_id", b.edgeID, "error", err)
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			b.log.Info("bridge: connected", "edge_id", b.edgeID, "broker", b.brokerURL)
			go b.subscribeRole(ctx, c, "command", fmt.Sprintf("xsctrl/commands/%s", b.edgeID), b.onCommand)
			go b.subscribeRole(ctx, c, "rules-edge", fmt.Sprintf("xsctrl/rules/%s", b.edgeID), b.onRules)
			go b.subscribeRole(ctx, c, "rules-all", "xsctrl/rules/all", b.onRules)
		})

	client := mqtt.NewClient(opts)
	t := client.Connect()
	if !t.WaitTimeout(connectTimeout) {
		cancel()
		return fmt.Errorf("bridge: connect timeout to %s", b.brokerURL)
	}
	if err := t.Error(); err != nil {
		cancel()
		return fmt.Errorf("bridge: connect: %w", err)
	}

	b.mu.Lock()
	b.client = client
	b.mu.Unlock()
	return nil
}

// subscribeRole subscribes topic with handler, retrying on a fixed backoff
// until it succeeds or ctx is done. Each role retries independently — a
// stuck command subscribe never blocks the rules subscribe from succeeding.
func (b *Bridge) subscribeRole(ctx context.Context, client mqtt.Client, role, topic string, handler mqtt.MessageHandler) {
	for {
		if ctx.Err() != nil {
			return
		}
		t := client.Subscribe(topic, 0, handler)
		if t.WaitTimeout(subscribeTimeout) && t.Error() == nil {
			b.log.Info("bridge: subscribed", "role", role, "topic", topic)
			return
		}
		b.log.Error("bridge: subscribe failed, retrying", "role", role, "topic", topic, "error", t.Error())
		select {
		case <-time.After(reconnectBackoff):
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bridge) onCommand(_ mqtt.Client, msg mqtt.Message) {
	b.cmd.Handle(context.Background(), msg.Payload())
}

func (b *Bridge) onRules(_ mqtt.Client, msg mqtt.Message) {
	b.rules.HandleUpdate(context.Background(), b.edgeID, msg.Payload())
}

// Publish encodes {edge_id, topic, data} and publishes to
// xsedge/<edge_id>/<topic>, satisfying edge/bus.Bridge. Submissions from a
// single caller goroutine reach the broker in submission order (one client,
// synchronous Publish call); across goroutines no ordering is guaranteed.
func (b *Bridge) Publish(topic string, payload map[string]any) error {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()
	if client == nil || !client.IsConnected() {
		return fmt.Errorf("bridge: not connected")
	}

	envelope := map[string]any{"edge_id": b.edgeID, "topic": topic, "data": payload}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("bridge: marshal envelope: %w", err)
	}

	t := client.Publish(fmt.Sprintf("xsedge/%s/%s", b.edgeID, topic), 0, false, data)
	if !t.WaitTimeout(publishTimeout) {
		return fmt.Errorf("bridge: publish timeout: %s", topic)
	}
	return t.Error()
}

// Ping satisfies pkg/httpx.HealthChecker.
func (b *Bridge) Ping(_ context.Context) error {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()
	if client == nil || !client.IsConnected() {
		return fmt.Errorf("bridge: not connected")
	}
	return nil
}

// EdgeID returns the resolved edge identifier this bridge publishes under.
func (b *Bridge) EdgeID() string { return b.edgeID }

// Stop disconnects the broker client and cancels the subscribe-retry roles.
func (b *Bridge) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()
	if client != nil {
		client.Disconnect(250)
	}
}
