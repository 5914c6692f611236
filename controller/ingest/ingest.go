// Package ingest implements the controller's ingest loop: subscribe
// xsedge/#, route by topic, persist, correlate acks, and broadcast to live
// observers.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ghuser/xscontrol/pkg/logger"
	"github.com/ghuser/xscontrol/pkg/model"
)

const (
	subscribeTopic   = "xsedge/#"
	registerTopic    = "xsedge/register"
	connectTimeout   = 10 * time.Second
	subscribeTimeout = 10 * time.Second
	reconnectBackoff = 5 * time.Second
)

// Store is the subset of pkg/storage.ControllerStore ingest needs.
type Store interface {
	UpsertEdge(edgeID, version string) (model.EdgeRecord, error)
	TouchEdge(edgeID string) error
	AppendTelemetry(rec model.TelemetryRecord) error
	AckCommand(cmdID, result string) error
}

// Broadcaster is the subset of controller/observer.Hub ingest needs.
type Broadcaster interface {
	Broadcast(payload map[string]any)
}

// Ingest subscribes to xsedge/# and routes inbound edge traffic.
type Ingest struct {
	log         logger.Logger
	store       Store
	broadcaster Broadcaster
	brokerURL   string
	clientID    string
}

// New returns an Ingest that connects to brokerURL.
func New(log logger.Logger, store Store, broadcaster Broadcaster, brokerURL, clientID string) *Ingest {
	return &Ingest{log: log, store: store, broadcaster: broadcaster, brokerURL: brokerURL, clientID: clientID}
}

// Run connects, subscribes, and processes messages until ctx is done. On
// broker disconnection it sleeps 5 s and reconnects, preserving the same
// subscription.
func (i *Ingest) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := i.connectAndListen(ctx); err != nil {
			i.log.Error("ingest: broker session ended, reconnecting", "error", err)
		}
		select {
		case <-time.After(reconnectBackoff):
		case <-ctx.Done():
			return
		}
	}
}

func (i *Ingest) connectAndListen(ctx context.Context) error {
	lost := make(chan error, 1)
	opts := mqtt.NewClientOptions().
		AddBroker(i.brokerURL).
		SetClientID(i.clientID).
		SetAutoReconnect(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			select {
			case lost <- err:
			default:
			}
		})

	client := mqtt.NewClient(opts)
	t := client.Connect()
	if !t.WaitTimeout(connectTimeout) {
		return fmt.Errorf("ingest: connect timeout to %s", i.brokerURL)
	}
	if err := t.Error(); err != nil {
		return fmt.Errorf("ingest: connect: %w", err)
	}
	defer client.Disconnect(250)

	st := client.Subscribe(subscribeTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		i.handleMessage(ctx, msg.Topic(), msg.Payload())
	})
	if !st.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("ingest: subscribe timeout: %s", subscribeTopic)
	}
	if err := st.Error(); err != nil {
		return fmt.Errorf("ingest: subscribe: %w", err)
	}
	i.log.Info("ingest: subscribed", "topic", subscribeTopic, "broker", i.brokerURL)

	select {
	case <-ctx.Done():
		return nil
	case err := <-lost:
		return err
	}
}

func (i *Ingest) handleMessage(_ context.Context, topic string, payload []byte) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		i.log.Error("ingest: malformed payload", "topic", topic, "error", err)
		return
	}

	if topic == registerTopic {
		i.handleRegister(raw)
		return
	}
	i.handleTelemetry(topic, raw)
}

func (i *Ingest) handleRegister(raw map[string]any) {
	edgeID, _ := raw["edge_id"].(string)
	if edgeID == "" {
		i.log.Error("ingest: register message missing edge_id")
		return
	}
	version, _ := raw["version"].(string)

	if _, err := i.store.UpsertEdge(edgeID, version); err != nil {
		i.log.Error("ingest: upsert edge failed", "edge_id", edgeID, "error", err)
		return
	}
	i.log.Info("ingest: edge registered", "edge_id", edgeID, "version", version)
}

func (i *Ingest) handleTelemetry(mqttTopic string, raw map[string]any) {
	edgeID, _ := raw["edge_id"].(string)
	if edgeID == "" {
		i.log.Error("ingest: telemetry message missing edge_id", "mqtt_topic", mqttTopic)
		return
	}
	innerTopic, _ := raw["topic"].(string)
	data, _ := raw["data"].(map[string]any)

	if err := i.store.TouchEdge(edgeID); err != nil {
		i.log.Error("ingest: touch edge failed", "edge_id", edgeID, "error", err)
	}

	rec := model.TelemetryRecord{EdgeID: edgeID, Topic: innerTopic, Data: data, Timestamp: time.Now()}
	if err := i.store.AppendTelemetry(rec); err != nil {
		i.log.Error("ingest: persist telemetry failed", "edge_id", edgeID, "error", err)
	}

	// This substring match against the inbound MQTT topic is a deliberately
	// different ack convention than the edge-side bus topic ack/<cmd_id>
	// used internally by edge/command.
	if strings.Contains(mqttTopic, "ack") {
		cmdID, _ := data["cmd_id"].(string)
		result, _ := data["result"].(string)
		if cmdID != "" {
			if err := i.store.AckCommand(cmdID, result); err != nil {
				i.log.Error("ingest: ack correlation failed", "cmd_id", cmdID, "error", err)
			}
		}
	}

	if i.broadcaster != nil {
		i.broadcaster.Broadcast(raw)
	}
}
