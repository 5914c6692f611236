// Package broker maintains the controller's single long-lived MQTT
// connection used to publish dispatched commands and pushed rulesets,
// shared across requests rather than dialed fresh per publish.
package broker

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ghuser/xscontrol/pkg/logger"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Client wraps a paho client, satisfying controller/dispatch.Publisher,
// controller/rulespublisher.Publisher, and pkg/httpx.HealthChecker.
type Client struct {
	log    logger.Logger
	client mqtt.Client
}

// Dial opens and holds a connection to brokerURL under clientID.
func Dial(brokerURL, clientID string, log logger.Logger) (*Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Error("broker: connection lost", "error", err)
		}).
		SetOnConnectHandler(func(_ mqtt.Client) {
			log.Info("broker: connected", "client_id", clientID, "broker", brokerURL)
		})

	client := mqtt.NewClient(opts)
	t := client.Connect()
	if !t.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("broker: connect timeout to %s", brokerURL)
	}
	if err := t.Error(); err != nil {
		return nil, fmt.Errorf("broker: connect: %w", err)
	}
	return &Client{log: log, client: client}, nil
}

// Publish publishes payload to topic over the shared connection.
func (c *Client) Publish(topic string, payload []byte) error {
	t := c.client.Publish(topic, 0, false, payload)
	if !t.WaitTimeout(publishTimeout) {
		return fmt.Errorf("broker: publish timeout: %s", topic)
	}
	return t.Error()
}

// Ping satisfies pkg/httpx.HealthChecker.
func (c *Client) Ping(_ context.Context) error {
	if !c.client.IsConnected() {
		return fmt.Errorf("broker: not connected")
	}
	return nil
}

// Close disconnects the broker connection.
func (c *Client) Close() {
	c.client.Disconnect(250)
}
