package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// ============================================================================
// MQTT state publisher
// ============================================================================
// Optional integration for home-automation setups: the daemon publishes the
// mirrored volume (retained, so new subscribers see the current value) and
// press events. Publishing happens only in the consumer context and follows
// the same policy as backend commands: failures are logged and dropped.
//
// Topics:
//   <prefix>/status  retained "online"/"offline" (LWT)
//   <prefix>/volume  retained current volume as a decimal string
//   <prefix>/press   "pressed" per accepted press
// ============================================================================

const (
	mqttConnectTimeout = 5 * time.Second
	mqttPublishTimeout = 2 * time.Second
)

// mqttPublisher wraps a paho client for state publishing.
type mqttPublisher struct {
	client pahomqtt.Client
	prefix string
	qos    byte
	logger *slog.Logger
}

// newMQTTPublisher connects to the broker and announces online status.
func newMQTTPublisher(cfg MQTTConfig, logger *slog.Logger) (*mqttPublisher, error) {
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetWill(cfg.TopicPrefix+"/status", "offline", byte(cfg.QoS), true)

	p := &mqttPublisher{
		prefix: cfg.TopicPrefix,
		qos:    byte(cfg.QoS),
		logger: logger,
	}

	p.client = pahomqtt.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect: timeout after %v", mqttConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	logger.Info("connected to mqtt broker", "broker", cfg.BrokerURL, "prefix", cfg.TopicPrefix)
	p.publish(p.prefix+"/status", "online", true)
	return p, nil
}

// publish sends one message, best-effort.
func (p *mqttPublisher) publish(topic, payload string, retained bool) {
	token := p.client.Publish(topic, p.qos, retained, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		p.logger.Warn("mqtt publish timeout", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		p.logger.Warn("mqtt publish failed", "topic", topic, "error", err)
	}
}

// PublishEvent mirrors one applied event to the broker.
func (p *mqttPublisher) PublishEvent(ev Event, volume int) {
	switch ev.(type) {
	case TurnEvent:
		p.publish(p.prefix+"/volume", strconv.Itoa(volume), true)
	case PressEvent:
		p.publish(p.prefix+"/press", "pressed", false)
	}
}

// Close announces offline status and disconnects.
func (p *mqttPublisher) Close() {
	p.publish(p.prefix+"/status", "offline", true)
	p.client.Disconnect(250)
}
