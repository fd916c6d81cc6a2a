package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-pipeline/internal/config"
)

// Sink receives events forwarded out of the process.
type Sink interface {
	Send(ctx context.Context, event Event) error
}

// ErrNotConnected is returned while the broker connection is down.
var ErrNotConnected = errors.New("mqtt not connected")

const publishTimeout = 3 * time.Second

// MQTTSink publishes events as JSON to <prefix>/events/<type>.
type MQTTSink struct {
	client mqtt.Client
	prefix string
	qos    byte
}

// ConnectMQTT dials the broker. It returns nil without error when no broker
// is configured.
func ConnectMQTT(cfg config.MQTTConfig, logger *zap.Logger) (*MQTTSink, error) {
	if cfg.BrokerURL == "" {
		return nil, nil
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	}
	opts.OnConnect = func(_ mqtt.Client) {
		logger.Info("mqtt connected", zap.String("broker", cfg.BrokerURL), zap.String("client_id", cfg.ClientID))
	}

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connect mqtt %s: timed out", cfg.BrokerURL)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("connect mqtt %s: %w", cfg.BrokerURL, err)
	}
	return NewMQTTSink(client, cfg.TopicPrefix, cfg.QoS), nil
}

// NewMQTTSink wraps an already connected client.
func NewMQTTSink(client mqtt.Client, prefix string, qos int) *MQTTSink {
	if qos < 0 || qos > 2 {
		qos = 1
	}
	return &MQTTSink{client: client, prefix: strings.TrimSuffix(prefix, "/"), qos: byte(qos)}
}

// Topic returns the topic an event type is published on.
func (s *MQTTSink) Topic(eventType EventType) string {
	if s.prefix == "" {
		return "events/" + string(eventType)
	}
	return s.prefix + "/events/" + string(eventType)
}

// Send publishes event and waits briefly for the broker acknowledgement.
func (s *MQTTSink) Send(ctx context.Context, event Event) error {
	if s == nil || s.client == nil || !s.client.IsConnected() {
		return ErrNotConnected
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	timeout := publishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	tok := s.client.Publish(s.Topic(event.Type), s.qos, false, body)
	if !tok.WaitTimeout(timeout) {
		return fmt.Errorf("publish %s: timed out", event.Type)
	}
	return tok.Error()
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() {
	if s != nil && s.client != nil {
		s.client.Disconnect(250)
	}
}
