// Package events delivers resource availability notices to the systems
// that track drivers and trucks.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/trip-ledger/internal/status"
)

// Publisher sends the effects of a committed transition.
type Publisher interface {
	Publish(ctx context.Context, events []status.ResourceAvailable) error
}

// Message is the payload published for each freed resource.
type Message struct {
	Status string    `json:"status"`
	TripID string    `json:"tripId"`
	At     time.Time `json:"at"`
}

// ErrPublishTimeout is returned when the broker does not acknowledge a
// message in time.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// mqttClient is the subset of mqtt.Client used for publishing.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	Timeout     time.Duration
}

// MQTTPublisher publishes one QoS 1 message per event to
// {prefix}/{kind}/{id}/status.
type MQTTPublisher struct {
	client  mqttClient
	prefix  string
	timeout time.Duration
	now     func() time.Time
}

// NewMQTTPublisher connects to the broker and returns a ready publisher.
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.Timeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("mqtt connection lost")
		})
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return newMQTTPublisher(client, cfg.TopicPrefix, cfg.Timeout), nil
}

func newMQTTPublisher(client mqttClient, prefix string, timeout time.Duration) *MQTTPublisher {
	if prefix == "" {
		prefix = "fleet"
	}
	return &MQTTPublisher{client: client, prefix: prefix, timeout: timeout, now: time.Now}
}

// Topic returns the topic an event is published on.
func (p *MQTTPublisher) Topic(ev status.ResourceAvailable) string {
	return fmt.Sprintf("%s/%s/%s/status", p.prefix, ev.Kind, ev.ID)
}

// Publish sends every event and waits for each acknowledgement. It stops at
// the first failure.
func (p *MQTTPublisher) Publish(ctx context.Context, events []status.ResourceAvailable) error {
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := json.Marshal(Message{Status: "Available", TripID: ev.TripID, At: p.now().UTC()})
		if err != nil {
			return err
		}
		token := p.client.Publish(p.Topic(ev), 1, false, payload)
		if !token.WaitTimeout(p.waitFor(ctx)) {
			return fmt.Errorf("publish %s %s: %w", ev.Kind, ev.ID, ErrPublishTimeout)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish %s %s: %w", ev.Kind, ev.ID, err)
		}
		log.WithFields(log.Fields{
			"kind":    ev.Kind,
			"id":      ev.ID,
			"trip_id": ev.TripID,
		}).Debug("resource availability published")
	}
	return nil
}

func (p *MQTTPublisher) waitFor(ctx context.Context) time.Duration {
	wait := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < wait {
			wait = left
		}
	}
	return wait
}

// Close disconnects from the broker, allowing in-flight work 250ms.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

// LogPublisher records events in the log only. It is used when no broker
// is configured.
type LogPublisher struct {
	Logger log.FieldLogger
}

func (p LogPublisher) Publish(_ context.Context, events []status.ResourceAvailable) error {
	logger := p.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	for _, ev := range events {
		logger.WithFields(log.Fields{
			"kind":    ev.Kind,
			"id":      ev.ID,
			"trip_id": ev.TripID,
		}).Info("resource available")
	}
	return nil
}
