package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ecowatt/tourate/pkg/types"
)

var ErrPublishTimeout = errors.New("mqtt publish timed out")

// client is the part of paho_mqtt.Client the publisher needs.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho_mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher mirrors every computed rate to a retained MQTT topic per
// category so dashboards and home automation can subscribe to the live rate.
// A Publisher without a broker is a no-op.
type Publisher struct {
	client      client
	topicPrefix string
	timeout     time.Duration
}

// NewPublisher returns a Publisher on an already connected client.
func NewPublisher(c paho_mqtt.Client, topicPrefix string, timeout time.Duration) *Publisher {
	return &Publisher{
		client:      c,
		topicPrefix: strings.TrimRight(topicPrefix, "/"),
		timeout:     timeout,
	}
}

// Enabled reports whether a broker is configured.
func (p *Publisher) Enabled() bool {
	return p.client != nil
}

// Topic returns the topic rates of category are published to.
func (p *Publisher) Topic(category types.RateCategory) string {
	return p.topicPrefix + "/" + strings.ToLower(string(category))
}

type ratePayload struct {
	ID        string             `json:"id,omitempty"`
	Category  types.RateCategory `json:"category"`
	Rate      float64            `json:"rate"`
	Timestamp string             `json:"timestamp"`
}

// PublishRate publishes record as a retained QoS 1 message.
func (p *Publisher) PublishRate(ctx context.Context, record types.TOURateRecord) error {
	if p.client == nil {
		return nil
	}
	payload, err := json.Marshal(ratePayload{
		ID:        record.ID,
		Category:  record.Category,
		Rate:      record.Rate,
		Timestamp: record.FormatTimestamp(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal rate: %w", err)
	}

	token := p.client.Publish(p.Topic(record.Category), 1, true, payload)

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish %s rate: %w", record.Category, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p.client != nil {
		p.client.Disconnect(250)
	}
}
