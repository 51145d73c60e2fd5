package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/relabs-tech/balancer/internal/monitoring"
)

// Client is the part of mqtt.Client the publisher uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher sends the recorder's snapshot to an MQTT topic at a fixed
// interval.
type Publisher struct {
	client   Client
	topic    string
	interval time.Duration
	rec      *Recorder
}

// NewPublisher returns a publisher for topic.
func NewPublisher(client Client, topic string, interval time.Duration, rec *Recorder) *Publisher {
	return &Publisher{client: client, topic: topic, interval: interval, rec: rec}
}

// Run publishes until ctx is cancelled. Publish errors are logged and the
// loop keeps going.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.PublishOnce(); err != nil {
				monitoring.Logf("telemetry: %v", err)
			}
		}
	}
}

// PublishOnce sends the current snapshot, retained, at QoS 0.
func (p *Publisher) PublishOnce() error {
	payload, err := json.Marshal(p.rec.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	token := p.client.Publish(p.topic, 0, true, payload)
	if token.WaitTimeout(p.interval) && token.Error() != nil {
		return fmt.Errorf("publish %s: %w", p.topic, token.Error())
	}
	return nil
}
