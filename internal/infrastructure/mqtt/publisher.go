package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/coolpanel/internal/mode"
	"github.com/nerrad567/coolpanel/internal/telemetry"
)

// publishClient is the subset of *Client the publisher needs.
type publishClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Publisher forwards telemetry snapshots and mode changes to the broker.
//
// Snapshots go to the telemetry topic unretained; the mode view goes to the
// state topic retained so a newly connected dashboard sees the current mode.
type Publisher struct {
	client publishClient
	topics Topics
	qos    byte
}

// NewPublisher creates a publisher bound to client's topics and QoS.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{
		client: client,
		topics: client.Topics(),
		qos:    client.QoS(),
	}
}

// PublishSnapshot sends one telemetry snapshot.
func (p *Publisher) PublishSnapshot(ctx context.Context, snap telemetry.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return p.client.Publish(p.topics.Telemetry(), payload, p.qos, false)
}

// PublishState sends the retained mode view.
func (p *Publisher) PublishState(v mode.View) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding mode state: %w", err)
	}
	return p.client.Publish(p.topics.State(), payload, p.qos, true)
}
