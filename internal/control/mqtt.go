package control

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/coolpanel/internal/infrastructure/mqtt"
)

// Broker is the subset of *mqtt.Client used by the MQTT transport.
type Broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// ServeMQTT subscribes to the command topic and answers each request on the
// response topic. Responses carry the request ID for correlation.
//
// ctx is passed to every Apply; it should live as long as the service.
func ServeMQTT(ctx context.Context, broker Broker, topics mqtt.Topics, qos byte, channel *Channel) error {
	handler := func(_ string, payload []byte) error {
		var resp Response
		req, err := DecodeRequest(payload)
		if err != nil {
			resp = ErrorResponse(err)
		} else {
			resp = channel.Apply(ctx, req)
		}

		out, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("encoding response: %w", err)
		}
		return broker.Publish(topics.Response(), out, qos, false)
	}

	if err := broker.Subscribe(topics.Command(), qos, handler); err != nil {
		return fmt.Errorf("subscribing to control commands: %w", err)
	}
	return nil
}
