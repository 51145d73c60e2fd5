package command

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/relabs-tech/balancer/internal/monitoring"
)

// Subscriber is the part of mqtt.Client used to receive commands.
type Subscriber interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// MessageHandler adapts h to paho's callback. Each payload is one message.
func (h *Handler) MessageHandler() mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		if err := h.Handle(msg.Payload()); err != nil {
			monitoring.Debugf("command: %s: %v", msg.Topic(), err)
		}
	}
}

// SubscribeMQTT routes messages on topic to h.
func SubscribeMQTT(client Subscriber, topic string, h *Handler) error {
	token := client.Subscribe(topic, 1, h.MessageHandler())
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	monitoring.Logf("command: subscribed to MQTT topic %s", topic)
	return nil
}
