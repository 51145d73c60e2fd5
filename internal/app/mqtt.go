package app

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/balancer/internal/monitoring"
)

// connectMQTT opens a client that keeps reconnecting in the background
// once the first connection has succeeded.
func connectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			monitoring.Logf("mqtt: connection to %s lost: %v", broker, err)
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connect %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", broker, err)
	}
	monitoring.Logf("connected to MQTT broker at %s", broker)
	return client, nil
}
