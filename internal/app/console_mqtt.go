package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/relabs-tech/balancer/internal/config"
	"github.com/relabs-tech/balancer/internal/monitoring"
	"github.com/relabs-tech/balancer/internal/telemetry"
)

// RunTelemetryConsole prints every telemetry record published by the
// robot until ctx is cancelled.
func RunTelemetryConsole(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if cfg.MQTTBroker == "" {
		return errors.New("console: MQTT_BROKER is not configured")
	}
	// The broker drops the older session on a client id clash, so every
	// console gets its own.
	clientID := fmt.Sprintf("%s-%s", cfg.MQTTClientIDConsole, uuid.NewString()[:8])
	client, err := connectMQTT(cfg.MQTTBroker, clientID)
	if err != nil {
		return fmt.Errorf("console: %w", err)
	}
	defer client.Disconnect(250)

	token := client.Subscribe(cfg.TopicTelemetry, 0, telemetryPrinter(out))
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	monitoring.Logf("console: subscribed to %s", cfg.TopicTelemetry)

	<-ctx.Done()
	monitoring.Logf("console: shutting down")
	return nil
}

func telemetryPrinter(out io.Writer) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		var s telemetry.Snapshot
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			monitoring.Logf("console: telemetry unmarshal error: %v", err)
			return
		}
		fmt.Fprintln(out, formatSnapshot(s))
	}
}

// formatSnapshot renders one telemetry record as two console lines.
func formatSnapshot(s telemetry.Snapshot) string {
	return fmt.Sprintf(
		"[BAL ] pitch=%7.2f filt=%7.2f target=%6.2f yaw=%7.2f speed=%7.2f out=%7.2f  L=%s %5.1f  R=%s %5.1f\n"+
			"[NAV ] dist=%6.1f state=%-14s order=%7.2f cruise=%6.2f motors=%t avoid=%t misses=%d retries=%d",
		s.RawPitch, s.FilteredPitch, s.TargetAngle, s.RelativeYaw, s.CurrentSpeed, s.BalanceOutput,
		s.Left.Direction, s.Left.Duty, s.Right.Direction, s.Right.Duty,
		s.Distance, s.AvoidanceState, s.Motion.TurnAngleOrder, s.Motion.TargetSpeed,
		s.Motion.MotorsEnabled, s.Motion.ObstacleAvoidanceEnabled, s.DeadlineMisses, s.IMURetries,
	)
}
