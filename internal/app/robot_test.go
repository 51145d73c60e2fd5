package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/relabs-tech/balancer/internal/config"
	"github.com/relabs-tech/balancer/internal/hal"
	"github.com/relabs-tech/balancer/internal/monitoring"
	"github.com/relabs-tech/balancer/internal/motor"
	"github.com/relabs-tech/balancer/internal/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
)

func simConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.HALBackend = "sim"
	cfg.CalibrationFile = filepath.Join(t.TempDir(), "setup.json")
	cfg.MQTTBroker = ""
	cfg.WebServerPort = 0
	cfg.DisplayEnabled = false
	cfg.Debug = false
	return cfg
}

func TestNewRobot_Sim(t *testing.T) {
	monitoring.SetLogger(nil)
	cfg := simConfig(t)
	require.NoError(t, os.WriteFile(cfg.CalibrationFile,
		[]byte(`{"GYROSCOPE_Z_OFFSET": -12, "LEFT_MOTOR_OFFSET": 5}`), 0o644))

	sim := hal.NewSim()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	r, err := newRobot(context.Background(), cfg, sim, clock)
	require.NoError(t, err)

	bus := sim.Bus(cfg.I2CBus)
	assert.Equal(t, byte(0x01), bus.Register(cfg.IMUI2CAddr, 0x6B))
	assert.Equal(t, byte(0x02), bus.Register(cfg.IMUI2CAddr, 0x1A))
	assert.Contains(t, r.imu.String(), "offsets: 0 / 0 / -12")

	require.NoError(t, r.left.Forward(0))
	assert.Equal(t, 5.0, r.left.CurrentSpeed())

	m := r.motion.Snapshot()
	assert.Equal(t, cfg.EquilibriumAngle, m.EquilibriumAngle)
	assert.Equal(t, cfg.DistanceSamples, m.DistanceSampleCount)
	assert.Equal(t, cfg.MotorsOnAtStart, m.MotorsEnabled)
}

func TestNewRobot_MissingCalibrationUsesZeroOffsets(t *testing.T) {
	monitoring.SetLogger(nil)
	cfg := simConfig(t)

	r, err := newRobot(context.Background(), cfg, hal.NewSim(), timeutil.NewMockClock(time.Unix(0, 0)))
	require.NoError(t, err)
	assert.Contains(t, r.imu.String(), "acceleration offsets: 0 / 0 / 0")
}

func TestNewRobot_BadCalibration(t *testing.T) {
	monitoring.SetLogger(nil)
	cfg := simConfig(t)
	require.NoError(t, os.WriteFile(cfg.CalibrationFile, []byte("{"), 0o644))

	_, err := newRobot(context.Background(), cfg, hal.NewSim(), timeutil.NewMockClock(time.Unix(0, 0)))
	assert.Error(t, err)
}

func TestRobot_RunStopsMotors(t *testing.T) {
	monitoring.SetLogger(nil)
	cfg := simConfig(t)
	cfg.MotorsOnAtStart = true

	sim := hal.NewSim()
	r, err := newRobot(context.Background(), cfg, sim, timeutil.NewMockClock(time.Unix(0, 0)))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, r.run(ctx))

	assert.Positive(t, r.rec.Snapshot().Cycles)
	assert.Equal(t, motor.Stopped, r.left.Direction())
	assert.Equal(t, motor.Stopped, r.right.Direction())
	for _, pin := range []string{cfg.LeftMotorPin1, cfg.LeftMotorPin2, cfg.RightMotorPin1, cfg.RightMotorPin2} {
		assert.Equal(t, gpio.Low, sim.TestPin(pin).Read(), pin)
	}
}
