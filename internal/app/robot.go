// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ssd1306"

	"github.com/relabs-tech/balancer/internal/avoidance"
	"github.com/relabs-tech/balancer/internal/calibration"
	"github.com/relabs-tech/balancer/internal/command"
	"github.com/relabs-tech/balancer/internal/config"
	"github.com/relabs-tech/balancer/internal/control"
	"github.com/relabs-tech/balancer/internal/hal"
	"github.com/relabs-tech/balancer/internal/monitoring"
	"github.com/relabs-tech/balancer/internal/motor"
	"github.com/relabs-tech/balancer/internal/pid"
	"github.com/relabs-tech/balancer/internal/sensors"
	"github.com/relabs-tech/balancer/internal/state"
	"github.com/relabs-tech/balancer/internal/telemetry"
	"github.com/relabs-tech/balancer/internal/timeutil"
	"github.com/relabs-tech/balancer/internal/tuning"
)

// robot is every long-lived object of one run.
type robot struct {
	cfg     *config.Config
	backend hal.Backend
	bus     i2c.BusCloser
	clock   timeutil.Clock

	motion  *state.Motion
	imu     *sensors.MPU6050
	left    *motor.Motor
	right   *motor.Motor
	encL    *sensors.Encoder
	encR    *sensors.Encoder
	ranger  *sensors.Proximity
	speed   *pid.Controller
	balance *pid.Controller
	rec     *telemetry.Recorder
	handler *command.Handler

	balanceLoop   *control.BalanceLoop
	avoidanceLoop *avoidance.Loop
	display       *ssd1306.Dev
}

// RunRobot brings up the hardware and runs every loop until ctx is
// cancelled or one of them fails. Motors are stopped before it returns.
func RunRobot(ctx context.Context, cfg *config.Config) error {
	monitoring.SetDebug(cfg.Debug)

	backend, err := hal.New(cfg.HALBackend)
	if err != nil {
		return err
	}
	defer backend.Close()
	monitoring.Logf("robot: using %s backend", backend.Name())

	r, err := newRobot(ctx, cfg, backend, timeutil.RealClock{})
	if err != nil {
		return err
	}
	defer r.bus.Close()

	return r.run(ctx)
}

func newRobot(ctx context.Context, cfg *config.Config, backend hal.Backend, clock timeutil.Clock) (*robot, error) {
	r := &robot{cfg: cfg, backend: backend, clock: clock}

	cal, err := calibration.Load(cfg.CalibrationFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		monitoring.Logf("robot: no calibration file %s, using zero offsets", cfg.CalibrationFile)
	case err != nil:
		return nil, err
	}

	if sim, ok := backend.(*hal.Sim); ok {
		seedSimBus(sim.Bus(cfg.I2CBus), cfg.IMUI2CAddr, cfg.DisplayI2CAddr)
	}

	r.bus, err = backend.I2C(cfg.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %s: %w", cfg.I2CBus, err)
	}
	if err := r.initDevices(ctx, cal); err != nil {
		r.bus.Close()
		return nil, err
	}

	r.motion = state.NewMotion(state.Defaults{
		EquilibriumAngle:    cfg.EquilibriumAngle,
		EquilibriumLimit:    cfg.EquilibriumLimit,
		FilterFactor:        cfg.FilterFactor,
		DistanceSampleCount: cfg.DistanceSamples,
		MotorsEnabled:       cfg.MotorsOnAtStart,
		AvoidanceEnabled:    cfg.AvoidanceOnAtStart,
	})
	r.speed = pid.New(pid.Gains{
		Kp: cfg.SpeedPIDKp, Ki: cfg.SpeedPIDKi, Kd: cfg.SpeedPIDKd,
		Min: cfg.SpeedPIDMin, Max: cfg.SpeedPIDMax,
		AntiWindupFactor: cfg.SpeedPIDWindup,
	})
	r.balance = pid.New(pid.Gains{
		Kp: cfg.BalancePIDKp, Ki: cfg.BalancePIDKi, Kd: cfg.BalancePIDKd,
		Min: cfg.BalancePIDMin, Max: cfg.BalancePIDMax,
		AntiWindupFactor: cfg.BalancePIDWindup,
	})
	r.rec = telemetry.NewRecorder(r.motion, clock)

	r.balanceLoop = control.NewBalanceLoop(
		control.Params{
			Period:        time.Duration(cfg.BalancePeriodMS) * time.Millisecond,
			ShutdownPitch: cfg.ShutdownPitch,
		},
		control.Devices{
			IMU:          r.imu,
			LeftEncoder:  r.encL,
			RightEncoder: r.encR,
			LeftMotor:    r.left,
			RightMotor:   r.right,
		},
		r.motion, r.speed, r.balance, clock, r.rec,
	)
	r.avoidanceLoop = avoidance.NewLoop(avoidance.Params{
		BaseSpeedStep:    cfg.BaseSpeedStep,
		TurnSpeedStep:    cfg.TurnSpeedStep,
		TurnAngleStep:    cfg.TurnAngleStep,
		ObstacleDistance: cfg.ObstacleDistance,
	}, r.ranger, r.motion, clock, r.rec)
	r.handler = command.NewHandler(r.motion, command.Steps{
		BaseSpeed: cfg.BaseSpeedStep,
		TurnSpeed: cfg.TurnSpeedStep,
		TurnAngle: cfg.TurnAngleStep,
	})

	if cfg.DisplayEnabled {
		// The display is optional: a missing panel only costs the status screen.
		r.display, err = OpenDisplay(r.bus, cfg.DisplayI2CAddr)
		if err != nil {
			monitoring.Logf("robot: %v", err)
		}
	}
	return r, nil
}

// initDevices opens the IMU, motors, encoders and proximity sensor.
func (r *robot) initDevices(ctx context.Context, cal calibration.Calibration) error {
	cfg := r.cfg
	var err error

	r.imu, err = sensors.NewMPU6050(r.bus, cfg.IMUI2CAddr, r.clock)
	if err != nil {
		return err
	}
	if err := r.imu.Reset(ctx); err != nil {
		return err
	}
	if err := r.imu.ResetOffsets(); err != nil {
		return err
	}
	r.imu.ApplyCalibration(cal)
	monitoring.Logf("robot: IMU ready at 0x%02X", cfg.IMUI2CAddr)

	freq := physic.Frequency(cfg.PWMFrequencyHz) * physic.Hertz
	if r.left, err = r.newMotor("left", cfg.LeftMotorEnablePin, cfg.LeftMotorPin1, cfg.LeftMotorPin2, cal.LeftMotorOffset, freq); err != nil {
		return err
	}
	if r.right, err = r.newMotor("right", cfg.RightMotorEnablePin, cfg.RightMotorPin1, cfg.RightMotorPin2, cal.RightMotorOffset, freq); err != nil {
		return err
	}

	if r.encL, err = r.newEncoder(cfg.LeftEncoderPin1, cfg.LeftEncoderPin2); err != nil {
		return err
	}
	if r.encR, err = r.newEncoder(cfg.RightEncoderPin1, cfg.RightEncoderPin2); err != nil {
		return err
	}

	trigger, err := r.backend.Pin(cfg.ProximityTriggerPin)
	if err != nil {
		return err
	}
	echo, err := r.backend.Pin(cfg.ProximityEchoPin)
	if err != nil {
		return err
	}
	r.ranger, err = sensors.NewProximity(trigger, echo, time.Duration(cfg.EchoTimeoutMS)*time.Millisecond, r.clock)
	return err
}

func (r *robot) newMotor(name, enable, pin1, pin2 string, offset float64, freq physic.Frequency) (*motor.Motor, error) {
	en, err := r.backend.Pin(enable)
	if err != nil {
		return nil, err
	}
	in1, err := r.backend.Pin(pin1)
	if err != nil {
		return nil, err
	}
	in2, err := r.backend.Pin(pin2)
	if err != nil {
		return nil, err
	}
	return motor.New(name, en, in1, in2, offset, freq)
}

func (r *robot) newEncoder(pinA, pinB string) (*sensors.Encoder, error) {
	a, err := r.backend.Pin(pinA)
	if err != nil {
		return nil, err
	}
	b, err := r.backend.Pin(pinB)
	if err != nil {
		return nil, err
	}
	return sensors.NewEncoder(a, b)
}

// run starts every loop and waits for all of them.
func (r *robot) run(ctx context.Context) error {
	cfg := r.cfg
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { r.encL.Run(ctx); return nil })
	g.Go(func() error { r.encR.Run(ctx); return nil })
	g.Go(func() error { return r.balanceLoop.Run(ctx) })
	g.Go(func() error { return r.avoidanceLoop.Run(ctx) })

	if sim, ok := r.backend.(*hal.Sim); ok {
		g.Go(func() error {
			return runSimIMU(ctx, sim.Bus(cfg.I2CBus), cfg.IMUI2CAddr, r.motion, r.clock)
		})
	}

	if cfg.CommandSerialPort != "" {
		transport := command.NewSerialTransport(cfg.CommandSerialPort, cfg.CommandBaudRate, r.handler, r.clock)
		g.Go(func() error { return transport.Run(ctx) })
	}

	if cfg.MQTTBroker != "" {
		client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDRobot)
		if err != nil {
			monitoring.Logf("robot: MQTT disabled: %v", err)
		} else {
			defer client.Disconnect(250)
			r.startMQTT(ctx, g, client)
		}
	}

	if cfg.WebServerPort > 0 {
		web := NewWebServer(r.rec, tuning.Deps{
			Motion:  r.motion,
			Speed:   r.speed,
			Balance: r.balance,
			IMU:     r.imu,
			Ranger:  r.ranger,
		}, r.imu, time.Duration(cfg.TelemetryIntervalMS)*time.Millisecond)
		g.Go(func() error { return web.Run(ctx, fmt.Sprintf(":%d", cfg.WebServerPort)) })
	}

	if r.display != nil {
		g.Go(func() error {
			defer r.display.Halt()
			return RunDisplay(ctx, r.display, r.rec, time.Duration(cfg.DisplayUpdateInterval)*time.Millisecond)
		})
	}

	monitoring.Logf("robot: running")
	err := g.Wait()
	monitoring.Logf("robot: stopped")
	return err
}

func (r *robot) startMQTT(ctx context.Context, g *errgroup.Group, client mqtt.Client) {
	if err := command.SubscribeMQTT(client, r.cfg.TopicCommand, r.handler); err != nil {
		monitoring.Logf("robot: %v", err)
	}
	pub := telemetry.NewPublisher(client, r.cfg.TopicTelemetry,
		time.Duration(r.cfg.TelemetryIntervalMS)*time.Millisecond, r.rec)
	g.Go(func() error { return pub.Run(ctx) })
}
