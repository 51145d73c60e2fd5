// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package control runs the fixed-period balance loop.
package control

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/balancer/internal/monitoring"
	"github.com/relabs-tech/balancer/internal/motor"
	"github.com/relabs-tech/balancer/internal/odometry"
	"github.com/relabs-tech/balancer/internal/orientation"
	"github.com/relabs-tech/balancer/internal/pid"
	"github.com/relabs-tech/balancer/internal/state"
	"github.com/relabs-tech/balancer/internal/telemetry"
	"github.com/relabs-tech/balancer/internal/timeutil"
)

// IMU is the inertial sensor the loop samples every cycle.
type IMU interface {
	ReadAcceleration() error
	ReadGyroscope() error
	ScaledAcceleration() (x, y, z float64)
	ScaledGyroscope() (x, y, z float64)
}

// Encoder is a resettable wheel tick counter.
type Encoder interface {
	Counter() int
	Reset()
}

// Wheel accepts one drive command per cycle.
type Wheel interface {
	Apply(motor.Command) error
}

// Params are the fixed loop settings.
type Params struct {
	Period        time.Duration
	ShutdownPitch float64 // degrees
}

// Devices groups the hardware the loop reads and drives.
type Devices struct {
	IMU          IMU
	LeftEncoder  Encoder
	RightEncoder Encoder
	LeftMotor    Wheel
	RightMotor   Wheel
}

// BalanceLoop keeps the robot upright. Only Run's goroutine may call Step.
type BalanceLoop struct {
	params  Params
	dev     Devices
	motion  *state.Motion
	speed   *pid.Controller
	balance *pid.Controller
	odo     *odometry.Estimator
	att     *orientation.AttitudeEstimator
	clock   timeutil.Clock
	rec     *telemetry.Recorder

	misses  atomic.Int64
	retries atomic.Int64
}

// NewBalanceLoop wires a loop. The speed and balance controllers are shared
// with the tuning console, which may change their gains at any time. rec
// may be nil.
func NewBalanceLoop(p Params, dev Devices, motion *state.Motion, speed, balance *pid.Controller, clock timeutil.Clock, rec *telemetry.Recorder) *BalanceLoop {
	return &BalanceLoop{
		params:  p,
		dev:     dev,
		motion:  motion,
		speed:   speed,
		balance: balance,
		odo:     odometry.New(p.Period.Seconds(), int(motion.DistanceSampleCount.Load())),
		att:     orientation.NewAttitudeEstimator(),
		clock:   clock,
		rec:     rec,
	}
}

// Run cycles until ctx is cancelled, then stops both motors.
func (l *BalanceLoop) Run(ctx context.Context) error {
	monitoring.Logf("balance: loop started, period %v", l.params.Period)
	defer l.stopMotors()

	for {
		if ctx.Err() != nil {
			monitoring.Logf("balance: loop stopped after %d deadline misses, %d IMU retries", l.misses.Load(), l.retries.Load())
			return nil
		}
		if err := l.Step(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			return err
		}
	}
}

// Step runs one cycle. An IMU failure ends the cycle early without
// touching the motors or sleeping.
func (l *BalanceLoop) Step(ctx context.Context) error {
	start := l.clock.Now()
	dt := l.params.Period.Seconds()

	targetSpeed := l.motion.TargetSpeed.Load()
	l.speed.SetTarget(targetSpeed)

	if n := int(l.motion.DistanceSampleCount.Load()); n != l.odo.Capacity() {
		l.odo.SetCapacity(n)
	}

	left := l.dev.LeftEncoder.Counter()
	right := l.dev.RightEncoder.Counter()
	l.dev.LeftEncoder.Reset()
	l.dev.RightEncoder.Reset()
	l.motion.LeftCounter.Store(int64(left))
	l.motion.RightCounter.Store(int64(right))

	currentSpeed := l.odo.Update(left, right, targetSpeed)
	correction, err := l.speed.Update(currentSpeed, l.odo.Span())
	if err != nil {
		return err
	}
	targetAngle := l.motion.EquilibriumAngle.Load() + correction

	if err := l.readIMU(); err != nil {
		l.retries.Add(1)
		if l.rec != nil {
			l.rec.RecordIMURetry()
		}
		monitoring.Debugf("balance: %v, retrying", err)
		return nil
	}

	ax, ay, az := l.dev.IMU.ScaledAcceleration()
	_, pitchRate, yawRate := l.dev.IMU.ScaledGyroscope()
	rawPitch := orientation.ComputePoseFromAccel(ax, ay, az).Pitch
	att := l.att.Update(rawPitch, pitchRate, yawRate, dt, l.motion.FilterFactor.Load())
	l.motion.FilteredPitch.Store(att.FilteredPitch)
	l.motion.RelativeYaw.Store(att.RelativeYaw)

	l.balance.SetTarget(targetAngle)
	output, err := l.balance.Update(att.FilteredPitch, dt)
	if err != nil {
		return err
	}

	turnStep := l.motion.TurnSpeedStep.Load()
	if turnComplete(turnStep, att.RelativeYaw, l.motion.TurnAngleOrder.Load()) {
		l.motion.ClearTurn()
		turnStep = 0
		monitoring.Debugf("balance: ordered turn is over")
	}

	leftCmd, rightCmd := driveCommands(Drive{
		MotorsEnabled:    l.motion.MotorsEnabled.Load(),
		LeftSpeed:        output + turnStep,
		RightSpeed:       output - turnStep,
		FilteredPitch:    att.FilteredPitch,
		TargetAngle:      targetAngle,
		EquilibriumLimit: l.motion.EquilibriumLimit.Load(),
		ShutdownPitch:    l.params.ShutdownPitch,
	})
	if err := l.dev.LeftMotor.Apply(leftCmd); err != nil {
		monitoring.Logf("balance: left motor: %v", err)
	}
	if err := l.dev.RightMotor.Apply(rightCmd); err != nil {
		monitoring.Logf("balance: right motor: %v", err)
	}

	if l.rec != nil {
		l.rec.RecordBalance(telemetry.BalanceSample{
			RawPitch:      rawPitch,
			FilteredPitch: att.FilteredPitch,
			RelativeYaw:   att.RelativeYaw,
			TargetAngle:   targetAngle,
			CurrentSpeed:  currentSpeed,
			BalanceOutput: output,
			Left:          leftCmd,
			Right:         rightCmd,
		})
	}

	elapsed := l.clock.Since(start)
	if elapsed < l.params.Period {
		return l.clock.Sleep(ctx, l.params.Period-elapsed)
	}
	l.misses.Add(1)
	if l.rec != nil {
		l.rec.RecordDeadlineMiss()
	}
	monitoring.Debugf("balance: cycle late by %v", elapsed-l.params.Period)
	return nil
}

func (l *BalanceLoop) readIMU() error {
	if err := l.dev.IMU.ReadAcceleration(); err != nil {
		return err
	}
	return l.dev.IMU.ReadGyroscope()
}

func (l *BalanceLoop) stopMotors() {
	for _, w := range []Wheel{l.dev.LeftMotor, l.dev.RightMotor} {
		if err := w.Apply(motor.Command{}); err != nil {
			monitoring.Logf("balance: stop motor: %v", err)
		}
	}
}

// DeadlineMisses returns how many cycles overran the period.
func (l *BalanceLoop) DeadlineMisses() int64 { return l.misses.Load() }

// IMURetries returns how many cycles were dropped on IMU errors.
func (l *BalanceLoop) IMURetries() int64 { return l.retries.Load() }

// turnComplete reports whether yaw has reached the ordered angle in the
// direction of the turn.
func turnComplete(step, yaw, order float64) bool {
	return (step > 0 && yaw >= order) || (step < 0 && yaw <= order)
}

// Drive is the input to the motor safety cutoff.
type Drive struct {
	MotorsEnabled    bool
	LeftSpeed        float64
	RightSpeed       float64
	FilteredPitch    float64
	TargetAngle      float64
	EquilibriumLimit float64
	ShutdownPitch    float64
}

// driveCommands applies the safety cutoff and turns signed wheel speeds
// into motor commands.
func driveCommands(d Drive) (left, right motor.Command) {
	if !d.MotorsEnabled ||
		(d.LeftSpeed == 0 && d.RightSpeed == 0) ||
		math.Abs(d.FilteredPitch-d.TargetAngle) <= d.EquilibriumLimit ||
		math.Abs(d.FilteredPitch) >= d.ShutdownPitch {
		return motor.Command{}, motor.Command{}
	}
	return wheelCommand(d.LeftSpeed), wheelCommand(d.RightSpeed)
}

func wheelCommand(speed float64) motor.Command {
	if speed > 0 {
		return motor.Command{Direction: motor.Forward, Duty: speed}
	}
	return motor.Command{Direction: motor.Backward, Duty: -speed}
}
