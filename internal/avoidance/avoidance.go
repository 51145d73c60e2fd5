// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package avoidance steers the robot away from obstacles seen by the
// ultrasonic ranger. Its waits are scripted maneuver durations.
package avoidance

import (
	"context"
	"errors"
	"time"

	"github.com/relabs-tech/balancer/internal/monitoring"
	"github.com/relabs-tech/balancer/internal/sensors"
	"github.com/relabs-tech/balancer/internal/state"
	"github.com/relabs-tech/balancer/internal/telemetry"
	"github.com/relabs-tech/balancer/internal/timeutil"
)

// State is the avoidance phase chosen on the last iteration.
type State int

const (
	Idle State = iota
	Clear
	Stuck
	ObstacleAhead
)

func (s State) String() string {
	switch s {
	case Clear:
		return "clear"
	case Stuck:
		return "stuck"
	case ObstacleAhead:
		return "obstacle_ahead"
	default:
		return "idle"
	}
}

// Maneuver timing.
const (
	disabledPoll = 1000 * time.Millisecond
	clearPoll    = 100 * time.Millisecond
	noEchoPause  = 100 * time.Millisecond
	stopSettle   = 1000 * time.Millisecond
	reverseTime  = 1500 * time.Millisecond
	turnTime     = 2000 * time.Millisecond
	cruiseFactor = 1.10
	turnFraction = 0.75
	stuckWindow  = 3
)

// Ranger measures the distance to the nearest obstacle ahead.
type Ranger interface {
	Distance() (float64, error)
}

// Params are the avoidance speeds and thresholds.
type Params struct {
	BaseSpeedStep    float64
	TurnSpeedStep    float64
	TurnAngleStep    float64 // degrees
	ObstacleDistance float64 // cm
}

// Loop is the obstacle avoidance loop.
type Loop struct {
	params   Params
	ranger   Ranger
	motion   *state.Motion
	clock    timeutil.Clock
	rec      *telemetry.Recorder
	detector *StuckDetector

	stuck bool
	state State
}

// NewLoop returns an avoidance loop. rec may be nil.
func NewLoop(p Params, ranger Ranger, motion *state.Motion, clock timeutil.Clock, rec *telemetry.Recorder) *Loop {
	return &Loop{
		params:   p,
		ranger:   ranger,
		motion:   motion,
		clock:    clock,
		rec:      rec,
		detector: NewStuckDetector(stuckWindow),
	}
}

// Run iterates until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	monitoring.Logf("avoidance: loop started")
	for ctx.Err() == nil {
		if err := l.Step(ctx); err != nil && ctx.Err() == nil {
			return err
		}
	}
	monitoring.Logf("avoidance: loop stopped")
	return nil
}

// State returns the phase of the last iteration.
func (l *Loop) State() State { return l.state }

// Step takes one reading and plays the matching maneuver to its end. A
// missing echo skips the reading.
func (l *Loop) Step(ctx context.Context) error {
	distance, err := l.ranger.Distance()
	if err != nil {
		if errors.Is(err, sensors.ErrNoEcho) {
			monitoring.Debugf("avoidance: %v", err)
		} else {
			monitoring.Logf("avoidance: distance: %v", err)
		}
		if !l.motion.ObstacleAvoidanceEnabled.Load() {
			return l.clock.Sleep(ctx, disabledPoll)
		}
		return l.clock.Sleep(ctx, noEchoPause)
	}
	l.stuck = l.detector.Add(distance)

	switch {
	case !l.motion.ObstacleAvoidanceEnabled.Load():
		l.enter(Idle, distance)
		return l.clock.Sleep(ctx, disabledPoll)
	case l.stuck:
		l.enter(Stuck, distance)
		return l.escape(ctx)
	case distance < l.params.ObstacleDistance:
		l.enter(ObstacleAhead, distance)
		return l.avoid(ctx)
	default:
		l.enter(Clear, distance)
		monitoring.Debugf("avoidance: path is clear at %.1f cm, keeping going forward", distance)
		l.motion.Cruise(l.params.BaseSpeedStep * cruiseFactor)
		return l.clock.Sleep(ctx, clearPoll)
	}
}

func (l *Loop) enter(s State, distance float64) {
	l.state = s
	if l.rec != nil {
		l.rec.RecordAvoidance(s.String(), distance)
	}
}

// escape backs off and turns right, then forgets the readings that
// triggered it.
func (l *Loop) escape(ctx context.Context) error {
	monitoring.Debugf("avoidance: robot seems stuck: stopping")
	l.motion.Halt()
	if err := l.clock.Sleep(ctx, stopSettle); err != nil {
		return err
	}

	monitoring.Debugf("avoidance: robot seems stuck: going backward")
	l.motion.TargetSpeed.Store(-l.params.BaseSpeedStep * cruiseFactor)
	if err := l.clock.Sleep(ctx, reverseTime); err != nil {
		return err
	}

	monitoring.Debugf("avoidance: robot seems stuck: stopping")
	l.motion.TargetSpeed.Store(0)
	if err := l.clock.Sleep(ctx, stopSettle); err != nil {
		return err
	}

	if err := l.turnRight(ctx); err != nil {
		return err
	}
	l.stuck = false
	l.detector.Reset()
	return nil
}

func (l *Loop) avoid(ctx context.Context) error {
	monitoring.Debugf("avoidance: obstacle ahead: stopping")
	l.motion.Halt()
	if err := l.clock.Sleep(ctx, stopSettle); err != nil {
		return err
	}
	return l.turnRight(ctx)
}

func (l *Loop) turnRight(ctx context.Context) error {
	monitoring.Debugf("avoidance: turning right")
	l.motion.TurnBy(-l.params.TurnAngleStep*turnFraction, -l.params.TurnSpeedStep)
	return l.clock.Sleep(ctx, turnTime)
}
