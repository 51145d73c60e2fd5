// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package state holds the motion command record shared by the balance
// loop, the obstacle avoidance loop and the command channels.
//
// Every field is an independent atomic cell. Readers never get a torn
// value, but there is no multi-field snapshot: a reader may see
// TurnAngleOrder from one writer step and TurnSpeedStep from the next.
// The controlled quantities vary smoothly, so this is accepted.
package state

import (
	"math"
	"sync/atomic"
)

// Float64 is an atomically accessed float64.
type Float64 struct {
	bits atomic.Uint64
}

// Load returns the stored value.
func (f *Float64) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}

// Store sets the value.
func (f *Float64) Store(v float64) {
	f.bits.Store(math.Float64bits(v))
}

// Defaults seeds a Motion record at startup.
type Defaults struct {
	EquilibriumAngle    float64
	EquilibriumLimit    float64
	FilterFactor        float64
	DistanceSampleCount int
	MotorsEnabled       bool
	AvoidanceEnabled    bool
}

// Motion is the shared command/state record. It lives for the whole
// process and is passed by pointer.
type Motion struct {
	// Commands, written by avoidance and command channels.
	TargetSpeed    Float64
	TurnAngleOrder Float64
	TurnSpeedStep  Float64

	MotorsEnabled            atomic.Bool
	ObstacleAvoidanceEnabled atomic.Bool
	CameraOn                 atomic.Bool

	// Live-tunable balance parameters.
	EquilibriumAngle    Float64
	EquilibriumLimit    Float64
	FilterFactor        Float64
	DistanceSampleCount atomic.Int64

	// Published by the balance loop every cycle.
	FilteredPitch Float64
	RelativeYaw   Float64
	LeftCounter   atomic.Int64
	RightCounter  atomic.Int64
}

// NewMotion returns a record with zero speed and no turn in progress.
func NewMotion(d Defaults) *Motion {
	m := &Motion{}
	m.EquilibriumAngle.Store(d.EquilibriumAngle)
	m.EquilibriumLimit.Store(d.EquilibriumLimit)
	m.FilterFactor.Store(d.FilterFactor)
	m.DistanceSampleCount.Store(int64(d.DistanceSampleCount))
	m.MotorsEnabled.Store(d.MotorsEnabled)
	m.ObstacleAvoidanceEnabled.Store(d.AvoidanceEnabled)
	return m
}

// Halt cancels any turn and sets the target speed to zero.
func (m *Motion) Halt() {
	m.TurnAngleOrder.Store(0)
	m.TurnSpeedStep.Store(0)
	m.TargetSpeed.Store(0)
}

// Cruise cancels any turn and drives straight at speed.
func (m *Motion) Cruise(speed float64) {
	m.TurnAngleOrder.Store(0)
	m.TurnSpeedStep.Store(0)
	m.TargetSpeed.Store(speed)
}

// TurnBy orders a turn of delta degrees relative to the current yaw. A
// positive step turns towards increasing yaw. Target speed is untouched.
func (m *Motion) TurnBy(delta, step float64) {
	m.TurnAngleOrder.Store(m.RelativeYaw.Load() + delta)
	m.TurnSpeedStep.Store(step)
}

// ClearTurn marks the ordered turn as complete.
func (m *Motion) ClearTurn() {
	m.TurnAngleOrder.Store(0)
	m.TurnSpeedStep.Store(0)
}

// Snapshot is a plain copy of Motion, field by field. It is not atomic as
// a whole.
type Snapshot struct {
	TargetSpeed              float64 `json:"target_speed"`
	TurnAngleOrder           float64 `json:"turn_angle_order"`
	TurnSpeedStep            float64 `json:"turn_speed_step"`
	MotorsEnabled            bool    `json:"motors_enabled"`
	ObstacleAvoidanceEnabled bool    `json:"obstacle_avoidance_enabled"`
	CameraOn                 bool    `json:"camera_on"`
	EquilibriumAngle         float64 `json:"equilibrium_angle"`
	EquilibriumLimit         float64 `json:"equilibrium_limit"`
	FilterFactor             float64 `json:"filter_factor"`
	DistanceSampleCount      int     `json:"distance_sample_count"`
	FilteredPitch            float64 `json:"filtered_pitch"`
	RelativeYaw              float64 `json:"relative_yaw"`
	LeftCounter              int     `json:"left_counter"`
	RightCounter             int     `json:"right_counter"`
}

// Snapshot copies each field independently.
func (m *Motion) Snapshot() Snapshot {
	return Snapshot{
		TargetSpeed:              m.TargetSpeed.Load(),
		TurnAngleOrder:           m.TurnAngleOrder.Load(),
		TurnSpeedStep:            m.TurnSpeedStep.Load(),
		MotorsEnabled:            m.MotorsEnabled.Load(),
		ObstacleAvoidanceEnabled: m.ObstacleAvoidanceEnabled.Load(),
		CameraOn:                 m.CameraOn.Load(),
		EquilibriumAngle:         m.EquilibriumAngle.Load(),
		EquilibriumLimit:         m.EquilibriumLimit.Load(),
		FilterFactor:             m.FilterFactor.Load(),
		DistanceSampleCount:      int(m.DistanceSampleCount.Load()),
		FilteredPitch:            m.FilteredPitch.Load(),
		RelativeYaw:              m.RelativeYaw.Load(),
		LeftCounter:              int(m.LeftCounter.Load()),
		RightCounter:             int(m.RightCounter.Load()),
	}
}
