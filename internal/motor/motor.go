// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package motor drives a DC motor through an H-bridge: two direction pins
// and a PWM enable pin.
package motor

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Direction of rotation.
type Direction int

const (
	Stopped Direction = iota
	Forward
	Backward
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return "stopped"
	}
}

// Command is one cycle's drive order for a wheel. Duty is in percent.
type Command struct {
	Direction Direction
	Duty      float64
}

// Motor is one wheel. Offset is the dead-zone duty below which the motor
// does not turn; any non-stop order is raised to at least Offset.
type Motor struct {
	name   string
	enable gpio.PinOut
	in1    gpio.PinOut
	in2    gpio.PinOut
	offset float64
	freq   physic.Frequency

	mu   sync.Mutex
	dir  Direction
	duty float64
}

// New returns a stopped motor. All three pins are driven low.
func New(name string, enable, in1, in2 gpio.PinOut, offset float64, freq physic.Frequency) (*Motor, error) {
	m := &Motor{
		name:   name,
		enable: enable,
		in1:    in1,
		in2:    in2,
		offset: offset,
		freq:   freq,
	}
	for _, p := range []gpio.PinOut{enable, in1, in2} {
		if err := p.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("motor %s: pin %s: %w", name, p, err)
		}
	}
	return m, nil
}

// Forward runs the motor forward at duty percent.
func (m *Motor) Forward(duty float64) error {
	return m.drive(Forward, m.effectiveDuty(duty))
}

// Backward runs the motor backward at duty percent.
func (m *Motor) Backward(duty float64) error {
	return m.drive(Backward, m.effectiveDuty(duty))
}

// Stop sets the duty to zero and both direction pins low.
func (m *Motor) Stop() error {
	return m.drive(Stopped, 0)
}

// Apply executes a Command.
func (m *Motor) Apply(c Command) error {
	switch c.Direction {
	case Forward:
		return m.Forward(c.Duty)
	case Backward:
		return m.Backward(c.Duty)
	default:
		return m.Stop()
	}
}

// CurrentSpeed returns the duty currently applied.
func (m *Motor) CurrentSpeed() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duty
}

// Direction returns the current direction.
func (m *Motor) Direction() Direction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dir
}

func (m *Motor) String() string { return m.name }

func (m *Motor) effectiveDuty(d float64) float64 {
	d += m.offset
	if d < m.offset {
		d = m.offset
	}
	if d > 100 {
		d = 100
	}
	return d
}

// drive writes direction pins only on a direction change and the PWM only
// on a duty change.
func (m *Motor) drive(dir Direction, duty float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if dir != m.dir {
		l1, l2 := gpio.Low, gpio.Low
		switch dir {
		case Forward:
			l2 = gpio.High
		case Backward:
			l1 = gpio.High
		}
		if err := m.in1.Out(l1); err != nil {
			return fmt.Errorf("motor %s: %w", m.name, err)
		}
		if err := m.in2.Out(l2); err != nil {
			return fmt.Errorf("motor %s: %w", m.name, err)
		}
		m.dir = dir
	}

	if duty != m.duty {
		if err := m.enable.PWM(dutyOf(duty), m.freq); err != nil {
			return fmt.Errorf("motor %s: pwm: %w", m.name, err)
		}
		m.duty = duty
	}
	return nil
}

func dutyOf(percent float64) gpio.Duty {
	return gpio.Duty(percent / 100 * float64(gpio.DutyMax))
}
