// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package pid implements the proportional-integral-derivative controller
// used by both stages of the balance cascade.
package pid

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrNonPositiveStep is returned by Update when dt <= 0.
var ErrNonPositiveStep = errors.New("pid: time step must be positive")

// Gains is the tunable configuration of a controller.
//
// The integral accumulator is limited to ±AntiWindupFactor * max(|Min|, |Max|).
type Gains struct {
	Kp, Ki, Kd       float64
	Target           float64
	Min, Max         float64
	AntiWindupFactor float64
}

// State is a copy of the controller terms after the last update.
type State struct {
	P, I, D         float64
	LastError       float64
	Output          float64
	AntiWindupLimit float64
}

// Controller is safe for concurrent use: the control loop updates it while
// the tuning console changes gains.
type Controller struct {
	mu sync.Mutex

	gains      Gains
	antiWindup float64

	p, i, d   float64
	lastError float64
	output    float64
}

// New returns a controller with zeroed terms.
func New(g Gains) *Controller {
	c := &Controller{gains: g}
	c.antiWindup = windupLimit(g)
	return c
}

func windupLimit(g Gains) float64 {
	return g.AntiWindupFactor * math.Max(math.Abs(g.Min), math.Abs(g.Max))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

// Update feeds the measured value and returns the clamped correction.
func (c *Controller) Update(current, dt float64) (float64, error) {
	if dt <= 0 {
		return 0, fmt.Errorf("%w: got %v", ErrNonPositiveStep, dt)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.gains.Target - current

	c.p = e
	c.i = clamp(c.i+e*dt, -c.antiWindup, c.antiWindup)
	c.d = (e - c.lastError) / dt
	c.lastError = e

	out := c.gains.Kp*c.p + c.gains.Ki*c.i + c.gains.Kd*c.d
	c.output = clamp(out, c.gains.Min, c.gains.Max)
	return c.output, nil
}

// Reset zeroes all terms. Gains are kept.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.p, c.i, c.d = 0, 0, 0
	c.lastError = 0
	c.output = 0
}

func (c *Controller) SetKp(v float64) { c.set(func(g *Gains) { g.Kp = v }) }
func (c *Controller) SetKi(v float64) { c.set(func(g *Gains) { g.Ki = v }) }
func (c *Controller) SetKd(v float64) { c.set(func(g *Gains) { g.Kd = v }) }

// SetTarget changes the setpoint.
func (c *Controller) SetTarget(v float64) { c.set(func(g *Gains) { g.Target = v }) }

// SetLimits changes the output bounds and rescales the anti-windup limit.
func (c *Controller) SetLimits(min, max float64) {
	c.set(func(g *Gains) { g.Min, g.Max = min, max })
}

// SetAntiWindup changes the anti-windup factor.
func (c *Controller) SetAntiWindup(factor float64) {
	c.set(func(g *Gains) { g.AntiWindupFactor = factor })
}

func (c *Controller) set(f func(*Gains)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f(&c.gains)
	c.antiWindup = windupLimit(c.gains)
	c.i = clamp(c.i, -c.antiWindup, c.antiWindup)
}

// Gains returns the current configuration.
func (c *Controller) Gains() Gains {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gains
}

// State returns the terms computed by the last Update.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		P:               c.p,
		I:               c.i,
		D:               c.d,
		LastError:       c.lastError,
		Output:          c.output,
		AntiWindupLimit: c.antiWindup,
	}
}

// String formats gains and terms the way the tuning console prints them.
func (c *Controller) String() string {
	g := c.Gains()
	s := c.State()
	return fmt.Sprintf(
		" kp = %6.2f -  ki = %6.2f -     kd = %6.2f\n"+
			"  p = %6.2f -   i = %6.2f -      d = %6.2f\n"+
			"min = %6.1f - max = %6.1f - a.w.up = %6.1f\n"+
			"  t = %6.2f - val = %6.2f",
		g.Kp, g.Ki, g.Kd,
		s.P, s.I, s.D,
		g.Min, g.Max, s.AntiWindupLimit,
		g.Target, s.Output,
	)
}
