// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package hal hides which GPIO/I2C implementation drives the board.
// A backend is picked once at startup; drivers only see periph's
// gpio.PinIO and i2c.Bus interfaces (digital I/O, PWM, edge wait).
package hal

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
)

// Backend hands out pins and buses.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string

	// Pin returns the named GPIO. Repeated calls return the same pin.
	Pin(name string) (gpio.PinIO, error)

	// I2C opens the named bus.
	I2C(bus string) (i2c.BusCloser, error)

	// Close halts every pin handed out.
	Close() error
}

// New returns the backend registered under name: "periph" for the real
// board, "sim" for an in-memory bench setup.
func New(name string) (Backend, error) {
	switch name {
	case "periph":
		return newPeriph()
	case "sim":
		return NewSim(), nil
	default:
		return nil, fmt.Errorf("hal: unknown backend %q", name)
	}
}
