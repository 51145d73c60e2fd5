// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/relabs-tech/balancer/internal/calibration"
	"github.com/relabs-tech/balancer/internal/timeutil"
	"periph.io/x/conn/v3/i2c"
)

// ErrIMURead marks a failed sample read. It is transient: the caller
// drops the sample and tries again on its next cycle.
var ErrIMURead = errors.New("imu read failed")

// MPU6050 registers
const (
	regXAOffsetH  = 0x06
	regYAOffsetH  = 0x08
	regZAOffsetH  = 0x0A
	regXGOffsetH  = 0x13
	regYGOffsetH  = 0x15
	regZGOffsetH  = 0x17
	regGyroConfig = 0x18
	regSmplrtDiv  = 0x19
	regConfig     = 0x1A
	regAccelXOutH = 0x3B
	regGyroXOutH  = 0x43
	regPwrMgmt1   = 0x6B
)

// Full-scale factors for ±2g and ±250°/s.
const (
	AccelScale = 16384.0 // LSB per g
	GyroScale  = 131.0   // LSB per °/s
)

// Raw holds offset-corrected sensor counts.
type Raw struct {
	Ax, Ay, Az int
	Gx, Gy, Gz int
}

// MPU6050 is an I2C accelerometer/gyroscope. Reads store the latest sample,
// which the Scaled* accessors convert to physical units.
type MPU6050 struct {
	dev   *i2c.Dev
	clock timeutil.Clock

	mu          sync.Mutex
	accelOffset [3]int
	gyroOffset  [3]int
	raw         Raw
}

// NewMPU6050 configures the sensor for a 5ms control loop: clock from the
// X gyro, 94Hz low-pass, ±250°/s and a 200Hz sample rate.
func NewMPU6050(bus i2c.Bus, addr uint16, clock timeutil.Clock) (*MPU6050, error) {
	m := &MPU6050{
		dev:   &i2c.Dev{Bus: bus, Addr: addr},
		clock: clock,
	}
	if err := m.configure(); err != nil {
		return nil, fmt.Errorf("imu init: %w", err)
	}
	return m, nil
}

func (m *MPU6050) configure() error {
	for _, w := range [][2]byte{
		{regPwrMgmt1, 0x01},
		{regConfig, 0x02},
		{regGyroConfig, 0x00},
		{regSmplrtDiv, 0x04},
	} {
		if err := m.writeByte(w[0], w[1]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MPU6050) writeByte(reg, v byte) error {
	if err := m.dev.Tx([]byte{reg, v}, nil); err != nil {
		return fmt.Errorf("write register 0x%02X: %w", reg, err)
	}
	return nil
}

func (m *MPU6050) writeWord(reg byte, v int16) error {
	u := uint16(v)
	if err := m.dev.Tx([]byte{reg, byte(u >> 8), byte(u)}, nil); err != nil {
		return fmt.Errorf("write register 0x%02X: %w", reg, err)
	}
	return nil
}

// readVector reads three big-endian int16 values starting at reg.
func (m *MPU6050) readVector(reg byte) ([3]int, error) {
	var buf [6]byte
	if err := m.dev.Tx([]byte{reg}, buf[:]); err != nil {
		return [3]int{}, err
	}
	var v [3]int
	for i := range v {
		v[i] = int(int16(uint16(buf[2*i])<<8 | uint16(buf[2*i+1])))
	}
	return v, nil
}

// Reset power-cycles the device, waits for it to settle and writes the
// configuration again, since a device reset restores register defaults.
func (m *MPU6050) Reset(ctx context.Context) error {
	if err := m.writeByte(regPwrMgmt1, 0x81); err != nil {
		return fmt.Errorf("imu reset: %w", err)
	}
	if err := m.clock.Sleep(ctx, time.Second); err != nil {
		return err
	}
	if err := m.writeByte(regPwrMgmt1, 0x01); err != nil {
		return fmt.Errorf("imu reset: %w", err)
	}
	if err := m.clock.Sleep(ctx, time.Second); err != nil {
		return err
	}
	if err := m.configure(); err != nil {
		return fmt.Errorf("imu reset: %w", err)
	}
	return nil
}

// ResetOffsets clears the hardware offset registers and the software
// offsets.
func (m *MPU6050) ResetOffsets() error {
	for _, reg := range []byte{regXAOffsetH, regYAOffsetH, regZAOffsetH, regXGOffsetH, regYGOffsetH, regZGOffsetH} {
		if err := m.writeWord(reg, 0); err != nil {
			return fmt.Errorf("imu reset offsets: %w", err)
		}
	}
	m.mu.Lock()
	m.accelOffset = [3]int{}
	m.gyroOffset = [3]int{}
	m.mu.Unlock()
	return nil
}

// ApplyCalibration sets the software offsets subtracted from every read.
func (m *MPU6050) ApplyCalibration(c calibration.Calibration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accelOffset = [3]int{c.AccelOffsetX, c.AccelOffsetY, c.AccelOffsetZ}
	m.gyroOffset = [3]int{c.GyroOffsetX, c.GyroOffsetY, c.GyroOffsetZ}
}

// ReadAcceleration samples the accelerometer.
func (m *MPU6050) ReadAcceleration() error {
	v, err := m.readVector(regAccelXOutH)
	if err != nil {
		return fmt.Errorf("%w: acceleration: %v", ErrIMURead, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw.Ax = v[0] - m.accelOffset[0]
	m.raw.Ay = v[1] - m.accelOffset[1]
	m.raw.Az = v[2] - m.accelOffset[2]
	return nil
}

// ReadGyroscope samples the gyroscope.
func (m *MPU6050) ReadGyroscope() error {
	v, err := m.readVector(regGyroXOutH)
	if err != nil {
		return fmt.Errorf("%w: gyroscope: %v", ErrIMURead, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw.Gx = v[0] - m.gyroOffset[0]
	m.raw.Gy = v[1] - m.gyroOffset[1]
	m.raw.Gz = v[2] - m.gyroOffset[2]
	return nil
}

// Raw returns the last offset-corrected counts.
func (m *MPU6050) Raw() Raw {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.raw
}

// ScaledAcceleration returns the last acceleration in g.
func (m *MPU6050) ScaledAcceleration() (x, y, z float64) {
	r := m.Raw()
	return float64(r.Ax) / AccelScale, float64(r.Ay) / AccelScale, float64(r.Az) / AccelScale
}

// ScaledGyroscope returns the last angular rates in °/s.
func (m *MPU6050) ScaledGyroscope() (x, y, z float64) {
	r := m.Raw()
	return float64(r.Gx) / GyroScale, float64(r.Gy) / GyroScale, float64(r.Gz) / GyroScale
}

// String summarises offsets and the last sample for the tuning console.
func (m *MPU6050) String() string {
	m.mu.Lock()
	ao, gof, r := m.accelOffset, m.gyroOffset, m.raw
	m.mu.Unlock()
	ax, ay, az := m.ScaledAcceleration()
	gx, gy, gz := m.ScaledGyroscope()
	return fmt.Sprintf(
		"X / Y / Z acceleration offsets: %d / %d / %d\n"+
			"X / Y / Z gyroscope    offsets: %d / %d / %d\n"+
			"X / Y / Z acceleration raw data: %d / %d / %d\n"+
			"X / Y / Z gyroscope    raw data: %d / %d / %d\n"+
			"X / Y / Z acceleration scaled data: %6.2f / %6.2f / %6.2f\n"+
			"X / Y / Z gyroscope    scaled data: %6.2f / %6.2f / %6.2f",
		ao[0], ao[1], ao[2],
		gof[0], gof[1], gof[2],
		r.Ax, r.Ay, r.Az,
		r.Gx, r.Gy, r.Gz,
		ax, ay, az,
		gx, gy, gz,
	)
}
