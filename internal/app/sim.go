package app

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/relabs-tech/balancer/internal/hal"
	"github.com/relabs-tech/balancer/internal/sensors"
	"github.com/relabs-tech/balancer/internal/state"
	"github.com/relabs-tech/balancer/internal/timeutil"
)

const (
	simWobbleAmplitude = 3.0 // degrees
	simWobbleFrequency = 0.5 // Hz
	simYawRate         = 45  // degrees per second while turning
	simUpdatePeriod    = 5 * time.Millisecond

	mpuAccelXOutH = 0x3B
	mpuGyroXOutH  = 0x43
)

// seedSimBus makes the IMU and the display answer on the simulated bus.
func seedSimBus(bus *hal.RegisterBus, imuAddr, displayAddr uint16) {
	accel, gyro := imuRegisters(0, 0, 0)
	bus.SetRegisters(imuAddr, mpuAccelXOutH, accel[:]...)
	bus.SetRegisters(imuAddr, mpuGyroXOutH, gyro[:]...)
	bus.SetRegisters(displayAddr, 0x00, 0x00)
}

// imuRegisters encodes a body at pitch degrees, turning at the given
// rates in degrees per second, as MPU6050 output registers.
func imuRegisters(pitch, pitchRate, yawRate float64) (accel, gyro [6]byte) {
	rad := pitch * math.Pi / 180
	ax := -math.Sin(rad) * sensors.AccelScale
	az := math.Cos(rad) * sensors.AccelScale

	putCounts(accel[:], ax, 0, az)
	putCounts(gyro[:], 0, pitchRate*sensors.GyroScale, yawRate*sensors.GyroScale)
	return accel, gyro
}

func putCounts(b []byte, x, y, z float64) {
	for i, v := range [3]float64{x, y, z} {
		v = math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(v)))
		binary.BigEndian.PutUint16(b[2*i:], uint16(int16(v)))
	}
}

// runSimIMU rocks the simulated body back and forth and yaws it in the
// direction of any pending turn order.
func runSimIMU(ctx context.Context, bus *hal.RegisterBus, addr uint16, m *state.Motion, clock timeutil.Clock) error {
	start := clock.Now()
	for {
		t := clock.Since(start).Seconds()
		w := 2 * math.Pi * simWobbleFrequency
		pitch := simWobbleAmplitude * math.Sin(w*t)
		pitchRate := simWobbleAmplitude * w * math.Cos(w*t)

		yawRate := 0.0
		switch step := m.TurnSpeedStep.Load(); {
		case step > 0:
			yawRate = simYawRate
		case step < 0:
			yawRate = -simYawRate
		}

		accel, gyro := imuRegisters(pitch, pitchRate, yawRate)
		bus.SetRegisters(addr, mpuAccelXOutH, accel[:]...)
		bus.SetRegisters(addr, mpuGyroXOutH, gyro[:]...)

		if err := clock.Sleep(ctx, simUpdatePeriod); err != nil {
			return nil
		}
	}
}
