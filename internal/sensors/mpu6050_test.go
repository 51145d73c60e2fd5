package sensors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relabs-tech/balancer/internal/calibration"
	"github.com/relabs-tech/balancer/internal/hal"
	"github.com/relabs-tech/balancer/internal/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

const imuAddr = 0x68

type brokenBus struct{}

func (brokenBus) String() string                  { return "broken" }
func (brokenBus) Tx(uint16, []byte, []byte) error { return errors.New("nack") }
func (brokenBus) SetSpeed(physic.Frequency) error { return nil }

func newTestIMU(t *testing.T) (*MPU6050, *hal.RegisterBus, *timeutil.MockClock) {
	t.Helper()
	bus := hal.NewRegisterBus("1")
	bus.SetRegisters(imuAddr, 0x00, 0x00)
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	m, err := NewMPU6050(bus, imuAddr, clock)
	require.NoError(t, err)
	return m, bus, clock
}

func TestNewMPU6050_WritesConfiguration(t *testing.T) {
	_, bus, _ := newTestIMU(t)

	assert.Equal(t, byte(0x01), bus.Register(imuAddr, regPwrMgmt1))
	assert.Equal(t, byte(0x02), bus.Register(imuAddr, regConfig))
	assert.Equal(t, byte(0x00), bus.Register(imuAddr, regGyroConfig))
	assert.Equal(t, byte(0x04), bus.Register(imuAddr, regSmplrtDiv))
}

func TestMPU6050_Transactions(t *testing.T) {
	pb := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: imuAddr, W: []byte{regPwrMgmt1, 0x01}},
			{Addr: imuAddr, W: []byte{regConfig, 0x02}},
			{Addr: imuAddr, W: []byte{regGyroConfig, 0x00}},
			{Addr: imuAddr, W: []byte{regSmplrtDiv, 0x04}},
			{Addr: imuAddr, W: []byte{regAccelXOutH}, R: []byte{0x00, 0x00, 0x00, 0x00, 0x40, 0x00}},
		},
		DontPanic: true,
	}
	m, err := NewMPU6050(pb, imuAddr, timeutil.RealClock{})
	require.NoError(t, err)
	require.NoError(t, m.ReadAcceleration())
	require.NoError(t, pb.Close())

	_, _, az := m.ScaledAcceleration()
	assert.InDelta(t, 1.0, az, 1e-9)
}

func TestNewMPU6050_NoDevice(t *testing.T) {
	_, err := NewMPU6050(hal.NewRegisterBus("1"), imuAddr, timeutil.RealClock{})
	assert.ErrorContains(t, err, "imu init")
}

func TestMPU6050_Reset(t *testing.T) {
	m, bus, clock := newTestIMU(t)

	bus.SetRegisters(imuAddr, regConfig, 0x00)

	require.NoError(t, m.Reset(context.Background()))
	assert.Equal(t, []time.Duration{time.Second, time.Second}, clock.Sleeps())
	assert.Equal(t, byte(0x01), bus.Register(imuAddr, regPwrMgmt1))
	assert.Equal(t, byte(0x02), bus.Register(imuAddr, regConfig))
}

func TestMPU6050_ResetCancelled(t *testing.T) {
	m, _, _ := newTestIMU(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, m.Reset(ctx), context.Canceled)
}

func TestMPU6050_ReadScaled(t *testing.T) {
	m, bus, _ := newTestIMU(t)
	// ax=0, ay=-8192, az=16384
	bus.SetRegisters(imuAddr, regAccelXOutH, 0x00, 0x00, 0xE0, 0x00, 0x40, 0x00)
	// gx=-131, gy=131, gz=262
	bus.SetRegisters(imuAddr, regGyroXOutH, 0xFF, 0x7D, 0x00, 0x83, 0x01, 0x06)

	require.NoError(t, m.ReadAcceleration())
	require.NoError(t, m.ReadGyroscope())

	ax, ay, az := m.ScaledAcceleration()
	assert.InDelta(t, 0.0, ax, 1e-9)
	assert.InDelta(t, -0.5, ay, 1e-9)
	assert.InDelta(t, 1.0, az, 1e-9)

	gx, gy, gz := m.ScaledGyroscope()
	assert.InDelta(t, -1.0, gx, 1e-9)
	assert.InDelta(t, 1.0, gy, 1e-9)
	assert.InDelta(t, 2.0, gz, 1e-9)

	assert.Contains(t, m.String(), "-8192")
}

func TestMPU6050_CalibrationOffsets(t *testing.T) {
	m, bus, _ := newTestIMU(t)
	bus.SetRegisters(imuAddr, regAccelXOutH, 0x00, 0x64, 0x00, 0x00, 0x40, 0x00)
	bus.SetRegisters(imuAddr, regGyroXOutH, 0x00, 0x00, 0x00, 0x0A, 0x00, 0x00)

	m.ApplyCalibration(calibration.Calibration{AccelOffsetX: 100, AccelOffsetZ: 384, GyroOffsetY: 10})
	require.NoError(t, m.ReadAcceleration())
	require.NoError(t, m.ReadGyroscope())

	assert.Equal(t, Raw{Ax: 0, Ay: 0, Az: 16000, Gy: 0}, m.Raw())
}

func TestMPU6050_ResetOffsets(t *testing.T) {
	m, bus, _ := newTestIMU(t)
	bus.SetRegisters(imuAddr, regXAOffsetH, 0x12, 0x34)
	bus.SetRegisters(imuAddr, regZGOffsetH, 0x56, 0x78)
	m.ApplyCalibration(calibration.Calibration{GyroOffsetZ: 5})

	require.NoError(t, m.ResetOffsets())
	assert.Equal(t, byte(0), bus.Register(imuAddr, regXAOffsetH))
	assert.Equal(t, byte(0), bus.Register(imuAddr, regXAOffsetH+1))
	assert.Equal(t, byte(0), bus.Register(imuAddr, regZGOffsetH))

	bus.SetRegisters(imuAddr, regGyroXOutH, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00)
	require.NoError(t, m.ReadGyroscope())
	assert.Zero(t, m.Raw().Gz)
}

func TestMPU6050_ReadFailure(t *testing.T) {
	m, _, _ := newTestIMU(t)
	m.dev.Bus = brokenBus{}

	err := m.ReadAcceleration()
	assert.ErrorIs(t, err, ErrIMURead)
	assert.ErrorIs(t, m.ReadGyroscope(), ErrIMURead)
}

func TestMPU6050_RegisterAccess(t *testing.T) {
	m, bus, _ := newTestIMU(t)

	require.NoError(t, m.WriteRegister(regConfig, 0x03))
	v, err := m.ReadRegister(regConfig)
	require.NoError(t, err)
	assert.Equal(t, byte(0x03), v)
	assert.Equal(t, byte(0x03), bus.Register(imuAddr, regConfig))

	assert.ErrorContains(t, m.WriteRegister(regAccelXOutH, 0x01), "not writable")
	assert.ErrorContains(t, m.WriteRegister(0x70, 0x01), "not writable")

	info, ok := LookupRegister(regPwrMgmt1)
	require.True(t, ok)
	assert.Equal(t, "PWR_MGMT_1", info.Name)
}
