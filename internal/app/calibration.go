package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/relabs-tech/balancer/internal/calibration"
	"github.com/relabs-tech/balancer/internal/config"
	"github.com/relabs-tech/balancer/internal/hal"
	"github.com/relabs-tech/balancer/internal/sensors"
	"github.com/relabs-tech/balancer/internal/timeutil"
)

// DefaultCalibrationSamples is the number of still readings averaged.
const DefaultCalibrationSamples = 10000

var spinner = []string{"/", "-", "\\", "|"}

// rawIMU is what the offset measurement reads.
type rawIMU interface {
	ReadAcceleration() error
	ReadGyroscope() error
	Raw() sensors.Raw
}

// RunIMUCalibration measures the IMU offsets with the robot lying still
// and level and stores them in the calibration file. Motor offsets
// already in the file are kept.
func RunIMUCalibration(ctx context.Context, cfg *config.Config, samples int, out io.Writer) error {
	fmt.Fprintln(out, "IMU calibration starting...")

	cal, err := calibration.Load(cfg.CalibrationFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	backend, err := hal.New(cfg.HALBackend)
	if err != nil {
		return err
	}
	defer backend.Close()
	if sim, ok := backend.(*hal.Sim); ok {
		seedSimBus(sim.Bus(cfg.I2CBus), cfg.IMUI2CAddr, cfg.DisplayI2CAddr)
	}

	bus, err := backend.I2C(cfg.I2CBus)
	if err != nil {
		return fmt.Errorf("open i2c bus %s: %w", cfg.I2CBus, err)
	}
	defer bus.Close()

	imu, err := sensors.NewMPU6050(bus, cfg.IMUI2CAddr, timeutil.RealClock{})
	if err != nil {
		return err
	}
	if err := imu.Reset(ctx); err != nil {
		return err
	}
	if err := imu.ResetOffsets(); err != nil {
		return err
	}
	fmt.Fprintln(out, imu)

	acc, err := measureOffsets(ctx, imu, samples, out)
	if err != nil {
		return err
	}
	if err := acc.Apply(&cal); err != nil {
		return err
	}
	imu.ApplyCalibration(cal)
	fmt.Fprintln(out, imu)

	if err := calibration.Save(cfg.CalibrationFile, cal); err != nil {
		return err
	}
	fmt.Fprintf(out, "IMU calibration done, offsets saved to %s\n", cfg.CalibrationFile)
	return nil
}

// measureOffsets sums samples raw readings.
func measureOffsets(ctx context.Context, imu rawIMU, samples int, out io.Writer) (*calibration.Accumulator, error) {
	acc := &calibration.Accumulator{}
	for i := 0; i < samples; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fmt.Fprint(out, "\b"+spinner[i%len(spinner)])

		if err := imu.ReadAcceleration(); err != nil {
			return nil, err
		}
		if err := imu.ReadGyroscope(); err != nil {
			return nil, err
		}
		r := imu.Raw()
		acc.Add(r.Ax, r.Ay, r.Az, r.Gx, r.Gy, r.Gz)
	}
	fmt.Fprintln(out)
	return acc, nil
}
