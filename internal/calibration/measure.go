package calibration

import (
	"encoding/json"
	"fmt"
	"os"
)

// oneG is the accelerometer reading for 1 g at ±2g full scale.
const oneG = 16384

// Accumulator averages raw IMU samples taken with the robot lying still
// and level, Z axis up.
type Accumulator struct {
	n     int
	accel [3]int64
	gyro  [3]int64
}

// Add records one raw sample.
func (a *Accumulator) Add(ax, ay, az, gx, gy, gz int) {
	a.n++
	a.accel[0] += int64(ax)
	a.accel[1] += int64(ay)
	a.accel[2] += int64(az)
	a.gyro[0] += int64(gx)
	a.gyro[1] += int64(gy)
	a.gyro[2] += int64(gz)
}

// Count returns the number of samples recorded.
func (a *Accumulator) Count() int { return a.n }

// Apply writes the mean offsets into c. The Z accelerometer offset keeps
// gravity in the reading. Motor offsets are left untouched.
func (a *Accumulator) Apply(c *Calibration) error {
	if a.n == 0 {
		return fmt.Errorf("no samples recorded")
	}
	mean := func(sum int64) int { return int(float64(sum) / float64(a.n)) }
	c.AccelOffsetX = mean(a.accel[0])
	c.AccelOffsetY = mean(a.accel[1])
	c.AccelOffsetZ = mean(a.accel[2]) - oneG
	c.GyroOffsetX = mean(a.gyro[0])
	c.GyroOffsetY = mean(a.gyro[1])
	c.GyroOffsetZ = mean(a.gyro[2])
	return nil
}

// Save writes c as indented JSON.
func Save(path string, c Calibration) error {
	if err := c.validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal calibration: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write calibration file: %w", err)
	}
	return nil
}
