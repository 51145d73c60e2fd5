package orientation

import (
	"math"
)

// Pose is the accelerometer-only tilt of the robot body, in degrees.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
}

// ComputePoseFromAccel computes roll and pitch from accelerometer data.
// Units do not matter, only the ratios between axes.
//
//	roll  = atan2(ay, sqrt(ax² + az²))
//	pitch = -atan2(ax, sqrt(ay² + az²))
func ComputePoseFromAccel(ax, ay, az float64) Pose {
	rollRad := math.Atan2(ay, math.Sqrt(ax*ax+az*az))
	pitchRad := -math.Atan2(ax, math.Sqrt(ay*ay+az*az))

	return Pose{
		Roll:  rollRad * 180.0 / math.Pi,
		Pitch: pitchRad * 180.0 / math.Pi,
	}
}
