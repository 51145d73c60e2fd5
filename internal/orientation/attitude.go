package orientation

// Attitude is the fused state kept between control cycles.
type Attitude struct {
	FilteredPitch float64 `json:"filtered_pitch"`
	RelativeYaw   float64 `json:"relative_yaw"`
}

// AttitudeEstimator is a complementary filter: the integrated gyro pitch
// rate is trusted short term and the accelerometer tilt pulls it back long
// term. Yaw is a plain integral of the yaw rate and drifts freely; it is
// only meaningful relative to an earlier reading.
//
// Not safe for concurrent use; the balance loop owns it.
type AttitudeEstimator struct {
	state Attitude
}

// NewAttitudeEstimator returns an estimator at zero pitch and yaw.
func NewAttitudeEstimator() *AttitudeEstimator {
	return &AttitudeEstimator{}
}

// Update advances the filter by dt seconds. rawPitch is the accelerometer
// tilt in degrees, pitchRate and yawRate are in degrees per second and
// factor is the gyro weight in [0, 1].
func (e *AttitudeEstimator) Update(rawPitch, pitchRate, yawRate, dt, factor float64) Attitude {
	e.state.FilteredPitch = factor*(e.state.FilteredPitch+pitchRate*dt) + (1-factor)*rawPitch
	e.state.RelativeYaw += yawRate * dt
	return e.state
}

// State returns the last estimate.
func (e *AttitudeEstimator) State() Attitude {
	return e.state
}

// ResetYaw zeroes the yaw accumulator.
func (e *AttitudeEstimator) ResetYaw() {
	e.state.RelativeYaw = 0
}
