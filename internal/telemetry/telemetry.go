// Package telemetry keeps the latest robot readings and publishes them.
package telemetry

import (
	"sync"
	"time"

	"github.com/relabs-tech/balancer/internal/motor"
	"github.com/relabs-tech/balancer/internal/state"
	"github.com/relabs-tech/balancer/internal/timeutil"
)

// Wheel is the drive order last sent to one motor.
type Wheel struct {
	Direction string  `json:"direction"`
	Duty      float64 `json:"duty"`
}

// WheelOf converts a motor command for publication.
func WheelOf(c motor.Command) Wheel {
	return Wheel{Direction: c.Direction.String(), Duty: c.Duty}
}

// BalanceSample is what the balance loop reports after each full cycle.
type BalanceSample struct {
	RawPitch      float64
	FilteredPitch float64
	RelativeYaw   float64
	TargetAngle   float64
	CurrentSpeed  float64
	BalanceOutput float64
	Left          motor.Command
	Right         motor.Command
}

// Snapshot is the published telemetry record.
type Snapshot struct {
	Time           time.Time      `json:"time"`
	RawPitch       float64        `json:"raw_pitch"`
	FilteredPitch  float64        `json:"filtered_pitch"`
	RelativeYaw    float64        `json:"relative_yaw"`
	TargetAngle    float64        `json:"target_angle"`
	CurrentSpeed   float64        `json:"current_speed"`
	BalanceOutput  float64        `json:"balance_output"`
	Left           Wheel          `json:"left"`
	Right          Wheel          `json:"right"`
	Distance       float64        `json:"distance"`
	AvoidanceState string         `json:"avoidance_state"`
	DeadlineMisses int64          `json:"deadline_misses"`
	IMURetries     int64          `json:"imu_retries"`
	Cycles         int64          `json:"cycles"`
	Motion         state.Snapshot `json:"motion"`
}

// Recorder stores the latest readings from every loop.
type Recorder struct {
	motion *state.Motion
	clock  timeutil.Clock

	mu   sync.Mutex
	snap Snapshot
}

// NewRecorder returns a recorder that folds the shared motion record into
// every snapshot.
func NewRecorder(m *state.Motion, clock timeutil.Clock) *Recorder {
	stopped := WheelOf(motor.Command{})
	return &Recorder{motion: m, clock: clock, snap: Snapshot{
		AvoidanceState: "idle",
		Left:           stopped,
		Right:          stopped,
	}}
}

// RecordBalance stores one balance cycle.
func (r *Recorder) RecordBalance(s BalanceSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.RawPitch = s.RawPitch
	r.snap.FilteredPitch = s.FilteredPitch
	r.snap.RelativeYaw = s.RelativeYaw
	r.snap.TargetAngle = s.TargetAngle
	r.snap.CurrentSpeed = s.CurrentSpeed
	r.snap.BalanceOutput = s.BalanceOutput
	r.snap.Left = WheelOf(s.Left)
	r.snap.Right = WheelOf(s.Right)
	r.snap.Cycles++
}

// RecordDeadlineMiss counts a late balance cycle.
func (r *Recorder) RecordDeadlineMiss() {
	r.mu.Lock()
	r.snap.DeadlineMisses++
	r.mu.Unlock()
}

// RecordIMURetry counts a dropped balance cycle.
func (r *Recorder) RecordIMURetry() {
	r.mu.Lock()
	r.snap.IMURetries++
	r.mu.Unlock()
}

// RecordAvoidance stores the avoidance state and last distance.
func (r *Recorder) RecordAvoidance(stateName string, distance float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.AvoidanceState = stateName
	r.snap.Distance = distance
}

// Snapshot returns a copy of the latest readings.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	s := r.snap
	r.mu.Unlock()
	s.Time = r.clock.Now()
	if r.motion != nil {
		s.Motion = r.motion.Snapshot()
	}
	return s
}
