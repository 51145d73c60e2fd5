package telemetry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/relabs-tech/balancer/internal/motor"
	"github.com/relabs-tech/balancer/internal/state"
	"github.com/relabs-tech/balancer/internal/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	msgs []published
	err  error
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.msgs = append(c.msgs, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return doneToken{err: c.err}
}

func newTestRecorder() (*Recorder, *state.Motion) {
	m := state.NewMotion(state.Defaults{FilterFactor: 0.998, DistanceSampleCount: 100, MotorsEnabled: true})
	return NewRecorder(m, timeutil.NewMockClock(time.Unix(1700000000, 0))), m
}

func TestRecorder_Snapshot(t *testing.T) {
	rec, m := newTestRecorder()
	m.TargetSpeed.Store(93.5)

	rec.RecordBalance(BalanceSample{
		FilteredPitch: -1.5,
		TargetAngle:   -2.5,
		Left:          motor.Command{Direction: motor.Forward, Duty: 12},
		Right:         motor.Command{Direction: motor.Backward, Duty: 7},
	})
	rec.RecordDeadlineMiss()
	rec.RecordIMURetry()
	rec.RecordIMURetry()
	rec.RecordAvoidance("clear", 120.4)

	s := rec.Snapshot()
	assert.Equal(t, -1.5, s.FilteredPitch)
	assert.Equal(t, Wheel{Direction: "forward", Duty: 12}, s.Left)
	assert.Equal(t, Wheel{Direction: "backward", Duty: 7}, s.Right)
	assert.Equal(t, int64(1), s.DeadlineMisses)
	assert.Equal(t, int64(2), s.IMURetries)
	assert.Equal(t, int64(1), s.Cycles)
	assert.Equal(t, "clear", s.AvoidanceState)
	assert.Equal(t, 120.4, s.Distance)
	assert.Equal(t, 93.5, s.Motion.TargetSpeed)
	assert.True(t, s.Motion.MotorsEnabled)
	assert.Equal(t, int64(1700000000), s.Time.Unix())
}

func TestRecorder_InitialState(t *testing.T) {
	rec, _ := newTestRecorder()
	s := rec.Snapshot()
	assert.Equal(t, "idle", s.AvoidanceState)
	assert.Equal(t, "stopped", s.Left.Direction)
	assert.Equal(t, "stopped", s.Right.Direction)
	assert.Zero(t, s.Right.Duty)
}

func TestPublisher_PublishOnce(t *testing.T) {
	rec, _ := newTestRecorder()
	rec.RecordAvoidance("stuck", 30.2)
	c := &fakeClient{}
	p := NewPublisher(c, "balancer/telemetry", 100*time.Millisecond, rec)

	require.NoError(t, p.PublishOnce())
	require.Len(t, c.msgs, 1)
	assert.Equal(t, "balancer/telemetry", c.msgs[0].topic)
	assert.True(t, c.msgs[0].retained)

	var got Snapshot
	require.NoError(t, json.Unmarshal(c.msgs[0].payload, &got))
	assert.Equal(t, "stuck", got.AvoidanceState)
	assert.Equal(t, 30.2, got.Distance)
}

func TestPublisher_PublishError(t *testing.T) {
	rec, _ := newTestRecorder()
	c := &fakeClient{err: errors.New("not connected")}
	p := NewPublisher(c, "t", time.Millisecond, rec)

	assert.ErrorContains(t, p.PublishOnce(), "not connected")
}
