package command

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/relabs-tech/balancer/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() (*Handler, *state.Motion) {
	m := state.NewMotion(state.Defaults{DistanceSampleCount: 100})
	return NewHandler(m, Steps{BaseSpeed: 85, TurnSpeed: 25, TurnAngle: 90}), m
}

func TestHandle_Flags(t *testing.T) {
	h, m := newTestHandler()

	for _, msg := range []string{"C1", "M1", "O1"} {
		require.NoError(t, h.Handle([]byte(msg)))
	}
	assert.True(t, m.CameraOn.Load())
	assert.True(t, m.MotorsEnabled.Load())
	assert.True(t, m.ObstacleAvoidanceEnabled.Load())

	for _, msg := range []string{"C0", "M0", "O0"} {
		require.NoError(t, h.Handle([]byte(msg)))
	}
	assert.False(t, m.CameraOn.Load())
	assert.False(t, m.MotorsEnabled.Load())
	assert.False(t, m.ObstacleAvoidanceEnabled.Load())
}

func TestHandle_Turns(t *testing.T) {
	tests := []struct {
		msg   string
		order float64
		step  float64
	}{
		{"L1", 100, 25},
		{"L2", 190, 25},
		{"R1", -80, -25},
		{"R2", -170, -25},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			h, m := newTestHandler()
			m.RelativeYaw.Store(10)
			m.TargetSpeed.Store(85)

			require.NoError(t, h.Handle([]byte(tt.msg)))
			assert.Equal(t, tt.order, m.TurnAngleOrder.Load())
			assert.Equal(t, tt.step, m.TurnSpeedStep.Load())
			assert.Zero(t, m.TargetSpeed.Load())
		})
	}
}

func TestHandle_Speeds(t *testing.T) {
	tests := []struct {
		msg   string
		speed float64
	}{
		{"F1", 85},
		{"F2", 119},
		{"B1", -85},
		{"B2", -119},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			h, m := newTestHandler()
			m.TurnAngleOrder.Store(45)
			m.TurnSpeedStep.Store(25)

			require.NoError(t, h.Handle([]byte(tt.msg)))
			assert.InDelta(t, tt.speed, m.TargetSpeed.Load(), 1e-9)
			assert.Zero(t, m.TurnAngleOrder.Load())
			assert.Zero(t, m.TurnSpeedStep.Load())
		})
	}
}

func TestHandle_StopKeepsTurnStep(t *testing.T) {
	h, m := newTestHandler()
	m.TurnAngleOrder.Store(45)
	m.TurnSpeedStep.Store(25)
	m.TargetSpeed.Store(85)

	require.NoError(t, h.Handle([]byte("S")))
	assert.Zero(t, m.TurnAngleOrder.Load())
	assert.Zero(t, m.TargetSpeed.Load())
	assert.Equal(t, 25.0, m.TurnSpeedStep.Load())
}

func TestHandle_AnalogForward(t *testing.T) {
	h, m := newTestHandler()
	m.TurnSpeedStep.Store(25)

	// roll centered, pitch 45 -> half forward
	require.NoError(t, h.Handle([]byte{0, 0, 45}))
	assert.InDelta(t, 0.5*85*4, m.TargetSpeed.Load(), 1e-9)
	assert.Zero(t, m.TurnSpeedStep.Load())

	// roll inside the dead zone
	require.NoError(t, h.Handle([]byte{0, 8, 210}))
	assert.InDelta(t, -0.5*85*4, m.TargetSpeed.Load(), 1e-9)
}

func TestHandle_AnalogTurn(t *testing.T) {
	h, m := newTestHandler()
	m.RelativeYaw.Store(5)
	m.TargetSpeed.Store(100)

	require.NoError(t, h.Handle([]byte{0, 45, 45}))
	assert.Equal(t, 95.0, m.TurnAngleOrder.Load())
	assert.InDelta(t, 25.0, m.TurnSpeedStep.Load(), 1e-9)
	assert.Zero(t, m.TargetSpeed.Load())

	require.NoError(t, h.Handle([]byte{0, 210, 0, 0xFF}))
	assert.Equal(t, -85.0, m.TurnAngleOrder.Load())
	assert.InDelta(t, -25.0, m.TurnSpeedStep.Load(), 1e-9)
}

func TestHandle_Unknown(t *testing.T) {
	h, _ := newTestHandler()

	assert.ErrorIs(t, h.Handle(nil), ErrUnknownCommand)
	err := h.Handle([]byte("X"))
	assert.ErrorIs(t, err, ErrShortEvent)
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestAnalogAxis(t *testing.T) {
	assert.Zero(t, AnalogAxis(0))
	assert.InDelta(t, 1.0/90, AnalogAxis(1), 1e-12)
	assert.InDelta(t, 89.0/90, AnalogAxis(89), 1e-12)
	assert.Zero(t, AnalogAxis(90))
	assert.Zero(t, AnalogAxis(128))
	assert.Zero(t, AnalogAxis(165))
	assert.InDelta(t, -89.0/90, AnalogAxis(166), 1e-12)
	assert.InDelta(t, -1.0/90, AnalogAxis(254), 1e-12)
	assert.Zero(t, AnalogAxis(255))
}

func TestServeStream(t *testing.T) {
	h, m := newTestHandler()
	r, w := io.Pipe()

	done := make(chan error, 1)
	go func() { done <- serveStream(context.Background(), r, h) }()

	for _, msg := range []string{"M1", "X", "F2"} {
		_, err := w.Write([]byte(msg))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	assert.ErrorIs(t, <-done, io.EOF)
	assert.True(t, m.MotorsEnabled.Load())
	assert.InDelta(t, 119.0, m.TargetSpeed.Load(), 1e-9)
}

func TestServeStream_CancelUnblocksRead(t *testing.T) {
	h, _ := newTestHandler()
	r, _ := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- serveStream(ctx, r, h) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, io.ErrClosedPipe)
	case <-time.After(time.Second):
		t.Fatal("read not unblocked")
	}
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type fakeSubscriber struct {
	topic    string
	callback mqtt.MessageHandler
	err      error
}

func (s *fakeSubscriber) Subscribe(topic string, qos byte, cb mqtt.MessageHandler) mqtt.Token {
	s.topic, s.callback = topic, cb
	return doneToken{err: s.err}
}

func TestSubscribeMQTT(t *testing.T) {
	h, m := newTestHandler()
	sub := &fakeSubscriber{}

	require.NoError(t, SubscribeMQTT(sub, "balancer/command", h))
	assert.Equal(t, "balancer/command", sub.topic)

	sub.callback(nil, fakeMessage{topic: "balancer/command", payload: []byte("O1")})
	assert.True(t, m.ObstacleAvoidanceEnabled.Load())
	sub.callback(nil, fakeMessage{topic: "balancer/command", payload: []byte("?")})
}

func TestSubscribeMQTT_Error(t *testing.T) {
	h, _ := newTestHandler()
	err := SubscribeMQTT(&fakeSubscriber{err: errors.New("refused")}, "t", h)
	assert.ErrorContains(t, err, "refused")
}
