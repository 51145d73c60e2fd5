package sensors

import (
	"testing"
	"time"

	"github.com/relabs-tech/balancer/internal/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func TestEchoDistance(t *testing.T) {
	assert.InDelta(t, 34.3, echoDistance(2*time.Millisecond), 1e-9)
	assert.InDelta(t, 0.0, echoDistance(0), 1e-9)
	assert.InDelta(t, 171.5, echoDistance(10*time.Millisecond), 1e-9)
	// 0.5831 ms -> 10.00165 cm
	assert.InDelta(t, 10.0, echoDistance(583100*time.Nanosecond), 1e-9)
}

func newTestProximity(t *testing.T) (*Proximity, *gpiotest.Pin, *gpiotest.Pin) {
	t.Helper()
	trig := &gpiotest.Pin{N: "TRIG"}
	echo := &gpiotest.Pin{N: "ECHO", EdgesChan: make(chan gpio.Level, 4)}
	p, err := NewProximity(trig, echo, 5*time.Millisecond, timeutil.NewMockClock(time.Unix(0, 0)))
	require.NoError(t, err)
	return p, trig, echo
}

func TestProximity_Distance(t *testing.T) {
	p, trig, echo := newTestProximity(t)
	echo.EdgesChan <- gpio.High
	echo.EdgesChan <- gpio.Low

	d, err := p.Distance()
	require.NoError(t, err)
	// The mock clock does not move between edges.
	assert.Zero(t, d)
	assert.Equal(t, gpio.Low, trig.Read())
}

func TestProximity_NoEcho(t *testing.T) {
	p, _, echo := newTestProximity(t)

	_, err := p.Distance()
	assert.ErrorIs(t, err, ErrNoEcho)

	echo.EdgesChan <- gpio.High
	_, err = p.Distance()
	assert.ErrorIs(t, err, ErrNoEcho)
	assert.ErrorContains(t, err, "did not end")
}

// steppedEcho advances the clock by the matching gap after each edge so
// queued edges get distinct timestamps.
type steppedEcho struct {
	*gpiotest.Pin
	clock *timeutil.MockClock
	gaps  []time.Duration
}

func (e *steppedEcho) WaitForEdge(timeout time.Duration) bool {
	if !e.Pin.WaitForEdge(timeout) {
		return false
	}
	if len(e.gaps) > 0 {
		e.clock.Advance(e.gaps[0])
		e.gaps = e.gaps[1:]
	}
	return true
}

func TestProximity_DropsStaleFallingEdge(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	pin := &gpiotest.Pin{N: "ECHO", EdgesChan: make(chan gpio.Level, 4)}
	// Late end of a timed-out pulse, then a 2 ms echo 20 ms later.
	pin.EdgesChan <- gpio.Low
	pin.EdgesChan <- gpio.High
	pin.EdgesChan <- gpio.Low
	echo := &steppedEcho{Pin: pin, clock: clock, gaps: []time.Duration{0, 20 * time.Millisecond, 2 * time.Millisecond}}

	p, err := NewProximity(&gpiotest.Pin{N: "TRIG"}, echo, 5*time.Millisecond, clock)
	require.NoError(t, err)

	d, err := p.Distance()
	require.NoError(t, err)
	assert.InDelta(t, 34.3, d, 1e-9)
	assert.Empty(t, pin.EdgesChan)
	assert.InDelta(t, 34.3, p.Last(), 1e-9)
}

func TestProximity_RecoversAfterLateEnd(t *testing.T) {
	p, _, echo := newTestProximity(t)

	echo.EdgesChan <- gpio.High
	_, err := p.Distance()
	require.ErrorIs(t, err, ErrNoEcho)

	// The first pulse ends late, ahead of the next full pulse.
	echo.EdgesChan <- gpio.Low
	echo.EdgesChan <- gpio.High
	echo.EdgesChan <- gpio.Low
	_, err = p.Distance()
	require.NoError(t, err)
	assert.Empty(t, echo.EdgesChan)
	assert.Equal(t, gpio.Low, echo.Read())
}
