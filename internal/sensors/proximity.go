package sensors

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/balancer/internal/timeutil"
	"periph.io/x/conn/v3/gpio"
)

// ErrNoEcho is returned when the ultrasonic echo does not start or end
// within the timeout.
var ErrNoEcho = errors.New("proximity: no echo")

const (
	speedOfSoundCM = 34300.0 // cm/s at 343 m/s
	triggerPulse   = 10 * time.Microsecond
)

// Proximity drives an HC-SR04 style ultrasonic ranger.
type Proximity struct {
	trigger gpio.PinOut
	echo    gpio.PinIn
	timeout time.Duration
	clock   timeutil.Clock

	mu   sync.Mutex
	last float64
}

// NewProximity sets the trigger low and arms edge detection on echo.
func NewProximity(trigger gpio.PinOut, echo gpio.PinIn, timeout time.Duration, clock timeutil.Clock) (*Proximity, error) {
	if err := trigger.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("proximity trigger: %w", err)
	}
	if err := echo.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("proximity echo: %w", err)
	}
	return &Proximity{trigger: trigger, echo: echo, timeout: timeout, clock: clock}, nil
}

// Distance fires one ping and returns the distance in centimeters,
// rounded to 0.1 cm. Each edge wait is bounded by the timeout.
func (p *Proximity) Distance() (float64, error) {
	if err := p.trigger.Out(gpio.High); err != nil {
		return 0, fmt.Errorf("proximity trigger: %w", err)
	}
	time.Sleep(triggerPulse)
	if err := p.trigger.Out(gpio.Low); err != nil {
		return 0, fmt.Errorf("proximity trigger: %w", err)
	}

	if !p.waitForLevel(gpio.High) {
		return 0, fmt.Errorf("%w: pulse did not start", ErrNoEcho)
	}
	start := p.clock.Now()
	if !p.waitForLevel(gpio.Low) {
		return 0, fmt.Errorf("%w: pulse did not end", ErrNoEcho)
	}

	d := echoDistance(p.clock.Since(start))
	p.mu.Lock()
	p.last = d
	p.mu.Unlock()
	return d, nil
}

// waitForLevel consumes echo edges until one leaves the pin at want.
// Edges left over from an earlier timed-out pulse are dropped. The whole
// wait is bounded by the timeout.
func (p *Proximity) waitForLevel(want gpio.Level) bool {
	deadline := time.Now().Add(p.timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 || !p.echo.WaitForEdge(remaining) {
			return false
		}
		if p.echo.Read() == want {
			return true
		}
	}
}

// Last returns the last successfully measured distance.
func (p *Proximity) Last() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// echoDistance converts a round-trip echo time to centimeters.
func echoDistance(roundTrip time.Duration) float64 {
	d := speedOfSoundCM * roundTrip.Seconds() / 2
	return math.Round(d*10) / 10
}
