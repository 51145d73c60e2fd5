package sensors

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// edgePoll bounds each edge wait so Run notices cancellation.
const edgePoll = 100 * time.Millisecond

// Encoder counts quadrature ticks. Every falling edge on channel A counts
// +1 when channel B differs from A and -1 otherwise.
type Encoder struct {
	a, b  gpio.PinIO
	count atomic.Int64
}

// NewEncoder configures both channels as inputs with edge detection on A.
func NewEncoder(a, b gpio.PinIO) (*Encoder, error) {
	if err := a.In(gpio.PullNoChange, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("encoder %s: %w", a, err)
	}
	if err := b.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("encoder %s: %w", b, err)
	}
	return &Encoder{a: a, b: b}, nil
}

// Run waits for edges until ctx is cancelled.
func (e *Encoder) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if e.a.WaitForEdge(edgePoll) {
			e.tick()
		}
	}
}

func (e *Encoder) tick() {
	if e.a.Read() != e.b.Read() {
		e.count.Add(1)
	} else {
		e.count.Add(-1)
	}
}

// Counter returns the ticks since the last Reset.
func (e *Encoder) Counter() int {
	return int(e.count.Load())
}

// Reset zeroes the counter.
func (e *Encoder) Reset() {
	e.count.Store(0)
}
