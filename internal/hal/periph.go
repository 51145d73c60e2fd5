package hal

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

type periphBackend struct {
	mu   sync.Mutex
	pins map[string]gpio.PinIO
}

func newPeriph() (*periphBackend, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("hal: periph host init: %w", err)
	}
	return &periphBackend{pins: map[string]gpio.PinIO{}}, nil
}

func (b *periphBackend) Name() string { return "periph" }

func (b *periphBackend) Pin(name string) (gpio.PinIO, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.pins[name]; ok {
		return p, nil
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("hal: pin %q not found", name)
	}
	b.pins[name] = p
	return p, nil
}

func (b *periphBackend) I2C(bus string) (i2c.BusCloser, error) {
	bc, err := i2creg.Open(bus)
	if err != nil {
		return nil, fmt.Errorf("hal: i2c open bus %q: %w", bus, err)
	}
	return bc, nil
}

func (b *periphBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for name, p := range b.pins {
		if err := p.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("hal: halt %s: %w", name, err))
		}
	}
	b.pins = map[string]gpio.PinIO{}
	return errors.Join(errs...)
}
