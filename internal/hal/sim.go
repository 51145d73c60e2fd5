package hal

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Sim is an in-memory backend. Pins are gpiotest pins whose edges are fed
// through their EdgesChan; I2C buses are register files.
type Sim struct {
	mu    sync.Mutex
	pins  map[string]*gpiotest.Pin
	buses map[string]*RegisterBus
}

// NewSim returns an empty simulated board.
func NewSim() *Sim {
	return &Sim{
		pins:  map[string]*gpiotest.Pin{},
		buses: map[string]*RegisterBus{},
	}
}

func (s *Sim) Name() string { return "sim" }

func (s *Sim) Pin(name string) (gpio.PinIO, error) {
	return s.TestPin(name), nil
}

// TestPin returns the concrete simulated pin so tests can inject edges
// and inspect outputs.
func (s *Sim) TestPin(name string) *gpiotest.Pin {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pins[name]
	if !ok {
		p = &gpiotest.Pin{N: name, Num: len(s.pins), EdgesChan: make(chan gpio.Level, 16)}
		s.pins[name] = p
	}
	return p
}

func (s *Sim) I2C(bus string) (i2c.BusCloser, error) {
	return s.Bus(bus), nil
}

// Bus returns the concrete register bus.
func (s *Sim) Bus(name string) *RegisterBus {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buses[name]
	if !ok {
		b = NewRegisterBus(name)
		s.buses[name] = b
	}
	return b
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pins {
		_ = p.Halt()
	}
	return nil
}

// RegisterBus emulates I2C devices that expose a flat 256-byte register
// map with auto-incrementing reads and writes, which covers the MPU6050.
type RegisterBus struct {
	mu   sync.Mutex
	name string
	devs map[uint16]*[256]byte
}

// NewRegisterBus returns a bus with no devices.
func NewRegisterBus(name string) *RegisterBus {
	return &RegisterBus{name: name, devs: map[uint16]*[256]byte{}}
}

// SetRegisters writes values starting at reg, creating the device if needed.
func (b *RegisterBus) SetRegisters(addr uint16, reg byte, values ...byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	regs := b.device(addr)
	for i, v := range values {
		regs[(int(reg)+i)&0xFF] = v
	}
}

// Register returns the current value of one register.
func (b *RegisterBus) Register(addr uint16, reg byte) byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.device(addr)[reg]
}

func (b *RegisterBus) device(addr uint16) *[256]byte {
	regs, ok := b.devs[addr]
	if !ok {
		regs = &[256]byte{}
		b.devs[addr] = regs
	}
	return regs
}

func (b *RegisterBus) String() string { return "sim-i2c-" + b.name }

// Tx implements i2c.Bus. The first written byte selects the register.
func (b *RegisterBus) Tx(addr uint16, w, r []byte) error {
	if len(w) == 0 {
		return fmt.Errorf("hal: %s: transaction without register address", b)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	regs, ok := b.devs[addr]
	if !ok {
		return fmt.Errorf("hal: %s: no device at 0x%02X", b, addr)
	}
	reg := int(w[0])
	for i, v := range w[1:] {
		regs[(reg+i)&0xFF] = v
	}
	for i := range r {
		r[i] = regs[(reg+i)&0xFF]
	}
	return nil
}

func (b *RegisterBus) SetSpeed(physic.Frequency) error { return nil }

func (b *RegisterBus) Close() error { return nil }
