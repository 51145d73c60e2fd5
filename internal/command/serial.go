// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package command

import (
	"context"
	"io"
	"time"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/balancer/internal/monitoring"
	"github.com/relabs-tech/balancer/internal/timeutil"
)

// readSize is the largest message a remote sends in one write.
const readSize = 32

// SerialTransport reads commands from a serial device, typically the
// Bluetooth RFCOMM tty bound to the remote control. A failed or closed
// port is reopened after a delay.
type SerialTransport struct {
	opts        serial.OpenOptions
	handler     *Handler
	clock       timeutil.Clock
	reopenDelay time.Duration
}

// NewSerialTransport returns a transport for port at baud.
func NewSerialTransport(port string, baud int, h *Handler, clock timeutil.Clock) *SerialTransport {
	return &SerialTransport{
		opts: serial.OpenOptions{
			PortName:              port,
			BaudRate:              uint(baud),
			DataBits:              8,
			StopBits:              1,
			MinimumReadSize:       1,
			ParityMode:            serial.PARITY_NONE,
			InterCharacterTimeout: 0,
		},
		handler:     h,
		clock:       clock,
		reopenDelay: 2 * time.Second,
	}
}

// Run serves the port until ctx is cancelled.
func (t *SerialTransport) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		port, err := serial.Open(t.opts)
		if err != nil {
			monitoring.Logf("command: open %s: %v", t.opts.PortName, err)
			if t.clock.Sleep(ctx, t.reopenDelay) != nil {
				break
			}
			continue
		}
		monitoring.Logf("command: serial port %s opened at %d baud, waiting for commands", t.opts.PortName, t.opts.BaudRate)

		err = serveStream(ctx, port, t.handler)
		port.Close()
		if ctx.Err() != nil {
			break
		}
		monitoring.Logf("command: reception error or disconnection on %s: %v, restarting", t.opts.PortName, err)
		if t.clock.Sleep(ctx, t.reopenDelay) != nil {
			break
		}
	}
	monitoring.Logf("command: serial transport stopped")
	return nil
}

// serveStream treats every read as one message. Cancelling ctx closes rc
// to unblock a pending read.
func serveStream(ctx context.Context, rc io.ReadCloser, h *Handler) error {
	stop := context.AfterFunc(ctx, func() { rc.Close() })
	defer stop()

	buf := make([]byte, readSize)
	for {
		n, err := rc.Read(buf)
		if n > 0 {
			if herr := h.Handle(buf[:n]); herr != nil {
				monitoring.Debugf("command: %v", herr)
			}
		}
		if err != nil {
			return err
		}
	}
}
