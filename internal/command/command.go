// Package command maps remote-control messages onto the shared motion
// record. Messages are either two-letter text commands or 3-byte analog
// joystick events.
package command

import (
	"errors"
	"fmt"
	"math"

	"github.com/relabs-tech/balancer/internal/monitoring"
	"github.com/relabs-tech/balancer/internal/state"
)

var (
	// ErrUnknownCommand is returned for messages that match no command.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrShortEvent is returned for unknown messages too short to be an
	// analog event.
	ErrShortEvent = fmt.Errorf("%w: analog event needs 3 bytes", ErrUnknownCommand)
)

// analogDeadZone is the smallest stick deflection that turns the robot.
const analogDeadZone = 0.10

// Steps are the speed and angle units commands are expressed in.
type Steps struct {
	BaseSpeed float64
	TurnSpeed float64
	TurnAngle float64 // degrees
}

// Handler applies messages to a Motion record.
type Handler struct {
	motion *state.Motion
	steps  Steps
}

// NewHandler returns a handler writing to m.
func NewHandler(m *state.Motion, steps Steps) *Handler {
	return &Handler{motion: m, steps: steps}
}

// Handle applies one message.
func (h *Handler) Handle(msg []byte) error {
	m := h.motion
	s := h.steps

	switch string(msg) {
	case "C1":
		monitoring.Debugf("command: camera on")
		m.CameraOn.Store(true)
	case "C0":
		monitoring.Debugf("command: camera off")
		m.CameraOn.Store(false)
	case "M1":
		monitoring.Debugf("command: motors on")
		m.MotorsEnabled.Store(true)
	case "M0":
		monitoring.Debugf("command: motors off")
		m.MotorsEnabled.Store(false)
	case "O1":
		monitoring.Debugf("command: avoid obstacles on")
		m.ObstacleAvoidanceEnabled.Store(true)
	case "O0":
		monitoring.Debugf("command: avoid obstacles off")
		m.ObstacleAvoidanceEnabled.Store(false)
	case "L1", "L2":
		monitoring.Debugf("command: left %c", msg[1])
		h.turn(s.TurnAngle*float64(msg[1]-'0'), s.TurnSpeed)
	case "R1", "R2":
		monitoring.Debugf("command: right %c", msg[1])
		h.turn(-s.TurnAngle*float64(msg[1]-'0'), -s.TurnSpeed)
	case "F1":
		monitoring.Debugf("command: forward 1")
		m.Cruise(s.BaseSpeed)
	case "F2":
		monitoring.Debugf("command: forward 2")
		m.Cruise(s.BaseSpeed * 1.4)
	case "B1":
		monitoring.Debugf("command: backward 1")
		m.Cruise(-s.BaseSpeed)
	case "B2":
		monitoring.Debugf("command: backward 2")
		m.Cruise(-s.BaseSpeed * 1.4)
	case "S":
		// The turn speed step is left as is.
		monitoring.Debugf("command: stop")
		m.TurnAngleOrder.Store(0)
		m.TargetSpeed.Store(0)
	default:
		if len(msg) == 0 {
			return ErrUnknownCommand
		}
		if len(msg) < 3 {
			return fmt.Errorf("%w: %q", ErrShortEvent, msg)
		}
		h.analog(msg[0], msg[1], msg[2])
	}
	return nil
}

func (h *Handler) turn(delta, step float64) {
	h.motion.TurnBy(delta, step)
	h.motion.TargetSpeed.Store(0)
}

// analog handles a joystick event. Roll steers and pitch drives; yaw is
// unused.
func (h *Handler) analog(yaw, roll, pitch byte) {
	monitoring.Debugf("command: event yaw=%d roll=%d pitch=%d", yaw, roll, pitch)
	forward := AnalogAxis(pitch)
	turn := AnalogAxis(roll)

	if math.Abs(turn) < analogDeadZone {
		h.motion.Cruise(forward * h.steps.BaseSpeed * 4)
		return
	}
	delta := h.steps.TurnAngle
	if turn < 0 {
		delta = -delta
	}
	h.turn(delta, turn*h.steps.TurnSpeed*2)
}

// AnalogAxis maps a joystick byte to [-1, 1]. Values in (165, 255) are
// negative deflections, values in (0, 90) positive ones, and anything else
// is centered.
func AnalogAxis(v byte) float64 {
	switch {
	case v > 165 && v < 255:
		return (float64(v) - 255) / 90
	case v > 0 && v < 90:
		return float64(v) / 90
	default:
		return 0
	}
}
