// Package tuning implements the line-oriented live tuning console. It
// edits PID gains and balance parameters while the robot runs.
package tuning

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/relabs-tech/balancer/internal/monitoring"
	"github.com/relabs-tech/balancer/internal/pid"
	"github.com/relabs-tech/balancer/internal/state"
)

var (
	// ErrUnknownCommand is returned for lines the console does not accept.
	ErrUnknownCommand = errors.New("unknown console command")
	// ErrBadValue is returned when an assignment value does not parse or is
	// out of range.
	ErrBadValue = errors.New("bad value")
)

// Help is the console usage text.
const Help = `Enter 1 to select speed PID, 2 to select balance PID
Enter selected PID values like: 'p=12', 'i=0.15', 'd=100', 'w=0.05'

Enter target speed value like        : 's=50'
Enter distance samples value like    : 'm=50'
Enter equilibrium angle value like   : 'a=-3.00'
Enter equilibrium limit value like   : 'e=0.30'
Enter complementary filter value like: 'k=0.95'

Press c to display current PIDs' values
Press u to display current IMU's values
Press o to display other parameters

Press q to go for operational mode
Press h to display this help`

// Ranger exposes the last ultrasonic reading.
type Ranger interface {
	Last() float64
}

// Deps are the live objects the console reads and edits.
type Deps struct {
	Motion  *state.Motion
	Speed   *pid.Controller
	Balance *pid.Controller
	IMU     fmt.Stringer
	Ranger  Ranger
}

// Console is one operator session. Sessions share Deps but each has its
// own PID selection.
type Console struct {
	deps     Deps
	selected *pid.Controller
	done     bool
}

// NewConsole starts a session with the speed PID selected.
func NewConsole(d Deps) *Console {
	return &Console{deps: d, selected: d.Speed}
}

// Done reports whether the operator left with q.
func (c *Console) Done() bool { return c.done }

// Exec runs one input line and returns the reply text.
func (c *Console) Exec(line string) (string, error) {
	line = strings.TrimSpace(line)
	switch {
	case len(line) == 1:
		return c.key(line[0])
	case len(line) > 2 && line[1] == '=':
		v, err := strconv.ParseFloat(strings.TrimSpace(line[2:]), 64)
		if err != nil {
			return "", fmt.Errorf("%w: %q", ErrBadValue, line[2:])
		}
		return c.assign(line[0], v)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, line)
	}
}

func (c *Console) key(k byte) (string, error) {
	switch k {
	case '1':
		c.selected = c.deps.Speed
		return "Speed PID selected", nil
	case '2':
		c.selected = c.deps.Balance
		return "Balance PID selected", nil
	case 'c':
		return "SPEED PID:\n" + c.deps.Speed.String() + "\n\nBALANCE PID:\n" + c.deps.Balance.String(), nil
	case 'u':
		if c.deps.IMU == nil {
			return "IMU not available", nil
		}
		return c.deps.IMU.String(), nil
	case 'o':
		return c.others(), nil
	case 'q':
		monitoring.SetDebug(false)
		c.done = true
		return "***** GOING TO OPERATIONAL MODE *****", nil
	case 'h':
		return Help, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, k)
}

func (c *Console) assign(k byte, v float64) (string, error) {
	m := c.deps.Motion
	switch k {
	case 'p':
		c.selected.SetKp(v)
	case 'i':
		c.selected.SetKi(v)
	case 'd':
		c.selected.SetKd(v)
	case 'w':
		if v < 0 {
			return "", fmt.Errorf("%w: anti-windup factor %v", ErrBadValue, v)
		}
		c.selected.SetAntiWindup(v)
	case 's':
		m.TargetSpeed.Store(v)
	case 'm':
		if v < 1 {
			return "", fmt.Errorf("%w: distance samples %v", ErrBadValue, v)
		}
		m.DistanceSampleCount.Store(int64(v))
	case 'a':
		m.EquilibriumAngle.Store(v)
	case 'e':
		if v < 0 {
			return "", fmt.Errorf("%w: equilibrium limit %v", ErrBadValue, v)
		}
		m.EquilibriumLimit.Store(v)
	case 'k':
		if v < 0 || v > 1 {
			return "", fmt.Errorf("%w: filter factor %v", ErrBadValue, v)
		}
		m.FilterFactor.Store(v)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, k)
	}
	return fmt.Sprintf("%c = %v", k, v), nil
}

func (c *Console) others() string {
	s := c.deps.Motion.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "K filter          = %6v / Distance samples  = %6d\n", s.FilterFactor, s.DistanceSampleCount)
	fmt.Fprintf(&b, "Equilibrium angle = %6v / Equilibrium limit = %6v\n", s.EquilibriumAngle, s.EquilibriumLimit)
	fmt.Fprintf(&b, "Target speed      = %6.2f / Turn angle order  = %6.2f\n", s.TargetSpeed, s.TurnAngleOrder)
	fmt.Fprintf(&b, "Filtered pitch    = %6.2f / Relative yaw      = %6.2f\n", s.FilteredPitch, s.RelativeYaw)
	fmt.Fprintf(&b, "Left encoder      = %6d / Right encoder     = %6d", s.LeftCounter, s.RightCounter)
	if c.deps.Ranger != nil {
		fmt.Fprintf(&b, "\nDistance          = %6.1f cm", c.deps.Ranger.Last())
	}
	return b.String()
}
