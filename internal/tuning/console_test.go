package tuning

import (
	"testing"

	"github.com/relabs-tech/balancer/internal/monitoring"
	"github.com/relabs-tech/balancer/internal/pid"
	"github.com/relabs-tech/balancer/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIMU struct{}

func (fakeIMU) String() string { return "X / Y / Z acceleration offsets: 0 / 0 / 0" }

type fakeRanger float64

func (r fakeRanger) Last() float64 { return float64(r) }

func newTestConsole() (*Console, Deps) {
	d := Deps{
		Motion: state.NewMotion(state.Defaults{
			EquilibriumAngle:    -2.5,
			EquilibriumLimit:    0.1,
			FilterFactor:        0.998,
			DistanceSampleCount: 100,
		}),
		Speed:   pid.New(pid.Gains{Kp: 0.02, Ki: 0.1, Min: -170, Max: 170, AntiWindupFactor: 0.025}),
		Balance: pid.New(pid.Gains{Kp: 20, Ki: 100, Kd: 0.25, Min: -100, Max: 100, AntiWindupFactor: 0.05}),
		IMU:     fakeIMU{},
		Ranger:  fakeRanger(42.3),
	}
	return NewConsole(d), d
}

func TestConsole_PIDSelection(t *testing.T) {
	c, d := newTestConsole()

	_, err := c.Exec("p=0.5")
	require.NoError(t, err)
	assert.Equal(t, 0.5, d.Speed.Gains().Kp)
	assert.Equal(t, 20.0, d.Balance.Gains().Kp)

	reply, err := c.Exec("2")
	require.NoError(t, err)
	assert.Equal(t, "Balance PID selected", reply)

	for _, line := range []string{"p=25", "i=90", "d=0.3", "w=0.1"} {
		_, err := c.Exec(line)
		require.NoError(t, err, line)
	}
	g := d.Balance.Gains()
	assert.Equal(t, 25.0, g.Kp)
	assert.Equal(t, 90.0, g.Ki)
	assert.Equal(t, 0.3, g.Kd)
	assert.Equal(t, 0.1, g.AntiWindupFactor)
	assert.InDelta(t, 10.0, d.Balance.State().AntiWindupLimit, 1e-9)

	_, err = c.Exec("1")
	require.NoError(t, err)
	_, err = c.Exec("i=0.2")
	require.NoError(t, err)
	assert.Equal(t, 0.2, d.Speed.Gains().Ki)
}

func TestConsole_Parameters(t *testing.T) {
	c, d := newTestConsole()

	for _, line := range []string{"s=50", "m=20", "a=-3.00", "e=0.30", "k=0.95"} {
		reply, err := c.Exec(line)
		require.NoError(t, err, line)
		assert.NotEmpty(t, reply)
	}
	m := d.Motion
	assert.Equal(t, 50.0, m.TargetSpeed.Load())
	assert.Equal(t, int64(20), m.DistanceSampleCount.Load())
	assert.Equal(t, -3.0, m.EquilibriumAngle.Load())
	assert.Equal(t, 0.3, m.EquilibriumLimit.Load())
	assert.Equal(t, 0.95, m.FilterFactor.Load())
}

func TestConsole_BadInput(t *testing.T) {
	c, d := newTestConsole()

	_, err := c.Exec("p=abc")
	assert.ErrorIs(t, err, ErrBadValue)
	_, err = c.Exec("k=1.5")
	assert.ErrorIs(t, err, ErrBadValue)
	_, err = c.Exec("m=0")
	assert.ErrorIs(t, err, ErrBadValue)
	_, err = c.Exec("x")
	assert.ErrorIs(t, err, ErrUnknownCommand)
	_, err = c.Exec("z=1")
	assert.ErrorIs(t, err, ErrUnknownCommand)
	_, err = c.Exec("help me")
	assert.ErrorIs(t, err, ErrUnknownCommand)

	assert.Equal(t, 0.998, d.Motion.FilterFactor.Load())
	assert.Equal(t, int64(100), d.Motion.DistanceSampleCount.Load())
}

func TestConsole_Displays(t *testing.T) {
	c, d := newTestConsole()
	d.Motion.TargetSpeed.Store(93.5)

	reply, err := c.Exec("c")
	require.NoError(t, err)
	assert.Contains(t, reply, "SPEED PID:")
	assert.Contains(t, reply, "BALANCE PID:")
	assert.Contains(t, reply, "kp =  20.00")

	reply, err = c.Exec("o")
	require.NoError(t, err)
	assert.Contains(t, reply, "Target speed      =  93.50")
	assert.Contains(t, reply, "Distance          =   42.3 cm")

	reply, err = c.Exec("u")
	require.NoError(t, err)
	assert.Contains(t, reply, "acceleration offsets")

	reply, err = c.Exec(" h ")
	require.NoError(t, err)
	assert.Equal(t, Help, reply)
}

func TestConsole_Quit(t *testing.T) {
	monitoring.SetDebug(true)
	t.Cleanup(func() { monitoring.SetDebug(false) })
	c, _ := newTestConsole()

	reply, err := c.Exec("q")
	require.NoError(t, err)
	assert.Contains(t, reply, "OPERATIONAL MODE")
	assert.True(t, c.Done())
	assert.False(t, monitoring.DebugEnabled())
}
