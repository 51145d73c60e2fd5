package calibration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "setup.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `{
    "ACCELERATION_X_OFFSET": -312,
    "ACCELERATION_Y_OFFSET": 45,
    "ACCELERATION_Z_OFFSET": -16020,
    "GYROSCOPE_X_OFFSET": 12,
    "GYROSCOPE_Y_OFFSET": -3,
    "GYROSCOPE_Z_OFFSET": 7,
    "LEFT_MOTOR_OFFSET": 22,
    "RIGHT_MOTOR_OFFSET": 25
}`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Calibration{
		AccelOffsetX:     -312,
		AccelOffsetY:     45,
		AccelOffsetZ:     -16020,
		GyroOffsetX:      12,
		GyroOffsetY:      -3,
		GyroOffsetZ:      7,
		LeftMotorOffset:  22,
		RightMotorOffset: 25,
	}, c)
}

func TestLoad_PartialFile(t *testing.T) {
	c, err := Load(writeFile(t, `{"LEFT_MOTOR_OFFSET": 10}`))
	require.NoError(t, err)
	assert.Equal(t, 10.0, c.LeftMotorOffset)
	assert.Zero(t, c.GyroOffsetZ)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, `{not json`))
	assert.Error(t, err)

	_, err = Load(writeFile(t, `{"RIGHT_MOTOR_OFFSET": 140}`))
	assert.ErrorContains(t, err, "RIGHT_MOTOR_OFFSET")
}
