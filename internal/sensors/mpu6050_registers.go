package sensors

import "fmt"

// RegisterInfo describes one MPU6050 register for the register debugger.
type RegisterInfo struct {
	Address     byte   `json:"-"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Access      string `json:"access"` // "R", "RW"
}

// MPU6050Registers lists the registers the robot touches.
var MPU6050Registers = []RegisterInfo{
	{regXAOffsetH, "XA_OFFSET_H", "Accelerometer X offset, high byte", "RW"},
	{regXAOffsetH + 1, "XA_OFFSET_L", "Accelerometer X offset, low byte", "RW"},
	{regYAOffsetH, "YA_OFFSET_H", "Accelerometer Y offset, high byte", "RW"},
	{regYAOffsetH + 1, "YA_OFFSET_L", "Accelerometer Y offset, low byte", "RW"},
	{regZAOffsetH, "ZA_OFFSET_H", "Accelerometer Z offset, high byte", "RW"},
	{regZAOffsetH + 1, "ZA_OFFSET_L", "Accelerometer Z offset, low byte", "RW"},
	{regXGOffsetH, "XG_OFFSET_H", "Gyroscope X offset, high byte", "RW"},
	{regXGOffsetH + 1, "XG_OFFSET_L", "Gyroscope X offset, low byte", "RW"},
	{regYGOffsetH, "YG_OFFSET_H", "Gyroscope Y offset, high byte", "RW"},
	{regYGOffsetH + 1, "YG_OFFSET_L", "Gyroscope Y offset, low byte", "RW"},
	{regZGOffsetH, "ZG_OFFSET_H", "Gyroscope Z offset, high byte", "RW"},
	{regZGOffsetH + 1, "ZG_OFFSET_L", "Gyroscope Z offset, low byte", "RW"},
	{regGyroConfig, "GYRO_CONFIG", "Gyroscope full scale range", "RW"},
	{regSmplrtDiv, "SMPLRT_DIV", "Sample rate divider", "RW"},
	{regConfig, "CONFIG", "Digital low pass filter", "RW"},
	{0x1C, "ACCEL_CONFIG", "Accelerometer full scale range", "RW"},
	{regAccelXOutH, "ACCEL_XOUT_H", "Accelerometer X, high byte", "R"},
	{regAccelXOutH + 1, "ACCEL_XOUT_L", "Accelerometer X, low byte", "R"},
	{regAccelXOutH + 2, "ACCEL_YOUT_H", "Accelerometer Y, high byte", "R"},
	{regAccelXOutH + 3, "ACCEL_YOUT_L", "Accelerometer Y, low byte", "R"},
	{regAccelXOutH + 4, "ACCEL_ZOUT_H", "Accelerometer Z, high byte", "R"},
	{regAccelXOutH + 5, "ACCEL_ZOUT_L", "Accelerometer Z, low byte", "R"},
	{0x41, "TEMP_OUT_H", "Temperature, high byte", "R"},
	{0x42, "TEMP_OUT_L", "Temperature, low byte", "R"},
	{regGyroXOutH, "GYRO_XOUT_H", "Gyroscope X, high byte", "R"},
	{regGyroXOutH + 1, "GYRO_XOUT_L", "Gyroscope X, low byte", "R"},
	{regGyroXOutH + 2, "GYRO_YOUT_H", "Gyroscope Y, high byte", "R"},
	{regGyroXOutH + 3, "GYRO_YOUT_L", "Gyroscope Y, low byte", "R"},
	{regGyroXOutH + 4, "GYRO_ZOUT_H", "Gyroscope Z, high byte", "R"},
	{regGyroXOutH + 5, "GYRO_ZOUT_L", "Gyroscope Z, low byte", "R"},
	{regPwrMgmt1, "PWR_MGMT_1", "Power management and clock source", "RW"},
	{0x75, "WHO_AM_I", "Device identity, 0x68", "R"},
}

// LookupRegister returns the description of reg, if known.
func LookupRegister(reg byte) (RegisterInfo, bool) {
	for _, r := range MPU6050Registers {
		if r.Address == reg {
			return r, true
		}
	}
	return RegisterInfo{}, false
}

// ReadRegister reads one register.
func (m *MPU6050) ReadRegister(reg byte) (byte, error) {
	var b [1]byte
	if err := m.dev.Tx([]byte{reg}, b[:]); err != nil {
		return 0, fmt.Errorf("read register 0x%02X: %w", reg, err)
	}
	return b[0], nil
}

// WriteRegister writes one register. Only registers listed as writable
// are accepted.
func (m *MPU6050) WriteRegister(reg, v byte) error {
	info, ok := LookupRegister(reg)
	if !ok || info.Access != "RW" {
		return fmt.Errorf("register 0x%02X is not writable", reg)
	}
	return m.writeByte(reg, v)
}
