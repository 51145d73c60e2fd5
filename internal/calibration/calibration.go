// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration stores the offsets measured by the calibration tool.
// The robot only ever reads this file.
package calibration

import (
	"encoding/json"
	"fmt"
	"os"
)

// Calibration holds raw-count IMU offsets and motor dead-zone duty offsets.
type Calibration struct {
	AccelOffsetX int `json:"ACCELERATION_X_OFFSET"`
	AccelOffsetY int `json:"ACCELERATION_Y_OFFSET"`
	AccelOffsetZ int `json:"ACCELERATION_Z_OFFSET"`

	GyroOffsetX int `json:"GYROSCOPE_X_OFFSET"`
	GyroOffsetY int `json:"GYROSCOPE_Y_OFFSET"`
	GyroOffsetZ int `json:"GYROSCOPE_Z_OFFSET"`

	LeftMotorOffset  float64 `json:"LEFT_MOTOR_OFFSET"`
	RightMotorOffset float64 `json:"RIGHT_MOTOR_OFFSET"`
}

// Load reads a calibration file. Missing keys stay zero.
func Load(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Calibration{}, fmt.Errorf("read calibration file: %w", err)
	}

	var c Calibration
	if err := json.Unmarshal(data, &c); err != nil {
		return Calibration{}, fmt.Errorf("parse calibration file %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return Calibration{}, fmt.Errorf("calibration file %s: %w", path, err)
	}
	return c, nil
}

func (c Calibration) validate() error {
	for name, v := range map[string]float64{
		"LEFT_MOTOR_OFFSET":  c.LeftMotorOffset,
		"RIGHT_MOTOR_OFFSET": c.RightMotorOffset,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s must be within 0-100, got %v", name, v)
		}
	}
	return nil
}
