// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/calibration/main.go
//
// Measures the MPU6050 accelerometer and gyroscope offsets.
//
// Lay the robot flat and still, Z axis up, then run:
//
//	go run ./cmd/calibration
//
// The offsets are written to CALIBRATION_FILE. Motor offsets already in
// the file are kept.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/balancer/internal/app"
	"github.com/relabs-tech/balancer/internal/config"
)

func main() {
	configPath := flag.String("config", "./balancer_config.txt", "Path to configuration file")
	samples := flag.Int("samples", app.DefaultCalibrationSamples, "Number of readings to average")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	if *samples <= 0 {
		fmt.Fprintln(os.Stderr, "ERROR: -samples must be positive")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunIMUCalibration(ctx, config.Get(), *samples, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
