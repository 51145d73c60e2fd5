// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package monitoring routes diagnostic output for the control loops.
package monitoring

import (
	"log"
	"sync/atomic"
)

// LogFunc is a printf-style sink.
type LogFunc func(format string, v ...interface{})

var (
	sink  atomic.Pointer[LogFunc]
	debug atomic.Bool
)

func init() {
	SetLogger(log.Printf)
}

// Logf writes through the current logger. It defaults to log.Printf and
// may be swapped by SetLogger while loops are running.
func Logf(format string, v ...interface{}) {
	(*sink.Load())(format, v...)
}

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f LogFunc) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	sink.Store(&f)
}

// SetDebug turns debug output on or off at runtime.
func SetDebug(on bool) {
	debug.Store(on)
}

// DebugEnabled reports whether Debugf currently logs.
func DebugEnabled() bool {
	return debug.Load()
}

// Debugf logs through Logf only while debug mode is on.
func Debugf(format string, v ...interface{}) {
	if debug.Load() {
		Logf(format, v...)
	}
}
