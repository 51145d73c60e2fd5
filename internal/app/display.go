package app

import (
	"context"
	"fmt"
	"image"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/balancer/internal/monitoring"
	"github.com/relabs-tech/balancer/internal/telemetry"
)

// Screen is the drawing surface of the status display.
type Screen interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
}

// OpenDisplay initializes an SSD1306 panel on bus.
func OpenDisplay(bus i2c.Bus, addr uint16) (*ssd1306.Dev, error) {
	dev, err := ssd1306.NewI2C(bus, addr, &ssd1306.DefaultOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize display at 0x%02X: %w", addr, err)
	}
	monitoring.Logf("display: initialized at 0x%02X", addr)
	return dev, nil
}

// RunDisplay redraws the robot status on screen until ctx is cancelled.
func RunDisplay(ctx context.Context, screen Screen, rec *telemetry.Recorder, interval time.Duration) error {
	if err := screen.Draw(screen.Bounds(), splashImage(), image.Point{}); err != nil {
		monitoring.Logf("display: error showing splash: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := screen.Draw(screen.Bounds(), statusImage(rec.Snapshot()), image.Point{}); err != nil {
				monitoring.Logf("display: error updating: %v", err)
			}
		}
	}
}

// drawLines renders up to four lines of 7x13 text on a blank 128x64 image.
func drawLines(lines ...string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, l := range lines {
		drawer.Dot = fixed.P(0, 13*(i+1))
		drawer.DrawBytes([]byte(l))
	}
	return img
}

func statusImage(s telemetry.Snapshot) *image1bit.VerticalLSB {
	motors := "off"
	if s.Motion.MotorsEnabled {
		motors = "on"
	}
	return drawLines(
		fmt.Sprintf("P:%6.1f Y:%6.1f", s.FilteredPitch, s.RelativeYaw),
		fmt.Sprintf("V:%6.1f T:%6.1f", s.CurrentSpeed, s.Motion.TargetSpeed),
		fmt.Sprintf("D:%5.1f %s", s.Distance, s.AvoidanceState),
		fmt.Sprintf("M:%s L:%d", motors, s.DeadlineMisses),
	)
}

func splashImage() *image1bit.VerticalLSB {
	return drawLines("", "  Balancer", "  starting...")
}
