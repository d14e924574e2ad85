package main

import (
	"log/slog"

	"github.com/kstaniek/go-bxcan/internal/metrics"
)

// led stands in for the board's status LED on PA5.
type led struct {
	on bool
	l  *slog.Logger
}

func newLED(l *slog.Logger) *led { return &led{l: l} }

func (p *led) Toggle() {
	p.on = !p.on
	metrics.IncLEDToggle()
	p.l.Info("led_toggle", "pin", "PA5", "on", p.on)
}

func (p *led) On() bool { return p.on }
