package bxcan

import (
	"log/slog"
	"time"

	"periph.io/x/conn/v3/physic"
)

const (
	// DefaultMaxPolls bounds each hardware wait.
	DefaultMaxPolls = 1_000_000
	// DefaultClock is APB1 on an STM32F4 running at 168 MHz.
	DefaultClock = 42 * physic.MegaHertz
)

type Option func(*Driver)

// WithLogger replaces the logger used for the three informational messages.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMaxPolls bounds every hardware wait to n flag reads. Zero means poll
// forever, which is how the driver behaves on bare metal without a watchdog.
func WithMaxPolls(n int) Option {
	return func(d *Driver) {
		if n >= 0 {
			d.maxPolls = n
		}
	}
}

// WithPollInterval sleeps d between flag reads. Zero spins.
func WithPollInterval(iv time.Duration) Option {
	return func(d *Driver) {
		if iv >= 0 {
			d.pollInterval = iv
		}
	}
}

// WithObserver replaces the default event sink. Nil is ignored.
func WithObserver(o Observer) Option {
	return func(d *Driver) {
		if o != nil {
			d.obs = o
		}
	}
}

// WithTiming overrides DefaultTiming.
func WithTiming(t Timing) Option { return func(d *Driver) { d.timing = t } }

// WithClock sets the peripheral clock used to report the bus bit rate.
func WithClock(f physic.Frequency) Option {
	return func(d *Driver) {
		if f > 0 {
			d.pclk = f
		}
	}
}
