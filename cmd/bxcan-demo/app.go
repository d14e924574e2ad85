package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kstaniek/go-bxcan/internal/bxcan"
	"github.com/kstaniek/go-bxcan/internal/can"
)

// app is the demo firmware loop: send tx, wait for one frame, toggle the LED
// when it is the toggle frame.
type app struct {
	drv       *bxcan.Driver
	led       *led
	tx        can.Frame
	rxTimeout time.Duration
	interval  time.Duration
	count     int // 0 = forever
	l         *slog.Logger
}

// run returns nil when ctx ends or count cycles completed. Timeouts are
// logged and the loop carries on.
func (a *app) run(ctx context.Context) error {
	if err := a.drv.Init(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("init: %w", err)
	}
	a.l.Info("simulation_started", "tx", a.tx.String())
	for i := 0; a.count == 0 || i < a.count; i++ {
		if err := a.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if a.interval > 0 && (a.count == 0 || i+1 < a.count) {
			t := time.NewTimer(a.interval)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
		}
	}
	return nil
}

func (a *app) cycle(ctx context.Context) error {
	if err := a.drv.Send(ctx, a.tx); err != nil {
		if errors.Is(err, bxcan.ErrTimeout) {
			a.l.Warn("tx_timeout", "error", err)
			return nil
		}
		return fmt.Errorf("send: %w", err)
	}
	a.l.Info("waiting_for_frame")
	rctx, cancel := context.WithTimeout(ctx, a.rxTimeout)
	defer cancel()
	var rx can.Frame
	if err := a.drv.Receive(rctx, &rx); err != nil {
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, bxcan.ErrTimeout), errors.Is(err, bxcan.ErrInvalidLength):
			a.l.Warn("rx_failed", "error", err)
			return nil
		}
		return fmt.Errorf("receive: %w", err)
	}
	if isToggle(rx) {
		a.led.Toggle()
	}
	return nil
}
