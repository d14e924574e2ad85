package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-bxcan/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"can_tx", snap.Tx,
					"can_rx", snap.Rx,
					"wait_timeouts", snap.Timeouts,
					"bus_tx", snap.BusTx,
					"bus_rx", snap.BusRx,
					"fifo_dropped", snap.FIFODropped,
					"led_toggles", snap.LEDToggles,
					"malformed", snap.Malformed,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
