package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-bxcan/internal/can"
	"github.com/kstaniek/go-bxcan/internal/metrics"
	"github.com/kstaniek/go-bxcan/internal/socketcan"
	"github.com/kstaniek/go-bxcan/internal/transport"
)

func openSocketCAN(iface string, readTimeout time.Duration) (socketcan.Dev, error) {
	dev, err := socketcan.Open(iface, readTimeout)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// openSocketCANDevice is a hook for tests.
var openSocketCANDevice = openSocketCAN

// initSocketCANBackend binds the raw socket and launches its RX loop.
func initSocketCANBackend(ctx context.Context, cfg *appConfig, deliver func(can.Frame), l *slog.Logger, wg *sync.WaitGroup) (transport.FrameSink, func(), error) {
	dev, err := openSocketCANDevice(cfg.canIf, socketCANReadTimeout)
	if err != nil {
		return nil, func() {}, fmt.Errorf("socketcan open %s: %w", cfg.canIf, err)
	}
	l.Info("backend_open", "backend", cfg.backend, "if", cfg.canIf)
	tw := socketcan.NewTXWriter(ctx, dev, txQueueSize)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer l.Info("socketcan_rx_end")
		backoff := rxBackoffMin
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			var fr can.Frame
			if err := dev.ReadFrame(&fr); err != nil {
				if ctx.Err() != nil {
					return
				}
				if errors.Is(err, socketcan.ErrReadTimeout) {
					continue
				}
				metrics.IncError(metrics.ErrSocketCANRead)
				l.Warn("socketcan_read_error", "error", err, "backoff", backoff)
				sleepFn(backoff)
				backoff = min(backoff*2, rxBackoffMax)
				continue
			}
			deliver(fr)
			backoff = rxBackoffMin
		}
	}()
	return tw, func() { _ = dev.Close(); tw.Close() }, nil
}
