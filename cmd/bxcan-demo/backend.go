package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kstaniek/go-bxcan/internal/can"
	"github.com/kstaniek/go-bxcan/internal/metrics"
	"github.com/kstaniek/go-bxcan/internal/transport"
)

// initBackend selects the bus partner, starts its RX loop feeding deliver and
// returns the sink for frames the controller transmits plus a cleanup func.
// It returns an error instead of exiting the process.
func initBackend(ctx context.Context, cfg *appConfig, deliver func(can.Frame), l *slog.Logger, wg *sync.WaitGroup) (transport.FrameSink, func(), error) {
	switch cfg.backend {
	case metrics.BackendLoopback:
		l.Info("backend_open", "backend", cfg.backend)
		return loopbackPeer(deliver), func() {}, nil
	case metrics.BackendSerial:
		return initSerialBackend(ctx, cfg, deliver, l, wg)
	case metrics.BackendSocketCAN:
		return initSocketCANBackend(ctx, cfg, deliver, l, wg)
	default:
		return nil, func() {}, fmt.Errorf("unknown backend %q (use loopback|serial|socketcan)", cfg.backend)
	}
}
