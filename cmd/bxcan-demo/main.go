package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/kstaniek/go-bxcan/internal/bxcan"
	"github.com/kstaniek/go-bxcan/internal/metrics"
)

func main() {
	cfg, showVersion, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}
	if showVersion {
		fmt.Printf("bxcan-demo %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	sim := newPeripheral()
	sink, cleanup, berr := initBackend(ctx, cfg, busIn(sim, cfg.backend, l), l, &wg)
	if berr != nil {
		l.Error("backend_init_error", "error", berr)
		return
	}
	attachBus(sim, sink, l)

	drv := bxcan.New(sim,
		bxcan.WithLogger(l),
		bxcan.WithMaxPolls(cfg.maxPolls),
		bxcan.WithPollInterval(cfg.pollInterval),
		bxcan.WithClock(cfg.pclk),
	)
	metrics.SetReadinessFunc(func() bool { return drv.Ready() && ctx.Err() == nil })
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	tx, _ := cfg.txFrame() // checked by validate
	a := &app{
		drv:       drv,
		led:       newLED(l),
		tx:        tx,
		rxTimeout: cfg.rxTimeout,
		interval:  cfg.interval,
		count:     cfg.count,
		l:         l,
	}
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigCh:
		l.Info("shutdown_signal", "signal", s.String())
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			l.Error("demo_error", "error", err)
		} else {
			l.Info("demo_finished", "led_on", a.led.On())
		}
	}
	cancel()
	cleanup()
	wg.Wait()
}
