package main

import (
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"
)

func TestApplyEnvOverrides_Basic(t *testing.T) {
	t.Setenv("BXCAN_BAUD", "230400")
	t.Setenv("BXCAN_SERIAL_READ_TIMEOUT", "100ms")
	t.Setenv("BXCAN_LOG_METRICS_INTERVAL", "5s")
	t.Setenv("BXCAN_PCLK", "48MHz")
	t.Setenv("BXCAN_TX_ID", "0x124")
	t.Setenv("BXCAN_BACKEND", "socketcan")
	t.Setenv("BXCAN_METRICS", ":9100")

	base := defaultConfig()
	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.baud != 230400 {
		t.Fatalf("expected baud override, got %d", base.baud)
	}
	if base.serialReadTO != 100*time.Millisecond {
		t.Fatalf("expected serialReadTO 100ms got %v", base.serialReadTO)
	}
	if base.logMetricsEvery != 5*time.Second {
		t.Fatalf("expected logMetricsEvery 5s got %v", base.logMetricsEvery)
	}
	if base.pclk != 48*physic.MegaHertz {
		t.Fatalf("expected pclk 48MHz got %v", base.pclk)
	}
	if base.txID != 0x124 || base.backend != "socketcan" || base.metricsAddr != ":9100" {
		t.Fatalf("overrides not applied: %+v", base)
	}
}

func TestApplyEnvOverrides_FlagPrecedence(t *testing.T) {
	base := defaultConfig()
	t.Setenv("BXCAN_BAUD", "230400")
	// Simulate user passed -baud flag (so env should be ignored)
	if err := applyEnvOverrides(base, map[string]struct{}{"baud": {}}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if base.baud != 115200 {
		t.Fatalf("expected baud unchanged 115200 got %d", base.baud)
	}
}

func TestApplyEnvOverrides_BadValues(t *testing.T) {
	for _, kv := range [][2]string{
		{"BXCAN_MAX_POLLS", "notint"},
		{"BXCAN_RX_TIMEOUT", "soon"},
		{"BXCAN_PCLK", "fast"},
		{"BXCAN_TX_ID", "0xZZ"},
	} {
		t.Run(kv[0], func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			if err := applyEnvOverrides(defaultConfig(), map[string]struct{}{}); err == nil {
				t.Fatalf("expected error for %s=%s", kv[0], kv[1])
			}
		})
	}
}

func TestParseFlagsEnvAndFlag(t *testing.T) {
	t.Setenv("BXCAN_COUNT", "7")
	t.Setenv("BXCAN_INTERVAL", "1s")
	cfg, _, err := parseFlags([]string{"-interval", "10ms"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.count != 7 || cfg.interval != 10*time.Millisecond {
		t.Fatalf("count=%d interval=%v", cfg.count, cfg.interval)
	}
}
