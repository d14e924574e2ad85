package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/kstaniek/go-bxcan/internal/bxcan"
	"github.com/kstaniek/go-bxcan/internal/can"
	"github.com/kstaniek/go-bxcan/internal/logging"
	"github.com/kstaniek/go-bxcan/internal/metrics"
)

type appConfig struct {
	backend         string
	serialDev       string
	baud            int
	serialReadTO    time.Duration
	canIf           string
	pclk            physic.Frequency
	maxPolls        int
	pollInterval    time.Duration
	rxTimeout       time.Duration
	interval        time.Duration
	count           int
	txID            uint
	txData          string
	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration
}

func defaultConfig() *appConfig {
	return &appConfig{
		backend:      metrics.BackendLoopback,
		serialDev:    "/dev/ttyUSB0",
		baud:         115200,
		serialReadTO: 50 * time.Millisecond,
		canIf:        "can0",
		pclk:         bxcan.DefaultClock,
		maxPolls:     bxcan.DefaultMaxPolls,
		rxTimeout:    time.Second,
		interval:     500 * time.Millisecond,
		txID:         0x123,
		txData:       "AABBCCDD",
		logFormat:    "text",
		logLevel:     "info",
	}
}

// parseFlags parses args (without the program name), applies BXCAN_*
// environment overrides for flags not given explicitly, and validates.
func parseFlags(args []string) (*appConfig, bool, error) {
	cfg := defaultConfig()
	fs := flag.NewFlagSet("bxcan-demo", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.backend, "backend", cfg.backend, "Bus partner: loopback|serial|socketcan")
	fs.StringVar(&cfg.serialDev, "serial", cfg.serialDev, "Serial device path (backend=serial)")
	fs.IntVar(&cfg.baud, "baud", cfg.baud, "Serial baud rate")
	fs.DurationVar(&cfg.serialReadTO, "serial-read-timeout", cfg.serialReadTO, "Serial read timeout")
	fs.StringVar(&cfg.canIf, "can-if", cfg.canIf, "SocketCAN interface (backend=socketcan)")
	fs.Var(&cfg.pclk, "pclk", "CAN peripheral clock, e.g. 42MHz")
	fs.IntVar(&cfg.maxPolls, "max-polls", cfg.maxPolls, "Flag reads per hardware wait (0 = unbounded)")
	fs.DurationVar(&cfg.pollInterval, "poll-interval", cfg.pollInterval, "Sleep between flag reads")
	fs.DurationVar(&cfg.rxTimeout, "rx-timeout", cfg.rxTimeout, "Receive deadline per cycle")
	fs.DurationVar(&cfg.interval, "interval", cfg.interval, "Pause between send/receive cycles")
	fs.IntVar(&cfg.count, "count", cfg.count, "Number of cycles (0 = forever)")
	fs.UintVar(&cfg.txID, "tx-id", cfg.txID, "Identifier of the transmitted frame")
	fs.StringVar(&cfg.txData, "tx-data", cfg.txData, "Hex payload of the transmitted frame (0..8 bytes)")
	fs.StringVar(&cfg.logFormat, "log-format", cfg.logFormat, "Log format: text|json")
	fs.StringVar(&cfg.logLevel, "log-level", cfg.logLevel, "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", cfg.metricsAddr, "Metrics HTTP listen address (e.g., :9100); empty disables")
	fs.DurationVar(&cfg.logMetricsEvery, "log-metrics-interval", cfg.logMetricsEvery, "If >0, periodically log metrics counters")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}
	if *showVersion {
		return cfg, true, nil
	}

	// Explicit flags take precedence over the environment.
	setFlags := map[string]struct{}{}
	fs.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		return nil, false, fmt.Errorf("environment override: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

// validate checks values and ranges only; it opens no devices.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	if _, err := logging.ParseLevel(c.logLevel); err != nil {
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.backend {
	case metrics.BackendLoopback, metrics.BackendSerial, metrics.BackendSocketCAN:
	default:
		return fmt.Errorf("invalid backend: %s", c.backend)
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.serialReadTO <= 0 {
		return fmt.Errorf("serial-read-timeout must be > 0")
	}
	if c.pclk <= 0 {
		return fmt.Errorf("pclk must be > 0")
	}
	if c.maxPolls < 0 {
		return fmt.Errorf("max-polls must be >= 0")
	}
	if c.pollInterval < 0 {
		return fmt.Errorf("poll-interval must be >= 0")
	}
	if c.rxTimeout <= 0 {
		return fmt.Errorf("rx-timeout must be > 0")
	}
	if c.interval < 0 {
		return fmt.Errorf("interval must be >= 0")
	}
	if c.count < 0 {
		return fmt.Errorf("count must be >= 0")
	}
	if _, err := c.txFrame(); err != nil {
		return err
	}
	return nil
}

// txFrame builds the frame the demo transmits every cycle.
func (c *appConfig) txFrame() (can.Frame, error) {
	if c.txID > can.CAN_SFF_MASK {
		return can.Frame{}, fmt.Errorf("tx-id 0x%X exceeds 11 bits", c.txID)
	}
	data, err := hex.DecodeString(strings.TrimPrefix(c.txData, "0x"))
	if err != nil {
		return can.Frame{}, fmt.Errorf("invalid tx-data: %w", err)
	}
	fr, err := can.New(uint32(c.txID), data...)
	if err != nil {
		return can.Frame{}, fmt.Errorf("invalid tx-data: %w", err)
	}
	return fr, nil
}

// applyEnvOverrides maps BXCAN_* environment variables to config fields
// unless the corresponding flag was set. Empty values are ignored; the first
// parse error is returned after all variables are applied.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	lookup := func(flagName, env string) (string, bool) {
		if _, ok := set[flagName]; ok {
			return "", false
		}
		v, ok := os.LookupEnv(env)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	record := func(env string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("invalid %s: %w", env, err)
		}
	}
	str := func(flagName, env string, dst *string) {
		if v, ok := lookup(flagName, env); ok {
			*dst = v
		}
	}
	integer := func(flagName, env string, dst *int) {
		if v, ok := lookup(flagName, env); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				record(env, err)
				return
			}
			*dst = n
		}
	}
	duration := func(flagName, env string, dst *time.Duration) {
		if v, ok := lookup(flagName, env); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				record(env, err)
				return
			}
			*dst = d
		}
	}

	str("backend", "BXCAN_BACKEND", &c.backend)
	str("serial", "BXCAN_SERIAL", &c.serialDev)
	integer("baud", "BXCAN_BAUD", &c.baud)
	duration("serial-read-timeout", "BXCAN_SERIAL_READ_TIMEOUT", &c.serialReadTO)
	str("can-if", "BXCAN_IF", &c.canIf)
	if v, ok := lookup("pclk", "BXCAN_PCLK"); ok {
		var f physic.Frequency
		if err := f.Set(v); err != nil {
			record("BXCAN_PCLK", err)
		} else {
			c.pclk = f
		}
	}
	integer("max-polls", "BXCAN_MAX_POLLS", &c.maxPolls)
	duration("poll-interval", "BXCAN_POLL_INTERVAL", &c.pollInterval)
	duration("rx-timeout", "BXCAN_RX_TIMEOUT", &c.rxTimeout)
	duration("interval", "BXCAN_INTERVAL", &c.interval)
	integer("count", "BXCAN_COUNT", &c.count)
	if v, ok := lookup("tx-id", "BXCAN_TX_ID"); ok {
		n, err := strconv.ParseUint(v, 0, 32)
		if err != nil {
			record("BXCAN_TX_ID", err)
		} else {
			c.txID = uint(n)
		}
	}
	str("tx-data", "BXCAN_TX_DATA", &c.txData)
	str("log-format", "BXCAN_LOG_FORMAT", &c.logFormat)
	str("log-level", "BXCAN_LOG_LEVEL", &c.logLevel)
	// An empty BXCAN_METRICS is meaningful: it disables the endpoint.
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := os.LookupEnv("BXCAN_METRICS"); ok {
			c.metricsAddr = strings.TrimSpace(v)
		}
	}
	duration("log-metrics-interval", "BXCAN_LOG_METRICS_INTERVAL", &c.logMetricsEvery)
	return firstErr
}
