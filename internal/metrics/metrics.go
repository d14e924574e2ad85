package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-bxcan/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus collectors
var (
	DriverTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bxcan_tx_frames_total",
		Help: "Total frames handed to TX mailbox 0.",
	})
	DriverRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bxcan_rx_frames_total",
		Help: "Total frames read from RX FIFO 0.",
	})
	WaitTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bxcan_wait_timeouts_total",
		Help: "Hardware flag waits that exceeded their poll budget or deadline.",
	}, []string{"wait"})
	WaitPolls = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bxcan_wait_polls",
		Help:    "Flag reads needed before a hardware wait completed.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	}, []string{"wait"})
	BusTxFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_tx_frames_total",
		Help: "Frames written to the bus partner backend.",
	}, []string{"backend"})
	BusRxFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_rx_frames_total",
		Help: "Frames received from the bus partner backend.",
	}, []string{"backend"})
	FIFODropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bxcan_fifo_overrun_frames_total",
		Help: "Frames lost because RX FIFO 0 was full.",
	})
	LEDToggles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "led_toggles_total",
		Help: "Output pin toggles triggered by received frames.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total rejected malformed frames (bad DLC, checksum, truncated).",
	})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrDriverTimeout  = "driver_timeout"
	ErrDriverLength   = "driver_invalid_length"
	ErrDriverState    = "driver_state"
	ErrSerialWrite    = "serial_write"
	ErrSerialOverflow = "serial_tx_overflow"
	ErrSerialRead     = "serial_read"
	ErrSocketCANWrite = "socketcan_write"
	ErrSocketCANOver  = "socketcan_tx_overflow"
	ErrSocketCANRead  = "socketcan_read"
)

// Backend label values.
const (
	BackendLoopback  = "loopback"
	BackendSerial    = "serial"
	BackendSocketCAN = "socketcan"
)

// StartHTTP serves /metrics and /ready on addr in a background goroutine.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for logging without a Prometheus scrape.
var (
	localTx        atomic.Uint64
	localRx        atomic.Uint64
	localTimeouts  atomic.Uint64
	localBusTx     atomic.Uint64
	localBusRx     atomic.Uint64
	localFIFODrop  atomic.Uint64
	localLED       atomic.Uint64
	localErrors    atomic.Uint64
	localMalformed atomic.Uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	Tx          uint64
	Rx          uint64
	Timeouts    uint64
	BusTx       uint64
	BusRx       uint64
	FIFODropped uint64
	LEDToggles  uint64
	Errors      uint64 // sum across error labels
	Malformed   uint64
}

func Snap() Snapshot {
	return Snapshot{
		Tx:          localTx.Load(),
		Rx:          localRx.Load(),
		Timeouts:    localTimeouts.Load(),
		BusTx:       localBusTx.Load(),
		BusRx:       localBusRx.Load(),
		FIFODropped: localFIFODrop.Load(),
		LEDToggles:  localLED.Load(),
		Errors:      localErrors.Load(),
		Malformed:   localMalformed.Load(),
	}
}

func IncDriverTx() {
	DriverTxFrames.Inc()
	localTx.Add(1)
}

func IncDriverRx() {
	DriverRxFrames.Inc()
	localRx.Add(1)
}

// IncWaitTimeout counts a timed-out hardware wait.
func IncWaitTimeout(wait string) {
	WaitTimeouts.WithLabelValues(wait).Inc()
	localTimeouts.Add(1)
}

// ObserveWaitPolls records how many flag reads a completed wait took.
func ObserveWaitPolls(wait string, n int) {
	WaitPolls.WithLabelValues(wait).Observe(float64(n))
}

func IncBusTx(backend string) {
	BusTxFrames.WithLabelValues(backend).Inc()
	localBusTx.Add(1)
}

func IncBusRx(backend string) {
	BusRxFrames.WithLabelValues(backend).Inc()
	localBusRx.Add(1)
}

func IncFIFODrop() {
	FIFODropped.Inc()
	localFIFODrop.Add(1)
}

func IncLEDToggle() {
	LEDToggles.Inc()
	localLED.Add(1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	localErrors.Add(1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	localMalformed.Add(1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register error series so dashboards see zeroes before the first failure.
	for _, lbl := range []string{
		ErrDriverTimeout, ErrDriverLength, ErrDriverState,
		ErrSerialWrite, ErrSerialOverflow, ErrSerialRead,
		ErrSocketCANWrite, ErrSocketCANOver, ErrSocketCANRead,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}
