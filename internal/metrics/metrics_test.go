package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSnapMirrorsCounters(t *testing.T) {
	before := Snap()
	IncDriverTx()
	IncDriverRx()
	IncWaitTimeout("reset")
	IncBusTx(BackendLoopback)
	IncBusRx(BackendLoopback)
	IncLEDToggle()
	IncError(ErrDriverTimeout)
	after := Snap()
	if after.Tx != before.Tx+1 || after.Rx != before.Rx+1 {
		t.Fatalf("tx/rx not mirrored: before=%+v after=%+v", before, after)
	}
	if after.Timeouts != before.Timeouts+1 || after.Errors != before.Errors+1 {
		t.Fatalf("timeouts/errors not mirrored: before=%+v after=%+v", before, after)
	}
	if after.BusTx != before.BusTx+1 || after.BusRx != before.BusRx+1 || after.LEDToggles != before.LEDToggles+1 {
		t.Fatalf("bus/led not mirrored: before=%+v after=%+v", before, after)
	}
}

func TestReadiness(t *testing.T) {
	defer SetReadinessFunc(nil)
	if !IsReady() {
		t.Fatalf("expected ready without a readiness func")
	}
	SetReadinessFunc(func() bool { return false })
	if IsReady() {
		t.Fatalf("expected not ready")
	}
}

func TestMetricsHandlerExposesDriverCounters(t *testing.T) {
	IncDriverTx()
	ObserveWaitPolls("tx_mailbox_empty", 3)
	srv := StartHTTP("127.0.0.1:0")
	defer srv.Close()
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"bxcan_tx_frames_total", "bxcan_wait_polls_bucket"} {
		if !strings.Contains(body, want) {
			t.Fatalf("metric %q missing from output", want)
		}
	}
}
