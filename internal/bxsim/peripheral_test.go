package bxsim

import (
	"errors"
	"testing"

	"github.com/kstaniek/go-bxcan/internal/bxcan"
	"github.com/kstaniek/go-bxcan/internal/can"
)

// bringUp walks the peripheral to normal mode with raw register accesses.
func bringUp(t *testing.T, p *Peripheral) {
	t.Helper()
	p.Store(bxcan.RCC_APB1ENR, p.Load(bxcan.RCC_APB1ENR)|bxcan.RCC_APB1ENR_CAN1EN)
	p.Store(bxcan.MCR, bxcan.MCR_INRQ)
	for i := 0; p.Load(bxcan.MSR)&bxcan.MSR_INAK == 0; i++ {
		if i > 100 {
			t.Fatalf("INAK never set")
		}
	}
	p.Store(bxcan.MCR, 0)
	for i := 0; p.Load(bxcan.MSR)&bxcan.MSR_INAK != 0; i++ {
		if i > 100 {
			t.Fatalf("INAK never cleared")
		}
	}
}

func TestWritesIgnoredWhileClockGated(t *testing.T) {
	p := New(Config{})
	p.Store(bxcan.MCR, bxcan.MCR_INRQ)
	for i := 0; i < 10; i++ {
		if p.Load(bxcan.MSR)&bxcan.MSR_INAK != 0 {
			t.Fatalf("controller responded without its clock")
		}
	}
	if got := p.Peek(bxcan.MCR); got != resetMCR {
		t.Fatalf("MCR changed while gated: 0x%08X", got)
	}
}

func TestResetDelayCountsReads(t *testing.T) {
	p := New(Config{ResetDelay: 3})
	p.Store(bxcan.RCC_APB1ENR, bxcan.RCC_APB1ENR_CAN1EN)
	p.Store(bxcan.MCR, resetMCR|bxcan.MCR_RESET)
	reads := 0
	for p.Load(bxcan.MCR)&bxcan.MCR_RESET != 0 {
		reads++
		if reads > 10 {
			t.Fatalf("reset never completed")
		}
	}
	if reads != 3 {
		t.Fatalf("expected 3 reads with RESET set, got %d", reads)
	}
	ev := p.Events()
	if len(ev) != 2 || ev[0] != EventClockEnabled || ev[1] != EventReset {
		t.Fatalf("unexpected events %v", ev)
	}
}

func TestBTRWritableOnlyInInitMode(t *testing.T) {
	p := New(Config{})
	p.Store(bxcan.RCC_APB1ENR, bxcan.RCC_APB1ENR_CAN1EN)
	p.Store(bxcan.BTR, 0x1)
	if got := p.Peek(bxcan.BTR); got != resetBTR {
		t.Fatalf("BTR written outside init mode: 0x%08X", got)
	}
	p.Store(bxcan.MCR, bxcan.MCR_INRQ)
	_ = p.Load(bxcan.MSR)
	p.Store(bxcan.BTR, 0x1)
	if got := p.Peek(bxcan.BTR); got != 0x1 {
		t.Fatalf("BTR not written in init mode: 0x%08X", got)
	}
}

func TestTransmitCompletesAndNotifies(t *testing.T) {
	p := New(Config{TransmitDelay: 2})
	bringUp(t, p)
	var got []can.Frame
	p.Attach(func(f can.Frame) { got = append(got, f) })

	p.Store(bxcan.TI0R, bxcan.PackTxID(0x321))
	p.Store(bxcan.TDT0R, 2)
	p.Store(bxcan.TDL0R, 0xBBAA)
	p.Store(bxcan.TI0R, bxcan.PackTxID(0x321)|bxcan.TIxR_TXRQ)
	if p.Peek(bxcan.TSR)&bxcan.TSR_TME0 != 0 {
		t.Fatalf("mailbox still empty after TXRQ")
	}
	for i := 0; i < 3; i++ {
		_ = p.Load(bxcan.TSR)
	}
	if len(got) != 1 {
		t.Fatalf("expected one transmitted frame, got %d", len(got))
	}
	want := can.Frame{ID: 0x321, Len: 2, Data: [8]byte{0xAA, 0xBB}}
	if !got[0].Equal(want) {
		t.Fatalf("got %v want %v", got[0], want)
	}
	tsr := p.Peek(bxcan.TSR)
	if tsr&bxcan.TSR_TME0 == 0 || tsr&bxcan.TSR_TXOK0 == 0 {
		t.Fatalf("TSR not updated: 0x%08X", tsr)
	}
	if p.Peek(bxcan.TI0R)&bxcan.TIxR_TXRQ != 0 {
		t.Fatalf("TXRQ not cleared by hardware")
	}
}

func TestFIFOOverrun(t *testing.T) {
	p := New(Config{})
	bringUp(t, p)
	for i := 0; i < fifoDepth; i++ {
		if err := p.Inject(can.Frame{ID: uint32(i)}); err != nil {
			t.Fatalf("inject %d: %v", i, err)
		}
	}
	rf := p.Peek(bxcan.RF0R)
	if rf&bxcan.RF0R_FMP0 != fifoDepth || rf&bxcan.RF0R_FULL0 == 0 {
		t.Fatalf("unexpected RF0R 0x%08X", rf)
	}
	if err := p.Inject(can.Frame{ID: 9}); !errors.Is(err, ErrOverrun) {
		t.Fatalf("inject into full FIFO: %v, want ErrOverrun", err)
	}
	if p.Overruns() != 1 || p.Peek(bxcan.RF0R)&bxcan.RF0R_FOVR0 == 0 {
		t.Fatalf("overrun not flagged")
	}
	p.Store(bxcan.RF0R, bxcan.RF0R_RFOM0|bxcan.RF0R_FOVR0)
	if got := bxcan.UnpackRxID(p.Peek(bxcan.RI0R)); got != 1 {
		t.Fatalf("head after release = %d, want 1", got)
	}
	if p.Peek(bxcan.RF0R)&bxcan.RF0R_FOVR0 != 0 {
		t.Fatalf("FOVR0 not cleared by write-1")
	}
}

func TestInjectDroppedWhenOffBus(t *testing.T) {
	p := New(Config{})
	if err := p.Inject(can.Frame{ID: 1}); !errors.Is(err, ErrOffBus) {
		t.Fatalf("inject before bus join: %v, want ErrOffBus", err)
	}
	if p.Overruns() != 0 {
		t.Fatalf("off-bus drop counted as overrun")
	}
}
