package bxcan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/kstaniek/go-bxcan/internal/can"
	"github.com/kstaniek/go-bxcan/internal/logging"
)

// sleepFn allows tests to intercept poll-interval sleeps.
var sleepFn = time.Sleep

// Driver runs one bxCAN controller through mailbox 0 and FIFO 0 by polling.
// It is not safe for concurrent use: the register read-modify-write
// sequences assume a single owner.
type Driver struct {
	regs         Registers
	logger       *slog.Logger
	obs          Observer
	timing       Timing
	pclk         physic.Frequency
	maxPolls     int
	pollInterval time.Duration
	ready        atomic.Bool // read by readiness probes
}

// New returns a driver over regs. Call Init before Send or Receive.
func New(regs Registers, opts ...Option) *Driver {
	d := &Driver{
		regs:     regs,
		logger:   logging.L(),
		obs:      defaultObserver,
		timing:   DefaultTiming,
		pclk:     DefaultClock,
		maxPolls: DefaultMaxPolls,
	}
	for _, o := range opts {
		o(d)
	}
	d.logger = d.logger.With("component", "bxcan")
	return d
}

// Ready reports whether Init completed.
func (d *Driver) Ready() bool { return d.ready.Load() }

// Timing returns the bit timing programmed by Init.
func (d *Driver) Timing() Timing { return d.timing }

// Init enables the CAN clock, resets the controller, programs the bit timing
// and leaves it in normal mode.
func (d *Driver) Init(ctx context.Context) error {
	d.ready.Store(false)
	setBits(d.regs, RCC_APB1ENR, RCC_APB1ENR_CAN1EN)

	setBits(d.regs, MCR, MCR_RESET)
	if err := d.wait(ctx, WaitReset, MCR, MCR_RESET, false); err != nil {
		return d.fail(err)
	}

	clearBits(d.regs, MCR, MCR_SLEEP|MCR_TTCM)
	setBits(d.regs, MCR, MCR_INRQ)
	if err := d.wait(ctx, WaitEnterInit, MSR, MSR_INAK, true); err != nil {
		return d.fail(err)
	}

	d.regs.Store(BTR, d.timing.Pack())

	clearBits(d.regs, MCR, MCR_INRQ)
	if err := d.wait(ctx, WaitLeaveInit, MSR, MSR_INAK, false); err != nil {
		return d.fail(err)
	}
	d.ready.Store(true)
	d.logger.Info("can_initialized",
		"btr", fmt.Sprintf("0x%08X", d.timing.Pack()),
		"bitrate", d.timing.Bitrate(d.pclk).String(),
	)
	return nil
}

// Send stages f in mailbox 0 and requests transmission. It returns once the
// request is issued; a nil error is not a delivery acknowledgement.
func (d *Driver) Send(ctx context.Context, f can.Frame) error {
	if !d.ready.Load() {
		return d.fail(ErrNotInitialized)
	}
	if err := f.Validate(); err != nil {
		return d.fail(err)
	}
	if err := d.wait(ctx, WaitTxEmpty, TSR, TSR_TME0, true); err != nil {
		return d.fail(err)
	}

	clearBits(d.regs, TI0R, TIxR_TXRQ)
	// Standard data frame: IDE and RTR stay clear, stale identifier bits are dropped.
	d.regs.Store(TI0R, PackTxID(f.ID))
	d.regs.Store(TDT0R, PackDLC(d.regs.Load(TDT0R), f.Len))
	lo, hi := PackData(f.Data, f.Len)
	d.regs.Store(TDL0R, lo)
	d.regs.Store(TDH0R, hi)
	setBits(d.regs, TI0R, TIxR_TXRQ)

	d.obs.FrameSent()
	d.logger.Info("can_tx", "id", fmt.Sprintf("0x%X", f.ID), "len", f.Len)
	return nil
}

// Receive waits for FIFO 0 to hold a message, decodes it into f and releases
// the slot.
func (d *Driver) Receive(ctx context.Context, f *can.Frame) error {
	if !d.ready.Load() {
		return d.fail(ErrNotInitialized)
	}
	if err := d.wait(ctx, WaitRxPending, RF0R, RF0R_FMP0, true); err != nil {
		return d.fail(err)
	}

	id := UnpackRxID(d.regs.Load(RI0R))
	n := UnpackDLC(d.regs.Load(RDT0R))
	if n > can.MaxLen {
		setBits(d.regs, RF0R, RF0R_RFOM0)
		d.obs.Malformed()
		return d.fail(fmt.Errorf("%w: received dlc %d (id 0x%X)", ErrInvalidLength, n, id))
	}
	f.ID = id
	f.Len = n
	f.Data = UnpackData(d.regs.Load(RDL0R), d.regs.Load(RDH0R), n)
	setBits(d.regs, RF0R, RF0R_RFOM0)

	d.obs.FrameReceived()
	d.logger.Info("can_rx", "id", fmt.Sprintf("0x%X", f.ID), "len", f.Len)
	return nil
}

// wait polls r until the bits in mask are all set (set=true) or all clear.
func (d *Driver) wait(ctx context.Context, name string, r Reg, mask uint32, set bool) error {
	for n := 1; ; n++ {
		if (d.regs.Load(r)&mask != 0) == set {
			d.obs.WaitDone(name, n)
			return nil
		}
		// Cancellation wins over an exhausted poll budget.
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				d.obs.WaitTimedOut(name)
				return fmt.Errorf("%w: %s: %v", ErrTimeout, name, err)
			}
			return fmt.Errorf("bxcan: %s: %w", name, err)
		}
		if d.maxPolls > 0 && n >= d.maxPolls {
			d.obs.WaitTimedOut(name)
			return fmt.Errorf("%w: %s after %d polls", ErrTimeout, name, n)
		}
		if d.pollInterval > 0 {
			sleepFn(d.pollInterval)
		}
	}
}

func (d *Driver) fail(err error) error {
	d.obs.Failed(err)
	return err
}
