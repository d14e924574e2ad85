// Package bxsim simulates the bxCAN register file closely enough to run the
// driver off-target: clock gating, reset, initialization handshake, a single
// transmit mailbox and a three-deep receive FIFO.
//
// The simulated hardware advances one step per register Load, so flag
// latencies are expressed in reads. A negative latency means the flag never
// changes, which is how tests model dead hardware.
package bxsim

import (
	"errors"
	"sync"

	"github.com/kstaniek/go-bxcan/internal/bxcan"
	"github.com/kstaniek/go-bxcan/internal/can"
)

// Reset values (RM0090).
const (
	resetMCR  = 0x0001_0002
	resetMSR  = 0x0000_0C02
	resetTSR  = 0x1C00_0000
	resetBTR  = 0x0123_0000
	fifoDepth = 3
)

// Config programs the simulated flag timing.
type Config struct {
	ResetDelay     int // reads before MCR.RESET self-clears
	EnterInitDelay int // reads before MSR.INAK follows MCR.INRQ=1
	LeaveInitDelay int // reads before MSR.INAK follows MCR.INRQ=0
	TransmitDelay  int // reads before a requested mailbox empties again
	// Loopback mirrors every transmitted frame into FIFO 0.
	Loopback bool
	// APB1ENR is the power-on value of the shared clock-enable register.
	APB1ENR uint32
}

// Event is a hardware-side state transition.
type Event int

const (
	EventClockEnabled Event = iota
	EventReset
	EventInitMode
	EventTimingSet
	EventNormalMode
)

func (e Event) String() string {
	switch e {
	case EventClockEnabled:
		return "clock_enabled"
	case EventReset:
		return "reset"
	case EventInitMode:
		return "init_mode"
	case EventTimingSet:
		return "timing_set"
	case EventNormalMode:
		return "normal_mode"
	}
	return "unknown"
}

type countdown struct {
	active bool
	left   int
}

func (c *countdown) start(n int) { c.active, c.left = true, n }

// step advances the countdown and reports whether it fired.
func (c *countdown) step() bool {
	if !c.active || c.left < 0 {
		return false
	}
	if c.left > 0 {
		c.left--
		return false
	}
	c.active = false
	return true
}

type rxSlot struct{ rir, rdtr, rdl, rdh uint32 }

// Peripheral is a simulated bxCAN instance. It implements bxcan.Registers and
// is safe for concurrent use, so a bus attachment can Inject frames while the
// driver polls.
type Peripheral struct {
	mu         sync.Mutex
	cfg        Config
	regs       [bxcan.NumRegs]uint32
	reset      countdown
	enterInit  countdown
	leaveInit  countdown
	tx         countdown
	fifo       []rxSlot
	events     []Event
	onTransmit func(can.Frame)
	txCount    int
	lastTx     can.Frame
	overruns   int
}

var _ bxcan.Registers = (*Peripheral)(nil)

// New returns a powered-on peripheral with its clock gated off.
func New(cfg Config) *Peripheral {
	p := &Peripheral{cfg: cfg}
	p.regs[bxcan.RCC_APB1ENR] = cfg.APB1ENR
	p.resetLocked()
	p.events = nil
	return p
}

// Attach sets the function receiving frames that leave mailbox 0. It is
// called without the peripheral lock held and may call Inject.
func (p *Peripheral) Attach(fn func(can.Frame)) {
	p.mu.Lock()
	p.onTransmit = fn
	p.mu.Unlock()
}

// Load implements bxcan.Registers. Every call advances the hardware one step.
func (p *Peripheral) Load(r bxcan.Reg) uint32 {
	p.mu.Lock()
	sent, ok := p.stepLocked()
	v := p.regs[r]
	fn := p.onTransmit
	p.mu.Unlock()
	if ok && fn != nil {
		fn(sent)
	}
	return v
}

// Store implements bxcan.Registers.
func (p *Peripheral) Store(r bxcan.Reg, v uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r == bxcan.RCC_APB1ENR {
		if v&bxcan.RCC_APB1ENR_CAN1EN != 0 && !p.clockedLocked() {
			p.events = append(p.events, EventClockEnabled)
		}
		p.regs[r] = v
		return
	}
	if !p.clockedLocked() {
		return
	}
	switch r {
	case bxcan.MCR:
		p.storeMCR(v)
	case bxcan.BTR:
		if p.regs[bxcan.MSR]&bxcan.MSR_INAK != 0 {
			p.regs[bxcan.BTR] = v
			p.events = append(p.events, EventTimingSet)
		}
	case bxcan.TI0R:
		if !p.mailboxEmptyLocked() {
			return
		}
		p.regs[r] = v
		if v&bxcan.TIxR_TXRQ != 0 && p.onBusLocked() {
			p.regs[bxcan.TSR] &^= bxcan.TSR_TME0 | bxcan.TSR_RQCP0 | bxcan.TSR_TXOK0
			p.tx.start(p.cfg.TransmitDelay)
		}
	case bxcan.TDT0R, bxcan.TDL0R, bxcan.TDH0R:
		if p.mailboxEmptyLocked() {
			p.regs[r] = v
		}
	case bxcan.RF0R:
		p.storeRF0R(v)
	}
	// MSR, TSR and the FIFO output registers are read-only here.
}

func (p *Peripheral) storeMCR(v uint32) {
	old := p.regs[bxcan.MCR]
	p.regs[bxcan.MCR] = v
	if v&bxcan.MCR_RESET != 0 && !p.reset.active {
		p.reset.start(p.cfg.ResetDelay)
	}
	if old&bxcan.MCR_SLEEP != 0 && v&bxcan.MCR_SLEEP == 0 {
		p.regs[bxcan.MSR] &^= bxcan.MSR_SLAK
	}
	switch {
	case old&bxcan.MCR_INRQ == 0 && v&bxcan.MCR_INRQ != 0:
		p.leaveInit.active = false
		p.enterInit.start(p.cfg.EnterInitDelay)
	case old&bxcan.MCR_INRQ != 0 && v&bxcan.MCR_INRQ == 0:
		p.enterInit.active = false
		p.leaveInit.start(p.cfg.LeaveInitDelay)
	}
}

func (p *Peripheral) storeRF0R(v uint32) {
	// FULL0 and FOVR0 are cleared by writing 1.
	p.regs[bxcan.RF0R] &^= v & (bxcan.RF0R_FULL0 | bxcan.RF0R_FOVR0)
	if v&bxcan.RF0R_RFOM0 != 0 && len(p.fifo) > 0 {
		p.fifo = p.fifo[1:]
	}
	p.refreshFIFOLocked()
}

func (p *Peripheral) stepLocked() (can.Frame, bool) {
	if p.reset.step() {
		p.resetLocked()
	}
	if p.enterInit.step() {
		p.regs[bxcan.MSR] = p.regs[bxcan.MSR]&^bxcan.MSR_SLAK | bxcan.MSR_INAK
		p.events = append(p.events, EventInitMode)
	}
	if p.leaveInit.step() {
		p.regs[bxcan.MSR] &^= bxcan.MSR_INAK
		p.events = append(p.events, EventNormalMode)
	}
	if p.tx.step() {
		return p.completeTxLocked(), true
	}
	return can.Frame{}, false
}

func (p *Peripheral) completeTxLocked() can.Frame {
	tir := p.regs[bxcan.TI0R]
	n := min(bxcan.UnpackDLC(p.regs[bxcan.TDT0R]), can.MaxLen)
	f := can.Frame{
		ID:   bxcan.UnpackTxID(tir),
		Len:  n,
		Data: bxcan.UnpackData(p.regs[bxcan.TDL0R], p.regs[bxcan.TDH0R], n),
	}
	p.regs[bxcan.TI0R] = tir &^ bxcan.TIxR_TXRQ
	p.regs[bxcan.TSR] |= bxcan.TSR_TME0 | bxcan.TSR_RQCP0 | bxcan.TSR_TXOK0
	p.txCount++
	p.lastTx = f
	if p.cfg.Loopback {
		_ = p.enqueueLocked(f)
	}
	return f
}

func (p *Peripheral) resetLocked() {
	apb := p.regs[bxcan.RCC_APB1ENR]
	p.regs = [bxcan.NumRegs]uint32{}
	p.regs[bxcan.RCC_APB1ENR] = apb
	p.regs[bxcan.MCR] = resetMCR
	p.regs[bxcan.MSR] = resetMSR
	p.regs[bxcan.TSR] = resetTSR
	p.regs[bxcan.BTR] = resetBTR
	p.reset, p.enterInit, p.leaveInit, p.tx = countdown{}, countdown{}, countdown{}, countdown{}
	p.fifo = nil
	p.events = append(p.events, EventReset)
}

func (p *Peripheral) clockedLocked() bool {
	return p.regs[bxcan.RCC_APB1ENR]&bxcan.RCC_APB1ENR_CAN1EN != 0
}

func (p *Peripheral) mailboxEmptyLocked() bool {
	return p.regs[bxcan.TSR]&bxcan.TSR_TME0 != 0
}

// onBusLocked reports normal mode: neither initialization nor sleep acknowledged.
// Inject rejections.
var (
	ErrOffBus  = errors.New("bxsim: controller not on bus")
	ErrOverrun = errors.New("bxsim: fifo 0 overrun")
)

func (p *Peripheral) onBusLocked() bool {
	return p.clockedLocked() && p.regs[bxcan.MSR]&(bxcan.MSR_INAK|bxcan.MSR_SLAK) == 0
}

func (p *Peripheral) enqueueLocked(f can.Frame) error {
	n := min(f.Len, can.MaxLen)
	lo, hi := bxcan.PackData(f.Data, n)
	return p.enqueueSlotLocked(rxSlot{
		rir:  bxcan.PackRxID(f.ID),
		rdtr: bxcan.PackDLC(0, n),
		rdl:  lo,
		rdh:  hi,
	})
}

func (p *Peripheral) enqueueSlotLocked(s rxSlot) error {
	if !p.onBusLocked() {
		return ErrOffBus
	}
	if len(p.fifo) >= fifoDepth {
		p.regs[bxcan.RF0R] |= bxcan.RF0R_FOVR0
		p.overruns++
		return ErrOverrun
	}
	p.fifo = append(p.fifo, s)
	p.refreshFIFOLocked()
	return nil
}

func (p *Peripheral) refreshFIFOLocked() {
	rf := p.regs[bxcan.RF0R] &^ (bxcan.RF0R_FMP0 | bxcan.RF0R_FULL0 | bxcan.RF0R_RFOM0)
	rf |= uint32(len(p.fifo))
	if len(p.fifo) == fifoDepth {
		rf |= bxcan.RF0R_FULL0
	}
	p.regs[bxcan.RF0R] = rf
	var head rxSlot
	if len(p.fifo) > 0 {
		head = p.fifo[0]
	}
	p.regs[bxcan.RI0R] = head.rir
	p.regs[bxcan.RDT0R] = head.rdtr
	p.regs[bxcan.RDL0R] = head.rdl
	p.regs[bxcan.RDH0R] = head.rdh
}

// Inject delivers f from the bus into FIFO 0. It returns ErrOffBus when the
// controller is not on the bus and ErrOverrun when the FIFO is full.
func (p *Peripheral) Inject(f can.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enqueueLocked(f)
}

// InjectRaw places raw FIFO register contents, e.g. an out-of-range DLC.
func (p *Peripheral) InjectRaw(rir, rdtr, rdl, rdh uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enqueueSlotLocked(rxSlot{rir: rir, rdtr: rdtr, rdl: rdl, rdh: rdh})
}

// Peek reads a register without advancing the simulation.
func (p *Peripheral) Peek(r bxcan.Reg) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.regs[r]
}

// Mailbox returns the raw contents of TX mailbox 0.
func (p *Peripheral) Mailbox() (tir, tdtr, lo, hi uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.regs[bxcan.TI0R], p.regs[bxcan.TDT0R], p.regs[bxcan.TDL0R], p.regs[bxcan.TDH0R]
}

// Timing decodes the current BTR value.
func (p *Peripheral) Timing() bxcan.Timing { return bxcan.UnpackTiming(p.Peek(bxcan.BTR)) }

// Events returns the recorded state transitions in order.
func (p *Peripheral) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// LastTransmitted returns the most recent frame that left mailbox 0.
func (p *Peripheral) LastTransmitted() (can.Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTx, p.txCount > 0
}

// Transmitted counts completed transmissions.
func (p *Peripheral) Transmitted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.txCount
}

// Pending is the number of frames waiting in FIFO 0.
func (p *Peripheral) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.fifo)
}

// Overruns counts frames lost to a full FIFO.
func (p *Peripheral) Overruns() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overruns
}
