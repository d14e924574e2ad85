package bxcan

// Reg names one 32-bit register the driver touches.
type Reg uint8

const (
	RCC_APB1ENR Reg = iota // shared clock-enable register (RCC), not part of the CAN block
	MCR                    // master control
	MSR                    // master status
	TSR                    // transmit status
	RF0R                   // receive FIFO 0
	BTR                    // bit timing
	TI0R                   // TX mailbox 0 identifier
	TDT0R                  // TX mailbox 0 length/time stamp
	TDL0R                  // TX mailbox 0 data low (bytes 0..3)
	TDH0R                  // TX mailbox 0 data high (bytes 4..7)
	RI0R                   // RX FIFO 0 identifier
	RDT0R                  // RX FIFO 0 length/time stamp
	RDL0R                  // RX FIFO 0 data low (bytes 0..3)
	RDH0R                  // RX FIFO 0 data high (bytes 4..7)

	NumRegs
)

var regNames = [NumRegs]string{
	"RCC_APB1ENR", "MCR", "MSR", "TSR", "RF0R", "BTR",
	"TI0R", "TDT0R", "TDL0R", "TDH0R",
	"RI0R", "RDT0R", "RDL0R", "RDH0R",
}

func (r Reg) String() string {
	if r < NumRegs {
		return regNames[r]
	}
	return "REG?"
}

// Bit definitions (RM0090, bxCAN chapter).
const (
	RCC_APB1ENR_CAN1EN = 1 << 25

	MCR_INRQ  = 1 << 0
	MCR_SLEEP = 1 << 1
	MCR_TTCM  = 1 << 7
	MCR_RESET = 1 << 15

	MSR_INAK = 1 << 0
	MSR_SLAK = 1 << 1

	TSR_RQCP0 = 1 << 0
	TSR_TXOK0 = 1 << 1
	TSR_TME0  = 1 << 26

	RF0R_FMP0  = 0x3
	RF0R_FULL0 = 1 << 3
	RF0R_FOVR0 = 1 << 4
	RF0R_RFOM0 = 1 << 5

	TIxR_TXRQ = 1 << 0

	DLC_MASK = 0xF
)

// Registers is the access capability the driver is built on. Load and Store
// must behave like volatile 32-bit accesses: every call reaches the device.
type Registers interface {
	Load(r Reg) uint32
	Store(r Reg, v uint32)
}

func setBits(regs Registers, r Reg, mask uint32) {
	regs.Store(r, regs.Load(r)|mask)
}

func clearBits(regs Registers, r Reg, mask uint32) {
	regs.Store(r, regs.Load(r)&^mask)
}
