//go:build tinygo

package bxcan

import (
	"runtime/volatile"
	"unsafe"
)

// Peripheral base addresses on STM32F4.
const (
	can1Base uintptr = 0x4000_6400
	rccBase  uintptr = 0x4002_3800
)

var regAddr = [NumRegs]uintptr{
	RCC_APB1ENR: rccBase + 0x040,
	MCR:         can1Base + 0x000,
	MSR:         can1Base + 0x004,
	TSR:         can1Base + 0x008,
	RF0R:        can1Base + 0x00C,
	BTR:         can1Base + 0x01C,
	TI0R:        can1Base + 0x180,
	TDT0R:       can1Base + 0x184,
	TDL0R:       can1Base + 0x188,
	TDH0R:       can1Base + 0x18C,
	RI0R:        can1Base + 0x1B0,
	RDT0R:       can1Base + 0x1B4,
	RDL0R:       can1Base + 0x1B8,
	RDH0R:       can1Base + 0x1BC,
}

// MMIO accesses the memory-mapped CAN1 and RCC registers.

type MMIO struct{}

// CAN1 is the on-chip controller.
var CAN1 Registers = MMIO{}

func (MMIO) reg(r Reg) *volatile.Register32 {
	return (*volatile.Register32)(unsafe.Pointer(regAddr[r]))
}

func (m MMIO) Load(r Reg) uint32     { return m.reg(r).Get() }
func (m MMIO) Store(r Reg, v uint32) { m.reg(r).Set(v) }
