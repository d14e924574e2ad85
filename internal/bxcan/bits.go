package bxcan

import (
	"encoding/binary"

	"periph.io/x/conn/v3/physic"
)

// Identifier placement. The mailbox identifier is written 3 bits up; the FIFO
// identifier register carries the standard identifier from bit 21.
const (
	txIDShift = 3
	rxIDShift = 21
)

// PackTxID places id in the TX mailbox identifier field. TXRQ is left clear.
func PackTxID(id uint32) uint32 { return id << txIDShift }

// UnpackTxID is the hardware-side view of PackTxID.
func UnpackTxID(tir uint32) uint32 { return tir >> txIDShift }

// PackRxID is the hardware-side encoding of a received standard identifier.
func PackRxID(id uint32) uint32 { return id << rxIDShift }

// UnpackRxID extracts the standard identifier from RI0R.
func UnpackRxID(rir uint32) uint32 { return rir >> rxIDShift }

// PackDLC replaces the DLC sub-field of a TDTxR/RDTxR value with n.
func PackDLC(reg uint32, n uint8) uint32 {
	return reg&^DLC_MASK | uint32(n)&DLC_MASK
}

// UnpackDLC returns the raw 4-bit DLC; values above 8 are possible on the wire.
func UnpackDLC(reg uint32) uint8 { return uint8(reg & DLC_MASK) }

// PackData splits the first n bytes of data into the low and high data
// registers, byte 0 in the least significant position of lo. n is clamped to 8.
func PackData(data [8]byte, n uint8) (lo, hi uint32) {
	var buf [8]byte
	n = min(n, 8)
	copy(buf[:n], data[:n])
	return binary.LittleEndian.Uint32(buf[0:4]), binary.LittleEndian.Uint32(buf[4:8])
}

// UnpackData is the inverse of PackData. Bytes at or beyond n are zero.
func UnpackData(lo, hi uint32, n uint8) [8]byte {
	var buf, out [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], lo)
	binary.LittleEndian.PutUint32(buf[4:8], hi)
	n = min(n, 8)
	copy(out[:n], buf[:n])
	return out
}

// BTR field layout.
const (
	btrBRPShift = 0
	btrBRPMask  = 0x3FF
	btrTS1Shift = 16
	btrTS1Mask  = 0xF
	btrTS2Shift = 20
	btrTS2Mask  = 0x7
	btrSJWShift = 24
	btrSJWMask  = 0x3
)

// Timing holds the raw BTR sub-field values. Hardware adds one to each.
type Timing struct {
	Prescaler uint32 // BRP: Tq = (BRP+1) / f_pclk
	TimeSeg1  uint32 // TS1: (TS1+1) Tq
	TimeSeg2  uint32 // TS2: (TS2+1) Tq
	SJW       uint32 // resynchronization jump width: (SJW+1) Tq
}

// DefaultTiming is the fixed configuration programmed by Init. A different
// bus speed means different literals here.
var DefaultTiming = Timing{Prescaler: 2, TimeSeg1: 3, TimeSeg2: 2, SJW: 1}

// Pack encodes the four fields into a BTR word. Out-of-range values are
// truncated to their field width.
func (t Timing) Pack() uint32 {
	return (t.Prescaler&btrBRPMask)<<btrBRPShift |
		(t.TimeSeg1&btrTS1Mask)<<btrTS1Shift |
		(t.TimeSeg2&btrTS2Mask)<<btrTS2Shift |
		(t.SJW&btrSJWMask)<<btrSJWShift
}

// UnpackTiming decodes a BTR word.
func UnpackTiming(btr uint32) Timing {
	return Timing{
		Prescaler: btr >> btrBRPShift & btrBRPMask,
		TimeSeg1:  btr >> btrTS1Shift & btrTS1Mask,
		TimeSeg2:  btr >> btrTS2Shift & btrTS2Mask,
		SJW:       btr >> btrSJWShift & btrSJWMask,
	}
}

// QuantaPerBit is sync segment + (TS1+1) + (TS2+1).
func (t Timing) QuantaPerBit() uint32 {
	return 1 + (t.TimeSeg1&btrTS1Mask + 1) + (t.TimeSeg2&btrTS2Mask + 1)
}

// Bitrate is the nominal bus bit rate for a peripheral clock of pclk.
func (t Timing) Bitrate(pclk physic.Frequency) physic.Frequency {
	div := int64(t.Prescaler&btrBRPMask+1) * int64(t.QuantaPerBit())
	return pclk / physic.Frequency(div)
}
