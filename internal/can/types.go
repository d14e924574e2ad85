package can

import (
	"errors"
	"fmt"
	"strings"
)

// Identifier masks and flag bits (same values as <linux/can.h>).
const (
	CAN_EFF_FLAG = 0x80000000
	CAN_RTR_FLAG = 0x40000000
	CAN_ERR_FLAG = 0x20000000
	CAN_SFF_MASK = 0x7FF
	CAN_EFF_MASK = 0x1FFFFFFF
)

// MaxLen is the payload capacity of a classic CAN frame.
const MaxLen = 8

// ErrInvalidLength is returned when a frame declares more than MaxLen bytes.
var ErrInvalidLength = errors.New("can: invalid length")

// Frame is a classic CAN data frame.
// ID is nominally an 11-bit standard identifier; it is not masked here.
// Only the first Len bytes of Data are meaningful.
type Frame struct {
	ID   uint32
	Len  uint8
	Data [MaxLen]byte
}

// New builds a frame from id and payload.
func New(id uint32, payload ...byte) (Frame, error) {
	var f Frame
	if len(payload) > MaxLen {
		return f, fmt.Errorf("%w (%d)", ErrInvalidLength, len(payload))
	}
	f.ID = id
	f.Len = uint8(len(payload))
	copy(f.Data[:], payload)
	return f, nil
}

// Validate reports ErrInvalidLength when Len exceeds MaxLen.
func (f Frame) Validate() error {
	if f.Len > MaxLen {
		return fmt.Errorf("%w (%d)", ErrInvalidLength, f.Len)
	}
	return nil
}

// Payload returns the valid prefix of Data. It clamps Len to MaxLen.
func (f *Frame) Payload() []byte {
	n := int(f.Len)
	if n > MaxLen {
		n = MaxLen
	}
	return f.Data[:n]
}

// Equal compares identifier, length and the valid payload bytes only.
func (f Frame) Equal(g Frame) bool {
	if f.ID != g.ID || f.Len != g.Len {
		return false
	}
	return string(f.Payload()) == string(g.Payload())
}

// String renders the frame in cansend notation, e.g. "123#AABBCCDD".
func (f Frame) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%03X#", f.ID)
	for _, c := range f.Payload() {
		fmt.Fprintf(&b, "%02X", c)
	}
	return b.String()
}
