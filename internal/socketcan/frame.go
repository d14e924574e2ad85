package socketcan

import (
	"encoding/binary"
	"fmt"

	"github.com/kstaniek/go-bxcan/internal/can"
)

// struct can_frame (linux/can.h), host byte order:
//
//	can_id  u32  [0:4]  identifier plus EFF/RTR/ERR flags
//	len     u8   [4]
//	pad     3B   [5:8]
//	data    [8]  [8:16]
const frameSize = 16

// Dev is the minimal interface needed by the backend and TXWriter.
// Implemented by *Device on linux and by fakes in tests.
type Dev interface {
	ReadFrame(*can.Frame) error
	WriteFrame(can.Frame) error
	Close() error
}

func encodeFrame(buf *[frameSize]byte, fr can.Frame) error {
	if err := fr.Validate(); err != nil {
		return err
	}
	*buf = [frameSize]byte{}
	binary.NativeEndian.PutUint32(buf[0:4], fr.ID&can.CAN_SFF_MASK)
	buf[4] = fr.Len
	copy(buf[8:], fr.Payload())
	return nil
}

func decodeFrame(buf []byte, fr *can.Frame) error {
	if len(buf) != frameSize {
		return fmt.Errorf("socketcan: short read: %d", len(buf))
	}
	raw := binary.NativeEndian.Uint32(buf[0:4])
	if raw&(can.CAN_EFF_FLAG|can.CAN_RTR_FLAG|can.CAN_ERR_FLAG) != 0 {
		return fmt.Errorf("socketcan: unexpected frame flags 0x%08X", raw)
	}
	n := buf[4]
	if n > can.MaxLen {
		return fmt.Errorf("%w (%d)", can.ErrInvalidLength, n)
	}
	*fr = can.Frame{ID: raw & can.CAN_SFF_MASK, Len: n}
	copy(fr.Data[:], buf[8:8+int(n)])
	return nil
}
