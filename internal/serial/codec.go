package serial

import (
	"bytes"
	"encoding/binary"

	"github.com/kstaniek/go-bxcan/internal/can"
	"github.com/kstaniek/go-bxcan/internal/metrics"
)

// Ampio CAN-UART envelope: [2D D4 LEN body... CHK], LEN = len(body)+1,
// CHK = 0x2D + LEN + sum(body) mod 256.
const (
	preamble0 = 0x2D
	preamble1 = 0xD4

	insSend     = 0x02 // "send with 4-byte id"
	flagClassic = 0x80

	// Received bodies are ID(4) + payload(0..8); LEN counts the checksum too.
	rxMinLen = 4 + 0 + 1
	rxMaxLen = 4 + can.MaxLen + 1

	compactThreshold = 1024
)

var header = []byte{preamble0, preamble1}

// Codec converts frames to and from the adapter's byte stream. It is stateless.
type Codec struct{}

// CompactBuffer moves the unread bytes of b to a right-sized backing array
// when they use less than a quarter of a large one. It reports whether it
// copied.
func CompactBuffer(b *bytes.Buffer) bool {
	data := b.Bytes()
	if len(data) < compactThreshold || len(data)*4 >= cap(data) {
		return false
	}
	*b = *bytes.NewBuffer(bytes.Clone(data))
	return true
}

func checksum(lenAndBody []byte) byte {
	sum := byte(preamble0)
	for _, c := range lenAndBody {
		sum += c
	}
	return sum
}

func envelope(body []byte) []byte {
	out := make([]byte, 0, len(body)+4)
	out = append(out, preamble0, preamble1, byte(len(body)+1))
	out = append(out, body...)
	return append(out, checksum(out[2:]))
}

// Encode builds the adapter's transmit command for f.
func (Codec) Encode(f can.Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	body := make([]byte, 6, 6+int(f.Len))
	body[0] = insSend
	body[1] = flagClassic | f.Len
	binary.BigEndian.PutUint32(body[2:6], f.ID&can.CAN_EFF_MASK)
	body = append(body, f.Payload()...)
	return envelope(body), nil
}

// DecodeStream consumes every complete frame buffered in in and passes it to
// out. Partial frames stay buffered; garbage and bad checksums are skipped one
// byte at a time and counted as malformed.
//
// Example (ID=0x124, DLC=1, data FF):
//
//	2D D4 06 00 00 01 24 FF 57
func (Codec) DecodeStream(in *bytes.Buffer, out func(can.Frame)) error {
	for {
		_ = CompactBuffer(in)
		data := in.Bytes()
		if len(data) < 3 {
			return nil
		}
		i := bytes.Index(data, header)
		if i < 0 {
			// A trailing first preamble byte may pair with the next read.
			last := data[len(data)-1]
			in.Reset()
			if last == preamble0 {
				_ = in.WriteByte(last)
			}
			return nil
		}
		if i > 0 {
			in.Next(i)
			continue
		}
		ln := int(data[2])
		if ln < rxMinLen || ln > rxMaxLen {
			metrics.IncMalformed()
			in.Next(1)
			continue
		}
		total := 3 + ln
		if len(data) < total {
			return nil
		}
		if checksum(data[2:total-1]) != data[total-1] {
			metrics.IncMalformed()
			in.Next(1)
			continue
		}
		payload := data[7 : total-1]
		f := can.Frame{
			ID:  binary.BigEndian.Uint32(data[3:7]) & can.CAN_EFF_MASK,
			Len: uint8(len(payload)),
		}
		copy(f.Data[:], payload)
		in.Next(total)
		out(f)
	}
}
