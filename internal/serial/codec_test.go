package serial

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/kstaniek/go-bxcan/internal/can"
	"github.com/kstaniek/go-bxcan/internal/metrics"
)

// rxWire builds what the adapter emits for a received frame: ID(4) | payload.
func rxWire(id uint32, payload []byte) []byte {
	body := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(body[:4], id&can.CAN_EFF_MASK)
	copy(body[4:], payload)
	return envelope(body)
}

func frame(id uint32, data ...byte) can.Frame {
	fr, err := can.New(id, data...)
	if err != nil {
		panic(err)
	}
	return fr
}

func TestEncode(t *testing.T) {
	got, err := Codec{}.Encode(frame(0x123, 0xAA, 0xBB, 0xCC, 0xDD))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{0x2D, 0xD4, 0x0B, 0x02, 0x84, 0x00, 0x00, 0x01, 0x23, 0xAA, 0xBB, 0xCC, 0xDD, 0}
	want[len(want)-1] = checksum(want[2 : len(want)-1])
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode\n got  % X\n want % X", got, want)
	}
}

func TestEncodeRejectsLongFrame(t *testing.T) {
	if _, err := (Codec{}).Encode(can.Frame{ID: 1, Len: 9}); !errors.Is(err, can.ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
}

func TestDecodeDocumentedExample(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x2D, 0xD4, 0x06, 0x00, 0x00, 0x01, 0x24, 0xFF, 0x57})
	var got []can.Frame
	if err := (Codec{}).DecodeStream(buf, func(fr can.Frame) { got = append(got, fr) }); err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	if len(got) != 1 || !got[0].Equal(frame(0x124, 0xFF)) {
		t.Fatalf("decoded %v", got)
	}
	if buf.Len() != 0 {
		t.Fatalf("%d bytes left", buf.Len())
	}
}

func TestDecodeStreamChunked(t *testing.T) {
	codec := Codec{}
	want := []can.Frame{
		frame(0x123, 0xAA, 0xBB, 0xCC, 0xDD),
		frame(0x124, 0xFF),
		frame(0x7FF),
		frame(0x0001E5A, 0x34, 0x7B, 0x70, 0xD7, 0x94, 0x10, 0x0D, 0xF7),
		frame(0x01ABCDE, 0xDE, 0xAD, 0xBE),
	}
	stream := []byte{0x00, 0x2D, 0x11} // leading noise
	for _, fr := range want {
		stream = append(stream, rxWire(fr.ID, fr.Payload())...)
	}

	var buf bytes.Buffer
	var got []can.Frame
	sizes := []int{1, 2, 3, 4, 5, 7, 11}
	for pos, i := 0, 0; pos < len(stream); i++ {
		n := min(sizes[i%len(sizes)], len(stream)-pos)
		buf.Write(stream[pos : pos+n])
		pos += n
		if err := codec.DecodeStream(&buf, func(fr can.Frame) { got = append(got, fr) }); err != nil {
			t.Fatalf("DecodeStream: %v", err)
		}
	}
	if len(got) != len(want) {
		t.Fatalf("decoded %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("frame %d: got %s want %s", i, got[i], want[i])
		}
	}
}

func TestDecodeStreamMalformed(t *testing.T) {
	cases := map[string][]byte{
		"bad checksum": func() []byte {
			b := rxWire(0x1, []byte{0xAA})
			b[len(b)-1] ^= 0xFF
			return b
		}(),
		"short length": {0x2D, 0xD4, 0x02, 0x00, 0x00, 0x00},
		"long length":  {0x2D, 0xD4, 0x20, 0x00, 0x00, 0x00},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			before := metrics.Snap().Malformed
			var n int
			if err := (Codec{}).DecodeStream(bytes.NewBuffer(in), func(can.Frame) { n++ }); err != nil {
				t.Fatalf("DecodeStream: %v", err)
			}
			if n != 0 {
				t.Fatalf("decoded %d frames from garbage", n)
			}
			if metrics.Snap().Malformed <= before {
				t.Fatalf("malformed counter not incremented")
			}
		})
	}
}

func TestDecodeStreamKeepsTrailingPreamble(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0x01, 0x02, 0x03, 0x2D})
	_ = Codec{}.DecodeStream(buf, func(can.Frame) {})
	if !bytes.Equal(buf.Bytes(), []byte{0x2D}) {
		t.Fatalf("buffer % X", buf.Bytes())
	}
}

func TestCompactBuffer(t *testing.T) {
	buf := bytes.NewBuffer(make([]byte, compactThreshold, 8*compactThreshold))
	buf.Bytes()[0] = 0x2D
	if !CompactBuffer(buf) {
		t.Fatalf("expected compaction")
	}
	if buf.Len() != compactThreshold || buf.Bytes()[0] != 0x2D {
		t.Fatalf("contents lost: len %d", buf.Len())
	}
	if cap(buf.Bytes()) >= 4*compactThreshold {
		t.Fatalf("backing array not released: cap %d", cap(buf.Bytes()))
	}
	if CompactBuffer(buf) {
		t.Fatalf("second compaction should be a no-op")
	}
}

func FuzzDecodeStream(f *testing.F) {
	f.Add(rxWire(0x123, []byte{0xAA, 0xBB, 0xCC, 0xDD}))
	f.Add([]byte{0x2D, 0xD4, 0x05})
	f.Fuzz(func(t *testing.T, in []byte) {
		_ = Codec{}.DecodeStream(bytes.NewBuffer(in), func(fr can.Frame) {
			if err := fr.Validate(); err != nil {
				t.Fatalf("decoded invalid frame %v: %v", fr, err)
			}
		})
	})
}
