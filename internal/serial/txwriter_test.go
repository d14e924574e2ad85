package serial

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kstaniek/go-bxcan/internal/metrics"
)

type fakePort struct {
	mu      sync.Mutex
	written bytes.Buffer
	err     error
}

func (p *fakePort) Read([]byte) (int, error) { return 0, nil }
func (p *fakePort) Close() error             { return nil }
func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	return p.written.Write(b)
}

func (p *fakePort) bytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return bytes.Clone(p.written.Bytes())
}

func TestTXWriterEncodesFrames(t *testing.T) {
	port := &fakePort{}
	before := metrics.Snap().BusTx
	w := NewTXWriter(context.Background(), port, Codec{}, 4)
	defer w.Close()

	fr := frame(0x123, 0xAA, 0xBB, 0xCC, 0xDD)
	if err := w.SendFrame(fr); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}
	want, _ := Codec{}.Encode(fr)
	deadline := time.Now().Add(time.Second)
	for !bytes.Equal(port.bytes(), want) {
		if time.Now().After(deadline) {
			t.Fatalf("port got % X, want % X", port.bytes(), want)
		}
		time.Sleep(2 * time.Millisecond)
	}
	for metrics.Snap().BusTx == before {
		if time.Now().After(deadline) {
			t.Fatalf("bus tx counter not incremented")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestTXWriterCountsWriteErrors(t *testing.T) {
	port := &fakePort{err: errors.New("unplugged")}
	before := metrics.Snap().Errors
	w := NewTXWriter(context.Background(), port, Codec{}, 4)
	defer w.Close()
	_ = w.SendFrame(frame(0x1))
	deadline := time.Now().Add(time.Second)
	for metrics.Snap().Errors == before {
		if time.Now().After(deadline) {
			t.Fatalf("write error not counted")
		}
		time.Sleep(2 * time.Millisecond)
	}
}
