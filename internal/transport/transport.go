package transport

import "github.com/kstaniek/go-bxcan/internal/can"

// FrameSink is a CAN frame transmission target: a backend writer or the
// simulated loopback peer.
type FrameSink interface {
	SendFrame(can.Frame) error
}

// SinkFunc adapts a plain function to FrameSink.
type SinkFunc func(can.Frame) error

func (f SinkFunc) SendFrame(fr can.Frame) error { return f(fr) }
