package serial

import (
	"context"
	"errors"

	"github.com/kstaniek/go-bxcan/internal/can"
	"github.com/kstaniek/go-bxcan/internal/logging"
	"github.com/kstaniek/go-bxcan/internal/metrics"
	"github.com/kstaniek/go-bxcan/internal/transport"
)

var ErrTxOverflow = errors.New("serial tx overflow")

// TXWriter funnels all adapter writes through one goroutine.
type TXWriter struct{ base *transport.AsyncTx }

var _ transport.FrameSink = (*TXWriter)(nil)

// NewTXWriter creates a TXWriter with a queue of buf frames.
func NewTXWriter(parent context.Context, sp Port, codec Codec, buf int) *TXWriter {
	send := func(fr can.Frame) error {
		b, err := codec.Encode(fr)
		if err != nil {
			return err
		}
		_, err = sp.Write(b)
		return err
	}
	hooks := transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrSerialWrite)
			logging.L().Error("serial_write_error", "error", err)
		},
		OnAfter: func() { metrics.IncBusTx(metrics.BackendSerial) },
		OnDrop: func() error {
			metrics.IncError(metrics.ErrSerialOverflow)
			return ErrTxOverflow
		},
	}
	return &TXWriter{base: transport.NewAsyncTx(parent, buf, send, hooks)}
}

// SendFrame queues a frame for asynchronous write; a full queue yields ErrTxOverflow.
func (w *TXWriter) SendFrame(fr can.Frame) error { return w.base.SendFrame(fr) }

// Close stops the writer and waits for its goroutine.
func (w *TXWriter) Close() { w.base.Close() }
