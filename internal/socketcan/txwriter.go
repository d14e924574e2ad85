package socketcan

import (
	"context"
	"errors"

	"github.com/kstaniek/go-bxcan/internal/can"
	"github.com/kstaniek/go-bxcan/internal/logging"
	"github.com/kstaniek/go-bxcan/internal/metrics"
	"github.com/kstaniek/go-bxcan/internal/transport"
)

var ErrTxOverflow = errors.New("socketcan tx overflow")

// TXWriter funnels all SocketCAN writes through a single goroutine,
// mirroring the serial TXWriter.
type TXWriter struct{ base *transport.AsyncTx }

var _ transport.FrameSink = (*TXWriter)(nil)

// NewTXWriter creates a TXWriter with a queue of buf frames.
func NewTXWriter(parent context.Context, dev Dev, buf int) *TXWriter {
	send := func(fr can.Frame) error { return dev.WriteFrame(fr) }
	hooks := transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrSocketCANWrite)
			logging.L().Error("socketcan_write_error", "error", err)
		},
		OnAfter: func() { metrics.IncBusTx(metrics.BackendSocketCAN) },
		OnDrop: func() error {
			metrics.IncError(metrics.ErrSocketCANOver)
			return ErrTxOverflow
		},
	}
	return &TXWriter{base: transport.NewAsyncTx(parent, buf, send, hooks)}
}

// SendFrame queues a frame for asynchronous device write; a full queue yields ErrTxOverflow.
func (w *TXWriter) SendFrame(fr can.Frame) error { return w.base.SendFrame(fr) }

// Close stops the writer and waits for the worker goroutine to finish.
func (w *TXWriter) Close() { w.base.Close() }
