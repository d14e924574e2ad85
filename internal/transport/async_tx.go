package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-bxcan/internal/can"
)

// ErrAsyncTxClosed is returned by SendFrame after Close.
var ErrAsyncTxClosed = errors.New("async tx closed")

// Hooks customize AsyncTx behavior.
type Hooks struct {
	// OnError is called when the write function fails.
	OnError func(error)
	// OnAfter is called after each successful write.
	OnAfter func()
	// OnDrop is called when the queue is full; its error is returned from
	// SendFrame. Nil makes overflow silent.
	OnDrop func() error
}

// AsyncTx decouples the simulated peripheral from a slow bus backend. Frames
// leaving the TX mailbox are queued without blocking and written by one
// worker goroutine in order.
//
//	a := NewAsyncTx(ctx, depth, write, hooks)
//	_ = a.SendFrame(fr)
//	a.Close()
type AsyncTx struct {
	queue  chan can.Frame
	write  func(can.Frame) error
	hooks  Hooks
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex // serializes enqueue against Close
	closed atomic.Bool
}

var _ FrameSink = (*AsyncTx)(nil)

// NewAsyncTx starts the worker. It stops when parent is cancelled or Close is called.
func NewAsyncTx(parent context.Context, depth int, write func(can.Frame) error, hooks Hooks) *AsyncTx {
	ctx, cancel := context.WithCancel(parent)
	a := &AsyncTx{
		queue:  make(chan can.Frame, depth),
		write:  write,
		hooks:  hooks,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go a.run(ctx)
	return a
}

func (a *AsyncTx) run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fr, ok := <-a.queue:
			if !ok {
				return
			}
			a.deliver(fr)
		}
	}
}

func (a *AsyncTx) deliver(fr can.Frame) {
	if err := a.write(fr); err != nil {
		if a.hooks.OnError != nil {
			a.hooks.OnError(err)
		}
		return
	}
	if a.hooks.OnAfter != nil {
		a.hooks.OnAfter()
	}
}

// SendFrame queues fr. It never blocks; a full queue yields the OnDrop error.
func (a *AsyncTx) SendFrame(fr can.Frame) error {
	if a.closed.Load() {
		return ErrAsyncTxClosed
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() {
		return ErrAsyncTxClosed
	}
	select {
	case a.queue <- fr:
		return nil
	default:
	}
	if a.hooks.OnDrop != nil {
		return a.hooks.OnDrop()
	}
	return nil
}

// Pending reports queued, not yet written frames.
func (a *AsyncTx) Pending() int { return len(a.queue) }

// Close stops the worker and waits for it. Queued frames are discarded.
func (a *AsyncTx) Close() {
	if a.closed.Swap(true) {
		return
	}
	a.cancel()
	a.mu.Lock()
	close(a.queue)
	a.mu.Unlock()
	<-a.done
}
