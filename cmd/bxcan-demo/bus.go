package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/kstaniek/go-bxcan/internal/bxsim"
	"github.com/kstaniek/go-bxcan/internal/can"
	"github.com/kstaniek/go-bxcan/internal/metrics"
	"github.com/kstaniek/go-bxcan/internal/transport"
)

// toggleID, toggleValue: the frame that flips the LED.
const (
	toggleID    = 0x124
	toggleValue = 0xFF
)

func newPeripheral() *bxsim.Peripheral {
	return bxsim.New(bxsim.Config{
		ResetDelay:     simResetDelay,
		EnterInitDelay: simEnterInitDelay,
		LeaveInitDelay: simLeaveInitDelay,
		TransmitDelay:  simTransmitDelay,
	})
}

// busIn returns the receive side of the wire: frames from the bus partner go
// into the controller's FIFO. The controller only filters standard identifiers.
func busIn(sim *bxsim.Peripheral, backend string, l *slog.Logger) func(can.Frame) {
	return func(fr can.Frame) {
		metrics.IncBusRx(backend)
		if fr.ID > can.CAN_SFF_MASK {
			l.Debug("bus_frame_ignored", "id", fmt.Sprintf("0x%X", fr.ID))
			return
		}
		switch err := sim.Inject(fr); {
		case errors.Is(err, bxsim.ErrOverrun):
			metrics.IncFIFODrop()
			l.Warn("fifo_drop", "id", fmt.Sprintf("0x%X", fr.ID), "pending", sim.Pending())
		case err != nil:
			l.Debug("bus_frame_dropped", "id", fmt.Sprintf("0x%X", fr.ID), "error", err)
		}
	}
}

// attachBus connects the controller's transmit side to sink.
func attachBus(sim *bxsim.Peripheral, sink transport.FrameSink, l *slog.Logger) {
	sim.Attach(func(fr can.Frame) {
		if err := sink.SendFrame(fr); err != nil {
			l.Warn("bus_tx_error", "id", fmt.Sprintf("0x%X", fr.ID), "error", err)
		}
	})
}

// loopbackPeer is a simulated node that answers every frame with
// identifier+1 and a single FF byte.
func loopbackPeer(deliver func(can.Frame)) transport.FrameSink {
	return transport.SinkFunc(func(fr can.Frame) error {
		metrics.IncBusTx(metrics.BackendLoopback)
		reply := can.Frame{ID: (fr.ID + 1) & can.CAN_SFF_MASK, Len: 1}
		reply.Data[0] = toggleValue
		deliver(reply)
		return nil
	})
}

func isToggle(fr can.Frame) bool {
	return fr.ID == toggleID && fr.Len == 1 && fr.Data[0] == toggleValue
}
