package bxcan

// Observer receives driver events. Hosted builds default to the Prometheus
// counters in internal/metrics; TinyGo builds default to NopObserver.
type Observer interface {
	FrameSent()
	FrameReceived()
	// Malformed reports a received frame dropped for an out-of-range DLC.
	Malformed()
	// WaitDone reports a satisfied wait and the flag reads it took.
	WaitDone(wait string, polls int)
	WaitTimedOut(wait string)
	// Failed is called with every error an operation returns.
	Failed(err error)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) FrameSent()           {}
func (NopObserver) FrameReceived()       {}
func (NopObserver) Malformed()           {}
func (NopObserver) WaitDone(string, int) {}
func (NopObserver) WaitTimedOut(string)  {}
func (NopObserver) Failed(error)         {}
