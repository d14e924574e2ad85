//go:build !tinygo

package bxcan

import (
	"errors"

	"github.com/kstaniek/go-bxcan/internal/metrics"
)

var defaultObserver Observer = metricsObserver{}

// metricsObserver forwards driver events to internal/metrics.
type metricsObserver struct{}

func (metricsObserver) FrameSent()                  { metrics.IncDriverTx() }
func (metricsObserver) FrameReceived()              { metrics.IncDriverRx() }
func (metricsObserver) Malformed()                  { metrics.IncMalformed() }
func (metricsObserver) WaitDone(wait string, n int) { metrics.ObserveWaitPolls(wait, n) }
func (metricsObserver) WaitTimedOut(wait string)    { metrics.IncWaitTimeout(wait) }
func (metricsObserver) Failed(err error)            { metrics.IncError(mapErrToMetric(err)) }

func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return metrics.ErrDriverTimeout
	case errors.Is(err, ErrInvalidLength):
		return metrics.ErrDriverLength
	case errors.Is(err, ErrNotInitialized):
		return metrics.ErrDriverState
	default:
		return "other"
	}
}
