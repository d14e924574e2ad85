package bxcan

import (
	"errors"

	"github.com/kstaniek/go-bxcan/internal/can"
)

// Sentinel errors; match with errors.Is.
var (
	// ErrTimeout is returned when a hardware flag did not reach the expected
	// state within the poll budget or the context deadline.
	ErrTimeout = errors.New("bxcan: timeout")
	// ErrInvalidLength is returned for a payload length above 8.
	ErrInvalidLength = can.ErrInvalidLength
	// ErrNotInitialized is returned by Send/Receive before Init succeeded.
	ErrNotInitialized = errors.New("bxcan: not initialized")
)

// Wait point names, used in error messages and as metric labels.
const (
	WaitReset     = "reset"
	WaitEnterInit = "enter_init"
	WaitLeaveInit = "leave_init"
	WaitTxEmpty   = "tx_mailbox_empty"
	WaitRxPending = "rx_fifo_pending"
)
