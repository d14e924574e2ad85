//go:build !linux

package socketcan

import (
	"errors"
	"time"
)

// ErrReadTimeout mirrors the linux Device so callers compile everywhere.
var ErrReadTimeout = errors.New("socketcan: read timeout")

var errUnsupported = errors.New("socketcan: only supported on linux")

// Open always fails outside linux.
func Open(string, time.Duration) (Dev, error) { return nil, errUnsupported }
