//go:build linux

package socketcan

import (
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kstaniek/go-bxcan/internal/can"
)

// ErrReadTimeout is returned by ReadFrame when the receive timeout set at Open expires.
var ErrReadTimeout = errors.New("socketcan: read timeout")

type Device struct {
	fd int
}

var _ Dev = (*Device)(nil)

// Open binds a raw CAN socket to iface. The kernel filter passes standard
// data frames only. A positive readTimeout bounds each ReadFrame so callers
// can observe cancellation.
func Open(iface string, readTimeout time.Duration) (*Device, error) {
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socket(AF_CAN): %w", err)
	}
	fail := func(err error) (*Device, error) {
		_ = unix.Close(fd)
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FD_FRAMES, 0); err != nil {
		// Older kernels may not know this option.
		if err != unix.ENOPROTOOPT {
			return fail(fmt.Errorf("disable CAN FD: %w", err))
		}
	}
	filter := []unix.CanFilter{{Id: 0, Mask: can.CAN_EFF_FLAG | can.CAN_RTR_FLAG}}
	if err := unix.SetsockoptCanRawFilter(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, filter); err != nil {
		return fail(fmt.Errorf("set filter: %w", err))
	}
	if readTimeout > 0 {
		tv := unix.NsecToTimeval(readTimeout.Nanoseconds())
		if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
			return fail(fmt.Errorf("set read timeout: %w", err))
		}
	}
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return fail(fmt.Errorf("if %q: %w", iface, err))
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: ifi.Index}); err != nil {
		return fail(fmt.Errorf("bind(can@%s): %w", iface, err))
	}
	return &Device{fd: fd}, nil
}

func (d *Device) Close() error { return unix.Close(d.fd) }

// ReadFrame reads one classic CAN frame from the raw CAN socket.
func (d *Device) ReadFrame(fr *can.Frame) error {
	var buf [frameSize]byte
	n, err := unix.Read(d.fd, buf[:])
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return ErrReadTimeout
		}
		return err
	}
	return decodeFrame(buf[:n], fr)
}

// WriteFrame writes one classic CAN frame to the raw CAN socket.
func (d *Device) WriteFrame(fr can.Frame) error {
	var buf [frameSize]byte
	if err := encodeFrame(&buf, fr); err != nil {
		return err
	}
	_, err := unix.Write(d.fd, buf[:])
	return err
}
