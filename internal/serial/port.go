package serial

import (
	"time"

	"github.com/tarm/serial"
)

// Port is the subset of *serial.Port the adapter needs. Tests swap in fakes.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Open opens the Ampio CAN-UART adapter at name. A zero readTimeout blocks
// reads until data arrives.
func Open(name string, baud int, readTimeout time.Duration) (Port, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout}
	return serial.OpenPort(cfg)
}
