// Package transport provides the serial transport adapter: a thin,
// polymorphic binding over a host's serial devices.
package transport

import (
	"fmt"
	"io"
	"time"
)

// Parity is the wire parity setting.
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

// StopBits is the wire stop-bit setting.
type StopBits int

const (
	StopBits1 StopBits = iota
	StopBits2
)

// FlowControl is the wire flow-control setting.
type FlowControl int

const (
	FlowControlNone FlowControl = iota
	FlowControlSoftware
	FlowControlHardware
)

// Options configures how a port is opened.
type Options struct {
	BaudRate    int
	DataBits    int
	Parity      Parity
	StopBits    StopBits
	FlowControl FlowControl
	// Timeout bounds a single Read call at the transport level.
	Timeout time.Duration
}

// Validate checks that Options describes a wire format the transport can
// actually open.
func (o Options) Validate() error {
	if o.BaudRate <= 0 {
		return fmt.Errorf("%w: baud_rate must be positive", ErrInvalidOptions)
	}
	switch o.DataBits {
	case 5, 6, 7, 8:
	default:
		return fmt.Errorf("%w: data_bits must be 5, 6, 7 or 8", ErrInvalidOptions)
	}
	return nil
}

// Port is a bidirectional byte channel bound to one open serial device.
type Port interface {
	io.Reader
	io.Writer
	io.Closer
}

// Transport is the contract every variant (native, dummy) implements.
type Transport interface {
	// ListPorts returns the serial device names currently present on the
	// host. Cheap and synchronous.
	ListPorts() ([]string, error)
	// Open binds name under opts. The caller owns the returned Port and
	// must Close it.
	Open(name string, opts Options) (Port, error)
}
