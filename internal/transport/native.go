package transport

import (
	"errors"
	"fmt"

	goserial "go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Native talks to the host OS serial driver through go.bug.st/serial.
type Native struct{}

// NewNative returns the host-backed Transport variant.
func NewNative() *Native {
	return &Native{}
}

// ListPorts enumerates the serial devices currently attached to the host.
func (n *Native) ListPorts() ([]string, error) {
	infos, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("transport: list ports: %w", err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	return names, nil
}

// Open binds name under opts using the native serial driver.
func (n *Native) Open(name string, opts Options) (Port, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	mode := &goserial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
	}
	switch opts.StopBits {
	case StopBits1:
		mode.StopBits = goserial.OneStopBit
	case StopBits2:
		mode.StopBits = goserial.TwoStopBits
	}
	switch opts.Parity {
	case ParityNone:
		mode.Parity = goserial.NoParity
	case ParityOdd:
		mode.Parity = goserial.OddParity
	case ParityEven:
		mode.Parity = goserial.EvenParity
	}

	port, err := goserial.Open(name, mode)
	if err != nil {
		return nil, classifyOpenError(name, err)
	}

	if opts.Timeout > 0 {
		if err := port.SetReadTimeout(opts.Timeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("%w: set read timeout: %v", ErrBus, err)
		}
	}

	return port, nil
}

// classifyOpenError maps go.bug.st/serial's loosely-typed errors onto the
// taxonomy in spec.md §4.1. The library exposes *serial.PortError with a
// Code(), which is the only reliable signal we have.
func classifyOpenError(name string, err error) error {
	var portErr *goserial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case goserial.PortNotFound:
			return fmt.Errorf("%w: %s", ErrNotPresent, name)
		case goserial.PermissionDenied:
			return fmt.Errorf("%w: %s", ErrAccessDenied, name)
		case goserial.InvalidSerialPort, goserial.InvalidSpeed, goserial.InvalidParity:
			return fmt.Errorf("%w: %s", ErrInvalidOptions, name)
		}
	}
	return fmt.Errorf("%w: open %s: %v", ErrBus, name, err)
}
