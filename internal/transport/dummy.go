package transport

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// dummyPollInterval bounds how long Read blocks with no data before
// returning (0, nil), mirroring a hardware port's read timeout so a read
// task polling a Dummy port rechecks its read gate and cancellation on the
// same cadence it would against Native.
const dummyPollInterval = 20 * time.Millisecond

// Dummy is an in-memory Transport used by tests. Opening a name that was
// never Seeded still succeeds (the reference implementation's dummy variant
// is permissive about unknown names so tests can open ports a watcher never
// announced, matching scenario S5 in spec.md §8).
//
// By default a dummy port's Write sinks its payload: nothing comes back out
// of Read unless the test calls InjectRead. SetLoopback marks a name so its
// Write also feeds its own Read, for scenarios that exercise the write-then-
// read echo explicitly (spec.md scenario S2). Without this split, a
// self-subscribed port (S6) would re-deliver its own forwarded write as a
// fresh read forever.
type Dummy struct {
	mu       sync.Mutex
	seeds    map[string]bool
	open     map[string]bool
	loopback map[string]bool
	ports    map[string]*loopback
}

// NewDummy returns an empty Dummy transport.
func NewDummy() *Dummy {
	return &Dummy{
		seeds:    make(map[string]bool),
		open:     make(map[string]bool),
		loopback: make(map[string]bool),
		ports:    make(map[string]*loopback),
	}
}

// Seed registers name so it shows up in ListPorts.
func (d *Dummy) Seed(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seeds[name] = true
}

// Unseed removes name from ListPorts, simulating unplugging the device.
func (d *Dummy) Unseed(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seeds, name)
}

// SetLoopback marks name so that future Opens of it return a Port whose
// Write feeds its own Read.
func (d *Dummy) SetLoopback(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loopback[name] = true
}

// ListPorts returns the currently seeded names.
func (d *Dummy) ListPorts() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.seeds))
	for name := range d.seeds {
		names = append(names, name)
	}
	return names, nil
}

// Open returns a fresh in-memory pipe for name.
func (d *Dummy) Open(name string, opts Options) (Port, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	if d.open[name] {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %s already open on dummy transport", ErrBus, name)
	}
	d.open[name] = true
	loop := d.loopback[name]
	lb := &loopback{d: d, name: name, loop: loop, inbound: make(chan []byte, 256)}
	d.ports[name] = lb
	d.mu.Unlock()

	return lb, nil
}

// loopback is a Port backed by an in-memory byte pipe. When loop is set,
// Write also feeds the pipe Read drains from.
type loopback struct {
	d       *Dummy
	name    string
	loop    bool
	inbound chan []byte
	rbuf    []byte
	closed  bool
	mu      sync.Mutex
}

func (l *loopback) Read(p []byte) (int, error) {
	l.mu.Lock()
	if len(l.rbuf) > 0 {
		n := copy(p, l.rbuf)
		l.rbuf = l.rbuf[n:]
		l.mu.Unlock()
		return n, nil
	}
	l.mu.Unlock()

	select {
	case chunk, ok := <-l.inbound:
		if !ok {
			return 0, io.EOF
		}
		l.mu.Lock()
		l.rbuf = append(l.rbuf, chunk...)
		n := copy(p, l.rbuf)
		l.rbuf = l.rbuf[n:]
		l.mu.Unlock()
		return n, nil
	case <-time.After(dummyPollInterval):
		return 0, nil
	}
}

func (l *loopback) Write(p []byte) (int, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	loop := l.loop
	l.mu.Unlock()

	if loop {
		cp := make([]byte, len(p))
		copy(cp, p)
		l.inbound <- cp
	}
	return len(p), nil
}

func (l *loopback) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.inbound)

	l.d.mu.Lock()
	delete(l.d.open, l.name)
	delete(l.d.ports, l.name)
	l.d.mu.Unlock()
	return nil
}

// InjectRead pushes bytes into the read side directly, simulating data
// arriving from the wire rather than from this session's own Write.
func (d *Dummy) InjectRead(p Port, data []byte) {
	lb, ok := p.(*loopback)
	if !ok {
		return
	}
	injectInto(lb, data)
}

// Inject looks up the currently open port registered under name and pushes
// data into its read side, for tests that only have the name a Transport
// consumer opened (not the Port value it returned).
func (d *Dummy) Inject(name string, data []byte) bool {
	d.mu.Lock()
	lb, ok := d.ports[name]
	d.mu.Unlock()
	if !ok {
		return false
	}
	injectInto(lb, data)
	return true
}

func injectInto(lb *loopback, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	lb.mu.Lock()
	closed := lb.closed
	lb.mu.Unlock()
	if closed {
		return
	}
	lb.inbound <- cp
}
