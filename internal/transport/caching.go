package transport

import "sync"

// Caching wraps a Transport and remembers the last successful ListPorts
// result, serving it back when the inner call fails. This mirrors the
// teacher's Scanner.GetCached behavior (SPEC_FULL.md §7): a transient
// enumeration failure — a USB controller hiccup, a busy driver — no longer
// blanks out list_managed's snapshot.
type Caching struct {
	inner Transport

	mu       sync.Mutex
	lastGood []string
	haveGood bool
}

// NewCaching wraps inner.
func NewCaching(inner Transport) *Caching {
	return &Caching{inner: inner}
}

// ListPorts defers to the inner transport; on failure, it returns the most
// recent successful result instead, if one exists.
func (c *Caching) ListPorts() ([]string, error) {
	names, err := c.inner.ListPorts()
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		c.lastGood = append([]string(nil), names...)
		c.haveGood = true
		return names, nil
	}
	if c.haveGood {
		return append([]string(nil), c.lastGood...), nil
	}
	return nil, err
}

// Open defers to the inner transport unchanged.
func (c *Caching) Open(name string, opts Options) (Port, error) {
	return c.inner.Open(name, opts)
}
