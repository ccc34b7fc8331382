package watch

// Noop never emits anything; it backs deployments with watching disabled.
type Noop struct {
	events chan PortEvent
}

// NewNoop returns a Watcher whose Events channel never fires.
func NewNoop() *Noop {
	return &Noop{events: make(chan PortEvent)}
}

func (n *Noop) Events() <-chan PortEvent { return n.events }
func (n *Noop) Close() error             { return nil }
