package watch

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/openserial/portbroker/internal/transport"
)

// DefaultInterval is used when NewNative is given a non-positive interval,
// matching the teacher scanner's WatchPorts default.
const DefaultInterval = 5 * time.Second

// Native polls a transport's ListPorts on a ticker and diffs consecutive
// snapshots into PortEvents, generalizing the teacher's
// Scanner.WatchPorts(intervalSeconds, callback) to a channel-based Watcher.
type Native struct {
	events chan PortEvent
	stop   chan struct{}
	once   sync.Once
	log    *log.Logger
}

// NewNative starts polling t every interval (DefaultInterval if <= 0).
func NewNative(t transport.Transport, interval time.Duration, logger *log.Logger) *Native {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	n := &Native{
		events: make(chan PortEvent),
		stop:   make(chan struct{}),
		log:    logger,
	}
	go n.run(t, interval)
	return n
}

func (n *Native) run(t transport.Transport, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := make(map[string]struct{})
	for {
		select {
		case <-n.stop:
			close(n.events)
			return
		case <-ticker.C:
			current, err := t.ListPorts()
			if err != nil {
				n.log.Warn("watch: list ports failed", "err", err)
				continue
			}

			currentSet := make(map[string]struct{}, len(current))
			for _, name := range current {
				currentSet[name] = struct{}{}
			}

			for name := range currentSet {
				if _, ok := last[name]; !ok {
					n.deliver(PortEvent{Kind: Added, Name: name})
				}
			}
			for name := range last {
				if _, ok := currentSet[name]; !ok {
					n.deliver(PortEvent{Kind: Removed, Name: name})
				}
			}

			last = currentSet
		}
	}
}

func (n *Native) deliver(ev PortEvent) {
	select {
	case n.events <- ev:
	case <-n.stop:
	}
}

// Events returns the channel of add/remove notifications.
func (n *Native) Events() <-chan PortEvent {
	return n.events
}

// Close stops the polling loop. Safe to call more than once.
func (n *Native) Close() error {
	n.once.Do(func() { close(n.stop) })
	return nil
}
