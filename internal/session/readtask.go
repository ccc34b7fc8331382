package session

import (
	"io"
	"time"

	"github.com/openserial/portbroker/internal/codec"
)

const readChunkSize = 4096

// runReadTask is the read-task state machine from spec.md §4.4.2: a port
// toggles between Reading and Paused on its read gate, decodes whatever it
// consumes through dec, forwards the raw chunk to every subscriber, and
// self-removes from OpenPorts on I/O failure or EOF.
func runReadTask(c *Core, h *handle, dec *codec.Decoder) {
	defer h.tasks.Done()

	state, changed := h.gate.GetAndChanged()
	buf := make([]byte, readChunkSize)
	var lastTs int64

	for {
		if state == Stop {
			select {
			case <-h.ctx.Done():
				return
			case <-changed:
				state, changed = h.gate.GetAndChanged()
			}
			continue
		}

		// Give a pending gate flip or cancellation priority over issuing
		// another blocking Read, so Stop is observed between chunks even
		// though a Read call in flight can't itself be interrupted.
		select {
		case <-h.ctx.Done():
			return
		case <-changed:
			state, changed = h.gate.GetAndChanged()
			continue
		default:
		}

		n, err := h.port.Read(buf)
		if h.ctx.Err() != nil {
			return
		}
		if err != nil {
			if err != io.EOF {
				h.addError()
				h.emit(Result{Err: &PacketError{Kind: ErrIncomingIO, Port: h.name, Err: err}})
			}
			c.terminate(h)
			return
		}
		if n == 0 {
			continue
		}

		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		h.addBytesReceived(n)

		c.forwardToSubscribers(h.name, chunk)

		fed := chunk
		for {
			line, ok, decErr := dec.Feed(fed)
			fed = nil
			if decErr != nil {
				h.addError()
				h.emit(Result{Err: &PacketError{Kind: ErrIncomingCodec, Port: h.name, Err: decErr}})
				dec.Reset()
				break
			}
			if !ok {
				break
			}
			lastTs = nextMillis(lastTs)
			h.emit(Result{Packet: Packet{
				Direction:   IncomingDirection(line),
				Port:        h.name,
				TimestampMs: lastTs,
			}})
		}
	}
}

// nextMillis returns a wall-clock millisecond timestamp that is always
// strictly greater than last, so a burst of lines decoded from one chunk
// still orders monotonically on a single session's stream.
func nextMillis(last int64) int64 {
	now := time.Now().UnixMilli()
	if now <= last {
		return last + 1
	}
	return now
}
