package session

// runWriteTask is the write-task state machine from spec.md §4.4.3: it
// drains name's unbounded write queue in order, writes each payload to the
// transport, and emits the corresponding outgoing Packet. On cancellation
// it ends without draining further; on an I/O failure it emits a
// PacketError and self-removes from OpenPorts. Close and the read task's
// self-removal both go through terminate, which cancels the session before
// it closes the queue, so packets still buffered at that point can be
// dropped unwritten. The task also ends once the queue's channel closes.
func runWriteTask(c *Core, h *handle) {
	defer h.tasks.Done()

	var lastTs int64
	out := h.writeQ.Out()

	for {
		select {
		case <-h.ctx.Done():
			return
		case pkt, ok := <-out:
			if !ok {
				return
			}

			n, err := h.port.Write(pkt.Payload)
			if err != nil {
				h.addError()
				h.emit(Result{Err: &PacketError{Kind: ErrOutgoingIO, Port: h.name, Err: err}})
				c.terminate(h)
				return
			}

			h.addBytesSent(n)
			lastTs = nextMillis(lastTs)
			h.emit(Result{Packet: Packet{
				Direction:   OutgoingDirection(pkt.Payload, pkt.Origin),
				Port:        h.name,
				TimestampMs: lastTs,
			}})
		}
	}
}
