package tcp

import "time"

// OnTick drives retransmission, new-data pacing and FIN emission, per §4.6.
// It is invoked periodically (recommended cadence <=100ms) for every live
// connection. It writes at most one segment into buf and returns its
// length, or (0, nil) if nothing needed sending this tick.
func (c *Connection) OnTick(buf []byte) (int, error) {
	if c.state == StateTimeWait {
		return 0, nil
	}

	nunacked := Sizeof(c.send.una, c.send.nxt)
	unsent := c.unacked.Buffered() - int(nunacked)
	if unsent < 0 {
		unsent = 0
	}

	var (
		seq        Value
		n          Size
		retransmit bool
		doSend     bool
	)

	oldest, found := c.oldestSendTime()
	waited := time.Duration(0)
	if found {
		waited = timeNow().Sub(oldest)
	}

	switch {
	case found && waited > time.Second && waited > (3*c.srtt)/2:
		seq = c.send.una
		n = Size(c.unacked.Buffered())
		if n > c.send.wnd {
			n = c.send.wnd
		}
		retransmit = true
		doSend = n > 0
	case unsent > 0:
		allowed := int(c.send.wnd) - int(nunacked)
		if allowed > 0 {
			seq = c.send.nxt
			m := unsent
			if m > allowed {
				m = allowed
			}
			n = Size(m)
			doSend = n > 0
		}
	}

	var flags Flags
	finNow := false
	if c.closed && !c.closedAtSet {
		// Emit the FIN at the next tick unconditionally, rather than only
		// when a data-carrying tick happens to find spare window: the
		// alternative leaves close() s connections hanging indefinitely
		// whenever there is nothing left to send.
		finNow = true
		flags |= FlagFIN
		if !doSend {
			seq = c.send.nxt
			n = 0
		}
	}

	if !doSend && !finNow {
		return 0, nil
	}

	segLen, err := c.WriteSegment(buf, seq, n, flags, retransmit)
	if err != nil {
		return 0, err
	}
	if finNow {
		c.closedAt = Add(seq, n)
		c.closedAtSet = true
	}
	return segLen, nil
}
