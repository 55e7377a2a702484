package tcp

// OnSegment processes one inbound segment against the connection's current
// state, per §4.5. It writes any reply (a bare ACK, in every path that
// reaches step 9) into buf and returns the reply's length. errBadSegAck is
// returned when a SYN_RCVD connection receives an ACK outside the window
// covering its SYN: the caller should queue a stateless RST for the quad and
// then discard this Connection (§4.7).
func (c *Connection) OnSegment(buf []byte, seg Segment, payload []byte) (replyLen int, readable, writable bool, err error) {
	if !acceptable(seg, c.recv.nxt, c.recv.wnd) {
		n, werr := c.writeBareACK(buf)
		return n, c.IsReadable(), c.state.CanSend(), werr
	}

	if seg.Flags.HasAny(FlagRST) {
		c.aborted = true
		return 0, true, false, nil
	}

	if !seg.Flags.HasAny(FlagACK) {
		if seg.Flags.HasAny(FlagSYN) {
			c.recv.nxt = Add(c.recv.nxt, 1)
		}
		return 0, c.IsReadable(), c.state.CanSend(), nil
	}

	if c.state == StateSynRcvd {
		if !ackCoversSYN(c.send, seg.ACK) {
			return 0, false, false, errBadSegAck
		}
		c.send.una = seg.ACK
		c.forgetAcked()
		c.state = StateEstablished
	}

	if ackAdvancesUna(c.send, seg.ACK) {
		acked := int(Sizeof(c.send.una, seg.ACK))
		if acked > 0 && acked <= c.unacked.Buffered() {
			c.unacked.ReadDiscard(acked)
		}
		c.send.una = seg.ACK
		c.forgetAcked()
	}

	if shouldUpdateSendWindow(c.send, seg) {
		c.send.wnd = seg.WND
		c.send.wl1 = seg.SEQ
		c.send.wl2 = seg.ACK
	}

	if c.closedAtSet && c.send.una == Add(c.closedAt, 1) {
		// Our own FIN has just been acknowledged.
		switch c.state {
		case StateFinWait1:
			c.state = StateFinWait2
		case StateClosing:
			c.state = StateTimeWait
		case StateLastAck:
			// RFC 793 routes LAST_ACK to CLOSED here; this engine has no
			// CLOSED representation of its own (see the State doc comment),
			// so TIME_WAIT doubles as "fully done" for a connection that
			// only ever needed to be removed from the map.
			c.state = StateTimeWait
		}
	}

	if seg.DATALEN > 0 && c.state.acceptsData() {
		c.acceptPayload(seg, payload)
	}

	if seg.Flags.HasAll(FlagFIN) {
		c.recv.nxt = Add(c.recv.nxt, 1)
		c.advanceOnPeerFin()
	}

	n, werr := c.writeBareACK(buf)
	return n, c.IsReadable(), c.state.CanSend(), werr
}

// acceptsData reports whether payload delivered in this state should be
// appended to incoming. Data is accepted until the peer's FIN has been
// received; the states reached after it (CLOSE_WAIT, LAST_ACK, CLOSING,
// TIME_WAIT) reject further payload.
func (s State) acceptsData() bool {
	switch s {
	case StateSynRcvd, StateEstablished, StateFinWait1, StateFinWait2:
		return true
	default:
		return false
	}
}

// acceptPayload implements §4.5 step 7: drop bytes already delivered,
// append the rest to incoming.
func (c *Connection) acceptPayload(seg Segment, payload []byte) {
	if LessThan(c.recv.nxt, seg.SEQ) {
		// Starts past what has been delivered contiguously: an out-of-order
		// segment, window-acceptable but not appendable without reassembly
		// (a documented non-goal), so it is dropped and counted as such.
		c.stats.OutOfOrderDropped += uint64(len(payload))
		return
	}
	unreadOffset := int(Sizeof(seg.SEQ, c.recv.nxt))
	if unreadOffset >= len(payload) {
		c.stats.DuplicateAcks++
		return // entirely duplicate.
	}
	fresh := payload[unreadOffset:]
	if len(fresh) > c.incoming.Free() {
		// Spec-documented drop-on-overflow behaviour: out-of-order/overflow
		// bytes within the window are discarded rather than queued, matching
		// the bounded-reassembly design this engine carries forward.
		c.stats.OutOfOrderDropped += uint64(len(fresh))
		return
	}
	n, err := c.incoming.Write(fresh)
	if err != nil {
		return
	}
	c.recv.nxt = Add(c.recv.nxt, Size(n))
	c.stats.BytesReceived += uint64(n)
}

// advanceOnPeerFin applies the state transition triggered by a peer FIN,
// including the CLOSE_WAIT addition noted in the data model.
func (c *Connection) advanceOnPeerFin() {
	switch c.state {
	case StateSynRcvd, StateEstablished:
		c.state = StateCloseWait
	case StateFinWait1:
		c.state = StateClosing
	case StateFinWait2:
		c.state = StateTimeWait
	default:
		// CLOSE_WAIT, LAST_ACK, CLOSING, TIME_WAIT: FIN already accounted for.
	}
}

// ackCoversSYN reports whether ack lies in (send.una-1, send.nxt+1), i.e. it
// acknowledges the SYN occupying send.una without acknowledging anything
// beyond what has actually been sent.
func ackCoversSYN(send sendSpace, ack Value) bool {
	lo := Sub(send.una, 1)
	hi := Add(send.nxt, 1)
	return InWindow(lo, ack, hi)
}

// ackAdvancesUna reports whether ack is a new, in-range acknowledgement:
// send.una < ack <= send.nxt (wrap-aware).
func ackAdvancesUna(send sendSpace, ack Value) bool {
	return LessThan(send.una, ack) && !LessThan(send.nxt, ack)
}

// shouldUpdateSendWindow implements RFC 793 §3.9's rule for accepting a
// peer-advertised window: the ack must fall in [send.una, send.nxt], and the
// segment must be newer than whichever previous segment last set the window
// (by sequence number, breaking ties by ack number).
func shouldUpdateSendWindow(send sendSpace, seg Segment) bool {
	if LessThan(seg.ACK, send.una) || LessThan(send.nxt, seg.ACK) {
		return false
	}
	return LessThan(send.wl1, seg.SEQ) || (send.wl1 == seg.SEQ && !LessThan(seg.ACK, send.wl2))
}
