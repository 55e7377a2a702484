package tcp

import (
	"time"

	"github.com/quadstack/tcpstack/internal"
)

// maxUnacked bounds the number of bytes the application may have in flight
// at once. Writes beyond this return ErrWouldBlock.
const maxUnacked = 1024

// initialSRTT is the smoothed round-trip estimate a Connection starts with,
// before any segment has been acknowledged.
const initialSRTT = 60 * time.Second

// sendSpace tracks SND.* per RFC 793 §3.2.
type sendSpace struct {
	iss Value // initial send sequence number.
	una Value // oldest unacknowledged sequence number.
	nxt Value // next sequence number to send.
	wnd Size  // peer-advertised window.
	up  bool  // urgent pointer in use. Never set: urgent data is a non-goal.
	wl1 Value // seg.seq of the last segment used to update send.wnd.
	wl2 Value // seg.ack of the last segment used to update send.wnd.
}

// recvSpace tracks RCV.* per RFC 793 §3.2.
type recvSpace struct {
	irs Value // initial receive sequence number.
	nxt Value // next expected sequence number.
	wnd Size  // receive window used by the acceptability test; outgoing segments carry send.wnd.
	up  bool  // urgent pointer in use. Never set.
}

// sendSample is one outstanding segment's send timestamp, keyed by the
// sequence number of its first octet. A retransmission overwrites the entry
// for its starting sequence rather than adding a new one, which is how Karn's
// rule is enforced here: the overwritten timestamp is the retransmit's, so
// when the segment is finally acknowledged the RTT sample reflects the last
// transmission, not the original (lost) one, and a flag marks it unusable for
// the SRTT estimator.
type sendSample struct {
	seq      Value
	sentAt   time.Time
	retransmitted bool
}

// Connection is the per-four-tuple TCP engine: state machine, sequence
// spaces, retransmission timers and the incoming/unacked byte queues. All
// methods assume the caller holds whatever lock serializes access to this
// Connection (normally the owning manager's lock); Connection itself does no
// synchronization.
type Connection struct {
	state State

	send sendSpace
	recv recvSpace

	localAddr, remoteAddr [4]byte
	localPort, remotePort uint16

	incoming internal.Ring // in-order bytes not yet read by the application.
	unacked  internal.Ring // bytes handed to the engine, not yet acked.

	closed    bool
	closedAt  Value
	closedAtSet bool
	aborted   bool // peer sent RST; manager should discard this Connection.

	sendTimes []sendSample
	srtt      time.Duration

	mss uint16 // peer-advertised MSS, 0 if never observed.

	stats Stats
}

// Stats accumulates counters describing a Connection's lifetime activity.
// The netio package polls these to feed Prometheus.
type Stats struct {
	BytesSent          uint64
	BytesReceived      uint64
	Retransmits        uint64
	OutOfOrderDropped  uint64
	DuplicateAcks      uint64
}

// LocalAddr returns the local endpoint address and port.
func (c *Connection) LocalAddr() ([4]byte, uint16) { return c.localAddr, c.localPort }

// RemoteAddr returns the remote endpoint address and port.
func (c *Connection) RemoteAddr() ([4]byte, uint16) { return c.remoteAddr, c.remotePort }

// State returns the connection's current state.
func (c *Connection) State() State { return c.state }

// Stats returns a snapshot of the connection's activity counters.
func (c *Connection) Stats() Stats { return c.stats }

// IsReadable reports whether a Read would return data or EOF without
// blocking: either unread bytes are buffered, or the peer's FIN has already
// advanced recv.nxt past all data (the state is one that is only reached
// after a peer FIN: CLOSE_WAIT, LAST_ACK, CLOSING or TIME_WAIT).
func (c *Connection) IsReadable() bool {
	return c.incoming.Buffered() > 0 || c.peerClosed()
}

func (c *Connection) peerClosed() bool {
	switch c.state {
	case StateCloseWait, StateLastAck, StateClosing, StateTimeWait:
		return true
	default:
		return false
	}
}

// IsWriteClosed reports whether the application may no longer enqueue data.
func (c *Connection) IsWriteClosed() bool { return !c.state.CanSend() }

// Aborted reports whether the peer sent a RST. The manager should remove an
// aborted Connection from its map without further ceremony. A SYN_RCVD ACK
// failure does not set it: OnSegment reports that case as errBadSegAck.
func (c *Connection) Aborted() bool { return c.aborted }

// Close signals that the application has finished sending. It transitions
// SYN_RCVD/ESTABLISHED into FIN_WAIT_1 and CLOSE_WAIT into LAST_ACK; the FIN
// itself is emitted by the next OnTick regardless of whether the window
// happens to have room, rather than waiting for a tick that finds room.
func (c *Connection) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	switch c.state {
	case StateSynRcvd, StateEstablished:
		c.state = StateFinWait1
	case StateCloseWait:
		c.state = StateLastAck
	default:
		return ErrNotConnected
	}
	return nil
}

// Write appends p to the unacked queue for eventual transmission. It never
// blocks: if the queue lacks room for all of p, it writes as much as fits
// and returns ErrWouldBlock alongside the partial count.
func (c *Connection) Write(p []byte) (int, error) {
	if !c.state.CanSend() {
		return 0, ErrNotConnected
	}
	free := maxUnacked - c.unacked.Buffered()
	if free <= 0 {
		return 0, ErrWouldBlock
	}
	want := len(p)
	if len(p) > free {
		p = p[:free]
	}
	n, err := c.unacked.Write(p)
	if err != nil {
		return n, err
	}
	if n < want {
		return n, ErrWouldBlock
	}
	return n, nil
}

// Flush reports whether all previously-written bytes have been
// acknowledged. Per the façade contract this is polled by a non-blocking
// Stream.Flush; a blocking variant waits on the same condition externally.
func (c *Connection) Flush() error {
	if c.unacked.Buffered() > 0 {
		return ErrWouldBlock
	}
	return nil
}

// Read copies buffered in-order bytes into buf, returning the number of
// bytes copied. It returns (0, nil) rather than io.EOF when the peer has
// closed and no more data remains: the façade's blocking Read distinguishes
// "no data yet" from "peer closed" via IsReadable/peerClosed, matching a
// stream read that returns 0 on orderly close.
func (c *Connection) Read(buf []byte) (int, error) {
	if c.incoming.Buffered() == 0 {
		return 0, nil
	}
	n, err := c.incoming.Read(buf)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (c *Connection) recordSend(seq Value, retransmit bool) {
	for i := range c.sendTimes {
		if c.sendTimes[i].seq == seq {
			c.sendTimes[i].sentAt = timeNow()
			c.sendTimes[i].retransmitted = retransmit
			return
		}
	}
	c.sendTimes = append(c.sendTimes, sendSample{seq: seq, sentAt: timeNow(), retransmitted: retransmit})
}

// forgetAcked drops every sendTimes entry now below send.una, updating srtt
// from any entry whose sample was never retransmitted (Karn's rule).
func (c *Connection) forgetAcked() {
	kept := c.sendTimes[:0]
	for _, s := range c.sendTimes {
		if LessThan(s.seq, c.send.una) {
			if !s.retransmitted {
				c.updateSRTT(timeNow().Sub(s.sentAt))
			}
			continue
		}
		kept = append(kept, s)
	}
	c.sendTimes = kept
}

// updateSRTT applies the standard EWMA with alpha = 0.8.
func (c *Connection) updateSRTT(sample time.Duration) {
	const alpha = 0.8
	c.srtt = time.Duration(alpha*float64(c.srtt) + (1-alpha)*float64(sample))
}

// oldestSendTime returns the send time of the oldest outstanding
// (un-acked) segment and whether one exists.
func (c *Connection) oldestSendTime() (time.Time, bool) {
	var oldest time.Time
	found := false
	for _, s := range c.sendTimes {
		if LessThan(s.seq, c.send.una) {
			continue // already acked, stale entry pending cleanup.
		}
		if !found || s.sentAt.Before(oldest) {
			oldest = s.sentAt
			found = true
		}
	}
	return oldest, found
}

// timeNow is a seam so on_tick-driven timers can be exercised deterministically
// in tests without relying on the wall clock directly.
var timeNow = time.Now
