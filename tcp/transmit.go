package tcp

import (
	"github.com/quadstack/tcpstack/ipv4"
	"github.com/quadstack/tcpstack/wire"
)

// WriteSegment is the single primitive that emits one outgoing segment,
// carrying at most maxBytes octets of unacked data starting at sequence seq,
// with the given control flags. It fills buf with a complete IPv4+TCP
// datagram (header checksum included) and returns the datagram's length.
// maxBytes is additionally clamped to the peer's advertised MSS, if one was
// observed at accept time.
//
// seq need not equal send.nxt: on_tick uses this both to send new data (seq
// == send.nxt) and to retransmit from send.una.
func (c *Connection) WriteSegment(buf []byte, seq Value, maxBytes Size, flags Flags, retransmit bool) (int, error) {
	return c.writeSegmentOpts(buf, seq, maxBytes, flags, retransmit, nil)
}

// writeSegmentOpts underlies WriteSegment and EmitSynAck, the latter
// carrying the local MSS option that accompanies the SYN|ACK.
func (c *Connection) writeSegmentOpts(buf []byte, seq Value, maxBytes Size, flags Flags, retransmit bool, opts []byte) (int, error) {
	if c.mss > 0 && maxBytes > Size(c.mss) {
		maxBytes = Size(c.mss)
	}
	offset := int(Sizeof(c.send.una, seq))
	var payload []byte
	if offset >= 0 && offset < c.unacked.Buffered() {
		avail := c.unacked.Buffered() - offset
		n := int(maxBytes)
		if n > avail {
			n = avail
		}
		if n > 0 {
			payload = make([]byte, n)
			if _, err := c.unacked.ReadAt(payload, int64(offset)); err != nil {
				payload = nil
			}
		}
	}

	seg := Segment{
		SEQ:     seq,
		ACK:     c.recv.nxt,
		WND:     c.send.wnd,
		DATALEN: Size(len(payload)),
		Flags:   flags | FlagACK,
	}

	headerLen := sizeHeaderTCP + len(opts)
	words := uint8(headerLen / 4)

	ifrm, err := ipv4.BuildReply(buf, c.localAddr, c.remoteAddr, 0, headerLen+len(payload))
	if err != nil {
		return 0, err
	}
	tfrm, err := NewFrame(ifrm.Payload()[:headerLen+len(payload)])
	if err != nil {
		return 0, err
	}
	tfrm.ClearHeader()
	tfrm.SetSourcePort(c.localPort)
	tfrm.SetDestinationPort(c.remotePort)
	tfrm.SetSegment(seg, words)
	tfrm.SetUrgentPtr(0)
	copy(tfrm.Options(), opts)
	copy(tfrm.Payload(), payload)

	var crc wire.CRC791
	ifrm.CRCWriteTCPPseudo(&crc)
	tfrm.SetCRC(tfrm.CalculateChecksum(&crc))

	last := Add(seq, seg.LEN())
	if LessThan(c.send.nxt, last) {
		c.send.nxt = last
	}
	if seg.LEN() > 0 {
		c.recordSend(seq, retransmit)
	}
	c.stats.BytesSent += uint64(len(payload))
	if retransmit {
		c.stats.Retransmits++
	}

	return ipv4.HeaderSize + headerLen + len(payload), nil
}

// writeBareACK emits an ACK-only segment, used both for unacceptable
// segments (§4.2) and as the ordinary post-receive acknowledgement.
func (c *Connection) writeBareACK(buf []byte) (int, error) {
	return c.WriteSegment(buf, c.send.nxt, 0, 0, false)
}
