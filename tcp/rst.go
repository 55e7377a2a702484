package tcp

import (
	"github.com/quadstack/tcpstack/ipv4"
	"github.com/quadstack/tcpstack/wire"
)

// RSTQueue is a small fixed-size queue of pending stateless RST responses.
// netio queues one when a SYN_RCVD connection receives a bad ACK (§4.7);
// segments for a quad with no matching connection get no RST. It is not safe
// for concurrent use; callers must synchronize access, normally the same
// lock guarding the connection map these RSTs were provoked by.
type RSTQueue struct {
	buf [4]rstEntry
	len uint8
}

type rstEntry struct {
	localAddr  [4]byte
	remoteAddr [4]byte
	remotePort uint16
	localPort  uint16
	seq        Value
	ack        Value
	flags      Flags
}

// Queue enqueues a RST response. It silently drops the entry if the queue is
// full: a peer flooding unmatched segments does not get an unbounded backlog
// of replies queued on its behalf.
func (q *RSTQueue) Queue(localAddr, remoteAddr [4]byte, remotePort, localPort uint16, seq, ack Value, flags Flags) {
	if q.len >= uint8(len(q.buf)) {
		return
	}
	entry := &q.buf[q.len]
	entry.localAddr = localAddr
	entry.remoteAddr = remoteAddr
	entry.remotePort = remotePort
	entry.localPort = localPort
	entry.seq = seq
	entry.ack = ack
	entry.flags = flags
	q.len++
}

// Pending returns the number of queued RST entries.
func (q *RSTQueue) Pending() int { return int(q.len) }

// Drain writes one pending RST, as a complete IPv4+TCP datagram, into buf.
// It returns the total datagram length written, or (0, nil) if the queue was
// empty. buf must be at least ipv4.HeaderSize+sizeHeaderTCP bytes.
func (q *RSTQueue) Drain(buf []byte, datagramID uint16) (int, error) {
	if q.len == 0 {
		return 0, nil
	}
	q.len--
	entry := &q.buf[q.len]

	ifrm, err := ipv4.BuildReply(buf, entry.localAddr, entry.remoteAddr, datagramID, sizeHeaderTCP)
	if err != nil {
		return 0, err
	}
	tfrm, err := NewFrame(ifrm.Payload()[:sizeHeaderTCP])
	if err != nil {
		return 0, err
	}
	tfrm.ClearHeader()
	tfrm.SetSourcePort(entry.localPort)
	tfrm.SetDestinationPort(entry.remotePort)
	tfrm.SetSegment(Segment{
		SEQ:   entry.seq,
		ACK:   entry.ack,
		Flags: entry.flags,
	}, 5)
	tfrm.SetUrgentPtr(0)

	var crc wire.CRC791
	ifrm.CRCWriteTCPPseudo(&crc)
	tfrm.SetCRC(tfrm.CalculateChecksum(&crc))

	return ipv4.HeaderSize + sizeHeaderTCP, nil
}
