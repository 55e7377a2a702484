package tcp

// incomingBufSize bounds how many in-order bytes a Connection buffers ahead
// of the application, independent of recv.wnd (which per §4.3 starts out
// mirroring the peer's own SYN window and is not what outgoing segments
// advertise; they carry send.wnd).
const incomingBufSize = 4096

// localMSS is the Maximum Segment Size this engine reports in its SYN|ACK:
// the 1500-byte Ethernet-class MTU a TUN device is typically configured
// with, minus the fixed 20-byte IPv4 and TCP headers.
const localMSS = 1460

// AcceptSYN builds a new Connection in SYN_RCVD from an inbound SYN segment,
// per §4.3: ISS is assigned by the caller-supplied generator (see iss.go),
// send.wnd starts at a conservative fixed value until the peer's own first
// ACK reports its real window, and recv.* is seeded from the SYN itself,
// including recv.wnd mirroring the SYN's own advertised window.
// The returned Connection has not yet sent anything; the caller is
// responsible for emitting the SYN|ACK via EmitSynAck.
func AcceptSYN(localAddr, remoteAddr [4]byte, localPort, remotePort uint16, seg Segment, iss Value, mss uint16) (*Connection, error) {
	if !seg.Flags.HasAll(FlagSYN) {
		return nil, errExpectedSYN
	}
	c := &Connection{
		state:      StateSynRcvd,
		localAddr:  localAddr,
		remoteAddr: remoteAddr,
		localPort:  localPort,
		remotePort: remotePort,
		mss:        mss,
		srtt:       initialSRTT,
	}
	c.send = sendSpace{
		iss: iss,
		una: iss,
		nxt: Add(iss, 1), // SYN consumes one sequence number.
		wnd: 10,
	}
	c.recv = recvSpace{
		irs: seg.SEQ,
		nxt: Add(seg.SEQ, 1),
		wnd: seg.WND,
	}
	c.incoming.Buf = make([]byte, incomingBufSize)
	c.unacked.Buf = make([]byte, maxUnacked)
	return c, nil
}

// EmitSynAck writes the SYN|ACK segment that completes the handshake's
// second leg into buf, returning the datagram length. It carries the local
// MSS option; the engine emits no further options on any later segment.
func (c *Connection) EmitSynAck(buf []byte) (int, error) {
	var opts [optMSSLen]byte
	n, err := PutMSS(opts[:], localMSS)
	if err != nil {
		return 0, err
	}
	return c.writeSegmentOpts(buf, c.send.iss, 0, FlagSYN, false, opts[:n])
}
