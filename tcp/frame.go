// Package tcp implements the RFC 793 connection state machine: segment
// acceptability, transmission, reception and retransmission timing. It is
// agnostic of how segments reach the wire; see netio for that.
package tcp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/quadstack/tcpstack/wire"
)

const sizeHeaderTCP = 20

var errShortBufferTCP = errors.New("tcp: buffer shorter than header")

// NewFrame returns a Frame viewing buf. An error is returned if buf is
// smaller than the fixed 20-byte header. Callers must still call
// ValidateSize before trusting HeaderLength-derived slices.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeaderTCP {
		return Frame{}, errShortBufferTCP
	}
	return Frame{buf: buf}, nil
}

// Frame is a view over a raw TCP segment (header plus options plus payload).
// It never copies buf.
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice the Frame was created with.
func (tfrm Frame) RawData() []byte { return tfrm.buf }

// SourcePort identifies the sending port of the segment. Must be non-zero.
func (tfrm Frame) SourcePort() uint16     { return binary.BigEndian.Uint16(tfrm.buf[0:2]) }
func (tfrm Frame) SetSourcePort(p uint16) { binary.BigEndian.PutUint16(tfrm.buf[0:2], p) }

// DestinationPort identifies the receiving port of the segment. Must be non-zero.
func (tfrm Frame) DestinationPort() uint16 { return binary.BigEndian.Uint16(tfrm.buf[2:4]) }
func (tfrm Frame) SetDestinationPort(p uint16) {
	binary.BigEndian.PutUint16(tfrm.buf[2:4], p)
}

// Seq returns the sequence number of the first data octet in this segment,
// or the ISN if SYN is set.
func (tfrm Frame) Seq() Value     { return Value(binary.BigEndian.Uint32(tfrm.buf[4:8])) }
func (tfrm Frame) SetSeq(v Value) { binary.BigEndian.PutUint32(tfrm.buf[4:8], uint32(v)) }

// Ack is the next sequence number the sender expects to receive, meaningful
// only when the ACK flag is set.
func (tfrm Frame) Ack() Value     { return Value(binary.BigEndian.Uint32(tfrm.buf[8:12])) }
func (tfrm Frame) SetAck(v Value) { binary.BigEndian.PutUint32(tfrm.buf[8:12], uint32(v)) }

// OffsetAndFlags returns the data-offset (in 32-bit words) and control-bits
// fields packed into bytes 12-13.
func (tfrm Frame) OffsetAndFlags() (offset uint8, flags Flags) {
	v := binary.BigEndian.Uint16(tfrm.buf[12:14])
	return uint8(v >> 12), Flags(v).Mask()
}

func (tfrm Frame) SetOffsetAndFlags(offset uint8, flags Flags) {
	v := uint16(offset)<<12 | uint16(flags.Mask())
	binary.BigEndian.PutUint16(tfrm.buf[12:14], v)
}

// HeaderLength uses the offset field to calculate the header's total length
// in bytes, options included. Performs no validation.
func (tfrm Frame) HeaderLength() int {
	offset, _ := tfrm.OffsetAndFlags()
	return 4 * int(offset)
}

func (tfrm Frame) WindowSize() uint16     { return binary.BigEndian.Uint16(tfrm.buf[14:16]) }
func (tfrm Frame) SetWindowSize(v uint16) { binary.BigEndian.PutUint16(tfrm.buf[14:16], v) }
func (tfrm Frame) CRC() uint16            { return binary.BigEndian.Uint16(tfrm.buf[16:18]) }
func (tfrm Frame) SetCRC(cs uint16)       { binary.BigEndian.PutUint16(tfrm.buf[16:18], cs) }
func (tfrm Frame) UrgentPtr() uint16      { return binary.BigEndian.Uint16(tfrm.buf[18:20]) }
func (tfrm Frame) SetUrgentPtr(up uint16) { binary.BigEndian.PutUint16(tfrm.buf[18:20], up) }

// Payload returns the segment's data octets, not including options. Call
// ValidateSize first: a lying offset field can otherwise panic.
func (tfrm Frame) Payload() []byte { return tfrm.buf[tfrm.HeaderLength():] }

// Options returns the TCP option buffer, which may be zero length. Call
// ValidateSize first to avoid a panic.
func (tfrm Frame) Options() []byte { return tfrm.buf[sizeHeaderTCP:tfrm.HeaderLength()] }

// ClearHeader zeros the fixed (non-option) portion of the header.
func (tfrm Frame) ClearHeader() {
	for i := range tfrm.buf[:sizeHeaderTCP] {
		tfrm.buf[i] = 0
	}
}

// Segment returns the Segment representation of the header's sequencing
// fields, given the already-known payload size.
func (tfrm Frame) Segment(payloadSize int) Segment {
	if payloadSize > math.MaxInt32 {
		panic("tcp: payload size overflow")
	}
	_, flags := tfrm.OffsetAndFlags()
	return Segment{
		SEQ:     tfrm.Seq(),
		ACK:     tfrm.Ack(),
		WND:     Size(tfrm.WindowSize()),
		DATALEN: Size(payloadSize),
		Flags:   flags,
	}
}

// SetSegment sets the sequence, acknowledgement, offset, window and flag
// fields of the header from seg. offset is expressed in 32-bit words, 5
// being the minimum (no options).
func (tfrm Frame) SetSegment(seg Segment, offset uint8) {
	if offset >= 1<<4 {
		panic("tcp: header offset too large")
	} else if seg.WND > math.MaxUint16 {
		panic("tcp: window overflow")
	}
	tfrm.SetSeq(seg.SEQ)
	tfrm.SetAck(seg.ACK)
	tfrm.SetOffsetAndFlags(offset, seg.Flags)
	tfrm.SetWindowSize(uint16(seg.WND))
}

// ValidateSize checks the frame's declared header length against the buffer
// backing it, returning a non-nil error describing the first inconsistency.
func (tfrm Frame) ValidateSize() error {
	off := tfrm.HeaderLength()
	if off < sizeHeaderTCP {
		return errors.New("tcp: header offset smaller than minimum")
	}
	if off > len(tfrm.buf) {
		return errors.New("tcp: header offset exceeds buffer")
	}
	return nil
}

// ValidateExceptCRC runs ValidateSize and rejects segments with a zero
// source or destination port.
func (tfrm Frame) ValidateExceptCRC() error {
	if err := tfrm.ValidateSize(); err != nil {
		return err
	}
	if tfrm.DestinationPort() == 0 {
		return wire.ErrZeroDestination
	}
	if tfrm.SourcePort() == 0 {
		return wire.ErrZeroSource
	}
	return nil
}

// CalculateChecksum computes the TCP checksum given a CRC791 already primed
// with the IPv4 pseudo-header (see ipv4.Frame.CRCWriteTCPPseudo). The TUN
// device never sees an Ethernet/IP checksum offload engine, so this codec
// must compute it itself for every outgoing segment.
func (tfrm Frame) CalculateChecksum(crc *wire.CRC791) uint16 {
	return wire.NeverZeroChecksum(crc.PayloadSum16(tfrm.buf))
}

func (tfrm Frame) String() string {
	seg := tfrm.Segment(len(tfrm.Payload()))
	return fmt.Sprintf("TCP :%d -> :%d %s", tfrm.SourcePort(), tfrm.DestinationPort(), seg.String())
}

func (seg Segment) String() string {
	return fmt.Sprintf("<SEQ=%d><ACK=%d><WND=%d>%s", seg.SEQ, seg.ACK, seg.WND, seg.Flags.String())
}
