// Package ipv4 implements the IPv4 half of the segment codec: parsing an
// inbound datagram into a header view plus payload, and building an outbound
// datagram with addresses swapped relative to the segment that triggered it.
// It does not implement TCP semantics; see the tcp package for that.
package ipv4

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"

	"github.com/quadstack/tcpstack/wire"
)

const sizeHeader = 20

var (
	errShortBuffer = errors.New("ipv4: buffer shorter than header")
	errBadTL       = errors.New("ipv4: total length field inconsistent with buffer")
	errBadIHL      = errors.New("ipv4: IHL field < 5")
	errBadVersion  = errors.New("ipv4: version field != 4")
)

// NewFrame returns a new Frame with data set to buf. An error is returned if
// the buffer is smaller than the fixed 20-byte header. Callers should still
// call ValidateSize before reading Payload/Options to avoid a panic on a
// header that lies about its own length.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeader {
		return Frame{}, errShortBuffer
	}
	return Frame{buf: buf}, nil
}

// Frame is a view over a raw IPv4 datagram. It never copies buf.
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice the Frame was created with.
func (ifrm Frame) RawData() []byte { return ifrm.buf }

func (ifrm Frame) ihl() uint8     { return ifrm.buf[0] & 0xf }
func (ifrm Frame) version() uint8 { return ifrm.buf[0] >> 4 }

// HeaderLength returns the length of the IPv4 header, including options, as
// derived from the IHL field.
func (ifrm Frame) HeaderLength() int { return int(ifrm.ihl()) * 4 }

// SetVersionAndIHL sets the version (always 4 for this codec) and IHL fields.
func (ifrm Frame) SetVersionAndIHL(version, ihl uint8) { ifrm.buf[0] = version<<4 | ihl&0xf }

func (ifrm Frame) ToS() wire.ToS      { return wire.ToS(ifrm.buf[1]) }
func (ifrm Frame) SetToS(t wire.ToS)  { ifrm.buf[1] = byte(t) }
func (ifrm Frame) TotalLength() uint16 {
	return binary.BigEndian.Uint16(ifrm.buf[2:4])
}
func (ifrm Frame) SetTotalLength(tl uint16) { binary.BigEndian.PutUint16(ifrm.buf[2:4], tl) }

func (ifrm Frame) ID() uint16            { return binary.BigEndian.Uint16(ifrm.buf[4:6]) }
func (ifrm Frame) SetID(id uint16)       { binary.BigEndian.PutUint16(ifrm.buf[4:6], id) }
func (ifrm Frame) Flags() wire.IPv4Flags { return wire.IPv4Flags(binary.BigEndian.Uint16(ifrm.buf[6:8])) }
func (ifrm Frame) SetFlags(f wire.IPv4Flags) {
	binary.BigEndian.PutUint16(ifrm.buf[6:8], uint16(f))
}

func (ifrm Frame) TTL() uint8     { return ifrm.buf[8] }
func (ifrm Frame) SetTTL(ttl uint8) { ifrm.buf[8] = ttl }

// Protocol is the upper-layer protocol field. TCP is wire.IPProtoTCP (6).
func (ifrm Frame) Protocol() wire.IPProto       { return wire.IPProto(ifrm.buf[9]) }
func (ifrm Frame) SetProtocol(p wire.IPProto)   { ifrm.buf[9] = uint8(p) }

func (ifrm Frame) CRC() uint16          { return binary.BigEndian.Uint16(ifrm.buf[10:12]) }
func (ifrm Frame) SetCRC(cs uint16)     { binary.BigEndian.PutUint16(ifrm.buf[10:12], cs) }

// CalculateHeaderCRC computes the IPv4 header checksum (over the header
// only, CRC field zeroed).
func (ifrm Frame) CalculateHeaderCRC() uint16 {
	var crc wire.CRC791
	crc.WriteEven(ifrm.buf[0:10])
	crc.WriteEven(ifrm.buf[12:20])
	return wire.NeverZeroChecksum(crc.Sum16())
}

// CRCWriteTCPPseudo feeds the IPv4-TCP pseudo-header (RFC 793 §3.1) into crc,
// ahead of the TCP header and payload, to compute the TCP checksum.
func (ifrm Frame) CRCWriteTCPPseudo(crc *wire.CRC791) {
	crc.WriteEven(ifrm.SourceAddr()[:])
	crc.WriteEven(ifrm.DestinationAddr()[:])
	crc.AddUint16(ifrm.TotalLength() - uint16(ifrm.HeaderLength()))
	crc.AddUint16(uint16(ifrm.Protocol()))
}

// SourceAddr returns a pointer into buf holding the source IPv4 address.
func (ifrm Frame) SourceAddr() *[4]byte { return (*[4]byte)(ifrm.buf[12:16]) }

// DestinationAddr returns a pointer into buf holding the destination IPv4 address.
func (ifrm Frame) DestinationAddr() *[4]byte { return (*[4]byte)(ifrm.buf[16:20]) }

// Payload returns the datagram's payload, i.e. everything past the header up
// to TotalLength. Call ValidateSize first: this indexes using header fields
// without bounds checks.
func (ifrm Frame) Payload() []byte {
	off := ifrm.HeaderLength()
	l := ifrm.TotalLength()
	return ifrm.buf[off:l]
}

// ClearHeader zeros the fixed (non-option) portion of the header.
func (ifrm Frame) ClearHeader() {
	for i := range ifrm.buf[:sizeHeader] {
		ifrm.buf[i] = 0
	}
}

// ValidateSize checks that the header's length fields are consistent with
// the buffer backing the frame, returning a non-nil error describing the
// first inconsistency found.
func (ifrm Frame) ValidateSize() error {
	ihl := ifrm.ihl()
	tl := ifrm.TotalLength()
	if ihl < 5 {
		return errBadIHL
	}
	if int(tl) < ifrm.HeaderLength() || int(tl) > len(ifrm.buf) {
		return errBadTL
	}
	if ifrm.version() != 4 {
		return errBadVersion
	}
	return nil
}

func (ifrm Frame) String() string {
	src := netip.AddrFrom4(*ifrm.SourceAddr())
	dst := netip.AddrFrom4(*ifrm.DestinationAddr())
	return fmt.Sprintf("IP %s SRC=%s DST=%s LEN=%d TTL=%d ID=%d", ifrm.Protocol(), src, dst, ifrm.TotalLength(), ifrm.TTL(), ifrm.ID())
}

// BuildReply clears and fills the 20-byte IPv4 header at the start of buf for
// a reply datagram: srcAddr, dstAddr and id written as given (callers pass
// the local address as srcAddr, which swaps them relative to inbound),
// protocol TCP, TTL 64, and a freshly computed header checksum. payloadLen is the
// length, in bytes, of the TCP segment (header + data) following the IPv4
// header. BuildReply does not resize buf; the caller must ensure
// len(buf) >= sizeHeader+payloadLen.
func BuildReply(buf []byte, srcAddr, dstAddr [4]byte, id uint16, payloadLen int) (Frame, error) {
	ifrm, err := NewFrame(buf)
	if err != nil {
		return Frame{}, err
	}
	ifrm.ClearHeader()
	ifrm.SetVersionAndIHL(4, 5)
	ifrm.SetToS(0)
	ifrm.SetTotalLength(uint16(sizeHeader + payloadLen))
	ifrm.SetID(id)
	ifrm.SetFlags(0)
	ifrm.SetTTL(64)
	ifrm.SetProtocol(wire.IPProtoTCP)
	*ifrm.SourceAddr() = srcAddr
	*ifrm.DestinationAddr() = dstAddr
	ifrm.SetCRC(ifrm.CalculateHeaderCRC())
	return ifrm, nil
}

// HeaderSize is the fixed size, in bytes, of an IPv4 header without options.
// This codec never emits or expects options.
const HeaderSize = sizeHeader
