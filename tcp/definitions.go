package tcp

import (
	"errors"
	"math/bits"
)

var (
	errExpectedSYN = errors.New("tcp: expected SYN")
	errBadSegAck   = errors.New("tcp: ack outside send window")

	// ErrWouldBlock is returned by Write/Flush when the unacked queue has no
	// room for more data, or none has drained yet.
	ErrWouldBlock = errors.New("tcp: would block")
	// ErrNotConnected is returned by Close on a connection that has already
	// progressed past the states from which a local close is meaningful.
	ErrNotConnected = errors.New("tcp: not connected")
)

// Segment represents an incoming or outgoing TCP segment in sequence space.
// It intentionally omits header fields (ports, options, checksum) that
// belong to the wire codec in frame.go: Segment is the unit the Connection
// Engine reasons about, Frame is the unit the codec serialises.
type Segment struct {
	SEQ     Value // sequence number of the first octet; if SYN set, this is the ISN.
	ACK     Value // acknowledgement number, meaningful only if ACK flag set.
	DATALEN Size  // payload octets, excluding SYN/FIN phantom bytes.
	WND     Size  // advertised window.
	Flags   Flags
}

// LEN returns the length of the segment in sequence-space octets, counting
// one phantom octet each for SYN and FIN.
func (seg Segment) LEN() Size {
	add := Size(seg.Flags>>0) & 1 // FIN bit.
	add += Size(seg.Flags>>1) & 1 // SYN bit.
	return seg.DATALEN + add
}

// Last returns the sequence number of the segment's last octet.
func (seg Segment) Last() Value {
	l := seg.LEN()
	if l == 0 {
		return seg.SEQ
	}
	return Add(seg.SEQ, l) - 1
}

// Flags is the TCP control-bits bitmask (SYN, ACK, FIN, RST, ...).
type Flags uint16

const (
	FlagFIN Flags = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
	FlagURG
	FlagECE
	FlagCWR
	FlagNS
)

const flagMask = 0x01ff

const (
	synack = FlagSYN | FlagACK
	finack = FlagFIN | FlagACK
)

// HasAll checks if mask bits are all set in flags.
func (flags Flags) HasAll(mask Flags) bool { return flags&mask == mask }

// HasAny checks if one or more mask bits are set in flags.
func (flags Flags) HasAny(mask Flags) bool { return flags&mask != 0 }

// Mask returns flags with any non-flag bits cleared.
func (flags Flags) Mask() Flags { return flags & flagMask }

func (flags Flags) String() string {
	switch flags {
	case 0:
		return "[]"
	case synack:
		return "[SYN,ACK]"
	case finack:
		return "[FIN,ACK]"
	case FlagACK:
		return "[ACK]"
	case FlagSYN:
		return "[SYN]"
	case FlagFIN:
		return "[FIN]"
	case FlagRST:
		return "[RST]"
	}
	buf := make([]byte, 0, 2+3*bits.OnesCount16(uint16(flags)))
	buf = append(buf, '[')
	buf = flags.AppendFormat(buf)
	buf = append(buf, ']')
	return string(buf)
}

// AppendFormat appends a human readable flag list ("FIN,SYN,...") to b.
func (flags Flags) AppendFormat(b []byte) []byte {
	if flags == 0 {
		return b
	}
	const flaglen = 3
	const strflags = "FINSYNRSTPSHACKURGECECWRNS "
	var addcommas bool
	for flags != 0 {
		i := bits.TrailingZeros16(uint16(flags))
		if addcommas {
			b = append(b, ',')
		} else {
			addcommas = true
		}
		b = append(b, strflags[i*flaglen:i*flaglen+flaglen]...)
		flags &= ^(1 << i)
	}
	return b
}

// State enumerates the states a Connection progresses through. LISTEN and
// CLOSED have no representation here: per this engine's data model, a
// connection exists in the manager's map iff its state is one of the ones
// below, so "not present" stands in for both.
type State uint8

const (
	StateSynRcvd State = iota
	StateEstablished
	StateFinWait1
	StateFinWait2
	StateClosing
	StateTimeWait
	// StateCloseWait and StateLastAck are not in the distilled state list:
	// a peer-initiated FIN arriving before the local application calls
	// close would otherwise have nowhere correct to go. We add them,
	// mirroring RFC 793's full diagram, rather than collapsing the case.
	StateCloseWait
	StateLastAck
)

func (s State) String() string {
	switch s {
	case StateSynRcvd:
		return "SYN_RCVD"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFinWait1:
		return "FIN_WAIT_1"
	case StateFinWait2:
		return "FIN_WAIT_2"
	case StateClosing:
		return "CLOSING"
	case StateTimeWait:
		return "TIME_WAIT"
	case StateCloseWait:
		return "CLOSE_WAIT"
	case StateLastAck:
		return "LAST_ACK"
	default:
		return "STATE(?)"
	}
}

// IsClosing reports whether the connection has begun termination (local or
// remote) but has not yet reached TIME_WAIT.
func (s State) IsClosing() bool {
	return s == StateFinWait1 || s == StateFinWait2 || s == StateClosing ||
		s == StateCloseWait || s == StateLastAck
}

// CanSend reports whether the application may still enqueue new data.
func (s State) CanSend() bool {
	return s == StateEstablished || s == StateCloseWait
}
