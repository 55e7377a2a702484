package tcp

import (
	"encoding/binary"

	"github.com/quadstack/tcpstack/wire"
)

// OptionKind identifies a TCP option. This engine only parses and emits the
// Maximum Segment Size option; every other kind is walked over (so its
// presence does not break parsing of options after it) but never acted on.
type OptionKind uint8

const (
	optEnd OptionKind = iota
	optNop
	// OptMaxSegmentSize is the only option kind this engine interprets.
	OptMaxSegmentSize
)

const optMSSLen = 4 // kind(1) + length(1) + value(2)

// PutMSS writes a Maximum Segment Size option into dst, returning the number
// of bytes written (always optMSSLen).
func PutMSS(dst []byte, mss uint16) (int, error) {
	if len(dst) < optMSSLen {
		return 0, wire.ErrShortBuffer
	}
	dst[0] = byte(OptMaxSegmentSize)
	dst[1] = optMSSLen
	binary.BigEndian.PutUint16(dst[2:4], mss)
	return optMSSLen, nil
}

// ForEachOption walks the TLV option list in opts, invoking fn for every
// recognised option kind. Unknown or ignored kinds are skipped without
// invoking fn, so a segment carrying timestamps or SACK-permitted still
// parses correctly up to and past those bytes.
func ForEachOption(opts []byte, fn func(kind OptionKind, data []byte) error) error {
	off := 0
	for off < len(opts) && opts[off] != byte(optEnd) {
		kind := OptionKind(opts[off])
		off++
		if kind == optNop {
			continue
		}
		if len(opts[off:]) < 1 {
			return wire.ErrShortBuffer
		}
		size := int(opts[off]) // total option length, kind and length bytes included.
		off++
		dataLen := size - 2
		if dataLen < 0 || len(opts[off:]) < dataLen {
			return wire.ErrShortBuffer
		}
		if kind == OptMaxSegmentSize && dataLen != 2 {
			return wire.ErrShortBuffer
		}
		if kind == OptMaxSegmentSize {
			if err := fn(kind, opts[off:off+dataLen]); err != nil {
				return err
			}
		}
		off += dataLen
	}
	return nil
}

// ParseMSS scans opts for a Maximum Segment Size option, returning its value
// and true if present.
func ParseMSS(opts []byte) (mss uint16, ok bool) {
	ForEachOption(opts, func(kind OptionKind, data []byte) error {
		if kind == OptMaxSegmentSize {
			mss = binary.BigEndian.Uint16(data)
			ok = true
		}
		return nil
	})
	return mss, ok
}
