package wire

import "testing"

func TestCRC791KnownSum(t *testing.T) {
	// Classic RFC 1071 example: 0x0001 0xf203 0xf4f5 0xf6f7.
	var c CRC791
	c.AddUint16(0x0001)
	c.AddUint16(0xf203)
	c.AddUint16(0xf4f5)
	c.AddUint16(0xf6f7)
	if got := c.Sum16(); got != 0x220d {
		t.Errorf("Sum16() = %#04x, want 0x220d", got)
	}
}

func TestCRC791WriteEvenMatchesAddUint16(t *testing.T) {
	var a, b CRC791
	a.AddUint16(0x1234)
	a.AddUint16(0x5678)
	b.WriteEven([]byte{0x12, 0x34, 0x56, 0x78})
	if a.Sum16() != b.Sum16() {
		t.Errorf("WriteEven sum %#04x != AddUint16 sum %#04x", b.Sum16(), a.Sum16())
	}
}

func TestCRC791PayloadSum16OddLength(t *testing.T) {
	var a CRC791
	full := a.PayloadSum16([]byte{0x12, 0x34, 0x56})
	var b CRC791
	b.WriteEven([]byte{0x12, 0x34})
	b.AddUint16(0x5600) // odd trailing byte, LSB-padded with zero.
	if full != b.Sum16() {
		t.Errorf("PayloadSum16 odd-length = %#04x, want %#04x", full, b.Sum16())
	}
}

func TestNeverZeroChecksum(t *testing.T) {
	if got := NeverZeroChecksum(0); got != 0xffff {
		t.Errorf("NeverZeroChecksum(0) = %#04x, want 0xffff", got)
	}
	if got := NeverZeroChecksum(0x1234); got != 0x1234 {
		t.Errorf("NeverZeroChecksum(0x1234) = %#04x, want unchanged", got)
	}
}

func TestCRC791Reset(t *testing.T) {
	var c CRC791
	c.AddUint16(0xffff)
	c.Reset()
	if c.Sum16() != 0xffff {
		// an empty CRC791's Sum16 is the ones'-complement of zero.
		t.Errorf("Sum16 after Reset = %#04x, want 0xffff", c.Sum16())
	}
}
