package tcp

// Value is a 32-bit TCP sequence or acknowledgement number. Arithmetic on
// Value wraps modulo 2^32, as required by RFC 793 §3.3.
type Value uint32

// Size is a count of octets in sequence-number space (payload bytes plus one
// for each of SYN/FIN consumed as a "phantom" byte).
type Size uint32

// Add returns v+delta, wrapping modulo 2^32.
func Add(v Value, delta Size) Value { return v + Value(delta) }

// Sub returns v-delta, wrapping modulo 2^32.
func Sub(v Value, delta Size) Value { return v - Value(delta) }

// Sizeof returns the number of octets from a (inclusive) to b (exclusive) in
// sequence space, i.e. b-a performed with wraparound.
func Sizeof(a, b Value) Size { return Size(uint32(b) - uint32(a)) }

// LessThan reports whether a is "to the left of" b in the cyclic sequence
// space, per RFC 1323 Appendix: (a-b) mod 2^32 > 2^31.
//
// The boundary constant must be computed as 1<<31, not as the digits "2^31"
// evaluated with ^ as XOR: that would silently collapse to 2^31 (caret as
// exponent) in some languages and to 2 XOR 31 = 29 in others, and the latter
// makes the comparison true for virtually every pair of inputs.
func LessThan(a, b Value) bool {
	const wrapBoundary = 1 << 31
	return uint32(a-b) > wrapBoundary
}

// InWindow reports whether x lies strictly inside the open arc (lo, hi) of
// the cyclic sequence-number circle, i.e. lo < x < hi with wraparound taken
// into account. Both endpoints are excluded.
func InWindow(lo, x, hi Value) bool {
	return LessThan(lo, x) && LessThan(x, hi)
}

// InWindowInclusive reports whether x lies in the half-open arc [lo, hi),
// i.e. x == lo is accepted but x == hi is not. This is the predicate used by
// the segment acceptability test (§4.2 of the engine's governing spec),
// where the window's left edge (RCV.NXT) is itself acceptable.
func InWindowInclusive(lo, x, hi Value) bool {
	return x == lo || InWindow(lo, x, hi)
}
