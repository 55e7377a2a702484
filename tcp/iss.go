package tcp

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"golang.org/x/crypto/blake2b"
)

// issTickPeriod is the granularity at which the randomised ISS clock
// component advances, matching the classic 4µs/1ms-order tick used by
// kernel secure sequence number generators closely enough for this engine's
// purposes: coarser than strict RFC 6528 guidance, fine enough that two
// SYNs for the same quad a tick apart get different ISNs.
const issTickPeriod = time.Millisecond

// ISSGenerator produces randomised initial sequence numbers per RFC 6528:
// keyed on a secret generated at startup, a per-quad MAC is combined with a
// coarse clock so that repeated connections to/from the same quad do not
// reuse sequence space, while remaining unpredictable to an off-path
// attacker without the key.
type ISSGenerator struct {
	key [32]byte
}

// NewISSGenerator seeds a generator with process-local randomness.
func NewISSGenerator() (*ISSGenerator, error) {
	g := &ISSGenerator{}
	if _, err := rand.Read(g.key[:]); err != nil {
		return nil, err
	}
	return g, nil
}

// Generate returns the ISS for a newly accepted connection identified by the
// given quad.
func (g *ISSGenerator) Generate(localAddr, remoteAddr [4]byte, localPort, remotePort uint16) Value {
	h, _ := blake2b.New(8, g.key[:]) // key length is within blake2b's accepted key sizes.
	h.Write(localAddr[:])
	h.Write(remoteAddr[:])
	var portBuf [4]byte
	binary.BigEndian.PutUint16(portBuf[0:2], localPort)
	binary.BigEndian.PutUint16(portBuf[2:4], remotePort)
	h.Write(portBuf[:])
	sum := h.Sum(nil)
	mac := binary.BigEndian.Uint32(sum[:4])
	clock := uint32(time.Now().UnixNano() / int64(issTickPeriod))
	return Value(mac + clock)
}
