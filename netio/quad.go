// Package netio owns the TUN device, the four-tuple connection table, and
// the packet-receive and tick loops that drive the tcp package's Connection
// engine. It also exposes the blocking socket façade (Listener, Stream)
// application code calls into.
package netio

import "fmt"

// Quad is the four-tuple key identifying a connection, remote endpoint
// first then local, matching how an inbound segment's header is read.
type Quad struct {
	RemoteAddr [4]byte
	RemotePort uint16
	LocalAddr  [4]byte
	LocalPort  uint16
}

func (q Quad) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d->%d.%d.%d.%d:%d",
		q.RemoteAddr[0], q.RemoteAddr[1], q.RemoteAddr[2], q.RemoteAddr[3], q.RemotePort,
		q.LocalAddr[0], q.LocalAddr[1], q.LocalAddr[2], q.LocalAddr[3], q.LocalPort)
}
