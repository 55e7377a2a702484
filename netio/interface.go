package netio

import (
	"errors"
	"log/slog"
	"math/rand"
	"net/netip"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"

	"github.com/quadstack/tcpstack/devtun"
	"github.com/quadstack/tcpstack/internal"
	"github.com/quadstack/tcpstack/ipv4"
	"github.com/quadstack/tcpstack/tcp"
	"github.com/quadstack/tcpstack/wire"
)

var (
	// ErrAddressInUse is returned by Bind when the port already has a Listener.
	ErrAddressInUse = errors.New("netio: address already in use")
	// ErrConnectionAborted is returned by Stream operations once the
	// connection's quad has left the connection table.
	ErrConnectionAborted = errors.New("netio: connection aborted")
	// ErrTerminated is returned by blocking calls once the Interface has shut down.
	ErrTerminated = errors.New("netio: interface terminated")
	// ErrWouldBlock is returned by non-blocking Write/Flush when the
	// connection's queues have no room, or nothing has drained yet.
	ErrWouldBlock = errors.New("netio: would block")
	// ErrNotConnected is returned by Shutdown on a connection already past
	// the states a local close is meaningful in.
	ErrNotConnected = errors.New("netio: not connected")
)

// translateTCPErr maps tcp package sentinel errors onto this package's own,
// so callers never need to import tcp just to compare error values.
func translateTCPErr(err error) error {
	switch err {
	case nil:
		return nil
	case tcp.ErrWouldBlock:
		return ErrWouldBlock
	case tcp.ErrNotConnected:
		return ErrNotConnected
	default:
		return err
	}
}

const (
	tickPeriod = 100 * time.Millisecond
	datagramMTU = 1500
)

// tunDevice is the narrow interface the Interface needs from a TUN driver;
// devtun.Device satisfies it, and tests substitute an in-memory pipe.
type tunDevice interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)
	Close() error
}

type listenerState struct {
	pending []*tcp.Connection
	cond    *sync.Cond
}

// Interface owns one TUN device, the quad-to-connection table, and the
// per-port pending-accept queues. It runs a packet-receive loop and a
// periodic tick loop in background goroutines started by Open.
type Interface struct {
	dev    tunDevice
	logger *slog.Logger
	iss    *tcp.ISSGenerator
	addr   [4]byte

	mu          sync.Mutex
	recvReady   *sync.Cond
	conns       map[Quad]*tcp.Connection
	connIDs     map[Quad]string
	listeners   map[uint16]*listenerState
	rst         tcp.RSTQueue
	terminated  bool

	metrics *metrics
	done    chan struct{}
}

// Open creates the TUN device named name, assigns it localAddr with a /24
// prefix, and starts
// the packet and tick loops. registry, if non-nil, gets the interface's
// Prometheus collector registered under namespace.
func Open(name string, localAddr [4]byte, logger *slog.Logger, registry *prometheus.Registry, namespace string) (*Interface, error) {
	dev, err := devtun.Open(name, netipPrefixFromAddr(localAddr))
	if err != nil {
		return nil, err
	}
	iss, err := tcp.NewISSGenerator()
	if err != nil {
		dev.Close()
		return nil, err
	}
	return newInterface(dev, localAddr, logger, registry, namespace, iss)
}

func newInterface(dev tunDevice, localAddr [4]byte, logger *slog.Logger, registry *prometheus.Registry, namespace string, iss *tcp.ISSGenerator) (*Interface, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ifc := &Interface{
		dev:       dev,
		logger:    logger,
		iss:       iss,
		addr:      localAddr,
		conns:     make(map[Quad]*tcp.Connection),
		connIDs:   make(map[Quad]string),
		listeners: make(map[uint16]*listenerState),
		done:      make(chan struct{}),
	}
	ifc.recvReady = sync.NewCond(&ifc.mu)
	ifc.metrics = newMetrics(ifc, namespace)
	if registry != nil {
		registry.MustRegister(ifc.metrics)
	}
	go ifc.packetLoop()
	go ifc.tickLoop()
	return ifc, nil
}

// Close terminates the interface: it stops the background loops, wakes
// every blocked caller, and closes the TUN device. Condition waits are
// otherwise unbounded, so every wait loop re-checks terminated after waking
// rather than assuming the wake was for it.
func (ifc *Interface) Close() error {
	ifc.mu.Lock()
	if ifc.terminated {
		ifc.mu.Unlock()
		return nil
	}
	ifc.terminated = true
	ifc.recvReady.Broadcast()
	for _, l := range ifc.listeners {
		l.cond.Broadcast()
	}
	ifc.mu.Unlock()
	close(ifc.done)
	return ifc.dev.Close()
}

// Bind registers port as listening, returning a Listener handle. It fails
// with ErrAddressInUse if a Listener for the port already exists.
func (ifc *Interface) Bind(port uint16) (*Listener, error) {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()
	if _, exists := ifc.listeners[port]; exists {
		return nil, ErrAddressInUse
	}
	st := &listenerState{cond: sync.NewCond(&ifc.mu)}
	ifc.listeners[port] = st
	return &Listener{ifc: ifc, port: port}, nil
}

// unbind removes port's pending queue and wakes its blocked Accepts, all
// under one hold of the lock. Called when a Listener is dropped.
func (ifc *Interface) unbind(port uint16) {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()
	if st, ok := ifc.listeners[port]; ok {
		delete(ifc.listeners, port)
		st.cond.Broadcast()
	}
}

func (ifc *Interface) packetLoop() {
	buf := make([]byte, datagramMTU)
	replyBuf := make([]byte, datagramMTU)
	for {
		n, err := ifc.dev.Read(buf)
		if err != nil {
			ifc.logger.Error("tun read failed, terminating interface", "err", err)
			ifc.Close()
			return
		}
		select {
		case <-ifc.done:
			return
		default:
		}
		ifc.handleDatagram(buf[:n], replyBuf)
	}
}

func (ifc *Interface) handleDatagram(datagram []byte, replyBuf []byte) {
	ifrm, err := ipv4.NewFrame(datagram)
	if err != nil {
		ifc.logger.Debug("dropping malformed datagram", "err", err)
		return
	}
	if err := ifrm.ValidateSize(); err != nil {
		ifc.logger.Debug("dropping malformed datagram", "err", err)
		return
	}
	if ifrm.Protocol() != wire.IPProtoTCP {
		return
	}
	tfrm, err := tcp.NewFrame(ifrm.Payload())
	if err != nil {
		ifc.logger.Debug("dropping malformed segment", "err", err)
		return
	}
	if err := tfrm.ValidateExceptCRC(); err != nil {
		ifc.logger.Debug("dropping malformed segment", "err", err)
		return
	}

	quad := Quad{
		RemoteAddr: *ifrm.SourceAddr(),
		RemotePort: tfrm.SourcePort(),
		LocalAddr:  *ifrm.DestinationAddr(),
		LocalPort:  tfrm.DestinationPort(),
	}
	payload := tfrm.Payload()
	seg := tfrm.Segment(len(payload))
	mss, _ := tcp.ParseMSS(tfrm.Options())

	ifc.mu.Lock()
	defer ifc.mu.Unlock()

	conn, ok := ifc.conns[quad]
	if !ok {
		ifc.handleNewConnection(quad, seg, mss)
		return
	}

	replyLen, _, writable, err := conn.OnSegment(replyBuf, seg, payload)
	if err != nil {
		// SYN_RCVD ACK failure: RST the peer and drop the half-open attempt.
		ifc.logger.Warn("bad ack for half-open connection, sending RST",
			internal.SlogAddr4("remote_addr", &quad.RemoteAddr),
			"remote_port", quad.RemotePort, "local_port", quad.LocalPort)
		ifc.rst.Queue(quad.LocalAddr, quad.RemoteAddr, quad.RemotePort, quad.LocalPort, seg.ACK, 0, tcp.FlagRST)
		delete(ifc.conns, quad)
		delete(ifc.connIDs, quad)
		ifc.drainRST()
		return
	}
	if replyLen > 0 {
		ifc.dev.Write(replyBuf[:replyLen])
	}
	if conn.Aborted() {
		delete(ifc.conns, quad)
		delete(ifc.connIDs, quad)
	}
	// Broadcast unconditionally, not only when readable: an ACK that merely
	// advances send.una changes what Flush/WriteBlocking are waiting on
	// without making the connection newly readable.
	ifc.recvReady.Broadcast()
	_ = writable
}

func (ifc *Interface) handleNewConnection(quad Quad, seg tcp.Segment, mss uint16) {
	if !seg.Flags.HasAll(tcp.FlagSYN) {
		return // no matching connection and not a SYN: silently ignore.
	}
	st, ok := ifc.listeners[quad.LocalPort]
	if !ok {
		return // no listener on this port: silently ignore, per policy.
	}
	iss := ifc.iss.Generate(quad.LocalAddr, quad.RemoteAddr, quad.LocalPort, quad.RemotePort)
	conn, err := tcp.AcceptSYN(quad.LocalAddr, quad.RemoteAddr, quad.LocalPort, quad.RemotePort, seg, iss, mss)
	if err != nil {
		return
	}
	ifc.conns[quad] = conn
	connID := xid.New().String()
	ifc.connIDs[quad] = connID
	ifc.logger.Debug("accepted connection",
		internal.SlogAddr4("remote_addr", &quad.RemoteAddr),
		"remote_port", quad.RemotePort, "local_port", quad.LocalPort, "conn_id", connID)

	buf := make([]byte, datagramMTU)
	n, err := conn.EmitSynAck(buf)
	if err == nil {
		ifc.dev.Write(buf[:n])
	}

	st.pending = append(st.pending, conn)
	st.cond.Broadcast()
}

func (ifc *Interface) drainRST() {
	buf := make([]byte, datagramMTU)
	for ifc.rst.Pending() > 0 {
		n, err := ifc.rst.Drain(buf, uint16(rand.Uint32()))
		if err != nil || n == 0 {
			break
		}
		ifc.dev.Write(buf[:n])
	}
}

func (ifc *Interface) tickLoop() {
	t := time.NewTicker(tickPeriod)
	defer t.Stop()
	for {
		select {
		case <-ifc.done:
			return
		case <-t.C:
			ifc.tick()
		}
	}
}

// tick drains each connection's OnTick under the lock, buffering the
// resulting datagrams, then releases the lock once to write them all: the
// TUN device is reached through an interface the lock does not otherwise
// protect, so there is no correctness reason to hold it across the writes.
func (ifc *Interface) tick() {
	ifc.mu.Lock()
	buf := make([]byte, datagramMTU)
	var toWrite [][]byte
	anyReadable := false
	for quad, conn := range ifc.conns {
		n, err := conn.OnTick(buf)
		if err == nil && n > 0 {
			cp := make([]byte, n)
			copy(cp, buf[:n])
			toWrite = append(toWrite, cp)
		}
		if conn.State() == tcp.StateTimeWait {
			delete(ifc.conns, quad)
			delete(ifc.connIDs, quad)
			anyReadable = true // wake any reader blocked waiting on EOF.
		}
	}
	if anyReadable {
		ifc.recvReady.Broadcast()
	}
	ifc.mu.Unlock()

	for _, dgram := range toWrite {
		ifc.dev.Write(dgram)
	}
}

func netipPrefixFromAddr(addr [4]byte) netip.Prefix {
	return netip.PrefixFrom(netip.AddrFrom4(addr), 24)
}
