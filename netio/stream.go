package netio

import (
	"github.com/quadstack/tcpstack/tcp"
)

// Listener is a bound port's accept handle. Multiple goroutines may call
// Accept concurrently; each accepted Stream is handed to exactly one caller.
type Listener struct {
	ifc  *Interface
	port uint16
}

// Accept blocks until a pending connection is available or the interface
// terminates.
func (l *Listener) Accept() (*Stream, error) {
	l.ifc.mu.Lock()
	defer l.ifc.mu.Unlock()
	for {
		if l.ifc.terminated {
			return nil, ErrTerminated
		}
		st, ok := l.ifc.listeners[l.port]
		if !ok {
			return nil, ErrConnectionAborted
		}
		if len(st.pending) > 0 {
			conn := st.pending[0]
			st.pending = st.pending[1:]
			return &Stream{ifc: l.ifc, conn: conn, quad: quadOf(conn)}, nil
		}
		st.cond.Wait()
	}
}

// Close removes this port's pending queue, so future Binds of the same port
// succeed and in-flight Accepts return ErrConnectionAborted.
func (l *Listener) Close() error {
	l.ifc.unbind(l.port)
	return nil
}

// Stream is a handle to one established (or closing) connection.
type Stream struct {
	ifc  *Interface
	conn *tcp.Connection
	quad Quad
}

func quadOf(conn *tcp.Connection) Quad {
	local, localPort := conn.LocalAddr()
	remote, remotePort := conn.RemoteAddr()
	return Quad{RemoteAddr: remote, RemotePort: remotePort, LocalAddr: local, LocalPort: localPort}
}

// Read blocks until data is available or the peer has closed, then copies
// into buf. It returns (0, nil) on orderly peer close, matching a stream
// read reporting EOF via a zero count rather than an error.
func (s *Stream) Read(buf []byte) (int, error) {
	s.ifc.mu.Lock()
	defer s.ifc.mu.Unlock()
	for {
		if s.ifc.terminated {
			return 0, ErrTerminated
		}
		if _, ok := s.ifc.conns[s.quad]; !ok {
			return 0, ErrConnectionAborted
		}
		if s.conn.IsReadable() {
			return s.conn.Read(buf)
		}
		s.ifc.recvReady.Wait()
	}
}

// Write enqueues p for transmission without blocking, per the façade
// contract: it fails with ErrWouldBlock when the unacked queue is full.
func (s *Stream) Write(p []byte) (int, error) {
	s.ifc.mu.Lock()
	defer s.ifc.mu.Unlock()
	if _, ok := s.ifc.conns[s.quad]; !ok {
		return 0, ErrConnectionAborted
	}
	n, err := s.conn.Write(p)
	return n, translateTCPErr(err)
}

// WriteBlocking writes all of p, blocking until enough of the unacked queue
// drains to accept the remainder. This is the blocking variant the governing
// design calls an "obvious extension" over the non-blocking Write.
func (s *Stream) WriteBlocking(p []byte) (int, error) {
	s.ifc.mu.Lock()
	defer s.ifc.mu.Unlock()
	written := 0
	for written < len(p) {
		if s.ifc.terminated {
			return written, ErrTerminated
		}
		if _, ok := s.ifc.conns[s.quad]; !ok {
			return written, ErrConnectionAborted
		}
		n, err := s.conn.Write(p[written:])
		written += n
		if err == nil {
			continue
		}
		if translateTCPErr(err) != ErrWouldBlock {
			return written, translateTCPErr(err)
		}
		s.ifc.recvReady.Wait() // woken by the packet loop after each segment it processes.
	}
	return written, nil
}

// Flush reports ErrWouldBlock while unacked bytes remain outstanding.
func (s *Stream) Flush() error {
	s.ifc.mu.Lock()
	defer s.ifc.mu.Unlock()
	return translateTCPErr(s.conn.Flush())
}

// FlushBlocking waits until every previously written byte has been
// acknowledged by the peer.
func (s *Stream) FlushBlocking() error {
	s.ifc.mu.Lock()
	defer s.ifc.mu.Unlock()
	for {
		if s.ifc.terminated {
			return ErrTerminated
		}
		if _, ok := s.ifc.conns[s.quad]; !ok {
			return ErrConnectionAborted
		}
		if s.conn.Flush() == nil {
			return nil
		}
		s.ifc.recvReady.Wait()
	}
}

// Shutdown signals the engine that the application is done sending; the FIN
// is emitted by the next tick.
func (s *Stream) Shutdown() error {
	s.ifc.mu.Lock()
	defer s.ifc.mu.Unlock()
	return translateTCPErr(s.conn.Close())
}

// State returns the connection's current TCP state, for diagnostics.
func (s *Stream) State() tcp.State {
	s.ifc.mu.Lock()
	defer s.ifc.mu.Unlock()
	return s.conn.State()
}
