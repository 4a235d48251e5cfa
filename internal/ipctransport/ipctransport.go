// Package ipctransport implements the transport contract spec.md §6
// names as an external collaborator: "One full-duplex stream per session;
// the server accepts connections and hands each session pair a channel
// object providing message(bytes) and disconnect()." spec.md §1 lists the
// transport itself as out of scope for the core ("message framing only
// appears as a contract"), but a reference implementation of that contract
// is needed for anything in this module to actually run end to end, so
// this package provides one: a TCP listener plus the auxiliary loopback
// socket spec.md §6 describes for race-free shutdown and session
// bookkeeping.
package ipctransport

import (
	"encoding/binary"
	"net"
	"sync"

	"github.com/hollowcore/profiler/internal/errkind"
)

// Session is the per-connection channel object spec.md §6 describes.
type Session interface {
	// Message sends one opaque frame (produced by the protocol codec) to
	// the peer.
	Message(b []byte) error
	// Disconnect closes the session from this side.
	Disconnect() error
}

// Handler is invoked once per accepted session, on its own goroutine. It
// owns reading from the session (via its own Read loop on the
// underlying connection — see netSession.Read) until Disconnect or a
// peer-initiated close.
type Handler func(id uint32, s Session)

type netSession struct {
	id     uint32
	conn   net.Conn
	server *Server
}

func (s *netSession) Message(b []byte) error {
	_, err := s.conn.Write(b)
	if err != nil {
		return errkind.NewEnvironmental(err)
	}
	return nil
}

// Read exposes the underlying connection for the handler's receive loop.
func (s *netSession) Read(b []byte) (int, error) { return s.conn.Read(b) }

func (s *netSession) Disconnect() error {
	err := s.conn.Close()
	s.server.requestRemoval(s.id)
	if err != nil {
		return errkind.NewEnvironmental(err)
	}
	return nil
}

// Server accepts sessions on a primary listener. Every session-removal and
// the shutdown signal itself are funneled through a single auxiliary
// loopback UDP socket read by one goroutine, so sessions can be added to
// and removed from the server's table without two goroutines ever racing
// on the same map entry (spec.md §6: "remove closed sessions without
// race"). Sending a zero-ID scalar on the aux socket means "shut down";
// any other ID means "that session is gone, forget it."
type Server struct {
	ln      net.Listener
	aux     *net.UDPConn
	handler Handler

	mu       sync.Mutex
	sessions map[uint32]*netSession
	nextID   uint32

	done chan struct{}
}

// Listen starts a Server accepting TCP connections on addr (e.g.
// "127.0.0.1:0") and dispatching each to handler. The auxiliary socket is
// bound automatically on an ephemeral loopback UDP port.
func Listen(addr string, handler Handler) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errkind.NewEnvironmental(err)
	}
	aux, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		ln.Close()
		return nil, errkind.NewEnvironmental(err)
	}

	s := &Server{
		ln:       ln,
		aux:      aux,
		handler:  handler,
		sessions: make(map[uint32]*netSession),
		done:     make(chan struct{}),
	}

	go s.auxLoop()
	go s.acceptLoop()
	return s, nil
}

// Addr is the primary listener's address, for clients to dial.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.nextID++
		id := s.nextID
		sess := &netSession{id: id, conn: conn, server: s}
		s.sessions[id] = sess
		s.mu.Unlock()

		go s.handler(id, sess)
	}
}

func (s *Server) auxLoop() {
	buf := make([]byte, 4)
	for {
		n, _, err := s.aux.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if n < 4 {
			continue
		}
		id := binary.LittleEndian.Uint32(buf)
		if id == 0 {
			s.ln.Close()
			s.aux.Close()
			close(s.done)
			return
		}
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
	}
}

func (s *Server) signal(id uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], id)
	_, err := s.aux.WriteToUDP(buf[:], s.aux.LocalAddr().(*net.UDPAddr))
	if err != nil {
		return errkind.NewEnvironmental(err)
	}
	return nil
}

func (s *Server) requestRemoval(id uint32) { _ = s.signal(id) }

// Shutdown sends the zero-ID scalar on the aux socket, gracefully stopping
// the accept loop, and waits for that to complete.
func (s *Server) Shutdown() error {
	if err := s.signal(0); err != nil {
		return err
	}
	<-s.done
	return nil
}

// Sessions returns the currently tracked session IDs, for diagnostics.
func (s *Server) Sessions() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint32, 0, len(s.sessions))
	for id := range s.sessions {
		out = append(out, id)
	}
	return out
}
