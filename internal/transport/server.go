package transport

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/rishav/replcore/internal/replication"
)

// Controller is the subset of *replication.Controller the server needs,
// kept narrow so tests can substitute a fake.
type Controller interface {
	RegisterReplica(t replication.Transport) (*replication.Replica, error)
	ReplicaOf(host, port string) error
	Info() replication.Info
}

// Server accepts connections and dispatches REPLICASYNC, REPLICAOF,
// and REPLICAINFO against a Controller.
type Server struct {
	addr string
	ctrl Controller
	log  *zap.SugaredLogger
	lis  net.Listener
}

// NewServer constructs a Server bound to addr (not yet listening).
func NewServer(addr string, ctrl Controller, log *zap.SugaredLogger) *Server {
	return &Server{addr: addr, ctrl: ctrl, log: log}
}

// Serve listens on the server's address and handles connections until
// the listener is closed.
func (s *Server) Serve() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("transport: listen %s: %w", s.addr, err)
	}
	s.lis = lis
	s.log.Infow("replication server listening", "addr", s.addr)

	for {
		conn, err := lis.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("transport: accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.lis == nil {
		return nil
	}
	return s.lis.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		if len(args) == 0 {
			continue
		}

		switch strings.ToUpper(args[0]) {
		case "REPLICASYNC":
			s.handleReplicaSync(conn, w, args)
			return // the connection is now owned by the reader worker

		case "REPLICAOF":
			s.handleReplicaOf(w, args)

		case "REPLICAINFO":
			s.handleReplicaInfo(w, args)

		default:
			writeError(w, fmt.Sprintf("ERR unknown command '%s'", args[0]))
		}
		w.Flush()
	}
}

func (s *Server) handleReplicaSync(conn net.Conn, w *bufio.Writer, args []string) {
	if len(args) != 1 {
		writeError(w, "ERR wrong number of arguments for 'replicasync'")
		w.Flush()
		return
	}

	ct := &connTransport{conn: conn, w: w}
	if _, err := s.ctrl.RegisterReplica(ct); err != nil {
		writeError(w, "ERR "+err.Error())
		w.Flush()
		return
	}

	writeInteger(w, 1)
	w.Flush()
	// From here on the reader worker owns writes to w via ct; this
	// goroutine's only remaining job was the handshake above.
}

func (s *Server) handleReplicaOf(w *bufio.Writer, args []string) {
	if len(args) != 3 {
		writeError(w, "ERR wrong number of arguments for 'replicaof'")
		return
	}
	host, port := args[1], args[2]
	if host == "NO" && strings.EqualFold(port, "ONE") {
		writeError(w, "ERR REPLICAOF NO ONE is not supported: mode is set-once")
		return
	}
	if err := s.ctrl.ReplicaOf(host, port); err != nil {
		writeError(w, "ERR "+err.Error())
		return
	}
	writeSimpleString(w, "OK")
}

func (s *Server) handleReplicaInfo(w *bufio.Writer, args []string) {
	if len(args) != 1 {
		writeError(w, "ERR wrong number of arguments for 'replicainfo'")
		return
	}
	info := s.ctrl.Info()
	writeArray(w, 3)
	writeBulkString(w, info.Mode.String())
	writeBulkString(w, info.LastSDBHash)
	writeInteger(w, int64(info.LastCmdEID))
}

// connTransport adapts a net.Conn into replication.Transport, streaming
// replication frames directly over the wire using the binary frame
// format rather than RESP, once the REPLICASYNC handshake completes.
type connTransport struct {
	conn net.Conn
	w    *bufio.Writer
}

func (c *connTransport) SendReplicationFrame(eid uint64, cmdID int8, payload []byte) (int, error) {
	return EncodeFrame(c.w, eid, cmdID, payload)
}

func (c *connTransport) Flush() error {
	return c.w.Flush()
}

func (c *connTransport) End() {
	c.conn.Close()
}
