// Package protocoltest runs a scriptable in-process qlizator server for
// driver and protocol tests. The server accepts a single connection and
// answers each decoded command envelope with the next scripted reply burst,
// recording every request it sees.
package protocoltest

import (
	"net"
	"sync"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

// Reply is one scripted reply burst. Every object is msgpack-encoded and
// written back in a single write once the next command arrives, matching the
// real server's one-burst-per-command behavior.
type Reply struct {
	Objects []any
	// CloseAfter drops the TCP connection right after writing the objects.
	CloseAfter bool
	// Silent reads the command but writes nothing, leaving the client to
	// run into its read timeout.
	Silent bool
}

// OK is the bare success status reply.
func OK() Reply {
	return Reply{Objects: []any{map[string]any{"status": 0}}}
}

// Status builds a single-object status reply. An empty message leaves the
// message field out entirely.
func Status(code int, message string) Reply {
	status := map[string]any{"status": code}
	if message != "" {
		status["message"] = message
	}
	return Reply{Objects: []any{status}}
}

// Result builds a full query reply: column metadata, the given rows, then an
// OK status. Columns are "name:type" pairs.
func Result(columns [][2]string, rows ...[]any) Reply {
	metadata := make([]any, 0, len(columns))
	for _, column := range columns {
		metadata = append(metadata, []any{column[0], column[1]})
	}

	objects := []any{metadata}
	for _, row := range rows {
		objects = append(objects, row)
	}
	objects = append(objects, map[string]any{"status": 0})
	return Reply{Objects: objects}
}

// Server answers scripted replies on a single accepted connection.
type Server struct {
	listener net.Listener
	replies  []Reply

	mu       sync.Mutex
	conn     net.Conn
	requests []map[string]any
}

// Start listens on an ephemeral loopback port and serves the scripted
// replies in order. The first reply almost always wants to be OK() for the
// connect handshake. The listener is torn down via t.Cleanup.
func Start(t *testing.T, replies ...Reply) *Server {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	s := &Server{listener: listener, replies: replies}
	go s.serve()
	t.Cleanup(s.stop)
	return s
}

func (s *Server) stop() {
	_ = s.listener.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Requests returns the command envelopes received so far, in order.
func (s *Server) Requests() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	requests := make([]map[string]any, len(s.requests))
	copy(requests, s.requests)
	return requests
}

func (s *Server) serve() {
	conn, err := s.listener.Accept()
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer conn.Close()

	dec := msgpack.NewDecoder(conn)
	for _, reply := range s.replies {
		req, err := dec.DecodeInterfaceLoose()
		if err != nil {
			return
		}
		if envelope, ok := req.(map[string]any); ok {
			s.mu.Lock()
			s.requests = append(s.requests, envelope)
			s.mu.Unlock()
		}

		if reply.Silent {
			continue
		}

		var burst []byte
		for _, obj := range reply.Objects {
			data, err := msgpack.Marshal(obj)
			if err != nil {
				return
			}
			burst = append(burst, data...)
		}
		if len(burst) > 0 {
			if _, err := conn.Write(burst); err != nil {
				return
			}
		}
		if reply.CloseAfter {
			return
		}
	}

	// Hold the connection open once the script runs out: clients relying on
	// read timeouts need the socket silent, not closed. Teardown via stop
	// unblocks the read.
	buf := make([]byte, 1)
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
	}
}
