package protocol

import (
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/multierr"
)

// DefaultTimeout bounds the TCP connect and every single socket read or
// write when no timeout is configured.
const DefaultTimeout = 2 * time.Second

// Channel owns one connected TCP stream and moves raw bytes in both
// directions. It carries no protocol knowledge beyond the reply-burst
// boundary heuristic in messageReader. The owner must not use a Channel
// after Close.
type Channel struct {
	conn    net.Conn
	timeout time.Duration
}

// DialChannel connects to addr (host:port) within timeout. The same timeout
// later bounds each individual read and write on the channel.
func DialChannel(addr string, timeout time.Duration) (*Channel, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	return &Channel{conn: conn, timeout: timeout}, nil
}

// Send writes data fully to the peer.
func (ch *Channel) Send(data []byte) error {
	if err := ch.conn.SetWriteDeadline(time.Now().Add(ch.timeout)); err != nil {
		return err
	}
	_, err := ch.conn.Write(data)
	return err
}

// Receive returns a reader over the next reply burst. Each Read performs a
// single socket read; the reader reports io.EOF once the peer closes or a
// read comes back shorter than requested. The short read marks the end of
// the burst: the server flushes a complete reply in one go and reading any
// further would block until the next command's reply. No bytes are buffered
// across Receive calls.
func (ch *Channel) Receive() io.Reader {
	return &messageReader{conn: ch.conn, timeout: ch.timeout}
}

// Close shuts down both directions before releasing the socket.
func (ch *Channel) Close() error {
	var err error
	if tcp, ok := ch.conn.(*net.TCPConn); ok {
		err = multierr.Append(err, tcp.CloseRead())
		err = multierr.Append(err, tcp.CloseWrite())
	}
	return multierr.Append(err, ch.conn.Close())
}

// messageReader yields the bytes of one reply burst.
type messageReader struct {
	conn    net.Conn
	timeout time.Duration
	done    bool
}

func (r *messageReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
		return 0, err
	}

	n, err := r.conn.Read(p)
	if err != nil {
		r.done = true
		return n, err
	}
	if n < len(p) {
		r.done = true
	}
	return n, nil
}
