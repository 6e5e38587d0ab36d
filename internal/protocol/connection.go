package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// ErrConnectionClosed is returned when a command is issued on a connection
// that has been closed, either explicitly or by an earlier transport
// failure. It marks a caller bug, unlike the *Error values produced for
// transport and server failures.
var ErrConnectionClosed = errors.New("qlizator: connection is closed")

// ErrTooManyParameters is returned for statements binding more than
// MaxVariableNumber parameters.
var ErrTooManyParameters = fmt.Errorf("qlizator: statement binds more than %d parameters", MaxVariableNumber)

// Config carries everything needed to open a connection.
type Config struct {
	// Addr is the host:port of the qlizator server.
	Addr string
	// Database is the logical database name commands run against.
	Database string
	// Path is the server-side filesystem location of the database file.
	Path string
	// Timeout bounds the TCP connect and every single socket read or write.
	// Zero means DefaultTimeout.
	Timeout time.Duration
	// Codec converts parameter and column values. Nil means DefaultCodec.
	Codec *Codec
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Connection drives the request/reply protocol over a single channel. The
// protocol is strictly synchronous with one command in flight: the caller
// must fully drain the Rows of one command before issuing the next,
// otherwise leftover reply objects desynchronize the stream. A Connection is
// not safe for concurrent use without external synchronization.
type Connection struct {
	channel  *Channel
	codec    *Codec
	logger   *zap.Logger
	database string
	path     string
}

// Connect dials the server and attaches the configured database, fully
// draining the handshake reply before returning. Dial failures surface as a
// *Error with StatusNetworkError; a non-OK handshake status surfaces as a
// *Error with the server's code and the channel is released.
func Connect(cfg Config) (*Connection, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	codec := cfg.Codec
	if codec == nil {
		codec = DefaultCodec()
	}

	channel, err := DialChannel(cfg.Addr, cfg.Timeout)
	if err != nil {
		return nil, newNetworkError(err)
	}

	conn := &Connection{
		channel:  channel,
		codec:    codec,
		logger:   logger,
		database: cfg.Database,
		path:     cfg.Path,
	}
	if err := conn.attach(); err != nil {
		if !conn.Closed() {
			_ = conn.Close()
		}
		return nil, err
	}
	return conn, nil
}

func (c *Connection) attach() error {
	c.logger.Debug("attaching database",
		zap.String("database", c.database),
		zap.String("path", c.path))

	if err := c.send(attachRequest{
		Endpoint: endpointConnect,
		Database: c.database,
		Path:     c.path,
	}); err != nil {
		return err
	}
	return c.recv().Drain()
}

// Execute runs sql without fetching result rows. The returned Rows must
// still be drained: the server terminates every reply with a status object
// and an error status only surfaces once the stream is consumed.
func (c *Connection) Execute(sql string, params ...any) (*Rows, error) {
	return c.command(Execute, sql, params)
}

// Fetch runs sql and streams result rows. Abandoning the Rows early leaves
// the server-side cursor state undefined; drive it to completion.
func (c *Connection) Fetch(sql string, params ...any) (*Rows, error) {
	return c.command(ExecuteAndFetch, sql, params)
}

func (c *Connection) command(op Operation, sql string, params []any) (*Rows, error) {
	if c.Closed() {
		return nil, ErrConnectionClosed
	}
	if len(params) > MaxVariableNumber {
		return nil, ErrTooManyParameters
	}

	encoded := make([]any, len(params))
	for i, param := range params {
		encoded[i] = c.codec.Encode(param)
	}

	c.logger.Debug("sending query",
		zap.String("query", sql),
		zap.Int("operation", int(op)),
		zap.Int("parameters", len(params)))

	if err := c.send(queryRequest{
		Endpoint:   endpointQuery,
		Operation:  op,
		Database:   c.database,
		Query:      sql,
		Parameters: encoded,
	}); err != nil {
		return nil, err
	}
	return c.recv(), nil
}

// DropDatabase deletes the attached database on the server and drains the
// reply.
func (c *Connection) DropDatabase() error {
	if c.Closed() {
		return ErrConnectionClosed
	}

	c.logger.Debug("dropping database",
		zap.String("database", c.database),
		zap.String("path", c.path))

	if err := c.send(attachRequest{
		Endpoint: endpointDrop,
		Database: c.database,
		Path:     c.path,
	}); err != nil {
		return err
	}
	return c.recv().Drain()
}

// Close shuts the channel down and marks the connection closed. Closing an
// already closed connection returns ErrConnectionClosed.
func (c *Connection) Close() error {
	if c.Closed() {
		return ErrConnectionClosed
	}
	err := c.channel.Close()
	c.channel = nil
	return err
}

// Closed reports whether the channel has been released, either by Close or
// by a transport failure.
func (c *Connection) Closed() bool {
	return c.channel == nil
}

func (c *Connection) send(req any) error {
	data, err := msgpack.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}
	if err := c.channel.Send(data); err != nil {
		return c.fail(err)
	}
	return nil
}

func (c *Connection) recv() *Rows {
	return newRows(msgpack.NewDecoder(c.channel.Receive()), c.codec, c)
}

// fail releases the channel after a transport error; every later command
// fails fast with ErrConnectionClosed.
func (c *Connection) fail(err error) error {
	c.logger.Warn("transport failure, closing connection", zap.Error(err))
	if c.channel != nil {
		_ = c.channel.Close()
		c.channel = nil
	}
	return newNetworkError(err)
}
