// Package qlizator provides a database/sql driver for the qlizator remote
// SQL-execution service. The driver speaks the service's msgpack wire
// protocol over a single TCP connection per driver.Conn; see
// internal/protocol for the protocol engine itself.
package qlizator

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Outernet-Project/qlizator-go/internal/pkg/logging"
	"github.com/Outernet-Project/qlizator-go/internal/protocol"
)

const (
	driverName = "qlizator"
)

func init() {
	sql.Register(driverName, &Driver{})
}

// Driver implements the database/sql/driver.Driver interface.
type Driver struct{}

// Open returns a new connection to the remote server. The name is a
// qlizator:// connection string, see ParseConnectionString. Opening performs
// the connect handshake synchronously and fails if the server cannot attach
// the requested database.
func (d *Driver) Open(name string) (driver.Conn, error) {
	config, err := ParseConnectionString(name)
	if err != nil {
		return nil, err
	}

	logConf := logging.DefaultConfig()
	logConf.Level = config.GetZapLevel()
	logger, err := logConf.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	conn, err := protocol.Connect(protocol.Config{
		Addr:     config.Addr(),
		Database: config.Database,
		Path:     config.Path,
		Timeout:  config.Timeout,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	return &Conn{conn: conn, logger: logger}, nil
}

// Conn implements the database/sql/driver.Conn interface. The wire protocol
// allows one command in flight per connection; database/sql serializes use
// of a single driver connection, which matches that discipline as long as
// every Rows is closed before the next statement runs.
type Conn struct {
	conn   *protocol.Connection
	logger *zap.Logger
}

// Ping reports driver.ErrBadConn once the underlying connection has been
// lost so the pool discards it. The protocol has no ping command, so a
// healthy connection is not actually probed.
func (c *Conn) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.conn.Closed() {
		return driver.ErrBadConn
	}
	return nil
}

// Close releases the underlying network connection. Safe to call on a
// connection already closed by a transport failure.
func (c *Conn) Close() error {
	if c.conn.Closed() {
		return nil
	}
	c.logger.Debug("closing connection")
	return c.conn.Close()
}

// Prepare returns a prepared statement, bound to this connection. The server
// has no prepare command; the statement simply carries the query text and
// binds parameters on execution.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return Stmt{conn: c, query: query}, nil
}

// Begin starts and returns a new transaction.
//
// Deprecated: Drivers should implement ConnBeginTx instead (or additionally).
func (c *Conn) Begin() (driver.Tx, error) {
	return nil, errors.New("qlizator: transactions are not supported")
}

// ExecContext executes a query that doesn't return rows.
func (c *Conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	params, err := toParams(args)
	if err != nil {
		return nil, err
	}

	rows, err := c.conn.Execute(query, params...)
	if err != nil {
		return nil, err
	}
	// The reply carries no rows, but the trailing status object must be
	// read off the wire for server errors to surface.
	if err := rows.Drain(); err != nil {
		return nil, err
	}

	return Result{}, nil
}

// QueryContext executes a query that may return rows.
func (c *Conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	params, err := toParams(args)
	if err != nil {
		return nil, err
	}

	protoRows, err := c.conn.Fetch(query, params...)
	if err != nil {
		return nil, err
	}

	return newRows(protoRows)
}

// DropDatabase deletes the attached database on the server. It is not part
// of any database/sql interface; callers reach it through the underlying
// driver connection.
func (c *Conn) DropDatabase() error {
	return c.conn.DropDatabase()
}

func toParams(args []driver.NamedValue) ([]any, error) {
	params := make([]any, 0, len(args))
	for _, arg := range args {
		if arg.Name != "" {
			return nil, errors.New("qlizator: named parameters are not supported")
		}
		params = append(params, arg.Value)
	}
	return params, nil
}

// Ensure interfaces are implemented
var _ driver.Driver = (*Driver)(nil)
var _ driver.Conn = (*Conn)(nil)
var _ driver.Pinger = (*Conn)(nil)
var _ driver.ExecerContext = (*Conn)(nil)
var _ driver.QueryerContext = (*Conn)(nil)
