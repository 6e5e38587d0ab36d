package protocol

import (
	"fmt"
)

// The qlizator wire protocol is a synchronous request/reply exchange over a
// single TCP connection. Every message in both directions is one msgpack
// object; messages are concatenated back to back with no length prefix, the
// msgpack encoding itself determines object boundaries. A command envelope
// goes out, then the server answers with an optional column metadata object,
// zero or more row objects and a terminating status object.

// Operation selects how the server executes a query command.
type Operation int

const (
	// Execute runs the statement without returning result rows.
	Execute Operation = 1
	// ExecuteAndFetch runs the statement and streams result rows back.
	ExecuteAndFetch Operation = 2
)

// Server reply status codes. StatusDatabaseNotFound and StatusInvalidQuery
// share the value 5: the server reports both conditions with the same code.
const (
	StatusOK                   = 0
	StatusUnknownError         = 1
	StatusInvalidRequest       = 2
	StatusDeserializationError = 3
	StatusDatabaseOpeningError = 4
	StatusDatabaseNotFound     = 5
	StatusInvalidQuery         = 5

	// StatusNetworkError is client-local, never sent by the server. It marks
	// failures of the transport itself.
	StatusNetworkError = 100
)

// DefaultMessage is used when an error reply carries no message field.
const DefaultMessage = "Unknown error."

// MaxVariableNumber is the maximum number of bound parameters the server's
// SQLite backend accepts for a single statement.
const MaxVariableNumber = 999

const (
	endpointConnect = "connect"
	endpointQuery   = "query"
	endpointDrop    = "drop"
)

// attachRequest selects or drops a named database file on the server. Used
// for the connect handshake and for drop commands.
type attachRequest struct {
	Endpoint string `msgpack:"endpoint"`
	Database string `msgpack:"database"`
	Path     string `msgpack:"path"`
}

// queryRequest executes a SQL statement against the attached database.
// Parameters must be a non-nil slice so an empty parameter list still
// encodes as an empty msgpack array.
type queryRequest struct {
	Endpoint   string    `msgpack:"endpoint"`
	Operation  Operation `msgpack:"operation"`
	Database   string    `msgpack:"database"`
	Query      string    `msgpack:"query"`
	Parameters []any     `msgpack:"parameters"`
}

// Error is the single error kind surfaced by this package. Code is either a
// server status code or the client-local StatusNetworkError, in which case
// Err wraps the underlying transport failure.
type Error struct {
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("qlizator: %s (status %d)", e.Message, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newNetworkError(err error) *Error {
	return &Error{Code: StatusNetworkError, Message: err.Error(), Err: err}
}
