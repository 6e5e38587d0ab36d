package protocol

import (
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Column describes one result column as reported by the server's metadata
// reply.
type Column struct {
	Name string
	Type string
}

// Row is one result row keyed by column name.
type Row map[string]any

// replyKind tags the three shapes a decoded reply object can take. The wire
// carries no tag byte; the shapes are disjoint by construction: a status
// reply is a map, column metadata is a non-empty array whose last element is
// itself an array, anything else is a row.
type replyKind int

const (
	replyStatus replyKind = iota
	replyMetadata
	replyRow
)

func classify(obj any) (replyKind, error) {
	switch v := obj.(type) {
	case map[string]any:
		return replyStatus, nil
	case []any:
		if len(v) > 0 {
			if _, ok := v[len(v)-1].([]any); ok {
				return replyMetadata, nil
			}
		}
		return replyRow, nil
	default:
		return 0, &Error{
			Code:    StatusUnknownError,
			Message: fmt.Sprintf("unexpected reply object of type %T", obj),
		}
	}
}

// checkStatus converts a status reply into an error for any non-OK code. A
// missing status field counts as an unknown error, a missing message falls
// back to DefaultMessage.
func checkStatus(obj map[string]any) error {
	code := StatusUnknownError
	if v, ok := obj["status"]; ok {
		if n, ok := replyInt(v); ok {
			code = n
		}
	}
	if code == StatusOK {
		return nil
	}

	message := DefaultMessage
	if v, ok := obj["message"].(string); ok {
		message = v
	}
	return &Error{Code: code, Message: message}
}

func replyInt(v any) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	default:
		return 0, false
	}
}

func parseColumns(obj []any) ([]Column, error) {
	columns := make([]Column, 0, len(obj))
	for _, item := range obj {
		pair, ok := item.([]any)
		if !ok || len(pair) != 2 {
			return nil, &Error{
				Code:    StatusUnknownError,
				Message: fmt.Sprintf("malformed column metadata entry %v", item),
			}
		}
		name, _ := pair[0].(string)
		typeName, _ := pair[1].(string)
		columns = append(columns, Column{Name: name, Type: typeName})
	}
	return columns, nil
}

// Rows streams the reply to one command. It is a single-pass, pull-based
// iterator: Next decodes the next object off the wire only when called, so
// memory stays bounded to one in-flight decode no matter how large the
// result set is. Column metadata is per-command state, it never leaks into
// the next command's reply.
//
// A non-OK status reply surfaces through Err and ends the stream; a
// transport failure additionally closes the owning connection.
type Rows struct {
	dec     *msgpack.Decoder
	codec   *Codec
	conn    *Connection
	columns []Column
	row     Row
	err     error
	done    bool
}

func newRows(dec *msgpack.Decoder, codec *Codec, conn *Connection) *Rows {
	return &Rows{dec: dec, codec: codec, conn: conn}
}

// Next advances to the next row. It returns false at the end of the reply or
// on error; check Err afterwards.
func (r *Rows) Next() bool {
	if r.done {
		return false
	}

	for {
		obj, err := r.dec.DecodeInterfaceLoose()
		if err != nil {
			r.done = true
			if errors.Is(err, io.EOF) {
				// Clean end of the reply burst. A truncated object mid-burst
				// comes back as io.ErrUnexpectedEOF and is treated as a
				// transport failure below.
				return false
			}
			r.err = r.fail(err)
			return false
		}

		kind, err := classify(obj)
		if err != nil {
			r.done = true
			r.err = err
			return false
		}

		switch kind {
		case replyStatus:
			if err := checkStatus(obj.(map[string]any)); err != nil {
				r.done = true
				r.err = err
				return false
			}
			// An OK status carries no row data, keep reading until the burst
			// is exhausted.
		case replyMetadata:
			columns, err := parseColumns(obj.([]any))
			if err != nil {
				r.done = true
				r.err = err
				return false
			}
			r.columns = columns
		case replyRow:
			r.row = r.buildRow(obj.([]any))
			return true
		}
	}
}

// buildRow zips raw values against the current column metadata, truncating
// to the shorter of the two, and decodes each value by its declared column
// type. A row arriving before any metadata yields an empty Row.
func (r *Rows) buildRow(values []any) Row {
	n := len(values)
	if len(r.columns) < n {
		n = len(r.columns)
	}
	row := make(Row, n)
	for i := 0; i < n; i++ {
		row[r.columns[i].Name] = r.codec.Decode(values[i], r.columns[i].Type)
	}
	return row
}

// Row returns the row produced by the last successful Next call.
func (r *Rows) Row() Row {
	return r.row
}

// Err returns the error that ended the stream, if any.
func (r *Rows) Err() error {
	return r.err
}

// Columns returns the column metadata most recently received. It is empty
// until the server's metadata reply has been read, which happens at the
// latest on the first Next call that yields a row.
func (r *Rows) Columns() []Column {
	return r.columns
}

// Drain consumes the rest of the reply, discarding rows. Handshake and drop
// replies carry no rows but must still be read off the wire; execute replies
// must be drained for a trailing error status to surface.
func (r *Rows) Drain() error {
	for r.Next() {
	}
	return r.err
}

func (r *Rows) fail(err error) error {
	if r.conn != nil {
		return r.conn.fail(err)
	}
	return newNetworkError(err)
}
