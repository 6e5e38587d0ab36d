package qlizator

import (
	"database/sql/driver"
	"fmt"
	"io"
	"time"

	"github.com/Outernet-Project/qlizator-go/internal/protocol"
)

// Rows adapts the protocol's pull-based row stream to driver.Rows. The
// stream is primed with a single pull on construction so that column
// metadata, which the server sends ahead of the first row, is available to
// Columns before the first Next call; the pending row is replayed on that
// first call.
type Rows struct {
	rows    *protocol.Rows
	pending protocol.Row
	replay  bool
}

func newRows(protoRows *protocol.Rows) (*Rows, error) {
	r := &Rows{rows: protoRows}
	if protoRows.Next() {
		r.pending = protoRows.Row()
		r.replay = true
	} else if err := protoRows.Err(); err != nil {
		return nil, err
	}
	return r, nil
}

// Columns returns the names of the columns. The number of
// columns of the result is inferred from the length of the
// slice. If a particular column name isn't known, an empty
// string should be returned for that entry.
func (r *Rows) Columns() []string {
	columns := r.rows.Columns()
	names := make([]string, 0, len(columns))
	for _, aColumn := range columns {
		names = append(names, aColumn.Name)
	}
	return names
}

// Close drains whatever is left of the reply stream so the connection is
// ready for the next command.
func (r *Rows) Close() error {
	r.replay = false
	return r.rows.Drain()
}

// Next is called to populate the next row of data into
// the provided slice. The provided slice will be the same
// size as the Columns() are wide.
//
// Next should return io.EOF when there are no more rows.
//
// The dest should not be written to outside of Next. Care
// should be taken when closing Rows not to modify
// a buffer held in dest.
func (r *Rows) Next(dest []driver.Value) error {
	var aRow protocol.Row
	if r.replay {
		aRow = r.pending
		r.pending = nil
		r.replay = false
	} else {
		if !r.rows.Next() {
			if err := r.rows.Err(); err != nil {
				return err
			}
			return io.EOF
		}
		aRow = r.rows.Row()
	}

	columns := r.rows.Columns()
	for i := range dest {
		if i < len(columns) {
			dest[i] = driverValue(aRow[columns[i].Name])
		} else {
			dest[i] = nil
		}
	}

	return nil
}

// driverValue narrows a decoded wire value to the driver.Value set. Custom
// codec converters may produce arbitrary native types; anything outside the
// allowed set is rendered as a string.
func driverValue(v any) driver.Value {
	switch value := v.(type) {
	case nil:
		return nil
	case int64, float64, bool, []byte, string, time.Time:
		return value
	case uint64:
		return int64(value)
	default:
		return fmt.Sprint(value)
	}
}

var _ driver.Rows = (*Rows)(nil)
