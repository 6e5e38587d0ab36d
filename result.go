package qlizator

import (
	"errors"
)

// Result is returned from Exec. The server's reply for an execute command
// carries only a status object, so neither counter is available.
type Result struct{}

// LastInsertId returns the database's auto-generated ID
// after, for example, an INSERT into a table with primary
// key.
func (r Result) LastInsertId() (int64, error) {
	return 0, errors.New("qlizator: last insert ID is not reported by the server")
}

// RowsAffected returns the number of rows affected by the
// query.
func (r Result) RowsAffected() (int64, error) {
	return 0, errors.New("qlizator: rows affected is not reported by the server")
}
