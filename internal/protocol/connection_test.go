package protocol

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Outernet-Project/qlizator-go/internal/protocol/protocoltest"
)

func testConfig(addr string) Config {
	return Config{
		Addr:     addr,
		Database: "main",
		Path:     "/srv/main.sqlite",
		Timeout:  500 * time.Millisecond,
	}
}

func TestConnect(t *testing.T) {
	t.Parallel()

	server := protocoltest.Start(t, protocoltest.OK())

	conn, err := Connect(testConfig(server.Addr()))
	require.NoError(t, err)
	defer conn.Close()

	assert.False(t, conn.Closed())

	requests := server.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "connect", requests[0]["endpoint"])
	assert.Equal(t, "main", requests[0]["database"])
	assert.Equal(t, "/srv/main.sqlite", requests[0]["path"])
}

func TestConnect_DialFailure(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	_, err = Connect(testConfig(addr))
	require.Error(t, err)

	var protoErr *Error
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, StatusNetworkError, protoErr.Code)
	assert.Error(t, protoErr.Unwrap())
}

func TestConnect_HandshakeErrorStatus(t *testing.T) {
	t.Parallel()

	server := protocoltest.Start(t, protocoltest.Status(StatusDatabaseOpeningError, "cannot open database"))

	_, err := Connect(testConfig(server.Addr()))
	require.Error(t, err)

	var protoErr *Error
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, StatusDatabaseOpeningError, protoErr.Code)
	assert.Equal(t, "cannot open database", protoErr.Message)
}

func TestConnection_Fetch(t *testing.T) {
	t.Parallel()

	server := protocoltest.Start(t,
		protocoltest.OK(),
		protocoltest.Result(
			[][2]string{{"id", "int"}, {"name", "text"}},
			[]any{1, "Alice"},
			[]any{2, "Bob"},
		),
	)

	conn, err := Connect(testConfig(server.Addr()))
	require.NoError(t, err)
	defer conn.Close()

	rows, err := conn.Fetch("SELECT id, name FROM users")
	require.NoError(t, err)

	var got []Row
	for rows.Next() {
		got = append(got, rows.Row())
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []Row{
		{"id": int64(1), "name": "Alice"},
		{"id": int64(2), "name": "Bob"},
	}, got)

	requests := server.Requests()
	require.Len(t, requests, 2)
	query := requests[1]
	assert.Equal(t, "query", query["endpoint"])
	assert.Equal(t, int64(ExecuteAndFetch), query["operation"])
	assert.Equal(t, "main", query["database"])
	assert.Equal(t, "SELECT id, name FROM users", query["query"])
	assert.Equal(t, []any{}, query["parameters"])
}

func TestConnection_ExecuteEncodesParameters(t *testing.T) {
	t.Parallel()

	server := protocoltest.Start(t, protocoltest.OK(), protocoltest.OK())

	conn, err := Connect(testConfig(server.Addr()))
	require.NoError(t, err)
	defer conn.Close()

	created := time.Date(2024, 1, 2, 15, 30, 27, 0, time.UTC)
	rows, err := conn.Execute(
		"INSERT INTO users(id, name, active, score, avatar, bio, created) VALUES(?, ?, ?, ?, ?, ?, ?)",
		int64(1), "Alice", true, 99.5, []byte{0xde, 0xad}, nil, created,
	)
	require.NoError(t, err)
	require.NoError(t, rows.Drain())

	requests := server.Requests()
	require.Len(t, requests, 2)
	query := requests[1]
	assert.Equal(t, int64(Execute), query["operation"])

	// Every supported scalar survives the trip to the server unchanged; the
	// codec only rewrites registered types such as time.Time.
	assert.Equal(t, []any{
		int64(1), "Alice", true, 99.5, []byte{0xde, 0xad}, nil, "2024-01-02 15:30:27",
	}, query["parameters"])
}

func TestConnection_ServerErrorKeepsConnectionUsable(t *testing.T) {
	t.Parallel()

	server := protocoltest.Start(t,
		protocoltest.OK(),
		protocoltest.Status(StatusInvalidQuery, "no such table"),
		protocoltest.OK(),
	)

	conn, err := Connect(testConfig(server.Addr()))
	require.NoError(t, err)
	defer conn.Close()

	rows, err := conn.Execute("SELECT * FROM missing")
	require.NoError(t, err)

	err = rows.Drain()
	require.Error(t, err)

	var protoErr *Error
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, 5, protoErr.Code)
	assert.Equal(t, "no such table", protoErr.Message)

	// The transport is intact, the next command goes through.
	assert.False(t, conn.Closed())

	rows, err = conn.Execute("DELETE FROM users")
	require.NoError(t, err)
	require.NoError(t, rows.Drain())
}

func TestConnection_MetadataDoesNotLeakBetweenCommands(t *testing.T) {
	t.Parallel()

	server := protocoltest.Start(t,
		protocoltest.OK(),
		protocoltest.Result(
			[][2]string{{"a", "int"}, {"b", "text"}},
			[]any{1, "x"},
		),
		// Second command replies with a bare row and no metadata.
		protocoltest.Reply{Objects: []any{
			[]any{9, "z"},
			map[string]any{"status": 0},
		}},
	)

	conn, err := Connect(testConfig(server.Addr()))
	require.NoError(t, err)
	defer conn.Close()

	rows, err := conn.Fetch("SELECT a, b FROM first")
	require.NoError(t, err)
	require.True(t, rows.Next())
	assert.Equal(t, Row{"a": int64(1), "b": "x"}, rows.Row())
	require.NoError(t, rows.Drain())

	// Metadata state is per command: the first command's columns must not be
	// used to build the second command's rows.
	rows, err = conn.Fetch("SELECT * FROM second")
	require.NoError(t, err)
	require.True(t, rows.Next())
	assert.Equal(t, Row{}, rows.Row())
	assert.Empty(t, rows.Columns())
	require.NoError(t, rows.Drain())
}

func TestConnection_NetworkErrorMidFetchClosesConnection(t *testing.T) {
	t.Parallel()

	server := protocoltest.Start(t,
		protocoltest.OK(),
		protocoltest.Reply{Silent: true},
	)

	config := testConfig(server.Addr())
	config.Timeout = 200 * time.Millisecond

	conn, err := Connect(config)
	require.NoError(t, err)

	rows, err := conn.Fetch("SELECT * FROM users")
	require.NoError(t, err)

	assert.False(t, rows.Next())

	var protoErr *Error
	require.ErrorAs(t, rows.Err(), &protoErr)
	assert.Equal(t, StatusNetworkError, protoErr.Code)
	assert.Error(t, protoErr.Unwrap())

	assert.True(t, conn.Closed())

	_, err = conn.Execute("SELECT 1")
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestConnection_DropDatabase(t *testing.T) {
	t.Parallel()

	server := protocoltest.Start(t, protocoltest.OK(), protocoltest.OK())

	conn, err := Connect(testConfig(server.Addr()))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.DropDatabase())

	requests := server.Requests()
	require.Len(t, requests, 2)
	assert.Equal(t, "drop", requests[1]["endpoint"])
	assert.Equal(t, "main", requests[1]["database"])
	assert.Equal(t, "/srv/main.sqlite", requests[1]["path"])
}

func TestConnection_Close(t *testing.T) {
	t.Parallel()

	server := protocoltest.Start(t, protocoltest.OK())

	conn, err := Connect(testConfig(server.Addr()))
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	assert.True(t, conn.Closed())

	assert.ErrorIs(t, conn.Close(), ErrConnectionClosed)
	assert.ErrorIs(t, conn.DropDatabase(), ErrConnectionClosed)

	_, err = conn.Execute("SELECT 1")
	assert.ErrorIs(t, err, ErrConnectionClosed)

	_, err = conn.Fetch("SELECT 1")
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestConnection_TooManyParameters(t *testing.T) {
	t.Parallel()

	server := protocoltest.Start(t, protocoltest.OK())

	conn, err := Connect(testConfig(server.Addr()))
	require.NoError(t, err)
	defer conn.Close()

	params := make([]any, MaxVariableNumber+1)
	_, err = conn.Execute("SELECT 1", params...)
	assert.ErrorIs(t, err, ErrTooManyParameters)
}
