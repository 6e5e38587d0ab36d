package protocol

import (
	"reflect"
	"time"
)

// EncodeFunc converts a native value into a primitive the wire codec can
// encode directly.
type EncodeFunc func(value any) any

// DecodeFunc converts a wire primitive into a native value. It receives the
// raw decoded value of a column whose declared type the function was
// registered for.
type DecodeFunc func(value any) any

// Codec holds the two conversion registries used by a connection: native
// type to wire primitive for outgoing parameters, declared column type name
// to native value for incoming rows. Lookup is a single equality check on
// the exact type or name; an unregistered value passes through unchanged
// since the wire codec encodes common scalars natively. Registration
// overwrites, never removes.
//
// A Codec is not safe for concurrent registration; register converters
// before handing it to a connection.
type Codec struct {
	encoders map[reflect.Type]EncodeFunc
	decoders map[string]DecodeFunc
}

// NewCodec returns an empty codec: every value passes through unchanged
// until converters are registered.
func NewCodec() *Codec {
	return &Codec{
		encoders: make(map[reflect.Type]EncodeFunc),
		decoders: make(map[string]DecodeFunc),
	}
}

// SQLiteDateTypes are the declared column types the server reports for
// SQLite date and time columns.
var SQLiteDateTypes = []string{"date", "datetime", "timestamp"}

const (
	sqliteDateTimeFormat = "2006-01-02 15:04:05"
	sqliteDateFormat     = "2006-01-02"
)

// DefaultCodec returns a codec with converters for the SQLite date types:
// time.Time parameters encode to the SQLite datetime string and date-typed
// column values decode back into time.Time.
func DefaultCodec() *Codec {
	c := NewCodec()
	c.RegisterEncoder(reflect.TypeOf(time.Time{}), func(value any) any {
		return value.(time.Time).UTC().Format(sqliteDateTimeFormat)
	})
	for _, typeName := range SQLiteDateTypes {
		c.RegisterDecoder(typeName, decodeSQLiteDate)
	}
	return c
}

func decodeSQLiteDate(value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	if t, err := time.Parse(sqliteDateTimeFormat, s); err == nil {
		return t
	}
	if t, err := time.Parse(sqliteDateFormat, s); err == nil {
		return t
	}
	return value
}

// RegisterEncoder registers fn for parameter values of exactly type t.
func (c *Codec) RegisterEncoder(t reflect.Type, fn EncodeFunc) {
	c.encoders[t] = fn
}

// RegisterDecoder registers fn for column values whose declared type name
// equals typeName.
func (c *Codec) RegisterDecoder(typeName string, fn DecodeFunc) {
	c.decoders[typeName] = fn
}

// Encode converts an outgoing parameter value, passing it through unchanged
// when no converter is registered for its type.
func (c *Codec) Encode(value any) any {
	if value == nil {
		return nil
	}
	fn, ok := c.encoders[reflect.TypeOf(value)]
	if !ok {
		return value
	}
	return fn(value)
}

// Decode converts an incoming column value by declared type name, passing it
// through unchanged when no converter is registered for the name.
func (c *Codec) Decode(value any, typeName string) any {
	fn, ok := c.decoders[typeName]
	if !ok {
		return value
	}
	return fn(value)
}
