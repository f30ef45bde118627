package storage

import (
	"errors"
	"fmt"
	"time"
)

// ErrDecode is matched by every error returned from the typed Row accessors.
var ErrDecode = errors.New("row decode error")

// Kind is the storage class of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindText
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindBlob:
		return "blob"
	default:
		return "unknown"
	}
}

// Value is one column value of a Row.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    []byte
}

func NullValue() Value           { return Value{kind: KindNull} }
func IntValue(v int64) Value     { return Value{kind: KindInt, i: v} }
func FloatValue(v float64) Value { return Value{kind: KindFloat, f: v} }
func TextValue(v string) Value   { return Value{kind: KindText, s: v} }
func BlobValue(v []byte) Value   { return Value{kind: KindBlob, b: append([]byte(nil), v...)} }

func (v Value) Kind() Kind { return v.kind }

// valueOf converts what database/sql scans into an `any` to a Value.
func valueOf(src any) Value {
	switch x := src.(type) {
	case nil:
		return NullValue()
	case int64:
		return IntValue(x)
	case int:
		return IntValue(int64(x))
	case bool:
		if x {
			return IntValue(1)
		}
		return IntValue(0)
	case float64:
		return FloatValue(x)
	case string:
		return TextValue(x)
	case []byte:
		return BlobValue(x)
	case time.Time:
		return TextValue(x.UTC().Format(time.RFC3339Nano))
	default:
		return TextValue(fmt.Sprint(x))
	}
}

// DecodeError describes a failed typed access.
type DecodeError struct {
	Column string
	Want   Kind
	Got    Kind
	Absent bool
}

func (e *DecodeError) Error() string {
	if e.Absent {
		return fmt.Sprintf("row decode error: no column %q", e.Column)
	}
	return fmt.Sprintf("row decode error: column %q is %s, want %s", e.Column, e.Got, e.Want)
}

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// Row is an ordered mapping from column name to Value.
type Row struct {
	columns []string
	values  []Value
}

// NewRow builds a row; columns and values must have the same length.
func NewRow(columns []string, values []Value) Row {
	return Row{columns: append([]string(nil), columns...), values: append([]Value(nil), values...)}
}

// Columns returns the column names in result order.
func (r Row) Columns() []string { return append([]string(nil), r.columns...) }

// Get returns the value of column. The first column with that name wins.
func (r Row) Get(column string) (Value, error) {
	for i, c := range r.columns {
		if c == column {
			return r.values[i], nil
		}
	}
	return Value{}, &DecodeError{Column: column, Absent: true}
}

func (r Row) typed(column string, want Kind) (Value, error) {
	v, err := r.Get(column)
	if err != nil {
		return v, err
	}
	if v.kind != want {
		return v, &DecodeError{Column: column, Want: want, Got: v.kind}
	}
	return v, nil
}

// IsNull reports whether column holds NULL.
func (r Row) IsNull(column string) (bool, error) {
	v, err := r.Get(column)
	if err != nil {
		return false, err
	}
	return v.kind == KindNull, nil
}

func (r Row) Int(column string) (int64, error) {
	v, err := r.typed(column, KindInt)
	return v.i, err
}

// Bool reads an integer column as a boolean (non-zero is true).
func (r Row) Bool(column string) (bool, error) {
	v, err := r.typed(column, KindInt)
	return v.i != 0, err
}

func (r Row) Float(column string) (float64, error) {
	v, err := r.typed(column, KindFloat)
	return v.f, err
}

func (r Row) Text(column string) (string, error) {
	v, err := r.typed(column, KindText)
	return v.s, err
}

// OptionalText returns "" for NULL and fails on any other non-text value.
func (r Row) OptionalText(column string) (string, error) {
	v, err := r.Get(column)
	if err != nil || v.kind == KindNull {
		return "", err
	}
	if v.kind != KindText {
		return "", &DecodeError{Column: column, Want: KindText, Got: v.kind}
	}
	return v.s, nil
}

// Blob returns a copy of a blob column.
func (r Row) Blob(column string) ([]byte, error) {
	v, err := r.typed(column, KindBlob)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), v.b...), nil
}

// Time parses an RFC 3339 text column.
func (r Row) Time(column string) (time.Time, error) {
	s, err := r.Text(column)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: column %q: %w", ErrDecode, column, err)
	}
	return t, nil
}
