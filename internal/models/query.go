package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ValueKind discriminates the variants of a Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindInt
	KindFloat
	KindBool
	KindText
)

// Value is a tagged variant for one cell of a generic query result.
//
// Driver values map to kinds with a fixed priority: int64 -> KindInt,
// float64 -> KindFloat, bool -> KindBool, []byte and string -> KindText,
// time.Time -> KindText (RFC 3339), nil -> KindNull. Anything else is
// formatted with %v and stored as text.
type Value struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Bool  bool
	Text  string
}

// NewValue converts a database driver value into a Value.
func NewValue(v any) Value {
	switch x := v.(type) {
	case nil:
		return Value{Kind: KindNull}
	case int64:
		return Value{Kind: KindInt, Int: x}
	case float64:
		return Value{Kind: KindFloat, Float: x}
	case bool:
		return Value{Kind: KindBool, Bool: x}
	case []byte:
		return Value{Kind: KindText, Text: string(x)}
	case string:
		return Value{Kind: KindText, Text: x}
	case time.Time:
		return Value{Kind: KindText, Text: x.Format(time.RFC3339)}
	default:
		return Value{Kind: KindText, Text: fmt.Sprintf("%v", x)}
	}
}

// IsNull reports whether the value is the null variant.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// String renders the value for display. Null renders as the empty string.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindText:
		return v.Text
	default:
		return ""
	}
}

// MarshalJSON emits the natural JSON form of the variant.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindInt:
		return json.Marshal(v.Int)
	case KindFloat:
		return json.Marshal(v.Float)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindText:
		return json.Marshal(v.Text)
	default:
		return []byte("null"), nil
	}
}

// QueryResult holds the column names and decoded rows of a generic query.
type QueryResult struct {
	Columns []string  `json:"columns"`
	Rows    [][]Value `json:"rows"`
}
