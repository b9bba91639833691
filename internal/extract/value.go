package extract

import (
	"encoding/json"
	"strings"
)

// Value is an extracted field value: either a single string or a list of
// strings. The zero Value is an empty scalar.
type Value struct {
	list   []string
	scalar string
	multi  bool
}

// Scalar returns a single-valued Value.
func Scalar(s string) Value {
	return Value{scalar: s}
}

// List returns a multi-valued Value. A nil or empty list is still a list.
func List(vs ...string) Value {
	return Value{list: append([]string{}, vs...), multi: true}
}

// IsList reports whether v is multi-valued.
func (v Value) IsList() bool { return v.multi }

// IsEmpty reports whether v carries no text.
func (v Value) IsEmpty() bool {
	if v.multi {
		return len(v.list) == 0
	}
	return v.scalar == ""
}

// Values returns the list form of v.
func (v Value) Values() []string {
	if v.multi {
		return v.list
	}
	if v.scalar == "" {
		return nil
	}
	return []string{v.scalar}
}

// String joins list values with a single space.
func (v Value) String() string {
	if v.multi {
		return strings.Join(v.list, " ")
	}
	return v.scalar
}

// MarshalJSON writes a scalar as a string (null when empty) and a list as an
// array ([] when empty).
func (v Value) MarshalJSON() ([]byte, error) {
	if v.multi {
		return json.Marshal(v.list)
	}
	if v.scalar == "" {
		return []byte("null"), nil
	}
	return json.Marshal(v.scalar)
}
