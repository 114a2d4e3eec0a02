package results

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Value is a single metric reading.
//
// The zero Value is unavailable ("not measured"), which is deliberately
// distinct from a measured zero. Values encode as a JSON number, or null when
// unavailable.
type Value struct {
	n  float64
	ok bool
}

// Of returns an available Value holding n.
func Of(n float64) Value {
	return Value{n: n, ok: true}
}

// Unavailable returns the unavailable sentinel.
func Unavailable() Value {
	return Value{}
}

// Available reports whether the value was measured.
func (v Value) Available() bool {
	return v.ok
}

// Get returns the number and whether it was measured.
func (v Value) Get() (float64, bool) {
	return v.n, v.ok
}

// Float returns the number, or 0 for an unavailable value. Callers that need
// to tell the two apart must use Get or Available.
func (v Value) Float() float64 {
	if !v.ok {
		return 0
	}
	return v.n
}

// Plus adds two values. Unavailable operands are ignored; the result is
// unavailable only if both are.
func (v Value) Plus(o Value) Value {
	switch {
	case !v.ok:
		return o
	case !o.ok:
		return v
	}
	return Of(v.n + o.n)
}

// Max returns the larger of two values, ignoring unavailable operands.
func (v Value) Max(o Value) Value {
	switch {
	case !v.ok:
		return o
	case !o.ok:
		return v
	}
	if o.n > v.n {
		return o
	}
	return v
}

func (v Value) String() string {
	if !v.ok {
		return "N/A"
	}
	return strconv.FormatFloat(v.n, 'f', -1, 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.ok {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(v.n, 'f', -1, 64)), nil
}

// UnmarshalJSON never fails on a well-formed JSON token: null, strings (the
// legacy "N/A" marker), booleans, arrays and objects all decode as
// unavailable.
func (v *Value) UnmarshalJSON(data []byte) error {
	*v = Value{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] == 'n' || data[0] == '"' || data[0] == '{' || data[0] == '[' || data[0] == 't' || data[0] == 'f' {
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return nil
	}
	*v = Of(n)
	return nil
}
