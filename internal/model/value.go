package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is an optional sample value. The zero Value is missing, which is
// distinct from a present 0.
type Value struct {
	v     float64
	valid bool
}

// Some returns a present value. Non-finite inputs are treated as missing.
func Some(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Value{}
	}
	return Value{v: v, valid: true}
}

// Missing returns the explicit "no data" marker.
func Missing() Value { return Value{} }

// Valid reports whether the value is present.
func (v Value) Valid() bool { return v.valid }

// Get returns the value and whether it is present.
func (v Value) Get() (float64, bool) { return v.v, v.valid }

// Or returns the value, or fallback when missing.
func (v Value) Or(fallback float64) float64 {
	if !v.valid {
		return fallback
	}
	return v.v
}

func (v Value) String() string {
	if !v.valid {
		return "NaN"
	}
	return strconv.FormatFloat(v.v, 'f', -1, 64)
}

// MarshalJSON encodes a missing value as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.v)
}

// UnmarshalJSON accepts numbers, null, "NaN" and numeric strings.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Missing()
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = parseValueString(s)
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("value: %w", err)
	}
	*v = Some(f)
	return nil
}

// MarshalYAML encodes a missing value as null.
func (v Value) MarshalYAML() (interface{}, error) {
	if !v.valid {
		return nil, nil
	}
	return v.v, nil
}

func parseValueString(s string) Value {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return Missing()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Missing()
	}
	return Some(f)
}

// Mean returns the arithmetic mean of the present values, or Missing when
// none are present.
func Mean(values []Value) Value {
	var sum float64
	n := 0
	for _, v := range values {
		if !v.valid {
			continue
		}
		sum += v.v
		n++
	}
	if n == 0 {
		return Missing()
	}
	return Some(sum / float64(n))
}

// Present returns the present values as plain floats.
func Present(values []Value) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if v.valid {
			out = append(out, v.v)
		}
	}
	return out
}
