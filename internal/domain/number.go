package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Number is an estimate value as written to JSON. Finite values encode as
// JSON numbers; infinities and NaN encode as the strings "+Inf", "-Inf"
// and "NaN", which a large bias can produce.
type Number float64

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return []byte(strconv.Quote(strconv.FormatFloat(f, 'g', -1, 64))), nil
	}
	return json.Marshal(f)
}

// UnmarshalJSON accepts a JSON number or one of the strings MarshalJSON emits.
func (n *Number) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return fmt.Errorf("decode number: %w", err)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || !(math.IsInf(f, 0) || math.IsNaN(f)) {
			return fmt.Errorf("decode number: unexpected string %q", s)
		}
		*n = Number(f)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("decode number: %w", err)
	}
	*n = Number(f)
	return nil
}

// Numbers converts an estimate map for JSON output.
func Numbers(m map[District]float64) map[District]Number {
	out := make(map[District]Number, len(m))
	for d, v := range m {
		out[d] = Number(v)
	}
	return out
}
