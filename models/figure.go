package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

const naText = "N/A"

// Figure is a derived number that may be unavailable, for example a ratio
// with a zero denominator. Unavailable figures encode as "N/A".
type Figure struct {
	Value float64
	Valid bool
}

// Some wraps v, treating NaN and infinities as unavailable.
func Some(v float64) Figure {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Figure{}
	}
	return Figure{Value: v, Valid: true}
}

func NA() Figure {
	return Figure{}
}

func (f Figure) String() string {
	if !f.Valid {
		return naText
	}
	return strconv.FormatFloat(f.Value, 'f', -1, 64)
}

func (f Figure) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return json.Marshal(naText)
	}
	return json.Marshal(f.Value)
}

func (f *Figure) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`"N/A"`)) {
		*f = Figure{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Some(v)
	return nil
}
