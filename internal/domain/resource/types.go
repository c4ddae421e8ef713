package resource

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// The remote API is loose about scalar encodings. Numbers arrive as
// numbers or quoted strings, timestamps in several layouts, and any
// field may be null or absent. The types below absorb that looseness
// at the decode boundary so the rest of the code works with clean
// Go values. A malformed value decodes to the zero value rather than
// failing the whole record.

var instantLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Instant is a timestamp that tolerates the API's mixed layouts.
// The zero Instant means the field was absent, null, or unparseable.
type Instant struct {
	time.Time
}

func (i *Instant) UnmarshalJSON(data []byte) error {
	i.Time = time.Time{}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" || s == "0000-00-00 00:00:00" {
		return nil
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			i.Time = t.UTC()
			return nil
		}
	}
	return nil
}

func (i Instant) MarshalJSON() ([]byte, error) {
	if i.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(i.UTC().Format(time.RFC3339))
}

// YearMonth returns the "2006-01" bucket key, or "" for a zero Instant.
func (i Instant) YearMonth() string {
	if i.IsZero() {
		return ""
	}
	return i.UTC().Format("2006-01")
}

// Number is a float64 that accepts JSON numbers, numeric strings, and null.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	*n = 0
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*n = Number(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		*n = Number(f)
	}
	return nil
}

// Integer is an int64 that accepts JSON numbers, numeric strings, and null.
type Integer int64

func (n *Integer) UnmarshalJSON(data []byte) error {
	*n = 0
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var i int64
	if err := json.Unmarshal(data, &i); err == nil {
		*n = Integer(i)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*n = Integer(int64(f))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		*n = Integer(i)
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*n = Integer(int64(f))
	}
	return nil
}
