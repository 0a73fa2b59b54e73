package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// timestampLayouts are the string forms the backend has been seen to emit
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp decodes a JSON timestamp that is either a number of unix
// seconds (fractional allowed) or a string in RFC3339 or SQLite layout.
// null and "" decode to the zero time. Naive strings are read as UTC.
func ParseTimestamp(data []byte) (time.Time, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return time.Time{}, nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return time.Time{}, err
		}
		return parseTimestampString(s)
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %s", string(data))
	}
	return unixSeconds(f), nil
}

func parseTimestampString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return unixSeconds(f), nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func unixSeconds(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// videoJSON is the wire form of Video: duration in seconds, flexible timestamps
type videoJSON struct {
	*videoAlias
	Duration  float64         `json:"duration,omitempty"`
	CreatedAt json.RawMessage `json:"created_at,omitempty"`
	UpdatedAt json.RawMessage `json:"updated_at,omitempty"`
}

type videoAlias Video

// UnmarshalJSON decodes the backend's video row
func (v *Video) UnmarshalJSON(data []byte) error {
	aux := videoJSON{videoAlias: (*videoAlias)(v)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	v.Duration = time.Duration(aux.Duration * float64(time.Second))

	var err error
	if v.CreatedAt, err = ParseTimestamp(aux.CreatedAt); err != nil {
		return fmt.Errorf("created_at: %w", err)
	}
	if v.UpdatedAt, err = ParseTimestamp(aux.UpdatedAt); err != nil {
		return fmt.Errorf("updated_at: %w", err)
	}
	return nil
}

// MarshalJSON writes the same shape UnmarshalJSON reads
func (v Video) MarshalJSON() ([]byte, error) {
	aux := videoJSON{
		videoAlias: (*videoAlias)(&v),
		Duration:   v.Duration.Seconds(),
	}
	if !v.CreatedAt.IsZero() {
		aux.CreatedAt, _ = json.Marshal(v.CreatedAt.Format(time.RFC3339Nano))
	}
	if !v.UpdatedAt.IsZero() {
		aux.UpdatedAt, _ = json.Marshal(v.UpdatedAt.Format(time.RFC3339Nano))
	}
	return json.Marshal(aux)
}
