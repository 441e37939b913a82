package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DayAvailability is one calendar date and its published time slots
type DayAvailability struct {
	Date  string   `json:"date"`
	Times []string `json:"times"`
}

// Schedule is a service's published availability. The wire format is a
// JSON object mapping date to a list of times; decoding preserves the
// document's key order, which is also the order slots are listed in.
type Schedule []DayAvailability

// UnmarshalJSON decodes the {date: [time, ...]} object keeping the
// keys in document order
func (s *Schedule) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to decode schedule: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("schedule must be a JSON object, got %v", tok)
	}

	out := Schedule{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("failed to decode schedule key: %w", err)
		}
		date, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("schedule key must be a string, got %v", keyTok)
		}

		var times []string
		if err := dec.Decode(&times); err != nil {
			return fmt.Errorf("failed to decode times for %s: %w", date, err)
		}

		out = append(out, DayAvailability{Date: date, Times: times})
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("failed to decode schedule: %w", err)
	}

	*s = out
	return nil
}

// MarshalJSON re-encodes the schedule as an object in the stored order
func (s Schedule) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, day := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(day.Date)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		times, err := json.Marshal(day.Times)
		if err != nil {
			return nil, err
		}
		buf.Write(times)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Contains reports whether the slot appears in the published schedule
func (s Schedule) Contains(slot BookableSlot) bool {
	for _, day := range s {
		if day.Date != slot.Date {
			continue
		}
		for _, t := range day.Times {
			if t == slot.Time {
				return true
			}
		}
	}
	return false
}
