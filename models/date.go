package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/biosecret/go-tasks/apperror"
)

const dateOnly = "2006-01-02"

// Date is a due date as sent by clients: either a full RFC 3339 timestamp
// or a bare calendar date, which is read as midnight UTC.
type Date struct {
	time.Time
}

// ParseDate accepts RFC 3339 (with or without fractional seconds) or YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return Date{t.UTC()}, nil
	}
	if t, err := time.Parse(dateOnly, s); err == nil {
		return Date{t.UTC()}, nil
	}
	return Date{}, apperror.InvalidInput("invalid date %q: want RFC 3339 or YYYY-MM-DD", s)
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.UTC().Format(time.RFC3339Nano))
}
