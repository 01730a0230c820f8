package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// dbTime scans timestamps stored natively (postgres) or as text (sqlite).
type dbTime struct {
	Time time.Time
}

var timeLayouts = []string{
	sqliteTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// Scan implements sql.Scanner.
func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case int64:
		t.Time = time.Unix(0, v).UTC()
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (t *dbTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

// parseDate reads a DATE column that may arrive as "YYYY-MM-DD" or as a full timestamp string.
func parseDate(v sql.NullString) *time.Time {
	if !v.Valid || len(v.String) < len(time.DateOnly) {
		return nil
	}
	d, err := time.Parse(time.DateOnly, v.String[:len(time.DateOnly)])
	if err != nil {
		return nil
	}
	return &d
}

func dateArg(d *time.Time) any {
	if d == nil {
		return nil
	}
	return d.Format(time.DateOnly)
}

func stringArg(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func floatArg(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
