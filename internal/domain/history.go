package domain

import "time"

// EventType names the kind of transition recorded in the history log.
type EventType string

const (
	EventStatusChange   EventType = "status_change"
	EventLocationChange EventType = "location_change"
	EventNameChange     EventType = "name_change"
)

// HistoryEvent is an append-only fact about a transition of one animal.
type HistoryEvent struct {
	ID          int64
	DogID       int64
	Name        string
	EventType   EventType
	OldValue    *string
	NewValue    *string
	AdoptedDate *time.Time
	Notes       string
	CreatedAt   time.Time
}

// SameFact reports whether two events describe the same transition, ignoring ids and timestamps.
func (e HistoryEvent) SameFact(other HistoryEvent) bool {
	return e.DogID == other.DogID &&
		e.EventType == other.EventType &&
		e.Name == other.Name &&
		equalStrings(e.OldValue, other.OldValue) &&
		equalStrings(e.NewValue, other.NewValue) &&
		FormatDate(e.AdoptedDate) == FormatDate(other.AdoptedDate)
}

// Value returns a pointer to s, or nil when s is empty.
func Value(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func equalStrings(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
