// Package clock provides the wall clock bound to the shelter's time zone.
package clock

import (
	"sync"
	"time"

	"ShelterSync/internal/domain"
	"ShelterSync/internal/ports"
)

// System reads the real time.
type System struct {
	loc *time.Location
}

var _ ports.Clock = (*System)(nil)

// New returns a system clock reporting civil dates in loc.
func New(loc *time.Location) *System {
	if loc == nil {
		loc = time.UTC
	}
	return &System{loc: loc}
}

func (s *System) Now() time.Time           { return time.Now().In(s.loc) }
func (s *System) Location() *time.Location { return s.loc }

// Fixed is a manually advanced clock for tests and replays.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
	loc *time.Location
}

var _ ports.Clock = (*Fixed)(nil)

// NewFixed pins the clock at now.
func NewFixed(now time.Time, loc *time.Location) *Fixed {
	if loc == nil {
		loc = time.UTC
	}
	return &Fixed{now: now, loc: loc}
}

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now.In(f.loc)
}

func (f *Fixed) Location() *time.Location { return f.loc }

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Today returns the current civil date of c.
func Today(c ports.Clock) time.Time {
	return domain.CivilDate(c.Now(), c.Location())
}
