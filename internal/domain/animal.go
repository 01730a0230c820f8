package domain

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an animal as tracked by the shelter.
type Status string

const (
	StatusAvailable     Status = "available"
	StatusAdopted       Status = "adopted"
	StatusAvailableSoon Status = "available_soon"
	StatusPendingReview Status = "pending_review"
	StatusUnknown       Status = "unknown"
)

// Known reports whether the status carries information worth diffing.
func (s Status) Known() bool {
	switch s {
	case StatusAvailable, StatusAdopted, StatusAvailableSoon, StatusPendingReview:
		return true
	default:
		return false
	}
}

// Tracked reports whether the animal is expected to be visible on the source listing.
func (s Status) Tracked() bool {
	return s == StatusAvailable || s == StatusAvailableSoon
}

// ParseStatus maps a stored value back to a Status, defaulting to StatusUnknown.
func ParseStatus(value string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusAvailable:
		return StatusAvailable
	case StatusAdopted:
		return StatusAdopted
	case StatusAvailableSoon:
		return StatusAvailableSoon
	case StatusPendingReview:
		return StatusPendingReview
	default:
		return StatusUnknown
	}
}

// AgeGroup is the canonical age bucket.
type AgeGroup string

const (
	AgePuppy  AgeGroup = "Puppy"
	AgeAdult  AgeGroup = "Adult"
	AgeSenior AgeGroup = "Senior"
)

// Animal is one physical animal keyed by the id assigned by the source.
type Animal struct {
	ID               int64
	Name             string
	Status           Status
	Location         string
	Origin           string
	IntakeDate       *time.Time
	BirthDate        *time.Time
	AdoptedDate      *time.Time
	LengthOfStayDays *int
	AgeGroup         *AgeGroup
	Breed            string
	SecondaryBreed   string
	WeightGroup      string
	Color            string
	Notes            string
	DetailURL        string
	Latitude         *float64
	Longitude        *float64
	ReturnedCount    int
	VerifiedAdoption bool
	UpdatedAt        time.Time
}

// WithShelterFields copies the fields the source never provides from the persisted record.
func (a Animal) WithShelterFields(prior Animal) Animal {
	if strings.TrimSpace(prior.Origin) != "" {
		a.Origin = prior.Origin
	}
	if prior.Latitude != nil {
		a.Latitude = prior.Latitude
	}
	if prior.Longitude != nil {
		a.Longitude = prior.Longitude
	}
	if prior.ReturnedCount > a.ReturnedCount {
		a.ReturnedCount = prior.ReturnedCount
	}
	a.VerifiedAdoption = prior.VerifiedAdoption
	a.AdoptedDate = prior.AdoptedDate
	if a.DetailURL == "" {
		a.DetailURL = prior.DetailURL
	}
	return a
}

// CivilDate truncates t to midnight of its calendar day in loc.
func CivilDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// FormatDate renders a nullable date as YYYY-MM-DD.
func FormatDate(d *time.Time) string {
	if d == nil {
		return ""
	}
	return d.Format(time.DateOnly)
}
