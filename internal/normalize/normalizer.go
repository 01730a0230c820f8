// Package normalize maps raw adoption-platform records onto the canonical Animal shape.
package normalize

import (
	"errors"
	"strings"
	"time"

	"ShelterSync/internal/domain"
	"ShelterSync/internal/ports"
)

// ErrMissingID marks a record without the source-assigned id; such records are skipped.
var ErrMissingID = errors.New("listing has no id")

const (
	DefaultAvailableSoonMarker = "Available Soon"
	DefaultTrialAdoptionMarker = "Trial Adoption"
)

// Markers are the shelter-authored strings that define the "available soon" bucket.
type Markers struct {
	AvailableSoon string
	TrialAdoption string
}

// DefaultMarkers returns the markers used by the shelter staff.
func DefaultMarkers() Markers {
	return Markers{AvailableSoon: DefaultAvailableSoonMarker, TrialAdoption: DefaultTrialAdoptionMarker}
}

// InAvailableSoonBucket reports whether notes carry the marker and location is not a trial adoption.
func (m Markers) InAvailableSoonBucket(notes, location string) bool {
	if m.AvailableSoon == "" || !containsFold(notes, m.AvailableSoon) {
		return false
	}
	return !m.IsTrialAdoption(location)
}

// IsTrialAdoption reports whether location denotes an animal out on a trial adoption.
func (m Markers) IsTrialAdoption(location string) bool {
	return m.TrialAdoption != "" && containsFold(location, m.TrialAdoption)
}

// Normalizer converts listings using the shelter clock for derived fields.
type Normalizer struct {
	clock   ports.Clock
	markers Markers
}

// New builds a Normalizer. Empty markers fall back to the defaults.
func New(clock ports.Clock, markers Markers) *Normalizer {
	if markers.AvailableSoon == "" {
		markers.AvailableSoon = DefaultAvailableSoonMarker
	}
	if markers.TrialAdoption == "" {
		markers.TrialAdoption = DefaultTrialAdoptionMarker
	}
	return &Normalizer{clock: clock, markers: markers}
}

// Markers exposes the bucket markers in use.
func (n *Normalizer) Markers() Markers {
	return n.markers
}

// Normalize maps raw into an Animal. Only a missing id is an error.
func (n *Normalizer) Normalize(raw domain.RawListing) (domain.Animal, error) {
	if !raw.ID.Valid || raw.ID.Value <= 0 {
		return domain.Animal{}, ErrMissingID
	}

	now := n.clock.Now()
	loc := n.clock.Location()

	animal := domain.Animal{
		ID:             raw.ID.Value,
		Name:           strings.TrimSpace(raw.Name),
		Location:       strings.TrimSpace(raw.Location),
		Breed:          strings.TrimSpace(raw.Breed),
		SecondaryBreed: strings.TrimSpace(raw.SecondaryBreed),
		WeightGroup:    strings.TrimSpace(raw.WeightGroup),
		Color:          joinColors(raw.PrimaryColor, raw.SecondaryColor),
		Notes:          strings.TrimSpace(raw.KennelDescription),
		DetailURL:      strings.TrimSpace(raw.PublicURL),
		IntakeDate:     epochDate(raw.IntakeDate, loc),
		BirthDate:      epochDate(raw.Birthday, loc),
		UpdatedAt:      now,
	}

	if raw.AgeGroup != nil {
		animal.AgeGroup = AgeGroup(raw.AgeGroup.Name)
	}

	if animal.IntakeDate != nil {
		days := LengthOfStay(*animal.IntakeDate, now, loc)
		animal.LengthOfStayDays = &days
	}

	animal.Status = n.status(raw.Adoptable, animal.Notes, animal.Location)
	return animal, nil
}

func (n *Normalizer) status(adoptable *domain.FlexBool, notes, location string) domain.Status {
	switch {
	case adoptable != nil && bool(*adoptable):
		return domain.StatusAvailable
	case n.markers.InAvailableSoonBucket(notes, location):
		return domain.StatusAvailableSoon
	case adoptable != nil:
		return domain.StatusPendingReview
	default:
		return domain.StatusUnknown
	}
}

// AgeGroup maps a third-party age label onto the three canonical buckets.
// Labels outside the allow-list map to nil.
func AgeGroup(label string) *domain.AgeGroup {
	var group domain.AgeGroup
	switch {
	case containsFold(label, "puppy"):
		group = domain.AgePuppy
	case containsFold(label, "senior"):
		group = domain.AgeSenior
	case containsFold(label, "adult"):
		group = domain.AgeAdult
	default:
		return nil
	}
	return &group
}

// LengthOfStay is the whole-day difference between the civil dates of now and intake.
// A future intake yields a negative value.
func LengthOfStay(intake, now time.Time, loc *time.Location) int {
	from := utcMidnight(domain.CivilDate(intake, loc))
	to := utcMidnight(domain.CivilDate(now, loc))
	return int(to.Sub(from).Hours() / 24)
}

func utcMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func epochDate(v domain.FlexInt, loc *time.Location) *time.Time {
	if !v.Valid || v.Value <= 0 {
		return nil
	}
	d := domain.CivilDate(time.Unix(v.Value, 0), loc)
	return &d
}

func joinColors(primary, secondary string) string {
	parts := make([]string, 0, 2)
	for _, c := range []string{primary, secondary} {
		if c = strings.TrimSpace(c); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "/")
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
