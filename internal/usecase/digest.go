package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ShelterSync/internal/domain"
)

// DigestEntry is one line of a daily digest.
type DigestEntry struct {
	AnimalID int64     `json:"animalId"`
	Name     string    `json:"name"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}

// DailyDigest lists the lifecycle changes of one shelter-local civil day.
type DailyDigest struct {
	Day      string        `json:"day"`
	Arrived  []DigestEntry `json:"arrived"`
	Adopted  []DigestEntry `json:"adopted"`
	Returned []DigestEntry `json:"returned"`
	Moved    []DigestEntry `json:"moved"`
}

// Digest derives the day's arrivals, adoptions, returns and moves from the history log.
// day is interpreted in the clock's location.
func (p *Pipeline) Digest(ctx context.Context, day time.Time) (DailyDigest, error) {
	loc := p.clock.Location()
	from := domain.CivilDate(day, loc)
	to := from.AddDate(0, 0, 1)

	events, err := p.repository.EventsBetween(ctx, from, to)
	if err != nil {
		return DailyDigest{}, fmt.Errorf("digest %s: %w", from.Format(time.DateOnly), err)
	}

	digest := DailyDigest{
		Day:      from.Format(time.DateOnly),
		Arrived:  []DigestEntry{},
		Adopted:  []DigestEntry{},
		Returned: []DigestEntry{},
		Moved:    []DigestEntry{},
	}
	for _, e := range events {
		entry := DigestEntry{AnimalID: e.DogID, Name: e.Name, At: e.CreatedAt.In(loc)}
		switch e.EventType {
		case domain.EventStatusChange:
			oldValue, newValue := domain.Deref(e.OldValue), domain.Deref(e.NewValue)
			switch {
			case oldValue == "":
				entry.Detail = newValue
				digest.Arrived = append(digest.Arrived, entry)
			case newValue == string(domain.StatusAdopted):
				entry.Detail = domain.FormatDate(e.AdoptedDate)
				digest.Adopted = append(digest.Adopted, entry)
			case oldValue == string(domain.StatusAdopted):
				entry.Detail = e.Notes
				digest.Returned = append(digest.Returned, entry)
			}
		case domain.EventLocationChange:
			entry.Detail = fmt.Sprintf("%s -> %s", orDash(domain.Deref(e.OldValue)), orDash(domain.Deref(e.NewValue)))
			digest.Moved = append(digest.Moved, entry)
		}
	}
	return digest, nil
}

// FormatDigest renders a digest as plain text for chat delivery.
func FormatDigest(d DailyDigest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Shelter digest for %s\n", d.Day)
	section := func(title string, entries []DigestEntry) {
		if len(entries) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s (%d)\n", title, len(entries))
		for _, e := range entries {
			if e.Detail != "" {
				fmt.Fprintf(&b, "- %s #%d: %s\n", e.Name, e.AnimalID, e.Detail)
			} else {
				fmt.Fprintf(&b, "- %s #%d\n", e.Name, e.AnimalID)
			}
		}
	}
	section("New today", d.Arrived)
	section("Adopted today", d.Adopted)
	section("Returned today", d.Returned)
	section("Moved today", d.Moved)
	return b.String()
}

// FormatRunReport renders a run summary for alerting.
func FormatRunReport(s domain.RunSummary) string {
	var b strings.Builder
	state := "finished"
	if s.Cancelled {
		state = "cancelled"
	}
	fmt.Fprintf(&b, "Sync run %s %s in %s\n", s.RunID, state, s.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "fetched %d, upserted %d, events %d (suppressed %d), skipped %d\n",
		s.Fetched, s.Upserted, s.EventsLogged, s.EventsSuppressed, s.Skipped)
	if len(s.Arrived) > 0 {
		fmt.Fprintf(&b, "arrived: %s\n", joinIDs(s.Arrived))
	}
	if len(s.Adopted) > 0 {
		fmt.Fprintf(&b, "adopted: %s\n", joinIDs(s.Adopted))
	}
	if len(s.Returned) > 0 {
		fmt.Fprintf(&b, "returned: %s\n", joinIDs(s.Returned))
	}
	if len(s.Errors) > 0 {
		fmt.Fprintf(&b, "failures (%d):\n", len(s.Errors))
		for _, f := range s.Errors {
			fmt.Fprintf(&b, "- %s\n", f.String())
		}
	}
	return b.String()
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ", ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
