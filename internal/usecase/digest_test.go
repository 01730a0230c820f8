package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ShelterSync/internal/domain"
)

func TestDigest_ClassifiesEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	loc := f.clock.Location()

	at := func(day, hour int) time.Time {
		return time.Date(2026, time.February, day, hour, 0, 0, 0, loc)
	}
	insert := func(e domain.HistoryEvent) {
		_, err := f.repo.InsertEvent(ctx, e)
		require.NoError(t, err)
	}

	insert(domain.HistoryEvent{DogID: 1, Name: "Rex", EventType: domain.EventStatusChange,
		NewValue: domain.Value("available"), Notes: "new arrival", CreatedAt: at(3, 9)})
	insert(domain.HistoryEvent{DogID: 2, Name: "Ace", EventType: domain.EventStatusChange,
		OldValue: domain.Value("adopted"), NewValue: domain.Value("available"), Notes: "returned (return #1)", CreatedAt: at(3, 10)})
	insert(domain.HistoryEvent{DogID: 2, Name: "Ace", EventType: domain.EventLocationChange,
		NewValue: domain.Value("Kennel A"), CreatedAt: at(3, 10)})
	insert(domain.HistoryEvent{DogID: 3, Name: "Bo", EventType: domain.EventNameChange,
		OldValue: domain.Value("Bo"), NewValue: domain.Value("Beau"), CreatedAt: at(3, 11)})
	// Late evening local time is already the next UTC day; still part of Feb 3.
	insert(domain.HistoryEvent{DogID: 4, Name: "Lu", EventType: domain.EventStatusChange,
		OldValue: domain.Value("available"), NewValue: domain.Value("adopted"), CreatedAt: at(3, 23)})
	insert(domain.HistoryEvent{DogID: 5, Name: "Mo", EventType: domain.EventStatusChange,
		NewValue: domain.Value("available"), CreatedAt: at(4, 1)})

	digest, err := f.pipeline.Digest(ctx, at(3, 12))
	require.NoError(t, err)

	assert.Len(t, digest.Arrived, 1)
	assert.Len(t, digest.Returned, 1)
	require.Len(t, digest.Moved, 1)
	assert.Equal(t, "- -> Kennel A", digest.Moved[0].Detail)
	require.Len(t, digest.Adopted, 1)
	assert.Equal(t, int64(4), digest.Adopted[0].AnimalID)

	text := FormatDigest(digest)
	assert.True(t, strings.HasPrefix(text, "Shelter digest for 2026-02-03"))
	assert.Contains(t, text, "Returned today (1)")
	assert.Contains(t, text, "- Lu #4")
}

func TestFormatRunReport(t *testing.T) {
	id := int64(9)
	start := time.Date(2026, time.February, 3, 12, 0, 0, 0, time.UTC)
	report := FormatRunReport(domain.RunSummary{
		RunID:        "run-1",
		StartedAt:    start,
		FinishedAt:   start.Add(1500 * time.Millisecond),
		Upserted:     3,
		EventsLogged: 2,
		Adopted:      []int64{4, 7},
		Errors: []domain.Failure{{
			AnimalID: &id, Stage: domain.StageUpsert, Kind: domain.FailurePersistence, Message: "disk full",
		}},
	})

	assert.Contains(t, report, "Sync run run-1 finished in 1.5s")
	assert.Contains(t, report, "adopted: 4, 7")
	assert.Contains(t, report, "animal 9 [upsert/persistence]: disk full")
}
