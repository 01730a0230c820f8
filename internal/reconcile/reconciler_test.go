package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ShelterSync/internal/clock"
	"ShelterSync/internal/domain"
	"ShelterSync/internal/normalize"
	"ShelterSync/internal/ports"
)

type stubDetail struct {
	pages map[int64]string
	errs  map[int64]error
	calls map[int64]int
}

func newStubDetail() *stubDetail {
	return &stubDetail{pages: map[int64]string{}, errs: map[int64]error{}, calls: map[int64]int{}}
}

func (s *stubDetail) FetchDetail(_ context.Context, a domain.Animal) (ports.DetailPage, error) {
	s.calls[a.ID]++
	if err := s.errs[a.ID]; err != nil {
		return ports.DetailPage{}, err
	}
	return ports.DetailPage{AnimalID: a.ID, Location: s.pages[a.ID]}, nil
}

var shelterNow = time.Date(2026, time.February, 3, 22, 30, 0, 0, time.UTC)

func newReconciler(t *testing.T, detail *stubDetail) (*Reconciler, *clock.Fixed) {
	t.Helper()
	loc, err := time.LoadLocation("America/Denver")
	require.NoError(t, err)
	clk := clock.NewFixed(shelterNow, loc)
	// Workers=1 keeps the stub's call map single-threaded.
	return New(Deps{Detail: detail, Clock: clk, Markers: normalize.DefaultMarkers(), Workers: 1}), clk
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestReturnDetection(t *testing.T) {
	detail := newStubDetail()
	detail.pages[1] = "Kennel A"
	r, _ := newReconciler(t, detail)

	prior := map[int64]domain.Animal{
		1: {ID: 1, Name: "Rex", Status: domain.StatusAdopted, AdoptedDate: date(2026, time.January, 10), VerifiedAdoption: true, Origin: "Transfer"},
	}
	batch := []domain.Animal{{ID: 1, Name: "Rex", Status: domain.StatusAvailable, Location: "Intake"}}

	res, err := r.Reconcile(context.Background(), batch, prior)
	require.NoError(t, err)

	require.Len(t, res.Upserts, 1)
	got := res.Upserts[0]
	assert.Equal(t, domain.StatusAvailable, got.Status)
	assert.Nil(t, got.AdoptedDate)
	assert.Equal(t, 1, got.ReturnedCount)
	assert.False(t, got.VerifiedAdoption)
	assert.Equal(t, "Kennel A", got.Location)
	assert.Equal(t, "Transfer", got.Origin)

	events := res.EventsFor(1)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventStatusChange, events[0].EventType)
	assert.Equal(t, "adopted", domain.Deref(events[0].OldValue))
	assert.Equal(t, "available", domain.Deref(events[0].NewValue))
	assert.Nil(t, events[0].AdoptedDate)
	assert.Contains(t, events[0].Notes, "2026-01-10")
	assert.Contains(t, events[0].Notes, "#1")
	assert.Equal(t, domain.EventLocationChange, events[1].EventType)
	assert.Nil(t, events[1].OldValue)
	assert.Equal(t, "Kennel A", domain.Deref(events[1].NewValue))
	assert.Equal(t, []int64{1}, res.Returned)
}

func TestReturnCountKeepsIncreasing(t *testing.T) {
	detail := newStubDetail()
	detail.pages[1] = "Kennel A"
	r, _ := newReconciler(t, detail)

	prior := map[int64]domain.Animal{1: {ID: 1, Status: domain.StatusAdopted, ReturnedCount: 2}}
	res, err := r.Reconcile(context.Background(), []domain.Animal{{ID: 1, Status: domain.StatusAvailable}}, prior)
	require.NoError(t, err)
	require.Len(t, res.Upserts, 1)
	assert.Equal(t, 3, res.Upserts[0].ReturnedCount)
}

func TestAdoptionDetection(t *testing.T) {
	detail := newStubDetail()
	detail.pages[2] = ""
	r, clk := newReconciler(t, detail)

	prior := map[int64]domain.Animal{2: {ID: 2, Name: "Daisy", Status: domain.StatusAvailable, Location: "Kennel B"}}
	res, err := r.Reconcile(context.Background(), nil, prior)
	require.NoError(t, err)

	require.Len(t, res.Upserts, 1)
	got := res.Upserts[0]
	assert.Equal(t, domain.StatusAdopted, got.Status)
	assert.Empty(t, got.Location)
	require.NotNil(t, got.AdoptedDate)
	// 22:30 UTC on Feb 3 is still Feb 3 in Denver; the civil date must follow the shelter.
	assert.Equal(t, "2026-02-03", domain.FormatDate(got.AdoptedDate))
	assert.Equal(t, clk.Location(), got.AdoptedDate.Location())

	require.Len(t, res.Events, 1)
	ev := res.Events[0]
	assert.Equal(t, domain.EventStatusChange, ev.EventType)
	assert.Equal(t, "available", domain.Deref(ev.OldValue))
	assert.Equal(t, "adopted", domain.Deref(ev.NewValue))
	require.NotNil(t, ev.AdoptedDate)
	assert.Equal(t, "2026-02-03", domain.FormatDate(ev.AdoptedDate))
	assert.Equal(t, []int64{2}, res.Adopted)
}

func TestAdoptionUsesShelterCalendarNotUTC(t *testing.T) {
	detail := newStubDetail()
	r, clk := newReconciler(t, detail)
	// 03:00 UTC on Feb 4 is still Feb 3 in Denver.
	clk.Advance(4*time.Hour + 30*time.Minute)

	prior := map[int64]domain.Animal{2: {ID: 2, Status: domain.StatusAvailable, Location: "Kennel B"}}
	res, err := r.Reconcile(context.Background(), nil, prior)
	require.NoError(t, err)
	require.Len(t, res.Upserts, 1)
	assert.Equal(t, "2026-02-03", domain.FormatDate(res.Upserts[0].AdoptedDate))
}

func TestNoFalseAdoption(t *testing.T) {
	detail := newStubDetail()
	detail.pages[2] = "Kennel B"
	r, _ := newReconciler(t, detail)

	prior := map[int64]domain.Animal{2: {ID: 2, Status: domain.StatusAvailable, Location: "Kennel B"}}
	res, err := r.Reconcile(context.Background(), nil, prior)
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.Empty(t, res.Upserts)
	assert.Empty(t, res.Adopted)
}

func TestNoFalseAdoptionMovesLocation(t *testing.T) {
	detail := newStubDetail()
	detail.pages[2] = "Kennel C"
	r, _ := newReconciler(t, detail)

	prior := map[int64]domain.Animal{2: {ID: 2, Status: domain.StatusAvailable, Location: "Kennel B"}}
	res, err := r.Reconcile(context.Background(), nil, prior)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, domain.EventLocationChange, res.Events[0].EventType)
	require.Len(t, res.Upserts, 1)
	assert.Equal(t, domain.StatusAvailable, res.Upserts[0].Status)
	assert.Equal(t, "Kennel C", res.Upserts[0].Location)
}

func TestAdoptionLeftUnresolvedWhenDetailFails(t *testing.T) {
	detail := newStubDetail()
	detail.errs[2] = errors.New("timeout")
	r, _ := newReconciler(t, detail)

	prior := map[int64]domain.Animal{2: {ID: 2, Status: domain.StatusAvailable, Location: "Kennel B"}}
	res, err := r.Reconcile(context.Background(), nil, prior)
	require.NoError(t, err)
	assert.Empty(t, res.Upserts)
	assert.Empty(t, res.Events)
	require.Len(t, res.Unresolved, 1)
	assert.Equal(t, domain.FailureInference, res.Unresolved[0].Kind)
	require.NotNil(t, res.Unresolved[0].AnimalID)
	assert.Equal(t, int64(2), *res.Unresolved[0].AnimalID)
}

func TestListedWithEmptyLocationIsVerified(t *testing.T) {
	detail := newStubDetail()
	r, _ := newReconciler(t, detail)

	prior := map[int64]domain.Animal{3: {ID: 3, Name: "Milo", Status: domain.StatusAvailable, Location: "Kennel 9"}}
	batch := []domain.Animal{{ID: 3, Name: "Milo", Status: domain.StatusAvailable}}

	res, err := r.Reconcile(context.Background(), batch, prior)
	require.NoError(t, err)
	assert.Equal(t, 1, detail.calls[3])
	require.Len(t, res.Upserts, 1)
	assert.Equal(t, domain.StatusAdopted, res.Upserts[0].Status)
	require.Len(t, res.Events, 1)
	assert.Equal(t, domain.EventStatusChange, res.Events[0].EventType)
}

func TestAvailableSoonBucket(t *testing.T) {
	detail := newStubDetail()
	r, _ := newReconciler(t, detail)

	prior := map[int64]domain.Animal{
		10: {ID: 10, Status: domain.StatusAvailableSoon, Notes: "Available Soon!", Location: "Clinic"},
		11: {ID: 11, Status: domain.StatusAvailableSoon, Notes: "Available Soon", Location: "Trial Adoption"},
		12: {ID: 12, Status: domain.StatusAvailableSoon, Notes: "medical hold", Location: "Clinic"},
		13: {ID: 13, Status: domain.StatusPendingReview, Location: "Clinic"},
	}

	res, err := r.Reconcile(context.Background(), nil, prior)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, res.Adopted)
	assert.Equal(t, 1, detail.calls[10])
	assert.Zero(t, detail.calls[11])
	assert.Zero(t, detail.calls[12])
	assert.Zero(t, detail.calls[13])
	require.Len(t, res.Events, 1)
	assert.Equal(t, "available_soon", domain.Deref(res.Events[0].OldValue))
}

func TestPlainFieldDiff(t *testing.T) {
	r, _ := newReconciler(t, newStubDetail())

	prior := map[int64]domain.Animal{
		4: {ID: 4, Name: "Bean", Status: domain.StatusAvailableSoon, Notes: "Available Soon", Location: "Kennel 1", Origin: "Stray"},
	}
	batch := []domain.Animal{{ID: 4, Name: "Beans", Status: domain.StatusAvailable, Location: "Kennel 2"}}

	res, err := r.Reconcile(context.Background(), batch, prior)
	require.NoError(t, err)

	events := res.EventsFor(4)
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventLocationChange, events[0].EventType)
	assert.Equal(t, domain.EventStatusChange, events[1].EventType)
	assert.Equal(t, domain.EventNameChange, events[2].EventType)
	assert.Equal(t, "Bean", domain.Deref(events[2].OldValue))
	assert.Equal(t, "Beans", domain.Deref(events[2].NewValue))

	require.Len(t, res.Upserts, 1)
	assert.Equal(t, "Stray", res.Upserts[0].Origin)
}

func TestEmptyLocationTransitionsAreNotLocationChanges(t *testing.T) {
	r, _ := newReconciler(t, newStubDetail())

	prior := map[int64]domain.Animal{5: {ID: 5, Name: "Pip", Status: domain.StatusPendingReview}}
	batch := []domain.Animal{{ID: 5, Name: "Pip", Status: domain.StatusPendingReview, Location: "Kennel 3"}}

	res, err := r.Reconcile(context.Background(), batch, prior)
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	require.Len(t, res.Upserts, 1)
	assert.Equal(t, "Kennel 3", res.Upserts[0].Location)
}

func TestUnknownStatusKeepsPrior(t *testing.T) {
	r, _ := newReconciler(t, newStubDetail())

	prior := map[int64]domain.Animal{6: {ID: 6, Status: domain.StatusAvailable, Location: "Kennel 3"}}
	batch := []domain.Animal{{ID: 6, Status: domain.StatusUnknown, Location: "Kennel 3"}}

	res, err := r.Reconcile(context.Background(), batch, prior)
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.Equal(t, domain.StatusAvailable, res.Upserts[0].Status)
}

func TestNewArrival(t *testing.T) {
	r, _ := newReconciler(t, newStubDetail())

	res, err := r.Reconcile(context.Background(), []domain.Animal{{ID: 8, Name: "Nova", Status: domain.StatusAvailable, Location: "Kennel 1"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{8}, res.Arrived)
	require.Len(t, res.Events, 1)
	assert.Nil(t, res.Events[0].OldValue)
	assert.Equal(t, "available", domain.Deref(res.Events[0].NewValue))
	assert.Equal(t, "new arrival", res.Events[0].Notes)
}

func TestSecondPassIsQuiet(t *testing.T) {
	detail := newStubDetail()
	detail.pages[1] = "Kennel A"
	r, _ := newReconciler(t, detail)

	prior := map[int64]domain.Animal{
		1: {ID: 1, Status: domain.StatusAdopted, AdoptedDate: date(2026, time.January, 10)},
		2: {ID: 2, Status: domain.StatusAvailable, Location: "Kennel B"},
	}
	batch := []domain.Animal{{ID: 1, Status: domain.StatusAvailable, Location: "Kennel A"}, {ID: 9, Name: "New", Status: domain.StatusAvailable, Location: "Kennel 5"}}

	first, err := r.Reconcile(context.Background(), batch, prior)
	require.NoError(t, err)
	require.NotEmpty(t, first.Events)

	next := map[int64]domain.Animal{}
	for _, a := range first.Upserts {
		next[a.ID] = a
	}
	second, err := r.Reconcile(context.Background(), batch, next)
	require.NoError(t, err)
	assert.Empty(t, second.Events)
}

func TestCancelledBeforeEvaluation(t *testing.T) {
	r, _ := newReconciler(t, newStubDetail())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Reconcile(ctx, []domain.Animal{{ID: 1}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
