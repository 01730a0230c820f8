// Package reconcile infers animal lifecycle transitions by diffing the current source listing
// against the persisted record set.
//
// Every animal in a pass is evaluated under exactly one rule: return (a persisted adoption that is
// listed again), adoption (a tracked animal that vanished or lost its location, confirmed on its
// detail page), or a plain field diff. Return and adoption are mutually exclusive and take
// precedence over the plain diff.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"ShelterSync/internal/clock"
	"ShelterSync/internal/domain"
	"ShelterSync/internal/normalize"
	"ShelterSync/internal/ports"
)

const defaultDetailWorkers = 4

// Result is what one pass wants written.
type Result struct {
	Upserts    []domain.Animal
	Events     []domain.HistoryEvent
	Unresolved []domain.Failure

	Arrived  []int64
	Adopted  []int64
	Returned []int64
}

// EventsFor returns the events of one animal in emission order.
func (r Result) EventsFor(id int64) []domain.HistoryEvent {
	var out []domain.HistoryEvent
	for _, e := range r.Events {
		if e.DogID == id {
			out = append(out, e)
		}
	}
	return out
}

// Deps wires the reconciler's collaborators.
type Deps struct {
	Detail  ports.DetailFetcher
	Clock   ports.Clock
	Markers normalize.Markers
	Workers int
	Logger  *slog.Logger
}

// Reconciler is the lifecycle state machine.
type Reconciler struct {
	detail  ports.DetailFetcher
	clock   ports.Clock
	markers normalize.Markers
	workers int
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New constructs a Reconciler.
func New(deps Deps) *Reconciler {
	workers := deps.Workers
	if workers <= 0 {
		workers = defaultDetailWorkers
	}
	markers := deps.Markers
	if markers.AvailableSoon == "" && markers.TrialAdoption == "" {
		markers = normalize.DefaultMarkers()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reconciler{
		detail:  deps.Detail,
		clock:   deps.Clock,
		markers: markers,
		workers: workers,
		logger:  logger,
		tracer:  otel.Tracer("sheltersync/reconcile"),
	}
}

type detailResult struct {
	page ports.DetailPage
	err  error
}

// Reconcile diffs batch against prior. It only fails when ctx is cancelled before evaluation.
func (r *Reconciler) Reconcile(ctx context.Context, batch []domain.Animal, prior map[int64]domain.Animal) (Result, error) {
	ctx, span := r.tracer.Start(ctx, "reconcile.pass", trace.WithAttributes(
		attribute.Int("batch.size", len(batch)),
		attribute.Int("prior.size", len(prior)),
	))
	defer span.End()

	listed := make(map[int64]domain.Animal, len(batch))
	ids := make([]int64, 0, len(batch))
	for _, a := range batch {
		if _, dup := listed[a.ID]; dup {
			continue
		}
		listed[a.ID] = a
		ids = append(ids, a.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var missing []int64
	for id, old := range prior {
		if _, ok := listed[id]; ok {
			continue
		}
		if r.adoptionCandidate(old) {
			missing = append(missing, id)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })

	details := r.prefetch(ctx, r.detailTargets(ids, missing, listed, prior))
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var res Result
	for _, id := range ids {
		fresh := listed[id]
		old, known := prior[id]
		switch {
		case !known:
			r.arrival(&res, fresh)
		case old.Status == domain.StatusAdopted:
			r.returned(&res, old, fresh, details[id])
		case fresh.Location == "" && r.adoptionCandidate(old):
			r.verifyAdoption(&res, old, &fresh, details[id])
		default:
			r.diff(&res, old, fresh)
		}
	}
	for _, id := range missing {
		r.verifyAdoption(&res, prior[id], nil, details[id])
	}

	span.SetAttributes(
		attribute.Int("upserts", len(res.Upserts)),
		attribute.Int("events", len(res.Events)),
		attribute.Int("unresolved", len(res.Unresolved)),
	)
	return res, nil
}

// adoptionCandidate reports whether a persisted animal may be inferred adopted when it disappears.
func (r *Reconciler) adoptionCandidate(old domain.Animal) bool {
	switch old.Status {
	case domain.StatusAvailable:
		return !r.markers.IsTrialAdoption(old.Location)
	case domain.StatusAvailableSoon:
		return r.markers.InAvailableSoonBucket(old.Notes, old.Location)
	default:
		return false
	}
}

func (r *Reconciler) detailTargets(ids, missing []int64, listed, prior map[int64]domain.Animal) []domain.Animal {
	var targets []domain.Animal
	for _, id := range ids {
		old, known := prior[id]
		if !known {
			continue
		}
		fresh := listed[id]
		if old.Status == domain.StatusAdopted || (fresh.Location == "" && r.adoptionCandidate(old)) {
			targets = append(targets, fresh.WithShelterFields(old))
		}
	}
	for _, id := range missing {
		targets = append(targets, prior[id])
	}
	return targets
}

func (r *Reconciler) prefetch(ctx context.Context, targets []domain.Animal) map[int64]detailResult {
	out := make(map[int64]detailResult, len(targets))
	if len(targets) == 0 {
		return out
	}
	if r.detail == nil {
		for _, a := range targets {
			out[a.ID] = detailResult{err: fmt.Errorf("no detail fetcher configured")}
		}
		return out
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, target := range targets {
		g.Go(func() error {
			page, err := r.detail.FetchDetail(gctx, target)
			mu.Lock()
			out[target.ID] = detailResult{page: page, err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (r *Reconciler) arrival(res *Result, fresh domain.Animal) {
	fresh.ReturnedCount = 0
	fresh.AdoptedDate = nil
	res.Upserts = append(res.Upserts, fresh)
	res.Arrived = append(res.Arrived, fresh.ID)
	if !fresh.Status.Known() {
		return
	}
	res.Events = append(res.Events, r.event(fresh, domain.EventStatusChange, "", string(fresh.Status), nil, "new arrival"))
}

func (r *Reconciler) returned(res *Result, old, fresh domain.Animal, detail detailResult) {
	merged := fresh.WithShelterFields(old)
	merged.Status = domain.StatusAvailable
	merged.ReturnedCount = old.ReturnedCount + 1
	merged.VerifiedAdoption = false
	merged.AdoptedDate = nil

	location := fresh.Location
	if detail.err != nil {
		r.logger.Warn("detail page unavailable for returned animal, using listing location",
			"animal_id", old.ID, "error", detail.err)
	} else if loc := strings.TrimSpace(detail.page.Location); loc != "" {
		location = loc
	}
	merged.Location = location

	notes := fmt.Sprintf("returned (return #%d); previously adopted %s", merged.ReturnedCount, dateOrUnknown(old.AdoptedDate))
	res.Upserts = append(res.Upserts, merged)
	res.Returned = append(res.Returned, old.ID)
	res.Events = append(res.Events, r.event(merged, domain.EventStatusChange,
		string(domain.StatusAdopted), string(domain.StatusAvailable), nil, notes))
	if location != "" {
		res.Events = append(res.Events, r.event(merged, domain.EventLocationChange,
			old.Location, location, nil, "location after return"))
	}
}

// verifyAdoption settles an animal that vanished from the listing (fresh == nil) or whose
// listed location went empty, using its detail page.
func (r *Reconciler) verifyAdoption(res *Result, old domain.Animal, fresh *domain.Animal, detail detailResult) {
	if detail.err != nil {
		id := old.ID
		res.Unresolved = append(res.Unresolved, domain.Failure{
			AnimalID: &id,
			Stage:    domain.StageAdoptionCheck,
			Kind:     domain.FailureInference,
			Message:  fmt.Sprintf("detail page unavailable, left as %s: %v", old.Status, detail.err),
		})
		return
	}

	base := old
	if fresh != nil {
		base = fresh.WithShelterFields(old)
		if !base.Status.Known() {
			base.Status = old.Status
		}
	}

	location := strings.TrimSpace(detail.page.Location)
	if location != "" {
		// Listing flake: the page still places the animal somewhere.
		base.Location = location
		if fresh == nil {
			if location == old.Location {
				return
			}
			base.UpdatedAt = r.clock.Now()
		}
		r.diff(res, old, base)
		return
	}

	today := clock.Today(r.clock)
	reason := "no longer listed; detail page shows no location"
	if fresh != nil {
		reason = "listed without location; detail page shows no location"
	}
	base.Status = domain.StatusAdopted
	base.Location = ""
	base.AdoptedDate = &today
	base.UpdatedAt = r.clock.Now()

	res.Upserts = append(res.Upserts, base)
	res.Adopted = append(res.Adopted, old.ID)
	res.Events = append(res.Events, r.event(base, domain.EventStatusChange,
		string(old.Status), string(domain.StatusAdopted), &today, "inferred adoption: "+reason))
}

func (r *Reconciler) diff(res *Result, old, fresh domain.Animal) {
	merged := fresh.WithShelterFields(old)
	if !merged.Status.Known() {
		merged.Status = old.Status
	}
	if merged.Status != domain.StatusAdopted {
		merged.AdoptedDate = nil
	}

	if old.Location != "" && merged.Location != "" && old.Location != merged.Location {
		res.Events = append(res.Events, r.event(merged, domain.EventLocationChange, old.Location, merged.Location, nil, ""))
	}
	if old.Status != merged.Status && old.Status.Known() && merged.Status.Known() {
		res.Events = append(res.Events, r.event(merged, domain.EventStatusChange, string(old.Status), string(merged.Status), nil, ""))
	}
	if old.Name != "" && merged.Name != "" && old.Name != merged.Name {
		res.Events = append(res.Events, r.event(merged, domain.EventNameChange, old.Name, merged.Name, nil, ""))
	}
	res.Upserts = append(res.Upserts, merged)
}

func (r *Reconciler) event(a domain.Animal, kind domain.EventType, oldValue, newValue string, adopted *time.Time, notes string) domain.HistoryEvent {
	return domain.HistoryEvent{
		DogID:       a.ID,
		Name:        a.Name,
		EventType:   kind,
		OldValue:    domain.Value(oldValue),
		NewValue:    domain.Value(newValue),
		AdoptedDate: adopted,
		Notes:       notes,
		CreatedAt:   r.clock.Now(),
	}
}

func dateOrUnknown(d *time.Time) string {
	if d == nil {
		return "on an unknown date"
	}
	return "on " + domain.FormatDate(d)
}
