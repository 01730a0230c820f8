package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ShelterSync/internal/domain"
	"ShelterSync/internal/history"
	"ShelterSync/internal/normalize"
	"ShelterSync/internal/ports"
	"ShelterSync/internal/reconcile"
)

var (
	// ErrRunInProgress is returned when a run is requested while another is still writing.
	ErrRunInProgress = errors.New("run already in progress")
	// ErrRepositoryUnavailable aborts a run that cannot reach the repository at all.
	ErrRepositoryUnavailable = errors.New("repository unavailable")
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source     ports.ListingSource
	Repository ports.Repository
	Normalizer *normalize.Normalizer
	Reconciler *reconcile.Reconciler
	History    *history.Logger
	Clock      ports.Clock
	Notifier   ports.Notifier
	Observers  []ports.RunObserver
	Logger     *slog.Logger
}

// Pipeline implements the fetch, normalize, reconcile and write workflow.
type Pipeline struct {
	source     ports.ListingSource
	repository ports.Repository
	normalizer *normalize.Normalizer
	reconciler *reconcile.Reconciler
	history    *history.Logger
	clock      ports.Clock
	notifier   ports.Notifier
	observers  []ports.RunObserver
	logger     *slog.Logger
	tracer     trace.Tracer

	running atomic.Bool
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		source:     deps.Source,
		repository: deps.Repository,
		normalizer: deps.Normalizer,
		reconciler: deps.Reconciler,
		history:    deps.History,
		clock:      deps.Clock,
		notifier:   deps.Notifier,
		observers:  deps.Observers,
		logger:     logger,
		tracer:     otel.Tracer("sheltersync/usecase"),
	}
}

// Running reports whether a run is currently in flight.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// writeUnit is everything one animal needs written, applied sequentially.
type writeUnit struct {
	animal *domain.Animal
	events []domain.HistoryEvent
}

// Run executes one reconciliation pass over endpoints. Overlapping calls fail fast with
// ErrRunInProgress. Per-animal and per-endpoint failures are reported in the summary; only
// an unreachable repository or cancellation yields an error.
func (p *Pipeline) Run(ctx context.Context, endpoints []domain.Endpoint) (domain.RunSummary, error) {
	if !p.running.CompareAndSwap(false, true) {
		return domain.RunSummary{}, ErrRunInProgress
	}
	defer p.running.Store(false)

	summary := domain.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: p.clock.Now(),
	}
	log := p.logger.With("run_id", summary.RunID)

	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", summary.RunID),
		attribute.Int("endpoints", len(endpoints)),
	))
	defer span.End()

	err := p.run(ctx, log, endpoints, &summary)
	summary.FinishedAt = p.clock.Now()

	switch {
	case errors.Is(err, ErrRepositoryUnavailable):
		span.SetStatus(codes.Error, err.Error())
		log.Error("run aborted", "error", err)
	case err != nil:
		summary.Cancelled = true
		span.SetStatus(codes.Error, err.Error())
		log.Warn("run cancelled", "error", err,
			"upserted", summary.Upserted, "events_logged", summary.EventsLogged)
	default:
		log.Info("run finished",
			"fetched", summary.Fetched,
			"upserted", summary.Upserted,
			"events_logged", summary.EventsLogged,
			"events_suppressed", summary.EventsSuppressed,
			"skipped", summary.Skipped,
			"adopted", len(summary.Adopted),
			"returned", len(summary.Returned),
			"arrived", len(summary.Arrived),
			"errors", len(summary.Errors),
			"duration", summary.Duration())
	}
	span.SetAttributes(
		attribute.Int("upserted", summary.Upserted),
		attribute.Int("events_logged", summary.EventsLogged),
		attribute.Int("errors", len(summary.Errors)),
	)

	for _, obs := range p.observers {
		obs.ObserveRun(summary)
	}
	p.notify(ctx, log, summary)

	return summary, err
}

func (p *Pipeline) run(ctx context.Context, log *slog.Logger, endpoints []domain.Endpoint, summary *domain.RunSummary) error {
	if p.repository == nil || p.source == nil {
		return fmt.Errorf("%w: pipeline is not fully configured", ErrRepositoryUnavailable)
	}
	if err := p.repository.Ping(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrRepositoryUnavailable, err)
	}

	batch, err := p.source.FetchListings(ctx, endpoints)
	if err != nil {
		return fmt.Errorf("fetch listings: %w", err)
	}
	summary.Fetched = len(batch.Listings)
	for _, f := range batch.Failures {
		p.recordFailure(log, summary, f)
		if f.Stage == domain.StageDecode {
			summary.Skipped++
		}
	}

	animals := make([]domain.Animal, 0, len(batch.Listings))
	for _, raw := range batch.Listings {
		animal, err := p.normalizer.Normalize(raw)
		if err != nil {
			summary.Skipped++
			p.recordFailure(log, summary, domain.Failure{
				Endpoint: raw.Endpoint,
				Stage:    domain.StageNormalize,
				Kind:     domain.FailureParse,
				Message:  err.Error(),
			})
			continue
		}
		animals = append(animals, animal)
	}

	prior, err := p.loadPrior(ctx, animals, allEndpointsFailed(endpoints, batch))
	if err != nil {
		return err
	}

	result, err := p.reconciler.Reconcile(ctx, animals, prior)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	for _, f := range result.Unresolved {
		p.recordFailure(log, summary, f)
	}

	return p.apply(ctx, log, result, summary)
}

// loadPrior reads the persisted state of the listed animals plus every tracked animal, so that
// animals absent from the batch become adoption candidates. When no endpoint answered, the
// tracked set is not loaded and no adoption can be inferred.
func (p *Pipeline) loadPrior(ctx context.Context, animals []domain.Animal, sourceDown bool) (map[int64]domain.Animal, error) {
	ids := make([]int64, 0, len(animals))
	for _, a := range animals {
		ids = append(ids, a.ID)
	}

	var prior map[int64]domain.Animal
	err := p.retryOnce(ctx, "load prior", func() error {
		var err error
		prior, err = p.repository.AnimalsByIDs(ctx, ids)
		return err
	})
	if err != nil {
		return nil, p.readFailure(ctx, err)
	}
	if sourceDown {
		return prior, nil
	}

	var tracked []domain.Animal
	err = p.retryOnce(ctx, "load tracked", func() error {
		var err error
		tracked, err = p.repository.TrackedAnimals(ctx)
		return err
	})
	if err != nil {
		return nil, p.readFailure(ctx, err)
	}
	for _, a := range tracked {
		if _, ok := prior[a.ID]; !ok {
			prior[a.ID] = a
		}
	}
	return prior, nil
}

func (p *Pipeline) readFailure(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: load prior state: %w", ErrRepositoryUnavailable, err)
}

// apply writes each animal's events and then its upsert, one animal at a time in id order.
// The record only advances once its events are stored, so a failed event is re-derived next run.
func (p *Pipeline) apply(ctx context.Context, log *slog.Logger, result reconcile.Result, summary *domain.RunSummary) error {
	units := make(map[int64]*writeUnit)
	unit := func(id int64) *writeUnit {
		u, ok := units[id]
		if !ok {
			u = &writeUnit{}
			units[id] = u
		}
		return u
	}
	for i := range result.Upserts {
		unit(result.Upserts[i].ID).animal = &result.Upserts[i]
	}
	for _, e := range result.Events {
		u := unit(e.DogID)
		u.events = append(u.events, e)
	}

	ids := make([]int64, 0, len(units))
	for id := range units {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	written := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.applyUnit(ctx, log, id, units[id], summary) {
			written[id] = true
		}
	}

	summary.Arrived = filterWritten(result.Arrived, written)
	summary.Adopted = filterWritten(result.Adopted, written)
	summary.Returned = filterWritten(result.Returned, written)
	return nil
}

func (p *Pipeline) applyUnit(ctx context.Context, log *slog.Logger, id int64, u *writeUnit, summary *domain.RunSummary) bool {
	for _, event := range u.events {
		var committed bool
		err := p.retryOnce(ctx, "log event", func() error {
			var err error
			committed, err = p.history.Log(ctx, event)
			return err
		})
		if err != nil {
			p.recordFailure(log, summary, domain.Failure{
				AnimalID: &id,
				Stage:    domain.StageHistory,
				Kind:     domain.FailurePersistence,
				Message:  err.Error(),
			})
			return false
		}
		if committed {
			summary.EventsLogged++
		} else {
			summary.EventsSuppressed++
		}
	}

	if u.animal == nil {
		return true
	}
	err := p.retryOnce(ctx, "upsert", func() error {
		return p.repository.UpsertAnimal(ctx, *u.animal)
	})
	if err != nil {
		p.recordFailure(log, summary, domain.Failure{
			AnimalID: &id,
			Stage:    domain.StageUpsert,
			Kind:     domain.FailurePersistence,
			Message:  err.Error(),
		})
		return false
	}
	summary.Upserted++
	return true
}

func (p *Pipeline) retryOnce(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil || ctx.Err() != nil {
		return err
	}
	p.logger.Debug("retrying", "op", op, "error", err)
	return fn()
}

func (p *Pipeline) recordFailure(log *slog.Logger, summary *domain.RunSummary, f domain.Failure) {
	summary.Errors = append(summary.Errors, f)
	args := []any{"stage", f.Stage, "kind", f.Kind, "error", f.Message}
	if f.AnimalID != nil {
		args = append(args, "animal_id", *f.AnimalID)
	}
	if f.Endpoint != "" {
		args = append(args, "endpoint", f.Endpoint)
	}
	log.Warn("unit failed", args...)
}

func (p *Pipeline) notify(ctx context.Context, log *slog.Logger, summary domain.RunSummary) {
	if p.notifier == nil {
		return
	}
	if summary.EventsLogged == 0 && len(summary.Errors) == 0 && !summary.Cancelled {
		return
	}
	if err := p.notifier.PublishDigest(ctx, FormatRunReport(summary)); err != nil {
		log.Warn("publish run report failed", "error", err)
	}
}

func allEndpointsFailed(endpoints []domain.Endpoint, batch ports.ListingBatch) bool {
	if len(endpoints) == 0 || len(batch.Listings) > 0 {
		return false
	}
	failed := map[string]bool{}
	for _, f := range batch.Failures {
		if f.Stage == domain.StageFetch {
			failed[f.Endpoint] = true
		}
	}
	for _, ep := range endpoints {
		if !failed[ep.Name] {
			return false
		}
	}
	return true
}

func filterWritten(ids []int64, written map[int64]bool) []int64 {
	var out []int64
	for _, id := range ids {
		if written[id] {
			out = append(out, id)
		}
	}
	return out
}
