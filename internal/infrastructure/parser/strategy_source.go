package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"ShelterSync/internal/domain"
	"ShelterSync/internal/ports"
	"ShelterSync/internal/scanner"
)

// StrategySource implements ListingSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	workers  int
	logger   *slog.Logger
}

var _ ports.ListingSource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry; workers bounds concurrent endpoint fetches.
func NewStrategySource(reg *scanner.Registry, workers int, log *slog.Logger) *StrategySource {
	if workers <= 0 {
		workers = 1
	}
	return &StrategySource{
		registry: reg,
		workers:  workers,
		logger:   log,
	}
}

type endpointResult struct {
	listings []domain.RawListing
	failures []domain.Failure
}

// FetchListings scans every endpoint in parallel. A failing endpoint is reported in the batch
// and never fails the call; only a cancelled context does.
func (s *StrategySource) FetchListings(ctx context.Context, endpoints []domain.Endpoint) (ports.ListingBatch, error) {
	if s.registry == nil {
		return ports.ListingBatch{}, fmt.Errorf("scanner registry is not configured")
	}

	ctx, span := otel.Tracer("sheltersync/parser").Start(ctx, "source.fetch")
	defer span.End()
	span.SetAttributes(attribute.Int("endpoints", len(endpoints)))

	s.debug("fetch listings", "endpoints", len(endpoints), "workers", s.workers)

	results := make([]endpointResult, len(endpoints))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, ep := range endpoints {
		g.Go(func() error {
			results[i] = s.scanEndpoint(gctx, ep)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return ports.ListingBatch{}, fmt.Errorf("fetch listings: %w", err)
	}

	var batch ports.ListingBatch
	for _, r := range results {
		batch.Listings = append(batch.Listings, r.listings...)
		batch.Failures = append(batch.Failures, r.failures...)
	}
	s.debug("strategy source done", "total_listings", len(batch.Listings), "failures", len(batch.Failures))
	return batch, nil
}

func (s *StrategySource) scanEndpoint(ctx context.Context, ep domain.Endpoint) endpointResult {
	s.debug("process endpoint", "endpoint", ep.Name, "scanner", ep.Kind)

	strategy, err := s.registry.Resolve(ep.Kind)
	if err != nil {
		return endpointResult{failures: []domain.Failure{{
			Endpoint: ep.Name,
			Stage:    domain.StageFetch,
			Kind:     domain.FailureTransport,
			Message:  err.Error(),
		}}}
	}

	res, err := strategy.Scan(ctx, scanner.Request{Endpoint: ep})
	if err != nil {
		kind := ClassifyError(err)
		if s.logger != nil {
			s.logger.Warn("endpoint failed", "endpoint", ep.Name, "kind", kind, "error", err)
		}
		return endpointResult{failures: []domain.Failure{{
			Endpoint: ep.Name,
			Stage:    domain.StageFetch,
			Kind:     kind,
			Message:  err.Error(),
		}}}
	}

	out := endpointResult{listings: res.Listings}
	for _, rejected := range res.Rejected {
		out.failures = append(out.failures, domain.Failure{
			Endpoint: ep.Name,
			Stage:    domain.StageDecode,
			Kind:     domain.FailureParse,
			Message:  rejected.Error(),
		})
	}
	for i := range out.listings {
		if out.listings[i].Endpoint == "" {
			out.listings[i].Endpoint = ep.Name
		}
	}
	s.debug("endpoint produced listings", "endpoint", ep.Name, "count", len(out.listings), "rejected", len(res.Rejected))
	return out
}

// ClassifyError maps a fetch error onto the failure taxonomy.
func ClassifyError(err error) domain.FailureKind {
	if errors.Is(err, ErrMalformedPayload) || errors.Is(err, ErrNoEmbeddedJSON) {
		return domain.FailureParse
	}
	return domain.FailureTransport
}

func (s *StrategySource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
