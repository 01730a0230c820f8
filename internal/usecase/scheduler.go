package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ShelterSync/internal/domain"
	"ShelterSync/internal/ports"
)

// Scheduler wires the interval driver with the pipeline use case.
type Scheduler struct {
	driver    ports.Scheduler
	pipeline  *Pipeline
	endpoints []domain.Endpoint
	logger    *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring runs over endpoints.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, endpoints []domain.Endpoint, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{driver: driver, pipeline: pipeline, endpoints: endpoints, logger: logger}
}

// Endpoints returns the configured listing endpoints.
func (s *Scheduler) Endpoints() []domain.Endpoint {
	return s.endpoints
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if _, err := s.pipeline.Run(ctx, s.endpoints); err != nil {
			if errors.Is(err, ErrRunInProgress) {
				s.logger.Info("tick skipped, previous run still writing", "trigger", trigger)
				return
			}
			s.logger.Error("scheduled run failed", "trigger", trigger, "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
