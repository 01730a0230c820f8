// Package history commits audit events with a time-windowed duplicate guard.
//
// The guard always re-reads the latest stored event of the same (dog, type) pair.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ShelterSync/internal/domain"
	"ShelterSync/internal/ports"
)

// DefaultWindow is how long an identical event is treated as a duplicate.
const DefaultWindow = 60 * time.Second

// Logger writes HistoryEvents through a HistoryRepository.
type Logger struct {
	repo   ports.HistoryRepository
	clock  ports.Clock
	window time.Duration
	logger *slog.Logger
}

// NewLogger builds a Logger; a non-positive window falls back to DefaultWindow.
func NewLogger(repo ports.HistoryRepository, clock ports.Clock, window time.Duration, logger *slog.Logger) *Logger {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Logger{repo: repo, clock: clock, window: window, logger: logger}
}

// Window returns the configured dedup window.
func (l *Logger) Window() time.Duration {
	return l.window
}

// Log inserts event unless the latest event of the same dog and type is the same fact and
// younger than the window. It reports whether a row was written.
func (l *Logger) Log(ctx context.Context, event domain.HistoryEvent) (bool, error) {
	now := l.clock.Now()

	latest, err := l.repo.LatestEvent(ctx, event.DogID, event.EventType)
	if err != nil {
		return false, fmt.Errorf("latest %s for %d: %w", event.EventType, event.DogID, err)
	}
	if latest != nil && latest.SameFact(event) && now.Sub(latest.CreatedAt) < l.window {
		l.logger.Debug("duplicate event suppressed",
			"animal_id", event.DogID,
			"event_type", event.EventType,
			"age", now.Sub(latest.CreatedAt))
		return false, nil
	}

	event.CreatedAt = now
	if _, err := l.repo.InsertEvent(ctx, event); err != nil {
		return false, fmt.Errorf("insert %s for %d: %w", event.EventType, event.DogID, err)
	}
	return true, nil
}
