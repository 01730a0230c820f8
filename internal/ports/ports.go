package ports

import (
	"context"
	"time"

	"ShelterSync/internal/domain"
)

// ListingSource pulls the currently listed animals from the adoption platform.
type ListingSource interface {
	FetchListings(ctx context.Context, endpoints []domain.Endpoint) (ListingBatch, error)
}

// ListingBatch is the merged output of all endpoints plus the endpoints that failed.
type ListingBatch struct {
	Listings []domain.RawListing
	Failures []domain.Failure
}

// DetailPage is the per-animal page re-scraped to verify location.
type DetailPage struct {
	AnimalID int64
	Location string
	Name     string
}

// DetailFetcher re-derives the current location of one animal from its public page.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, animal domain.Animal) (DetailPage, error)
}

// AnimalRepository persists the animal record set.
type AnimalRepository interface {
	AnimalsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Animal, error)
	TrackedAnimals(ctx context.Context) ([]domain.Animal, error)
	UpsertAnimal(ctx context.Context, animal domain.Animal) error
}

// HistoryRepository is the append-only event log.
type HistoryRepository interface {
	LatestEvent(ctx context.Context, dogID int64, eventType domain.EventType) (*domain.HistoryEvent, error)
	InsertEvent(ctx context.Context, event domain.HistoryEvent) (domain.HistoryEvent, error)
	EventsBetween(ctx context.Context, from, to time.Time) ([]domain.HistoryEvent, error)
}

// Repository is the whole persistence boundary.
type Repository interface {
	AnimalRepository
	HistoryRepository
	Ping(ctx context.Context) error
}

// Clock supplies "now" and the shelter's civil calendar.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// Notifier streams run digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// RunObserver receives every finished run summary (metrics, tracing).
type RunObserver interface {
	ObserveRun(summary domain.RunSummary)
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
