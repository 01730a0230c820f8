package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ShelterSync/internal/domain"
	"ShelterSync/internal/ports"
)

// MemoryRepository keeps animals and events in process memory. Used by tests and dry runs.
type MemoryRepository struct {
	mu      sync.RWMutex
	animals map[int64]domain.Animal
	events  []domain.HistoryEvent
	nextID  int64

	pingErr      error
	upsertFaults map[int64]int
	insertFaults int
	upsertCalls  map[int64]int
}

var _ ports.Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		animals:      make(map[int64]domain.Animal),
		nextID:       1,
		upsertFaults: make(map[int64]int),
		upsertCalls:  make(map[int64]int),
	}
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pingErr
}

func (r *MemoryRepository) AnimalsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Animal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[int64]domain.Animal, len(ids))
	for _, id := range ids {
		if a, ok := r.animals[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (r *MemoryRepository) TrackedAnimals(ctx context.Context) ([]domain.Animal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Animal, 0)
	for _, a := range r.animals {
		if a.Status.Tracked() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpsertAnimal mirrors the SQL upsert: origin is write-once, returned_count never decreases,
// and coordinates survive a write that omits them.
func (r *MemoryRepository) UpsertAnimal(ctx context.Context, a domain.Animal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.upsertCalls[a.ID]++
	if r.upsertFaults[a.ID] > 0 {
		r.upsertFaults[a.ID]--
		return fmt.Errorf("upsert animal %d: injected failure", a.ID)
	}

	if prior, ok := r.animals[a.ID]; ok {
		if prior.Origin != "" {
			a.Origin = prior.Origin
		}
		if a.ReturnedCount < prior.ReturnedCount {
			a.ReturnedCount = prior.ReturnedCount
		}
		if a.Latitude == nil {
			a.Latitude = prior.Latitude
		}
		if a.Longitude == nil {
			a.Longitude = prior.Longitude
		}
	}
	r.animals[a.ID] = a
	return nil
}

func (r *MemoryRepository) LatestEvent(ctx context.Context, dogID int64, eventType domain.EventType) (*domain.HistoryEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *domain.HistoryEvent
	for i := range r.events {
		e := r.events[i]
		if e.DogID != dogID || e.EventType != eventType {
			continue
		}
		if latest == nil || !e.CreatedAt.Before(latest.CreatedAt) {
			found := e
			latest = &found
		}
	}
	return latest, nil
}

func (r *MemoryRepository) InsertEvent(ctx context.Context, e domain.HistoryEvent) (domain.HistoryEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.insertFaults > 0 {
		r.insertFaults--
		return domain.HistoryEvent{}, fmt.Errorf("insert event for %d: injected failure", e.DogID)
	}
	e.ID = r.nextID
	r.nextID++
	r.events = append(r.events, e)
	return e, nil
}

func (r *MemoryRepository) EventsBetween(ctx context.Context, from, to time.Time) ([]domain.HistoryEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.HistoryEvent, 0)
	for _, e := range r.events {
		if !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Seed stores animals as-is, bypassing upsert rules.
func (r *MemoryRepository) Seed(animals ...domain.Animal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range animals {
		r.animals[a.ID] = a
	}
}

// Animal returns the stored record for id.
func (r *MemoryRepository) Animal(id int64) (domain.Animal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.animals[id]
	return a, ok
}

// Events returns a copy of the event log in insertion order.
func (r *MemoryRepository) Events() []domain.HistoryEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.HistoryEvent(nil), r.events...)
}

// FailUpserts makes the next n upserts of id fail.
func (r *MemoryRepository) FailUpserts(id int64, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertFaults[id] = n
}

// FailInserts makes the next n event inserts fail.
func (r *MemoryRepository) FailInserts(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertFaults = n
}

// UpsertCalls reports how many upserts were attempted for id.
func (r *MemoryRepository) UpsertCalls(id int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.upsertCalls[id]
}

// SetPingError makes Ping return err until cleared with nil.
func (r *MemoryRepository) SetPingError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pingErr = err
}
