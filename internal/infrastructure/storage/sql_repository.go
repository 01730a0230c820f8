package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"ShelterSync/internal/domain"
	"ShelterSync/internal/ports"
)

const (
	sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"
	idChunk          = 500
)

var animalColumns = []string{
	"id", "name", "status", "location", "origin",
	"intake_date", "birth_date", "adopted_date", "length_of_stay_days", "age_group",
	"breed", "secondary_breed", "weight_group", "color", "notes", "detail_url",
	"latitude", "longitude", "returned_count", "verified_adoption", "updated_at",
}

var eventColumns = []string{
	"id", "dog_id", "name", "event_type", "old_value", "new_value", "adopted_date", "notes", "created_at",
}

// Origin is written only while the stored value is empty; returned_count never decreases.
const animalUpsertSuffix = `ON CONFLICT (id) DO UPDATE SET
	name = excluded.name,
	status = excluded.status,
	location = excluded.location,
	origin = CASE WHEN animals.origin IS NULL OR animals.origin = '' THEN excluded.origin ELSE animals.origin END,
	intake_date = excluded.intake_date,
	birth_date = excluded.birth_date,
	adopted_date = excluded.adopted_date,
	length_of_stay_days = excluded.length_of_stay_days,
	age_group = excluded.age_group,
	breed = excluded.breed,
	secondary_breed = excluded.secondary_breed,
	weight_group = excluded.weight_group,
	color = excluded.color,
	notes = excluded.notes,
	detail_url = excluded.detail_url,
	latitude = COALESCE(excluded.latitude, animals.latitude),
	longitude = COALESCE(excluded.longitude, animals.longitude),
	returned_count = CASE WHEN excluded.returned_count > animals.returned_count THEN excluded.returned_count ELSE animals.returned_count END,
	verified_adoption = excluded.verified_adoption,
	updated_at = excluded.updated_at`

// SQLRepository persists animals and history events through database/sql.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
	sb      sq.StatementBuilderType

	// lib/pq needs pq.Array for array parameters; pgx encodes Go slices itself.
	pqArrays bool
}

var _ ports.Repository = (*SQLRepository)(nil)

// NewSQLRepository wires a sql.DB of the given dialect.
func NewSQLRepository(db *sql.DB, dialect Dialect) *SQLRepository {
	r := &SQLRepository{
		db:      db,
		dialect: dialect,
		sb:      sq.StatementBuilder.PlaceholderFormat(dialect.placeholders()),
	}
	if db != nil {
		_, r.pqArrays = db.Driver().(*pq.Driver)
	}
	return r
}

// idArrayArg binds ids as a Postgres bigint[] in the form the driver expects.
func (r *SQLRepository) idArrayArg(ids []int64) any {
	if r.pqArrays {
		return pq.Array(ids)
	}
	return ids
}

// Ping verifies the database is reachable.
func (r *SQLRepository) Ping(ctx context.Context) error {
	if r.db == nil {
		return errors.New("database is not configured")
	}
	return r.db.PingContext(ctx)
}

// AnimalsByIDs returns the stored animals among ids.
func (r *SQLRepository) AnimalsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Animal, error) {
	result := make(map[int64]domain.Animal, len(ids))
	for start := 0; start < len(ids); start += idChunk {
		end := min(start+idChunk, len(ids))
		chunk := ids[start:end]

		query := r.sb.Select(animalColumns...).From("animals")
		if r.dialect == DialectPostgres {
			query = query.Where("id = ANY(?)", r.idArrayArg(chunk))
		} else {
			query = query.Where(sq.Eq{"id": chunk})
		}

		animals, err := r.queryAnimals(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("query animals by id: %w", err)
		}
		for _, a := range animals {
			result[a.ID] = a
		}
	}
	return result, nil
}

// TrackedAnimals returns every animal currently expected on the listing.
func (r *SQLRepository) TrackedAnimals(ctx context.Context) ([]domain.Animal, error) {
	query := r.sb.Select(animalColumns...).From("animals").
		Where(sq.Eq{"status": []string{string(domain.StatusAvailable), string(domain.StatusAvailableSoon)}}).
		OrderBy("id")
	animals, err := r.queryAnimals(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tracked animals: %w", err)
	}
	return animals, nil
}

// UpsertAnimal inserts or updates the animal keyed by id.
func (r *SQLRepository) UpsertAnimal(ctx context.Context, a domain.Animal) error {
	var ageGroup any
	if a.AgeGroup != nil {
		ageGroup = string(*a.AgeGroup)
	}
	var stay any
	if a.LengthOfStayDays != nil {
		stay = *a.LengthOfStayDays
	}

	query := r.sb.Insert("animals").Columns(animalColumns...).Values(
		a.ID, a.Name, string(a.Status), a.Location, a.Origin,
		dateArg(a.IntakeDate), dateArg(a.BirthDate), dateArg(a.AdoptedDate), stay, ageGroup,
		a.Breed, a.SecondaryBreed, a.WeightGroup, a.Color, a.Notes, a.DetailURL,
		floatArg(a.Latitude), floatArg(a.Longitude), a.ReturnedCount, a.VerifiedAdoption, r.timeArg(a.UpdatedAt),
	).Suffix(animalUpsertSuffix)

	if _, err := query.RunWith(r.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("upsert animal %d: %w", a.ID, err)
	}
	return nil
}

// LatestEvent returns the most recent event of the given type for dogID, or nil.
func (r *SQLRepository) LatestEvent(ctx context.Context, dogID int64, eventType domain.EventType) (*domain.HistoryEvent, error) {
	query := r.sb.Select(eventColumns...).From("history_events").
		Where(sq.Eq{"dog_id": dogID, "event_type": string(eventType)}).
		OrderBy("created_at DESC", "id DESC").
		Limit(1)

	events, err := r.queryEvents(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query latest event: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// InsertEvent appends event and returns it with its assigned id.
func (r *SQLRepository) InsertEvent(ctx context.Context, e domain.HistoryEvent) (domain.HistoryEvent, error) {
	query := r.sb.Insert("history_events").
		Columns("dog_id", "name", "event_type", "old_value", "new_value", "adopted_date", "notes", "created_at").
		Values(e.DogID, e.Name, string(e.EventType), stringArg(e.OldValue), stringArg(e.NewValue),
			dateArg(e.AdoptedDate), e.Notes, r.timeArg(e.CreatedAt)).
		Suffix("RETURNING id")

	if err := query.RunWith(r.db).QueryRowContext(ctx).Scan(&e.ID); err != nil {
		return domain.HistoryEvent{}, fmt.Errorf("insert event for %d: %w", e.DogID, err)
	}
	return e, nil
}

// EventsBetween lists events created in [from, to), oldest first.
func (r *SQLRepository) EventsBetween(ctx context.Context, from, to time.Time) ([]domain.HistoryEvent, error) {
	query := r.sb.Select(eventColumns...).From("history_events").
		Where(sq.GtOrEq{"created_at": r.timeArg(from)}).
		Where(sq.Lt{"created_at": r.timeArg(to)}).
		OrderBy("created_at", "id")

	events, err := r.queryEvents(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query events between: %w", err)
	}
	return events, nil
}

func (r *SQLRepository) queryAnimals(ctx context.Context, query sq.SelectBuilder) ([]domain.Animal, error) {
	rows, err := query.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Animal
	for rows.Next() {
		var (
			a                               domain.Animal
			status                          string
			intake, birth, adopted, ageName sql.NullString
			stay                            sql.NullInt64
			lat, lng                        sql.NullFloat64
			updated                         dbTime
		)
		if err := rows.Scan(
			&a.ID, &a.Name, &status, &a.Location, &a.Origin,
			&intake, &birth, &adopted, &stay, &ageName,
			&a.Breed, &a.SecondaryBreed, &a.WeightGroup, &a.Color, &a.Notes, &a.DetailURL,
			&lat, &lng, &a.ReturnedCount, &a.VerifiedAdoption, &updated,
		); err != nil {
			return nil, fmt.Errorf("scan animal: %w", err)
		}

		a.Status = domain.ParseStatus(status)
		a.IntakeDate = parseDate(intake)
		a.BirthDate = parseDate(birth)
		a.AdoptedDate = parseDate(adopted)
		if stay.Valid {
			days := int(stay.Int64)
			a.LengthOfStayDays = &days
		}
		if ageName.Valid && ageName.String != "" {
			group := domain.AgeGroup(ageName.String)
			a.AgeGroup = &group
		}
		if lat.Valid {
			a.Latitude = &lat.Float64
		}
		if lng.Valid {
			a.Longitude = &lng.Float64
		}
		a.UpdatedAt = updated.Time
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func (r *SQLRepository) queryEvents(ctx context.Context, query sq.SelectBuilder) ([]domain.HistoryEvent, error) {
	rows, err := query.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.HistoryEvent
	for rows.Next() {
		var (
			e                  domain.HistoryEvent
			eventType          string
			oldValue, newValue sql.NullString
			adopted            sql.NullString
			created            dbTime
		)
		if err := rows.Scan(&e.ID, &e.DogID, &e.Name, &eventType, &oldValue, &newValue, &adopted, &e.Notes, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.EventType = domain.EventType(eventType)
		if oldValue.Valid {
			e.OldValue = &oldValue.String
		}
		if newValue.Valid {
			e.NewValue = &newValue.String
		}
		e.AdoptedDate = parseDate(adopted)
		e.CreatedAt = created.Time
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func (r *SQLRepository) timeArg(t time.Time) any {
	if r.dialect == DialectSQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}
