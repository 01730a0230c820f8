package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"ShelterSync/internal/domain"
)

func TestRecorder_ObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)

	id := int64(7)
	start := time.Date(2026, time.February, 3, 12, 0, 0, 0, time.UTC)
	rec.ObserveRun(domain.RunSummary{
		StartedAt:        start,
		FinishedAt:       start.Add(3 * time.Second),
		Upserted:         4,
		EventsLogged:     3,
		EventsSuppressed: 1,
		Skipped:          1,
		Adopted:          []int64{2},
		Errors: []domain.Failure{{
			AnimalID: &id,
			Stage:    domain.StageUpsert,
			Kind:     domain.FailurePersistence,
		}},
	})
	rec.ObserveRun(domain.RunSummary{StartedAt: start, FinishedAt: start.Add(time.Second)})

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.runs.WithLabelValues("partial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.runs.WithLabelValues("clean")))
	assert.Equal(t, 4.0, testutil.ToFloat64(rec.upserts))
	assert.Equal(t, 3.0, testutil.ToFloat64(rec.events.WithLabelValues("logged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.events.WithLabelValues("suppressed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.transitions.WithLabelValues("adopted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.failures.WithLabelValues("upsert", "persistence")))
	assert.Equal(t, float64(start.Add(time.Second).Unix()), testutil.ToFloat64(rec.lastSuccess))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.duration, "sheltersync_run_duration_seconds"))
}
