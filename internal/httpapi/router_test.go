package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ShelterSync/internal/clock"
	"ShelterSync/internal/domain"
	"ShelterSync/internal/usecase"
)

type stubRunner struct {
	runErr    error
	summary   domain.RunSummary
	digestDay time.Time
	endpoints []domain.Endpoint
}

func (s *stubRunner) Run(_ context.Context, endpoints []domain.Endpoint) (domain.RunSummary, error) {
	s.endpoints = endpoints
	return s.summary, s.runErr
}

func (s *stubRunner) Digest(_ context.Context, day time.Time) (usecase.DailyDigest, error) {
	s.digestDay = day
	return usecase.DailyDigest{
		Day:     day.Format(time.DateOnly),
		Adopted: []usecase.DigestEntry{{AnimalID: 2, Name: "Biscuit", Detail: day.Format(time.DateOnly)}},
	}, nil
}

func newTestRouter(runner *stubRunner, health func(context.Context) error) http.Handler {
	loc, _ := time.LoadLocation("America/Denver")
	return NewRouter(Options{
		Runner:    runner,
		Endpoints: []domain.Endpoint{{Name: "dogs", Kind: "widget", URL: "http://example"}},
		Health:    health,
		Gatherer:  prometheus.NewRegistry(),
		Clock:     clock.NewFixed(time.Date(2026, time.February, 4, 3, 0, 0, 0, time.UTC), loc),
	})
}

func TestRunsEndpoint(t *testing.T) {
	runner := &stubRunner{summary: domain.RunSummary{RunID: "abc", Upserted: 4, Adopted: []int64{2}}}
	h := newTestRouter(runner, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/runs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body runResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "abc", body.RunID)
	assert.Equal(t, 4, body.Upserted)
	assert.Equal(t, []int64{2}, body.Adopted)
	assert.Equal(t, []int64{}, body.Returned)
	require.Len(t, runner.endpoints, 1)
}

func TestRunsEndpointConflict(t *testing.T) {
	h := newTestRouter(&stubRunner{runErr: usecase.ErrRunInProgress}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/runs", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRunsEndpointRepositoryDown(t *testing.T) {
	h := newTestRouter(&stubRunner{runErr: usecase.ErrRepositoryUnavailable}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/runs", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDigestEndpoint(t *testing.T) {
	runner := &stubRunner{}
	h := newTestRouter(runner, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/digest", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	// 03:00 UTC on Feb 4 is still Feb 3 in Denver.
	assert.Equal(t, "2026-02-03", runner.digestDay.Format(time.DateOnly))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/digest?date=2026-01-15&format=text", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "Adopted today (1)"), rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/digest?date=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	healthy := newTestRouter(&stubRunner{}, func(context.Context) error { return nil })
	rec := httptest.NewRecorder()
	healthy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newTestRouter(&stubRunner{}, func(context.Context) error { return errors.New("db gone") })
	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	healthy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
