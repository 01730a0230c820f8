// Package httpapi serves the admin surface: health, metrics, manual run trigger and daily digest.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ShelterSync/internal/clock"
	"ShelterSync/internal/domain"
	"ShelterSync/internal/ports"
	"ShelterSync/internal/usecase"
)

// Runner is the slice of the pipeline the admin surface drives.
type Runner interface {
	Run(ctx context.Context, endpoints []domain.Endpoint) (domain.RunSummary, error)
	Digest(ctx context.Context, day time.Time) (usecase.DailyDigest, error)
}

// Options wires the router's collaborators. Gatherer may be nil to omit /metrics.
type Options struct {
	Runner    Runner
	Endpoints []domain.Endpoint
	Health    func(ctx context.Context) error
	Gatherer  prometheus.Gatherer
	Clock     ports.Clock
	Logger    *slog.Logger
}

// NewRouter builds the chi router.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", healthHandler(opts.Health))
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Post("/runs", runHandler(opts.Runner, opts.Endpoints, logger))
	r.Get("/digest", digestHandler(opts.Runner, opts.Clock))

	return r
}

type failureResponse struct {
	AnimalID *int64 `json:"animalId,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Stage    string `json:"stage"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
}

type runResponse struct {
	RunID            string            `json:"runId"`
	StartedAt        time.Time         `json:"startedAt"`
	FinishedAt       time.Time         `json:"finishedAt"`
	Fetched          int               `json:"fetched"`
	Upserted         int               `json:"upserted"`
	EventsLogged     int               `json:"eventsLogged"`
	EventsSuppressed int               `json:"eventsSuppressed"`
	Skipped          int               `json:"skipped"`
	Adopted          []int64           `json:"adopted"`
	Returned         []int64           `json:"returned"`
	Arrived          []int64           `json:"arrived"`
	Errors           []failureResponse `json:"errors"`
	Cancelled        bool              `json:"cancelled"`
}

func toRunResponse(s domain.RunSummary) runResponse {
	resp := runResponse{
		RunID:            s.RunID,
		StartedAt:        s.StartedAt,
		FinishedAt:       s.FinishedAt,
		Fetched:          s.Fetched,
		Upserted:         s.Upserted,
		EventsLogged:     s.EventsLogged,
		EventsSuppressed: s.EventsSuppressed,
		Skipped:          s.Skipped,
		Adopted:          nonNil(s.Adopted),
		Returned:         nonNil(s.Returned),
		Arrived:          nonNil(s.Arrived),
		Errors:           make([]failureResponse, 0, len(s.Errors)),
		Cancelled:        s.Cancelled,
	}
	for _, f := range s.Errors {
		resp.Errors = append(resp.Errors, failureResponse{
			AnimalID: f.AnimalID,
			Endpoint: f.Endpoint,
			Stage:    f.Stage,
			Kind:     string(f.Kind),
			Message:  f.Message,
		})
	}
	return resp
}

func healthHandler(check func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				http.Error(w, "unavailable: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

func runHandler(runner Runner, endpoints []domain.Endpoint, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if runner == nil {
			http.Error(w, "pipeline not configured", http.StatusServiceUnavailable)
			return
		}

		summary, err := runner.Run(r.Context(), endpoints)
		switch {
		case errors.Is(err, usecase.ErrRunInProgress):
			http.Error(w, "a run is already in progress", http.StatusConflict)
			return
		case errors.Is(err, usecase.ErrRepositoryUnavailable):
			logger.Error("manual run aborted", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, toRunResponse(summary))
			return
		case err != nil:
			logger.Warn("manual run interrupted", "error", err)
		}
		writeJSON(w, http.StatusOK, toRunResponse(summary))
	}
}

func digestHandler(runner Runner, clk ports.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if runner == nil || clk == nil {
			http.Error(w, "pipeline not configured", http.StatusServiceUnavailable)
			return
		}

		day := clock.Today(clk)
		if raw := r.URL.Query().Get("date"); raw != "" {
			parsed, err := time.ParseInLocation(time.DateOnly, raw, clk.Location())
			if err != nil {
				http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
				return
			}
			day = parsed
		}

		digest, err := runner.Digest(r.Context(), day)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		if r.URL.Query().Get("format") == "text" {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte(usecase.FormatDigest(digest)))
			return
		}
		writeJSON(w, http.StatusOK, digest)
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
