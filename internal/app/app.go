package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"ShelterSync/internal/clock"
	"ShelterSync/internal/config"
	"ShelterSync/internal/domain"
	"ShelterSync/internal/history"
	"ShelterSync/internal/httpapi"
	"ShelterSync/internal/infrastructure/metrics"
	"ShelterSync/internal/infrastructure/parser"
	"ShelterSync/internal/infrastructure/scheduler"
	"ShelterSync/internal/infrastructure/storage"
	"ShelterSync/internal/infrastructure/telegram"
	"ShelterSync/internal/logging"
	"ShelterSync/internal/normalize"
	"ShelterSync/internal/observability"
	"ShelterSync/internal/ports"
	"ShelterSync/internal/reconcile"
	"ShelterSync/internal/scanner"
	"ShelterSync/internal/usecase"
)

// Version is stamped at build time.
var Version = "dev"

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	db        *sql.DB
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
	server    *http.Server
	endpoints []domain.Endpoint
	tracing   func(context.Context) error
}

// New opens the database, applies the schema and builds every component.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	db, dialect, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := storage.Migrate(ctx, db, dialect); err != nil {
		_ = db.Close()
		_ = shutdownTracing(ctx)
		return nil, fmt.Errorf("migrate: %w", err)
	}
	repo := storage.NewSQLRepository(db, dialect)

	clk := clock.New(cfg.Scheduler.Location())
	markers := normalize.Markers{
		AvailableSoon: cfg.Source.AvailableSoonMarker,
		TrialAdoption: cfg.Source.TrialAdoptionMarker,
	}
	httpClient := parser.NewHTTPClient(cfg.Source.Timeout)

	registry := scanner.NewRegistry(
		parser.NewWidgetScanner(httpClient),
		parser.NewPageScanner(httpClient),
	)
	source := parser.NewStrategySource(registry, cfg.Source.Workers, baseLogger.With("component", "source"))
	detail := parser.NewDetailPageFetcher(httpClient, cfg.Source.DetailRPS, cfg.Source.DetailURLTemplate)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(promRegistry)

	var notifier ports.Notifier
	tg := telegram.NewNotifier(cfg.Notifications.Telegram.APIBase, cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
	if tg.Configured() {
		notifier = tg
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:     source,
		Repository: repo,
		Normalizer: normalize.New(clk, markers),
		Reconciler: reconcile.New(reconcile.Deps{
			Detail:  detail,
			Clock:   clk,
			Markers: markers,
			Workers: cfg.Source.Workers,
			Logger:  baseLogger.With("component", "reconcile"),
		}),
		History:   history.NewLogger(repo, clk, cfg.History.DedupWindow, baseLogger.With("component", "history")),
		Clock:     clk,
		Notifier:  notifier,
		Observers: []ports.RunObserver{recorder},
		Logger:    baseLogger.With("component", "pipeline"),
	})

	endpoints := cfg.Source.DomainEndpoints()
	app := &Application{
		cfg:       cfg,
		logger:    baseLogger,
		db:        db,
		pipeline:  pipeline,
		scheduler: usecase.NewScheduler(scheduler.NewTicker(cfg.Scheduler.Interval), pipeline, endpoints, baseLogger.With("component", "scheduler")),
		endpoints: endpoints,
		tracing:   shutdownTracing,
	}

	if cfg.Admin.Addr != "" {
		app.server = &http.Server{
			Addr: cfg.Admin.Addr,
			Handler: httpapi.NewRouter(httpapi.Options{
				Runner:    pipeline,
				Endpoints: endpoints,
				Health:    repo.Ping,
				Gatherer:  promRegistry,
				Clock:     clk,
				Logger:    baseLogger.With("component", "http"),
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return app, nil
}

// RunOnce performs a single reconciliation pass.
func (a *Application) RunOnce(ctx context.Context) (domain.RunSummary, error) {
	return a.pipeline.Run(ctx, a.endpoints)
}

// Serve starts the scheduler and the admin listener and blocks until ctx is done.
func (a *Application) Serve(ctx context.Context) error {
	a.logger.Info("starting",
		"version", Version,
		"endpoints", len(a.endpoints),
		"interval", a.cfg.Scheduler.Interval,
		"timezone", a.cfg.Scheduler.Timezone,
		"admin", a.cfg.Admin.Addr)

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	serverErr := make(chan error, 1)
	if a.server != nil {
		go func() {
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-serverErr:
		err = fmt.Errorf("admin server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if a.server != nil {
		if sErr := a.server.Shutdown(shutdownCtx); sErr != nil {
			a.logger.Warn("admin server shutdown", "error", sErr)
		}
	}
	if sErr := a.scheduler.Stop(shutdownCtx); sErr != nil {
		a.logger.Warn("scheduler stop", "error", sErr)
	}
	return err
}

// Close releases the database and flushes traces.
func (a *Application) Close(ctx context.Context) error {
	var errs []error
	if a.tracing != nil {
		errs = append(errs, a.tracing(ctx))
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
