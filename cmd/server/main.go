package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	documenthandler "actarchive/internal/document/handler"
	documentmetrics "actarchive/internal/document/metrics"
	documentservice "actarchive/internal/document/service"
	"actarchive/internal/document/storage"
	documentstore "actarchive/internal/document/store"
	inventoryhandler "actarchive/internal/inventory/handler"
	inventorymetrics "actarchive/internal/inventory/metrics"
	inventoryservice "actarchive/internal/inventory/service"
	inventorystore "actarchive/internal/inventory/store"
	"actarchive/internal/platform/config"
	"actarchive/internal/platform/httpserver"
	"actarchive/internal/platform/logger"
	"actarchive/internal/platform/metrics"
	"actarchive/internal/platform/middleware"
	"actarchive/internal/platform/postgres"
	platformredis "actarchive/internal/platform/redis"
	"actarchive/internal/reconciliation/cache"
	reconhandler "actarchive/internal/reconciliation/handler"
	reconmetrics "actarchive/internal/reconciliation/metrics"
	reconservice "actarchive/internal/reconciliation/service"
	"actarchive/pkg/platform/audit"
	"actarchive/pkg/platform/audit/publisher"
	kafkapublisher "actarchive/pkg/platform/audit/publishers/kafka"
	auditmemory "actarchive/pkg/platform/audit/store/memory"
	auditpostgres "actarchive/pkg/platform/audit/store/postgres"
	"actarchive/pkg/platform/circuit"
	"actarchive/pkg/platform/httputil"
	"actarchive/pkg/platform/middleware/metadata"
	"actarchive/pkg/platform/middleware/request"
	"actarchive/pkg/platform/middleware/requesttime"
)

const requestTimeout = 60 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// infra holds the optional backing services. Nil fields run in-memory or
// without the feature.
type infra struct {
	db    *sql.DB
	redis *platformredis.Client
	kafka *kafkapublisher.Publisher

	// history is set by buildServices and drained before the sinks close.
	history *publisher.Publisher
}

func (i *infra) close(ctx context.Context, log *slog.Logger) {
	if i.history != nil {
		i.history.Close()
	}
	if i.kafka != nil {
		if err := i.kafka.Close(ctx); err != nil {
			log.Warn("kafka flush failed", "error", err)
		}
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}

	router := newRouter(cfg, log, deps)
	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting actarchive", "addr", cfg.Addr,
			"postgres", deps.db != nil,
			"redis", deps.redis != nil,
			"kafka", deps.kafka != nil,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	deps.close(shutdownCtx, log)
	return err
}

func connect(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	deps := &infra{}

	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		deps.db = db
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	client, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		deps.close(ctx, log)
		return nil, err
	}
	deps.redis = client

	if len(cfg.Kafka.Brokers) > 0 {
		pub, err := kafkapublisher.New(cfg.Kafka.Brokers, cfg.Kafka.HistoryTopic, log)
		if err != nil {
			deps.close(ctx, log)
			return nil, err
		}
		if err := pub.EnsureTopic(ctx, 3, 1); err != nil {
			log.Warn("could not ensure history topic", "topic", cfg.Kafka.HistoryTopic, "error", err)
		}
		deps.kafka = pub
	}
	return deps, nil
}

func newRouter(cfg config.Server, log *slog.Logger, deps *infra) http.Handler {
	httpMetrics := metrics.New()

	documents, inventory, reconciliation := buildServices(cfg, log, deps)

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(log))
	r.Use(request.Recovery(log))
	r.Use(requesttime.Middleware)
	r.Use(chimw.Timeout(requestTimeout))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", healthHandler(deps))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Latency(httpMetrics))
		r.Use(middleware.RequireIdentity(log, httpMetrics))
		documenthandler.New(documents, log, httpMetrics).Register(r)
		inventoryhandler.New(inventory, log, httpMetrics).Register(r)
		reconhandler.New(reconciliation, log, httpMetrics).Register(r)
	})
	return r
}

func buildServices(cfg config.Server, log *slog.Logger, deps *infra) (*documentservice.Service, *inventoryservice.Service, *reconservice.Service) {
	var (
		docStore interface {
			documentservice.Store
			reconservice.DocumentReader
		}
		invStore interface {
			inventoryservice.Store
			reconservice.InventoryReader
		}
		history audit.Store
		docOpts []documentservice.Option
	)
	if deps.db != nil {
		docStore = documentstore.NewPostgres(deps.db)
		invStore = inventorystore.NewPostgres(deps.db)
		history = auditpostgres.New(deps.db)
		docOpts = append(docOpts, documentservice.WithTx(newWorkflowPostgresTx(deps.db, cfg.WorkflowTxTimeout)))
	} else {
		docStore = documentstore.NewInMemory()
		invStore = inventorystore.NewInMemory()
		history = auditmemory.NewInMemoryStore()
	}

	sinks := audit.FanOut{history}
	if deps.kafka != nil {
		sinks = append(sinks, deps.kafka)
	}

	pubOpts := []publisher.Option{publisher.WithLogger(log)}
	if cfg.HistoryBuffer > 0 {
		pubOpts = append(pubOpts, publisher.WithAsyncBuffer(cfg.HistoryBuffer))
	}
	deps.history = publisher.NewPublisher(sinks, pubOpts...)

	docOpts = append(docOpts,
		documentservice.WithLogger(log),
		documentservice.WithMetrics(documentmetrics.New()),
		documentservice.WithHistoryPublisher(deps.history),
		documentservice.WithHistoryReader(history),
		documentservice.WithMinRejectMessageLength(cfg.RejectMinMessageLen),
	)
	documents := documentservice.New(docStore, storage.NewOS(cfg.StorageRoot, storage.WithLogger(log)), docOpts...)

	invOpts := []inventoryservice.Option{
		inventoryservice.WithLogger(log),
		inventoryservice.WithMetrics(inventorymetrics.New()),
	}
	reconOpts := []reconservice.Option{
		reconservice.WithLogger(log),
		reconservice.WithMetrics(reconmetrics.New()),
	}
	if deps.redis != nil {
		breaker := circuit.New("reconciliation-cache",
			circuit.WithFailureThreshold(3),
			circuit.WithCooldown(15*time.Second),
		)
		reports := cache.New(deps.redis.Client, cfg.ReconciliationCacheTTL, cache.WithBreaker(breaker))
		invOpts = append(invOpts, inventoryservice.WithInvalidator(reports))
		reconOpts = append(reconOpts, reconservice.WithCache(reports, cache.Key))
	}

	inventory := inventoryservice.New(invStore, invOpts...)
	reconciliation := reconservice.New(invStore, docStore, reconOpts...)
	return documents, inventory, reconciliation
}

func healthHandler(deps *infra) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{}
		healthy := true
		if deps.db != nil {
			checks["postgres"] = "ok"
			if err := deps.db.PingContext(ctx); err != nil {
				checks["postgres"] = "unavailable"
				healthy = false
			}
		}
		if deps.redis != nil {
			// The cache is optional; a failing Redis degrades but does not fail.
			checks["redis"] = "ok"
			if err := deps.redis.Health(ctx); err != nil {
				checks["redis"] = "degraded"
			}
		}

		status := http.StatusOK
		body := map[string]any{"status": "ok", "checks": checks}
		if !healthy {
			status = http.StatusServiceUnavailable
			body["status"] = "unavailable"
		}
		httputil.WriteJSON(w, status, body)
	}
}
