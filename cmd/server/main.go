package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"agentvault/internal/audit"
	"agentvault/internal/epoch"
	"agentvault/internal/platform/config"
	"agentvault/internal/platform/httpserver"
	"agentvault/internal/platform/logger"
	platformredis "agentvault/internal/platform/redis"
	"agentvault/internal/vault/handler"
	"agentvault/internal/vault/metrics"
	"agentvault/internal/vault/service"
	"agentvault/internal/vault/store"
	"agentvault/pkg/platform/middleware/auth"
	"agentvault/pkg/platform/middleware/requestid"
)

// main wires dependencies from configuration and owns the process lifecycle.
// Business rules live in internal/vault; everything here is assembly.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	// Vault store: postgres when configured, in-memory otherwise.
	var vaultStore store.VaultStore
	if cfg.PostgresDSN != "" {
		pg, err := store.NewPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		vaultStore = pg
		log.Info("using postgres vault store")
	} else {
		vaultStore = store.NewMemory()
		log.Warn("no postgres dsn configured, vault state is in-memory only")
	}

	// Audit mirror: walrus-compatible blob store when configured.
	var mirror audit.Mirror
	if cfg.WalrusPublisherURL != "" {
		mirror = audit.NewWalrusMirror(cfg.WalrusPublisherURL, cfg.WalrusAggregatorURL, cfg.WalrusStoreEpochs)
		log.Info("audit mirror enabled", "publisher", cfg.WalrusPublisherURL)
	} else {
		mirror = audit.NewMemoryMirror()
		log.Warn("no walrus publisher configured, audit records stay in-process")
	}

	redisClient, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}

	publisherOpts := []audit.Option{}
	if redisClient != nil {
		defer redisClient.Close()
		publisherOpts = append(publisherOpts, audit.WithIndex(audit.NewRedisIndex(redisClient)))
		log.Info("audit blob index enabled")
	}
	publisher := audit.NewPublisher(mirror, log, publisherOpts...)

	serviceOpts := []service.Option{
		service.WithAuditSink(publisher),
		service.WithMetrics(metrics.New()),
	}
	if len(cfg.KafkaBrokers) > 0 {
		stream, err := audit.NewKafkaStream(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			return err
		}
		defer stream.Close()
		serviceOpts = append(serviceOpts, service.WithEventStream(stream))
		log.Info("decision event stream enabled", "topic", cfg.KafkaTopic)
	}

	svc, err := service.New(vaultStore, epoch.NewClock(cfg.EpochLength), log, serviceOpts...)
	if err != nil {
		return err
	}

	router := chi.NewRouter()
	router.Get("/healthz", healthHandler(redisClient))
	router.Handle("/metrics", promhttp.Handler())
	router.Group(func(r chi.Router) {
		r.Use(requestid.Middleware)
		r.Use(auth.CallerIdentity(cfg.JWTSigningKey))
		handler.New(svc, log).Register(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return publisher.Run(ctx)
	})
	g.Go(func() error {
		log.Info("starting agentvault server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// healthHandler reports liveness; redis is optional and only degrades the
// report, it never fails it.
func healthHandler(redisClient *platformredis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				status = "degraded"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"` + status + `"}`))
	}
}
