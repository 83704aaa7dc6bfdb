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

	annotationhandler "flatmaps/internal/annotation/handler"
	annotationservice "flatmaps/internal/annotation/service"
	"flatmaps/internal/annotation/store"
	"flatmaps/internal/annotation/store/memory"
	"flatmaps/internal/annotation/store/postgres"
	"flatmaps/internal/annotation/store/rediscache"
	"flatmaps/internal/audit"
	"flatmaps/internal/authgate/github"
	authhandler "flatmaps/internal/authgate/handler"
	jwttoken "flatmaps/internal/jwt_token"
	"flatmaps/internal/platform/config"
	"flatmaps/internal/platform/httpserver"
	"flatmaps/internal/platform/logger"
	"flatmaps/internal/platform/metrics"
	"flatmaps/internal/platform/middleware"
	platformredis "flatmaps/internal/platform/redis"
)

// main wires configuration, storage, auth, and the HTTP router. Business
// logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Annotation store: postgres when configured, in-memory otherwise.
	var annotationStore store.Store
	if cfg.Postgres.URL != "" {
		pg, err := postgres.Open(ctx, cfg.Postgres.URL)
		if err != nil {
			log.Error("failed to open annotation database", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		annotationStore = pg
		log.Info("annotation store: postgres")
	} else {
		annotationStore = memory.New()
		log.Info("annotation store: in-memory")
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		annotationStore = rediscache.New(annotationStore, redisClient.Client, cfg.Redis.CacheTTL, log)
		log.Info("annotation cache enabled", "ttl", cfg.Redis.CacheTTL)
	}

	auditor, err := audit.Connect(cfg.Kafka, log)
	if err != nil {
		log.Error("failed to connect audit publisher", "error", err)
		os.Exit(1)
	}
	if auditor != nil {
		defer auditor.Close()
		log.Info("audit publisher enabled", "topic", cfg.Kafka.AuditTopic)
	}

	annotationSvc := annotationservice.New(annotationStore, auditor, log, m)

	jwtSvc := jwttoken.NewJWTService(cfg.JWTSigningKey, "flatmaps", "flatmaps")
	provider := github.New(cfg.GitHub)

	annotations := annotationhandler.New(annotationSvc, log)
	auth := authhandler.New(provider, jwtSvc, cfg.TokenTTL, log, m)

	router := newRouter(log, m, jwtSvc, annotations, auth)

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting flatmaps annotation service", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

func newRouter(
	log *slog.Logger,
	m *metrics.Metrics,
	jwtSvc *jwttoken.JWTService,
	annotations *annotationhandler.Handler,
	auth *authhandler.Handler,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.Latency(m))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	auth.Register(r)
	annotations.RegisterPublic(r)

	requireAuth := middleware.RequireAuth(jwttoken.NewJWTServiceAdapter(jwtSvc), log)
	r.Group(func(protected chi.Router) {
		protected.Use(requireAuth)
		protected.Use(middleware.ContentTypeJSON)
		annotations.RegisterProtected(protected)
	})
	r.Group(func(protected chi.Router) {
		protected.Use(requireAuth)
		auth.RegisterSession(protected)
	})

	return r
}
