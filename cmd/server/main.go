package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"triage-agent/internal/agent"
	"triage-agent/internal/caselock"
	"triage-agent/internal/classifier"
	"triage-agent/internal/config"
	"triage-agent/internal/database"
	"triage-agent/internal/extractor"
	"triage-agent/internal/planner"
	"triage-agent/internal/platform/logger"
	"triage-agent/internal/platform/metrics"
	"triage-agent/internal/platform/ratelimit"
	"triage-agent/internal/report"
	"triage-agent/internal/summary"
	"triage-agent/internal/triage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "triage-agent")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]triage.HealthCheck{}

	// 1. Case store
	repo := triage.NewMemoryRepository()
	var db *sql.DB
	if cfg.Database.URL != "" {
		db, err = database.Open(ctx, cfg.Database.URL, cfg.Database.ConnectRetries, log)
		if err != nil {
			log.Fatal("could not connect to database", zap.Error(err))
		}
		defer db.Close()
		if err := database.Migrate(db, log); err != nil {
			log.Fatal("migrations failed", zap.Error(err))
		}
		repo = triage.NewPostgresRepository(db)
		checks["case_store"] = database.Ping(db)
	} else {
		log.Warn("DATABASE_URL not set, cases are kept in memory only")
	}

	// 2. Case lock
	var locker triage.Locker = caselock.NewKeyedMutex()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		redisLocker := caselock.NewRedisLocker(rdb, cfg.Triage.LockTTL, log)
		if err := redisLocker.Ping(ctx); err != nil {
			log.Fatal("could not connect to redis", zap.Error(err))
		}
		locker = redisLocker
		checks["case_lock"] = redisLocker.Ping
		log.Info("using redis case lock", zap.String("addr", cfg.Redis.Addr))
	}

	// 3. Text services
	var (
		understanding extractor.TextUnderstanding = agent.NewLexicon()
		generator     summary.TextGenerator
	)
	if cfg.TextService.Enabled {
		client := agent.NewClient(cfg.TextService.BaseURL, cfg.TextService.APIKey, cfg.TextService.Model)
		understanding = client
		generator = client
		checks["text_service"] = agent.NewProber(cfg.TextService.BaseURL, cfg.TextService.APIKey, cfg.TextService.Timeout).Check
		log.Info("text service enabled", zap.String("base_url", cfg.TextService.BaseURL), zap.String("model", cfg.TextService.Model))
	} else {
		log.Warn("text service disabled, using offline lexicon")
	}

	// 4. Orchestrator
	orchestrator := triage.NewOrchestrator(triage.Dependencies{
		Repo:       repo,
		Locker:     locker,
		Extractor:  extractor.New(understanding, cfg.TextService.Timeout, log),
		Classifier: classifier.New(),
		Planner:    planner.New(),
		Summarizer: summary.New(generator, cfg.TextService.Timeout, log),
	}, triage.Options{
		HistoryWindow: cfg.Triage.HistoryWindow,
		LockWait:      cfg.Triage.LockWait,
	}, log)

	handler := triage.NewHandler(orchestrator, report.NewRenderer(cfg.Report.FontPath, log), checks, log)
	limiter := ratelimit.NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	// 5. Router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	// CORS for frontend
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-Request-Id, Authorization")
			if r.Method == http.MethodOptions {
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Handle("/metrics", metrics.Handler())
	triage.RegisterRoutes(r, handler, limiter.Middleware)

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: r,
	}

	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Server.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	log.Info("server stopped")
}
