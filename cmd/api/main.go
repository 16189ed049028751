package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-resto/internal/cache"
	"github.com/noah-isme/backend-resto/internal/checkout"
	"github.com/noah-isme/backend-resto/internal/config"
	"github.com/noah-isme/backend-resto/internal/discount"
	"github.com/noah-isme/backend-resto/internal/events"
	"github.com/noah-isme/backend-resto/internal/health"
	"github.com/noah-isme/backend-resto/internal/lock"
	"github.com/noah-isme/backend-resto/internal/menu"
	"github.com/noah-isme/backend-resto/internal/obs"
	"github.com/noah-isme/backend-resto/internal/order"
	"github.com/noah-isme/backend-resto/internal/ratelimit"
	"github.com/noah-isme/backend-resto/internal/resilience"
	"github.com/noah-isme/backend-resto/internal/store/memstore"
	"github.com/noah-isme/backend-resto/internal/store/pgstore"
	"github.com/noah-isme/backend-resto/internal/tasks"
)

// repository is the union of the storage interfaces the services need.
type repository interface {
	order.Repository
	discount.Repository
	menu.Repository
	events.EventStore
	Ping(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Str("component", "api").Logger()

	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)
	resilience.MustRegisterMetrics(cfg.MetricsNamespace, nil)

	tracingEnabled := cfg.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "resto-api",
			Endpoint:      cfg.TracingEndpoint,
			Exporter:      cfg.TracingExporter,
			SamplingRatio: cfg.TracingSampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	probes := map[string]health.Probe{}

	var repo repository
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pool := mustInitDatabase(ctx, cfg, logger)
		defer pool.Close()
		if err := pgstore.Migrate(pool); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
		repo = pgstore.New(pool)
		probes["database"] = repo.Ping
	default:
		logger.Warn().Msg("using in-memory storage; data is lost on restart")
		repo = memstore.New()
	}

	var (
		redisClient *redis.Client
		sessions    checkout.SessionStore = checkout.NewMemoryStore()
		locker      lock.Locker           = &lock.Local{}
		notifiers                         = []events.Notifier{events.LogNotifier{Logger: logger}}
	)
	if cfg.RedisEnabled() {
		redisClient = mustInitRedis(ctx, cfg, logger)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		sessions = checkout.RedisStore{Client: redisClient, Prefix: "resto:checkout:", TTL: cfg.SessionTTL}
		locker = lock.Redis{R: redisClient, Prefix: "resto:lock:", RetryBackoff: cfg.LockRetryBackoff}

		connOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis uri for tasks")
		}
		taskClient := asynq.NewClient(connOpt)
		defer func() {
			if err := taskClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close task client")
			}
		}()
		taskLogger := logger.With().Str("component", "tasks").Logger()
		notifiers = append(notifiers, &tasks.Enqueuer{
			Client:  taskClient,
			Breaker: resilience.NewBreaker("tasks", 5, 0.5, 30*time.Second).WithLogger(taskLogger),
			Logger:  taskLogger,
		})
	} else {
		logger.Warn().Msg("REDIS_URL not set; sessions and locks are process-local and background printing is disabled")
	}

	limit, err := ratelimit.New(cfg.RateLimit, redisClient, "resto:ratelimit")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}

	bus := &events.Bus{Store: repo, Notifiers: notifiers}

	menuSvc := &menu.Service{
		Repo:   repo,
		Cache:  cache.New(redisClient, "resto:menu:", cfg.MenuCacheTTL),
		Logger: logger.With().Str("component", "menu").Logger(),
	}
	discountSvc := &discount.Service{Repo: repo, Logger: logger.With().Str("component", "discount").Logger()}
	orderSvc := &order.Service{
		Repo:    repo,
		Menu:    menuSvc,
		Events:  bus,
		Locker:  locker,
		LockTTL: cfg.LockTTL,
		TaxRate: cfg.TaxRate,
		Logger:  logger.With().Str("component", "order").Logger(),
	}
	checkoutSvc := &checkout.Service{
		Sessions:          sessions,
		Orders:            orderSvc,
		Presets:           discountSvc,
		Locker:            locker,
		Events:            bus,
		TaxRate:           cfg.TaxRate,
		DefaultTipPercent: cfg.DefaultTipPercent,
		LockTTL:           cfg.LockTTL,
		Logger:            logger.With().Str("component", "checkout").Logger(),
	}

	var httpMetrics *obs.HTTPMetrics
	if cfg.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, cfg.LatencyBuckets, nil)
	}

	router := newRouter(routerDeps{
		Logger:         logger,
		Origins:        cfg.CORSAllowedOrigins,
		Metrics:        httpMetrics,
		Tracing:        tracingEnabled,
		Limiter:        limit,
		Health:         health.Handler{Probes: probes, Timeout: 500 * time.Millisecond},
		Menu:           &menu.Handler{Svc: menuSvc},
		Discounts:      &discount.Handler{Svc: discountSvc},
		Orders:         &order.Handler{Svc: orderSvc},
		Checkout:       &checkout.Handler{Svc: checkoutSvc},
		MaxBody:        cfg.MaxBodyBytes,
		HSTS:           envBool("SECURE_ENABLE_HSTS", false),
		PprofEnabled:   envBool("OBS_ENABLE_PPROF", false),
		PprofBasicUser: envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", ""),
		PprofBasicPass: envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", ""),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("storage", cfg.StorageDriver).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-ctx.Done()
	health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.QueryTracer{
		Logger: logger.With().Str("component", "pgx").Logger(),
		Slow:   cfg.SlowQuery,
	}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "resto-api"

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(connectCtx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+name, pprof.Handler(name))
	}
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
