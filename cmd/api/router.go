package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/backend-resto/internal/checkout"
	"github.com/noah-isme/backend-resto/internal/discount"
	"github.com/noah-isme/backend-resto/internal/health"
	"github.com/noah-isme/backend-resto/internal/menu"
	"github.com/noah-isme/backend-resto/internal/obs"
	"github.com/noah-isme/backend-resto/internal/order"
	"github.com/noah-isme/backend-resto/internal/ratelimit"
	"github.com/noah-isme/backend-resto/internal/security"
)

type routerDeps struct {
	Logger    zerolog.Logger
	Origins   []string
	Metrics   *obs.HTTPMetrics
	Tracing   bool
	Limiter   *limiter.Limiter
	Health    health.Handler
	Menu      *menu.Handler
	Discounts *discount.Handler
	Orders    *order.Handler
	Checkout  *checkout.Handler
	MaxBody   int64
	HSTS      bool

	PprofEnabled   bool
	PprofBasicUser string
	PprofBasicPass string
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers{EnableHSTS: d.HSTS}.Middleware)
	r.Use(obs.RoutePatternMiddleware)
	if d.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if d.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: d.Metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(d.Origins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Terminal-ID", "X-Waiter-ID"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if d.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	if d.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), d.PprofBasicUser, d.PprofBasicPass))
	}
	r.Get("/health/live", d.Health.Live)
	r.Get("/health/ready", d.Health.Ready)

	limited := ratelimit.Handler{
		Limiter: d.Limiter,
		OnError: func(err error) { d.Logger.Warn().Err(err).Msg("rate limiter store") },
	}

	if d.Orders != nil && d.Checkout != nil {
		d.Orders.Checkout = d.Checkout.Start
	}

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(limited.Middleware)
		v.Use(security.BodyLimit{Max: d.MaxBody}.Middleware)
		v.Route("/menu", d.Menu.Routes)
		v.Route("/discounts", d.Discounts.Routes)
		v.Route("/orders", d.Orders.Routes)
		v.Route("/kitchen", d.Orders.KitchenRoutes)
		v.Route("/checkout", d.Checkout.Routes)
		v.Post("/totals/preview", d.Checkout.Preview)
	})
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
