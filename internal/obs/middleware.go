package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPObs feeds HTTPMetrics from every request passing through it.
type HTTPObs struct {
	Metrics *HTTPMetrics
}

// Middleware records count, latency, response size and concurrency.
func (o HTTPObs) Middleware(next http.Handler) http.Handler {
	if o.Metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		o.Metrics.InFlight.Inc()
		defer o.Metrics.InFlight.Dec()

		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		route := routeOf(r, "unknown")
		o.Metrics.Requests.WithLabelValues(r.Method, route, strconv.Itoa(statusOf(ww))).Inc()
		o.Metrics.Latency.WithLabelValues(r.Method, route).Observe(DurationMillis(elapsed))
		o.Metrics.ResponseBytes.WithLabelValues(route).Add(float64(ww.BytesWritten()))
	})
}

// RoutePatternMiddleware copies the chi pattern matched so far onto the
// request context for handlers that run outside the router.
func RoutePatternMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				r = r.WithContext(WithRoutePattern(r.Context(), p))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// TracingMiddleware opens an otelhttp server span per request. Spans are
// named "METHOD pattern" once routing has resolved the pattern.
func TracingMiddleware(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, "http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + routeOf(r, r.URL.Path)
		}),
	)
}

// statusOf treats a handler that never called WriteHeader as 200.
func statusOf(ww middleware.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}
