package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"inferd/internal/auth"
	"inferd/internal/config"
	"inferd/internal/engine"
	"inferd/internal/metrics"
	"inferd/internal/ratelimit"
)

// maxBodyBytes caps request bodies on JSON endpoints.
const maxBodyBytes int64 = 1 << 20

// API is the REST protocol adapter. It translates HTTP requests into calls
// against the shared inference engine, applying the auth gate, rate limiter
// and metrics recorder owned by the enclosing server.
type API struct {
	cfg     config.Config
	eng     engine.Engine
	rec     *metrics.Recorder
	limiter *ratelimit.Limiter
	gate    *auth.Gate
	log     zerolog.Logger
	version string

	// base is canceled when the server stops so in-flight handlers
	// observe shutdown.
	base context.Context
}

// New constructs the REST adapter around the server's shared state.
func New(cfg config.Config, eng engine.Engine, rec *metrics.Recorder, limiter *ratelimit.Limiter, gate *auth.Gate, log zerolog.Logger, version string, base context.Context) *API {
	if base == nil {
		base = context.Background()
	}
	return &API{
		cfg:     cfg,
		eng:     eng,
		rec:     rec,
		limiter: limiter,
		gate:    gate,
		log:     log,
		version: version,
		base:    base,
	}
}

// Routes builds the router. Docs, health and metrics endpoints are exempt
// from authentication and rate limiting by policy; everything else goes
// through the full pipeline.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if len(a.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: a.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", apiKeyHeader},
		}))
	}

	r.Route("/v1", func(r chi.Router) {
		// Exempt endpoints.
		r.Get("/health", a.handleHealth)
		r.Get("/metrics", a.handleMetrics)
		r.Get("/metrics/prometheus", promhttp.Handler().ServeHTTP)

		// Inference endpoints behind the gate and the limiter.
		r.Group(func(r chi.Router) {
			r.Use(a.authenticate)
			r.Use(a.rateLimit)
			r.Post("/completions", a.handleCompletions)
			r.Post("/chat/completions", a.handleChatCompletions)
			r.Post("/classify", a.handleClassify)
			r.Post("/embeddings", a.handleEmbeddings)
		})
	})

	MountSwagger(r)
	return r
}

// requestCtx joins the server base context with the request context and
// applies the configured handler timeout for non-streaming calls.
func (a *API) requestCtx(r *http.Request, streaming bool) (context.Context, context.CancelFunc) {
	ctx, cancel := joinContexts(a.base, r.Context())
	if streaming || a.cfg.TimeoutSeconds <= 0 {
		return ctx, cancel
	}
	tctx, tcancel := context.WithTimeout(ctx, time.Duration(a.cfg.TimeoutSeconds)*time.Second)
	return tctx, func() {
		tcancel()
		cancel()
	}
}

// joinContexts returns a context that is canceled when either a or b is done.
// The returned cancel func must be called to release the goroutine when the
// handler ends.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-a.Done():
			cancel()
		case <-b.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
