package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/speechstudio/internal/api/handlers"
	"github.com/nikhilbhutani/speechstudio/internal/api/middleware"
	"github.com/nikhilbhutani/speechstudio/internal/audit"
	"github.com/nikhilbhutani/speechstudio/internal/auth"
	"github.com/nikhilbhutani/speechstudio/internal/config"
	"github.com/nikhilbhutani/speechstudio/internal/form"
	"github.com/nikhilbhutani/speechstudio/internal/metrics"
	"github.com/nikhilbhutani/speechstudio/internal/profile"
)

// Deps are the services the routes are built from. DB and Redis may be nil.
type Deps struct {
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Form     *form.Controller
	Voices   handlers.VoiceCatalog
	Profiles *profile.Catalog
	History  audit.Recorder
	Metrics  *metrics.Metrics
}

type Router struct {
	mux      *chi.Mux
	cfg      *config.Config
	deps     Deps
	sessions *auth.Sessions
}

func NewRouter(cfg *config.Config, deps Deps) *Router {
	return &Router{
		mux:      chi.NewRouter(),
		cfg:      cfg,
		deps:     deps,
		sessions: auth.NewSessions(cfg.Session),
	}
}

// Setup mounts the routes. ctx bounds background work such as the rate
// limiter's cleanup.
func (rt *Router) Setup(ctx context.Context) http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	if rt.deps.Metrics != nil {
		r.Use(rt.deps.Metrics.Middleware)
	}
	r.Use(middleware.CORS(rt.cfg.Server.CORSOrigins))

	rl := middleware.NewRateLimiter(ctx, rt.cfg.Server.RateLimitRPS, rt.cfg.Server.RateLimitBurst)

	// Ops endpoints (no session, no rate limit)
	health := handlers.NewHealthHandler(rt.deps.DB, rt.deps.Redis, rt.deps.Voices)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	if rt.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.deps.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(rl.Limit)
		r.Use(rt.sessions.Middleware)

		// Form pages
		formH := handlers.NewFormHandler(rt.deps.Form, rt.cfg.Server.MaxUploadBytes)
		r.Get("/", formH.Index)
		r.Post("/convert", formH.Convert)
		r.Post("/draft", formH.Draft)
		r.Post("/import", formH.Import)
		r.Get("/media/{file}", formH.Media)

		// API v1
		apiH := handlers.NewAPIHandler(rt.deps.Form, rt.deps.Voices, rt.deps.Profiles, rt.deps.History)
		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/voices", func(r chi.Router) {
				r.Get("/", apiH.Voices)
				r.Post("/refresh", apiH.RefreshVoices)
			})
			r.Get("/languages", apiH.Languages)
			r.Get("/voice-types", apiH.VoiceTypes)
			r.Get("/profiles", apiH.Profiles)
			r.Post("/synthesize", apiH.Synthesize)
			r.Post("/draft", apiH.Draft)
			r.Get("/history", apiH.History)
		})
	})

	return r
}
