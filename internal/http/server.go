package http

import (
	"context"
	stdhttp "net/http"
	"net/url"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"medfront/app/internal/backend"
	"medfront/app/internal/chat"
	"medfront/app/internal/ui"
)

// Backend is the part of the backend client the results panel needs.
type Backend interface {
	Lookup(ctx context.Context, fields url.Values) ([]backend.DiseaseLookupResult, error)
	Diagnose(ctx context.Context, fields url.Values) ([]backend.DiagnosisResult, error)
}

// Options configures the HTTP server wiring.
type Options struct {
	Backend        Backend
	Chat           chat.Service
	Sessions       *ui.Store
	Database       *gorm.DB
	Logger         *logrus.Logger
	SentryHub      *sentry.Hub
	RateLimiter    RateLimiterSettings
	AllowedOrigins []string
	SecureCookies  bool
}

// RateLimiterSettings configures the HTTP rate limiter behaviour.
type RateLimiterSettings struct {
	RequestsPerSecond float64
	Burst             int
	ClientTTL         time.Duration
}

// Server wires the HTTP transport layer via Huma, chi and templ components.
type Server struct {
	api           huma.API
	router        chi.Router
	backend       Backend
	chat          chat.Service
	sessions      *ui.Store
	logger        *logrus.Logger
	sentry        *sentry.Hub
	db            *gorm.DB
	rateLimiter   *RateLimiter
	secureCookies bool
}

// NewServer constructs the HTTP server.
func NewServer(opts Options) (*Server, error) {
	if opts.Backend == nil {
		return nil, eris.New("backend client is required")
	}
	if opts.Chat == nil {
		return nil, eris.New("chat service is required")
	}
	if opts.Sessions == nil {
		return nil, eris.New("session store is required")
	}
	if opts.Database == nil {
		return nil, eris.New("database is required")
	}

	settings := opts.RateLimiter
	if settings.Burst <= 0 {
		return nil, eris.New("rate limiter burst must be greater than zero")
	}
	if settings.RequestsPerSecond <= 0 {
		return nil, eris.New("rate limiter requests per second must be greater than zero")
	}
	if settings.ClientTTL <= 0 {
		return nil, eris.New("rate limiter client TTL must be greater than zero")
	}

	router := chi.NewRouter()
	if len(opts.AllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "HX-Request", "HX-Target", "HX-Trigger", "HX-Current-URL"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	router.Handle("/static/*", staticHandler())

	config := huma.DefaultConfig("medfront", "1.0.0")
	api := humachi.New(router, config)

	srv := &Server{
		api:           api,
		router:        router,
		backend:       opts.Backend,
		chat:          opts.Chat,
		sessions:      opts.Sessions,
		logger:        opts.Logger,
		sentry:        opts.SentryHub,
		db:            opts.Database,
		rateLimiter:   NewRateLimiter(settings.Burst, settings.RequestsPerSecond, settings.ClientTTL),
		secureCookies: opts.SecureCookies,
	}

	srv.registerMiddlewares()
	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the underlying HTTP handler for wiring into the application.
func (s *Server) Handler() stdhttp.Handler {
	return s.router
}

// API exposes the underlying Huma API instance.
func (s *Server) API() huma.API {
	return s.api
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	s.rateLimiter.Stop()
	s.sessions.Stop()
}

func (s *Server) registerMiddlewares() {
	s.api.UseMiddleware(
		s.sentryMiddleware(),
		s.recoveryMiddleware(),
		s.requestIDMiddleware(),
		s.sessionMiddleware(),
		s.rateLimitMiddleware(),
		s.loggingMiddleware(),
	)
}

func (s *Server) registerRoutes() {
	s.registerHomeRoute()
	s.registerToggleRoute()
	s.registerLookupRoute()
	s.registerDiagnosisRoute()
	s.registerClearResultsRoute()
	s.registerChatRoute()
	s.registerTranscriptsRoute()
	s.registerHealthRoute()
}

func (s *Server) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	s.router.ServeHTTP(w, r)
}

// viewModel returns the view model of the session attached to ctx.
func (s *Server) viewModel(ctx context.Context) *ui.ViewModel {
	return s.sessions.Get(SessionIDFromContext(ctx))
}
