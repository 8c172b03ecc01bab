// Package mockapi is an in-memory stand-in for the platform backend. It
// serves the same routes and response shapes, so the client and creatorctl
// can run end to end without the real service.
package mockapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Options configures a Server.
type Options struct {
	Port      int
	JWTSecret string
	TokenTTL  time.Duration
	Timeout   time.Duration
	// RateLimit caps requests per second across all clients; zero disables it.
	RateLimit float64
	RateBurst int
	Logger    *slog.Logger
	Now       func() time.Time
}

type Server struct {
	Router *chi.Mux
	Port   int
	Store  *Store
	Issuer *Issuer
	logger *slog.Logger
	http   *http.Server
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	issuer := NewIssuer(opts.JWTSecret, opts.TokenTTL)
	if opts.Now != nil {
		issuer.now = opts.Now
	}

	s := &Server{
		Port:   opts.Port,
		Store:  NewStore(opts.Now),
		Issuer: issuer,
		logger: opts.Logger,
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(opts.Logger))
	if opts.RateLimit > 0 {
		r.Use(RateLimitMiddleware(opts.RateLimit, opts.RateBurst))
	}
	r.Use(TimeoutMiddleware(opts.Timeout))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "creatorlink-mockapi")
	})

	s.routes(r)
	s.Router = r
	return s
}

func (s *Server) routes(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/register/user", s.handleRegisterBrand)
	r.Post("/auth/register/creator", s.handleRegisterCreator)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.Issuer))

		r.Get("/creators/search", s.handleSearch)

		r.Get("/campaigns/", s.handleListCampaigns)
		r.Post("/campaigns", s.handleCreateCampaign)
		r.Post("/campaigns/payment", s.handlePayment)
		r.Route("/campaigns/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetCampaign)
			r.Put("/", s.handleUpdateCampaign)
			r.Delete("/", s.handleDeleteCampaign)
			r.Patch("/status", s.handleCampaignStatus)
			r.Get("/creators", s.handleRoster)
			r.Post("/invite", s.handleInvite)
			r.Get("/creators/{creatorID}/chat", s.handleChat)
		})

		r.Get("/analytics/dashboard", s.handleDashboard)
		r.Get("/analytics/campaigns/{id}", s.handleCampaignAnalytics)
		r.Get("/analytics/influencers/{id}", s.handleInfluencerAnalytics)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for up to ten seconds.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting mock api", slog.Int("port", s.Port))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("mock api stopped")
	return nil
}
