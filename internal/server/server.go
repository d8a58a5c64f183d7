// Package server exposes the REST API and mounts the WebSocket gateway.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/mwhitfield/courier/internal/auth"
	"github.com/mwhitfield/courier/internal/message"
	"github.com/mwhitfield/courier/internal/ratelimit"
	"github.com/mwhitfield/courier/internal/user"
)

// Deps are the collaborators the HTTP layer is built on.
type Deps struct {
	Log       zerolog.Logger
	Directory user.Directory
	Messages  message.Store
	Tokens    *auth.Service
	Gateway   http.Handler
	Limiter   *ratelimit.IPLimiter
}

// Server is the HTTP front of the relay: auth and roster endpoints plus the
// WebSocket upgrade.
type Server struct {
	httpSrv *http.Server
	router  chi.Router
	log     zerolog.Logger

	dir     user.Directory
	store   message.Store
	tokens  *auth.Service
	gateway http.Handler
	limiter *ratelimit.IPLimiter
}

// New creates a Server listening on addr.
func New(addr string, deps Deps) *Server {
	s := &Server{
		log:     deps.Log,
		dir:     deps.Directory,
		store:   deps.Messages,
		tokens:  deps.Tokens,
		gateway: deps.Gateway,
		limiter: deps.Limiter,
	}
	s.router = s.routes()
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	// Unauthenticated endpoints are the abuse surface; they get the IP
	// limiter. The gateway checks its own token during the handshake.
	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}
		r.Post("/api/auth/register", s.handleRegister)
		r.Post("/api/auth/login", s.handleLogin)
		r.Method(http.MethodGet, "/ws", s.gateway)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/api/users", s.handleListUsers)
		r.Get("/api/users/me", s.handleMe)
		r.Get("/api/messages/{peerID}", s.handleHistory)
	})

	return r
}

// Handler returns the routing tree. Tests mount it on httptest servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts serving and blocks until the listener closes.
func (s *Server) Run() error {
	s.log.Info().Str("addr", s.httpSrv.Addr).Msg("http server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
