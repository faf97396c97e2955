package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/edvin/frontstack/internal/api/handler"
	mw "github.com/edvin/frontstack/internal/api/middleware"
	"github.com/edvin/frontstack/internal/api/rewrite"
	"github.com/edvin/frontstack/internal/config"
)

type Server struct {
	router chi.Router
	logger zerolog.Logger
	cfg    *config.Config
	proxy  *handler.Proxy
}

func NewServer(logger zerolog.Logger, cfg *config.Config) (*Server, error) {
	backend, err := rewrite.ParseBackend(cfg.BackendEndpoint)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		logger: logger,
		cfg:    cfg,
		proxy:  handler.NewProxy(backend, logger),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	// Served locally so the load balancer probe never depends on the
	// backend.
	s.router.HandleFunc(handler.HealthPath, handler.Health)

	s.router.Handle(rewrite.Prefix+"*", s.proxy)

	s.router.Handle("/*", http.FileServer(http.Dir(s.cfg.WebRoot)))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
