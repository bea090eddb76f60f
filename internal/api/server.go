package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/FairForge/marketplace/internal/access"
	"github.com/FairForge/marketplace/internal/addons"
	"github.com/FairForge/marketplace/internal/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Server struct {
	config     *config.Config
	logger     *zap.Logger
	router     chi.Router
	httpServer *http.Server
	store      addons.Store
	auth       *access.Authenticator
	metrics    *Metrics
	limiter    *RateLimiter

	startTime time.Time
}

func NewServer(cfg *config.Config, logger *zap.Logger, store addons.Store) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		config:    cfg,
		logger:    logger,
		router:    chi.NewRouter(),
		store:     store,
		metrics:   NewMetrics(),
		limiter:   NewRateLimiterWith(cfg.Server.RateLimit, cfg.Server.RateBurst),
		startTime: time.Now(),
	}

	if cfg.Server.JWTSecret != "" {
		s.auth = access.NewAuthenticator([]byte(cfg.Server.JWTSecret), logger)
	} else {
		logger.Warn("no JWT secret configured, bearer tokens are ignored")
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.metrics.Middleware)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/version", s.handleVersion)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(s.limiter, s.metrics))
		if s.auth != nil {
			r.Use(s.auth.Middleware)
		}

		opts := []AddonViewOption{WithViewLogger(s.logger)}

		// Public detail pages only see reviewed add-ons.
		r.Method(http.MethodGet, "/{locale}/{app}/addon/{addon_id}/",
			AddonView(s.validAddons, s.handleAddonDetail, opts...))

		apiView := AddonViewFactory(func(*http.Request) addons.QuerySet { return s.store.All() }, opts...)
		r.Method(http.MethodGet, "/api/v1/addons/{addon_id}", apiView(s.handleAddonDetail))
	})
}

func (s *Server) validAddons(*http.Request) addons.QuerySet { return s.store.Valid() }

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":  "healthy",
		"version": "0.1.0",
		"uptime":  time.Since(s.startTime).Seconds(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(health)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	version := map[string]string{
		"version": "0.1.0",
		"go":      runtime.Version(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(version)
}

func (s *Server) handleAddonDetail(w http.ResponseWriter, r *http.Request, addon *addons.Addon) {
	detail := map[string]interface{}{
		"id":        addon.ID,
		"slug":      addon.Slug,
		"name":      addon.Name,
		"type":      addon.Type,
		"status":    addon.Status,
		"is_listed": addon.IsListed,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(detail)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

func (s *Server) Start() error {
	s.logger.Info("Starting server", zap.Int("port", s.config.Server.Port))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
