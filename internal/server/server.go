package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/wellnest/apiserver/config"
	"github.com/wellnest/apiserver/internal/auth"
	"github.com/wellnest/apiserver/internal/db"
	"github.com/wellnest/apiserver/internal/handlers"
	"github.com/wellnest/apiserver/internal/logging"
	"github.com/wellnest/apiserver/internal/metrics"
	"github.com/wellnest/apiserver/internal/mq"
	"github.com/wellnest/apiserver/internal/services"
	"github.com/wellnest/apiserver/internal/storage"
	"github.com/wellnest/apiserver/internal/store"
	"github.com/wellnest/apiserver/internal/store/memory"
)

const (
	handlerTimeout = 60 * time.Second

	limiterSweepInterval = time.Minute
	limiterIdleTTL       = 10 * time.Minute
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	images     *storage.Storage
	mq         *mq.MQ
	stopSweep  context.CancelFunc
	log        logging.Logger
}

type repositories struct {
	users    services.UserRepository
	sessions services.SessionRepository
}

// New wires the store, optional storage and broker, services and routes.
func New(ctx context.Context, cfg config.Config, log logging.Logger) (*Server, error) {
	if log == nil {
		log = logging.Nop()
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	s := &Server{log: log}
	ok := false
	defer func() {
		if !ok {
			s.closeResources()
		}
	}()

	repos, err := s.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s.images, err = storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	s.mq, err = mq.Open(ctx, cfg.MQ)
	if err != nil {
		return nil, fmt.Errorf("open mq: %w", err)
	}

	registry := metrics.NewRegistry()

	userService := services.NewUserService(
		repos.users,
		auth.NewPasswordHasher(cfg.Auth.BcryptCost),
		auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		log,
	)
	sessionOpts := []services.SessionOption{
		services.WithLogger(log),
		services.WithLikeObserver(registry.ObserveLike),
	}
	if s.mq != nil {
		sessionOpts = append(sessionOpts, services.WithEvents(s.mq, cfg.MQ.Channel))
	}
	sessionService := services.NewSessionService(repos.sessions, sessionOpts...)

	var imageService *services.ImageService
	if s.images != nil {
		imageService = services.NewImageService(s.images)
	}

	authMiddleware := handlers.RequireAuth(userService)
	credentialLimit := handlers.NewRateLimiterRegistry(cfg.Auth.RateLimit, cfg.Auth.RateBurst)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	s.stopSweep = stopSweep
	go credentialLimit.Run(sweepCtx, limiterSweepInterval, limiterIdleTTL)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(log),
		middleware.Recoverer,
		registry.Middleware,
		middleware.Timeout(handlerTimeout),
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.FrontendURLs,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Method(http.MethodGet, "/metrics", registry.Handler())
	router.Route("/api/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService, authMiddleware, credentialLimit.Middleware, log)
	})
	router.Route("/api/session", func(r chi.Router) {
		handlers.SessionRouter(r, sessionService, imageService, authMiddleware, log)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info(ctx, "server configured",
		"store", cfg.StoreDriver,
		"storage", cfg.Storage.Backend,
		"mq", cfg.MQ.Backend,
		"addr", s.httpServer.Addr,
	)
	ok = true
	return s, nil
}

func (s *Server) openStore(ctx context.Context, cfg config.Config) (repositories, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres, "":
		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return repositories{}, err
		}
		s.db = dbConn
		return repositories{
			users:    store.NewUserRepository(dbConn),
			sessions: store.NewSessionRepository(dbConn),
		}, nil
	case config.StoreDriverMemory:
		s.log.Warn(ctx, "using in-memory store: data is lost on restart")
		memDB := memory.NewDB()
		return repositories{
			users:    memory.NewUserRepository(memDB),
			sessions: memory.NewSessionRepository(memDB),
		}, nil
	default:
		return repositories{}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info(context.Background(), "listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, drains in-flight requests until ctx
// is done and then releases the store and broker.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.closeResources()
	return err
}

func (s *Server) closeResources() {
	if s.stopSweep != nil {
		s.stopSweep()
		s.stopSweep = nil
	}
	if s.mq != nil {
		if err := s.mq.Close(); err != nil {
			s.log.Warn(context.Background(), "failed to close mq", "error", err)
		}
		s.mq = nil
	}
	if s.images != nil {
		if err := s.images.Close(); err != nil {
			s.log.Warn(context.Background(), "failed to close storage", "error", err)
		}
		s.images = nil
	}
	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}
}
