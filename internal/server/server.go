package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/messagely/apiserver/config"
	"github.com/messagely/apiserver/internal/db"
	"github.com/messagely/apiserver/internal/handlers"
	"github.com/messagely/apiserver/internal/logging"
	"github.com/messagely/apiserver/internal/mq"
	"github.com/messagely/apiserver/internal/services"
	"github.com/messagely/apiserver/internal/store"
	"github.com/messagely/apiserver/internal/store/memory"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	mq         *mq.MQ
	logger     logging.Logger
	closeOnce  sync.Once
}

type repositories struct {
	users    services.UserRepository
	messages services.MessageRepository
}

// New wires the store, services and routes selected by cfg.
func New(ctx context.Context, cfg config.Config, logger logging.Logger) (*Server, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	vault, err := services.NewPasswordVault(cfg.Auth.BcryptWorkFactor)
	if err != nil {
		return nil, err
	}
	tokens, err := services.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}

	s := &Server{logger: logger}

	repos, err := s.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var events services.EventPublisher
	broker, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("open message queue: %w", err)
	}
	if broker != nil {
		s.mq = broker
		events = mq.NewEventPublisher(broker, cfg.MQ.Channel)
		logger.Info(ctx, "publishing message events", "backend", cfg.MQ.Backend, "channel", cfg.MQ.Channel)
	}

	userService := services.NewUserService(repos.users, vault)
	authService := services.NewAuthService(userService, tokens)
	messageService := services.NewMessageService(repos.messages, repos.users, events, logger)
	authMiddleware := handlers.RequireAuth(authService)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authService, logger)
	})
	router.Route("/messages", func(r chi.Router) {
		handlers.MessageRouter(r, messageService, logger, authMiddleware)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, userService, messageService, logger, authMiddleware)
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
	return s, nil
}

func (s *Server) openStore(ctx context.Context, cfg config.Config) (repositories, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		s.logger.Warn(ctx, "using in-memory store; data is lost on restart")
		mem := memory.New()
		return repositories{users: mem.Users(), messages: mem.Messages()}, nil
	case config.StoreBackendPostgres, "":
		dbConn, err := db.Open(ctx, cfg)
		if err != nil {
			return repositories{}, err
		}
		s.db = dbConn
		return repositories{
			users:    store.NewUserRepository(dbConn),
			messages: store.NewMessageRepository(dbConn),
		}, nil
	default:
		return repositories{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the HTTP server. It returns nil after a graceful Shutdown.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases the store and broker.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.close()
	return err
}

// Run serves until ctx is done or the listener fails, then shuts down within
// shutdownTimeout. The store and broker are released on every path.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		s.close()
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

func (s *Server) close() {
	s.closeOnce.Do(func() {
		if s.mq != nil {
			if err := s.mq.Close(); err != nil {
				s.logger.Warn(context.Background(), "failed to close message queue", "error", err)
			}
		}
		if s.db != nil {
			_ = s.db.Close()
		}
	})
}
