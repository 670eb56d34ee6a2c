package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/campusforum/memberd/config"
	"github.com/campusforum/memberd/internal/db"
	"github.com/campusforum/memberd/internal/handlers"
	"github.com/campusforum/memberd/internal/mq"
	"github.com/campusforum/memberd/internal/password"
	"github.com/campusforum/memberd/internal/services"
	"github.com/campusforum/memberd/internal/storage"
	"github.com/campusforum/memberd/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"
)

// Server wraps the HTTP server, router and external collaborators.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	events     *mq.MQ
}

// New constructs a Server with basic middleware and defaults. The
// identity store backend, event broker and avatar storage are all
// selected from config; only the in-memory store is required.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	var (
		dbConn   *sql.DB
		userRepo services.UserRepository
		err      error
	)
	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		dbConn, err = db.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		userRepo = store.NewPostgresUserRepository(dbConn)
	case config.StoreBackendMemory, "":
		userRepo = store.NewUserRepository()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	pendingRepo := store.NewPendingRepository()
	profileRepo := store.NewProfileRepository()

	events, err := newEvents(ctx, cfg)
	if err != nil {
		if dbConn != nil {
			_ = dbConn.Close()
		}
		return nil, err
	}
	var publisher services.EventPublisher
	if events != nil {
		publisher = events
	}

	avatars, err := newAvatars(ctx, cfg)
	if err != nil {
		if dbConn != nil {
			_ = dbConn.Close()
		}
		return nil, err
	}

	hasher := password.NewBcryptHasher(bcrypt.DefaultCost)
	identityService := services.NewIdentityService(pendingRepo, userRepo, hasher, publisher)
	tokenService := services.NewTokenService(userRepo)
	profileService := services.NewProfileService(profileRepo, userRepo, avatars)

	authMiddleware := handlers.RequireAuth(cfg.JWTSecret)

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
		handlers.AuthRouter(r, identityService, tokenService, cfg.JWTSecret)
	})
	router.Route("/profiles", func(r chi.Router) {
		handlers.ProfileRouter(r, profileService, authMiddleware)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server configured",
		"port", port,
		"store_backend", cfg.StoreBackend,
		"mq_backend", cfg.MQBackend,
		"storage_backend", cfg.StorageBackend,
	)

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		events:     events,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.events != nil {
		_ = s.events.Close()
	}
	return s.httpServer.Close()
}

func newEvents(ctx context.Context, cfg config.Config) (*mq.MQ, error) {
	switch cfg.MQBackend {
	case config.MQBackendNone, "":
		return nil, nil
	case config.MQBackendRabbitMQ:
		backend, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		return mq.New(backend), nil
	case config.MQBackendPubSub:
		backend, err := mq.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("connect pubsub: %w", err)
		}
		return mq.New(backend), nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.MQBackend)
	}
}

func newAvatars(ctx context.Context, cfg config.Config) (*storage.AvatarStore, error) {
	var backend storage.ObjectStorage
	switch cfg.StorageBackend {
	case config.StorageBackendNone, "":
		return nil, nil
	case config.StorageBackendMinio:
		client, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("connect minio: %w", err)
		}
		backend = client
	case config.StorageBackendGCS:
		client, err := storage.NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, fmt.Errorf("connect gcs: %w", err)
		}
		backend = client
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	avatars := storage.NewAvatarStore(backend)
	if err := avatars.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure avatar bucket: %w", err)
	}
	return avatars, nil
}
