// Package server wires the broker's components together and runs the HTTP
// listener.
package server

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/pion/logging"

	"github.com/arefkin/peercall/internal/admission"
	"github.com/arefkin/peercall/internal/config"
	"github.com/arefkin/peercall/internal/handlers"
	"github.com/arefkin/peercall/internal/rooms"
	"github.com/arefkin/peercall/internal/signaling"
	"github.com/arefkin/peercall/internal/store"
	"github.com/arefkin/peercall/pkg/auth"
)

// Server holds the assembled broker.
type Server struct {
	cfg    config.Config
	Router *gin.Engine
	Hub    *signaling.Hub
	Gate   *admission.Gate
	Vault  *auth.PasswordVault

	cancel context.CancelFunc
}

// NewServer builds the broker from configuration. State lives in memory
// unless REDIS_URL points at a shared store.
func NewServer(cfg config.Config) *Server {
	loggerFactory := logging.NewDefaultLoggerFactory()
	loggerFactory.DefaultLogLevel = cfg.LoggingLevel()
	srvLog := loggerFactory.NewLogger("server")

	var st store.Store = store.NewMemory()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid REDIS_URL: %v", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Redis connect failed: %v", err)
		}
		st = store.NewRedis(client, "peercall:")
		srvLog.Infof("using redis-backed store")
	}

	tokens := auth.NewTokenService(cfg.JWTSecret, auth.TokenTTL)
	if cfg.JWTSecret == "" {
		srvLog.Warnf("JWT_SECRET not set, tokens will not survive a restart")
	}

	vault := auth.NewPasswordVault(cfg.VaultWorkers)
	registry := rooms.NewRegistry(st, loggerFactory.NewLogger("rooms"))
	gate := admission.NewGate(st, tokens, admission.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		MaxAttempts:    cfg.ThrottleMaxAttempts,
		ResetPeriod:    cfg.ThrottleResetPeriod,
	}, nil, loggerFactory)
	hub := signaling.NewHub(registry, loggerFactory)

	roomH := handlers.NewRoomHandler(registry, vault, tokens, loggerFactory.NewLogger("api"))
	wsH := handlers.NewWSHandler(hub, gate, loggerFactory.NewLogger("ws"))

	router := gin.Default()
	APIEndpoints(router, roomH, wsH)

	return &Server{
		cfg:    cfg,
		Router: router,
		Hub:    hub,
		Gate:   gate,
		Vault:  vault,
	}
}

// Run starts the hub, the throttle sweeper and the HTTP listener. It blocks
// until the listener fails.
func (s *Server) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go s.Hub.Run()
	go s.Gate.Run(ctx)

	log.Printf("Server starting on port %s", s.cfg.Port)
	if err := s.Router.Run(":" + s.cfg.Port); err != nil {
		log.Fatalf("Server run error: %v", err)
	}
}

// Stop tears the broker down.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.Hub.Stop()
	s.Vault.Close()
}
