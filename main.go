package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"clinic-portal/config"
	"clinic-portal/handlers"
	"clinic-portal/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found")
	}

	// Initialize structured logger
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(logHandler))

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The server refuses to start without its store.
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := services.InitMongoDB(initCtx, cfg.MongoURI)
	if err != nil {
		return err
	}
	defer func() {
		dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dcancel()
		client.Disconnect(dctx)
	}()

	db := client.Database(cfg.DatabaseName)
	if err := services.CreatePrincipalIndexes(initCtx, db); err != nil {
		return err
	}

	store, closeStore, err := newSessionStore(initCtx, cfg, db)
	if err != nil {
		return err
	}
	defer closeStore()

	principals := services.NewMongoPrincipalRepository(db)
	credentials, err := services.NewCredentials(principals, cfg.BcryptCost)
	if err != nil {
		return err
	}
	sessions := services.NewSessions(store, cfg.SessionTTL)
	hub := services.NewSessionHub()
	defer hub.Close()

	cleanupDone := services.StartSessionCleanup(ctx, sessions, cfg.SessionCleanupInterval)

	app := handlers.NewApp(handlers.Deps{
		Credentials:  credentials,
		Sessions:     sessions,
		Principals:   principals,
		Hub:          hub,
		CookieSecure: cfg.CookieSecure || cfg.IsProduction(),
		CORSOrigins:  cfg.CORSOrigins,
	})

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "port", cfg.Port, "session_backend", cfg.SessionBackend, "session_ttl", cfg.SessionTTL)
		serveErr <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
	<-cleanupDone
	return nil
}

// newSessionStore opens the configured session backend and verifies it is
// reachable.
func newSessionStore(ctx context.Context, cfg *config.Config, db *mongo.Database) (services.SessionStore, func(), error) {
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store := services.NewRedisSessionStore(rdb, "clinic")
		if err := store.Ping(ctx); err != nil {
			rdb.Close()
			return nil, nil, err
		}
		slog.Info("Connected to Redis", "addr", cfg.RedisAddr)
		return store, func() { rdb.Close() }, nil

	case config.SessionBackendMongo:
		store := services.NewMongoSessionStore(db)
		if err := store.CreateIndexes(ctx); err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
	return nil, nil, errors.New("unknown session backend: " + cfg.SessionBackend)
}
