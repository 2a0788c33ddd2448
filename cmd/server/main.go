package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"focus-timer/internal/config"
	"focus-timer/internal/database"
	"focus-timer/internal/handlers"
	"focus-timer/internal/middleware"
	"focus-timer/internal/repository"
	"focus-timer/internal/router"
	"focus-timer/internal/services"
	"focus-timer/internal/websocket"
	"focus-timer/migrations"
)

func main() {
	log.Println("🚀 Starting Focus Timer Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, migrationSource(cfg.MigrationsDir)); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories & Services ────
	timerRepo := repository.NewTimerRepo(pool)
	timerService := services.NewTimerService(timerRepo, redisClients.Cache, cfg.TodayStatsCacheTTL)
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)

	// ──── Step 5: Start Stale Session Reaper ────
	reaper := services.NewStaleSessionReaper(timerService, cfg.MaxSessionDuration, cfg.ReaperInterval)
	reaper.Start()
	log.Println("✓ Stale session reaper started")

	// ──── Step 6: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth)
	log.Println("✓ WebSocket hub started")

	// ──── Step 7: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		handlers.NewTimerHandler(timerService),
		wsHub.HandleWebSocket,
		cfg.FrontendURL,
		cfg.StartRatePerMinute,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		reaper.Stop()
		wsHub.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ Focus Timer Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}

// migrationSource prefers an on-disk directory so migrations can be edited
// without a rebuild, and falls back to the embedded copy.
func migrationSource(dir string) fs.FS {
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return os.DirFS(dir)
	}
	return migrations.FS
}
