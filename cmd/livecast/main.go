package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"livecast/internal/coordinator"
	"livecast/internal/geoip"
	"livecast/internal/metrics"
	"livecast/internal/notifier"
	"livecast/internal/server"
	"livecast/internal/store"
)

func main() {
	_ = godotenv.Load()

	dbPath := envOr("DB_PATH", "./data/livecast.db")
	listenAddr := envOr("LISTEN_ADDR", ":7940")
	migrationsDir := envOr("MIGRATIONS_DIR", "./migrations")
	corsOrigin := os.Getenv("CORS_ORIGIN")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		log.Fatal(err)
	}

	s, err := store.New(dbPath)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer s.Close()

	if err := s.Migrate(migrationsDir); err != nil {
		log.Fatalf("running migrations: %v", err)
	}

	geoResolver := geoip.NewResolver(os.Getenv("GEOIP_DB"))
	defer geoResolver.Close()

	m := metrics.New()

	coordOpts := []coordinator.Option{coordinator.WithMetrics(m)}
	if ttl := envDuration("HEARTBEAT_TTL", coordinator.DefaultHeartbeatTTL); ttl > 0 {
		coordOpts = append(coordOpts, coordinator.WithHeartbeatTTL(ttl))
	}
	if grace := envDuration("EVICTION_GRACE", coordinator.DefaultGracePeriod); grace > 0 {
		coordOpts = append(coordOpts, coordinator.WithGracePeriod(grace))
	}

	n := notifier.New(notifier.Config{
		WebhookURL:        os.Getenv("WEBHOOK_URL"),
		DiscordWebhookURL: os.Getenv("DISCORD_WEBHOOK_URL"),
	})
	if n.Enabled() {
		coordOpts = append(coordOpts, coordinator.WithNotifier(n))
		log.Println("lifecycle notifications enabled")
	}

	coord := coordinator.New(s, coordOpts...)
	coord.Start(context.Background())
	defer coord.Stop()

	var opts []server.Option
	if corsOrigin != "" {
		opts = append(opts, server.WithCORSOrigin(corsOrigin))
	}
	opts = append(opts, server.WithGeoResolver(geoResolver))
	opts = append(opts, server.WithMetrics(m))
	srv := server.NewServer(s, coord, opts...)

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Livecast listening on %s", listenAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("invalid %s %q, using %v", key, v, fallback)
		return fallback
	}
	return d
}
