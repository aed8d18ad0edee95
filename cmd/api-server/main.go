package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/immucare/vaccine-booking/internal/api"
	"github.com/immucare/vaccine-booking/internal/booking"
	"github.com/immucare/vaccine-booking/internal/config"
	"github.com/immucare/vaccine-booking/internal/db"
	"github.com/immucare/vaccine-booking/internal/inventory"
	"github.com/immucare/vaccine-booking/internal/metrics"
	"github.com/immucare/vaccine-booking/internal/notify"
	redisclient "github.com/immucare/vaccine-booking/internal/redis"
	"github.com/immucare/vaccine-booking/internal/slot"
)

const version = "0.3.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s", cfg.Env, cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(registry)

	var publisher notify.Publisher = notify.NoopPublisher{}
	if cfg.AMQPURL != "" {
		publisher = notify.NewAMQPPublisher(cfg.AMQPURL)
		log.Println("event publisher enabled")
	}

	repo := booking.NewPgRepository(pgPool)
	slots := slot.NewPgAllocator(pgPool)
	ledger := inventory.NewPgLedger(pgPool)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	svc := booking.NewService(repo, slots, ledger, locker, publisher, m, cfg)

	router := api.NewRouter(api.RouterConfig{
		Service:  svc,
		Slots:    slots,
		Ledger:   ledger,
		PgPool:   pgPool,
		Redis:    rdb,
		Registry: registry,
		Env:      cfg.Env,
		Version:  version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()
	log.Println("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
