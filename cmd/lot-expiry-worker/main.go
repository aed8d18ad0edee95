package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/immucare/vaccine-booking/internal/booking"
	"github.com/immucare/vaccine-booking/internal/config"
	"github.com/immucare/vaccine-booking/internal/db"
	"github.com/immucare/vaccine-booking/internal/inventory"
	"github.com/immucare/vaccine-booking/internal/metrics"
	"github.com/immucare/vaccine-booking/internal/notify"
	redisclient "github.com/immucare/vaccine-booking/internal/redis"
	"github.com/immucare/vaccine-booking/internal/slot"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("lot-expiry-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running lot-expiry worker in env=%s interval=%s", cfg.Env, cfg.WorkerInterval)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	repo := booking.NewPgRepository(pgPool)
	slots := slot.NewPgAllocator(pgPool)
	ledger := inventory.NewPgLedger(pgPool)
	svc := booking.NewService(repo, slots, ledger, redisclient.NoopLocker{}, notify.NoopPublisher{}, metrics.NewNop(), cfg)

	// Run once at startup
	runOnce(rootCtx, svc, ledger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping lot-expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, ledger)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, ledger inventory.Ledger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()

	changed, err := ledger.RefreshLotStatuses(runCtx, start)
	if err != nil {
		log.Printf("lot status refresh error: %v", err)
	} else if changed > 0 {
		log.Printf("lot statuses refreshed: %d changed", changed)
	}

	if err := svc.ExpireStaleConsultations(runCtx); err != nil {
		log.Printf("consultation expiry error: %v", err)
		return
	}

	log.Printf("expiry run complete in %s", time.Since(start))
}
