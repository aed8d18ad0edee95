// simulate drives concurrent booking traffic against a running api-server to
// exercise slot capacity and inventory accounting under contention.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/immucare/vaccine-booking/internal/db"
)

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	CancelRatio float64
	UserCount   int
	PostgresDSN string
}

type slotTarget struct {
	SlotID    uuid.UUID
	CenterID  uuid.UUID
	VaccineID uuid.UUID
}

type DataPool struct {
	Users   []uuid.UUID
	Targets []slotTarget

	mu     sync.RWMutex
	booked []bookedAppointment
}

type bookedAppointment struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

func (dp *DataPool) AddBooked(id, userID uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.booked = append(dp.booked, bookedAppointment{ID: id, UserID: userID})
}

func (dp *DataPool) TakeRandomBooked() (bookedAppointment, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.booked) == 0 {
		return bookedAppointment{}, false
	}
	idx := rand.Intn(len(dp.booked))
	b := dp.booked[idx]
	dp.booked = append(dp.booked[:idx], dp.booked[idx+1:]...)
	return b, true
}

type OperationMetrics struct {
	Total    int64
	Success  int64
	Conflict int64
	Rejected int64
	Error    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case status >= 400 && status < 500:
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Report(name string) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	om.mu.Unlock()

	fmt.Printf("\n%s: total=%d success=%d conflict=%d rejected=%d error=%d\n",
		name, om.Total, om.Success, om.Conflict, om.Rejected, om.Error)

	if len(latencies) == 0 {
		return
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	fmt.Printf("  avg=%s min=%s max=%s p50=%s p95=%s\n",
		sum/time.Duration(len(latencies)),
		latencies[0],
		latencies[len(latencies)-1],
		latencies[len(latencies)*50/100],
		latencies[min(len(latencies)*95/100, len(latencies)-1)],
	)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := loadSimConfig()
	log.Printf("simulate: url=%s duration=%s workers=%d cancel_ratio=%.2f",
		cfg.APIBaseURL, cfg.Duration, cfg.Workers, cfg.CancelRatio)

	pool, err := loadDataPool(cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("loaded %d slot targets, %d synthetic users", len(pool.Targets), len(pool.Users))

	bookMetrics := &OperationMetrics{}
	cancelMetrics := &OperationMetrics{}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	client := &http.Client{Timeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				default:
				}

				if rand.Float64() < cfg.CancelRatio {
					runCancel(gctx, client, cfg, pool, cancelMetrics)
				} else {
					runBook(gctx, client, cfg, pool, bookMetrics)
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		log.Printf("worker error: %v", err)
	}

	bookMetrics.Report("bookings")
	cancelMetrics.Report("cancellations")
}

func runBook(ctx context.Context, client *http.Client, cfg SimConfig, pool *DataPool, m *OperationMetrics) {
	target := pool.Targets[rand.Intn(len(pool.Targets))]
	user := pool.Users[rand.Intn(len(pool.Users))]

	body, _ := json.Marshal(map[string]string{
		"vaccine_id":     target.VaccineID.String(),
		"center_id":      target.CenterID.String(),
		"slot_id":        target.SlotID.String(),
		"payment_method": "card",
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.APIBaseURL+"/bookings", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Requester-ID", user.String())

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		m.Record(time.Since(start), 0)
		return
	}
	defer resp.Body.Close()
	m.Record(time.Since(start), resp.StatusCode)

	if resp.StatusCode == http.StatusCreated {
		var created struct {
			ID uuid.UUID `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&created); err == nil {
			pool.AddBooked(created.ID, user)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
}

func runCancel(ctx context.Context, client *http.Client, cfg SimConfig, pool *DataPool, m *OperationMetrics) {
	booked, ok := pool.TakeRandomBooked()
	if !ok {
		return
	}

	url := fmt.Sprintf("%s/bookings/%s/cancel", cfg.APIBaseURL, booked.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return
	}
	req.Header.Set("X-Requester-ID", booked.UserID.String())

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		m.Record(time.Since(start), 0)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	m.Record(time.Since(start), resp.StatusCode)
}

func loadSimConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:  getEnv("SIM_API_URL", "http://127.0.0.1:8080"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 20),
		CancelRatio: getFloat("SIM_CANCEL_RATIO", 0.1),
		UserCount:   getInt("SIM_USERS", 500),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required to discover slots and vaccines")
	}
	return cfg
}

func loadDataPool(cfg SimConfig) (*DataPool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	defer pgPool.Close()

	rows, err := pgPool.Query(ctx, `
		SELECT s.id, s.center_id, cvs.vaccine_id
		FROM appointment_slots s
		JOIN center_vaccine_stock cvs ON cvs.center_id = s.center_id
		WHERE s.starts_at > now()
		  AND s.current_bookings < s.max_capacity
		  AND cvs.stock_quantity > 0
		LIMIT 5000
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pool := &DataPool{}
	for rows.Next() {
		var t slotTarget
		if err := rows.Scan(&t.SlotID, &t.CenterID, &t.VaccineID); err != nil {
			return nil, err
		}
		pool.Targets = append(pool.Targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(pool.Targets) == 0 {
		return nil, fmt.Errorf("no bookable slot/vaccine combinations found; run the seeder first")
	}

	for i := 0; i < cfg.UserCount; i++ {
		pool.Users = append(pool.Users, uuid.New())
	}
	return pool, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
