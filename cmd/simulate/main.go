// simulate drives concurrent booking traffic against a running api-server
// and verifies the slot invariant afterwards: no (provider, date, slot)
// may end up with more than one confirmed appointment.
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
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbook/scheduling/internal/calendar"
	"github.com/medbook/scheduling/internal/db"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	PatientLimit int
	ProviderLim  int
	PostgresDSN  string
}

type target struct {
	ProviderID uuid.UUID
	Date       string
	Slot       string
}

type DataPool struct {
	Patients []uuid.UUID
	Targets  []target

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment() (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rand.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	return avg, p50, p95
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := SimConfig{
		APIBaseURL:   envStr("SIM_API_URL", "http://127.0.0.1:8080"),
		Duration:     envDuration("SIM_DURATION", 30*time.Second),
		Workers:      envInt("SIM_WORKERS", 16),
		PatientLimit: envInt("SIM_PATIENTS", 200),
		ProviderLim:  envInt("SIM_PROVIDERS", 5),
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	dp, err := loadDataPool(context.Background(), pool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("data pool: %d patients, %d targets", len(dp.Patients), len(dp.Targets))

	createMetrics := &OperationMetrics{}
	cancelMetrics := &OperationMetrics{}

	runCtx, stopRun := context.WithTimeout(context.Background(), cfg.Duration)
	defer stopRun()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(runCtx, cfg, dp, createMetrics, cancelMetrics)
		}()
	}
	wg.Wait()

	report("create", createMetrics)
	report("cancel", cancelMetrics)

	if err := verifyInvariant(context.Background(), pool); err != nil {
		log.Fatalf("INVARIANT VIOLATED: %v", err)
	}
	log.Println("slot invariant holds: at most one confirmed appointment per (provider, date, slot)")
}

func worker(ctx context.Context, cfg SimConfig, dp *DataPool, createM, cancelM *OperationMetrics) {
	client := &http.Client{Timeout: 10 * time.Second}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Mostly creates, with occasional cancels to churn the slots.
		if rand.Float64() < 0.8 {
			doCreate(ctx, client, cfg, dp, createM)
		} else {
			doCancel(ctx, client, cfg, dp, cancelM)
		}
	}
}

func doCreate(ctx context.Context, client *http.Client, cfg SimConfig, dp *DataPool, m *OperationMetrics) {
	tgt := dp.Targets[rand.Intn(len(dp.Targets))]
	patient := dp.Patients[rand.Intn(len(dp.Patients))]

	body, _ := json.Marshal(map[string]any{
		"patient_id":  patient.String(),
		"provider_id": tgt.ProviderID.String(),
		"date":        tgt.Date,
		"slot":        tgt.Slot,
		"urgent":      rand.Float64() < 0.1,
	})

	start := time.Now()
	resp, err := post(ctx, client, cfg.APIBaseURL+"/appointments", body)
	latency := time.Since(start)
	if err != nil {
		m.Record(latency, false, false)
		return
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusCreated:
		var created struct {
			ID uuid.UUID `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&created); err == nil {
			dp.AddAppointment(created.ID)
		}
		m.Record(latency, true, false)
	case http.StatusConflict, http.StatusUnprocessableEntity:
		m.Record(latency, false, true)
	default:
		m.Record(latency, false, false)
	}
}

func doCancel(ctx context.Context, client *http.Client, cfg SimConfig, dp *DataPool, m *OperationMetrics) {
	id, ok := dp.RandomAppointment()
	if !ok {
		return
	}

	start := time.Now()
	resp, err := post(ctx, client, cfg.APIBaseURL+"/appointments/"+id.String()+"/cancel", nil)
	latency := time.Since(start)
	if err != nil {
		m.Record(latency, false, false)
		return
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		m.Record(latency, true, false)
	case http.StatusConflict:
		m.Record(latency, false, true)
	default:
		m.Record(latency, false, false)
	}
}

func post(ctx context.Context, client *http.Client, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return client.Do(req)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dp := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dp.Patients = append(dp.Patients, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	provRows, err := pool.Query(ctx, `SELECT id FROM providers LIMIT $1`, cfg.ProviderLim)
	if err != nil {
		return nil, err
	}
	defer provRows.Close()

	var providers []uuid.UUID
	for provRows.Next() {
		var id uuid.UUID
		if err := provRows.Scan(&id); err != nil {
			return nil, err
		}
		providers = append(providers, id)
	}
	if err := provRows.Err(); err != nil {
		return nil, err
	}

	if len(dp.Patients) == 0 || len(providers) == 0 {
		return nil, fmt.Errorf("empty data pool, run the seed tool first")
	}

	// A deliberately small target pool so workers collide on slots.
	date := calendar.DateOnly(time.Now()).AddDate(0, 0, 1).Format("2006-01-02")
	for _, p := range providers {
		for _, slot := range calendar.DefaultDaySlots() {
			dp.Targets = append(dp.Targets, target{ProviderID: p, Date: date, Slot: slot.String()})
		}
	}
	return dp, nil
}

func report(op string, m *OperationMetrics) {
	avg, p50, p95 := m.Stats()
	log.Printf("%s: total=%d success=%d conflict=%d error=%d avg=%s p50=%s p95=%s",
		op,
		atomic.LoadInt64(&m.Total),
		atomic.LoadInt64(&m.Success),
		atomic.LoadInt64(&m.Conflict),
		atomic.LoadInt64(&m.Error),
		avg, p50, p95,
	)
}

func verifyInvariant(ctx context.Context, pool *pgxpool.Pool) error {
	rows, err := pool.Query(ctx, `
		SELECT provider_id, date, slot_minutes, count(*)
		FROM appointments
		WHERE status = 'confirmed'
		GROUP BY provider_id, date, slot_minutes
		HAVING count(*) > 1
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var violations int
	for rows.Next() {
		var providerID uuid.UUID
		var date time.Time
		var slot, n int
		if err := rows.Scan(&providerID, &date, &slot, &n); err != nil {
			return err
		}
		log.Printf("duplicate confirmed booking: provider=%s date=%s slot=%s count=%d",
			providerID, date.Format("2006-01-02"), calendar.TimeOfDay(slot), n)
		violations++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if violations > 0 {
		return fmt.Errorf("%d slots with multiple confirmed appointments", violations)
	}
	return nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
