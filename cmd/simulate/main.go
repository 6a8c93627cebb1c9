// simulate hammers one bookable interval with concurrent booking requests
// and reports how many won. With the exclusion constraint in place the
// expected outcome is exactly one success and N-1 conflicts, regardless of
// worker count or how many api-server instances are running.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/careslot/scheduling/internal/civil"
	"github.com/careslot/scheduling/internal/db"
)

type simConfig struct {
	APIBaseURL string
	Workers    int
	DoctorID   uuid.UUID
	Date       civil.Date
	Start      civil.TimeOfDay
	End        civil.TimeOfDay
}

type result struct {
	status  int
	latency time.Duration
	body    string
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, patients, err := setup()
	if err != nil {
		log.Fatalf("setup: %v", err)
	}

	log.Printf("firing %d concurrent bookings for doctor=%s %s %s-%s",
		cfg.Workers, cfg.DoctorID, cfg.Date, cfg.Start, cfg.End)

	results := make([]result, cfg.Workers)
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i] = book(cfg, patients[i%len(patients)])
		}(i)
	}

	close(start)
	wg.Wait()

	report(results)
}

func setup() (simConfig, []uuid.UUID, error) {
	cfg := simConfig{
		APIBaseURL: getEnv("API_BASE_URL", "http://127.0.0.1:8080"),
		Workers:    getEnvInt("SIM_WORKERS", 32),
	}

	doctorID, err := uuid.Parse(os.Getenv("SIM_DOCTOR_ID"))
	if err != nil {
		return cfg, nil, fmt.Errorf("SIM_DOCTOR_ID must be a valid UUID: %w", err)
	}
	cfg.DoctorID = doctorID

	cfg.Date = civil.DateOf(time.Now().AddDate(0, 0, 1))
	if d := os.Getenv("SIM_DATE"); d != "" {
		cfg.Date, err = civil.ParseDate(d)
		if err != nil {
			return cfg, nil, err
		}
	}

	cfg.Start, cfg.End = 9*60, 9*60+30
	if s := os.Getenv("SIM_START"); s != "" {
		cfg.Start, err = civil.ParseTimeOfDay(s)
		if err != nil {
			return cfg, nil, err
		}
		cfg.End = cfg.Start + 30
	}

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		return cfg, nil, fmt.Errorf("POSTGRES_DSN is required to pick patients")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		return cfg, nil, err
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.Workers)
	if err != nil {
		return cfg, nil, err
	}
	defer rows.Close()

	var patients []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return cfg, nil, err
		}
		patients = append(patients, id)
	}
	if len(patients) == 0 {
		return cfg, nil, fmt.Errorf("no patients found, run cmd/seed first")
	}

	return cfg, patients, rows.Err()
}

func book(cfg simConfig, patientID uuid.UUID) result {
	payload, _ := json.Marshal(map[string]any{
		"doctor_id":  cfg.DoctorID.String(),
		"patient_id": patientID.String(),
		"date":       cfg.Date,
		"start":      cfg.Start,
		"end":        cfg.End,
		"reason":     "simulated booking",
	})

	req, err := http.NewRequest(http.MethodPost, cfg.APIBaseURL+"/appointments", bytes.NewReader(payload))
	if err != nil {
		return result{status: -1, body: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", patientID.String())
	req.Header.Set("X-User-Role", "patient")

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return result{status: -1, latency: latency, body: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return result{status: resp.StatusCode, latency: latency, body: string(body)}
}

func report(results []result) {
	var created, conflict, other int
	latencies := make([]time.Duration, 0, len(results))

	for _, r := range results {
		latencies = append(latencies, r.latency)
		switch r.status {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflict++
		default:
			other++
			log.Printf("unexpected status=%d body=%s", r.status, r.body)
		}
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	log.Printf("created=%d conflict=%d other=%d", created, conflict, other)
	log.Printf("latency p50=%s p95=%s max=%s",
		latencies[len(latencies)*50/100],
		latencies[len(latencies)*95/100],
		latencies[len(latencies)-1])

	if created == 1 && other == 0 {
		log.Println("PASS: exactly one booking won the interval")
		return
	}
	log.Printf("FAIL: expected exactly one success, got %d", created)
	os.Exit(1)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
