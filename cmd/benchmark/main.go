package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	accounts    int
	pin         string
)

var (
	totalRequests uint64
	success200    uint64 // Idempotent replays
	success201    uint64 // Created
	fail409       uint64 // Retry budget exhausted
	fail422       uint64 // Insufficient balance
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&accounts, "accounts", 100, "Number of seeded users to drive")
	flag.StringVar(&pin, "pin", "12345", "PIN of the seeded users")
}

func email(i int) string { return fmt.Sprintf("user%04d@seed.local", i) }

func main() {
	flag.Parse()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	logger.Info("starting benchmark", "workload", workload, "workers", concurrency, "duration", duration)

	client := &http.Client{Timeout: 5 * time.Second}
	tokens := make([]string, accounts)
	for i := range tokens {
		tok, err := login(client, email(i))
		if err != nil {
			logger.Error("login failed; run the seeder first", "email", email(i), "error", err)
			os.Exit(1)
		}
		tokens[i] = tok
	}

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, client, tokens)
	}
	wg.Wait()
	printResults(time.Since(start))
}

func login(client *http.Client, id string) (string, error) {
	body, _ := json.Marshal(map[string]string{"email": id, "pin": pin})
	resp, err := client.Post(targetURL+"/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func worker(wg *sync.WaitGroup, start time.Time, client *http.Client, tokens []string) {
	defer wg.Done()

	for time.Since(start) < duration {
		from, to := pickAccounts()
		key := fmt.Sprintf("bench-%d-%d-%d", from, to, time.Now().UnixNano())

		body, _ := json.Marshal(map[string]interface{}{
			"receiverIdentifier": email(to),
			"amount":             1,
			"pin":                pin,
		})

		req, _ := http.NewRequest(http.MethodPost, targetURL+"/send-money", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+tokens[from])
		req.Header.Set("Idempotency-Key", key)

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case http.StatusCreated:
			atomic.AddUint64(&success201, 1)
		case http.StatusOK:
			atomic.AddUint64(&success200, 1)
		case http.StatusConflict:
			atomic.AddUint64(&fail409, 1)
		case http.StatusUnprocessableEntity:
			atomic.AddUint64(&fail422, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func pickAccounts() (int, int) {
	if workload == "hotspot" && accounts >= 2 {
		// Hotspot: 90% of traffic between the first two users
		if rand.Float32() < 0.90 {
			if rand.Float32() < 0.5 {
				return 0, 1
			}
			return 1, 0
		}
	}

	a := rand.Intn(accounts)
	b := rand.Intn(accounts)
	for a == b && accounts > 1 {
		b = rand.Intn(accounts)
	}
	return a, b
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	f409 := atomic.LoadUint64(&fail409)

	abortRate := 0.0
	if total > 0 {
		abortRate = float64(f409) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":         workload,
		"duration_sec":     d.Seconds(),
		"total_requests":   total,
		"throughput_tps":   float64(total) / d.Seconds(),
		"success_created":  atomic.LoadUint64(&success201),
		"success_replay":   atomic.LoadUint64(&success200),
		"aborts_conflict":  f409,
		"rejected_balance": atomic.LoadUint64(&fail422),
		"abort_rate_pct":   abortRate,
		"errors":           atomic.LoadUint64(&failOther),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	if file, err := os.Create(filename); err == nil {
		defer file.Close()
		json.NewEncoder(file).Encode(results)
	}
}
