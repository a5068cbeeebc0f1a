// Benchmark tool that drives Kestrel with a synthetic agent spending
// stream.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -count 5000
//
// This tool:
//   1. Generates a stream of agent transactions with known bad habits
//      mixed in (micro-cost drips, vendor concentration, round
//      convenience payments)
//   2. Posts each decision to Kestrel
//   3. Tracks which patterns fire, which signals are raised, and how
//      the resilience score moves
//   4. Reports detection counts, latency, and throughput
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// DecisionRequest matches the Kestrel POST /decisions body.
type DecisionRequest struct {
	Transaction Transaction `json:"transaction"`
	Decision    Decision    `json:"decision"`
}

type Transaction struct {
	ID        string  `json:"id"`
	Recipient string  `json:"recipient"`
	Amount    float64 `json:"amount"`
	Purpose   string  `json:"purpose"`
	Status    string  `json:"status"`
}

type Decision struct {
	Recommendation   string   `json:"recommendation"`
	ThreatLevel      string   `json:"threat_level"`
	PatternsDetected []string `json:"patterns_detected,omitempty"`
	ResilienceImpact float64  `json:"resilience_impact"`
}

// DecisionResponse mirrors the fields of the Kestrel response that the
// benchmark cares about.
type DecisionResponse struct {
	TxID          string `json:"txId"`
	PatternsFired []struct {
		Type string `json:"type"`
	} `json:"patternsFired"`
	Signal *struct {
		ID          string  `json:"id"`
		PatternType string  `json:"patternType"`
		Severity    float64 `json:"severity"`
	} `json:"signal"`
	ResilienceScore int    `json:"resilienceScore"`
	Band            string `json:"band"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TotalProcessed int64
	TotalErrors    int64
	SignalsRaised  int64

	ProcessingTimeMs int64

	mu            sync.Mutex
	patternCounts map[string]int64
	finalScore    int64
	finalBand     atomic.Value
}

func (m *Metrics) recordPattern(patternType string) {
	m.mu.Lock()
	m.patternCounts[patternType]++
	m.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	count := flag.Int("count", 5000, "Number of transactions to send")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	seed := flag.Int64("seed", 42, "Random seed for the synthetic stream")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        KESTREL BENCHMARK - Synthetic Spending Stream          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nKestrel URL:  %s\n", *baseURL)
	fmt.Printf("Count:        %d\n", *count)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Seed:         %d\n", *seed)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	fmt.Printf("\nGenerating %d transactions...\n", *count)
	stream := generateStream(*count, *seed)
	fmt.Printf("✓ Generated %d decision requests\n", len(stream))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(stream, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

var vendors = []string{
	"cloud-compute-co", "api-credits-inc", "data-feeds-ltd",
	"prompt-tools-io", "storage-farm", "news-wire",
	"translation-hub", "render-grid", "search-index-co",
}

var purposes = []string{
	"api access", "compute time", "data subscription",
	"storage", "content license", "tooling",
}

// generateStream builds a synthetic spending history. Roughly 70% is
// routine varied spend, 15% is a micro-cost drip at one vendor, 10%
// piles onto a single vendor to force concentration, and 5% is round
// convenience payments.
func generateStream(count int, seed int64) []DecisionRequest {
	rng := rand.New(rand.NewSource(seed))
	stream := make([]DecisionRequest, 0, count)

	for i := 0; i < count; i++ {
		var tx Transaction
		roll := rng.Float64()

		switch {
		case roll < 0.15:
			// Micro-cost drip: small repeated payments to the same vendor
			tx = Transaction{
				Recipient: "micro-drip-vendor",
				Amount:    5 + rng.Float64()*40,
				Purpose:   "per-request fee",
			}
		case roll < 0.25:
			// Concentration: heavy spend on one favorite
			tx = Transaction{
				Recipient: "favorite-vendor",
				Amount:    200 + rng.Float64()*800,
				Purpose:   "compute time",
			}
		case roll < 0.30:
			// Convenience: large round amounts
			roundAmounts := []float64{500, 1000, 1500, 2000}
			tx = Transaction{
				Recipient: vendors[rng.Intn(len(vendors))],
				Amount:    roundAmounts[rng.Intn(len(roundAmounts))],
				Purpose:   "bulk credits",
			}
		default:
			// Routine varied spend
			tx = Transaction{
				Recipient: vendors[rng.Intn(len(vendors))],
				Amount:    float64(int((50+rng.Float64()*350)*100)) / 100,
				Purpose:   purposes[rng.Intn(len(purposes))],
			}
		}

		tx.ID = fmt.Sprintf("bench-%d", i)
		tx.Status = "completed"

		stream = append(stream, DecisionRequest{
			Transaction: tx,
			Decision:    decideFor(rng, tx),
		})
	}

	return stream
}

// decideFor plays the part of the reasoning layer: big spends carry a
// higher threat level and a larger score impact.
func decideFor(rng *rand.Rand, tx Transaction) Decision {
	switch {
	case tx.Amount >= 1500:
		return Decision{
			Recommendation:   "approve",
			ThreatLevel:      "HIGH",
			ResilienceImpact: -(3 + rng.Float64()*3),
		}
	case tx.Amount >= 500:
		return Decision{
			Recommendation:   "approve",
			ThreatLevel:      "MEDIUM",
			ResilienceImpact: -(1 + rng.Float64()*2),
		}
	default:
		return Decision{
			Recommendation:   "approve",
			ThreatLevel:      "LOW",
			ResilienceImpact: -rng.Float64(),
		}
	}
}

func runBenchmark(stream []DecisionRequest, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{patternCounts: make(map[string]int64)}

	work := make(chan DecisionRequest, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for req := range work {
				start := time.Now()
				result, err := postDecision(client, baseURL, req)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", req.Transaction.ID, err)
					}
					continue
				}

				for _, p := range result.PatternsFired {
					metrics.recordPattern(p.Type)
				}
				if result.Signal != nil {
					atomic.AddInt64(&metrics.SignalsRaised, 1)
				}
				atomic.StoreInt64(&metrics.finalScore, int64(result.ResilienceScore))
				metrics.finalBand.Store(result.Band)

				if verbose {
					fired := ""
					for _, p := range result.PatternsFired {
						fired += p.Type + " "
					}
					fmt.Printf("%-12s | %-20s | $%10.2f | score: %3d (%s) | %s\n",
						req.Transaction.ID,
						req.Transaction.Recipient,
						req.Transaction.Amount,
						result.ResilienceScore,
						result.Band,
						fired,
					)
				}
			}
		}()
	}

	for _, req := range stream {
		work <- req
	}
	close(work)

	wg.Wait()

	return metrics
}

func postDecision(client *http.Client, baseURL string, req DecisionRequest) (*DecisionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/decisions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result DecisionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 STREAM STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n🔍 DETECTION\n")
	m.mu.Lock()
	if len(m.patternCounts) == 0 {
		fmt.Println("   No patterns fired")
	}
	for patternType, count := range m.patternCounts {
		fmt.Printf("   %-28s %d\n", patternType, count)
	}
	m.mu.Unlock()
	fmt.Printf("   Signals Raised:   %d\n", m.SignalsRaised)

	band, _ := m.finalBand.Load().(string)
	fmt.Printf("\n🧬 RESILIENCE\n")
	fmt.Printf("   Final Score:      %d\n", atomic.LoadInt64(&m.finalScore))
	fmt.Printf("   Final Band:       %s\n", band)

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f tx/sec\n", tps)
	}

	fmt.Println()
}
