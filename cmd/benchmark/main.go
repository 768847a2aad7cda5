// Benchmark tool for replaying transaction CSVs against Kestrel.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/transactions.csv -url http://localhost:8080
//
// This tool:
//   1. Reads a transaction CSV (optionally with expected charge totals)
//   2. Sends each transaction to Kestrel for charge calculation
//   3. Compares calculated totals with expected values when present
//   4. Reports match rate, failure counts, latency, and throughput
//
// CSV columns: id,customer_code,type,amount,currency[,expected_total]
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// CSVTransaction represents one row of the replay file.
type CSVTransaction struct {
	ID            string
	CustomerCode  string
	Type          string
	Amount        float64
	Currency      string
	ExpectedTotal float64
	HasExpected   bool
}

// CalculateRequest is the Kestrel API request format.
type CalculateRequest struct {
	ID           string  `json:"id"`
	CustomerCode string  `json:"customerCode"`
	Type         string  `json:"type"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
}

// CalculateResponse is the subset of the API response the tool reads.
type CalculateResponse struct {
	TransactionID string  `json:"transactionId"`
	TotalCharges  float64 `json:"totalCharges"`
	Success       bool    `json:"success"`
	Message       string  `json:"message"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TotalProcessed int64
	Succeeded      int64
	Rejected       int64
	TotalErrors    int64

	Matched    int64 // expected total present and equal
	Mismatched int64 // expected total present and different

	TotalCharged     float64
	chargedMu        sync.Mutex
	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to transaction CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	limit := flag.Int("limit", 10000, "Maximum transactions to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/transactions.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          KESTREL BENCHMARK - Charge Calculation Replay        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Read transaction data
	fmt.Printf("\nReading transactions from %s...\n", *csvPath)
	transactions, err := readCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d transactions\n", len(transactions))

	expectedCount := 0
	for _, tx := range transactions {
		if tx.HasExpected {
			expectedCount++
		}
	}
	fmt.Printf("  - With expected totals: %d\n", expectedCount)

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(transactions, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
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

func readCSV(path string, limit int) ([]CSVTransaction, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"id", "customer_code", "type", "amount"} {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}
	expectedCol, hasExpectedCol := colIndex["expected_total"]

	var transactions []CSVTransaction

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		amount, _ := strconv.ParseFloat(record[colIndex["amount"]], 64)

		tx := CSVTransaction{
			ID:           record[colIndex["id"]],
			CustomerCode: record[colIndex["customer_code"]],
			Type:         record[colIndex["type"]],
			Amount:       amount,
			Currency:     "INR",
		}
		if i, ok := colIndex["currency"]; ok && i < len(record) && record[i] != "" {
			tx.Currency = record[i]
		}
		if hasExpectedCol && expectedCol < len(record) && record[expectedCol] != "" {
			if expected, err := strconv.ParseFloat(record[expectedCol], 64); err == nil {
				tx.ExpectedTotal = expected
				tx.HasExpected = true
			}
		}

		transactions = append(transactions, tx)

		if limit > 0 && len(transactions) >= limit {
			break
		}
	}

	return transactions, nil
}

func runBenchmark(transactions []CSVTransaction, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan CSVTransaction, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for tx := range work {
				start := time.Now()
				result, err := calculateTransaction(client, baseURL, tx)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", tx.ID, err)
					}
					continue
				}

				if !result.Success {
					atomic.AddInt64(&metrics.Rejected, 1)
					if verbose {
						fmt.Printf("✗ %-16s | REJECTED: %s\n", tx.ID, result.Message)
					}
					continue
				}

				atomic.AddInt64(&metrics.Succeeded, 1)
				metrics.chargedMu.Lock()
				metrics.TotalCharged += result.TotalCharges
				metrics.chargedMu.Unlock()

				matched := true
				if tx.HasExpected {
					if math.Abs(result.TotalCharges-tx.ExpectedTotal) < 0.005 {
						atomic.AddInt64(&metrics.Matched, 1)
					} else {
						atomic.AddInt64(&metrics.Mismatched, 1)
						matched = false
					}
				}

				if verbose {
					status := "✓"
					if !matched {
						status = "✗"
					}
					fmt.Printf("%s %-16s | Type: %-28s | Amount: %12.2f | Charged: %8.2f\n",
						status,
						tx.ID,
						tx.Type,
						tx.Amount,
						result.TotalCharges,
					)
				}
			}
		}()
	}

	// Send work
	for _, tx := range transactions {
		work <- tx
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func calculateTransaction(client *http.Client, baseURL string, tx CSVTransaction) (*CalculateResponse, error) {
	req := CalculateRequest{
		ID:           tx.ID,
		CustomerCode: tx.CustomerCode,
		Type:         tx.Type,
		Amount:       tx.Amount,
		Currency:     tx.Currency,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/charges/calculate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// 422 carries a failed calculation result, not a transport error
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusUnprocessableEntity {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result CalculateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 RUN STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Succeeded:        %d\n", m.Succeeded)
	fmt.Printf("   Rejected:         %d\n", m.Rejected)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)
	fmt.Printf("   Total Charged:    %.2f\n", m.TotalCharged)

	verified := m.Matched + m.Mismatched
	if verified > 0 {
		matchRate := float64(m.Matched) / float64(verified) * 100
		fmt.Printf("\n🎯 VERIFICATION\n")
		fmt.Printf("   Totals Checked:   %d\n", verified)
		fmt.Printf("   Matched:          %d (%.2f%%)\n", m.Matched, matchRate)
		fmt.Printf("   Mismatched:       %d\n", m.Mismatched)
	}

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
