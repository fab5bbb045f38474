// Load generator for testing FraudGuard with synthetic labeled traffic.
//
// Usage:
//   go run cmd/loadgen/main.go -url http://localhost:8080 -count 10000
//
// This tool:
//  1. Generates synthetic transactions (with fraud labels)
//  2. Sends each transaction to FraudGuard for analysis
//  3. Compares FraudGuard's verdict (BLOCK/REVIEW vs MONITOR/APPROVE)
//     with the generated labels
//  4. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fintechco/fraudguard/internal/model"
)

// AnalyzeRequest is the FraudGuard API request format.
type AnalyzeRequest struct {
	ID         string `json:"id"`
	Amount     string `json:"amount"`
	Merchant   string `json:"merchant"`
	Location   string `json:"location"`
	Timestamp  string `json:"timestamp"`
	CardNumber string `json:"card_number"`
	Currency   string `json:"currency"`
}

// AnalyzeResponse is the FraudGuard API response format.
type AnalyzeResponse struct {
	Analysis struct {
		Decision struct {
			FinalRiskScore float64 `json:"finalRiskScore"`
			Action         string  `json:"action"`
			Reason         string  `json:"reason"`
		} `json:"decision"`
	} `json:"analysis"`
}

// Metrics tracks load test results.
type Metrics struct {
	TruePositives  int64 // Fraud flagged as BLOCK/REVIEW
	FalsePositives int64 // Non-fraud flagged as BLOCK/REVIEW
	TrueNegatives  int64 // Non-fraud passed through
	FalseNegatives int64 // Fraud passed through (missed fraud!)

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalRejected  int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "FraudGuard base URL")
	count := flag.Int("count", 10000, "Number of transactions to send")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	seed := flag.Int64("seed", 42, "Random seed for synthetic data")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	fmt.Println("FraudGuard load test - synthetic fraud traffic")
	fmt.Printf("\nURL:     %s\n", *baseURL)
	fmt.Printf("Count:   %d\n", *count)
	fmt.Printf("Workers: %d\n", *workers)
	fmt.Printf("Seed:    %d\n", *seed)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: FraudGuard not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure FraudGuard is running:")
		fmt.Println("  go run cmd/fraudguard/main.go")
		os.Exit(1)
	}
	fmt.Println("FraudGuard is healthy")

	samples := model.GenerateSyntheticData(*count, *seed)

	fraudCount := 0
	for _, s := range samples {
		if s.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("Generated %d transactions (%d fraud, %.2f%%)\n",
		len(samples), fraudCount, 100*float64(fraudCount)/float64(len(samples)))

	fmt.Printf("\nRunning with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runLoadTest(samples, *baseURL, *workers, *verbose)
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

func runLoadTest(samples []model.LabeledTransaction, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan model.LabeledTransaction, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for sample := range work {
				start := time.Now()
				result, status, err := analyzeTransaction(client, baseURL, sample)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					if status == http.StatusBadRequest {
						// Synthetic tails can exceed the validator's amount cap.
						atomic.AddInt64(&metrics.TotalRejected, 1)
					} else {
						atomic.AddInt64(&metrics.TotalErrors, 1)
						if verbose {
							fmt.Printf("ERROR: %s -> %v\n", sample.Transaction.ID, err)
						}
					}
					continue
				}

				if sample.IsFraud {
					atomic.AddInt64(&metrics.TotalFraud, 1)
				} else {
					atomic.AddInt64(&metrics.TotalNonFraud, 1)
				}

				action := result.Analysis.Decision.Action
				predicted := action == "BLOCK" || action == "REVIEW"
				actual := sample.IsFraud

				switch {
				case predicted && actual:
					atomic.AddInt64(&metrics.TruePositives, 1)
				case predicted && !actual:
					atomic.AddInt64(&metrics.FalsePositives, 1)
				case !predicted && !actual:
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				default:
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					mark := "ok  "
					if predicted != actual {
						mark = "miss"
					}
					fmt.Printf("%s %-10s | $%10s | %-16s | fraud=%-5v | %-7s (%.3f)\n",
						mark,
						sample.Transaction.ID,
						sample.Transaction.Amount,
						sample.Transaction.Merchant,
						sample.IsFraud,
						action,
						result.Analysis.Decision.FinalRiskScore,
					)
				}
			}
		}()
	}

	for _, sample := range samples {
		work <- sample
	}
	close(work)

	wg.Wait()

	return metrics
}

func analyzeTransaction(client *http.Client, baseURL string, sample model.LabeledTransaction) (*AnalyzeResponse, int, error) {
	tx := sample.Transaction

	// Shift the timestamp back a day so the generated hour-of-day survives
	// the validator's future-timestamp check.
	req := AnalyzeRequest{
		ID:         tx.ID,
		Amount:     tx.Amount.StringFixed(2),
		Merchant:   tx.Merchant,
		Location:   tx.Location,
		Timestamp:  tx.Timestamp.Add(-24 * time.Hour).Format(time.RFC3339),
		CardNumber: tx.CardNumber,
		Currency:   tx.Currency,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, 0, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/api/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result AnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, err
	}

	return &result, resp.StatusCode, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nRESULTS")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Non-Fraud:  %d\n", m.TotalNonFraud)
	fmt.Printf("   Rejected (400):   %d\n", m.TotalRejected)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                      Predicted")
	fmt.Println("                  FLAG        PASS")
	fmt.Printf("   Actual  F   %8d    %8d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("          NF   %8d    %8d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged, how many were actual fraud)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of fraud, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f tx/sec\n", tps)
	}

	fmt.Println()
}
