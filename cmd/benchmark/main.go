// Benchmark tool for testing CediGuard against labeled mobile money SMS.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -count 5000
//   go run cmd/benchmark/main.go -csv /path/to/labeled_sms.csv
//
// This tool:
//  1. Generates synthetic Ghana MoMo SMS traffic with fraud labels
//     (or reads a labeled CSV with "message,is_fraud" columns)
//  2. Sends each SMS to CediGuard for evaluation
//  3. Compares CediGuard's verdict (HIGH/CRITICAL = alert) with the labels
//  4. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledSMS is one benchmark input message.
type LabeledSMS struct {
	AccountID string
	Message   string
	IsFraud   bool
}

// EvaluateRequest is the CediGuard API request format.
type EvaluateRequest struct {
	AccountID string `json:"accountId"`
	Message   string `json:"message"`
}

// EvaluateResponse is the subset of the API response the benchmark needs.
type EvaluateResponse struct {
	Assessment *struct {
		ID     string `json:"id"`
		Result struct {
			Score int    `json:"score"`
			Level string `json:"level"`
		} `json:"result"`
	} `json:"assessment"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Fraud flagged HIGH or CRITICAL
	FalsePositives int64 // Non-fraud flagged HIGH or CRITICAL
	TrueNegatives  int64 // Non-fraud left LOW or MEDIUM
	FalseNegatives int64 // Fraud left LOW or MEDIUM (missed fraud!)

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalInvalid   int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled SMS CSV (message,is_fraud); empty = synthetic")
	baseURL := flag.String("url", "http://localhost:8080", "CediGuard base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	count := flag.Int("count", 5000, "Synthetic messages to generate when no CSV given")
	fraudRate := flag.Float64("fraud-rate", 0.1, "Fraction of synthetic messages that are fraud-shaped")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	seed := flag.Int64("seed", 42, "Random seed for synthetic generation")
	verbose := flag.Bool("verbose", false, "Print each message result")
	flag.Parse()

	fmt.Println("+---------------------------------------------------------------+")
	fmt.Println("|        CEDIGUARD BENCHMARK - MoMo SMS Fraud Detection         |")
	fmt.Println("+---------------------------------------------------------------+")
	fmt.Printf("\nCediGuard URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:     %s\n", *tenantID)
	fmt.Printf("Workers:       %d\n", *workers)
	if *csvPath != "" {
		fmt.Printf("CSV File:      %s\n", *csvPath)
	} else {
		fmt.Printf("Synthetic:     %d messages, %.0f%% fraud-shaped, seed %d\n", *count, *fraudRate*100, *seed)
	}
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: CediGuard not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure CediGuard is running:")
		fmt.Println("  go run cmd/cediguard/main.go")
		os.Exit(1)
	}
	fmt.Println("CediGuard is healthy")

	var messages []LabeledSMS
	var err error
	if *csvPath != "" {
		messages, err = readLabeledCSV(*csvPath)
		if err != nil {
			fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
			os.Exit(1)
		}
	} else {
		messages = generateSyntheticSMS(*count, *fraudRate, *seed)
	}
	fmt.Printf("Loaded %d messages\n", len(messages))

	fraudCount := 0
	for _, m := range messages {
		if m.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("  - Fraud:     %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(messages)))
	fmt.Printf("  - Non-fraud: %d (%.2f%%)\n", len(messages)-fraudCount, 100*float64(len(messages)-fraudCount)/float64(len(messages)))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(messages, *baseURL, *tenantID, *workers, *verbose)
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

var (
	recipientNames = []string{
		"Ama Mensah", "Kofi Boateng", "Yaw Darko", "Akosua Asante", "Kwame Osei",
		"Abena Owusu", "Kojo Amankwah", "Efua Addo", "Nana Agyeman", "Adwoa Frimpong",
	}
	merchantNames = []string{
		"GhanaWater", "ECG Prepaid", "DSTV Ghana", "Melcom", "Shoprite Accra",
	}
)

// generateSyntheticSMS builds MoMo-style messages. Fraud-shaped messages
// use the patterns the scorer targets (dead-hour sends, drained balances,
// very large amounts); normal traffic looks like daytime purchases and
// small transfers.
func generateSyntheticSMS(count int, fraudRate float64, seed int64) []LabeledSMS {
	rng := rand.New(rand.NewSource(seed))
	messages := make([]LabeledSMS, 0, count)

	for i := 0; i < count; i++ {
		accountID := fmt.Sprintf("bench-acc-%03d", rng.Intn(200))
		day := 1 + rng.Intn(28)
		ref := 10000000 + rng.Intn(89999999)
		phone := fmt.Sprintf("024%07d", rng.Intn(10000000))
		name := recipientNames[rng.Intn(len(recipientNames))]

		if rng.Float64() < fraudRate {
			// Dead-hour large send that drains the balance.
			amount := 2000 + rng.Float64()*8000
			hour := 2 + rng.Intn(3)
			balance := rng.Float64() * 8
			messages = append(messages, LabeledSMS{
				AccountID: accountID,
				Message: fmt.Sprintf(
					"MTN MoMo: GHS %.2f sent to %s %s on 2024-03-%02d at %02d:%02d. Ref: %d. New Balance: GHS %.2f",
					amount, phone, name, day, hour, rng.Intn(60), ref, balance),
				IsFraud: true,
			})
			continue
		}

		// Normal daytime traffic.
		hour := 8 + rng.Intn(12)
		switch rng.Intn(3) {
		case 0:
			amount := 5 + rng.Float64()*150
			messages = append(messages, LabeledSMS{
				AccountID: accountID,
				Message: fmt.Sprintf(
					"MTN MoMo: GHS %.2f sent to %s %s on 2024-03-%02d at %02d:%02d. Ref: %d. New Balance: GHS %.2f",
					amount, phone, name, day, hour, rng.Intn(60), ref, 200+rng.Float64()*800),
				IsFraud: false,
			})
		case 1:
			amount := 20 + rng.Float64()*300
			messages = append(messages, LabeledSMS{
				AccountID: accountID,
				Message: fmt.Sprintf(
					"MTN MoMo: You received GHS %.2f from %s %s on 2024-03-%02d at %02d:%02d. New Balance: GHS %.2f",
					amount, phone, name, day, hour, rng.Intn(60), 300+rng.Float64()*900),
				IsFraud: false,
			})
		default:
			amount := 10 + rng.Float64()*90
			merchant := merchantNames[rng.Intn(len(merchantNames))]
			messages = append(messages, LabeledSMS{
				AccountID: accountID,
				Message: fmt.Sprintf(
					"Vodafone Cash: Bill payment of GHS %.2f to %s on 2024-03-%02d at %02d:%02d. Ref: %d. New Balance: GHS %.2f",
					amount, merchant, day, hour, rng.Intn(60), ref, 150+rng.Float64()*600),
				IsFraud: false,
			})
		}
	}

	return messages
}

func readLabeledCSV(path string) ([]LabeledSMS, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	msgCol, ok := colIndex["message"]
	if !ok {
		return nil, fmt.Errorf("csv missing 'message' column")
	}
	fraudCol, ok := colIndex["is_fraud"]
	if !ok {
		return nil, fmt.Errorf("csv missing 'is_fraud' column")
	}

	var messages []LabeledSMS
	for i := 0; ; i++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		accountID := fmt.Sprintf("bench-acc-%03d", i%200)
		if col, ok := colIndex["account_id"]; ok && record[col] != "" {
			accountID = record[col]
		}

		messages = append(messages, LabeledSMS{
			AccountID: accountID,
			Message:   record[msgCol],
			IsFraud:   record[fraudCol] == "1" || strings.EqualFold(record[fraudCol], "true"),
		})
	}

	return messages, nil
}

func runBenchmark(messages []LabeledSMS, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan LabeledSMS, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for sms := range work {
				start := time.Now()
				result, err := evaluateSMS(client, baseURL, tenantID, sms)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", sms.AccountID, err)
					}
					continue
				}

				if result.Assessment == nil {
					atomic.AddInt64(&metrics.TotalInvalid, 1)
					continue
				}

				if sms.IsFraud {
					atomic.AddInt64(&metrics.TotalFraud, 1)
				} else {
					atomic.AddInt64(&metrics.TotalNonFraud, 1)
				}

				level := result.Assessment.Result.Level
				predicted := level == "HIGH" || level == "CRITICAL"
				actual := sms.IsFraud

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else {
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "ok "
					if (predicted && !actual) || (!predicted && actual) {
						status = "MISS"
					}
					fmt.Printf("%s %-14s | Fraud: %-5v | Level: %-8s | Score: %3d\n",
						status,
						sms.AccountID,
						sms.IsFraud,
						level,
						result.Assessment.Result.Score,
					)
				}
			}
		}()
	}

	for _, sms := range messages {
		work <- sms
	}
	close(work)

	wg.Wait()

	return metrics
}

func evaluateSMS(client *http.Client, baseURL, tenantID string, sms LabeledSMS) (*EvaluateResponse, error) {
	body, err := json.Marshal(EvaluateRequest{
		AccountID: sms.AccountID,
		Message:   sms.Message,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result EvaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n+---------------------------------------------------------------+")
	fmt.Println("|                      BENCHMARK RESULTS                        |")
	fmt.Println("+---------------------------------------------------------------+")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Non-Fraud:  %d\n", m.TotalNonFraud)
	fmt.Printf("   Unparseable:      %d\n", m.TotalInvalid)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nCONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                   ALERT     NO-ALERT")
	fmt.Println("              +----------+----------+")
	fmt.Printf("   Actual  F  | %8d | %8d |  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              +----------+----------+")
	fmt.Printf("          NF  | %8d | %8d |  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              +----------+----------+")

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
	fmt.Printf("   Precision:  %.4f  (of alerts, how many were actual fraud)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of fraud, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	fmt.Printf("\nDETECTION ANALYSIS\n")
	if m.TotalFraud > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalFraud) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalFraud) * 100
		fmt.Printf("   Fraud Detected:    %d / %d (%.2f%%)\n", m.TruePositives, m.TotalFraud, detectionRate)
		fmt.Printf("   Fraud Missed:      %d / %d (%.2f%%)\n", m.FalseNegatives, m.TotalFraud, missRate)
	}
	if m.TotalNonFraud > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalNonFraud) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalNonFraud, falseAlarmRate)
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f sms/sec\n", tps)
	}

	fmt.Printf("\nINTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   Excellent recall - catching most fraud")
	} else if recall >= 0.7 {
		fmt.Println("   Good recall - but missing some fraud")
	} else if recall >= 0.5 {
		fmt.Println("   Moderate recall - significant fraud being missed")
	} else {
		fmt.Println("   Poor recall - most fraud is being missed!")
	}

	if precision >= 0.5 {
		fmt.Println("   Good precision - alerts are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   Low precision - many false alarms")
	} else {
		fmt.Println("   Very low precision - mostly false alarms")
	}

	fmt.Println()
}
