package lock

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/dLock/cmd/util"
	"github.com/ValentinKolb/dLock/lib/tablelock"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for table locks",
		Long:    "Runs acquire/release cycles against the configured coordination service and reports latency percentiles per benchmark.",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfTablePrefix  = "__perf"
	perfNumThreads   = 10
	perfTableSpread  = 100
	perfOpsPerThread = 100
	perfSkip         = make([]string, 0)
)

// perfPercentiles are reported for acquire and release latencies
var perfPercentiles = []float64{0.5, 0.9, 0.99}

// perfBenchmark describes one benchmark: which lock a thread takes in iteration i on which table
type perfBenchmark struct {
	name  string
	write func(thread, i int) bool
	table func(thread, i int) int
}

// perfResult holds the measurements of one benchmark
type perfResult struct {
	name    string
	skipped bool
	elapsed time.Duration
	acquire gometrics.Timer
	release gometrics.Timer
	errors  gometrics.Counter
}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. write,contended)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "tables"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different tables to use for the tests"))
	key = "ops"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many acquire/release cycles every thread runs per benchmark"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfTableSpread = max(viper.GetInt("tables"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfOpsPerThread = max(viper.GetInt("ops"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for table locks")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Coordinator: %s\n", viper.GetString("coordinator"))
	fmt.Printf("Threads: %d, Tables: %d, Ops per thread: %d\n", perfNumThreads, perfTableSpread, perfOpsPerThread)
	fmt.Println()

	fmt.Println("starting tests...")

	benchmarks := []perfBenchmark{
		{
			// every thread write locks its own tables
			name:  "write",
			write: func(int, int) bool { return true },
			table: func(thread, i int) int { return thread*perfOpsPerThread + i },
		},
		{
			// all threads read lock the same tables
			name:  "read",
			write: func(int, int) bool { return false },
			table: func(_, i int) int { return i },
		},
		{
			// one write lock for three read locks on shared tables
			name:  "mixed",
			write: func(_, i int) bool { return i%4 == 0 },
			table: func(_, i int) int { return i },
		},
		{
			// all threads queue for write locks on a single table
			name:  "contended",
			write: func(int, int) bool { return true },
			table: func(int, int) int { return 0 },
		},
	}

	results := make([]perfResult, 0, len(benchmarks))
	for _, b := range benchmarks {
		result := runBenchmark(b)
		printResult(result)
		results = append(results, result)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// runBenchmark runs all threads of a benchmark and removes the lock state of the used tables afterwards
func runBenchmark(b perfBenchmark) perfResult {
	registry := gometrics.NewRegistry()
	result := perfResult{
		name:    b.name,
		skipped: shouldSkip(b.name),
		acquire: gometrics.GetOrRegisterTimer(b.name+".acquire", registry),
		release: gometrics.GetOrRegisterTimer(b.name+".release", registry),
		errors:  gometrics.GetOrRegisterCounter(b.name+".errors", registry),
	}
	if result.skipped {
		return result
	}

	ctx := context.Background()
	tableName := func(n int) string {
		return fmt.Sprintf("%s-%s-%d", perfTablePrefix, b.name, n%perfTableSpread)
	}

	start := time.Now()
	var wg sync.WaitGroup
	for thread := 0; thread < perfNumThreads; thread++ {
		wg.Add(1)
		go func(thread int) {
			defer wg.Done()
			for i := 0; i < perfOpsPerThread; i++ {
				table := tableName(b.table(thread, i))
				var lock tablelock.ITableLock
				if b.write(thread, i) {
					lock = lockMgr.WriteLock(table, "perf")
				} else {
					lock = lockMgr.ReadLock(table, "perf")
				}

				acquireStart := time.Now()
				if err := lock.Acquire(ctx); err != nil {
					result.errors.Inc(1)
					util.Logger.Warningf("(%s) - error acquiring lock on %s: %v", b.name, table, err)
					continue
				}
				result.acquire.UpdateSince(acquireStart)

				releaseStart := time.Now()
				if err := lock.Release(ctx); err != nil {
					result.errors.Inc(1)
					util.Logger.Warningf("(%s) - error releasing lock on %s: %v", b.name, table, err)
					continue
				}
				result.release.UpdateSince(releaseStart)
			}
		}(thread)
	}
	wg.Wait()
	result.elapsed = time.Since(start)

	// cleanup
	for n := 0; n < perfTableSpread; n++ {
		if err := lockMgr.ResourceDeleted(ctx, tableName(n)); err != nil {
			util.Logger.Warningf("(%s) - error removing table %s: %v", b.name, tableName(n), err)
		}
	}

	return result
}

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// opsPerSec returns the completed acquire/release cycles per second
func (r perfResult) opsPerSec() float64 {
	if r.elapsed <= 0 {
		return 0
	}
	return float64(r.release.Count()) / r.elapsed.Seconds()
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(result perfResult) {
	if result.skipped {
		fmt.Printf("%-12sskipped\n", result.name)
		return
	}

	acquire := result.acquire.Percentiles(perfPercentiles)
	release := result.release.Percentiles(perfPercentiles)

	// Print the formatted result
	fmt.Printf("%-12s%.0f ops/sec\tacquire p50=%s p90=%s p99=%s\trelease p50=%s p99=%s\terrors=%d\n",
		result.name,
		result.opsPerSec(),
		time.Duration(acquire[0]), time.Duration(acquire[1]), time.Duration(acquire[2]),
		time.Duration(release[0]), time.Duration(release[2]),
		result.errors.Count(),
	)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results []perfResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	config := util.GetClientConfig()

	// Write header
	header := []string{
		"Test", "OpsPerSec", "AcquireP50Ns", "AcquireP90Ns", "AcquireP99Ns", "ReleaseP50Ns", "ReleaseP99Ns", "Errors", "Skipped",
		"Coordinator", "Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"ShardID", "Serializer", "Transport",
		"Threads", "Tables", "OpsPerThread",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for _, result := range results {
		acquire := result.acquire.Percentiles(perfPercentiles)
		release := result.release.Percentiles(perfPercentiles)

		row := []string{
			result.name,
			fmt.Sprintf("%.0f", result.opsPerSec()),
			fmt.Sprintf("%.0f", acquire[0]),
			fmt.Sprintf("%.0f", acquire[1]),
			fmt.Sprintf("%.0f", acquire[2]),
			fmt.Sprintf("%.0f", release[0]),
			fmt.Sprintf("%.0f", release[2]),
			strconv.FormatInt(result.errors.Count(), 10),
			strconv.FormatBool(result.skipped),
			viper.GetString("coordinator"),
			strings.Join(config.Transport.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.Transport.RetryCount),
			strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			strconv.FormatUint(util.GetShardID(), 10),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfTableSpread),
			strconv.Itoa(perfOpsPerThread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", result.name, err)
		}
	}

	return nil
}
