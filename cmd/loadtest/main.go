// Command loadtest drives a running termsearch server with concurrent
// single-term queries and prints throughput and latency percentiles.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/termsearch/pkg/client"
)

type Config struct {
	Addr        string
	Concurrency int
	Duration    time.Duration
	Timeout     time.Duration
	Terms       []string
}

type Stats struct {
	totalRequests atomic.Int64
	errorCount    atomic.Int64
	serverErrors  atomic.Int64
	zeroResults   atomic.Int64
	latenciesMu   sync.Mutex
	latencies     []time.Duration
}

func NewStats() *Stats {
	return &Stats{latencies: make([]time.Duration, 0, 100000)}
}

func (s *Stats) RecordRequest(duration time.Duration, res *client.Result, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		if errors.Is(err, client.ErrServer) {
			s.serverErrors.Add(1)
		}
		return
	}
	if res.Count == 0 {
		s.zeroResults.Add(1)
	}
	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()
}

func main() {
	addr := flag.String("addr", "127.0.0.1:9000", "address of the termsearch server")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	timeout := flag.Duration("timeout", 5*time.Second, "per-request timeout")
	terms := flag.String("terms", "the,cat,dog,index,search,hello,world", "comma-separated terms to query")
	flag.Parse()

	cfg := Config{
		Addr:        *addr,
		Concurrency: *concurrency,
		Duration:    *duration,
		Timeout:     *timeout,
		Terms:       splitTerms(*terms),
	}
	if len(cfg.Terms) == 0 || cfg.Concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "need at least one term and one worker")
		os.Exit(1)
	}

	fmt.Println("=== termsearch Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.Addr)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Terms:       %d unique\n", len(cfg.Terms))
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	start := time.Now()
	stats := runLoadTest(ctx, cfg)
	if !printReport(os.Stdout, stats, time.Since(start)) {
		os.Exit(1)
	}
}

func splitTerms(raw string) []string {
	var terms []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

func runLoadTest(ctx context.Context, cfg Config) *Stats {
	stats := NewStats()
	c := client.New(cfg.Addr, cfg.Timeout)

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := range cfg.Concurrency {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				term := cfg.Terms[i%len(cfg.Terms)]
				start := time.Now()
				res, err := c.Query(ctx, term)
				if ctx.Err() != nil {
					return nil
				}
				stats.RecordRequest(time.Since(start), res, err)
			}
			return nil
		})
	}
	g.Wait()
	return stats
}

// printReport writes the summary and reports whether any request succeeded.
func printReport(w io.Writer, stats *Stats, elapsed time.Duration) bool {
	total := stats.totalRequests.Load()
	failed := stats.errorCount.Load()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", total-failed)
	fmt.Fprintf(w, "Errors:          %d (server-reported %d)\n", failed, stats.serverErrors.Load())
	fmt.Fprintf(w, "Zero Results:    %d\n", stats.zeroResults.Load())
	if total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(failed)/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/elapsed.Seconds())
	}

	stats.latenciesMu.Lock()
	latencies := slices.Clone(stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", avg)
		fmt.Fprintf(w, "P50:    %s\n", percentile(latencies, 50))
		fmt.Fprintf(w, "P90:    %s\n", percentile(latencies, 90))
		fmt.Fprintf(w, "P99:    %s\n", percentile(latencies, 99))
		fmt.Fprintf(w, "Max:    %s\n", latencies[len(latencies)-1])
	}

	if total == failed {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "WARNING: No requests completed. Is the server running?")
		return false
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
