// Command loadtest drives GET /api/v1/search on a running searcher with a
// fixed number of concurrent workers and reports throughput, latency
// percentiles and how often queries came back empty.
//
// Usage:
//
//	go run ./cmd/loadtest -queries queries.txt [-url http://localhost:8080] [-concurrency 16] [-duration 30s]
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type options struct {
	baseURL     string
	concurrency int
	duration    time.Duration
	k           int
	multiOcc    bool
	queries     []string
}

type stats struct {
	total      atomic.Int64
	failed     atomic.Int64
	empty      atomic.Int64
	mu         sync.Mutex
	latencies  []time.Duration
	statuses   map[int]int64
	serverPops int64
}

func (s *stats) record(d time.Duration, status int, returned int, pops int) {
	s.total.Add(1)
	if status != http.StatusOK {
		s.failed.Add(1)
	} else if returned == 0 {
		s.empty.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.statuses[status]++
	s.serverPops += int64(pops)
	s.mu.Unlock()
}

var defaultQueries = []string{
	"wavelet tree",
	"suffix array",
	"document retrieval",
	"top k",
	"compressed index",
	"\"range query\" rank",
	"bm25 ranking",
	"language model",
}

func main() {
	var o options
	queryFile := flag.String("queries", "", "file with one free-text query per line (or \"qid;query\")")
	flag.StringVar(&o.baseURL, "url", "http://localhost:8080", "base URL of the search service")
	flag.IntVar(&o.concurrency, "concurrency", 10, "number of concurrent workers")
	flag.DurationVar(&o.duration, "duration", 30*time.Second, "test duration")
	flag.IntVar(&o.k, "k", 10, "results per query")
	flag.BoolVar(&o.multiOcc, "multi-occ", false, "request multi-occurrence suppression")
	flag.Parse()

	o.queries = defaultQueries
	if *queryFile != "" {
		qs, err := readQueries(*queryFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading queries: %v\n", err)
			os.Exit(1)
		}
		o.queries = qs
	}
	if len(o.queries) == 0 {
		fmt.Fprintln(os.Stderr, "no queries to run")
		os.Exit(1)
	}

	fmt.Println("=== Top-k Search Load Test ===")
	fmt.Printf("Target:      %s\n", o.baseURL)
	fmt.Printf("Concurrency: %d\n", o.concurrency)
	fmt.Printf("Duration:    %s\n", o.duration)
	fmt.Printf("Queries:     %d unique, k=%d\n\n", len(o.queries), o.k)

	s := run(o)
	if !report(s, o.duration) {
		os.Exit(1)
	}
}

// readQueries accepts both plain lines and the querier's "qid;query" format.
func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var qs []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if id, rest, ok := strings.Cut(line, ";"); ok {
			if _, err := strconv.ParseUint(id, 10, 64); err == nil {
				line = strings.TrimSpace(rest)
			}
		}
		if line != "" {
			qs = append(qs, line)
		}
	}
	return qs, sc.Err()
}

func run(o options) *stats {
	s := &stats{statuses: make(map[int]int64)}
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        o.concurrency * 2,
			MaxIdleConnsPerHost: o.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.duration)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < o.concurrency; w++ {
		g.Go(func() error {
			for i := w; gctx.Err() == nil; i++ {
				query(gctx, client, o, o.queries[i%len(o.queries)], s)
			}
			return nil
		})
	}
	_ = g.Wait()
	return s
}

type searchResponse struct {
	Results []json.RawMessage `json:"results"`
	Stats   struct {
		Pops int `json:"pops"`
	} `json:"stats"`
}

func query(ctx context.Context, client *http.Client, o options, q string, s *stats) {
	v := url.Values{}
	v.Set("q", q)
	v.Set("k", strconv.Itoa(o.k))
	if o.multiOcc {
		v.Set("multi_occ", "true")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/v1/search?"+v.Encode(), nil)
	if err != nil {
		return
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			s.record(time.Since(start), 0, 0, 0)
		}
		return
	}
	defer resp.Body.Close()
	var body searchResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	s.record(time.Since(start), resp.StatusCode, len(body.Results), body.Stats.Pops)
}

func report(s *stats, duration time.Duration) bool {
	total := s.total.Load()
	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Failed:          %d\n", s.failed.Load())
	fmt.Printf("Empty Results:   %d\n", s.empty.Load())
	if total == 0 {
		fmt.Println("\nWARNING: No requests completed. Is the service running?")
		return false
	}
	fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("Avg Pops:        %.1f\n", float64(s.serverPops)/float64(total))

	lat := slices.Clone(s.latencies)
	slices.Sort(lat)
	var sum time.Duration
	for _, l := range lat {
		sum += l
	}
	fmt.Println("\n=== Latency ===")
	fmt.Printf("Min:    %s\n", lat[0])
	fmt.Printf("Avg:    %s\n", sum/time.Duration(len(lat)))
	for _, p := range []int{50, 90, 95, 99} {
		fmt.Printf("P%d:    %s\n", p, lat[min(len(lat)-1, p*len(lat)/100)])
	}
	fmt.Printf("Max:    %s\n", lat[len(lat)-1])

	fmt.Println("\n=== Status Codes ===")
	codes := make([]int, 0, len(s.statuses))
	for code := range s.statuses {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, s.statuses[code])
	}
	return true
}
