package main

import (
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/1F47E/go-geo-tiles/pkg/aggregate"
	"github.com/1F47E/go-geo-tiles/pkg/batch"
	"github.com/1F47E/go-geo-tiles/pkg/errors"
	"github.com/1F47E/go-geo-tiles/pkg/event"
	"github.com/1F47E/go-geo-tiles/pkg/logger"
	"github.com/1F47E/go-geo-tiles/pkg/models"
	"github.com/1F47E/go-geo-tiles/pkg/rtree"
)

// BenchmarkResult summarizes one operation run
type BenchmarkResult struct {
	Operation     string
	TotalOps      int
	TotalDuration time.Duration
	AvgDuration   time.Duration
	OpsPerSec     float64
	MinDuration   time.Duration
	MaxDuration   time.Duration
	TotalResults  int64
	AvgResults    float64
}

// bounds is the area random records and queries are drawn from
type bounds struct {
	minLat, maxLat, minLon, maxLon float64
	minYear, maxYear               float64
}

func (b bounds) location(r *rand.Rand) models.Location {
	return models.Location{
		Lat: b.minLat + r.Float64()*(b.maxLat-b.minLat),
		Lon: b.minLon + r.Float64()*(b.maxLon-b.minLon),
	}
}

func (b bounds) interval(r *rand.Rand) (earliest, latest float64) {
	earliest = b.minYear + r.Float64()*(b.maxYear-b.minYear)
	latest = earliest + r.Float64()*(b.maxYear-earliest)
	return earliest, latest
}

var operations = map[string]bool{
	"encode":    true,
	"decode":    true,
	"aggregate": true,
	"query":     true,
	"all":       true,
}

func validateOp(op string) error {
	if !operations[op] {
		return errors.WithHint(
			errors.Newf("unknown operation %q", op),
			"use one of encode, decode, aggregate, query or all",
		)
	}
	return nil
}

// workerRands derives one generator per worker from src so a seed fixes the
// whole run
func workerRands(src *rand.Rand, workers int) []*rand.Rand {
	rs := make([]*rand.Rand, workers)
	for i := range rs {
		rs[i] = rand.New(rand.NewSource(src.Int63()))
	}
	return rs
}

func main() {
	var (
		numOps  int
		workers int
		seed    int64
		area    bounds
	)

	cmd := &cobra.Command{
		Use:   "benchmark [encode|decode|aggregate|query|all]",
		Short: "Measure tile encoding, aggregation and region query throughput",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Initialize(false, "info"); err != nil {
				return err
			}
			defer logger.Cleanup()
			log := logger.ComponentLogger("benchmark")

			op := "all"
			if len(args) == 1 {
				op = args[0]
			}
			if err := validateOp(op); err != nil {
				return err
			}
			if workers <= 0 {
				workers = runtime.NumCPU()
			}
			src := rand.New(rand.NewSource(seed))

			log.Infow("Generating records", logger.FieldRecords, numOps, logger.FieldWorkers, workers, "seed", seed)
			records := generateRecords(src, numOps, area, workers)

			start := time.Now()
			keys, err := batch.NewEncoder(event.DefaultTiler(), batch.WithWorkers(workers)).Encode(cmd.Context(), records)
			if err != nil {
				return err
			}
			log.Infow("Records encoded", logger.FieldRecords, len(keys), "duration", time.Since(start))

			var results []BenchmarkResult
			run := func(name string) bool { return op == "all" || op == name }

			if run("encode") {
				results = append(results, benchmarkEncode(src, numOps, workers, area))
			}
			if run("decode") {
				results = append(results, benchmarkDecode(src, keys, workers))
			}
			if run("aggregate") || run("query") {
				facets := make([]aggregate.Facet, len(keys))
				for i, k := range keys {
					facets[i] = aggregate.Facet{Path: k.GeoTile, Count: 1, ChronoPath: k.ChronoTile}
				}
				if run("aggregate") {
					results = append(results, benchmarkAggregate(src, facets, workers))
				}
				if run("query") {
					// Deep regions give the index something to hold
					regions := aggregate.New().Aggregate(facets, 12).Regions
					index := rtree.NewRegionIndexWithWorkers(workers)
					if err := index.IndexRegions(regions); err != nil {
						return err
					}
					log.Infow("Region index built", logger.FieldRegions, index.Count())
					results = append(results, benchmarkQuery(src, index, numOps, workers, area))
				}
			}
			for _, r := range results {
				printResult(r, workers)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&numOps, "num", "n", 100000, "Operations per benchmark")
	cmd.Flags().IntVarP(&workers, "workers", "w", runtime.NumCPU(), "Concurrent workers")
	cmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "Random seed")
	// Geographic bounds (default: roughly the Mediterranean)
	cmd.Flags().Float64Var(&area.minLat, "min-lat", 30.0, "Minimum latitude")
	cmd.Flags().Float64Var(&area.maxLat, "max-lat", 46.0, "Maximum latitude")
	cmd.Flags().Float64Var(&area.minLon, "min-lon", -6.0, "Minimum longitude")
	cmd.Flags().Float64Var(&area.maxLon, "max-lon", 36.0, "Maximum longitude")
	cmd.Flags().Float64Var(&area.minYear, "min-year", -10000, "Earliest year")
	cmd.Flags().Float64Var(&area.maxYear, "max-year", 2000, "Latest year")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#BD93F9")).
			Padding(1, 2).
			MarginTop(1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#50FA7B"))

	statStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFB86C"))
)

func printResult(result BenchmarkResult, workers int) {
	stat := func(format string, args ...any) string {
		return statStyle.Render(fmt.Sprintf(format, args...))
	}
	content := fmt.Sprintf(
		"Total operations: %s\n"+
			"Total duration: %s\n"+
			"Average duration: %s\n"+
			"Operations/second: %s\n"+
			"Min / max duration: %s / %s\n"+
			"Total results: %s\n"+
			"Avg results/op: %s\n"+
			"Workers: %s of %s cores",
		stat("%d", result.TotalOps),
		stat("%v", result.TotalDuration),
		stat("%v", result.AvgDuration),
		stat("%.2f", result.OpsPerSec),
		stat("%v", result.MinDuration), stat("%v", result.MaxDuration),
		stat("%d", result.TotalResults),
		stat("%.2f", result.AvgResults),
		stat("%d", workers), stat("%d", runtime.NumCPU()),
	)
	fmt.Println(boxStyle.Render(titleStyle.Render(result.Operation) + "\n\n" + content))
}

// generateRecords builds n random records in parallel. Each worker owns a
// fixed slice of the output, so the same src yields the same records.
func generateRecords(src *rand.Rand, n int, area bounds, workers int) []batch.Record {
	records := make([]batch.Record, n)
	rs := workerRands(src, workers)

	perWorker := n / workers
	remainder := n % workers

	var wg sync.WaitGroup

	start := 0
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		size := perWorker
		if w < remainder {
			size++
		}
		go func(r *rand.Rand, lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				loc := area.location(r)
				earliest, latest := area.interval(r)
				records[i] = batch.Record{
					Point:    models.Point{ID: fmt.Sprintf("record_%d", i), Location: &loc},
					Earliest: earliest,
					Latest:   latest,
				}
			}
		}(rs[w], start, start+size)
		start += size
	}
	wg.Wait()

	return records
}

// measure runs op numOps times on a pool of workers. op returns the number
// of results it produced, or -1 on failure.
func measure(src *rand.Rand, name string, numOps, workers int, op func(r *rand.Rand, i int) int) BenchmarkResult {
	var (
		totalResults int64
		minDuration  = time.Hour
		maxDuration  time.Duration
		sumDuration  time.Duration
		succeeded    int
		mu           sync.Mutex
	)

	startTime := time.Now()

	opCh := make(chan int, workers)
	var wg sync.WaitGroup

	wg.Add(workers)
	for _, r := range workerRands(src, workers) {
		go func(r *rand.Rand) {
			defer wg.Done()
			for i := range opCh {
				opStart := time.Now()
				n := op(r, i)
				opDuration := time.Since(opStart)
				if n < 0 {
					continue
				}

				atomic.AddInt64(&totalResults, int64(n))

				mu.Lock()
				succeeded++
				sumDuration += opDuration
				minDuration = min(minDuration, opDuration)
				maxDuration = max(maxDuration, opDuration)
				mu.Unlock()
			}
		}(r)
	}

	for i := 0; i < numOps; i++ {
		opCh <- i
	}
	close(opCh)

	wg.Wait()
	totalDuration := time.Since(startTime)

	result := BenchmarkResult{
		Operation:     name,
		TotalOps:      numOps,
		TotalDuration: totalDuration,
		MinDuration:   minDuration,
		MaxDuration:   maxDuration,
		TotalResults:  totalResults,
	}
	if succeeded > 0 {
		result.AvgDuration = sumDuration / time.Duration(succeeded)
	}
	if numOps > 0 {
		result.OpsPerSec = float64(numOps) / totalDuration.Seconds()
		result.AvgResults = float64(totalResults) / float64(numOps)
	}
	return result
}

func benchmarkEncode(src *rand.Rand, numOps, workers int, area bounds) BenchmarkResult {
	tiler := event.DefaultTiler()
	return measure(src, "encode", numOps, workers, func(r *rand.Rand, _ int) int {
		loc := area.location(r)
		earliest, latest := area.interval(r)
		if _, err := tiler.Encode(loc.Lat, loc.Lon, latest, earliest, ""); err != nil {
			return -1
		}
		return 1
	})
}

func benchmarkDecode(src *rand.Rand, keys []batch.Keys, workers int) BenchmarkResult {
	tiler := event.DefaultTiler()
	return measure(src, "decode", len(keys), workers, func(_ *rand.Rand, i int) int {
		if _, err := tiler.Decode(keys[i].EventTile); err != nil {
			return -1
		}
		return 1
	})
}

func benchmarkAggregate(src *rand.Rand, facets []aggregate.Facet, workers int) BenchmarkResult {
	agg := aggregate.New()
	// Each op aggregates a window of facets, the size of one search page
	const window = 1000
	ops := max(len(facets)/window, 1)
	return measure(src, "aggregate", ops, workers, func(_ *rand.Rand, i int) int {
		lo := i * window
		hi := min(lo+window, len(facets))
		return len(agg.Aggregate(facets[lo:hi], 0).Regions)
	})
}

func benchmarkQuery(src *rand.Rand, index *rtree.RegionIndex, numOps, workers int, area bounds) BenchmarkResult {
	const boxSize = 1.0
	return measure(src, "query", numOps, workers, func(r *rand.Rand, i int) int {
		loc := area.location(r)
		switch i % 3 {
		case 0:
			box := models.NewBoundingBox(loc.Lat, loc.Lon, loc.Lat+boxSize, loc.Lon+boxSize)
			regions, err := index.QueryBox(box)
			if err != nil {
				return -1
			}
			return len(regions)
		case 1:
			regions, err := index.QueryRadius(loc, 50)
			if err != nil {
				return -1
			}
			return len(regions)
		default:
			return len(index.NearestNeighbors(loc, 10))
		}
	})
}
