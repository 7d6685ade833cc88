package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/panjf2000/ants/v2"
	"github.com/spf13/cobra"

	"github.com/srediag/namedipc/pkg/event"
)

const (
	benchRing        = 1024
	benchPeerTimeout = 5 * time.Second
)

// pair is one ping-pong lane: the driver signals ping and waits on pong, the
// responder does the opposite.
type pair struct {
	ping, pong *event.Event
}

func openPair(name string, lane int) (*pair, error) {
	ping, err := event.Create(fmt.Sprintf("%s.%d.ping", name, lane), false)
	if err != nil {
		return nil, err
	}
	pong, err := event.Create(fmt.Sprintf("%s.%d.pong", name, lane), false)
	if err != nil {
		return nil, errors.Join(err, ping.Destroy())
	}
	// drop signals left over by an interrupted run
	_ = ping.Wait(0)
	_ = pong.Wait(0)
	return &pair{ping: ping, pong: pong}, nil
}

func (p *pair) destroy() error {
	return errors.Join(p.ping.Destroy(), p.pong.Destroy())
}

func (p *pair) respond(n int) {
	for i := 0; i < n; i++ {
		if err := p.ping.Wait(benchPeerTimeout); err != nil {
			log.Warnf("bench responder %s: %v", p.ping.Name(), err)
			return
		}
		if err := p.pong.Signal(); err != nil {
			log.Warnf("bench responder %s: %v", p.pong.Name(), err)
			return
		}
	}
}

// drive sends n round trips and puts each latency, or the first error, on rb.
func (p *pair) drive(n int, rb *queue.RingBuffer) {
	for i := 0; i < n; i++ {
		start := time.Now()
		err := p.ping.Signal()
		if err == nil {
			err = p.pong.Wait(benchPeerTimeout)
		}
		if err != nil {
			_ = rb.Put(err)
			return
		}
		if rb.Put(time.Since(start)) != nil {
			return
		}
	}
}

// benchResult summarizes round-trip latencies.
type benchResult struct {
	Count              int
	Elapsed            time.Duration
	Min, P50, P90, P99 time.Duration
	Max                time.Duration
}

func (r benchResult) write(w io.Writer) {
	fmt.Fprintf(w, "round trips: %d in %s (%.0f/s)\n", r.Count, r.Elapsed.Round(time.Millisecond),
		float64(r.Count)/r.Elapsed.Seconds())
	fmt.Fprintf(w, "min %s  p50 %s  p90 %s  p99 %s  max %s\n", r.Min, r.P50, r.P90, r.P99, r.Max)
}

// percentile returns the nearest-rank percentile of sorted samples.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

func summarize(samples []time.Duration, elapsed time.Duration) benchResult {
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	r := benchResult{Count: len(samples), Elapsed: elapsed}
	if len(samples) > 0 {
		r.Min = samples[0]
		r.Max = samples[len(samples)-1]
		r.P50 = percentile(samples, 50)
		r.P90 = percentile(samples, 90)
		r.P99 = percentile(samples, 99)
	}
	return r
}

func runBench(name string, iterations, workers int) (res benchResult, err error) {
	if iterations <= 0 || workers <= 0 {
		return benchResult{}, errors.New("iterations and workers must be positive")
	}
	pairs := make([]*pair, 0, workers)
	rb := queue.NewRingBuffer(benchRing)
	var wg sync.WaitGroup
	// The lanes must be idle before their events are unmapped.
	defer func() {
		rb.Dispose()
		wg.Wait()
		for _, p := range pairs {
			err = errors.Join(err, p.destroy())
		}
	}()
	for lane := 0; lane < workers; lane++ {
		p, err := openPair(name, lane)
		if err != nil {
			return benchResult{}, err
		}
		pairs = append(pairs, p)
	}

	pool, err := ants.NewPool(2*workers, ants.WithPreAlloc(true))
	if err != nil {
		return benchResult{}, err
	}
	defer pool.Release()

	submit := func(task func()) error {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			task()
		})
		if err != nil {
			wg.Done()
		}
		return err
	}

	start := time.Now()
	for _, p := range pairs {
		p := p
		if err := submit(func() { p.respond(iterations) }); err != nil {
			return benchResult{}, err
		}
		if err := submit(func() { p.drive(iterations, rb) }); err != nil {
			return benchResult{}, err
		}
	}

	total := iterations * workers
	samples := make([]time.Duration, 0, total)
	for len(samples) < total {
		item, err := rb.Get()
		if err != nil {
			return benchResult{}, err
		}
		switch v := item.(type) {
		case time.Duration:
			samples = append(samples, v)
		case error:
			return benchResult{}, v
		}
	}
	return summarize(samples, time.Since(start)), nil
}

func (c *cli) benchCmd() *cobra.Command {
	var (
		name       string
		iterations int
		workers    int
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure event round-trip latency with in-process ping-pong",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := runBench(name, iterations, workers)
			if err != nil {
				return err
			}
			res.write(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "namedipc-bench", "name prefix for the bench events")
	cmd.Flags().IntVar(&iterations, "iterations", 10000, "round trips per worker")
	cmd.Flags().IntVar(&workers, "workers", 1, "concurrent ping-pong lanes")
	return cmd
}
