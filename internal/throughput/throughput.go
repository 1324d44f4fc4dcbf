// Package throughput measures per-adapter byte rates from OS interface counters.
package throughput

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/net"

	"firestige.xyz/s2onet/internal/config"
	"firestige.xyz/s2onet/internal/log"
	"firestige.xyz/s2onet/internal/metrics"
)

// Counters are cumulative byte counters of one interface.
type Counters struct {
	Interface string
	BytesRecv uint64
	BytesSent uint64
}

// Source reads the current counters of every interface.
type Source func(ctx context.Context) ([]Counters, error)

// SystemSource reads counters through gopsutil.
func SystemSource(ctx context.Context) ([]Counters, error) {
	stats, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("read interface counters: %w", err)
	}
	out := make([]Counters, 0, len(stats))
	for _, st := range stats {
		out = append(out, Counters{Interface: st.Name, BytesRecv: st.BytesRecv, BytesSent: st.BytesSent})
	}
	return out, nil
}

// Sample is the rate of one interface over the last interval.
type Sample struct {
	Interface     string
	At            time.Time
	Interval      time.Duration
	RxBytesPerSec float64
	TxBytesPerSec float64
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithSource replaces the counter source.
func WithSource(src Source) Option {
	return func(s *Sampler) { s.source = src }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(s *Sampler) { s.logger = l }
}

// Sampler turns successive counter readings into rates.
type Sampler struct {
	interval   time.Duration
	interfaces map[string]bool
	source     Source
	now        func() time.Time
	logger     log.Logger

	mu     sync.Mutex
	prev   map[string]Counters
	prevAt time.Time
}

// New creates a sampler for cfg. An empty interface list samples all interfaces.
func New(cfg config.ThroughputConfig, opts ...Option) *Sampler {
	s := &Sampler{
		interval: cfg.Interval,
		source:   SystemSource,
		now:      time.Now,
		logger:   log.GetLogger(),
	}
	if s.interval <= 0 {
		s.interval = time.Second
	}
	if len(cfg.Interfaces) > 0 {
		s.interfaces = make(map[string]bool, len(cfg.Interfaces))
		for _, name := range cfg.Interfaces {
			s.interfaces[name] = true
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sample reads the counters and returns rates since the previous call,
// sorted by interface. The first call only primes the sampler and returns nil.
func (s *Sampler) Sample(ctx context.Context) ([]Sample, error) {
	counters, err := s.source(ctx)
	if err != nil {
		return nil, err
	}
	at := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]Counters, len(counters))
	for _, c := range counters {
		if s.interfaces != nil && !s.interfaces[c.Interface] {
			continue
		}
		current[c.Interface] = c
	}

	prev, prevAt := s.prev, s.prevAt
	s.prev, s.prevAt = current, at
	if prev == nil {
		return nil, nil
	}
	elapsed := at.Sub(prevAt)
	if elapsed <= 0 {
		return nil, nil
	}

	out := make([]Sample, 0, len(current))
	for name, c := range current {
		p, ok := prev[name]
		if !ok {
			continue
		}
		sample := Sample{
			Interface:     name,
			At:            at,
			Interval:      elapsed,
			RxBytesPerSec: rate(p.BytesRecv, c.BytesRecv, elapsed),
			TxBytesPerSec: rate(p.BytesSent, c.BytesSent, elapsed),
		}
		metrics.ThroughputBytesPerSecond.WithLabelValues(name, "rx").Set(sample.RxBytesPerSec)
		metrics.ThroughputBytesPerSecond.WithLabelValues(name, "tx").Set(sample.TxBytesPerSec)
		out = append(out, sample)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Interface < out[j].Interface })
	return out, nil
}

// rate treats a counter that went backwards as reset and reports zero.
func rate(prev, cur uint64, elapsed time.Duration) float64 {
	if cur < prev {
		return 0
	}
	return float64(cur-prev) / elapsed.Seconds()
}

// Run samples every interval and passes each batch to fn until ctx is done.
func (s *Sampler) Run(ctx context.Context, fn func([]Sample)) error {
	if _, err := s.Sample(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			samples, err := s.Sample(ctx)
			if err != nil {
				s.logger.WithError(err).Warn("throughput sample failed")
				continue
			}
			if len(samples) > 0 {
				fn(samples)
			}
		}
	}
}

// FormatRate renders bytes per second with a binary unit.
func FormatRate(bps float64) string {
	units := []string{"B/s", "KiB/s", "MiB/s", "GiB/s"}
	i := 0
	for bps >= 1024 && i < len(units)-1 {
		bps /= 1024
		i++
	}
	return fmt.Sprintf("%.1f %s", bps, units[i])
}
