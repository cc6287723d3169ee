// Package metrics records per-handler execution statistics of the event bus.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// HandlerMetrics receives the outcome of every handler invocation.
// Implementations must be safe for concurrent use.
type HandlerMetrics interface {
	RecordSuccess(handler string, d time.Duration)
	RecordFailure(handler string, d time.Duration)
	// RecordTimeout is reported in addition to RecordFailure.
	RecordTimeout(handler string)
	// RecordRetry is reported once per dead-letter replay of handler.
	RecordRetry(handler string, succeeded bool)
}

type nop struct{}

func (nop) RecordSuccess(string, time.Duration) {}
func (nop) RecordFailure(string, time.Duration) {}
func (nop) RecordTimeout(string)                {}
func (nop) RecordRetry(string, bool)            {}

// Nop returns a HandlerMetrics that discards everything.
func Nop() HandlerMetrics {
	return nop{}
}

// Stats are the counters of one handler.
type Stats struct {
	Handler            string
	Executions         uint64
	Successes          uint64
	Failures           uint64
	Timeouts           uint64
	Retries            uint64
	SuccessfulRetries  uint64
	FailedRetries      uint64
	TotalExecutionTime time.Duration
	MinExecutionTime   time.Duration
	MaxExecutionTime   time.Duration
}

// AvgExecutionTime is zero when the handler never ran.
func (s Stats) AvgExecutionTime() time.Duration {
	if s.Executions == 0 {
		return 0
	}
	return s.TotalExecutionTime / time.Duration(s.Executions)
}

// SuccessRate is the percentage of successful executions.
func (s Stats) SuccessRate() float64 {
	if s.Executions == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Executions) * 100
}

// RetryRate is the number of retries per 100 executions.
func (s Stats) RetryRate() float64 {
	if s.Executions == 0 {
		return 0
	}
	return float64(s.Retries) / float64(s.Executions) * 100
}

// Summary aggregates the stats of all handlers.
type Summary struct {
	Handlers         int
	Executions       uint64
	Successes        uint64
	Failures         uint64
	Timeouts         uint64
	AvgExecutionTime time.Duration
	// Slowest has the highest maximum execution time.
	Slowest *Stats
	// MostFailing has the lowest success rate.
	MostFailing *Stats
}

// SuccessRate is the overall percentage of successful executions.
func (s Summary) SuccessRate() float64 {
	if s.Executions == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Executions) * 100
}

// Registry keeps Stats in memory.
type Registry struct {
	mu    sync.Mutex
	stats map[string]*Stats
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{stats: make(map[string]*Stats)}
}

var _ HandlerMetrics = (*Registry)(nil)

func (r *Registry) entry(handler string) *Stats {
	s, ok := r.stats[handler]
	if !ok {
		s = &Stats{Handler: handler}
		r.stats[handler] = s
	}
	return s
}

func (r *Registry) execution(handler string, d time.Duration, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.entry(handler)
	if s.Executions == 0 || d < s.MinExecutionTime {
		s.MinExecutionTime = d
	}
	if d > s.MaxExecutionTime {
		s.MaxExecutionTime = d
	}
	s.Executions++
	s.TotalExecutionTime += d
	if success {
		s.Successes++
	} else {
		s.Failures++
	}
}

func (r *Registry) RecordSuccess(handler string, d time.Duration) {
	r.execution(handler, d, true)
}

func (r *Registry) RecordFailure(handler string, d time.Duration) {
	r.execution(handler, d, false)
}

func (r *Registry) RecordTimeout(handler string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(handler).Timeouts++
}

func (r *Registry) RecordRetry(handler string, succeeded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.entry(handler)
	s.Retries++
	if succeeded {
		s.SuccessfulRetries++
	} else {
		s.FailedRetries++
	}
}

// Handler returns a copy of the stats of handler.
func (r *Registry) Handler(handler string) (Stats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stats[handler]
	if !ok {
		return Stats{}, false
	}
	return *s, true
}

// All returns a copy of every handler's stats sorted by name.
func (r *Registry) All() []Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Stats, 0, len(r.stats))
	for _, s := range r.stats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handler < out[j].Handler })
	return out
}

// Reset drops all recorded stats.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.stats)
}

// Summary aggregates the stats of all handlers.
func (r *Registry) Summary() Summary {
	all := r.All()
	if len(all) == 0 {
		return Summary{}
	}

	sum := Summary{Handlers: len(all)}
	var total time.Duration
	for i := range all {
		s := all[i]
		sum.Executions += s.Executions
		sum.Successes += s.Successes
		sum.Failures += s.Failures
		sum.Timeouts += s.Timeouts
		total += s.TotalExecutionTime

		if sum.Slowest == nil || s.MaxExecutionTime > sum.Slowest.MaxExecutionTime {
			sum.Slowest = &all[i]
		}
		if s.Executions > 0 && (sum.MostFailing == nil || s.SuccessRate() < sum.MostFailing.SuccessRate()) {
			sum.MostFailing = &all[i]
		}
	}
	if sum.Executions > 0 {
		sum.AvgExecutionTime = total / time.Duration(sum.Executions)
	}
	return sum
}

type multi []HandlerMetrics

func (m multi) RecordSuccess(h string, d time.Duration) {
	for _, r := range m {
		r.RecordSuccess(h, d)
	}
}

func (m multi) RecordFailure(h string, d time.Duration) {
	for _, r := range m {
		r.RecordFailure(h, d)
	}
}

func (m multi) RecordTimeout(h string) {
	for _, r := range m {
		r.RecordTimeout(h)
	}
}

func (m multi) RecordRetry(h string, ok bool) {
	for _, r := range m {
		r.RecordRetry(h, ok)
	}
}

// Multi fans every record out to all recorders.
func Multi(recorders ...HandlerMetrics) HandlerMetrics {
	return multi(recorders)
}
