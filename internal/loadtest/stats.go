package loadtest

import (
	"sort"
	"sync"
	"time"
)

// Sample types that are not HTTP methods.
const (
	SampleSetup = "SETUP"
	SampleTask  = "TASK"
)

// Sample is one recorded request or task outcome.
type Sample struct {
	Type       string // HTTP method, SampleSetup or SampleTask
	Name       string
	StartTime  time.Time
	Duration   time.Duration
	StatusCode int
	Bytes      int64
	Err        error
	UserID     int
}

// Failed reports whether the sample counts as a failure.
func (s Sample) Failed() bool { return s.Err != nil }

// Recorder receives samples. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Record(Sample)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(Sample)

func (f RecorderFunc) Record(s Sample) { f(s) }

// EntryStats aggregates samples sharing a type and name.
type EntryStats struct {
	Type          string           `json:"type"`
	Name          string           `json:"name"`
	Requests      int64            `json:"requests"`
	Failures      int64            `json:"failures"`
	TotalBytes    int64            `json:"total_bytes"`
	MinLatency    time.Duration    `json:"min_latency"`
	MaxLatency    time.Duration    `json:"max_latency"`
	AvgLatency    time.Duration    `json:"avg_latency"`
	P50Latency    time.Duration    `json:"p50_latency"`
	P95Latency    time.Duration    `json:"p95_latency"`
	P99Latency    time.Duration    `json:"p99_latency"`
	FailureReason map[string]int64 `json:"failure_reasons,omitempty"`
}

// Summary aggregates results from a load test run.
type Summary struct {
	TestName       string           `json:"test_name"`
	StartTime      time.Time        `json:"start_time"`
	EndTime        time.Time        `json:"end_time"`
	Users          int              `json:"users"`
	TotalRequests  int64            `json:"total_requests"`
	SuccessCount   int64            `json:"success_count"`
	FailureCount   int64            `json:"failure_count"`
	TotalBytes     int64            `json:"total_bytes"`
	MinLatency     time.Duration    `json:"min_latency"`
	MaxLatency     time.Duration    `json:"max_latency"`
	AvgLatency     time.Duration    `json:"avg_latency"`
	P50Latency     time.Duration    `json:"p50_latency"`
	P95Latency     time.Duration    `json:"p95_latency"`
	P99Latency     time.Duration    `json:"p99_latency"`
	RequestsPerSec float64          `json:"requests_per_sec"`
	ErrorRate      float64          `json:"error_rate"`
	Errors         map[string]int64 `json:"errors"`
	Entries        []EntryStats     `json:"entries"`
}

type entryKey struct{ typ, name string }

type entry struct {
	requests  int64
	failures  int64
	bytes     int64
	latencies []time.Duration
	reasons   map[string]int64
}

func (e *entry) add(s Sample) {
	e.requests++
	e.bytes += s.Bytes
	e.latencies = append(e.latencies, s.Duration)
	if s.Failed() {
		e.failures++
		if e.reasons == nil {
			e.reasons = make(map[string]int64)
		}
		e.reasons[errorKey(s.Err)]++
	}
}

// Stats aggregates samples per (type, name) and overall.
type Stats struct {
	mu      sync.Mutex
	entries map[entryKey]*entry
	total   entry
}

// NewStats creates an empty aggregator.
func NewStats() *Stats {
	return &Stats{entries: make(map[entryKey]*entry)}
}

// Record adds a sample.
func (s *Stats) Record(sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := entryKey{sample.Type, sample.Name}
	e, ok := s.entries[k]
	if !ok {
		e = &entry{}
		s.entries[k] = e
	}
	e.add(sample)
	s.total.add(sample)
}

// Entry returns the aggregate for one type and name.
func (s *Stats) Entry(typ, name string) (EntryStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[entryKey{typ, name}]
	if !ok {
		return EntryStats{}, false
	}
	return e.stats(typ, name), true
}

// Summarize builds the run summary over everything recorded so far.
func (s *Stats) Summarize(name string, start, end time.Time, users int) *Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := &Summary{
		TestName:      name,
		StartTime:     start,
		EndTime:       end,
		Users:         users,
		TotalRequests: s.total.requests,
		FailureCount:  s.total.failures,
		SuccessCount:  s.total.requests - s.total.failures,
		TotalBytes:    s.total.bytes,
		Errors:        make(map[string]int64),
	}
	for k, v := range s.total.reasons {
		summary.Errors[k] = v
	}

	if d := end.Sub(start).Seconds(); d > 0 {
		summary.RequestsPerSec = float64(summary.TotalRequests) / d
	}
	if summary.TotalRequests > 0 {
		summary.ErrorRate = float64(summary.FailureCount) / float64(summary.TotalRequests)
	}
	summary.MinLatency, summary.MaxLatency, summary.AvgLatency,
		summary.P50Latency, summary.P95Latency, summary.P99Latency = calculatePercentiles(s.total.latencies)

	for k, e := range s.entries {
		summary.Entries = append(summary.Entries, e.stats(k.typ, k.name))
	}
	sort.Slice(summary.Entries, func(i, j int) bool {
		if summary.Entries[i].Name != summary.Entries[j].Name {
			return summary.Entries[i].Name < summary.Entries[j].Name
		}
		return summary.Entries[i].Type < summary.Entries[j].Type
	})
	return summary
}

func (e *entry) stats(typ, name string) EntryStats {
	es := EntryStats{
		Type:       typ,
		Name:       name,
		Requests:   e.requests,
		Failures:   e.failures,
		TotalBytes: e.bytes,
	}
	es.MinLatency, es.MaxLatency, es.AvgLatency, es.P50Latency, es.P95Latency, es.P99Latency = calculatePercentiles(e.latencies)
	if len(e.reasons) > 0 {
		es.FailureReason = make(map[string]int64, len(e.reasons))
		for k, v := range e.reasons {
			es.FailureReason[k] = v
		}
	}
	return es
}

// errorKey truncates error text so similar failures group together.
func errorKey(err error) string {
	key := err.Error()
	if len(key) > 100 {
		key = key[:100]
	}
	return key
}

// calculatePercentiles computes latency statistics.
func calculatePercentiles(latencies []time.Duration) (min, max, avg, p50, p95, p99 time.Duration) {
	if len(latencies) == 0 {
		return
	}

	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	min = sorted[0]
	max = sorted[len(sorted)-1]

	var total time.Duration
	for _, l := range sorted {
		total += l
	}
	avg = total / time.Duration(len(sorted))

	p50 = sorted[len(sorted)*50/100]
	p95 = sorted[len(sorted)*95/100]
	p99 = sorted[len(sorted)*99/100]

	return
}
