package metrics

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// defaultSampleCap bounds the latency ring buffer. Keeping every sample for
// the life of the process is a slow leak under sustained load, so old
// samples are overwritten once the buffer is full.
const defaultSampleCap = 4096

// Recorder collects request counters and latency samples for one server
// instance. Counters are atomic; the sample buffer is mutex-guarded. Every
// method is safe under concurrent use from request handlers.
type Recorder struct {
	requestCount atomic.Uint64
	errorCount   atomic.Uint64
	tokenCount   atomic.Uint64

	mu      sync.Mutex
	samples []float64 // latency samples in ms, ring buffer
	next    int       // overwrite position once len == cap
	full    bool

	startedAt time.Time
	now       func() time.Time
}

// Snapshot is a point-in-time view of the recorder. Fields are read
// independently; cross-field consistency is not guaranteed and not needed.
type Snapshot struct {
	RequestCount uint64
	ErrorCount   uint64
	TokenCount   uint64
	MeanMs       float64
	MedianMs     float64
	P90Ms        float64
	P95Ms        float64
	P99Ms        float64
}

// NewRecorder returns a Recorder with the default sample capacity.
func NewRecorder() *Recorder { return NewRecorderWithCap(defaultSampleCap) }

// NewRecorderWithCap returns a Recorder holding at most sampleCap latency
// samples.
func NewRecorderWithCap(sampleCap int) *Recorder {
	if sampleCap <= 0 {
		sampleCap = defaultSampleCap
	}
	return &Recorder{
		samples:   make([]float64, 0, sampleCap),
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// RecordRequestStart marks the beginning of a request and returns the
// timestamp to pass back into RecordSuccess or RecordError.
func (r *Recorder) RecordRequestStart() time.Time { return r.now() }

// RecordSuccess counts a completed request and its token consumption, and
// appends the observed latency.
func (r *Recorder) RecordSuccess(start time.Time, tokens int) {
	r.requestCount.Add(1)
	if tokens > 0 {
		r.tokenCount.Add(uint64(tokens))
	}
	ms := float64(r.now().Sub(start)) / float64(time.Millisecond)
	r.mu.Lock()
	if len(r.samples) < cap(r.samples) {
		r.samples = append(r.samples, ms)
	} else {
		r.samples[r.next] = ms
		r.next = (r.next + 1) % cap(r.samples)
		r.full = true
	}
	r.mu.Unlock()
}

// RecordError counts a failed request. Latency of failures is not sampled.
func (r *Recorder) RecordError(start time.Time) {
	_ = start
	r.requestCount.Add(1)
	r.errorCount.Add(1)
}

// SampleCount returns the number of latency samples currently held.
func (r *Recorder) SampleCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// UptimeSeconds returns whole seconds since the recorder was created.
func (r *Recorder) UptimeSeconds() int64 {
	return int64(r.now().Sub(r.startedAt) / time.Second)
}

// Counters returns the three counters without touching the sample buffer.
func (r *Recorder) Counters() (requests, errors, tokens uint64) {
	return r.requestCount.Load(), r.errorCount.Load(), r.tokenCount.Load()
}

// Snapshot computes aggregate statistics over the current samples.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	sorted := make([]float64, len(r.samples))
	copy(sorted, r.samples)
	r.mu.Unlock()
	sort.Float64s(sorted)

	var mean float64
	if len(sorted) > 0 {
		var sum float64
		for _, v := range sorted {
			sum += v
		}
		mean = sum / float64(len(sorted))
	}
	return Snapshot{
		RequestCount: r.requestCount.Load(),
		ErrorCount:   r.errorCount.Load(),
		TokenCount:   r.tokenCount.Load(),
		MeanMs:       mean,
		MedianMs:     percentile(sorted, 50),
		P90Ms:        percentile(sorted, 90),
		P95Ms:        percentile(sorted, 95),
		P99Ms:        percentile(sorted, 99),
	}
}

// percentile computes p over sorted samples by linear interpolation between
// the two nearest order statistics. Empty input yields 0; a single sample
// yields itself; an index past the end clamps to the last element.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	switch n {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}
	k := float64(n-1) * p / 100
	floor := int(math.Floor(k))
	ceil := int(math.Ceil(k))
	if ceil >= n {
		return sorted[n-1]
	}
	if floor == ceil {
		return sorted[floor]
	}
	return sorted[floor]*(float64(ceil)-k) + sorted[ceil]*(k-float64(floor))
}
