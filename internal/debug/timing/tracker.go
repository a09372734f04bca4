package timing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

type timingKey struct{}

type TimingInfo struct {
	Operation string
	StartTime time.Time
}

// Summary describes the recorded durations of one operation, in milliseconds.
type Summary struct {
	Operation string
	Count     int
	MeanMs    float64
	MedianMs  float64
	P95Ms     float64
	MaxMs     float64
}

// Tracker collects per-operation durations for the live loop. It keeps at most window samples
// per operation so long runs report recent behavior.
type Tracker struct {
	timings map[string][]time.Duration
	window  int
	mu      sync.RWMutex
}

func NewTracker(window int) *Tracker {
	if window <= 0 {
		window = 256
	}
	return &Tracker{
		timings: make(map[string][]time.Duration),
		window:  window,
	}
}

func (tt *Tracker) StartTiming(operation string) context.Context {
	return context.WithValue(context.Background(), timingKey{}, TimingInfo{
		Operation: operation,
		StartTime: time.Now(),
	})
}

func (tt *Tracker) EndTiming(ctx context.Context) {
	timingInfo, ok := ctx.Value(timingKey{}).(TimingInfo)
	if !ok {
		return
	}
	tt.Record(timingInfo.Operation, time.Since(timingInfo.StartTime))
}

// Record adds one sample directly.
func (tt *Tracker) Record(operation string, d time.Duration) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	samples := append(tt.timings[operation], d)
	if len(samples) > tt.window {
		samples = samples[len(samples)-tt.window:]
	}
	tt.timings[operation] = samples
}

func (tt *Tracker) GetTimings(operation string) []time.Duration {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	timings := tt.timings[operation]
	if timings == nil {
		return nil
	}

	result := make([]time.Duration, len(timings))
	copy(result, timings)
	return result
}

// Summaries returns one entry per operation, sorted by name.
func (tt *Tracker) Summaries() []Summary {
	tt.mu.RLock()
	ops := make([]string, 0, len(tt.timings))
	for op := range tt.timings {
		ops = append(ops, op)
	}
	tt.mu.RUnlock()
	sort.Strings(ops)

	out := make([]Summary, 0, len(ops))
	for _, op := range ops {
		if s, ok := tt.Summarize(op); ok {
			out = append(out, s)
		}
	}
	return out
}

func (tt *Tracker) Summarize(operation string) (Summary, bool) {
	timings := tt.GetTimings(operation)
	if len(timings) == 0 {
		return Summary{}, false
	}

	ms := make(stats.Float64Data, len(timings))
	for i, d := range timings {
		ms[i] = float64(d) / float64(time.Millisecond)
	}

	// The inputs are non-empty, which is the only failure mode of these functions.
	mean, _ := ms.Mean()
	median, _ := ms.Median()
	p95, _ := ms.Percentile(95)
	maximum, _ := ms.Max()

	return Summary{
		Operation: operation,
		Count:     len(timings),
		MeanMs:    mean,
		MedianMs:  median,
		P95Ms:     p95,
		MaxMs:     maximum,
	}, true
}
