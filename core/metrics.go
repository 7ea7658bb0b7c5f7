package core

import (
	"context"
	"sync"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// MemoryMetricsRecorder keeps counter totals in process. It backs the
// diagnostics endpoint and tests.
type MemoryMetricsRecorder struct {
	mu       sync.Mutex
	counters map[string]int64
	observed map[string]int
}

func NewMemoryMetricsRecorder() *MemoryMetricsRecorder {
	return &MemoryMetricsRecorder{
		counters: map[string]int64{},
		observed: map[string]int{},
	}
}

func (m *MemoryMetricsRecorder) IncCounter(_ context.Context, name string, value int64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += value
}

func (m *MemoryMetricsRecorder) ObserveHistogram(_ context.Context, name string, _ float64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observed[name]++
}

func (m *MemoryMetricsRecorder) Counter(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

func (m *MemoryMetricsRecorder) Snapshot() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.counters))
	for name, value := range m.counters {
		out[name] = value
	}
	return out
}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var (
	_ MetricsRecorder = NopMetricsRecorder{}
	_ MetricsRecorder = (*MemoryMetricsRecorder)(nil)
)
