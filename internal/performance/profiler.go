// Package performance times named server operations (tile reconciliation,
// blueprint extraction and stamping, world scans, exports) and aggregates
// per-operation statistics for the admin metrics endpoint.
package performance

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// Profiler aggregates timings keyed by operation name. All methods are safe
// for concurrent use. A disabled profiler records nothing and Start returns
// nil, which Operation.End tolerates.
type Profiler struct {
	mu      sync.RWMutex
	metrics map[string]*Metric
	enabled bool
	started time.Time
}

// Metric holds the aggregate timing statistics of one operation.
type Metric struct {
	Name      string
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
	LastTime  time.Duration
	LastCall  time.Time
}

// AverageTime returns mean duration per call, zero when nothing was recorded.
func (m *Metric) AverageTime() time.Duration {
	if m.Count == 0 {
		return 0
	}
	return m.TotalTime / time.Duration(m.Count)
}

// Operation is one in-flight timing started by Profiler.Start.
type Operation struct {
	profiler *Profiler
	name     string
	start    time.Time
}

// NewProfiler creates a profiler; pass false to make it a no-op.
func NewProfiler(enabled bool) *Profiler {
	return &Profiler{
		metrics: make(map[string]*Metric),
		enabled: enabled,
		started: time.Now(),
	}
}

// Start begins timing a named operation. Returns nil when profiling is
// disabled; End on a nil Operation is a no-op.
func (p *Profiler) Start(name string) *Operation {
	if !p.IsEnabled() {
		return nil
	}
	return &Operation{profiler: p, name: name, start: time.Now()}
}

// End stops the timing and folds it into the operation's metric.
func (o *Operation) End() {
	if o == nil {
		return
	}
	o.profiler.Record(o.name, time.Since(o.start))
}

// Record folds an externally measured duration into an operation's metric.
func (p *Profiler) Record(name string, duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}

	metric, ok := p.metrics[name]
	if !ok {
		metric = &Metric{Name: name, MinTime: duration, MaxTime: duration}
		p.metrics[name] = metric
	}

	metric.Count++
	metric.TotalTime += duration
	metric.LastTime = duration
	metric.LastCall = time.Now()
	if duration < metric.MinTime {
		metric.MinTime = duration
	}
	if duration > metric.MaxTime {
		metric.MaxTime = duration
	}
}

// GetMetric returns a snapshot of one operation's statistics, nil if the
// operation was never recorded.
func (p *Profiler) GetMetric(name string) *Metric {
	p.mu.RLock()
	defer p.mu.RUnlock()
	metric, ok := p.metrics[name]
	if !ok {
		return nil
	}
	snapshot := *metric
	return &snapshot
}

// GetMetrics returns a snapshot of every recorded metric.
func (p *Profiler) GetMetrics() map[string]*Metric {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make(map[string]*Metric, len(p.metrics))
	for name, metric := range p.metrics {
		snapshot := *metric
		result[name] = &snapshot
	}
	return result
}

// Reset discards all metrics and restarts the report clock.
func (p *Profiler) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics = make(map[string]*Metric)
	p.started = time.Now()
}

// Report renders a fixed-width table of every metric, sorted by name.
func (p *Profiler) Report() string {
	metrics := p.GetMetrics()
	if len(metrics) == 0 {
		return "No performance metrics recorded"
	}

	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	p.mu.RLock()
	started := p.started
	p.mu.RUnlock()

	report := fmt.Sprintf("\n=== Performance Report (since %s) ===\n", started.Format(time.RFC3339))
	report += fmt.Sprintf("%-32s %8s %12s %12s %12s %12s\n", "Operation", "Count", "Avg", "Min", "Max", "Last")
	for _, name := range names {
		m := metrics[name]
		report += fmt.Sprintf("%-32s %8d %12s %12s %12s %12s\n",
			name,
			m.Count,
			m.AverageTime().Round(time.Microsecond),
			m.MinTime.Round(time.Microsecond),
			m.MaxTime.Round(time.Microsecond),
			m.LastTime.Round(time.Microsecond),
		)
	}
	report += fmt.Sprintf("\nTotal runtime: %s\n", time.Since(started).Round(time.Second))
	return report
}

// LogReport writes the report through the standard logger.
func (p *Profiler) LogReport() {
	log.Print(p.Report())
}

type metricJSON struct {
	Name      string        `json:"name"`
	Count     int64         `json:"count"`
	TotalTime time.Duration `json:"total_time_ns"`
	AvgTime   time.Duration `json:"avg_time_ns"`
	MinTime   time.Duration `json:"min_time_ns"`
	MaxTime   time.Duration `json:"max_time_ns"`
	LastTime  time.Duration `json:"last_time_ns"`
	LastCall  time.Time     `json:"last_call"`
}

type reportJSON struct {
	StartTime time.Time              `json:"start_time"`
	Runtime   time.Duration          `json:"runtime_ns"`
	Metrics   map[string]*metricJSON `json:"metrics"`
}

// JSONReport renders the same data as Report in JSON, for the admin
// metrics endpoint.
func (p *Profiler) JSONReport() ([]byte, error) {
	metrics := p.GetMetrics()

	p.mu.RLock()
	started := p.started
	p.mu.RUnlock()

	report := reportJSON{
		StartTime: started,
		Runtime:   time.Since(started),
		Metrics:   make(map[string]*metricJSON, len(metrics)),
	}
	for name, m := range metrics {
		report.Metrics[name] = &metricJSON{
			Name:      m.Name,
			Count:     m.Count,
			TotalTime: m.TotalTime,
			AvgTime:   m.AverageTime(),
			MinTime:   m.MinTime,
			MaxTime:   m.MaxTime,
			LastTime:  m.LastTime,
			LastCall:  m.LastCall,
		}
	}

	return json.MarshalIndent(report, "", "  ")
}

// Enable turns recording on.
func (p *Profiler) Enable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = true
}

// Disable turns recording off; existing metrics are kept.
func (p *Profiler) Disable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = false
}

// IsEnabled reports whether recording is on.
func (p *Profiler) IsEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enabled
}
