package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics is an in-process collector for workflow counters (transitions,
// version conflicts, sync and audit failures), gauges, and component health.
// It is exposed on the metrics endpoint.
type Metrics struct {
	mu           sync.RWMutex
	counters     map[string]*int64
	gauges       map[string]*int64
	healthChecks map[string]*int64
	startTime    time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		counters:     make(map[string]*int64),
		gauges:       make(map[string]*int64),
		healthChecks: make(map[string]*int64),
		startTime:    time.Now(),
	}
}

// IncrementCounter increments a counter by 1
func (m *Metrics) IncrementCounter(name string) {
	m.IncrementCounterBy(name, 1)
}

// IncrementCounterBy increments a counter by the given value
func (m *Metrics) IncrementCounterBy(name string, value int64) {
	atomic.AddInt64(m.counter(name), value)
}

// SetGauge sets a gauge to a point-in-time value
func (m *Metrics) SetGauge(name string, value int64) {
	m.mu.Lock()
	gauge, ok := m.gauges[name]
	if !ok {
		gauge = new(int64)
		m.gauges[name] = gauge
	}
	m.mu.Unlock()
	atomic.StoreInt64(gauge, value)
}

// SetHealth records a component health status
func (m *Metrics) SetHealth(component string, isHealthy bool) {
	m.mu.Lock()
	health, ok := m.healthChecks[component]
	if !ok {
		health = new(int64)
		m.healthChecks[component] = health
	}
	m.mu.Unlock()

	var value int64
	if isHealthy {
		value = 1
	}
	atomic.StoreInt64(health, value)
}

// GetCounters returns a snapshot of all counters
func (m *Metrics) GetCounters() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]int64, len(m.counters))
	for name, counter := range m.counters {
		out[name] = atomic.LoadInt64(counter)
	}
	return out
}

// GetGauges returns a snapshot of all gauges
func (m *Metrics) GetGauges() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]int64, len(m.gauges))
	for name, gauge := range m.gauges {
		out[name] = atomic.LoadInt64(gauge)
	}
	return out
}

// GetHealthChecks returns a snapshot of component health
func (m *Metrics) GetHealthChecks() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]bool, len(m.healthChecks))
	for component, health := range m.healthChecks {
		out[component] = atomic.LoadInt64(health) == 1
	}
	return out
}

// GetUptimeSeconds returns seconds since the collector was created
func (m *Metrics) GetUptimeSeconds() int64 {
	return int64(time.Since(m.startTime).Seconds())
}

// GetAllMetrics returns all metrics for the metrics endpoint
func (m *Metrics) GetAllMetrics() map[string]interface{} {
	return map[string]interface{}{
		"counters":       m.GetCounters(),
		"gauges":         m.GetGauges(),
		"health":         m.GetHealthChecks(),
		"uptime_seconds": m.GetUptimeSeconds(),
	}
}

func (m *Metrics) counter(name string) *int64 {
	m.mu.RLock()
	counter, ok := m.counters[name]
	m.mu.RUnlock()
	if ok {
		return counter
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	counter, ok = m.counters[name]
	if !ok {
		counter = new(int64)
		m.counters[name] = counter
	}
	return counter
}
