package fins

import (
	"sync"
	"time"
)

// MetricsCollector collects per-operation counts, errors and durations.
// It is safe for concurrent use.
//
// Example:
//
//	metrics := fins.NewMetricsCollector()
//	client.SetInterceptor(metrics.Interceptor())
//
//	client.Read(ctx, "D100", 5)
//
//	count, errors, avg := metrics.GetStats(fins.OpRead)
type MetricsCollector struct {
	mu             sync.RWMutex
	OperationCount map[OperationType]int64
	ErrorCount     map[OperationType]int64
	TotalDuration  map[OperationType]time.Duration
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		OperationCount: make(map[OperationType]int64),
		ErrorCount:     make(map[OperationType]int64),
		TotalDuration:  make(map[OperationType]time.Duration),
	}
}

// Interceptor returns an interceptor that records metrics for every call.
func (m *MetricsCollector) Interceptor() Interceptor {
	return func(c *InterceptorCtx) (interface{}, error) {
		start := time.Now()

		result, err := c.Invoke(nil)

		duration := time.Since(start)

		m.mu.Lock()
		op := c.Info().Operation
		m.OperationCount[op]++
		m.TotalDuration[op] += duration
		if err != nil {
			m.ErrorCount[op]++
		}
		m.mu.Unlock()

		return result, err
	}
}

// GetStats returns count, error count and average duration for an operation.
func (m *MetricsCollector) GetStats(op OperationType) (count int64, errors int64, avgDuration time.Duration) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count = m.OperationCount[op]
	errors = m.ErrorCount[op]
	if count > 0 {
		avgDuration = m.TotalDuration[op] / time.Duration(count)
	}
	return
}

// Reset clears all collected metrics.
func (m *MetricsCollector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.OperationCount = make(map[OperationType]int64)
	m.ErrorCount = make(map[OperationType]int64)
	m.TotalDuration = make(map[OperationType]time.Duration)
}
