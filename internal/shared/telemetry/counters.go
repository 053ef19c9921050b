package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Counters hands out one Int64Counter per name, created on first use. It
// satisfies the domain packages' Metrics interfaces.
type Counters struct {
	meter    metric.Meter
	mu       sync.Mutex
	counters map[string]metric.Int64Counter
}

// NewCounters creates counters on the global meter provider.
func NewCounters(scope string) *Counters {
	return NewCountersWithMeter(otel.Meter(scope))
}

// NewCountersWithMeter creates counters on a specific meter.
func NewCountersWithMeter(meter metric.Meter) *Counters {
	return &Counters{
		meter:    meter,
		counters: make(map[string]metric.Int64Counter),
	}
}

// Count adds value to the named counter. Instrument creation errors leave
// the counter a no-op.
func (c *Counters) Count(ctx context.Context, name string, value int64) {
	c.mu.Lock()
	counter, ok := c.counters[name]
	if !ok {
		counter, _ = c.meter.Int64Counter(name)
		c.counters[name] = counter
	}
	c.mu.Unlock()

	if counter != nil {
		counter.Add(ctx, value)
	}
}
