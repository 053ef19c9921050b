package telemetry

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestCounters_Count(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	counters := NewCountersWithMeter(provider.Meter("test"))
	ctx := context.Background()

	counters.Count(ctx, "bank_transaction.sync.created", 3)
	counters.Count(ctx, "bank_transaction.sync.created", 2)
	counters.Count(ctx, "bank_transaction.sync.deleted", 1)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s has data %T, want Sum[int64]", m.Name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				got[m.Name] += dp.Value
			}
		}
	}

	if got["bank_transaction.sync.created"] != 5 {
		t.Errorf("created = %d, want 5", got["bank_transaction.sync.created"])
	}
	if got["bank_transaction.sync.deleted"] != 1 {
		t.Errorf("deleted = %d, want 1", got["bank_transaction.sync.deleted"])
	}
}
