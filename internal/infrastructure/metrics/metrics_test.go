package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCountObservations(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := New(registry)

	metrics.ObserveRecompute("Products", "changed")
	metrics.ObserveRecompute("Products", "changed")
	metrics.ObserveRecompute("Products", "unchanged")
	metrics.ObserveChecksum(false)
	metrics.ObserveConflict("score")
	metrics.ObserveCacheHit("memory")
	metrics.ObserveHTTPRequest("GET", "/api/v1/summaries/{model}/{foreignKey}", 200, 0.01)

	if got := testutil.ToFloat64(metrics.recomputes.WithLabelValues("Products", "changed")); got != 2 {
		t.Fatalf("recomputes{changed} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.checksums.WithLabelValues("false")); got != 1 {
		t.Fatalf("checksums{false} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.conflicts.WithLabelValues("score")); got != 1 {
		t.Fatalf("conflicts{score} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.httpRequests.WithLabelValues("GET", "/api/v1/summaries/{model}/{foreignKey}", "200")); got != 1 {
		t.Fatalf("http_requests = %v, want 1", got)
	}

	count, err := testutil.GatherAndCount(registry, "reliability_cache_hits_total")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("cache_hits series = %d, want 1", count)
	}
}

func TestNewRegistryRegistersRuntimeCollectors(t *testing.T) {
	families, err := NewRegistry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("Gather() returned no metric families")
	}
}
