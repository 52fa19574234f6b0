package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(Handler())
	defer server.Close()

	resp, err := server.Client().Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestCountersExposed(t *testing.T) {
	CycleTotal.WithLabelValues("metrics_test", ResultOK).Inc()
	CycleTotal.WithLabelValues("metrics_test", ResultOK).Inc()
	CycleTotal.WithLabelValues("metrics_test", ResultStoreError).Inc()
	EventsApplied.WithLabelValues("metrics_test").Add(3)
	LatestBlock.WithLabelValues("metrics_test").Set(1234)

	body := scrape(t)
	for _, want := range []string{
		`watcher_cycle_total{result="ok",table="metrics_test"} 2`,
		`watcher_cycle_total{result="store",table="metrics_test"} 1`,
		`watcher_events_applied_total{table="metrics_test"} 3`,
		`watcher_latest_block{table="metrics_test"} 1234`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %s:\n%s", want, body)
		}
	}
}

func TestHealthz(t *testing.T) {
	server := httptest.NewServer(Handler())
	defer server.Close()

	resp, err := server.Client().Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 from healthz, got %d", resp.StatusCode)
	}
}

func TestServeDisabledWithoutAddr(t *testing.T) {
	if err := Serve(context.Background(), "", nil); err != nil {
		t.Fatalf("expected nil for empty addr, got %v", err)
	}
}
