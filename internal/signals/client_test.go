package signals

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/faultlens/faultlens-agent/internal/cache"
	"github.com/faultlens/faultlens-agent/internal/config"
)

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, cache.ErrCacheMiss
}

func (m *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memoryCache) Close() error { return nil }

func newTestServer(t *testing.T, hits *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/signals/logs":
			_, _ = w.Write([]byte(`{"entries":[{"timestamp":"2026-08-01T10:00:00Z","message":"db timeout","severity":"error","count":40}]}`))
		case "/api/v1/signals/metrics":
			_, _ = w.Write([]byte(`{"series":[{"timestamp":"2026-08-01T10:00:00Z","value":1950.0}]}`))
		case "/api/v1/signals/deployments":
			*hits++
			_, _ = w.Write([]byte(`{"deployments":[{"service":"checkout","version":"v2.3.1","kind":"config","deployed_at":"2026-08-01T09:45:00Z"}]}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
}

func testConfig(baseURL string) config.SignalsConfig {
	return config.SignalsConfig{
		BaseURL:         baseURL,
		LogsPath:        "/api/v1/signals/logs",
		MetricsPath:     "/api/v1/signals/metrics",
		DeploymentsPath: "/api/v1/signals/deployments",
		Timeout:         time.Second,
	}
}

func TestFetchLogsAndMetrics(t *testing.T) {
	hits := 0
	srv := newTestServer(t, &hits)
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil, 0)
	ctx := context.Background()
	start := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	logs, err := client.FetchLogEntries(ctx, "checkout", start, end)
	if err != nil {
		t.Fatalf("fetch logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Severity != "error" || logs[0].Count != 40 {
		t.Fatalf("unexpected log entries: %+v", logs)
	}

	series, err := client.FetchMetricSeries(ctx, "checkout", "p99_latency_ms", start, end)
	if err != nil {
		t.Fatalf("fetch metrics: %v", err)
	}
	if len(series) != 1 || series[0].Value != 1950.0 {
		t.Fatalf("unexpected metric series: %+v", series)
	}
}

func TestFetchDeploymentsUsesCache(t *testing.T) {
	hits := 0
	srv := newTestServer(t, &hits)
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), newMemoryCache(), time.Minute)
	ctx := context.Background()
	start := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	first, err := client.FetchDeployments(ctx, start, end)
	if err != nil {
		t.Fatalf("fetch deployments: %v", err)
	}
	if len(first) != 1 || first[0].Version != "v2.3.1" {
		t.Fatalf("unexpected deployments: %+v", first)
	}
	if hits != 1 {
		t.Fatalf("expected one upstream request, got %d", hits)
	}

	second, err := client.FetchDeployments(ctx, start, end)
	if err != nil {
		t.Fatalf("cached fetch: %v", err)
	}
	if hits != 1 {
		t.Fatalf("cache miss triggered network call; hits=%d", hits)
	}
	if len(second) != 1 || second[0].Service != "checkout" {
		t.Fatalf("unexpected cached deployments: %+v", second)
	}
}

func TestClientRequiresBaseURL(t *testing.T) {
	client := NewClient(config.SignalsConfig{}, nil, 0)
	if _, err := client.FetchLogEntries(context.Background(), "svc", time.Now(), time.Now()); err == nil {
		t.Fatalf("expected error without base URL")
	}
}
