// Package signals provides read access to the upstream signal aggregation
// API: log aggregates, metric series, and deployment events for a service
// window. The analyzers consume these as raw evidence.
package signals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/faultlens/faultlens-agent/internal/cache"
	"github.com/faultlens/faultlens-agent/internal/config"
	"github.com/faultlens/faultlens-agent/internal/utils"
)

// MetricPoint represents a single metric sample.
type MetricPoint struct {
	Timestamp time.Time
	Value     float64
}

// LogEntry represents aggregated log information for a severity bucket.
type LogEntry struct {
	Timestamp time.Time
	Message   string
	Severity  string
	Count     int
}

// Deployment captures a deployment or configuration change event.
type Deployment struct {
	Service    string
	Version    string
	Kind       string
	Author     string
	DeployedAt time.Time
}

// Client wraps the upstream signal API.
type Client struct {
	baseURL         string
	logsPath        string
	metricsPath     string
	deploymentsPath string
	httpClient      *http.Client
	cache           cache.Provider
	deploymentsTTL  time.Duration
}

// NewClient constructs a signal client. cacheProvider may be nil; deployment
// lookups are then always fetched upstream.
func NewClient(cfg config.SignalsConfig, cacheProvider cache.Provider, deploymentsTTL time.Duration) *Client {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		logsPath:        cfg.LogsPath,
		metricsPath:     cfg.MetricsPath,
		deploymentsPath: cfg.DeploymentsPath,
		httpClient:      &http.Client{Timeout: timeout},
		cache:           cacheProvider,
		deploymentsTTL:  deploymentsTTL,
	}
}

// FetchLogEntries queries log aggregates for a service window.
func (c *Client) FetchLogEntries(ctx context.Context, service string, start, end time.Time) ([]LogEntry, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("signal client base URL not configured")
	}

	var response struct {
		Entries []struct {
			Timestamp time.Time `json:"timestamp"`
			Message   string    `json:"message"`
			Severity  string    `json:"severity"`
			Count     int       `json:"count"`
		} `json:"entries"`
	}
	if err := c.postJSON(ctx, c.resolvePath(c.logsPath), windowPayload(service, start, end), &response); err != nil {
		return nil, utils.NewAppError("signals.FetchLogEntries", "log query failed", err)
	}

	entries := make([]LogEntry, 0, len(response.Entries))
	for _, e := range response.Entries {
		entries = append(entries, LogEntry{
			Timestamp: e.Timestamp,
			Message:   e.Message,
			Severity:  e.Severity,
			Count:     e.Count,
		})
	}
	return entries, nil
}

// FetchMetricSeries queries metric samples for a service window.
func (c *Client) FetchMetricSeries(ctx context.Context, service, metric string, start, end time.Time) ([]MetricPoint, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("signal client base URL not configured")
	}

	payload := windowPayload(service, start, end)
	payload["metric"] = metric

	var response struct {
		Series []struct {
			Timestamp time.Time `json:"timestamp"`
			Value     float64   `json:"value"`
		} `json:"series"`
	}
	if err := c.postJSON(ctx, c.resolvePath(c.metricsPath), payload, &response); err != nil {
		return nil, utils.NewAppError("signals.FetchMetricSeries", "metric query failed", err)
	}

	points := make([]MetricPoint, 0, len(response.Series))
	for _, sample := range response.Series {
		points = append(points, MetricPoint{Timestamp: sample.Timestamp, Value: sample.Value})
	}
	return points, nil
}

// FetchDeployments queries deployment events across all services in the
// window. Results are cached briefly: the three analyzer branches run within
// seconds of each other and deployment history changes slowly.
func (c *Client) FetchDeployments(ctx context.Context, start, end time.Time) ([]Deployment, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("signal client base URL not configured")
	}

	cacheKey := fmt.Sprintf("signals:deployments:%d:%d", start.Unix(), end.Unix())
	if c.deploymentsTTL > 0 {
		if data, err := c.cache.Get(ctx, cacheKey); err == nil {
			var cached []Deployment
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	var response struct {
		Deployments []struct {
			Service    string    `json:"service"`
			Version    string    `json:"version"`
			Kind       string    `json:"kind"`
			Author     string    `json:"author"`
			DeployedAt time.Time `json:"deployed_at"`
		} `json:"deployments"`
	}
	if err := c.postJSON(ctx, c.resolvePath(c.deploymentsPath), windowPayload("", start, end), &response); err != nil {
		return nil, utils.NewAppError("signals.FetchDeployments", "deployment query failed", err)
	}

	deployments := make([]Deployment, 0, len(response.Deployments))
	for _, d := range response.Deployments {
		deployments = append(deployments, Deployment{
			Service:    d.Service,
			Version:    d.Version,
			Kind:       d.Kind,
			Author:     d.Author,
			DeployedAt: d.DeployedAt,
		})
	}

	if c.deploymentsTTL > 0 {
		if data, err := json.Marshal(deployments); err == nil {
			_ = c.cache.Set(ctx, cacheKey, data, c.deploymentsTTL)
		}
	}
	return deployments, nil
}

func windowPayload(service string, start, end time.Time) map[string]any {
	payload := map[string]any{
		"start": start.Format(time.RFC3339),
		"end":   end.Format(time.RFC3339),
	}
	if service != "" {
		payload["service"] = service
	}
	return payload
}

func (c *Client) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("signal API returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
