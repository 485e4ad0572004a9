package analyzers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/faultlens/faultlens-agent/internal/governor"
	"github.com/faultlens/faultlens-agent/internal/models"
	"github.com/faultlens/faultlens-agent/internal/reasoner"
	"github.com/faultlens/faultlens-agent/internal/signals"
)

type fakeGovernor struct {
	err      error
	acquired int
}

func (g *fakeGovernor) Acquire(_ context.Context, _ int) error {
	if g.err != nil {
		return g.err
	}
	g.acquired++
	return nil
}

type fakeLogSource struct {
	entries []signals.LogEntry
	err     error
}

func (s *fakeLogSource) FetchLogEntries(context.Context, string, time.Time, time.Time) ([]signals.LogEntry, error) {
	return s.entries, s.err
}

type fakeMetricSource struct {
	series []signals.MetricPoint
	err    error
}

func (s *fakeMetricSource) FetchMetricSeries(context.Context, string, string, time.Time, time.Time) ([]signals.MetricPoint, error) {
	return s.series, s.err
}

type fakeDeploySource struct {
	deployments []signals.Deployment
	err         error
}

func (s *fakeDeploySource) FetchDeployments(context.Context, time.Time, time.Time) ([]signals.Deployment, error) {
	return s.deployments, s.err
}

func testAlert() models.Alert {
	return models.Alert{
		ID:          "alert-1",
		Service:     "checkout",
		Symptom:     models.SymptomLatency,
		Metric:      "p99_latency_ms",
		Value:       1950,
		Threshold:   400,
		Severity:    models.SeverityCritical,
		Description: "p99 latency breached threshold",
		Timestamp:   time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}
}

func testScope(alert models.Alert) models.Scope {
	return models.Scope{
		Service: alert.Service,
		Metric:  alert.Metric,
		Start:   alert.Timestamp.Add(-30 * time.Minute),
		End:     alert.Timestamp,
	}
}

func staticReasoner(response string) reasoner.Client {
	return reasoner.Func(func(context.Context, string, string) (string, error) {
		return response, nil
	})
}

func TestForensicAnalyzerProducesFinding(t *testing.T) {
	alert := testAlert()
	logs := &fakeLogSource{entries: []signals.LogEntry{
		{Timestamp: alert.Timestamp.Add(-5 * time.Minute), Message: "db pool exhausted", Severity: "error", Count: 90},
		{Timestamp: alert.Timestamp.Add(-20 * time.Minute), Message: "request ok", Severity: "info", Count: 10},
		{Timestamp: alert.Timestamp.Add(-15 * time.Minute), Message: "request ok", Severity: "info", Count: 11},
	}}
	gov := &fakeGovernor{}
	analyzer := NewForensicAnalyzer(logs, gov, staticReasoner(`{"summary":"db pool exhaustion behind latency","confidence":0.8}`), nil)

	finding, err := analyzer.Investigate(context.Background(), alert, testScope(alert))
	if err != nil {
		t.Fatalf("investigate: %v", err)
	}
	if finding.Analyzer != NameForensic {
		t.Fatalf("wrong analyzer key %q", finding.Analyzer)
	}
	if finding.Confidence != 0.8 {
		t.Fatalf("confidence mismatch: %f", finding.Confidence)
	}
	if len(finding.Evidence) == 0 {
		t.Fatalf("expected log evidence")
	}
	if gov.acquired != 1 {
		t.Fatalf("expected exactly one permit, got %d", gov.acquired)
	}
}

func TestForensicAnalyzerRateExceeded(t *testing.T) {
	alert := testAlert()
	analyzer := NewForensicAnalyzer(&fakeLogSource{}, &fakeGovernor{err: governor.ErrRateExceeded}, staticReasoner("{}"), nil)

	_, err := analyzer.Investigate(context.Background(), alert, testScope(alert))
	if !errors.Is(err, ErrAnalysisError) {
		t.Fatalf("expected analysis error, got %v", err)
	}
	if !errors.Is(err, governor.ErrRateExceeded) {
		t.Fatalf("rate-exceeded cause lost: %v", err)
	}
}

func TestTelemetryAnalyzerFetchFailure(t *testing.T) {
	alert := testAlert()
	analyzer := NewTelemetryAnalyzer(&fakeMetricSource{err: errors.New("upstream 502")}, &fakeGovernor{}, staticReasoner("{}"), nil)

	_, err := analyzer.Investigate(context.Background(), alert, testScope(alert))
	if !errors.Is(err, ErrAnalysisError) {
		t.Fatalf("expected analysis error, got %v", err)
	}
}

func TestTelemetryAnalyzerTimeout(t *testing.T) {
	alert := testAlert()
	slow := reasoner.Func(func(ctx context.Context, _, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	analyzer := NewTelemetryAnalyzer(&fakeMetricSource{}, &fakeGovernor{}, slow, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := analyzer.Investigate(ctx, alert, testScope(alert))
	if !errors.Is(err, ErrAnalysisTimeout) {
		t.Fatalf("expected timeout classification, got %v", err)
	}
}

func TestHistoryAnalyzerFindsSuspectDeploy(t *testing.T) {
	alert := testAlert()
	deploys := &fakeDeploySource{deployments: []signals.Deployment{
		{Service: "checkout", Version: "v2.3.1", Kind: "code", DeployedAt: alert.Timestamp.Add(-10 * time.Minute)},
	}}
	analyzer := NewHistoryAnalyzer(deploys, 30*time.Minute, &fakeGovernor{}, staticReasoner(`{"summary":"v2.3.1 rollout precedes onset","confidence":0.85}`), nil)

	finding, err := analyzer.Investigate(context.Background(), alert, testScope(alert))
	if err != nil {
		t.Fatalf("investigate: %v", err)
	}
	if finding.Confidence != 0.85 {
		t.Fatalf("confidence mismatch: %f", finding.Confidence)
	}
	if len(finding.Evidence) != 1 {
		t.Fatalf("expected one deployment evidence item, got %d", len(finding.Evidence))
	}
}

func TestHistoryAnalyzerUnparsableCompletionFallsBack(t *testing.T) {
	alert := testAlert()
	deploys := &fakeDeploySource{deployments: []signals.Deployment{
		{Service: "checkout", Version: "v2.3.1", DeployedAt: alert.Timestamp.Add(-10 * time.Minute)},
	}}
	analyzer := NewHistoryAnalyzer(deploys, 30*time.Minute, &fakeGovernor{}, staticReasoner("no structure here"), nil)

	finding, err := analyzer.Investigate(context.Background(), alert, testScope(alert))
	if err != nil {
		t.Fatalf("investigate: %v", err)
	}
	if finding.Summary == "" || finding.Confidence != 0.5 {
		t.Fatalf("fallback finding malformed: %+v", finding)
	}
}
