package engine

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/faultlens/faultlens-agent/internal/analyzers"
	"github.com/faultlens/faultlens-agent/internal/models"
	"github.com/faultlens/faultlens-agent/internal/state"
)

type stubAnalyzer struct {
	name    string
	finding models.Finding
	err     error
	delay   time.Duration
}

func (s *stubAnalyzer) Name() string { return s.name }

func (s *stubAnalyzer) Investigate(ctx context.Context, _ models.Alert, _ models.Scope) (models.Finding, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return models.Finding{}, ctx.Err()
		}
	}
	if s.err != nil {
		return models.Finding{}, s.err
	}
	return s.finding, nil
}

type stubDispatcher struct {
	calls int32
	err   error
}

func (d *stubDispatcher) Dispatch(_ context.Context, _, service, action, _ string) (models.RemediationOutcome, error) {
	atomic.AddInt32(&d.calls, 1)
	if d.err != nil {
		return models.RemediationOutcome{Action: action, Dispatched: true, At: time.Now().UTC()}, d.err
	}
	return models.RemediationOutcome{
		Action:     action,
		Dispatched: true,
		Executed:   true,
		Message:    "workflow accepted for " + service,
		At:         time.Now().UTC(),
	}, nil
}

type stubReporter struct {
	err error
}

func (r *stubReporter) Render(rec models.InvestigationRecord) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "# Incident " + rec.ID, nil
}

func checkoutAlert() models.Alert {
	return models.Alert{
		ID:          "alert-checkout-p99",
		Service:     "checkout",
		Symptom:     models.SymptomLatency,
		Metric:      "p99_latency_ms",
		Value:       1950,
		Threshold:   400,
		Severity:    models.SeverityCritical,
		Description: "checkout p99 latency 1950ms, threshold 400ms",
		Timestamp:   time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}
}

func checkoutFindings(alertAt time.Time) (models.Finding, models.Finding, models.Finding) {
	forensic := models.Finding{
		Summary:    "db connection pool exhaustion in checkout",
		Confidence: 0.8,
		Evidence: []models.EvidenceItem{
			{Key: "log_anomaly", Value: "db pool exhausted", Source: "logs", Timestamp: alertAt.Add(-5 * time.Minute)},
		},
		Timestamp: alertAt,
	}
	telemetry := models.Finding{
		Summary:    "p99 latency stepped from 120ms to 1950ms",
		Confidence: 0.9,
		Evidence: []models.EvidenceItem{
			{Key: "metric_anomaly", Value: "p99_latency_ms=1950", Source: "metrics", Timestamp: alertAt.Add(-4 * time.Minute)},
		},
		Timestamp: alertAt,
	}
	history := models.Finding{
		Summary:    "checkout v2.3.1 deployed shortly before onset",
		Confidence: 0.85,
		Evidence: []models.EvidenceItem{
			{Key: "deployment", Value: "checkout v2.3.1", Source: "deployments", Timestamp: alertAt.Add(-15 * time.Minute)},
		},
		Timestamp: alertAt,
	}
	return forensic, telemetry, history
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.Reporter == nil {
		opts.Reporter = &stubReporter{}
	}
	eng, err := New(opts)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng
}

func TestRunEndToEndRecommendsRollback(t *testing.T) {
	alert := checkoutAlert()
	forensic, telemetry, history := checkoutFindings(alert.Timestamp)
	dispatcher := &stubDispatcher{}

	eng := newTestEngine(t, Options{
		Analyzers: []analyzers.Analyzer{
			&stubAnalyzer{name: analyzers.NameForensic, finding: forensic},
			&stubAnalyzer{name: analyzers.NameTelemetry, finding: telemetry},
			&stubAnalyzer{name: analyzers.NameHistory, finding: history},
		},
		Dispatcher: dispatcher,
		Threshold:  0.7,
	})

	st := state.New("inv-1", alert)
	if err := eng.Run(context.Background(), st); err != nil {
		t.Fatalf("run: %v", err)
	}

	if st.Status() != models.StatusCompleted {
		t.Fatalf("expected completed status, got %s", st.Status())
	}

	decision := st.Decision()
	if decision == nil {
		t.Fatalf("decision missing")
	}
	if decision.Outcome != models.OutcomeRecommendRollback {
		t.Fatalf("expected rollback recommendation, got %s", decision.Outcome)
	}
	if math.Abs(decision.Confidence-0.85) > 1e-9 {
		t.Fatalf("expected mean confidence 0.85, got %f", decision.Confidence)
	}

	var deployCorrelation bool
	for _, c := range st.Correlations() {
		if c.Kind == CorrelationDeployPrecedesFailure {
			deployCorrelation = true
		}
	}
	if !deployCorrelation {
		t.Fatalf("deploy-precedes-failure correlation missing: %+v", st.Correlations())
	}

	if got := atomic.LoadInt32(&dispatcher.calls); got != 1 {
		t.Fatalf("dispatcher called %d times, want exactly 1", got)
	}
	remediation := st.Remediation()
	if remediation == nil || !remediation.Dispatched {
		t.Fatalf("remediation outcome not recorded: %+v", remediation)
	}
	if st.Report() == "" {
		t.Fatalf("report not rendered")
	}
}

func TestRunBranchFailureForcesPessimisticAggregation(t *testing.T) {
	alert := checkoutAlert()
	dispatcher := &stubDispatcher{}

	eng := newTestEngine(t, Options{
		Analyzers: []analyzers.Analyzer{
			&stubAnalyzer{name: analyzers.NameForensic, finding: models.Finding{Summary: "weak log lead", Confidence: 0.6}},
			&stubAnalyzer{name: analyzers.NameTelemetry, finding: models.Finding{Summary: "mild regression", Confidence: 0.5}},
			&stubAnalyzer{name: analyzers.NameHistory, err: analyzers.ErrAnalysisError},
		},
		Dispatcher: dispatcher,
		Threshold:  0.7,
	})

	st := state.New("inv-2", alert)
	if err := eng.Run(context.Background(), st); err != nil {
		t.Fatalf("run: %v", err)
	}

	decision := st.Decision()
	if decision == nil {
		t.Fatalf("decision missing")
	}
	if decision.Outcome != models.OutcomeReportOnly {
		t.Fatalf("expected report-only, got %s", decision.Outcome)
	}
	if math.Abs(decision.Confidence-0.5) > 1e-9 {
		t.Fatalf("expected min aggregation 0.5, got %f", decision.Confidence)
	}
	if atomic.LoadInt32(&dispatcher.calls) != 0 {
		t.Fatalf("dispatcher must not run for report-only")
	}
	if st.Status() != models.StatusCompleted {
		t.Fatalf("partial failure should still complete, got %s", st.Status())
	}
}

func TestRunAllBranchesFailedNeedsMoreData(t *testing.T) {
	alert := checkoutAlert()
	dispatcher := &stubDispatcher{}

	eng := newTestEngine(t, Options{
		Analyzers: []analyzers.Analyzer{
			&stubAnalyzer{name: analyzers.NameForensic, err: analyzers.ErrAnalysisTimeout},
			&stubAnalyzer{name: analyzers.NameTelemetry, err: analyzers.ErrAnalysisError},
			&stubAnalyzer{name: analyzers.NameHistory, err: analyzers.ErrAnalysisError},
		},
		Dispatcher: dispatcher,
	})

	st := state.New("inv-3", alert)
	if err := eng.Run(context.Background(), st); err != nil {
		t.Fatalf("run: %v", err)
	}

	decision := st.Decision()
	if decision == nil || decision.Outcome != models.OutcomeNeedsMoreData {
		t.Fatalf("expected needs-more-data, got %+v", decision)
	}
	if decision.Confidence != 0 {
		t.Fatalf("expected zero confidence, got %f", decision.Confidence)
	}
	if atomic.LoadInt32(&dispatcher.calls) != 0 {
		t.Fatalf("dispatcher must not run without findings")
	}
}

func TestRunSlowAnalyzerTimesOutButOthersSurvive(t *testing.T) {
	alert := checkoutAlert()
	forensic, telemetry, _ := checkoutFindings(alert.Timestamp)

	eng := newTestEngine(t, Options{
		Analyzers: []analyzers.Analyzer{
			&stubAnalyzer{name: analyzers.NameForensic, finding: forensic},
			&stubAnalyzer{name: analyzers.NameTelemetry, finding: telemetry},
			&stubAnalyzer{name: analyzers.NameHistory, delay: time.Second, finding: models.Finding{Confidence: 0.9}},
		},
		AnalyzerTimeout: 30 * time.Millisecond,
	})

	st := state.New("inv-4", alert)
	if err := eng.Run(context.Background(), st); err != nil {
		t.Fatalf("run: %v", err)
	}

	findings := st.Findings()
	if len(findings) != 2 {
		t.Fatalf("expected two surviving findings, got %d", len(findings))
	}
	if _, ok := findings[analyzers.NameHistory]; ok {
		t.Fatalf("timed-out branch must not merge a finding")
	}
}

func TestRunCancellationShortCircuits(t *testing.T) {
	alert := checkoutAlert()
	dispatcher := &stubDispatcher{}

	eng := newTestEngine(t, Options{
		Analyzers:  []analyzers.Analyzer{&stubAnalyzer{name: analyzers.NameForensic, finding: models.Finding{Confidence: 0.9}}},
		Dispatcher: dispatcher,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st := state.New("inv-5", alert)
	err := eng.Run(ctx, st)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if st.Status() != models.StatusCancelled {
		t.Fatalf("expected cancelled status, got %s", st.Status())
	}
	if st.Decision() != nil {
		t.Fatalf("cancelled run must not decide")
	}
	if atomic.LoadInt32(&dispatcher.calls) != 0 {
		t.Fatalf("cancelled run must not dispatch")
	}
}

type scopeRecordingAnalyzer struct {
	name  string
	mu    sync.Mutex
	scope models.Scope
}

func (s *scopeRecordingAnalyzer) Name() string { return s.name }

func (s *scopeRecordingAnalyzer) Investigate(_ context.Context, _ models.Alert, scope models.Scope) (models.Finding, error) {
	s.mu.Lock()
	s.scope = scope
	s.mu.Unlock()
	return models.Finding{Summary: "ok", Confidence: 0.5}, nil
}

func TestRunFanOutScopeCoversPostAlertWindow(t *testing.T) {
	alert := checkoutAlert()
	recorder := &scopeRecordingAnalyzer{name: analyzers.NameForensic}

	eng := newTestEngine(t, Options{
		Analyzers: []analyzers.Analyzer{recorder},
		Lookback:  30 * time.Minute,
	})

	st := state.New("inv-scope", alert)
	if err := eng.Run(context.Background(), st); err != nil {
		t.Fatalf("run: %v", err)
	}

	recorder.mu.Lock()
	scope := recorder.scope
	recorder.mu.Unlock()

	if wantStart := alert.Timestamp.Add(-30 * time.Minute); !scope.Start.Equal(wantStart) {
		t.Fatalf("scope start should be alert.ts-lookback (%s), got %s", wantStart, scope.Start)
	}
	if wantEnd := alert.Timestamp.Add(10 * time.Minute); !scope.End.Equal(wantEnd) {
		t.Fatalf("scope end should be alert.ts+10m (%s), got %s", wantEnd, scope.End)
	}
	if scope.Service != alert.Service || scope.Metric != alert.Metric {
		t.Fatalf("scope not seeded from alert: %+v", scope)
	}
}

func TestRunInvalidAlertFails(t *testing.T) {
	eng := newTestEngine(t, Options{
		Analyzers: []analyzers.Analyzer{&stubAnalyzer{name: analyzers.NameForensic}},
	})

	st := state.New("inv-6", models.Alert{Service: "checkout"})
	if err := eng.Run(context.Background(), st); err == nil {
		t.Fatalf("expected validation error")
	}
	if st.Status() != models.StatusFailed {
		t.Fatalf("expected failed status, got %s", st.Status())
	}
}

func TestRunDispatchFailureStillCompletes(t *testing.T) {
	alert := checkoutAlert()
	forensic, telemetry, history := checkoutFindings(alert.Timestamp)
	dispatcher := &stubDispatcher{err: errors.New("workflow API returned 502")}

	eng := newTestEngine(t, Options{
		Analyzers: []analyzers.Analyzer{
			&stubAnalyzer{name: analyzers.NameForensic, finding: forensic},
			&stubAnalyzer{name: analyzers.NameTelemetry, finding: telemetry},
			&stubAnalyzer{name: analyzers.NameHistory, finding: history},
		},
		Dispatcher: dispatcher,
	})

	st := state.New("inv-7", alert)
	if err := eng.Run(context.Background(), st); err != nil {
		t.Fatalf("dispatch failure must not fail the run: %v", err)
	}
	if st.Status() != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", st.Status())
	}
	remediation := st.Remediation()
	if remediation == nil || remediation.Executed {
		t.Fatalf("failed dispatch recorded as executed: %+v", remediation)
	}
	if !strings.Contains(remediation.Message, "502") {
		t.Fatalf("dispatch error not surfaced: %q", remediation.Message)
	}
	if atomic.LoadInt32(&dispatcher.calls) != 1 {
		t.Fatalf("dispatch must be attempted exactly once, got %d", dispatcher.calls)
	}
}
