package report

import (
	"strings"
	"testing"
	"time"

	"github.com/faultlens/faultlens-agent/internal/models"
)

func sampleRecord() models.InvestigationRecord {
	at := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	return models.InvestigationRecord{
		ID: "inv-42",
		Alert: models.Alert{
			Service:     "checkout",
			Symptom:     models.SymptomLatency,
			Severity:    models.SeverityCritical,
			Description: "p99 latency breached threshold",
			Timestamp:   at,
		},
		Findings: map[string]models.Finding{
			"telemetry": {
				Analyzer:   "telemetry",
				Summary:    "latency stepped from 120ms to 1950ms",
				Confidence: 0.9,
				Evidence:   []models.EvidenceItem{{Key: "metric_anomaly", Value: "p99=1950ms"}},
			},
			"history": {
				Analyzer:   "history",
				Summary:    "v2.3.1 deployed before onset",
				Confidence: 0.85,
			},
		},
		Correlations: []models.Correlation{{
			Kind:      "deploy-precedes-failure",
			Analyzers: []string{"history", "telemetry"},
			Note:      "deployment observed 10 minutes before failure signal",
		}},
		Decision: &models.Decision{
			RootCause:      "v2.3.1 rollout",
			Confidence:     0.85,
			Outcome:        models.OutcomeRecommendRollback,
			Recommendation: "Roll back the most recent deployment.",
		},
		Remediation: &models.RemediationOutcome{Action: "rollback", Dispatched: true, Executed: true},
		Trace:       []string{"detect: latency alert for checkout", "decide: recommend-rollback (confidence 0.85)"},
		Status:      models.StatusCompleted,
		StartedAt:   at,
		CompletedAt: at.Add(40 * time.Second),
	}
}

func TestRenderFullRecord(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}

	out, err := r.Render(sampleRecord())
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{
		"# Incident Investigation inv-42",
		"**Outcome:** recommend-rollback",
		"deploy-precedes-failure",
		"### history (0.85)",
		"### telemetry (0.90)",
		"**Action:** rollback",
		"1. detect: latency alert for checkout",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}

	if strings.Index(out, "### history") > strings.Index(out, "### telemetry") {
		t.Fatalf("findings not ordered by analyzer name")
	}
}

func TestRenderEmptyRecord(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}

	out, err := r.Render(models.InvestigationRecord{ID: "inv-0", Status: models.StatusFailed})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "No decision was reached.") {
		t.Fatalf("empty decision section missing:\n%s", out)
	}
	if !strings.Contains(out, "No analysis branch produced a finding.") {
		t.Fatalf("empty findings section missing:\n%s", out)
	}
	if !strings.Contains(out, "No remediation was attempted.") {
		t.Fatalf("empty remediation section missing:\n%s", out)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	rec := sampleRecord()
	first, err := r.Render(rec)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := r.Render(rec)
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		if again != first {
			t.Fatalf("render output varied across runs")
		}
	}
}
