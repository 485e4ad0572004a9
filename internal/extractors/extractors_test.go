package extractors

import (
	"testing"
	"time"

	"github.com/faultlens/faultlens-agent/internal/signals"
)

func TestMetricExtractorFlagsSpike(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	series := make([]signals.MetricPoint, 0, 12)
	for i := 0; i < 11; i++ {
		series = append(series, signals.MetricPoint{Timestamp: base.Add(time.Duration(i) * time.Minute), Value: 120})
	}
	series = append(series, signals.MetricPoint{Timestamp: base.Add(12 * time.Minute), Value: 1950})

	anomalies := NewMetricExtractor().Detect(series, 2.5)
	if len(anomalies) != 1 {
		t.Fatalf("expected one anomaly, got %d", len(anomalies))
	}
	if anomalies[0].Value != 1950 {
		t.Fatalf("flagged wrong sample: %+v", anomalies[0])
	}
	if anomalies[0].Score < 2.5 {
		t.Fatalf("score below threshold: %f", anomalies[0].Score)
	}
}

func TestMetricExtractorQuietSeries(t *testing.T) {
	base := time.Now()
	series := []signals.MetricPoint{
		{Timestamp: base, Value: 100},
		{Timestamp: base.Add(time.Minute), Value: 101},
		{Timestamp: base.Add(2 * time.Minute), Value: 99},
	}
	if anomalies := NewMetricExtractor().Detect(series, 3); len(anomalies) != 0 {
		t.Fatalf("expected no anomalies, got %+v", anomalies)
	}
}

func TestLogsExtractorFlagsErrorSurge(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	entries := []signals.LogEntry{
		{Timestamp: base, Message: "request ok", Severity: "info", Count: 10},
		{Timestamp: base.Add(time.Minute), Message: "request ok", Severity: "info", Count: 11},
		{Timestamp: base.Add(2 * time.Minute), Message: "request ok", Severity: "info", Count: 9},
		{Timestamp: base.Add(3 * time.Minute), Message: "db timeout", Severity: "error", Count: 80},
	}
	anomalies := NewLogsExtractor().Detect(entries)
	if len(anomalies) == 0 {
		t.Fatalf("expected error surge to be flagged")
	}
	found := false
	for _, a := range anomalies {
		if a.Message == "db timeout" {
			found = true
		}
	}
	if !found {
		t.Fatalf("error surge missing from anomalies: %+v", anomalies)
	}
}

func TestDeploysExtractorScoresRecentDeployHigher(t *testing.T) {
	incident := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	deployments := []signals.Deployment{
		{Service: "checkout", Version: "v2.3.1", Kind: "code", DeployedAt: incident.Add(-5 * time.Minute)},
		{Service: "checkout", Version: "v2.3.0", Kind: "code", DeployedAt: incident.Add(-25 * time.Minute)},
		{Service: "checkout", Version: "v2.2.9", Kind: "code", DeployedAt: incident.Add(-2 * time.Hour)},
		{Service: "billing", Version: "v1.0.4", Kind: "code", DeployedAt: incident.Add(-5 * time.Minute)},
	}

	anomalies := NewDeploysExtractor(30 * time.Minute).Detect(deployments, "checkout", incident)
	if len(anomalies) != 3 {
		t.Fatalf("expected three in-window deployments, got %d", len(anomalies))
	}

	var recent, older, unrelated float64
	for _, a := range anomalies {
		switch a.Deployment.Version {
		case "v2.3.1":
			recent = a.Score
		case "v2.3.0":
			older = a.Score
		case "v1.0.4":
			unrelated = a.Score
		}
	}
	if recent <= older {
		t.Fatalf("recent deploy should outscore older one: %f vs %f", recent, older)
	}
	if unrelated >= recent {
		t.Fatalf("unrelated service should score lower: %f vs %f", unrelated, recent)
	}
}

func TestDeploysExtractorIgnoresPostIncidentDeploys(t *testing.T) {
	incident := time.Now()
	deployments := []signals.Deployment{
		{Service: "checkout", Version: "v9.9.9", DeployedAt: incident.Add(10 * time.Minute)},
	}
	if got := NewDeploysExtractor(0).Detect(deployments, "checkout", incident); len(got) != 0 {
		t.Fatalf("post-incident deployment should be ignored: %+v", got)
	}
}
