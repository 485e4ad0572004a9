package analyzers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/faultlens/faultlens-agent/internal/extractors"
	"github.com/faultlens/faultlens-agent/internal/models"
	"github.com/faultlens/faultlens-agent/internal/reasoner"
	"github.com/faultlens/faultlens-agent/internal/signals"
)

// metricSource is the slice of the signal client the telemetry analyzer needs.
type metricSource interface {
	FetchMetricSeries(ctx context.Context, service, metric string, start, end time.Time) ([]signals.MetricPoint, error)
}

const telemetrySystemPrompt = `You are a telemetry analyst for a production incident.
You receive an alert description and a digest of anomalous metric samples.
Characterise the regression: onset, magnitude, and how strongly the metrics support the alert.
Respond ONLY with a JSON object: {"summary": "<one or two sentences>", "confidence": <0.0-1.0>}`

// TelemetryAnalyzer examines the alerting metric series for the shape and
// onset of the regression.
type TelemetryAnalyzer struct {
	metrics   metricSource
	extractor *extractors.MetricExtractor
	zScore    float64
	governor  permitGovernor
	reasoner  reasoner.Client
	logger    *slog.Logger
}

// NewTelemetryAnalyzer wires the metric investigation branch.
func NewTelemetryAnalyzer(metrics metricSource, gov permitGovernor, client reasoner.Client, logger *slog.Logger) *TelemetryAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelemetryAnalyzer{
		metrics:   metrics,
		extractor: extractors.NewMetricExtractor(),
		zScore:    2.5,
		governor:  gov,
		reasoner:  client,
		logger:    logger,
	}
}

func (a *TelemetryAnalyzer) Name() string { return NameTelemetry }

// Investigate fetches the metric window and summarises the anomalous samples
// into a finding via one reasoner call.
func (a *TelemetryAnalyzer) Investigate(ctx context.Context, alert models.Alert, scope models.Scope) (models.Finding, error) {
	series, err := a.metrics.FetchMetricSeries(ctx, scope.Service, scope.Metric, scope.Start, scope.End)
	if err != nil {
		return models.Finding{}, branchError(ctx, NameTelemetry, fmt.Errorf("fetch metrics: %w", err))
	}

	anomalies := a.extractor.Detect(series, a.zScore)
	evidence := make([]models.EvidenceItem, 0, len(anomalies))
	for i, anomaly := range anomalies {
		if i >= 8 {
			break
		}
		evidence = append(evidence, models.EvidenceItem{
			Key:       "metric_anomaly",
			Value:     fmt.Sprintf("%s=%.1f (z=%.1f)", scope.Metric, anomaly.Value, anomaly.Score),
			Source:    "metrics",
			Timestamp: anomaly.Timestamp,
		})
	}

	if err := a.governor.Acquire(ctx, 1); err != nil {
		return models.Finding{}, branchError(ctx, NameTelemetry, err)
	}

	digest := map[string]any{
		"alert":           alert.Description,
		"service":         scope.Service,
		"metric":          scope.Metric,
		"alert_value":     alert.Value,
		"alert_threshold": alert.Threshold,
		"window_start":    scope.Start.Format(time.RFC3339),
		"window_end":      scope.End.Format(time.RFC3339),
		"samples":         len(series),
		"anomalies":       summariseMetricAnomalies(anomalies),
	}
	user, _ := json.Marshal(digest)

	raw, err := a.reasoner.Complete(ctx, telemetrySystemPrompt, string(user))
	if err != nil {
		return models.Finding{}, branchError(ctx, NameTelemetry, err)
	}

	fallback := 0.3
	if len(anomalies) > 0 {
		fallback = 0.55
	}
	finding := parseFinding(NameTelemetry, raw, evidence, fallback)
	a.logger.Debug("telemetry finding",
		slog.String("service", scope.Service),
		slog.String("metric", scope.Metric),
		slog.Int("anomalies", len(anomalies)),
		slog.Float64("confidence", finding.Confidence))
	return finding, nil
}

func summariseMetricAnomalies(anomalies []extractors.MetricAnomaly) []map[string]any {
	out := make([]map[string]any, 0, len(anomalies))
	for i, a := range anomalies {
		if i >= 8 {
			break
		}
		out = append(out, map[string]any{
			"value": a.Value,
			"z":     a.Score,
			"at":    a.Timestamp.Format(time.RFC3339),
		})
	}
	return out
}
