package analyzers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/faultlens/faultlens-agent/internal/extractors"
	"github.com/faultlens/faultlens-agent/internal/models"
	"github.com/faultlens/faultlens-agent/internal/reasoner"
	"github.com/faultlens/faultlens-agent/internal/signals"
)

// logSource is the slice of the signal client the forensic analyzer needs.
type logSource interface {
	FetchLogEntries(ctx context.Context, service string, start, end time.Time) ([]signals.LogEntry, error)
}

// permitGovernor grants reasoner call permits.
type permitGovernor interface {
	Acquire(ctx context.Context, cost int) error
}

const forensicSystemPrompt = `You are a forensic log analyst for a production incident.
You receive an alert description and a digest of anomalous log activity.
Identify the most likely failure signature and how strongly the logs support it.
Respond ONLY with a JSON object: {"summary": "<one or two sentences>", "confidence": <0.0-1.0>}`

// ForensicAnalyzer inspects log aggregates for error spikes and unusual
// signatures around the incident window.
type ForensicAnalyzer struct {
	logs      logSource
	extractor *extractors.LogsExtractor
	governor  permitGovernor
	reasoner  reasoner.Client
	logger    *slog.Logger
}

// NewForensicAnalyzer wires the log investigation branch.
func NewForensicAnalyzer(logs logSource, gov permitGovernor, client reasoner.Client, logger *slog.Logger) *ForensicAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ForensicAnalyzer{
		logs:      logs,
		extractor: extractors.NewLogsExtractor(),
		governor:  gov,
		reasoner:  client,
		logger:    logger,
	}
}

func (a *ForensicAnalyzer) Name() string { return NameForensic }

// Investigate fetches the log window, digests anomalies locally, then spends
// one reasoner permit to summarise the digest into a finding.
func (a *ForensicAnalyzer) Investigate(ctx context.Context, alert models.Alert, scope models.Scope) (models.Finding, error) {
	entries, err := a.logs.FetchLogEntries(ctx, scope.Service, scope.Start, scope.End)
	if err != nil {
		return models.Finding{}, branchError(ctx, NameForensic, fmt.Errorf("fetch logs: %w", err))
	}

	anomalies := a.extractor.Detect(entries)
	evidence := make([]models.EvidenceItem, 0, len(anomalies))
	for i, anomaly := range anomalies {
		if i >= 8 {
			break
		}
		evidence = append(evidence, models.EvidenceItem{
			Key:       "log_anomaly",
			Value:     fmt.Sprintf("%s (severity=%s count=%d score=%.1f)", anomaly.Message, anomaly.Severity, anomaly.Count, anomaly.Score),
			Source:    "logs",
			Timestamp: anomaly.Timestamp,
		})
	}

	if err := a.governor.Acquire(ctx, 1); err != nil {
		return models.Finding{}, branchError(ctx, NameForensic, err)
	}

	digest := map[string]any{
		"alert":         alert.Description,
		"service":       scope.Service,
		"symptom":       alert.Symptom,
		"window_start":  scope.Start.Format(time.RFC3339),
		"window_end":    scope.End.Format(time.RFC3339),
		"total_entries": strconv.Itoa(len(entries)),
		"anomalies":     summariseLogAnomalies(anomalies),
	}
	user, _ := json.Marshal(digest)

	raw, err := a.reasoner.Complete(ctx, forensicSystemPrompt, string(user))
	if err != nil {
		return models.Finding{}, branchError(ctx, NameForensic, err)
	}

	finding := parseFinding(NameForensic, raw, evidence, heuristicLogConfidence(anomalies))
	a.logger.Debug("forensic finding",
		slog.String("service", scope.Service),
		slog.Int("anomalies", len(anomalies)),
		slog.Float64("confidence", finding.Confidence))
	return finding, nil
}

func summariseLogAnomalies(anomalies []extractors.LogAnomaly) []map[string]any {
	out := make([]map[string]any, 0, len(anomalies))
	for i, a := range anomalies {
		if i >= 8 {
			break
		}
		out = append(out, map[string]any{
			"message":  a.Message,
			"severity": a.Severity,
			"count":    a.Count,
			"score":    a.Score,
			"at":       a.Timestamp.Format(time.RFC3339),
		})
	}
	return out
}

// heuristicLogConfidence backs the parse fallback: more corroborating
// anomalies mean higher confidence, capped well below certainty.
func heuristicLogConfidence(anomalies []extractors.LogAnomaly) float64 {
	switch {
	case len(anomalies) >= 3:
		return 0.6
	case len(anomalies) > 0:
		return 0.4
	default:
		return 0.2
	}
}
