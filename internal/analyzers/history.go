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

// deploySource is the slice of the signal client the history analyzer needs.
type deploySource interface {
	FetchDeployments(ctx context.Context, start, end time.Time) ([]signals.Deployment, error)
}

const historySystemPrompt = `You are a change-history analyst for a production incident.
You receive an alert description and recent deployments scored by proximity to the incident.
Judge whether a recent change is the likely trigger and name the suspect deployment if so.
Respond ONLY with a JSON object: {"summary": "<one or two sentences>", "confidence": <0.0-1.0>}`

// HistoryAnalyzer correlates recent deployments and config changes with the
// incident onset.
type HistoryAnalyzer struct {
	deploys   deploySource
	extractor *extractors.DeploysExtractor
	governor  permitGovernor
	reasoner  reasoner.Client
	logger    *slog.Logger
}

// NewHistoryAnalyzer wires the change-history investigation branch. maxLead
// bounds how far before the incident a deployment stays suspicious.
func NewHistoryAnalyzer(deploys deploySource, maxLead time.Duration, gov permitGovernor, client reasoner.Client, logger *slog.Logger) *HistoryAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryAnalyzer{
		deploys:   deploys,
		extractor: extractors.NewDeploysExtractor(maxLead),
		governor:  gov,
		reasoner:  client,
		logger:    logger,
	}
}

func (a *HistoryAnalyzer) Name() string { return NameHistory }

// Investigate fetches window deployments, scores their proximity to the
// incident, and summarises the suspects into a finding.
func (a *HistoryAnalyzer) Investigate(ctx context.Context, alert models.Alert, scope models.Scope) (models.Finding, error) {
	deployments, err := a.deploys.FetchDeployments(ctx, scope.Start, scope.End)
	if err != nil {
		return models.Finding{}, branchError(ctx, NameHistory, fmt.Errorf("fetch deployments: %w", err))
	}

	suspects := a.extractor.Detect(deployments, scope.Service, alert.Timestamp)
	evidence := make([]models.EvidenceItem, 0, len(suspects))
	for i, s := range suspects {
		if i >= 8 {
			break
		}
		evidence = append(evidence, models.EvidenceItem{
			Key:       "deployment",
			Value:     fmt.Sprintf("%s %s (%s) %.0fm before incident, score=%.2f", s.Deployment.Service, s.Deployment.Version, s.Deployment.Kind, s.LeadTime.Minutes(), s.Score),
			Source:    "deployments",
			Timestamp: s.Deployment.DeployedAt,
		})
	}

	if err := a.governor.Acquire(ctx, 1); err != nil {
		return models.Finding{}, branchError(ctx, NameHistory, err)
	}

	digest := map[string]any{
		"alert":        alert.Description,
		"service":      scope.Service,
		"incident_at":  alert.Timestamp.Format(time.RFC3339),
		"window_start": scope.Start.Format(time.RFC3339),
		"window_end":   scope.End.Format(time.RFC3339),
		"deployments":  summariseSuspects(suspects),
	}
	user, _ := json.Marshal(digest)

	raw, err := a.reasoner.Complete(ctx, historySystemPrompt, string(user))
	if err != nil {
		return models.Finding{}, branchError(ctx, NameHistory, err)
	}

	fallback := 0.25
	if len(suspects) > 0 {
		fallback = 0.5
	}
	finding := parseFinding(NameHistory, raw, evidence, fallback)
	a.logger.Debug("history finding",
		slog.String("service", scope.Service),
		slog.Int("suspects", len(suspects)),
		slog.Float64("confidence", finding.Confidence))
	return finding, nil
}

func summariseSuspects(suspects []extractors.DeployAnomaly) []map[string]any {
	out := make([]map[string]any, 0, len(suspects))
	for i, s := range suspects {
		if i >= 8 {
			break
		}
		out = append(out, map[string]any{
			"service":      s.Deployment.Service,
			"version":      s.Deployment.Version,
			"kind":         s.Deployment.Kind,
			"author":       s.Deployment.Author,
			"lead_minutes": s.LeadTime.Minutes(),
			"score":        s.Score,
		})
	}
	return out
}
