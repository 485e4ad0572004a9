package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/faultlens/faultlens-agent/internal/config"
	"github.com/faultlens/faultlens-agent/internal/models"
)

// decide synthesises findings and correlations into a decision. Aggregation
// follows the configured mode, except that any failed branch forces the
// pessimistic minimum: a partial picture must not inflate confidence.
func (e *Engine) decide(findings map[string]models.Finding, correlations []models.Correlation, failedBranches int, alert models.Alert) models.Decision {
	now := time.Now().UTC()
	if len(findings) == 0 {
		return models.Decision{
			RootCause:      "insufficient evidence: no analysis branch produced a finding",
			Confidence:     0,
			Outcome:        models.OutcomeNeedsMoreData,
			Recommendation: "Re-run the investigation once upstream signals are reachable.",
			DecidedAt:      now,
		}
	}

	aggregation := e.aggregation
	if failedBranches > 0 {
		aggregation = config.AggregationMin
	}
	confidence := aggregate(findings, aggregation)

	rootCause, topConfidence := dominantFinding(findings)
	for _, c := range correlations {
		if c.Kind == CorrelationDeployPrecedesFailure {
			rootCause = fmt.Sprintf("%s (%s)", rootCause, c.Note)
			break
		}
	}

	decision := models.Decision{
		RootCause:  rootCause,
		Confidence: confidence,
		DecidedAt:  now,
	}

	if confidence >= e.threshold {
		rule, _ := e.playbook.Resolve(alert.Service, alert.Symptom)
		decision.Outcome = models.OutcomeRecommendRollback
		decision.Recommendation = rule.Recommendation
		if decision.Recommendation == "" {
			decision.Recommendation = fmt.Sprintf("Execute %s for %s.", rule.Action, alert.Service)
		}
		return decision
	}

	decision.Outcome = models.OutcomeReportOnly
	decision.Recommendation = fmt.Sprintf(
		"Confidence %.2f below threshold %.2f; review the strongest lead (%.2f) manually before acting.",
		confidence, e.threshold, topConfidence)
	return decision
}

func aggregate(findings map[string]models.Finding, mode string) float64 {
	if len(findings) == 0 {
		return 0
	}
	if mode == config.AggregationMin {
		min := 1.0
		for _, f := range findings {
			if f.Confidence < min {
				min = f.Confidence
			}
		}
		return min
	}
	sum := 0.0
	for _, f := range findings {
		sum += f.Confidence
	}
	return sum / float64(len(findings))
}

// dominantFinding returns the highest-confidence summary, breaking ties by
// analyzer name for determinism.
func dominantFinding(findings map[string]models.Finding) (string, float64) {
	keys := make([]string, 0, len(findings))
	for k := range findings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var summary string
	best := -1.0
	for _, k := range keys {
		if f := findings[k]; f.Confidence > best {
			best = f.Confidence
			summary = f.Summary
		}
	}
	return summary, best
}
