package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/faultlens/faultlens-agent/internal/models"
	"github.com/faultlens/faultlens-agent/internal/utils"
)

// Correlation kinds derived by the join step.
const (
	CorrelationDeployPrecedesFailure = "deploy-precedes-failure"
	CorrelationConcurrentAnomalies   = "concurrent-anomalies"
)

// concurrentWindow bounds how close two failure observations must land to be
// treated as one event.
const concurrentWindow = 5 * time.Minute

// correlate derives cross-finding correlations. Pure and deterministic: the
// same findings always produce the same correlations in the same order.
func correlate(findings map[string]models.Finding, lookback time.Duration) []models.Correlation {
	keys := make([]string, 0, len(findings))
	for k := range findings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	correlations := make([]models.Correlation, 0)
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			a, b := findings[keys[i]], findings[keys[j]]
			if c, ok := deployPrecedesFailure(a, b, lookback); ok {
				correlations = append(correlations, c)
				continue
			}
			if c, ok := concurrentAnomalies(a, b); ok {
				correlations = append(correlations, c)
			}
		}
	}
	return correlations
}

// deployPrecedesFailure checks whether one finding's deployment evidence lands
// within lookback before the other's failure evidence.
func deployPrecedesFailure(a, b models.Finding, lookback time.Duration) (models.Correlation, bool) {
	deployAt, deployFrom, okDeploy := earliestEvidence(a, b, "deployments")
	failAt, failFrom, okFail := earliestEvidence(a, b, "logs", "metrics")
	if !okDeploy || !okFail || deployFrom == failFrom {
		return models.Correlation{}, false
	}

	lag := failAt.Sub(deployAt)
	if lag <= 0 || lag > lookback {
		return models.Correlation{}, false
	}

	pair := []string{deployFrom, failFrom}
	sort.Strings(pair)
	lagMinutes := utils.DurationMinutes(deployAt, failAt)
	return models.Correlation{
		Kind:       CorrelationDeployPrecedesFailure,
		Analyzers:  pair,
		LagMinutes: lagMinutes,
		Note:       fmt.Sprintf("deployment observed %.0f minutes before failure signal", lagMinutes),
	}, true
}

// concurrentAnomalies checks whether two findings observed failure evidence
// within the same short window.
func concurrentAnomalies(a, b models.Finding) (models.Correlation, bool) {
	aAt, aFrom, okA := earliestEvidence(a, b, "logs")
	bAt, bFrom, okB := earliestEvidence(a, b, "metrics")
	if !okA || !okB || aFrom == bFrom {
		return models.Correlation{}, false
	}

	gap := aAt.Sub(bAt)
	if gap < 0 {
		gap = -gap
	}
	if gap > concurrentWindow {
		return models.Correlation{}, false
	}

	pair := []string{aFrom, bFrom}
	sort.Strings(pair)
	gapMinutes := utils.DurationMinutes(aAt, bAt)
	return models.Correlation{
		Kind:       CorrelationConcurrentAnomalies,
		Analyzers:  pair,
		LagMinutes: gapMinutes,
		Note:       fmt.Sprintf("failure signals observed within %.0f minutes of each other", gapMinutes),
	}, true
}

// earliestEvidence scans both findings for the earliest evidence item from any
// of the named sources, returning its timestamp and owning analyzer.
func earliestEvidence(a, b models.Finding, sources ...string) (time.Time, string, bool) {
	var best time.Time
	var from string
	for _, f := range []models.Finding{a, b} {
		for _, item := range f.Evidence {
			if item.Timestamp.IsZero() || !sourceMatches(item.Source, sources) {
				continue
			}
			if best.IsZero() || item.Timestamp.Before(best) {
				best = item.Timestamp
				from = f.Analyzer
			}
		}
	}
	return best, from, !best.IsZero()
}

func sourceMatches(source string, sources []string) bool {
	for _, s := range sources {
		if source == s {
			return true
		}
	}
	return false
}
