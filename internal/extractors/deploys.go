package extractors

import (
	"strings"
	"time"

	"github.com/faultlens/faultlens-agent/internal/signals"
)

// DeployAnomaly flags a deployment suspiciously close to the incident.
type DeployAnomaly struct {
	Deployment signals.Deployment
	LeadTime   time.Duration
	Score      float64
}

// DeploysExtractor scores deployments by proximity to the incident time:
// the closer a change landed before the alert, the more suspicious it is.
type DeploysExtractor struct {
	maxLead time.Duration
}

// NewDeploysExtractor constructs a deployment proximity scorer. maxLead
// bounds how far before the incident a deployment remains interesting.
func NewDeploysExtractor(maxLead time.Duration) *DeploysExtractor {
	if maxLead <= 0 {
		maxLead = 30 * time.Minute
	}
	return &DeploysExtractor{maxLead: maxLead}
}

// Detect returns deployments that landed within maxLead before incidentAt,
// scored in (0,1] by recency. Deployments for the alerted service score
// higher than unrelated ones; config changes carry a small extra weight.
func (e *DeploysExtractor) Detect(deployments []signals.Deployment, service string, incidentAt time.Time) []DeployAnomaly {
	if len(deployments) == 0 {
		return nil
	}

	anomalies := make([]DeployAnomaly, 0)
	for _, d := range deployments {
		lead := incidentAt.Sub(d.DeployedAt)
		if lead < 0 || lead > e.maxLead {
			continue
		}
		score := 1.0 - lead.Seconds()/e.maxLead.Seconds()*0.5
		if !strings.EqualFold(d.Service, service) {
			score *= 0.6
		}
		if strings.EqualFold(d.Kind, "config") {
			score = clamp01(score + 0.1)
		}
		anomalies = append(anomalies, DeployAnomaly{
			Deployment: d,
			LeadTime:   lead,
			Score:      clamp01(score),
		})
	}
	return anomalies
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
