package analyzers

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/faultlens/faultlens-agent/internal/models"
)

// reasonerFinding is the JSON shape the prompts instruct the reasoner to
// return. Confidence outside [0,1] is clamped rather than rejected.
type reasonerFinding struct {
	Summary    string  `json:"summary"`
	Confidence float64 `json:"confidence"`
}

// parseFinding decodes a reasoner completion into a finding. Completions are
// sometimes wrapped in markdown fences or prose; the parser strips fences and
// falls back to the first JSON object it can locate. When no JSON parses the
// raw text becomes the summary with the supplied fallback confidence.
func parseFinding(analyzer, raw string, evidence []models.EvidenceItem, fallbackConfidence float64) models.Finding {
	finding := models.Finding{
		Analyzer:  analyzer,
		Evidence:  evidence,
		Timestamp: time.Now().UTC(),
	}

	var parsed reasonerFinding
	if payload, ok := extractJSONObject(raw); ok && json.Unmarshal([]byte(payload), &parsed) == nil && parsed.Summary != "" {
		finding.Summary = parsed.Summary
		finding.Confidence = clampConfidence(parsed.Confidence)
		return finding
	}

	finding.Summary = truncate(strings.TrimSpace(raw), 500)
	finding.Confidence = clampConfidence(fallbackConfidence)
	return finding
}

func extractJSONObject(raw string) (string, bool) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return cleaned[start : end+1], true
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
