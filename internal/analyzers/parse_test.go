package analyzers

import (
	"testing"

	"github.com/faultlens/faultlens-agent/internal/models"
)

func TestParseFindingPlainJSON(t *testing.T) {
	raw := `{"summary":"error spike in db pool","confidence":0.82}`
	f := parseFinding(NameForensic, raw, nil, 0.1)
	if f.Summary != "error spike in db pool" {
		t.Fatalf("unexpected summary %q", f.Summary)
	}
	if f.Confidence != 0.82 {
		t.Fatalf("unexpected confidence %f", f.Confidence)
	}
	if f.Analyzer != NameForensic {
		t.Fatalf("analyzer not stamped: %q", f.Analyzer)
	}
}

func TestParseFindingFencedJSON(t *testing.T) {
	raw := "```json\n{\"summary\":\"deploy v2.3.1 suspect\",\"confidence\":0.9}\n```"
	f := parseFinding(NameHistory, raw, nil, 0.1)
	if f.Summary != "deploy v2.3.1 suspect" || f.Confidence != 0.9 {
		t.Fatalf("fenced JSON not parsed: %+v", f)
	}
}

func TestParseFindingClampsConfidence(t *testing.T) {
	f := parseFinding(NameTelemetry, `{"summary":"x","confidence":1.7}`, nil, 0.1)
	if f.Confidence != 1 {
		t.Fatalf("confidence not clamped: %f", f.Confidence)
	}
}

func TestParseFindingFallsBackToRawText(t *testing.T) {
	evidence := []models.EvidenceItem{{Key: "log_anomaly", Value: "db timeout"}}
	f := parseFinding(NameForensic, "the model rambled without structure", evidence, 0.4)
	if f.Summary == "" {
		t.Fatalf("fallback summary empty")
	}
	if f.Confidence != 0.4 {
		t.Fatalf("fallback confidence not applied: %f", f.Confidence)
	}
	if len(f.Evidence) != 1 {
		t.Fatalf("evidence dropped on fallback")
	}
}
