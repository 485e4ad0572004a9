package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/faultlens/faultlens-agent/internal/models"
)

func TestPlaybookResolveMatchesServiceAndSymptom(t *testing.T) {
	pb := &Playbook{
		DefaultAction: "rollback",
		Rules: []PlaybookRule{
			{Service: "checkout", Symptom: "latency", Action: "rollback", Recommendation: "roll back checkout"},
			{Symptom: "resource", Action: "scale-up"},
		},
	}

	rule, ok := pb.Resolve("checkout", models.SymptomLatency)
	if !ok || rule.Action != "rollback" || rule.Recommendation != "roll back checkout" {
		t.Fatalf("unexpected rule: %+v ok=%v", rule, ok)
	}

	rule, ok = pb.Resolve("billing", models.SymptomResource)
	if !ok || rule.Action != "scale-up" {
		t.Fatalf("wildcard service rule not matched: %+v", rule)
	}

	rule, ok = pb.Resolve("billing", models.SymptomLatency)
	if ok {
		t.Fatalf("expected fallthrough to default, got explicit match %+v", rule)
	}
	if rule.Action != "rollback" {
		t.Fatalf("default action not applied: %+v", rule)
	}
}

func TestLoadPlaybookFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playbook.yaml")
	content := []byte(`
defaultAction: rollback
rules:
  - service: checkout
    symptom: latency
    action: rollback
    recommendation: Roll back the latest checkout deploy.
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write playbook: %v", err)
	}

	pb, err := LoadPlaybook(path)
	if err != nil {
		t.Fatalf("load playbook: %v", err)
	}
	rule, ok := pb.Resolve("checkout", models.SymptomLatency)
	if !ok || rule.Recommendation != "Roll back the latest checkout deploy." {
		t.Fatalf("file rule not applied: %+v", rule)
	}
}

func TestLoadPlaybookMissingFileFallsBack(t *testing.T) {
	pb, err := LoadPlaybook(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing playbook should fall back: %v", err)
	}
	if rule, _ := pb.Resolve("any", models.SymptomErrorRate); rule.Action != "rollback" {
		t.Fatalf("default playbook missing error-rate rule: %+v", rule)
	}
}
