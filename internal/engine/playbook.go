package engine

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/faultlens/faultlens-agent/internal/models"
)

// PlaybookRule maps a service/symptom pair to a remediation action and the
// operator guidance attached to decisions that match it. Empty Service or
// Symptom acts as a wildcard.
type PlaybookRule struct {
	Service        string `yaml:"service"`
	Symptom        string `yaml:"symptom"`
	Action         string `yaml:"action"`
	Recommendation string `yaml:"recommendation"`
}

// Playbook holds remediation rules in priority order: first match wins.
type Playbook struct {
	Rules         []PlaybookRule `yaml:"rules"`
	DefaultAction string         `yaml:"defaultAction"`
}

// LoadPlaybook reads a playbook YAML file. A missing path yields the built-in
// default playbook rather than an error.
func LoadPlaybook(path string) (*Playbook, error) {
	if path == "" {
		return DefaultPlaybook(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPlaybook(), nil
		}
		return nil, fmt.Errorf("read playbook: %w", err)
	}
	var pb Playbook
	if err := yaml.Unmarshal(data, &pb); err != nil {
		return nil, fmt.Errorf("parse playbook: %w", err)
	}
	if pb.DefaultAction == "" {
		pb.DefaultAction = "rollback"
	}
	return &pb, nil
}

// DefaultPlaybook returns the rules used when no playbook file is configured.
func DefaultPlaybook() *Playbook {
	return &Playbook{
		DefaultAction: "rollback",
		Rules: []PlaybookRule{
			{Symptom: string(models.SymptomLatency), Action: "rollback", Recommendation: "Roll back the most recent deployment and verify p99 recovery."},
			{Symptom: string(models.SymptomErrorRate), Action: "rollback", Recommendation: "Roll back the most recent deployment and watch error budgets."},
			{Symptom: string(models.SymptomResource), Action: "scale-up", Recommendation: "Scale the service out and review resource limits."},
			{Symptom: string(models.SymptomAvailability), Action: "restart", Recommendation: "Restart unhealthy instances and check dependency health."},
		},
	}
}

// Resolve returns the first rule matching the service and symptom. The bool
// reports whether an explicit rule matched; on miss the returned rule carries
// only the default action.
func (p *Playbook) Resolve(service string, symptom models.SymptomType) (PlaybookRule, bool) {
	for _, rule := range p.Rules {
		if rule.Service != "" && !strings.EqualFold(rule.Service, service) {
			continue
		}
		if rule.Symptom != "" && !strings.EqualFold(rule.Symptom, string(symptom)) {
			continue
		}
		if rule.Action == "" {
			rule.Action = p.DefaultAction
		}
		return rule, true
	}
	return PlaybookRule{Action: p.DefaultAction}, false
}
