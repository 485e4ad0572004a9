package models

import (
	"fmt"
	"time"
)

// SymptomType enumerates alert symptom categories.
type SymptomType string

const (
	SymptomLatency      SymptomType = "latency"
	SymptomErrorRate    SymptomType = "error-rate"
	SymptomResource     SymptomType = "resource"
	SymptomAvailability SymptomType = "availability"
)

// Severity captures impact levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert identifies the triggering signal for an investigation. Immutable once created.
type Alert struct {
	ID          string      `json:"id"`
	Service     string      `json:"service"`
	Symptom     SymptomType `json:"symptom"`
	Metric      string      `json:"metric"`
	Value       float64     `json:"value"`
	Threshold   float64     `json:"threshold"`
	Severity    Severity    `json:"severity"`
	Description string      `json:"description"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Validate checks the minimal fields required to seed an investigation.
func (a Alert) Validate() error {
	if a.Service == "" {
		return fmt.Errorf("alert service is required")
	}
	if a.Symptom == "" {
		return fmt.Errorf("alert symptom is required")
	}
	if a.Timestamp.IsZero() {
		return fmt.Errorf("alert timestamp is required")
	}
	switch a.Symptom {
	case SymptomLatency, SymptomErrorRate, SymptomResource, SymptomAvailability:
	default:
		return fmt.Errorf("unknown symptom type %q", a.Symptom)
	}
	return nil
}
