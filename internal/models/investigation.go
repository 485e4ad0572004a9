package models

import "time"

// InvestigationStatus tracks graph progress for status reads and persistence.
type InvestigationStatus string

const (
	StatusPending       InvestigationStatus = "pending"
	StatusDetecting     InvestigationStatus = "detecting"
	StatusPlanning      InvestigationStatus = "planning"
	StatusInvestigating InvestigationStatus = "investigating"
	StatusDeciding      InvestigationStatus = "deciding"
	StatusActing        InvestigationStatus = "acting"
	StatusReporting     InvestigationStatus = "reporting"
	StatusCompleted     InvestigationStatus = "completed"
	StatusFailed        InvestigationStatus = "failed"
	StatusCancelled     InvestigationStatus = "cancelled"
)

// Scope bounds a single analysis task: which service, which metric, what window.
type Scope struct {
	Service string    `json:"service"`
	Metric  string    `json:"metric"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// AnalysisTask names a target analyzer and the scope it should cover.
type AnalysisTask struct {
	Analyzer string `json:"analyzer"`
	Scope    Scope  `json:"scope"`
}

// InvestigationPlan is produced once by the plan step and read-only thereafter.
type InvestigationPlan struct {
	Hypothesis string         `json:"hypothesis"`
	Tasks      []AnalysisTask `json:"tasks"`
	CreatedAt  time.Time      `json:"created_at"`
}

// EvidenceItem is a key/value observation with a source reference.
type EvidenceItem struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Finding is a single analyzer's output. Immutable once produced; owned by the
// producing analyzer and merged into state under that analyzer's key.
type Finding struct {
	Analyzer   string         `json:"analyzer"`
	Summary    string         `json:"summary"`
	Evidence   []EvidenceItem `json:"evidence"`
	Confidence float64        `json:"confidence"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Correlation links two or more findings by temporal/causal overlap. Derived
// during join, never persisted independently.
type Correlation struct {
	Kind       string   `json:"kind"`
	Analyzers  []string `json:"analyzers"`
	LagMinutes float64  `json:"lag_minutes"`
	Note       string   `json:"note"`
}

// Outcome enumerates the decision's chosen course of action.
type Outcome string

const (
	OutcomeRecommendRollback Outcome = "recommend-rollback"
	OutcomeReportOnly        Outcome = "report-only"
	OutcomeNeedsMoreData     Outcome = "needs-more-data"
)

// Decision is the synthesis output of the decide step. Set at most once.
type Decision struct {
	RootCause      string    `json:"root_cause"`
	Confidence     float64   `json:"confidence"`
	Outcome        Outcome   `json:"outcome"`
	Recommendation string    `json:"recommendation"`
	DecidedAt      time.Time `json:"decided_at"`
}

// RemediationOutcome records what the act step did. Dispatched means the
// request reached the dispatcher; Executed means the collaborator acked it.
type RemediationOutcome struct {
	Action     string    `json:"action"`
	Dispatched bool      `json:"dispatched"`
	Executed   bool      `json:"executed"`
	Message    string    `json:"message"`
	At         time.Time `json:"at"`
}

// InvestigationRecord is the persisted terminal snapshot of an investigation.
type InvestigationRecord struct {
	ID           string              `json:"id"`
	Alert        Alert               `json:"alert"`
	Plan         *InvestigationPlan  `json:"plan,omitempty"`
	Findings     map[string]Finding  `json:"findings,omitempty"`
	Correlations []Correlation       `json:"correlations,omitempty"`
	Decision     *Decision           `json:"decision,omitempty"`
	Remediation  *RemediationOutcome `json:"remediation,omitempty"`
	Trace        []string            `json:"trace,omitempty"`
	Status       InvestigationStatus `json:"status"`
	Report       string              `json:"report,omitempty"`
	StartedAt    time.Time           `json:"started_at"`
	CompletedAt  time.Time           `json:"completed_at"`
	Version      uint64              `json:"version"`
}

// FailurePattern aggregates recurring root causes for a service across
// investigation history.
type FailurePattern struct {
	ID            string    `json:"id"`
	Service       string    `json:"service"`
	Name          string    `json:"name"`
	Occurrences   int       `json:"occurrences"`
	Prevalence    float64   `json:"prevalence"`
	TopRootCauses []string  `json:"top_root_causes"`
	AvgConfidence float64   `json:"avg_confidence"`
	LastSeen      time.Time `json:"last_seen"`
}
