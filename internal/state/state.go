// Package state holds the mutable investigation record threaded through the
// reasoning graph. Concurrent merge safety rests on a structural invariant:
// each analyzer branch receives a FindingWriter bound to its own key, so no
// two concurrent writers ever touch the same finding. The internal mutex
// guards map and slice memory, not the write contract.
package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/faultlens/faultlens-agent/internal/models"
)

// State is the aggregate passed through the graph. Owned by the run
// controller for the duration of one investigation; a fresh State is built
// for every run.
type State struct {
	mu sync.Mutex

	id          string
	alert       models.Alert
	plan        *models.InvestigationPlan
	findings    map[string]models.Finding
	correlations []models.Correlation
	trace       []string
	decision    *models.Decision
	remediation *models.RemediationOutcome
	report      string
	node        string
	status      models.InvestigationStatus
	version     uint64
	startedAt   time.Time
	completedAt time.Time
}

// New seeds a fresh State from the triggering alert.
func New(id string, alert models.Alert) *State {
	return &State{
		id:        id,
		alert:     alert,
		findings:  make(map[string]models.Finding, 3),
		status:    models.StatusPending,
		startedAt: time.Now().UTC(),
	}
}

// ID returns the investigation identifier.
func (s *State) ID() string { return s.id }

// Alert returns the immutable triggering alert.
func (s *State) Alert() models.Alert { return s.alert }

// Version returns the current merge counter. It strictly increases with
// every mutation, which makes lost updates from parallel writers detectable.
func (s *State) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// SetPlan records the investigation plan. The plan is created once and
// read-only thereafter.
func (s *State) SetPlan(plan models.InvestigationPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := plan
	s.plan = &p
	s.version++
}

// Plan returns the plan, or nil before the plan step has run.
func (s *State) Plan() *models.InvestigationPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plan == nil {
		return nil
	}
	p := *s.plan
	return &p
}

// AppendTrace appends one reasoning-trace entry. Append-only; entries from
// concurrent branches interleave in no guaranteed order.
func (s *State) AppendTrace(format string, args ...any) {
	entry := fmt.Sprintf(format, args...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trace = append(s.trace, entry)
	s.version++
}

// Trace returns a copy of the trace log.
func (s *State) Trace() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.trace...)
}

// FindingWriter is a single-key write handle handed to exactly one analyzer
// branch. Put merges at most one finding under the writer's key.
type FindingWriter struct {
	state *State
	key   string
	once  sync.Once
}

// Writer returns the write handle for the named analyzer key.
func (s *State) Writer(analyzer string) *FindingWriter {
	return &FindingWriter{state: s, key: analyzer}
}

// Put merges the finding under this writer's key. A second Put on the same
// writer is rejected, preserving finding immutability.
func (w *FindingWriter) Put(f models.Finding) error {
	var err error = fmt.Errorf("finding for %q already merged", w.key)
	w.once.Do(func() {
		f.Analyzer = w.key
		w.state.mu.Lock()
		w.state.findings[w.key] = f
		w.state.version++
		w.state.mu.Unlock()
		err = nil
	})
	return err
}

// Findings returns a copy of the finding map keyed by analyzer identity.
func (s *State) Findings() map[string]models.Finding {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.Finding, len(s.findings))
	for k, v := range s.findings {
		out[k] = v
	}
	return out
}

// SetCorrelations replaces the derived correlations. Recomputed each run by
// the join step; never concurrent.
func (s *State) SetCorrelations(correlations []models.Correlation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.correlations = append([]models.Correlation(nil), correlations...)
	s.version++
}

// Correlations returns a copy of the derived correlations.
func (s *State) Correlations() []models.Correlation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Correlation(nil), s.correlations...)
}

// SetDecision records the decision. Terminal once set: a second call fails.
func (s *State) SetDecision(d models.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decision != nil {
		return fmt.Errorf("decision already set for investigation %s", s.id)
	}
	dd := d
	s.decision = &dd
	s.version++
	return nil
}

// Decision returns the decision, or nil before the decide step.
func (s *State) Decision() *models.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decision == nil {
		return nil
	}
	d := *s.decision
	return &d
}

// SetRemediation records the act step's outcome.
func (s *State) SetRemediation(r models.RemediationOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rr := r
	s.remediation = &rr
	s.version++
}

// Remediation returns the remediation outcome, or nil if act never ran.
func (s *State) Remediation() *models.RemediationOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remediation == nil {
		return nil
	}
	r := *s.remediation
	return &r
}

// SetReport stores the rendered incident report.
func (s *State) SetReport(report string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = report
	s.version++
}

// Report returns the rendered incident report, empty before the report step.
func (s *State) Report() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// SetNode records the current graph node and the externally visible status.
func (s *State) SetNode(node string, status models.InvestigationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.node = node
	s.status = status
	s.version++
}

// Node returns the current graph node name.
func (s *State) Node() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.node
}

// Status returns the externally visible status.
func (s *State) Status() models.InvestigationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// MarkCompleted stamps the completion time.
func (s *State) MarkCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completedAt = time.Now().UTC()
	s.version++
}

// Snapshot materialises the state into a record suitable for status reads
// and persistence.
func (s *State) Snapshot() models.InvestigationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := models.InvestigationRecord{
		ID:          s.id,
		Alert:       s.alert,
		Status:      s.status,
		Report:      s.report,
		Trace:       append([]string(nil), s.trace...),
		StartedAt:   s.startedAt,
		CompletedAt: s.completedAt,
		Version:     s.version,
	}
	if s.plan != nil {
		p := *s.plan
		rec.Plan = &p
	}
	if len(s.findings) > 0 {
		rec.Findings = make(map[string]models.Finding, len(s.findings))
		for k, v := range s.findings {
			rec.Findings[k] = v
		}
	}
	if len(s.correlations) > 0 {
		rec.Correlations = append([]models.Correlation(nil), s.correlations...)
	}
	if s.decision != nil {
		d := *s.decision
		rec.Decision = &d
	}
	if s.remediation != nil {
		r := *s.remediation
		rec.Remediation = &r
	}
	return rec
}
