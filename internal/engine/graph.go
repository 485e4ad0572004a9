// Package engine runs the reasoning graph: a fixed state machine that takes
// an alert through detection, planning, parallel investigation, evidence
// joining, decision, optional remediation, and reporting.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/faultlens/faultlens-agent/internal/analyzers"
	"github.com/faultlens/faultlens-agent/internal/config"
	"github.com/faultlens/faultlens-agent/internal/metrics"
	"github.com/faultlens/faultlens-agent/internal/models"
	"github.com/faultlens/faultlens-agent/internal/reasoner"
	"github.com/faultlens/faultlens-agent/internal/state"
)

// Graph node names, recorded on state as each step begins.
const (
	NodeDetect      = "detect"
	NodePlan        = "plan"
	NodeInvestigate = "investigate"
	NodeJoin        = "join"
	NodeDecide      = "decide"
	NodeAct         = "act"
	NodeReport      = "report"
	NodeCancelled   = "cancelled"
	NodeFailed      = "failed"
)

// postAlertWindow extends each analysis scope beyond the alert timestamp so
// evidence landing shortly after the trigger is still fetched.
const postAlertWindow = 10 * time.Minute

// Dispatcher triggers a remediation workflow. Implementations must be
// fire-once: the engine never retries a dispatch.
type Dispatcher interface {
	Dispatch(ctx context.Context, investigationID, service, action, reason string) (models.RemediationOutcome, error)
}

// Reporter renders a terminal investigation record into a human-readable
// incident report.
type Reporter interface {
	Render(rec models.InvestigationRecord) (string, error)
}

type permitGovernor interface {
	Acquire(ctx context.Context, cost int) error
}

// Options bundles the engine's collaborators and tuning knobs.
type Options struct {
	Analyzers       []analyzers.Analyzer
	Playbook        *Playbook
	Dispatcher      Dispatcher
	Reporter        Reporter
	Governor        permitGovernor
	Reasoner        reasoner.Client
	Lookback        time.Duration
	AnalyzerTimeout time.Duration
	Threshold       float64
	Aggregation     string
	Logger          *slog.Logger
}

// Engine executes the investigation graph over a state aggregate.
type Engine struct {
	analyzers       map[string]analyzers.Analyzer
	playbook        *Playbook
	dispatcher      Dispatcher
	reporter        Reporter
	governor        permitGovernor
	reasoner        reasoner.Client
	lookback        time.Duration
	analyzerTimeout time.Duration
	threshold       float64
	aggregation     string
	logger          *slog.Logger
}

// New constructs an Engine. Dispatcher and Reasoner may be nil: without a
// dispatcher the act step records a skipped remediation, and without a
// reasoner the plan hypothesis stays deterministic.
func New(opts Options) (*Engine, error) {
	if len(opts.Analyzers) == 0 {
		return nil, fmt.Errorf("engine requires at least one analyzer")
	}
	if opts.Reporter == nil {
		return nil, fmt.Errorf("engine requires a reporter")
	}
	byName := make(map[string]analyzers.Analyzer, len(opts.Analyzers))
	for _, a := range opts.Analyzers {
		if _, dup := byName[a.Name()]; dup {
			return nil, fmt.Errorf("duplicate analyzer %q", a.Name())
		}
		byName[a.Name()] = a
	}

	playbook := opts.Playbook
	if playbook == nil {
		playbook = DefaultPlaybook()
	}
	lookback := opts.Lookback
	if lookback <= 0 {
		lookback = 30 * time.Minute
	}
	analyzerTimeout := opts.AnalyzerTimeout
	if analyzerTimeout <= 0 {
		analyzerTimeout = 20 * time.Second
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = 0.7
	}
	aggregation := opts.Aggregation
	if aggregation == "" {
		aggregation = config.AggregationMean
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		analyzers:       byName,
		playbook:        playbook,
		dispatcher:      opts.Dispatcher,
		reporter:        opts.Reporter,
		governor:        opts.Governor,
		reasoner:        opts.Reasoner,
		lookback:        lookback,
		analyzerTimeout: analyzerTimeout,
		threshold:       threshold,
		aggregation:     aggregation,
		logger:          logger,
	}, nil
}

// Run drives one investigation from detect to report. Cancellation between
// nodes leaves the state in the cancelled terminal node; a validation failure
// lands in failed. Branch errors inside investigate are absorbed.
func (e *Engine) Run(ctx context.Context, st *state.State) error {
	alert := st.Alert()

	st.SetNode(NodeDetect, models.StatusDetecting)
	if err := alert.Validate(); err != nil {
		st.AppendTrace("detect: alert rejected: %v", err)
		st.SetNode(NodeFailed, models.StatusFailed)
		st.MarkCompleted()
		return fmt.Errorf("detect: %w", err)
	}
	st.AppendTrace("detect: %s alert for %s (severity %s)", alert.Symptom, alert.Service, alert.Severity)

	if err := e.checkCancelled(ctx, st); err != nil {
		return err
	}

	st.SetNode(NodePlan, models.StatusPlanning)
	plan := e.buildPlan(ctx, alert)
	st.SetPlan(plan)
	st.AppendTrace("plan: %d analysis tasks, hypothesis: %s", len(plan.Tasks), plan.Hypothesis)

	if err := e.checkCancelled(ctx, st); err != nil {
		return err
	}

	st.SetNode(NodeInvestigate, models.StatusInvestigating)
	failedBranches := e.investigate(ctx, st, plan)

	if err := e.checkCancelled(ctx, st); err != nil {
		return err
	}

	st.SetNode(NodeJoin, models.StatusInvestigating)
	correlations := correlate(st.Findings(), e.lookback)
	st.SetCorrelations(correlations)
	st.AppendTrace("join: %d findings, %d correlations, %d failed branches", len(st.Findings()), len(correlations), failedBranches)

	if err := e.checkCancelled(ctx, st); err != nil {
		return err
	}

	st.SetNode(NodeDecide, models.StatusDeciding)
	decision := e.decide(st.Findings(), correlations, failedBranches, alert)
	if err := st.SetDecision(decision); err != nil {
		st.SetNode(NodeFailed, models.StatusFailed)
		st.MarkCompleted()
		return fmt.Errorf("decide: %w", err)
	}
	st.AppendTrace("decide: %s (confidence %.2f)", decision.Outcome, decision.Confidence)

	if decision.Outcome == models.OutcomeRecommendRollback {
		st.SetNode(NodeAct, models.StatusActing)
		e.act(ctx, st, alert, decision)
	}

	st.SetNode(NodeReport, models.StatusReporting)
	if report, err := e.reporter.Render(st.Snapshot()); err != nil {
		st.AppendTrace("report: render failed: %v", err)
	} else {
		st.SetReport(report)
	}

	st.SetNode(NodeReport, models.StatusCompleted)
	st.MarkCompleted()
	return nil
}

// checkCancelled routes a cancelled context to the cancelled terminal node.
func (e *Engine) checkCancelled(ctx context.Context, st *state.State) error {
	if ctx.Err() == nil {
		return nil
	}
	st.AppendTrace("cancelled at node %s", st.Node())
	st.SetNode(NodeCancelled, models.StatusCancelled)
	st.MarkCompleted()
	return ctx.Err()
}

// buildPlan produces the deterministic task fan-out and, when a reasoner is
// wired and a permit is cheap to get, an enriched hypothesis. Hypothesis
// enrichment is best-effort: any failure falls back to the deterministic one.
func (e *Engine) buildPlan(ctx context.Context, alert models.Alert) models.InvestigationPlan {
	// The window extends past the alert so evidence trailing the trigger
	// (error spikes that follow a suspect deploy) stays in scope.
	scope := models.Scope{
		Service: alert.Service,
		Metric:  alert.Metric,
		Start:   alert.Timestamp.Add(-e.lookback),
		End:     alert.Timestamp.Add(postAlertWindow),
	}

	tasks := make([]models.AnalysisTask, 0, len(e.analyzers))
	for _, name := range []string{analyzers.NameForensic, analyzers.NameTelemetry, analyzers.NameHistory} {
		if _, ok := e.analyzers[name]; ok {
			tasks = append(tasks, models.AnalysisTask{Analyzer: name, Scope: scope})
		}
	}

	plan := models.InvestigationPlan{
		Hypothesis: fmt.Sprintf("%s degradation in %s, suspected recent change or dependency fault", alert.Symptom, alert.Service),
		Tasks:      tasks,
		CreatedAt:  time.Now().UTC(),
	}

	if e.reasoner != nil && e.governor != nil {
		if hypothesis := e.enrichHypothesis(ctx, alert); hypothesis != "" {
			plan.Hypothesis = hypothesis
		}
	}
	return plan
}

const plannerSystemPrompt = `You are an incident commander forming an initial hypothesis.
Given an alert, state the single most likely cause category in one sentence.
Respond ONLY with a JSON object: {"hypothesis": "<one sentence>"}`

func (e *Engine) enrichHypothesis(ctx context.Context, alert models.Alert) string {
	if err := e.governor.Acquire(ctx, 1); err != nil {
		e.logger.Debug("plan hypothesis skipped", slog.Any("error", err))
		return ""
	}
	payload, _ := json.Marshal(alert)
	raw, err := e.reasoner.Complete(ctx, plannerSystemPrompt, string(payload))
	if err != nil {
		e.logger.Debug("plan hypothesis failed", slog.Any("error", err))
		return ""
	}
	var parsed struct {
		Hypothesis string `json:"hypothesis"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return ""
	}
	return parsed.Hypothesis
}

// investigate fans the plan's tasks out across analyzer branches and joins
// them. Branch failures are absorbed into the trace and the failure count;
// only the parent context cancels the whole fan-out.
func (e *Engine) investigate(ctx context.Context, st *state.State, plan models.InvestigationPlan) int {
	g, groupCtx := errgroup.WithContext(ctx)
	failures := make(chan string, len(plan.Tasks))

	for _, task := range plan.Tasks {
		analyzer, ok := e.analyzers[task.Analyzer]
		if !ok {
			st.AppendTrace("investigate: no analyzer registered for %q", task.Analyzer)
			failures <- task.Analyzer
			continue
		}
		writer := st.Writer(task.Analyzer)
		task := task
		g.Go(func() error {
			branchCtx, cancel := context.WithTimeout(groupCtx, e.analyzerTimeout)
			defer cancel()

			finding, err := analyzer.Investigate(branchCtx, st.Alert(), task.Scope)
			if err != nil {
				metrics.ObserveAnalyzerFailure(task.Analyzer)
				st.AppendTrace("investigate: %s failed: %v", task.Analyzer, err)
				failures <- task.Analyzer
				return nil
			}
			if err := writer.Put(finding); err != nil {
				st.AppendTrace("investigate: %s merge rejected: %v", task.Analyzer, err)
				failures <- task.Analyzer
				return nil
			}
			st.AppendTrace("investigate: %s merged finding (confidence %.2f)", task.Analyzer, finding.Confidence)
			return nil
		})
	}

	_ = g.Wait()
	close(failures)

	count := 0
	for range failures {
		count++
	}
	return count
}

// act dispatches the remediation exactly once and records the outcome. A
// dispatch failure never fails the investigation; the error lands in the
// remediation outcome and the trace.
func (e *Engine) act(ctx context.Context, st *state.State, alert models.Alert, decision models.Decision) {
	rule, _ := e.playbook.Resolve(alert.Service, alert.Symptom)

	if e.dispatcher == nil {
		st.SetRemediation(models.RemediationOutcome{
			Action:  rule.Action,
			Message: "no dispatcher configured; remediation skipped",
			At:      time.Now().UTC(),
		})
		st.AppendTrace("act: no dispatcher configured, skipping %s", rule.Action)
		return
	}

	outcome, err := e.dispatcher.Dispatch(ctx, st.ID(), alert.Service, rule.Action, decision.RootCause)
	if err != nil {
		if outcome.At.IsZero() {
			outcome = models.RemediationOutcome{Action: rule.Action, At: time.Now().UTC()}
		}
		outcome.Message = err.Error()
		st.SetRemediation(outcome)
		st.AppendTrace("act: %s dispatch failed: %v", rule.Action, err)
		e.logger.Warn("remediation dispatch failed",
			slog.String("investigation_id", st.ID()),
			slog.String("action", rule.Action),
			slog.Any("error", err))
		return
	}

	st.SetRemediation(outcome)
	st.AppendTrace("act: dispatched %s for %s", rule.Action, alert.Service)
}
