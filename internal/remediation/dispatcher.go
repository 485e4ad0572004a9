// Package remediation triggers rollback workflows through a workflow-dispatch
// API. Dispatches are fire-once: the caller decides whether to act, this
// package only carries the trigger.
package remediation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/faultlens/faultlens-agent/internal/config"
	"github.com/faultlens/faultlens-agent/internal/metrics"
	"github.com/faultlens/faultlens-agent/internal/models"
)

// ErrRemediation signals a dispatch failure. Dispatches are never retried;
// the investigation records the failure and continues to its report.
var ErrRemediation = errors.New("remediation dispatch failed")

// WorkflowDispatcher triggers a named workflow in a repository via the
// workflow-dispatch endpoint.
type WorkflowDispatcher struct {
	baseURL    string
	token      string
	repo       string
	workflow   string
	ref        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWorkflowDispatcher builds a dispatcher from remediation configuration.
func NewWorkflowDispatcher(cfg config.RemediationConfig, logger *slog.Logger) (*WorkflowDispatcher, error) {
	if cfg.Repo == "" {
		return nil, fmt.Errorf("remediation repo is required")
	}
	if cfg.Workflow == "" {
		return nil, fmt.Errorf("remediation workflow is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &WorkflowDispatcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      cfg.Token,
		repo:       cfg.Repo,
		workflow:   cfg.Workflow,
		ref:        "main",
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Dispatch posts one workflow-dispatch request. The returned outcome always
// reflects what happened, even when err is non-nil.
func (d *WorkflowDispatcher) Dispatch(ctx context.Context, investigationID, service, action, reason string) (models.RemediationOutcome, error) {
	outcome := models.RemediationOutcome{Action: action, At: time.Now().UTC()}

	payload := map[string]any{
		"ref": d.ref,
		"inputs": map[string]string{
			"service":          service,
			"action":           action,
			"reason":           truncateReason(reason),
			"investigation_id": investigationID,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return outcome, fmt.Errorf("%w: marshal inputs: %v", ErrRemediation, err)
	}

	endpoint := fmt.Sprintf("%s/repos/%s/actions/workflows/%s/dispatches", d.baseURL, d.repo, d.workflow)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return outcome, fmt.Errorf("%w: %v", ErrRemediation, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		metrics.ObserveRemediationDispatch(metrics.OutcomeError)
		return outcome, fmt.Errorf("%w: %v", ErrRemediation, err)
	}
	defer resp.Body.Close()
	outcome.Dispatched = true

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.ObserveRemediationDispatch(metrics.OutcomeError)
		return outcome, fmt.Errorf("%w: workflow API returned %s: %s", ErrRemediation, resp.Status, strings.TrimSpace(string(detail)))
	}

	outcome.Executed = true
	outcome.Message = fmt.Sprintf("workflow %s dispatched for %s", d.workflow, service)
	metrics.ObserveRemediationDispatch(metrics.OutcomeSuccess)
	d.logger.Info("remediation dispatched",
		slog.String("investigation_id", investigationID),
		slog.String("service", service),
		slog.String("action", action),
		slog.String("workflow", d.workflow))
	return outcome, nil
}

func truncateReason(reason string) string {
	const max = 400
	if len(reason) <= max {
		return reason
	}
	return reason[:max]
}
