// Package analyzers contains the parallel investigation branches. Each
// analyzer owns one evidence domain, digests raw signals locally, and spends
// exactly one reasoner permit to turn the digest into a finding.
package analyzers

import (
	"context"
	"errors"
	"fmt"

	"github.com/faultlens/faultlens-agent/internal/models"
)

// Analyzer names. Each doubles as the finding key in investigation state.
const (
	NameForensic  = "forensic"
	NameTelemetry = "telemetry"
	NameHistory   = "history"
)

// ErrAnalysisTimeout signals that an analyzer ran out of time before
// producing a finding.
var ErrAnalysisTimeout = errors.New("analysis timed out")

// ErrAnalysisError signals an analyzer failure other than a timeout.
var ErrAnalysisError = errors.New("analysis failed")

// Analyzer is one investigation branch. Investigate must honour ctx and
// return a finding carrying the analyzer's own name.
type Analyzer interface {
	Name() string
	Investigate(ctx context.Context, alert models.Alert, scope models.Scope) (models.Finding, error)
}

// branchError classifies a branch failure into the analysis error taxonomy.
// Deadline expiry becomes a timeout; everything else keeps its cause chained
// under ErrAnalysisError.
func branchError(ctx context.Context, name string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: analyzer %s", ErrAnalysisTimeout, name)
	}
	if errors.Is(err, ErrAnalysisError) || errors.Is(err, ErrAnalysisTimeout) {
		return err
	}
	return fmt.Errorf("%w: analyzer %s: %w", ErrAnalysisError, name, err)
}
