// Package controller owns investigation lifecycle: single-flight admission,
// background execution, status reads, cancellation, and persistence of
// terminal snapshots.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/faultlens/faultlens-agent/internal/metrics"
	"github.com/faultlens/faultlens-agent/internal/models"
	"github.com/faultlens/faultlens-agent/internal/state"
	"github.com/faultlens/faultlens-agent/internal/store"
	"github.com/faultlens/faultlens-agent/internal/utils"
)

// ErrInvestigationInProgress rejects a start while another run holds the
// single-flight slot.
var ErrInvestigationInProgress = errors.New("an investigation is already in progress")

// Runner executes one investigation over a state aggregate.
type Runner interface {
	Run(ctx context.Context, st *state.State) error
}

type running struct {
	st     *state.State
	cancel context.CancelFunc
	done   chan struct{}
}

// Controller serialises investigations: at most one run at a time, with the
// terminal record persisted before the slot is released.
type Controller struct {
	engine  Runner
	store   store.Store
	logger  *slog.Logger
	latency *utils.LatencyTracker

	slot sync.Mutex // the single-flight slot; held for a run's full lifetime

	mu      sync.Mutex // guards current and lastRecord
	current *running
	// lastRecord keeps the most recent terminal snapshot reachable when
	// persistence failed and the run is no longer live.
	lastRecord *models.InvestigationRecord
}

// New constructs a Controller.
func New(engine Runner, st store.Store, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		engine:  engine,
		store:   st,
		logger:  logger,
		latency: utils.NewLatencyTracker(256),
	}
}

// Start admits a new investigation for the alert. It returns the
// investigation id immediately; the run proceeds in the background. A second
// start while a run is live fails with ErrInvestigationInProgress.
func (c *Controller) Start(_ context.Context, alert models.Alert) (string, error) {
	if err := alert.Validate(); err != nil {
		return "", err
	}
	if !c.slot.TryLock() {
		return "", ErrInvestigationInProgress
	}

	id := uuid.NewString()
	st := state.New(id, alert)
	// The run outlives the triggering HTTP request; only Cancel or shutdown
	// stops it.
	runCtx, cancel := context.WithCancel(context.Background())

	r := &running{st: st, cancel: cancel, done: make(chan struct{})}
	c.mu.Lock()
	c.current = r
	c.mu.Unlock()

	c.logger.Info("investigation started",
		slog.String("investigation_id", id),
		slog.String("service", alert.Service),
		slog.String("symptom", string(alert.Symptom)))

	go c.run(runCtx, r)
	return id, nil
}

// run executes the engine and releases the single-flight slot only after the
// terminal snapshot is persisted (or deliberately skipped for cancellations).
func (c *Controller) run(ctx context.Context, r *running) {
	started := time.Now()
	defer func() {
		c.mu.Lock()
		c.current = nil
		c.mu.Unlock()
		r.cancel()
		// Release the slot before signalling done so a waiter unblocked by
		// done can start immediately.
		c.slot.Unlock()
		close(r.done)
	}()

	err := c.engine.Run(ctx, r.st)
	duration := time.Since(started)
	c.latency.Observe(duration)

	snapshot := r.st.Snapshot()
	switch snapshot.Status {
	case models.StatusCancelled:
		// A cancelled run leaves no record behind.
		metrics.ObserveInvestigation(duration, metrics.OutcomeCancelled)
		c.logger.Info("investigation cancelled",
			slog.String("investigation_id", snapshot.ID),
			slog.Duration("duration", duration))
		return
	case models.StatusFailed:
		metrics.ObserveInvestigation(duration, metrics.OutcomeError)
	default:
		metrics.ObserveInvestigation(duration, metrics.OutcomeSuccess)
	}

	if err != nil && snapshot.Status != models.StatusFailed {
		c.logger.Warn("investigation finished with error",
			slog.String("investigation_id", snapshot.ID),
			slog.Any("error", err))
	}

	c.mu.Lock()
	c.lastRecord = &snapshot
	c.mu.Unlock()

	if saveErr := c.store.Save(ctx, snapshot); saveErr != nil {
		c.logger.Error("failed to persist investigation record",
			slog.String("investigation_id", snapshot.ID),
			slog.Any("error", saveErr))
		return
	}

	c.logger.Info("investigation completed",
		slog.String("investigation_id", snapshot.ID),
		slog.String("status", string(snapshot.Status)),
		slog.Duration("duration", duration),
		slog.Duration("p95", c.latency.Percentile(95)))
}

// Status returns the live snapshot for a running investigation, or the
// persisted record for a finished one. The in-memory fallback covers records
// whose persistence failed.
func (c *Controller) Status(ctx context.Context, id string) (models.InvestigationRecord, error) {
	c.mu.Lock()
	current := c.current
	last := c.lastRecord
	c.mu.Unlock()

	if current != nil && current.st.ID() == id {
		return current.st.Snapshot(), nil
	}

	rec, err := c.store.Load(ctx, id)
	if err == nil {
		return rec, nil
	}
	if errors.Is(err, store.ErrNotFound) && last != nil && last.ID == id {
		return *last, nil
	}
	return models.InvestigationRecord{}, err
}

// Cancel aborts the named running investigation. Finished or unknown ids
// return store.ErrNotFound.
func (c *Controller) Cancel(id string) error {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if current == nil || current.st.ID() != id {
		return store.ErrNotFound
	}
	current.cancel()
	<-current.done
	return nil
}

// List returns persisted records, newest first, optionally filtered by
// service.
func (c *Controller) List(ctx context.Context, service string, limit int) ([]models.InvestigationRecord, error) {
	return c.store.List(ctx, service, limit)
}

// Shutdown cancels any in-flight investigation and waits for it to unwind.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if current != nil {
		current.cancel()
		<-current.done
	}
}
