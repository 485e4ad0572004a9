package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/faultlens/faultlens-agent/internal/controller"
	"github.com/faultlens/faultlens-agent/internal/models"
	"github.com/faultlens/faultlens-agent/internal/store"
)

// InvestigationController is the lifecycle surface the handlers drive.
type InvestigationController interface {
	Start(ctx context.Context, alert models.Alert) (string, error)
	Status(ctx context.Context, id string) (models.InvestigationRecord, error)
	Cancel(id string) error
	List(ctx context.Context, service string, limit int) ([]models.InvestigationRecord, error)
}

// PatternMiner aggregates stored records into failure patterns.
type PatternMiner interface {
	Mine(records []models.InvestigationRecord) []models.FailurePattern
}

// Handlers holds the REST endpoint implementations.
type Handlers struct {
	controller InvestigationController
	miner      PatternMiner
	logger     *slog.Logger
}

// NewHandlers wires the endpoint set.
func NewHandlers(ctrl InvestigationController, miner PatternMiner, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{controller: ctrl, miner: miner, logger: logger}
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SubmitAlert starts an investigation for the posted alert.
func (h *Handlers) SubmitAlert(w http.ResponseWriter, r *http.Request) {
	var alert models.Alert
	if err := json.NewDecoder(r.Body).Decode(&alert); err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert payload: "+err.Error())
		return
	}

	id, err := h.controller.Start(r.Context(), alert)
	if err != nil {
		if errors.Is(err, controller.ErrInvestigationInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"investigation_id": id})
}

// GetInvestigation returns the live or persisted record for an id.
func (h *Handlers) GetInvestigation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := h.controller.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "investigation not found")
			return
		}
		h.logger.Error("status read failed", slog.String("investigation_id", id), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to read investigation")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetReport returns the rendered markdown report for a finished investigation.
func (h *Handlers) GetReport(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := h.controller.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "investigation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read investigation")
		return
	}
	if rec.Report == "" {
		writeError(w, http.StatusConflict, "report not available yet")
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(rec.Report))
}

// CancelInvestigation aborts a running investigation.
func (h *Handlers) CancelInvestigation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.controller.Cancel(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no running investigation with that id")
			return
		}
		writeError(w, http.StatusInternalServerError, "cancel failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListInvestigations returns stored records, optionally filtered by service.
func (h *Handlers) ListInvestigations(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	records, err := h.controller.List(r.Context(), service, limit)
	if err != nil {
		h.logger.Error("list investigations failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list investigations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"investigations": records})
}

// GetPatterns mines failure patterns from investigation history.
func (h *Handlers) GetPatterns(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	records, err := h.controller.List(r.Context(), service, 500)
	if err != nil {
		h.logger.Error("pattern mining list failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to mine patterns")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"patterns": h.miner.Mine(records)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
