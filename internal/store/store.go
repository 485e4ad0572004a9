// Package store persists terminal investigation records.
package store

import (
	"context"
	"errors"

	"github.com/faultlens/faultlens-agent/internal/models"
)

// ErrNotFound signals a lookup for an unknown investigation.
var ErrNotFound = errors.New("investigation not found")

// ErrStorage signals a persistence failure. Callers surface it alongside the
// in-memory snapshot rather than discarding the investigation outcome.
var ErrStorage = errors.New("storage error")

// Store is the persistence surface the run controller needs.
type Store interface {
	Save(ctx context.Context, rec models.InvestigationRecord) error
	Load(ctx context.Context, id string) (models.InvestigationRecord, error)
	List(ctx context.Context, service string, limit int) ([]models.InvestigationRecord, error)
	Close() error
}
