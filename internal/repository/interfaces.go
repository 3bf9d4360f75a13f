package repository

import (
	"context"
	"errors"

	"github.com/RMahshie/resonara/pkg/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a run or fit does not exist.
var ErrNotFound = errors.New("not found")

// RunRepository defines the interface for the sweep run index
type RunRepository interface {
	Create(ctx context.Context, run *models.SweepRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SweepRun, error)
	ListByChip(ctx context.Context, operator, chip string) ([]*models.SweepRun, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	Complete(ctx context.Context, id uuid.UUID, artifactPath string) error
	UpdateError(ctx context.Context, id uuid.UUID, errorMsg string) error
	StoreFit(ctx context.Context, fit *models.FitResult) error
	GetFit(ctx context.Context, runID uuid.UUID) (*models.FitResult, error)
}
