// Package memory implements the run index in process memory, for tests and
// servers started without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RMahshie/resonara/internal/repository"
	"github.com/RMahshie/resonara/pkg/models"
)

// RunRepository implements repository.RunRepository backed by maps.
type RunRepository struct {
	mu   sync.RWMutex
	runs map[string]models.SweepRun
	fits map[string]models.FitResult
}

// NewRunRepository returns an empty in-memory run repository.
func NewRunRepository() *RunRepository {
	return &RunRepository{
		runs: make(map[string]models.SweepRun),
		fits: make(map[string]models.FitResult),
	}
}

func (r *RunRepository) Create(_ context.Context, run *models.SweepRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.CreatedAt
	}
	if run.Status == "" {
		run.Status = models.StatusPending
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = *run
	return nil
}

func (r *RunRepository) GetByID(_ context.Context, id uuid.UUID) (*models.SweepRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id.String()]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &run, nil
}

// ListByChip returns the runs of one chip, newest first.
func (r *RunRepository) ListByChip(_ context.Context, operator, chip string) ([]*models.SweepRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.SweepRun
	for _, run := range r.runs {
		if run.Operator == operator && run.Chip == chip {
			run := run
			out = append(out, &run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *RunRepository) update(id uuid.UUID, fn func(*models.SweepRun)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id.String()]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&run)
	run.UpdatedAt = time.Now().UTC()
	r.runs[run.ID] = run
	return nil
}

func (r *RunRepository) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	return r.update(id, func(run *models.SweepRun) {
		run.Status = status
		if status == models.StatusCompleted {
			now := time.Now().UTC()
			run.CompletedAt = &now
		}
	})
}

func (r *RunRepository) Complete(_ context.Context, id uuid.UUID, artifactPath string) error {
	return r.update(id, func(run *models.SweepRun) {
		now := time.Now().UTC()
		run.Status = models.StatusCompleted
		run.ArtifactPath = &artifactPath
		run.CompletedAt = &now
	})
}

func (r *RunRepository) UpdateError(_ context.Context, id uuid.UUID, errorMsg string) error {
	return r.update(id, func(run *models.SweepRun) {
		run.Status = models.StatusFailed
		run.ErrorMsg = &errorMsg
	})
}

// StoreFit stores the fit record of a run, replacing an earlier one.
func (r *RunRepository) StoreFit(_ context.Context, fit *models.FitResult) error {
	if fit.ID == "" {
		fit.ID = uuid.New().String()
	}
	if fit.CreatedAt.IsZero() {
		fit.CreatedAt = time.Now().UTC()
	}
	stored := *fit
	stored.Values = make(models.FitRecord, len(fit.Values))
	for k, v := range fit.Values {
		stored.Values[k] = v
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fits[fit.RunID] = stored
	return nil
}

func (r *RunRepository) GetFit(_ context.Context, runID uuid.UUID) (*models.FitResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fit, ok := r.fits[runID.String()]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &fit, nil
}

var _ repository.RunRepository = (*RunRepository)(nil)
