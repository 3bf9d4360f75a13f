package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/RMahshie/resonara/internal/repository"
	"github.com/RMahshie/resonara/pkg/models"
)

//go:embed schema.sql
var schema string

// PostgresRunRepository implements RunRepository for PostgreSQL
type PostgresRunRepository struct {
	db *sql.DB
}

// NewPostgresRunRepository creates a new PostgreSQL run repository
func NewPostgresRunRepository(db *sql.DB) *PostgresRunRepository {
	return &PostgresRunRepository{db: db}
}

// Migrate creates the tables if they do not exist
func (r *PostgresRunRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Create inserts a new run, assigning an ID and timestamps when unset
func (r *PostgresRunRepository) Create(ctx context.Context, run *models.SweepRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.CreatedAt
	}
	if run.Status == "" {
		run.Status = models.StatusPending
	}

	query := `
		INSERT INTO sweep_runs (id, operator, chip, sub_path, power, bandwidth, averages, points,
		                        start_freq, stop_freq, status, artifact_path, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Operator,
		run.Chip,
		run.SubPath,
		run.Power,
		run.Bandwidth,
		run.Averages,
		run.Points,
		run.StartFreq,
		run.StopFreq,
		run.Status,
		run.ArtifactPath,
		run.CreatedAt,
		run.UpdatedAt)

	return err
}

const runColumns = `id, operator, chip, sub_path, power, bandwidth, averages, points, start_freq, stop_freq,
	status, artifact_path, error_message, created_at, updated_at, completed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.SweepRun, error) {
	var run models.SweepRun
	var artifactPath, errorMsg sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&run.ID,
		&run.Operator,
		&run.Chip,
		&run.SubPath,
		&run.Power,
		&run.Bandwidth,
		&run.Averages,
		&run.Points,
		&run.StartFreq,
		&run.StopFreq,
		&run.Status,
		&artifactPath,
		&errorMsg,
		&run.CreatedAt,
		&run.UpdatedAt,
		&completedAt)
	if err != nil {
		return nil, err
	}

	if artifactPath.Valid {
		run.ArtifactPath = &artifactPath.String
	}
	if errorMsg.Valid {
		run.ErrorMsg = &errorMsg.String
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return &run, nil
}

// GetByID retrieves a run by ID
func (r *PostgresRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SweepRun, error) {
	query := `SELECT ` + runColumns + ` FROM sweep_runs WHERE id = $1`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return run, err
}

// ListByChip retrieves the runs of one chip, newest first
func (r *PostgresRunRepository) ListByChip(ctx context.Context, operator, chip string) ([]*models.SweepRun, error) {
	query := `SELECT ` + runColumns + `
		FROM sweep_runs
		WHERE operator = $1 AND chip = $2
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, operator, chip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.SweepRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *PostgresRunRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateStatus updates the status of a run
func (r *PostgresRunRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := `
		UPDATE sweep_runs
		SET status = $1, updated_at = NOW(),
		    completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_at END
		WHERE id = $2`

	return r.exec(ctx, query, status, id)
}

// Complete marks a run completed and records where its artifacts were saved
func (r *PostgresRunRepository) Complete(ctx context.Context, id uuid.UUID, artifactPath string) error {
	query := `
		UPDATE sweep_runs
		SET status = 'completed', artifact_path = $1, updated_at = NOW(), completed_at = NOW()
		WHERE id = $2`

	return r.exec(ctx, query, artifactPath, id)
}

// UpdateError marks a run failed with the given message
func (r *PostgresRunRepository) UpdateError(ctx context.Context, id uuid.UUID, errorMsg string) error {
	query := `
		UPDATE sweep_runs
		SET status = 'failed', error_message = $1, updated_at = NOW()
		WHERE id = $2`

	return r.exec(ctx, query, errorMsg, id)
}

// StoreFit stores the fit record of a run, replacing an earlier one
func (r *PostgresRunRepository) StoreFit(ctx context.Context, fit *models.FitResult) error {
	record, err := json.Marshal(fit.Values)
	if err != nil {
		return fmt.Errorf("failed to marshal fit record: %w", err)
	}
	if fit.ID == "" {
		fit.ID = uuid.New().String()
	}
	if fit.CreatedAt.IsZero() {
		fit.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO fit_results (id, run_id, record, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id) DO UPDATE SET record = EXCLUDED.record, created_at = EXCLUDED.created_at`

	_, err = r.db.ExecContext(ctx, query, fit.ID, fit.RunID, string(record), fit.CreatedAt)
	return err
}

// GetFit retrieves the fit record of a run
func (r *PostgresRunRepository) GetFit(ctx context.Context, runID uuid.UUID) (*models.FitResult, error) {
	query := `
		SELECT id, run_id, record, created_at
		FROM fit_results
		WHERE run_id = $1`

	var fit models.FitResult
	var record []byte
	err := r.db.QueryRowContext(ctx, query, runID).Scan(&fit.ID, &fit.RunID, &record, &fit.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(record, &fit.Values); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fit record: %w", err)
	}
	return &fit, nil
}

var _ repository.RunRepository = (*PostgresRunRepository)(nil)
