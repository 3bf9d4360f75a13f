package models

import "time"

// MaxPoints is the largest point count of a single sweep.
const MaxPoints = 100001

// SweepPlan is a linear frequency axis produced by the grid planner.
type SweepPlan struct {
	Start  float64 `json:"start" doc:"Start frequency in Hz"`
	Stop   float64 `json:"stop" doc:"Stop frequency in Hz"`
	Points int     `json:"points" doc:"Number of points"`
}

// Frequencies expands the plan into evenly spaced frequencies including both
// ends. A single-point plan yields only Start.
func (p SweepPlan) Frequencies() []float64 {
	if p.Points <= 0 {
		return nil
	}
	out := make([]float64, p.Points)
	if p.Points == 1 {
		out[0] = p.Start
		return out
	}
	step := (p.Stop - p.Start) / float64(p.Points-1)
	for i := range out {
		out[i] = p.Start + float64(i)*step
	}
	out[p.Points-1] = p.Stop
	return out
}

// FitRecord is the flat quantity → value mapping produced by one resonator
// fit, e.g. "Qi", "Qi_err", "fr".
type FitRecord map[string]float64

// PowerSeries is the power dependence of one fit quantity. Powers are
// attenuation-corrected and ascending; Values is aligned with Powers.
type PowerSeries struct {
	Powers []int     `json:"powers" doc:"Corrected input power in dBm, ascending"`
	Values []float64 `json:"values" doc:"Quantity value at each power"`
}

// Len returns the number of points in the series.
func (s PowerSeries) Len() int { return len(s.Powers) }

// Run status values.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// SweepRun is the persisted index entry for one acquisition.
type SweepRun struct {
	ID           string     `json:"id"`
	Operator     string     `json:"operator"`
	Chip         string     `json:"chip"`
	SubPath      string     `json:"sub_path,omitempty"`
	Power        float64    `json:"power"`
	Bandwidth    float64    `json:"bandwidth"`
	Averages     int        `json:"averages"`
	Points       int        `json:"points"`
	StartFreq    float64    `json:"start_freq"`
	StopFreq     float64    `json:"stop_freq"`
	Status       string     `json:"status"`
	ArtifactPath *string    `json:"artifact_path,omitempty"`
	ErrorMsg     *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// FitResult is a stored fit record for a run.
type FitResult struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Values    FitRecord `json:"values"`
	CreatedAt time.Time `json:"created_at"`
}
