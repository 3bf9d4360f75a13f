package handlers

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/RMahshie/resonara/internal/aggregate"
	"github.com/RMahshie/resonara/internal/fit"
	"github.com/RMahshie/resonara/internal/grid"
	"github.com/RMahshie/resonara/internal/peaks"
	"github.com/RMahshie/resonara/internal/tracefile"
	"github.com/RMahshie/resonara/pkg/measerr"
	"github.com/RMahshie/resonara/pkg/models"
	"github.com/RMahshie/resonara/pkg/units"
)

// AnalysisHandler handles grid planning, peak location and aggregation
// requests. None of them touch the instrument.
type AnalysisHandler struct {
	basePath           string
	defaultAttenuation int
	powerRange         aggregate.PowerRange
	fitExt             string
}

// NewAnalysisHandler creates a new analysis handler reading results below basePath
func NewAnalysisHandler(basePath string, defaultAttenuation int, powerRange aggregate.PowerRange, fitExt string) *AnalysisHandler {
	if fitExt == "" {
		fitExt = fit.DefaultExtension
	}
	return &AnalysisHandler{
		basePath:           basePath,
		defaultAttenuation: defaultAttenuation,
		powerRange:         powerRange,
		fitExt:             fitExt,
	}
}

// PlanGrid sizes a frequency grid
func (h *AnalysisHandler) PlanGrid(ctx context.Context, req *models.PlanGridRequest) (*models.PlanGridResponse, error) {
	in := req.Body
	var plan models.SweepPlan
	var err error
	switch in.Preset {
	case "":
		plan, err = grid.Linear(in.Start, in.Stop, in.Q, in.PointsPerLinewidth)
	case "spectrum":
		plan, err = grid.Spectrum(in.Start, in.Stop)
	default:
		var p grid.Preset
		if p, err = grid.PresetByName(in.Preset); err == nil {
			plan, err = p.Plan(in.Center, in.Q)
		}
	}
	if err != nil {
		return nil, apiError("Failed to plan grid", err)
	}

	resp := &models.PlanGridResponse{}
	resp.Body.SweepPlan = plan
	if plan.Points > 1 {
		resp.Body.Step = (plan.Stop - plan.Start) / float64(plan.Points-1)
	}
	return resp, nil
}

// FindPeaks locates the steepest features of a posted sweep
func (h *AnalysisHandler) FindPeaks(ctx context.Context, req *models.FindPeaksRequest) (*models.PeaksResponse, error) {
	in := req.Body
	if len(in.Real) != len(in.Imag) {
		return nil, apiError("Invalid sweep data",
			measerr.Validation("real and imaginary parts differ in length: %d != %d", len(in.Real), len(in.Imag)))
	}
	data := make([]complex128, len(in.Real))
	for i := range data {
		data[i] = complex(in.Real[i], in.Imag[i])
	}

	var opts []peaks.Option
	if in.ExclusionRadius > 0 {
		opts = append(opts, peaks.WithExclusionRadius(in.ExclusionRadius))
	}
	found, err := peaks.Find(in.Frequencies, data, in.NumPeaks, opts...)
	if err != nil {
		return nil, apiError("Failed to locate peaks", err)
	}

	resp := &models.PeaksResponse{}
	resp.Body.Peaks = found
	return resp, nil
}

// Aggregate collects one fit quantity over corrected input power
func (h *AnalysisHandler) Aggregate(ctx context.Context, req *models.AggregateRequest) (*models.AggregateResponse, error) {
	in := req.Body
	dirs := make([]string, len(in.Directories))
	for i, d := range in.Directories {
		if !filepath.IsAbs(d) {
			d = filepath.Join(h.basePath, d)
		}
		if _, err := tracefile.Rel(h.basePath, d); err != nil {
			return nil, apiError("Invalid directory", err)
		}
		dirs[i] = d
	}
	att := h.defaultAttenuation
	if in.DefaultAttenuation != nil {
		att = *in.DefaultAttenuation
	}
	rng := h.powerRange
	if in.MinPower != nil {
		rng.Min = *in.MinPower
	}
	if in.MaxPower != nil {
		rng.Max = *in.MaxPower
	}

	log.Info().Strs("directories", dirs).Str("key", in.Key).Msg("Aggregating fit results")
	series, err := aggregate.Collect(dirs, in.Key, att, rng, aggregate.WithExtension(h.fitExt))
	if err != nil {
		return nil, apiError("Failed to aggregate fit results", err)
	}

	resp := &models.AggregateResponse{}
	resp.Body.Key = in.Key
	resp.Body.PowerSeries = series
	resp.Body.Watts = make([]float64, len(series.Powers))
	for i, p := range series.Powers {
		resp.Body.Watts[i] = units.DBmToWatts(float64(p))
	}
	return resp, nil
}
