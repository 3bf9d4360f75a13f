// Package grid sizes linear frequency axes so that a resonance of a given
// quality factor is resolved with a chosen number of points per linewidth.
//
// The expected full width at half maximum of a resonance at f with quality
// factor Q is Δf = f/Q. A grid with k points per linewidth therefore has a
// target spacing of Δf/k.
package grid

import (
	"math"
	"strings"

	"github.com/RMahshie/resonara/pkg/measerr"
	"github.com/RMahshie/resonara/pkg/models"
)

// DefaultSpectrumQ is the coupling quality factor assumed for full-spectrum
// scans when no better estimate exists.
const DefaultSpectrumQ = 1e5

// SpectrumPointsPerLinewidth is the resolution used for full-spectrum scans.
const SpectrumPointsPerLinewidth = 2

// Preset is a named window configuration around a resonance.
type Preset struct {
	Name               string
	SpanLinewidths     float64 // half-width of the window in linewidths
	PointsPerLinewidth float64
}

var (
	// Coarse is the pre-scan window used to estimate the loaded quality factor.
	Coarse = Preset{Name: "coarse", SpanLinewidths: 40, PointsPerLinewidth: 5}
	// Precise is the window used for the final fit around the resonance.
	Precise = Preset{Name: "precise", SpanLinewidths: 6, PointsPerLinewidth: 40}
)

// Presets lists the named window configurations.
func Presets() []Preset { return []Preset{Coarse, Precise} }

// PresetByName looks up a window preset, case-insensitively.
func PresetByName(name string) (Preset, error) {
	for _, p := range Presets() {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return Preset{}, measerr.Configuration("unknown grid preset %q", name)
}

// Linear plans an evenly spaced axis from fStart to fEnd with the point
// count rounded from span / (fStart/couplingQ/pointsPerLinewidth). A count
// that rounds below one is raised to a single point at fStart.
func Linear(fStart, fEnd, couplingQ, pointsPerLinewidth float64) (models.SweepPlan, error) {
	if couplingQ <= 0 {
		return models.SweepPlan{}, measerr.Configuration("quality factor must be > 0, got %g", couplingQ)
	}
	if pointsPerLinewidth <= 0 {
		return models.SweepPlan{}, measerr.Configuration("points per linewidth must be > 0, got %g", pointsPerLinewidth)
	}
	if fStart <= 0 {
		return models.SweepPlan{}, measerr.Configuration("start frequency must be > 0, got %g", fStart)
	}
	if fEnd <= fStart {
		return models.SweepPlan{}, measerr.Configuration("span must be > 0, got %g..%g", fStart, fEnd)
	}

	spacing := fStart / couplingQ / pointsPerLinewidth
	n := math.Round((fEnd - fStart) / spacing)
	if math.IsInf(n, 0) || n > math.MaxInt32 {
		return models.SweepPlan{}, measerr.Configuration("grid too dense: %g points", n)
	}
	if n < 1 {
		n = 1
	}
	if n > 1 {
		// spacing below the float resolution would repeat frequencies
		ulp := math.Nextafter(fEnd, math.Inf(1)) - fEnd
		if step := (fEnd - fStart) / (n - 1); step < ulp {
			return models.SweepPlan{}, measerr.Configuration("grid spacing %g Hz is below the frequency resolution %g Hz", step, ulp)
		}
	}
	return models.SweepPlan{Start: fStart, Stop: fEnd, Points: int(n)}, nil
}

// LinearGrid is Linear expanded into frequencies.
func LinearGrid(fStart, fEnd, couplingQ, pointsPerLinewidth float64) ([]float64, error) {
	plan, err := Linear(fStart, fEnd, couplingQ, pointsPerLinewidth)
	if err != nil {
		return nil, err
	}
	return plan.Frequencies(), nil
}

// Window plans a symmetric window of ±span linewidths around center, where
// one linewidth is center/q, and sizes it with Linear.
func Window(center, q, spanLinewidths, pointsPerLinewidth float64) (models.SweepPlan, error) {
	if q <= 0 {
		return models.SweepPlan{}, measerr.Configuration("quality factor must be > 0, got %g", q)
	}
	if spanLinewidths <= 0 {
		return models.SweepPlan{}, measerr.Configuration("span must be > 0 linewidths, got %g", spanLinewidths)
	}
	df := center / q
	return Linear(center-spanLinewidths*df, center+spanLinewidths*df, q, pointsPerLinewidth)
}

// Plan sizes the preset's window around center for quality factor q.
func (p Preset) Plan(center, q float64) (models.SweepPlan, error) {
	return Window(center, q, p.SpanLinewidths, p.PointsPerLinewidth)
}

// Grid is Plan expanded into frequencies.
func (p Preset) Grid(center, q float64) ([]float64, error) {
	plan, err := p.Plan(center, q)
	if err != nil {
		return nil, err
	}
	return plan.Frequencies(), nil
}

// Spectrum plans a full-spectrum scan assuming DefaultSpectrumQ.
func Spectrum(fStart, fEnd float64) (models.SweepPlan, error) {
	return Linear(fStart, fEnd, DefaultSpectrumQ, SpectrumPointsPerLinewidth)
}
