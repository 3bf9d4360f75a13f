// Package campaign runs power sweeps over a set of resonances: each
// acquisition is recorded in the run index, saved, optionally fitted and
// mirrored to object storage.
package campaign

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/RMahshie/resonara/internal/fit"
	"github.com/RMahshie/resonara/internal/grid"
	"github.com/RMahshie/resonara/internal/peaks"
	"github.com/RMahshie/resonara/internal/repository"
	"github.com/RMahshie/resonara/internal/storage"
	"github.com/RMahshie/resonara/internal/sweep"
	"github.com/RMahshie/resonara/internal/tracefile"
	"github.com/RMahshie/resonara/pkg/measerr"
	"github.com/RMahshie/resonara/pkg/models"
)

// Fixed window used when no grid preset is selected.
const (
	DefaultSpan   = 3e5
	DefaultPoints = 301
)

// outputTimeout bounds switching RF output off after an acquisition.
const outputTimeout = 5 * time.Second

// Window selects the probe frequencies around a resonance: a grid preset
// sized for quality factor Q, or a fixed span and point count.
type Window struct {
	Preset string
	Q      float64
	Span   float64
	Points int
}

// Frequencies returns the window around center.
func (w Window) Frequencies(center float64) ([]float64, error) {
	if w.Preset != "" {
		p, err := grid.PresetByName(w.Preset)
		if err != nil {
			return nil, err
		}
		return p.Grid(center, w.Q)
	}
	span, points := w.Span, w.Points
	if span == 0 {
		span = DefaultSpan
	}
	if points == 0 {
		points = DefaultPoints
	}
	if span < 0 || points < 1 || points > models.MaxPoints {
		return nil, measerr.Configuration("invalid window: span %g, %d points", span, points)
	}
	if points == 1 {
		return []float64{center}, nil
	}
	return models.SweepPlan{Start: center - span/2, Stop: center + span/2, Points: points}.Frequencies(), nil
}

// Plan describes a power sweep campaign on one chip.
type Plan struct {
	Operator    string
	Chip        string
	SubFolder   string
	Attenuation float64   // total input line attenuation in dB, negative
	Resonances  []float64 // center frequencies; the n-th is saved under Res<n>
	Select      []int     // 1-based resonances to measure, all when empty
	Window      Window
	Steps       []PowerStep
}

// SubPath returns the directory of resonance n below the chip.
func (p Plan) SubPath(n int) string {
	att := strconv.FormatFloat(p.Attenuation, 'f', -1, 64)
	return filepath.Join(p.SubFolder, fmt.Sprintf("detailed_sweep_%sdBm", att), fmt.Sprintf("Res%d", n))
}

func (p Plan) selected() ([]int, error) {
	if len(p.Select) == 0 {
		all := make([]int, len(p.Resonances))
		for i := range all {
			all[i] = i + 1
		}
		return all, nil
	}
	for _, n := range p.Select {
		if n < 1 || n > len(p.Resonances) {
			return nil, measerr.Configuration("resonance %d out of range 1..%d", n, len(p.Resonances))
		}
	}
	return p.Select, nil
}

// Measurement is the outcome of one acquisition.
type Measurement struct {
	RunID     string
	Resonance int
	Step      PowerStep
	Path      string // saved artifacts, without extension
	Fit       models.FitRecord
	Keys      []string // mirrored object keys
}

// Option customizes a Runner.
type Option func(*Runner)

// WithStore mirrors saved artifacts to store.
func WithStore(store storage.ObjectStore) Option {
	return func(r *Runner) { r.store = store }
}

// WithFitter fits each saved trace; ext is the fit-result file extension.
func WithFitter(f fit.Fitter, ext string) Option {
	return func(r *Runner) {
		r.fitter = f
		if ext != "" {
			r.fitExt = ext
		}
	}
}

// Runner serializes acquisitions on one instrument.
type Runner struct {
	controller *sweep.Controller
	repo       repository.RunRepository
	store      storage.ObjectStore
	fitter     fit.Fitter
	basePath   string
	fitExt     string

	// instrument is held for the duration of every instrument exchange.
	instrument chan struct{}
}

// NewRunner creates a runner saving below basePath.
func NewRunner(controller *sweep.Controller, repo repository.RunRepository, basePath string, opts ...Option) *Runner {
	r := &Runner{
		controller: controller,
		repo:       repo,
		basePath:   basePath,
		fitExt:     fit.DefaultExtension,
		instrument: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BasePath returns the directory measurements are saved below.
func (r *Runner) BasePath() string { return r.basePath }

// Busy reports whether the instrument is in use.
func (r *Runner) Busy() bool { return len(r.instrument) > 0 }

// lock waits for the instrument until ctx is done.
func (r *Runner) lock(ctx context.Context) error {
	select {
	case r.instrument <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for instrument: %w", ctx.Err())
	}
}

func (r *Runner) unlock() { <-r.instrument }

type job struct {
	resonance int
	step      PowerStep
	trace     *models.Trace
}

func (r *Runner) jobs(plan Plan) ([]job, error) {
	if len(plan.Steps) == 0 {
		return nil, measerr.Configuration("plan has no power steps")
	}
	sel, err := plan.selected()
	if err != nil {
		return nil, err
	}
	var jobs []job
	for _, step := range plan.Steps {
		for _, n := range sel {
			freqs, err := plan.Window.Frequencies(plan.Resonances[n-1])
			if err != nil {
				return nil, err
			}
			t, err := models.NewTrace(plan.Operator, plan.Chip, step.Bandwidth, step.Power, freqs,
				models.WithAverages(step.Averages), models.WithSubPath(plan.SubPath(n)))
			if err != nil {
				return nil, err
			}
			if err := tracefile.CheckDir(t, r.basePath); err != nil {
				return nil, err
			}
			jobs = append(jobs, job{resonance: n, step: step, trace: t})
		}
	}
	return jobs, nil
}

// Acquisitions validates plan and returns the number of acquisitions it
// makes, without touching the instrument.
func (r *Runner) Acquisitions(plan Plan) (int, error) {
	jobs, err := r.jobs(plan)
	return len(jobs), err
}

// Estimate returns the expected acquisition time of the whole plan. It
// waits for the instrument until ctx is done.
func (r *Runner) Estimate(ctx context.Context, plan Plan) (time.Duration, error) {
	jobs, err := r.jobs(plan)
	if err != nil {
		return 0, err
	}
	if err := r.lock(ctx); err != nil {
		return 0, err
	}
	defer r.unlock()
	var total time.Duration
	for _, j := range jobs {
		d, err := r.controller.Estimate(ctx, j.trace)
		if err != nil {
			return 0, err
		}
		total += d
	}
	return total, nil
}

// Run measures every selected resonance at every power step, in step
// order. It stops at the first failed acquisition and returns the
// measurements completed so far.
func (r *Runner) Run(ctx context.Context, plan Plan) ([]Measurement, error) {
	jobs, err := r.jobs(plan)
	if err != nil {
		return nil, err
	}
	total, err := r.Estimate(ctx, plan)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("chip", plan.Chip).
		Int("acquisitions", len(jobs)).
		Dur("expected", total).
		Time("finish", time.Now().Add(total)).
		Msg("Starting power sweep")

	var done []Measurement
	for _, j := range jobs {
		run, err := r.Submit(ctx, j.trace)
		if err != nil {
			return done, err
		}
		m, err := r.Execute(ctx, run.ID, j.trace)
		if err != nil {
			return done, fmt.Errorf("res%d at %g dBm: %w", j.resonance, j.step.Power, err)
		}
		m.Resonance = j.resonance
		m.Step = j.step
		done = append(done, m)
	}
	log.Info().Str("chip", plan.Chip).Int("acquisitions", len(done)).Msg("Power sweep finished")
	return done, nil
}

// Submit records a pending run for t.
func (r *Runner) Submit(ctx context.Context, t *models.Trace) (*models.SweepRun, error) {
	if err := tracefile.CheckDir(t, r.basePath); err != nil {
		return nil, err
	}
	run := &models.SweepRun{
		Operator:  t.Operator,
		Chip:      t.Chip,
		SubPath:   t.SubPath,
		Power:     t.Power,
		Bandwidth: t.Bandwidth,
		Averages:  t.Averages,
		Points:    t.Points(),
		StartFreq: t.Start(),
		StopFreq:  t.Stop(),
		Status:    models.StatusPending,
	}
	if err := r.repo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// Execute acquires t for a submitted run and saves it, waiting for the
// instrument until ctx is done. Fit and mirroring failures are logged; the
// run still completes since its data is saved.
func (r *Runner) Execute(ctx context.Context, runID string, t *models.Trace) (Measurement, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return Measurement{}, measerr.Validation("invalid run id %q", runID)
	}

	if err := r.lock(ctx); err != nil {
		r.fail(ctx, id, err)
		return Measurement{}, err
	}
	defer r.unlock()

	if err := r.repo.UpdateStatus(ctx, id, models.StatusRunning); err != nil {
		return Measurement{}, err
	}
	path, err := r.acquire(ctx, t)
	if err != nil {
		r.fail(ctx, id, err)
		return Measurement{}, err
	}

	m := Measurement{RunID: runID, Path: path}
	if r.fitter != nil {
		rec, err := r.fitter.Fit(ctx, path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Fit failed")
		} else {
			m.Fit = rec
			if err := r.repo.StoreFit(ctx, &models.FitResult{RunID: runID, Values: rec}); err != nil {
				log.Warn().Err(err).Str("run_id", runID).Msg("Failed to store fit")
			}
		}
	}
	if r.store != nil {
		keys, err := storage.MirrorArtifacts(ctx, r.store, r.basePath, path, r.fitExt)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to mirror artifacts")
		}
		m.Keys = keys
	}

	if err := r.repo.Complete(ctx, id, path); err != nil {
		return m, err
	}
	return m, nil
}

// acquire measures t and saves it.
func (r *Runner) acquire(ctx context.Context, t *models.Trace) (string, error) {
	if err := r.measure(ctx, t); err != nil {
		return "", err
	}
	return tracefile.Save(t, r.basePath)
}

func (r *Runner) fail(ctx context.Context, id uuid.UUID, cause error) {
	if err := r.repo.UpdateError(context.WithoutCancel(ctx), id, cause.Error()); err != nil {
		log.Error().Err(err).Str("run_id", id.String()).Msg("Failed to record run failure")
	}
}

// PeakScan is a wide sweep searching for resonances.
type PeakScan struct {
	Operator        string
	Chip            string
	Start           float64
	Stop            float64
	Points          int       // zero sizes the grid for full-spectrum scans
	Settings        PowerStep // zero uses SpectrumSettings
	NumPeaks        int
	ExclusionRadius int // zero uses the locator default
	Save            bool
}

// Discovery is the result of a peak scan.
type Discovery struct {
	Peaks []float64
	Path  string // saved artifacts when requested
}

// Discover sweeps the scan range and locates the steepest features. It
// waits for the instrument until ctx is done.
func (r *Runner) Discover(ctx context.Context, scan PeakScan) (Discovery, error) {
	plan := models.SweepPlan{Start: scan.Start, Stop: scan.Stop, Points: scan.Points}
	if scan.Points == 0 {
		var err error
		if plan, err = grid.Spectrum(scan.Start, scan.Stop); err != nil {
			return Discovery{}, err
		}
	}
	if plan.Points < 1 || plan.Points > models.MaxPoints {
		return Discovery{}, measerr.Configuration("scan point count must be 1..%d, got %d", models.MaxPoints, plan.Points)
	}
	settings := scan.Settings
	if settings == (PowerStep{}) {
		settings = SpectrumSettings
	}
	t, err := models.NewTrace(scan.Operator, scan.Chip, settings.Bandwidth, settings.Power, plan.Frequencies(),
		models.WithAverages(max(settings.Averages, 1)))
	if err != nil {
		return Discovery{}, err
	}
	if err := tracefile.CheckDir(t, r.basePath); err != nil {
		return Discovery{}, err
	}

	if err := r.lock(ctx); err != nil {
		return Discovery{}, err
	}
	defer r.unlock()

	var d Discovery
	if scan.Save {
		if d.Path, err = r.acquire(ctx, t); err != nil {
			return Discovery{}, err
		}
	} else if err := r.measure(ctx, t); err != nil {
		return Discovery{}, err
	}

	var opts []peaks.Option
	if scan.ExclusionRadius > 0 {
		opts = append(opts, peaks.WithExclusionRadius(scan.ExclusionRadius))
	}
	d.Peaks, err = peaks.Find(t.Frequencies, t.Data(), scan.NumPeaks, opts...)
	if err != nil {
		return Discovery{}, err
	}
	log.Info().Floats64("peaks", d.Peaks).Str("chip", scan.Chip).Msg("Peak scan finished")
	return d, nil
}

// measure brackets one sweep with RF output on and off.
func (r *Runner) measure(ctx context.Context, t *models.Trace) error {
	driver := r.controller.Driver()
	if err := driver.SetOutput(ctx, true); err != nil {
		return fmt.Errorf("switch output on: %w", err)
	}
	defer func() {
		offCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), outputTimeout)
		defer cancel()
		if err := driver.SetOutput(offCtx, false); err != nil {
			log.Error().Err(err).Msg("Failed to switch RF output off")
		}
	}()
	return r.controller.Measure(ctx, t)
}
