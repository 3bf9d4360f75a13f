// Package sim provides a simulated network analyzer with a fixed set of
// notch-type resonators, used for tests and dry runs without hardware.
package sim

import (
	"context"
	"errors"
	"math"
	"math/cmplx"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/RMahshie/resonara/internal/instrument"
	"github.com/RMahshie/resonara/pkg/models"
)

// ResonatorCount is the number of simulated resonators.
const ResonatorCount = 10

// Resonator parameters of a single simulated notch.
type Resonator struct {
	QC      float64 // coupling quality factor
	QI0     float64 // internal quality factor at low power
	DeltaQI float64 // internal quality factor gained at high power
	Phi     float64 // impedance mismatch rotation
	Freq    float64 // resonance frequency in Hz
}

// InternalQ returns the power-dependent internal quality factor.
func (r Resonator) InternalQ(power float64) float64 {
	return r.QI0 + r.DeltaQI/(1+math.Exp(-((power+50)/70*8-4)))
}

// LoadedQ returns the loaded quality factor at the given power.
func (r Resonator) LoadedQ(power float64) float64 {
	qc := real(complex(r.QC, 0) * cmplx.Exp(complex(0, -r.Phi)))
	return 1 / (1/r.InternalQ(power) + 1/qc)
}

// response is the notch depth of r at frequency f.
func (r Resonator) response(f, power float64) complex128 {
	ql := r.LoadedQ(power)
	return complex(ql/r.QC, 0) * cmplx.Exp(complex(0, r.Phi)) / complex(1, 2*ql*(f/r.Freq-1))
}

// ErrNotConfigured is returned when a sweep is started before Configure.
var ErrNotConfigured = errors.New("sim: instrument not configured")

// Option customizes a VNA.
type Option func(*VNA)

// WithPollsToComplete sets how many completion polls a repetition needs.
func WithPollsToComplete(n int) Option { return func(v *VNA) { v.pollsToComplete = n } }

// WithStuckSweep makes every repetition hang so completion is never reported.
func WithStuckSweep() Option { return func(v *VNA) { v.stuck = true } }

// WithSweepDuration fixes the reported per-repetition sweep duration.
// Without it the duration is points divided by IF bandwidth.
func WithSweepDuration(d time.Duration) Option { return func(v *VNA) { v.sweepDuration = d } }

// WithNoise scales the amplitude noise. Zero disables noise and jitter.
func WithNoise(scale float64) Option { return func(v *VNA) { v.noise = scale } }

// VNA simulates the instrument capability. It is safe for concurrent use,
// though the sweep controller never shares one.
type VNA struct {
	mu sync.Mutex

	rng        *rand.Rand
	resonators []Resonator

	pollsToComplete int
	stuck           bool
	sweepDuration   time.Duration
	noise           float64
	timeout         time.Duration

	cfg        instrument.SweepConfig
	configured bool
	continuous bool
	output     bool

	pending int // polls left until the running repetition completes, -1 when idle
	sweeps  int
	acc     []complex128
}

// New returns a simulated VNA whose resonators are drawn from seed.
func New(seed int64, opts ...Option) *VNA {
	rng := rand.New(rand.NewSource(seed))
	res := make([]Resonator, ResonatorCount)
	for i := range res {
		res[i] = Resonator{
			QC:      float64(150_000 + rng.Intn(20_001)),
			QI0:     100_000,
			DeltaQI: 50_000,
			Phi:     rng.Float64() * 0.2,
			Freq:    4.1e9 + 0.2e9*float64(i) + float64(rng.Intn(20_000_001)-10_000_000),
		}
	}
	v := &VNA{
		rng:             rng,
		resonators:      res,
		pollsToComplete: 1,
		noise:           1,
		timeout:         5 * time.Second,
		continuous:      true,
		pending:         -1,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Resonators returns a copy of the simulated resonator parameters.
func (v *VNA) Resonators() []Resonator {
	out := make([]Resonator, len(v.resonators))
	copy(out, v.resonators)
	return out
}

// Output reports whether RF output is on.
func (v *VNA) Output() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.output
}

// Continuous reports whether free-run triggering is on.
func (v *VNA) Continuous() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.continuous
}

func (v *VNA) Configure(ctx context.Context, cfg instrument.SweepConfig) (instrument.SweepConfig, error) {
	if err := cfg.Validate(); err != nil {
		return instrument.SweepConfig{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cfg = cfg
	v.configured = true
	v.sweeps = 0
	v.acc = nil
	v.pending = -1
	log.Debug().Float64("power", cfg.Power).Int("points", cfg.Points).Msg("Simulated VNA configured")
	return cfg, nil
}

func (v *VNA) SetContinuous(ctx context.Context, on bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.continuous = on
	return nil
}

func (v *VNA) SetOutput(ctx context.Context, on bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.output = on
	return nil
}

// Trigger acquires one repetition immediately; completion is reported
// after the configured number of polls.
func (v *VNA) Trigger(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.configured {
		return ErrNotConfigured
	}
	freqs := models.SweepPlan{Start: v.cfg.Start, Stop: v.cfg.Stop, Points: v.cfg.Points}.Frequencies()
	if v.acc == nil {
		v.acc = make([]complex128, len(freqs))
	}
	for i, f := range freqs {
		v.acc[i] += v.signal(f)
	}
	v.sweeps++
	v.pending = v.pollsToComplete
	return nil
}

func (v *VNA) OperationComplete(ctx context.Context) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stuck || v.pending < 0 {
		return false, nil
	}
	if v.pending > 1 {
		v.pending--
		return false, nil
	}
	v.pending = -1
	return true, nil
}

func (v *VNA) WaitComplete(ctx context.Context) error {
	return ctx.Err()
}

func (v *VNA) ReadRawSamples(ctx context.Context) ([]float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sweeps == 0 {
		return nil, ErrNotConfigured
	}
	avg := make([]complex128, len(v.acc))
	for i, c := range v.acc {
		avg[i] = c / complex(float64(v.sweeps), 0)
	}
	return instrument.Interleave(avg), nil
}

func (v *VNA) SweepDuration(ctx context.Context) (time.Duration, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sweepDuration > 0 {
		return v.sweepDuration, nil
	}
	if !v.configured {
		return 0, ErrNotConfigured
	}
	return time.Duration(float64(v.cfg.Points) / v.cfg.Bandwidth * float64(time.Second)), nil
}

func (v *VNA) Timeout() time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.timeout
}

func (v *VNA) SetTimeout(d time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.timeout = d
}

// signal is the transmission at nominal frequency f, with the probe
// frequency jittered within the IF bandwidth.
func (v *VNA) signal(f float64) complex128 {
	power := v.cfg.Power
	probe := f
	if v.noise > 0 {
		probe = f - v.cfg.Bandwidth/2 + v.rng.Float64()*v.cfg.Bandwidth
	}
	s := complex(1, 0)
	for _, r := range v.resonators {
		s -= r.response(probe, power)
	}
	if v.noise > 0 {
		s += complex((v.rng.Float64()-0.5)*0.01*(20-power)/10*v.noise, 0)
	}
	return s
}

var (
	_ instrument.Driver          = (*VNA)(nil)
	_ instrument.TimeoutAdjuster = (*VNA)(nil)
)
