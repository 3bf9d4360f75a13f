// Package instrument defines the capability a vector network analyzer must
// offer to be driven by the sweep controller.
package instrument

import (
	"context"
	"time"

	"github.com/RMahshie/resonara/pkg/measerr"
	"github.com/RMahshie/resonara/pkg/models"
)

// SweepConfig is the full acquisition setup applied to an instrument.
type SweepConfig struct {
	Power     float64 // output power in dBm
	Bandwidth float64 // IF bandwidth in Hz
	Start     float64 // Hz
	Stop      float64 // Hz
	Points    int
	Averages  int
}

// ConfigFor derives the acquisition setup of a trace.
func ConfigFor(t *models.Trace) SweepConfig {
	return SweepConfig{
		Power:     t.Power,
		Bandwidth: t.Bandwidth,
		Start:     t.Start(),
		Stop:      t.Stop(),
		Points:    t.Points(),
		Averages:  t.Averages,
	}
}

// Validate checks c before it is sent to an instrument.
func (c SweepConfig) Validate() error {
	switch {
	case c.Bandwidth <= 0:
		return measerr.Configuration("bandwidth must be > 0, got %g", c.Bandwidth)
	case c.Points < 1:
		return measerr.Configuration("point count must be >= 1, got %d", c.Points)
	case c.Points > models.MaxPoints:
		return measerr.Configuration("point count must be <= %d, got %d", models.MaxPoints, c.Points)
	case c.Averages < 1:
		return measerr.Configuration("average count must be >= 1, got %d", c.Averages)
	case c.Start <= 0 || c.Stop < c.Start:
		return measerr.Configuration("invalid frequency bounds %g..%g", c.Start, c.Stop)
	case c.Points > 1 && c.Stop == c.Start:
		return measerr.Configuration("%d points over an empty span", c.Points)
	}
	return nil
}

// Driver is the hardware-facing boundary of the sweep controller. A Driver
// is owned by one caller at a time; implementations need not be safe for
// concurrent use.
type Driver interface {
	// Configure applies cfg and returns the configuration in effect.
	Configure(ctx context.Context, cfg SweepConfig) (SweepConfig, error)
	// SetContinuous enables or disables free-run triggering.
	SetContinuous(ctx context.Context, on bool) error
	// SetOutput switches RF output.
	SetOutput(ctx context.Context, on bool) error
	// Trigger clears the completion flag and starts one sweep repetition.
	Trigger(ctx context.Context) error
	// OperationComplete polls the completion flag without blocking.
	OperationComplete(ctx context.Context) (bool, error)
	// WaitComplete blocks until all pending operations have finished.
	WaitComplete(ctx context.Context) error
	// ReadRawSamples returns the measured trace as interleaved re/im pairs.
	ReadRawSamples(ctx context.Context) ([]float64, error)
	// SweepDuration reports the duration of one sweep repetition.
	SweepDuration(ctx context.Context) (time.Duration, error)
}

// TimeoutAdjuster is implemented by drivers whose I/O timeout must be
// raised for long sweeps.
type TimeoutAdjuster interface {
	Timeout() time.Duration
	SetTimeout(d time.Duration)
}

// Deinterleave turns re/im pairs into complex samples.
func Deinterleave(raw []float64) ([]complex128, error) {
	if len(raw)%2 != 0 {
		return nil, measerr.Validation("odd number of raw samples: %d", len(raw))
	}
	out := make([]complex128, len(raw)/2)
	for i := range out {
		out[i] = complex(raw[2*i], raw[2*i+1])
	}
	return out, nil
}

// Interleave is the inverse of Deinterleave.
func Interleave(data []complex128) []float64 {
	out := make([]float64, 2*len(data))
	for i, c := range data {
		out[2*i] = real(c)
		out[2*i+1] = imag(c)
	}
	return out
}
