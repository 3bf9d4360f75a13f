package models

import (
	"github.com/RMahshie/resonara/pkg/measerr"
)

// DefaultKind is the scattering parameter measured when none is given.
const DefaultKind = "S21"

// Trace holds the configuration and, once acquired, the complex response of
// a single sweep. Configuration fields must not change after construction;
// the data is set exactly once.
type Trace struct {
	Operator    string
	Chip        string
	SubPath     string    // optional extra directory under the chip
	Bandwidth   float64   // IF bandwidth in Hz
	Power       float64   // instrument output power in dBm, attenuation excluded
	Frequencies []float64 // probe frequencies in Hz, strictly monotonic
	Averages    int
	Kind        string
	Comment     string // free text, may span lines

	data []complex128
}

// TraceOption customizes a Trace at construction.
type TraceOption func(*Trace)

// WithAverages sets the number of sweep averages.
func WithAverages(n int) TraceOption { return func(t *Trace) { t.Averages = n } }

// WithSubPath places the trace below an additional directory under the chip.
func WithSubPath(p string) TraceOption { return func(t *Trace) { t.SubPath = p } }

// WithComment attaches a free-text comment written as the text file header.
func WithComment(c string) TraceOption { return func(t *Trace) { t.Comment = c } }

// WithKind sets the measured scattering parameter.
func WithKind(k string) TraceOption { return func(t *Trace) { t.Kind = k } }

// NewTrace builds an unfilled trace and validates its configuration.
func NewTrace(operator, chip string, bandwidth, power float64, frequencies []float64, opts ...TraceOption) (*Trace, error) {
	t := &Trace{
		Operator:    operator,
		Chip:        chip,
		Bandwidth:   bandwidth,
		Power:       power,
		Frequencies: frequencies,
		Averages:    1,
		Kind:        DefaultKind,
	}
	for _, opt := range opts {
		opt(t)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks the configuration fields.
func (t *Trace) Validate() error {
	if t.Operator == "" || t.Chip == "" {
		return measerr.Configuration("operator and chip are required")
	}
	if t.Bandwidth <= 0 {
		return measerr.Configuration("bandwidth must be > 0, got %g", t.Bandwidth)
	}
	if t.Averages < 1 {
		return measerr.Configuration("averages must be >= 1, got %d", t.Averages)
	}
	if len(t.Frequencies) == 0 {
		return measerr.Configuration("trace has no frequencies")
	}
	for i := 1; i < len(t.Frequencies); i++ {
		if t.Frequencies[i] <= t.Frequencies[i-1] {
			return measerr.Configuration("frequencies not strictly increasing at index %d", i)
		}
	}
	return nil
}

// Start returns the first probe frequency.
func (t *Trace) Start() float64 { return t.Frequencies[0] }

// Stop returns the last probe frequency.
func (t *Trace) Stop() float64 { return t.Frequencies[len(t.Frequencies)-1] }

// Points returns the number of probe frequencies.
func (t *Trace) Points() int { return len(t.Frequencies) }

// Filled reports whether acquisition data has been attached.
func (t *Trace) Filled() bool { return t.data != nil }

// Data returns the acquired response, nil before acquisition.
func (t *Trace) Data() []complex128 { return t.data }

// SetData attaches the acquired response. The length must equal the number
// of frequencies and a trace can only be filled once.
func (t *Trace) SetData(data []complex128) error {
	if t.data != nil {
		return measerr.Validation("trace already filled")
	}
	if len(data) != len(t.Frequencies) {
		return measerr.Validation("frequency and data size do not match: %d != %d", len(t.Frequencies), len(data))
	}
	t.data = append(make([]complex128, 0, len(data)), data...)
	return nil
}
