// Package peaks locates resonance features in a sweep by the steepness of
// the complex response.
//
// The first difference of the response is taken as a proxy for steepness:
// a resonance dip or peak is where the response changes fastest between
// neighbouring points. Features are picked greedily in order of decreasing
// difference magnitude, masking a radius around each pick so the same
// feature is not detected twice.
package peaks

import (
	"math"
	"sort"

	"github.com/cwbudde/algo-vecmath"

	"github.com/RMahshie/resonara/pkg/measerr"
)

// DefaultExclusionRadius is the number of samples masked on each side of a
// picked feature.
const DefaultExclusionRadius = 100

type options struct {
	radius int
}

// Option configures Find.
type Option func(*options)

// WithExclusionRadius sets the masking radius in samples. A radius of zero
// only prevents picking the same index twice.
func WithExclusionRadius(r int) Option {
	return func(o *options) { o.radius = r }
}

// Steepness returns |x[i+1]-x[i]| for each sample, with the final sample
// padded as zero so the result has the length of the input.
func Steepness(data []complex128) []float64 {
	n := len(data)
	if n == 0 {
		return nil
	}
	re := make([]float64, n)
	im := make([]float64, n)
	for i := 0; i < n-1; i++ {
		d := data[i+1] - data[i]
		re[i] = real(d)
		im[i] = imag(d)
	}
	out := make([]float64, n)
	vecmath.Magnitude(out, re, im)
	return out
}

// Find returns the frequencies of the numPeaks steepest features of data,
// sorted ascending. When fewer well-separated candidates exist than
// requested, the strongest remaining unpicked index is used regardless of
// the exclusion radius, however weak it is.
func Find(frequencies []float64, data []complex128, numPeaks int, opts ...Option) ([]float64, error) {
	o := options{radius: DefaultExclusionRadius}
	for _, opt := range opts {
		opt(&o)
	}
	if len(frequencies) != len(data) {
		return nil, measerr.Validation("frequency and data size do not match: %d != %d", len(frequencies), len(data))
	}
	if numPeaks < 0 {
		return nil, measerr.Configuration("number of peaks must be >= 0, got %d", numPeaks)
	}
	if numPeaks > len(data) {
		return nil, measerr.Configuration("requested %d peaks from %d samples", numPeaks, len(data))
	}

	idx := Indices(Steepness(data), numPeaks, o.radius)
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = frequencies[j]
	}
	sort.Float64s(out)
	return out, nil
}

// Indices picks numPeaks indices of the largest values of steep, in pick
// order. Ties go to the lowest index.
func Indices(steep []float64, numPeaks, radius int) []int {
	picked := make([]int, 0, numPeaks)
	taken := make([]bool, len(steep))

	for len(picked) < numPeaks {
		best := argmax(steep, func(i int) bool {
			if taken[i] {
				return false
			}
			for _, p := range picked {
				if abs(i-p) < radius {
					return false
				}
			}
			return true
		})
		if best < 0 {
			best = argmax(steep, func(i int) bool { return !taken[i] })
		}
		if best < 0 {
			break
		}
		taken[best] = true
		picked = append(picked, best)
	}
	return picked
}

// argmax returns the first allowed index of the largest value, or -1 when
// nothing is allowed. NaN ranks below every number.
func argmax(v []float64, allowed func(int) bool) int {
	best, bestVal := -1, math.Inf(-1)
	for i, x := range v {
		if !allowed(i) {
			continue
		}
		if math.IsNaN(x) {
			x = math.Inf(-1)
		}
		if best < 0 || x > bestVal {
			best, bestVal = i, x
		}
	}
	return best
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
