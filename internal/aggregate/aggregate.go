// Package aggregate rebuilds the power dependence of a fitted quantity from
// fit-result files spread over run directories.
//
// A run directory encodes the attenuation between instrument and device in
// its path ("detailed_sweep_-60dBm/Res1"); each fit-result file encodes the
// instrument power in its name ("..._-10dBm.fit"). The power at the device
// is their sum.
package aggregate

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/RMahshie/resonara/internal/fit"
	"github.com/RMahshie/resonara/pkg/measerr"
	"github.com/RMahshie/resonara/pkg/models"
)

var (
	attenuationPattern = regexp.MustCompile(`(-?\d+)dBm`)
	powerPattern       = regexp.MustCompile(`_(-?\d+)dBm`)
)

// PowerRange is an inclusive range of corrected powers in dBm.
type PowerRange struct {
	Min int
	Max int
}

// DefaultPowerRange keeps corrected powers from -200 to -70 dBm.
var DefaultPowerRange = PowerRange{Min: -200, Max: -70}

// Contains reports whether p lies within r, bounds included.
func (r PowerRange) Contains(p int) bool { return p >= r.Min && p <= r.Max }

type options struct {
	extension string
}

// Option configures Collect.
type Option func(*options)

// WithExtension sets the fit-result file extension.
func WithExtension(ext string) Option { return func(o *options) { o.extension = ext } }

// Attenuation extracts the attenuation encoded in a directory path. The
// first match in the path wins.
func Attenuation(dir string) (int, bool) {
	m := attenuationPattern.FindStringSubmatch(dir)
	if m == nil {
		return 0, false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return v, true
}

// FilePower extracts the instrument power encoded in a file name.
func FilePower(name string) (int, bool) {
	m := powerPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return v, true
}

// Records loads every fit-result file of dirs keyed by corrected power.
// Directories are processed in the given order and files in lexical order;
// a later record at the same corrected power replaces an earlier one.
func Records(dirs []string, defaultAttenuation int, opts ...Option) (map[int]models.FitRecord, error) {
	o := options{extension: fit.DefaultExtension}
	for _, opt := range opts {
		opt(&o)
	}

	records := make(map[int]models.FitRecord)
	for _, dir := range dirs {
		att, ok := Attenuation(dir)
		if !ok {
			att = defaultAttenuation
			log.Warn().Str("dir", dir).Int("attenuation", att).Msg("No attenuation in directory name, using default")
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasSuffix(name, o.extension) {
				continue
			}
			power, ok := FilePower(name)
			if !ok {
				log.Debug().Str("file", name).Msg("Skipping fit file without power in name")
				continue
			}
			rec, err := fit.ReadRecord(filepath.Join(dir, name))
			if err != nil {
				return nil, err
			}
			corrected := power + att
			if _, dup := records[corrected]; dup {
				log.Debug().Int("power", corrected).Str("file", name).Msg("Replacing fit record at same corrected power")
			}
			records[corrected] = rec
		}
	}
	return records, nil
}

// Collect returns the values of key against corrected power, ascending,
// restricted to valid. A retained record lacking key fails with a
// *measerr.MissingKeyError.
func Collect(dirs []string, key string, defaultAttenuation int, valid PowerRange, opts ...Option) (models.PowerSeries, error) {
	records, err := Records(dirs, defaultAttenuation, opts...)
	if err != nil {
		return models.PowerSeries{}, err
	}

	powers := make([]int, 0, len(records))
	for p := range records {
		if valid.Contains(p) {
			powers = append(powers, p)
		}
	}
	sort.Ints(powers)

	series := models.PowerSeries{Powers: powers, Values: make([]float64, len(powers))}
	for i, p := range powers {
		v, ok := records[p][key]
		if !ok {
			return models.PowerSeries{}, &measerr.MissingKeyError{Key: key, Power: p}
		}
		series.Values[i] = v
	}
	return series, nil
}
