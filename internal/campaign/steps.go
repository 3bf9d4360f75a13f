package campaign

import (
	"github.com/RMahshie/resonara/pkg/measerr"
)

// PowerStep is one acquisition setting of a power sweep. Power is the VNA
// output power in dBm; the power reaching the chip is Power plus the line
// attenuation.
type PowerStep struct {
	Power     float64 `json:"power"`
	Bandwidth float64 `json:"bandwidth"`
	Averages  int     `json:"averages"`
}

// SpectrumSettings are used for wide scans looking for resonances.
var SpectrumSettings = PowerStep{Power: 0, Bandwidth: 1000, Averages: 1}

var preScanSettings = map[int]PowerStep{
	-10: {Power: -10, Bandwidth: 100, Averages: 1},
	-60: {Power: 10, Bandwidth: 50, Averages: 5},
}

var powerTables = map[int][]PowerStep{
	-10: {
		{Power: 10, Bandwidth: 1000, Averages: 1},
		{Power: 5, Bandwidth: 1000, Averages: 1},
		{Power: 0, Bandwidth: 1000, Averages: 1},
		{Power: -5, Bandwidth: 1000, Averages: 1},
		{Power: -10, Bandwidth: 1000, Averages: 1},
		{Power: -15, Bandwidth: 1000, Averages: 1},
		{Power: -20, Bandwidth: 1000, Averages: 1},
		{Power: -25, Bandwidth: 1000, Averages: 1},
		{Power: -30, Bandwidth: 100, Averages: 1},
		{Power: -35, Bandwidth: 100, Averages: 1},
	},
	-60: {
		{Power: 10, Bandwidth: 50, Averages: 5},
		{Power: 5, Bandwidth: 10, Averages: 10},
		{Power: 0, Bandwidth: 10, Averages: 10},
		{Power: -5, Bandwidth: 10, Averages: 20},
		{Power: -10, Bandwidth: 10, Averages: 20},
		{Power: -15, Bandwidth: 10, Averages: 30},
		{Power: -20, Bandwidth: 10, Averages: 30},
		{Power: -25, Bandwidth: 10, Averages: 40},
		{Power: -30, Bandwidth: 10, Averages: 40},
		{Power: -35, Bandwidth: 10, Averages: 50},
		{Power: -40, Bandwidth: 10, Averages: 50},
	},
}

// PreScanSettings returns the coarse-window settings for a warm attenuation
// of -10 or -60 dB.
func PreScanSettings(warmAttenuation int) (PowerStep, error) {
	s, ok := preScanSettings[warmAttenuation]
	if !ok {
		return PowerStep{}, measerr.Configuration("no pre-scan settings for warm attenuation %d dB", warmAttenuation)
	}
	return s, nil
}

// PowerTable returns the precise power sweep for a warm attenuation of -10
// or -60 dB, highest power first.
func PowerTable(warmAttenuation int) ([]PowerStep, error) {
	steps, ok := powerTables[warmAttenuation]
	if !ok {
		return nil, measerr.Configuration("no power table for warm attenuation %d dB", warmAttenuation)
	}
	return append([]PowerStep(nil), steps...), nil
}

// TargetSteps converts steps given as power at the chip into VNA output
// power for a line with the given (negative) attenuation.
func TargetSteps(attenuation float64, steps ...PowerStep) []PowerStep {
	out := make([]PowerStep, len(steps))
	for i, s := range steps {
		s.Power -= attenuation
		out[i] = s
	}
	return out
}
