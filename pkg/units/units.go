// Package units holds the small set of physical conversions used when
// interpreting power sweeps.
package units

import "math"

// Hbar is the reduced Planck constant in J·s.
const Hbar = 1.0545718e-34

// DBmToWatts converts a power level in dBm to watts.
func DBmToWatts(dBm float64) float64 {
	return math.Pow(10, dBm/10) / 1000
}

// WattsToDBm converts a power in watts to dBm. Non-positive input yields -Inf.
func WattsToDBm(w float64) float64 {
	if w <= 0 {
		return math.Inf(-1)
	}
	return 10 * math.Log10(w*1000)
}

// MeanPhotonNumber estimates the mean photon number in a resonator with
// angular resonance frequency omegaRes (rad/s), loaded and coupling quality
// factors qLoaded and qCoupling, driven with power p watts at its input:
//
//	n = 2/(ħ ω²) · Q_l²/Q_c · P
//
// Matched 50 Ω feed and load are assumed.
func MeanPhotonNumber(omegaRes, qLoaded, qCoupling, p float64) float64 {
	return 2 / (Hbar * omegaRes * omegaRes) * qLoaded * qLoaded / qCoupling * p
}
