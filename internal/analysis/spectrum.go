package analysis

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// PowerSpectrum returns the magnitude of the first half of the discrete
// Fourier transform of data after removing its mean. Any length is
// accepted.
func PowerSpectrum(data []float64) []float64 {
	if len(data) < 2 {
		return nil
	}

	mean := 0.0
	for _, v := range data {
		mean += v
	}
	mean /= float64(len(data))

	centered := make([]float64, len(data))
	for i, v := range data {
		centered[i] = v - mean
	}

	coeffs := fft.FFTReal(centered)
	ps := make([]float64, len(coeffs)/2)
	for i := range ps {
		ps[i] = cmplx.Abs(coeffs[i])
	}
	return ps
}

// DominantPeriod returns the period of the strongest non-constant frequency
// of data sampled every dt, or 0 if there is none.
func DominantPeriod(data []float64, dt float64) float64 {
	ps := PowerSpectrum(data)
	best := 0
	for k := 1; k < len(ps); k++ {
		if ps[k] > ps[best] {
			best = k
		}
	}
	if best == 0 || ps[best] == 0 {
		return 0
	}
	return float64(len(data)) * dt / float64(best)
}
