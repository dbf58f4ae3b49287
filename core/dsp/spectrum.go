package dsp

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/dsputils"
	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"

	"github.com/ftl/chancap/core"
)

// PeakFrequency returns the frequency of the strongest component in the given block relative to the center
// of the band, and its level in dBFS. Blocks that are not a power of two long are truncated to the next smaller
// power of two.
func PeakFrequency(samples []complex128, sampleRate int) (core.Frequency, core.DB) {
	blockSize := len(samples)
	if !dsputils.IsPowerOf2(blockSize) {
		blockSize = dsputils.NextPowerOf2(blockSize) / 2
	}
	if blockSize < 2 {
		return 0, core.DB(math.Inf(-1))
	}

	spectrum := fft.FFT(samples[:blockSize])
	magnitudes := make([]float64, len(spectrum))
	for i, v := range spectrum {
		magnitudes[i] = cmplx.Abs(v)
	}
	peak := floats.MaxIdx(magnitudes)

	bin := peak
	if bin >= blockSize/2 {
		bin -= blockSize
	}
	f := core.Frequency(float64(bin) * float64(sampleRate) / float64(blockSize))
	return f, toDBFS(magnitudes[peak] / float64(blockSize))
}

func toDBFS(amplitude float64) core.DB {
	return core.DB(20.0 * math.Log10(amplitude+1.0e-20))
}
