package dsp

import (
	"math"

	"github.com/mjibson/go-dsp/window"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/ftl/chancap/core"
)

// hammingAttenuation is the stopband attenuation in dB a Hamming window reaches, used to estimate the filter length.
const hammingAttenuation = 53.0

// DesignLowpass returns the coefficients of a Hamming windowed-sinc low-pass FIR filter with its passband edge
// at cutoff and the stopband starting at about cutoff + transitionWidth. The DC gain of the filter is 1.
func DesignLowpass(sampleRate, cutoff, transitionWidth float64) ([]float64, error) {
	if sampleRate <= 0 {
		return nil, errors.Wrapf(core.ErrInvalidDesignParameters, "sample rate must be positive, got %f", sampleRate)
	}
	if cutoff <= 0 || cutoff >= sampleRate/2 {
		return nil, errors.Wrapf(core.ErrInvalidDesignParameters, "cutoff %f must be within (0, %f)", cutoff, sampleRate/2)
	}
	if transitionWidth <= 0 {
		return nil, errors.Wrapf(core.ErrInvalidDesignParameters, "transition width must be positive, got %f", transitionWidth)
	}

	order := tapCount(sampleRate, transitionWidth)
	w := window.Hamming(order)
	order2 := (order - 1) / 2
	ω := 2.0 * math.Pi * cutoff / sampleRate

	coeff := make([]float64, order)
	for i := range coeff {
		n := float64(i - order2)
		if n == 0 {
			coeff[i] = ω / math.Pi * w[i]
		} else {
			coeff[i] = math.Sin(n*ω) / (n * math.Pi) * w[i]
		}
	}

	floats.Scale(1/floats.Sum(coeff), coeff)
	return coeff, nil
}

func tapCount(sampleRate, transitionWidth float64) int {
	result := int(hammingAttenuation * sampleRate / (22.0 * transitionWidth))
	if result%2 == 0 {
		result++
	}
	return result
}

// ChannelFilter returns the anti-aliasing filter for the given sample rate and decimation:
// cutoff at the output Nyquist frequency, transition width a tenth of it. Without decimation
// no filtering is necessary and the result is a single unity tap.
func ChannelFilter(sampleRate int, decimation int) ([]float64, error) {
	if decimation < 1 {
		return nil, errors.Wrapf(core.ErrInvalidDesignParameters, "decimation must be at least 1, got %d", decimation)
	}
	if decimation == 1 {
		return []float64{1}, nil
	}
	fs := float64(sampleRate)
	d := float64(decimation)
	return DesignLowpass(fs, fs/(2*d), fs/(20*d))
}
