package dsp

import (
	"fmt"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/chancap/core"
)

func TestDesignLowpassGoldenMaster(t *testing.T) {
	actual, err := DesignLowpass(1000, 100, 250)
	require.NoError(t, err)

	expected := []float64{
		0.00506988348483601,
		0.029358162747516195,
		0.1107437912657967,
		0.21934068090549638,
		0.27097496319270925,
		0.21934068090549638,
		0.11074379126579674,
		0.029358162747516202,
		0.00506988348483601,
	}
	assert.InDeltaSlice(t, expected, actual, 1e-12)
}

func TestChannelFilterGoldenMaster(t *testing.T) {
	actual, err := ChannelFilter(3200000, 20)
	require.NoError(t, err)

	require.Len(t, actual, 481)
	expected := map[int]float64{
		0:   -1.561286567091959e-19,
		230: 0.031746752157173735,
		235: 0.04502967708473182,
		239: 0.0498571105919095,
		240: 0.05006470450030496,
		241: 0.0498571105919095,
		250: 0.03174675215717374,
		480: -1.561286567091959e-19,
	}
	for i, e := range expected {
		assert.InDeltaf(t, e, actual[i], 1e-12, "tap %d", i)
	}
}

func TestDesignLowpassLength(t *testing.T) {
	tt := []struct {
		sampleRate float64
		decimation float64
		expected   int
	}{
		{1000, 2, 97},
		{1000, 4, 193},
		{2000, 1.01, 49},
		{3200000, 20, 481},
	}
	for _, tc := range tt {
		t.Run(fmt.Sprintf("%.0f/%.2f", tc.sampleRate, tc.decimation), func(t *testing.T) {
			taps, err := DesignLowpass(tc.sampleRate, tc.sampleRate/(2*tc.decimation), tc.sampleRate/(20*tc.decimation))
			require.NoError(t, err)
			assert.Len(t, taps, tc.expected)
		})
	}
}

func TestDesignLowpassUnityGainAndSymmetry(t *testing.T) {
	taps, err := DesignLowpass(48000, 3000, 500)
	require.NoError(t, err)

	sum := 0.0
	for i, c := range taps {
		sum += c
		assert.InDelta(t, c, taps[len(taps)-1-i], 1e-15)
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestDesignLowpassInvalidParameters(t *testing.T) {
	tt := []struct {
		name            string
		sampleRate      float64
		cutoff          float64
		transitionWidth float64
	}{
		{"zero sample rate", 0, 100, 10},
		{"negative sample rate", -1000, 100, 10},
		{"zero cutoff", 1000, 0, 10},
		{"cutoff at nyquist", 1000, 500, 10},
		{"cutoff beyond nyquist", 1000, 600, 10},
		{"zero transition", 1000, 100, 0},
		{"negative transition", 1000, 100, -10},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			taps, err := DesignLowpass(tc.sampleRate, tc.cutoff, tc.transitionWidth)
			assert.Nil(t, taps)
			assert.True(t, errors.Is(err, core.ErrInvalidDesignParameters), "%v", err)
		})
	}
}

func TestChannelFilterWithoutDecimation(t *testing.T) {
	taps, err := ChannelFilter(3200000, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, taps)

	_, err = ChannelFilter(3200000, 0)
	assert.Equal(t, core.ErrInvalidDesignParameters, errors.Cause(err))
}

func TestPeakFrequency(t *testing.T) {
	sampleRate := 8000
	for _, f := range []float64{-3000, -1000, 0, 250, 1000, 3500} {
		t.Run(fmt.Sprintf("%.0f", f), func(t *testing.T) {
			samples := tone(512, f/float64(sampleRate))

			peak, level := PeakFrequency(samples, sampleRate)

			assert.InDelta(t, f, float64(peak), float64(sampleRate)/512)
			assert.InDelta(t, 0, float64(level), 0.1)
		})
	}
}

func TestPeakFrequencyTruncatesToPowerOf2(t *testing.T) {
	samples := tone(700, 0.25)

	peak, _ := PeakFrequency(samples, 1000)

	assert.InDelta(t, 250, float64(peak), 1000.0/512)
}

func TestPeakFrequencyTooShort(t *testing.T) {
	peak, level := PeakFrequency([]complex128{1}, 1000)

	assert.Equal(t, core.Frequency(0), peak)
	assert.True(t, math.IsInf(float64(level), -1))
}

func tone(blockSize int, frequencyRate float64) []complex128 {
	result := make([]complex128, blockSize)

	ω := 2 * math.Pi * frequencyRate
	for i := range result {
		t := float64(i)
		re := math.Cos(ω * t)
		im := math.Sin(ω * t)
		result[i] = complex(re, im)
	}

	return result
}
