package rtlsdr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNearestGain(t *testing.T) {
	gains := []int{0, 9, 14, 27, 37, 77, 87, 125, 144, 157, 166, 197}
	tt := []struct {
		gain     int
		expected int
	}{
		{0, 0},
		{100, 87},
		{110, 125},
		{500, 197},
		{-20, 0},
	}
	for _, tc := range tt {
		t.Run(fmt.Sprintf("%d", tc.gain), func(t *testing.T) {
			assert.Equal(t, tc.expected, nearestGain(gains, tc.gain))
		})
	}

	assert.Equal(t, 42, nearestGain(nil, 42))
}

func TestSettersBeforeStart(t *testing.T) {
	dongle := New(0)

	assert.NoError(t, dongle.SetSampleRate(3200000))
	assert.NoError(t, dongle.SetCenterFrequency(144.6e6))
	assert.NoError(t, dongle.SetFrequencyCorrection(-50))
	assert.NoError(t, dongle.SetGain(10))
	assert.NoError(t, dongle.SetGainMode(false))
	assert.NoError(t, dongle.SetAntenna(""))
	assert.Error(t, dongle.SetAntenna("TX/RX"))

	assert.Equal(t, 3200000, dongle.sampleRate)
	assert.Equal(t, 144600000, dongle.centerFrequency)
	assert.Equal(t, -50, dongle.frequencyCorrection)
	assert.Equal(t, 100, dongle.gain)
	assert.False(t, dongle.autoGain)
	assert.NoError(t, dongle.Stop())
}
