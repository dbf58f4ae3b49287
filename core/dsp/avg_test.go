package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlidingWindow(t *testing.T) {
	tt := []struct {
		name     string
		length   int
		values   []float64
		expected []float64
	}{
		{"empty", 1, []float64{}, []float64{}},
		{"length 1", 1, []float64{1, 2, 3}, []float64{1, 2, 3}},
		{"length 2", 2, []float64{2, 4, 6, 8}, []float64{1, 3, 5, 7}},
	}

	for _, tc := range tt {
		window := newSlidingWindow(tc.length)
		t.Run(tc.name, func(t *testing.T) {
			actual := make([]float64, len(tc.expected))
			for i, v := range tc.values {
				actual[i] = window.Put(v)
			}
			assert.InDeltaSlice(t, tc.expected, actual, 1e-12)
		})
	}
}

func TestLevelMeter(t *testing.T) {
	meter := NewLevelMeter(4)
	fullScale := []complex128{1, 1i, -1, -1i}
	for i := 0; i < 4; i++ {
		meter.Put(fullScale)
	}
	assert.InDelta(t, 0, float64(meter.Level()), 1e-9)

	half := []complex128{0.5, 0.5i}
	for i := 0; i < 4; i++ {
		meter.Put(half)
	}
	assert.InDelta(t, 20*math.Log10(0.5), float64(meter.Level()), 1e-9)

	assert.Equal(t, meter.Level(), meter.Put(nil))
}
