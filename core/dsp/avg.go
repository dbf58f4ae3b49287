package dsp

import (
	"math"

	"github.com/ftl/chancap/core"
)

// NewLevelMeter returns a meter that averages the mean power of the last length blocks.
func NewLevelMeter(length int) *LevelMeter {
	return &LevelMeter{window: newSlidingWindow(length)}
}

// LevelMeter measures the average signal level of a sample stream in dBFS.
type LevelMeter struct {
	window *slidingWindow
	level  float64
}

// Put the next block into the meter and return the current level.
func (m *LevelMeter) Put(block []complex128) core.DB {
	if len(block) == 0 {
		return m.Level()
	}
	var power float64
	for _, s := range block {
		power += real(s)*real(s) + imag(s)*imag(s)
	}
	m.level = m.window.Put(power / float64(len(block)))
	return m.Level()
}

// Level returns the current level.
func (m *LevelMeter) Level() core.DB {
	return core.DB(10.0 * math.Log10(m.level+1.0e-20))
}

func newSlidingWindow(length int) *slidingWindow {
	result := &slidingWindow{
		length:  length,
		buffer:  make([]float64, length),
		index:   0,
		current: 0,
	}
	return result
}

type slidingWindow struct {
	length  int
	buffer  []float64
	index   int
	current float64
}

func (w *slidingWindow) Put(v float64) float64 {
	w.current += ((v - w.buffer[w.index]) / float64(w.length))
	w.buffer[w.index] = v
	w.index = (w.index + 1) % w.length
	return w.current
}
