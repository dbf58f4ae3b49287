package synth

import (
	"math/cmplx"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/chancap/core"
	"github.com/ftl/chancap/core/dsp"
)

func TestToneLiesInTheBaseband(t *testing.T) {
	tt := []struct {
		desc     string
		center   core.Frequency
		expected core.Frequency
	}{
		{"above center", 144.6e6, 50e3},
		{"below center", 144.7e6, -50e3},
		{"at center", 144.65e6, 0},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			tone := NewTone(144.65e6, 0.5, 4096)
			tone.SetRealtime(false)
			tone.SetLimit(8192)
			require.NoError(t, tone.SetSampleRate(1024000))
			require.NoError(t, tone.SetCenterFrequency(tc.center))
			receiver := newCollector()

			require.NoError(t, tone.Start(receiver))
			receiver.waitForEnd(t)
			require.NoError(t, tone.Stop())

			samples := receiver.samples()
			require.Len(t, samples, 8192)
			assert.Equal(t, tc.expected, tone.BasebandFrequency())
			peak, level := dsp.PeakFrequency(samples[4096:], 1024000)
			assert.InDelta(t, float64(tc.expected), float64(peak), 250)
			assert.InDelta(t, -6.0, float64(level), 0.1)
			assert.InDelta(t, 0.5, cmplx.Abs(samples[100]), 1e-9)
		})
	}
}

func TestToneWithNoise(t *testing.T) {
	tone := NewTone(144.65e6, 0.5, 1000)
	tone.SetRealtime(false)
	tone.SetLimit(2500)
	tone.SetNoise(0.01)
	require.NoError(t, tone.SetSampleRate(100000))
	require.NoError(t, tone.SetCenterFrequency(144.65e6))
	receiver := newCollector()

	require.NoError(t, tone.Start(receiver))
	receiver.waitForEnd(t)
	require.NoError(t, tone.Stop())

	samples := receiver.samples()
	require.Len(t, samples, 2500)
	for _, s := range samples {
		assert.InDelta(t, 0.5, real(s), 0.0101)
		assert.InDelta(t, 0, imag(s), 0.0101)
	}
}

func TestToneNeedsSampleRate(t *testing.T) {
	tone := NewTone(144.65e6, 0.5, 0)

	assert.Error(t, tone.SetSampleRate(0))
	assert.Error(t, tone.Start(newCollector()))
}

func TestRealtimeToneStops(t *testing.T) {
	tone := NewTone(144.65e6, 0.5, 1000)
	require.NoError(t, tone.SetSampleRate(10000))
	receiver := newCollector()

	require.NoError(t, tone.Start(receiver))
	assert.Error(t, tone.Start(receiver))
	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	require.NoError(t, tone.Stop())

	assert.True(t, time.Since(start) < time.Second)
	assert.False(t, receiver.ended())
	assert.NotEmpty(t, receiver.samples())
	assert.NoError(t, tone.Stop())
}

type collector struct {
	lock    sync.Mutex
	content []complex128
	end     chan struct{}
	once    sync.Once
}

func newCollector() *collector {
	return &collector{end: make(chan struct{})}
}

func (c *collector) Deliver(samples []complex128) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.content = append(c.content, samples...)
}

func (c *collector) EndOfStream(error) {
	c.once.Do(func() { close(c.end) })
}

func (c *collector) waitForEnd(t *testing.T) {
	select {
	case <-c.end:
	case <-time.After(5 * time.Second):
		t.Fatal("end of stream not reported")
	}
}

func (c *collector) ended() bool {
	select {
	case <-c.end:
		return true
	default:
		return false
	}
}

func (c *collector) samples() []complex128 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]complex128(nil), c.content...)
}
