package dsp

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/tphakala/simd/f64"

	"github.com/ftl/chancap/core"
)

const τ = 2 * math.Pi

// ChannelizerState is an immutable snapshot of the channelizer configuration.
type ChannelizerState struct {
	Version    uint64
	SampleRate int
	Offset     core.Frequency
	Decimation int
	Taps       []float64
	// Step is the NCO phase increment per input sample in radians.
	Step float64

	reversed []float64
}

// Shift is the frequency translation this state applies to the input.
func (s *ChannelizerState) Shift() core.Frequency {
	return -s.Offset
}

func newChannelizerState(sampleRate int, offset core.Frequency, decimation int) (*ChannelizerState, error) {
	configuration := core.Configuration{SampleRate: sampleRate, CenterOffset: offset, Decimation: decimation}
	if err := configuration.Validate(); err != nil {
		return nil, err
	}
	taps, err := ChannelFilter(sampleRate, decimation)
	if err != nil {
		return nil, err
	}

	reversed := make([]float64, len(taps))
	for i, c := range taps {
		reversed[len(taps)-1-i] = c
	}

	return &ChannelizerState{
		SampleRate: sampleRate,
		Offset:     offset,
		Decimation: decimation,
		Taps:       taps,
		Step:       -τ * float64(configuration.Shift()) / float64(sampleRate),
		reversed:   reversed,
	}, nil
}

// NewChannelizer returns a frequency translating, decimating FIR filter for the given configuration.
func NewChannelizer(sampleRate int, offset core.Frequency, decimation int) (*Channelizer, error) {
	result := &Channelizer{}
	err := result.Configure(sampleRate, offset, decimation)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Channelizer shifts the input by the negated center offset, low-pass filters it and decimates it.
//
// Configure may be called concurrently with Process. A new configuration is published as one snapshot and
// takes effect with the next call of Process, each output sample is computed from exactly one snapshot.
type Channelizer struct {
	configureLock sync.Mutex
	version       uint64
	state         atomic.Pointer[ChannelizerState]

	processLock sync.Mutex
	applied     *ChannelizerState
	re, im      []float64 // delay line, stored twice to read the window without wrapping
	pos         int       // oldest sample in the delay line
	phase       float64
	countdown   int // input samples until the next output sample

	observe func(*ChannelizerState)
}

// Configure the channelizer. Invalid parameters leave the current configuration untouched.
func (c *Channelizer) Configure(sampleRate int, offset core.Frequency, decimation int) error {
	state, err := newChannelizerState(sampleRate, offset, decimation)
	if err != nil {
		return err
	}

	c.configureLock.Lock()
	defer c.configureLock.Unlock()
	c.version++
	state.Version = c.version
	c.state.Store(state)
	return nil
}

// Snapshot returns the current configuration.
func (c *Channelizer) Snapshot() *ChannelizerState {
	return c.state.Load()
}

// Taps returns a copy of the current filter coefficients.
func (c *Channelizer) Taps() []float64 {
	taps := c.state.Load().Taps
	result := make([]float64, len(taps))
	copy(result, taps)
	return result
}

// Reset discards the filter history, the NCO phase and the decimation phase.
func (c *Channelizer) Reset() {
	c.processLock.Lock()
	defer c.processLock.Unlock()
	c.applied = nil
}

// Process the given block of input samples and return the output samples that became available.
// Samples that do not complete a decimation period are kept for the next call.
func (c *Channelizer) Process(samples []complex128) []complex128 {
	result, _ := c.ProcessVersion(samples)
	return result
}

// ProcessVersion works like Process and also returns the version of the configuration that was used.
func (c *Channelizer) ProcessVersion(samples []complex128) ([]complex128, uint64) {
	c.processLock.Lock()
	defer c.processLock.Unlock()

	state := c.state.Load()
	if state != c.applied {
		c.apply(state)
	}

	order := len(state.reversed)
	result := make([]complex128, 0, len(samples)/state.Decimation+1)
	for _, s := range samples {
		sin, cos := math.Sincos(c.phase)
		rotated := s * complex(cos, sin)
		c.phase = wrapPhase(c.phase + state.Step)

		c.re[c.pos] = real(rotated)
		c.re[c.pos+order] = real(rotated)
		c.im[c.pos] = imag(rotated)
		c.im[c.pos+order] = imag(rotated)
		c.pos = (c.pos + 1) % order

		c.countdown--
		if c.countdown > 0 {
			continue
		}
		c.countdown = state.Decimation

		re := f64.DotProductUnsafe(state.reversed, c.re[c.pos:c.pos+order])
		im := f64.DotProductUnsafe(state.reversed, c.im[c.pos:c.pos+order])
		if c.observe != nil {
			c.observe(state)
		}
		result = append(result, complex(re, im))
	}

	return result, state.Version
}

// apply switches the filter state to the given configuration. The most recent samples of the delay line are kept,
// the NCO phase restarts at 0 if the step changes, the decimation phase restarts if the decimation changes.
func (c *Channelizer) apply(state *ChannelizerState) {
	previous := c.applied
	c.applied = state

	order := len(state.reversed)
	re := make([]float64, 2*order)
	im := make([]float64, 2*order)
	if previous != nil {
		previousOrder := len(previous.reversed)
		keep := previousOrder
		if keep > order {
			keep = order
		}
		oldRe := c.re[c.pos+previousOrder-keep : c.pos+previousOrder]
		oldIm := c.im[c.pos+previousOrder-keep : c.pos+previousOrder]
		copy(re[order-keep:order], oldRe)
		copy(re[2*order-keep:], oldRe)
		copy(im[order-keep:order], oldIm)
		copy(im[2*order-keep:], oldIm)
	}
	c.re = re
	c.im = im
	c.pos = 0

	if previous == nil || previous.Step != state.Step {
		c.phase = 0
	}
	if previous == nil || previous.Decimation != state.Decimation {
		c.countdown = state.Decimation
	}
}

func wrapPhase(phase float64) float64 {
	result := math.Mod(phase, τ)
	if result < 0 {
		result += τ
	}
	return result
}
