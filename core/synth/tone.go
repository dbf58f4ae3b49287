// Package synth provides a synthetic sample source for testing without hardware.
package synth

import (
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ftl/chancap/core"
)

// NewTone returns a source that produces a complex sine wave at the given absolute frequency. The tone moves in the
// baseband when the source is retuned, like a real signal would.
func NewTone(frequency core.Frequency, amplitude float64, blockSize int) *Tone {
	if blockSize <= 0 {
		blockSize = 16384
	}
	return &Tone{
		frequency: frequency,
		amplitude: amplitude,
		blockSize: blockSize,
		realtime:  true,
		wait:      new(sync.WaitGroup),
	}
}

// Tone is a synthetic sample source.
type Tone struct {
	lock       sync.Mutex
	frequency  core.Frequency
	amplitude  float64
	noise      float64
	blockSize  int
	realtime   bool
	limit      int
	sampleRate int
	center     core.Frequency
	phase      float64
	random     *rand.Rand

	done chan struct{}
	wait *sync.WaitGroup
}

// SetNoise adds uniform noise with the given amplitude to I and Q.
func (t *Tone) SetNoise(amplitude float64) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.noise = amplitude
}

// SetRealtime selects if the blocks are paced at the sample rate or produced as fast as possible.
func (t *Tone) SetRealtime(realtime bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.realtime = realtime
}

// SetLimit ends the stream after the given number of samples, 0 means endless.
func (t *Tone) SetLimit(samples int) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.limit = samples
}

// SetSampleRate of the generated samples.
func (t *Tone) SetSampleRate(sampleRate int) error {
	if sampleRate <= 0 {
		return errors.Errorf("invalid sample rate %d", sampleRate)
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	t.sampleRate = sampleRate
	return nil
}

// SetCenterFrequency of the simulated tuner.
func (t *Tone) SetCenterFrequency(f core.Frequency) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.center = f
	return nil
}

// BasebandFrequency returns the frequency of the tone relative to the tuner center.
func (t *Tone) BasebandFrequency() core.Frequency {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.frequency - t.center
}

// SetFrequencyCorrection is not simulated.
func (t *Tone) SetFrequencyCorrection(int) error { return nil }

// SetGain is not simulated.
func (t *Tone) SetGain(core.DB) error { return nil }

// SetGainMode is not simulated.
func (t *Tone) SetGainMode(bool) error { return nil }

// SetAntenna is not simulated.
func (t *Tone) SetAntenna(string) error { return nil }

// Start producing samples.
func (t *Tone) Start(receiver core.SamplesReceiver) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.done != nil {
		return errors.New("tone already started")
	}
	if t.sampleRate <= 0 {
		return errors.New("tone needs a sample rate")
	}

	t.phase = 0
	t.random = rand.New(rand.NewSource(1))
	done := make(chan struct{})
	t.done = done
	log.Printf("tone at %v, %v in the baseband", t.frequency, t.frequency-t.center)

	t.wait.Add(1)
	go func() {
		defer t.wait.Done()
		defer log.Print("tone shutdown")
		t.run(receiver, done)
	}()
	return nil
}

func (t *Tone) run(receiver core.SamplesReceiver, done <-chan struct{}) {
	produced := 0
	for {
		block, pace, last := t.nextBlock(produced)
		produced += len(block)
		if len(block) > 0 {
			receiver.Deliver(block)
		}
		if last {
			receiver.EndOfStream(nil)
			return
		}

		select {
		case <-done:
			return
		case <-time.After(pace):
		}
	}
}

func (t *Tone) nextBlock(produced int) ([]complex128, time.Duration, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()

	size := t.blockSize
	last := false
	if t.limit > 0 && produced+size >= t.limit {
		size = t.limit - produced
		last = true
	}

	ω := 2.0 * math.Pi * float64(t.frequency-t.center) / float64(t.sampleRate)
	block := make([]complex128, size)
	for i := range block {
		block[i] = complex(t.amplitude*math.Cos(t.phase), t.amplitude*math.Sin(t.phase))
		if t.noise > 0 {
			block[i] += complex(t.noise*(2*t.random.Float64()-1), t.noise*(2*t.random.Float64()-1))
		}
		t.phase = math.Mod(t.phase+ω, 2*math.Pi)
	}

	var pace time.Duration
	if t.realtime {
		pace = time.Duration(float64(size) / float64(t.sampleRate) * float64(time.Second))
	}
	return block, pace, last
}

// Stop producing samples.
func (t *Tone) Stop() error {
	t.lock.Lock()
	done := t.done
	t.done = nil
	t.lock.Unlock()
	if done == nil {
		return nil
	}
	close(done)
	t.wait.Wait()
	return nil
}
