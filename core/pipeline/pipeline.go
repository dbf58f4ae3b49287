// Package pipeline connects a sample source, the channelizer and a sample sink.
//
// The source delivers on its own goroutine into a ring buffer. The channelizing loop pops blocks from the ring,
// shifts, filters and decimates them and writes the channel samples into the sink. The configuration can be
// changed while the pipeline runs, the changes take effect at the next block boundary.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/ftl/chancap/core"
	"github.com/ftl/chancap/core/bandplan"
	"github.com/ftl/chancap/core/dsp"
	"github.com/ftl/chancap/core/ring"
)

// Defaults for the buffering parameters.
const (
	DefaultRingCapacity = 1 << 21
	DefaultBlockSize    = 16384
)

const (
	overflowLogInterval = time.Second
	levelMeterLength    = 16
)

// stopTimeout limits how long Stop waits for the channelizing loop before the sink is closed.
var stopTimeout = 2 * time.Second

// State of the pipeline.
type State int

// All states.
const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	default:
		return "stopped"
	}
}

// Stats of the running pipeline.
type Stats struct {
	Delivered uint64 // input samples delivered by the source
	Processed uint64 // input samples processed by the channelizer
	Written   uint64 // output samples written into the sink
	Overflows uint64
	Dropped   uint64
	Level     core.DB        // average output level in dBFS
	Peak      core.Frequency // strongest component in the channel, relative to the channel center
	PeakLevel core.DB
}

func (s Stats) String() string {
	return fmt.Sprintf("in %d, processed %d, out %d, overflows %d (%d dropped), level %v, peak %v at %v",
		s.Delivered, s.Processed, s.Written, s.Overflows, s.Dropped, s.Level, s.PeakLevel, s.Peak)
}

// BandChanged is called when the channel center moves into another band.
type BandChanged func(bandplan.Band)

// rateAware is implemented by sinks that need to know the output sample rate, e.g. to write a file header.
type rateAware interface {
	SetSampleRate(sampleRate int)
}

// New returns a new pipeline in the Stopped state.
func New(configuration core.Configuration, source core.SampleSource, sink core.SampleSink) (*Pipeline, error) {
	if err := configuration.Validate(); err != nil {
		return nil, err
	}
	if configuration.RingCapacity <= 0 {
		configuration.RingCapacity = DefaultRingCapacity
	}
	if configuration.BlockSize <= 0 {
		configuration.BlockSize = DefaultBlockSize
	}
	policy, ok := ring.ParseOverflowPolicy(configuration.OverflowPolicy)
	if !ok {
		return nil, errors.Wrapf(core.ErrInvalidConfiguration, "unknown overflow policy %q", configuration.OverflowPolicy)
	}
	configuration.OverflowPolicy = policy.String()

	channelizer, err := dsp.NewChannelizer(configuration.SampleRate, configuration.CenterOffset, configuration.Decimation)
	if err != nil {
		return nil, err
	}

	result := &Pipeline{
		configuration: configuration,
		source:        source,
		sink:          sink,
		ring:          ring.New(configuration.RingCapacity, policy),
		channelizer:   channelizer,
		band:          bandplan.IARURegion1.ByFrequency(configuration.ChannelCenter),
	}
	return result, nil
}

// Pipeline is the fixed signal chain source → ring → channelizer → sink.
type Pipeline struct {
	lock          sync.Mutex
	configuration core.Configuration
	state         State
	band          bandplan.Band

	source      core.SampleSource
	sink        core.SampleSink
	ring        *ring.Ring
	channelizer *dsp.Channelizer

	cancel     context.CancelFunc
	loopDone   chan struct{}
	statsDone  chan struct{}
	sinkClosed bool

	errLock   sync.Mutex
	loopErr   error
	sourceErr error

	ending          atomic.Bool
	delivered       atomic.Uint64
	processed       atomic.Uint64
	written         atomic.Uint64
	overflowLock    sync.Mutex
	lastOverflowLog time.Time

	meterLock sync.Mutex
	level     *dsp.LevelMeter
	lastBlock []complex128

	bandChangedCallbacks []BandChanged
}

// OnBandChange registers the given callback to be notified when the channel center moves into another band.
func (p *Pipeline) OnBandChange(f BandChanged) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.bandChangedCallbacks = append(p.bandChangedCallbacks, f)
}

// Start the pipeline: configure and start the source, open the sink and run the channelizing loop.
func (p *Pipeline) Start() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.state == Running {
		return errors.New("pipeline already running")
	}
	if p.loopDone != nil {
		select {
		case <-p.loopDone:
		default:
			return errors.Wrap(core.ErrAdapterUnavailable, "the last channelizing loop is still blocked in the sink")
		}
	}
	configuration := p.configuration

	err := p.configureSource(configuration)
	if err != nil {
		return errors.Wrapf(core.ErrAdapterUnavailable, "cannot configure the source: %v", err)
	}

	err = p.channelizer.Configure(configuration.SampleRate, configuration.CenterOffset, configuration.Decimation)
	if err != nil {
		return err
	}
	p.channelizer.Reset()
	p.ring.Reset()
	p.resetStats()

	if sink, ok := p.sink.(rateAware); ok {
		sink.SetSampleRate(configuration.OutputRate())
	}
	err = p.sink.Open()
	if err != nil {
		return errors.Wrapf(core.ErrAdapterUnavailable, "cannot open the sink: %v", err)
	}
	p.sinkClosed = false

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.loopDone = make(chan struct{})
	go p.run(ctx, configuration.BlockSize, p.loopDone)

	err = p.source.Start(&receiver{p})
	if err != nil {
		cancel()
		<-p.loopDone
		p.closeSink()
		p.cancel = nil
		return errors.Wrapf(core.ErrAdapterUnavailable, "cannot start the source: %v", err)
	}

	if configuration.StatsInterval > 0 {
		p.statsDone = make(chan struct{})
		go p.logStats(ctx, configuration.StatsInterval, p.statsDone)
	}

	p.state = Running
	log.Printf("pipeline started: %v", configuration)
	return nil
}

func (p *Pipeline) configureSource(configuration core.Configuration) error {
	err := p.source.SetSampleRate(configuration.SampleRate)
	if err != nil {
		return err
	}
	err = p.source.SetCenterFrequency(configuration.TunerFrequency())
	if err != nil {
		return err
	}
	err = p.source.SetFrequencyCorrection(configuration.FrequencyCorrection)
	if err != nil {
		return err
	}
	err = p.source.SetGainMode(configuration.AutoGain)
	if err != nil {
		return err
	}
	if !configuration.AutoGain {
		err = p.source.SetGain(configuration.Gain)
		if err != nil {
			return err
		}
	}
	return p.source.SetAntenna(configuration.Antenna)
}

func (p *Pipeline) resetStats() {
	p.errLock.Lock()
	p.loopErr = nil
	p.sourceErr = nil
	p.errLock.Unlock()

	p.ending.Store(false)
	p.delivered.Store(0)
	p.processed.Store(0)
	p.written.Store(0)

	p.meterLock.Lock()
	p.level = dsp.NewLevelMeter(levelMeterLength)
	p.lastBlock = nil
	p.meterLock.Unlock()
}

func (p *Pipeline) run(ctx context.Context, blockSize int, done chan struct{}) {
	defer close(done)
	defer p.ending.Store(true)

	for {
		block, err := p.ring.PopWait(ctx, blockSize)
		if err == io.EOF {
			p.setLoopErr(p.takeSourceErr())
			log.Print("end of samples")
			return
		}
		if err != nil {
			return
		}

		channel := p.channelizer.Process(block)
		p.processed.Add(uint64(len(block)))
		if len(channel) == 0 {
			continue
		}

		err = p.sink.Write(channel)
		if err != nil {
			log.Print("writing the channel samples failed: ", err)
			p.setLoopErr(err)
			return
		}
		p.written.Add(uint64(len(channel)))

		p.meterLock.Lock()
		p.level.Put(channel)
		p.lastBlock = channel
		p.meterLock.Unlock()
	}
}

func (p *Pipeline) setLoopErr(err error) {
	p.errLock.Lock()
	defer p.errLock.Unlock()
	if p.loopErr == nil {
		p.loopErr = err
	}
}

func (p *Pipeline) loopError() error {
	p.errLock.Lock()
	defer p.errLock.Unlock()
	return p.loopErr
}

func (p *Pipeline) takeSourceErr() error {
	p.errLock.Lock()
	defer p.errLock.Unlock()
	err := p.sourceErr
	p.sourceErr = nil
	return err
}

func (p *Pipeline) logStats(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			log.Print(p.Stats())
		case <-ctx.Done():
			return
		}
	}
}

// receiver takes the samples from the source and pushes them into the ring.
type receiver struct {
	p *Pipeline
}

func (r *receiver) Deliver(samples []complex128) {
	p := r.p
	if p.ending.Load() {
		return
	}
	p.delivered.Add(uint64(len(samples)))
	if p.ring.Push(samples) {
		return
	}

	p.overflowLock.Lock()
	defer p.overflowLock.Unlock()
	if time.Since(p.lastOverflowLog) < overflowLogInterval {
		return
	}
	p.lastOverflowLog = time.Now()
	log.Print(errors.Wrapf(core.ErrRingOverflow, "%d overflows, %d samples dropped", p.ring.Overflows(), p.ring.Dropped()))
}

func (r *receiver) EndOfStream(err error) {
	p := r.p
	if err != nil {
		log.Print("source failed: ", err)
		p.errLock.Lock()
		p.sourceErr = err
		p.errLock.Unlock()
	}
	p.ring.Close()
}

// Stop the pipeline. Stop interrupts the channelizing loop, stops the source, discards all buffered samples
// and the filter state and closes the sink. The result is the write error that ended the loop, if any.
func (p *Pipeline) Stop() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.state != Running {
		return nil
	}

	p.cancel()
	sourceErr := p.source.Stop()

	var closeErr error
	select {
	case <-p.loopDone:
		closeErr = p.closeSink()
	case <-time.After(stopTimeout):
		log.Printf("channelizing loop did not stop within %v, closing the sink", stopTimeout)
		closeErr = p.releaseSink()
	}
	if p.statsDone != nil {
		<-p.statsDone
		p.statsDone = nil
	}

	p.ring.Reset()
	p.channelizer.Reset()
	p.cancel = nil
	p.state = Stopped
	log.Printf("pipeline stopped, %d samples written", p.written.Load())

	if err := p.loopError(); err != nil {
		return err
	}
	if closeErr != nil {
		return closeErr
	}
	return errors.Wrap(sourceErr, "cannot stop the source")
}

func (p *Pipeline) closeSink() error {
	if p.sinkClosed {
		return nil
	}
	p.sinkClosed = true
	return p.sink.Close()
}

// releaseSink closes the sink while the channelizing loop is blocked in a write. It waits at most another
// stopTimeout for the loop to end, a loop that is still blocked after that is left behind.
func (p *Pipeline) releaseSink() error {
	p.sinkClosed = true
	closed := make(chan error, 1)
	go func() {
		closed <- p.sink.Close()
	}()

	timeout := time.After(stopTimeout)
	select {
	case <-p.loopDone:
	case <-timeout:
		log.Printf("closing the sink did not release the channelizing loop within %v", stopTimeout)
		return errors.Wrapf(core.ErrIOWriteFailure, "sink still blocked after %v", 2*stopTimeout)
	}
	select {
	case err := <-closed:
		return err
	case <-timeout:
		return errors.Wrapf(core.ErrIOWriteFailure, "closing the sink did not finish within %v", 2*stopTimeout)
	}
}

// Wait until the channelizing loop ends, because the source ended, writing failed or the pipeline was stopped.
// The result is the error that ended the loop.
func (p *Pipeline) Wait() error {
	p.lock.Lock()
	done := p.loopDone
	p.lock.Unlock()
	if done != nil {
		<-done
	}
	return p.loopError()
}

// Configuration returns the current configuration.
func (p *Pipeline) Configuration() core.Configuration {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.configuration
}

// State returns the current state.
func (p *Pipeline) State() State {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.state
}

// Filter returns the configuration snapshot the channelizer currently uses.
func (p *Pipeline) Filter() *dsp.ChannelizerState {
	return p.channelizer.Snapshot()
}

// Band returns the band of the current channel center.
func (p *Pipeline) Band() bandplan.Band {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.band
}

// Stats returns the current counters and levels.
func (p *Pipeline) Stats() Stats {
	result := Stats{
		Delivered: p.delivered.Load(),
		Processed: p.processed.Load(),
		Written:   p.written.Load(),
		Overflows: p.ring.Overflows(),
		Dropped:   p.ring.Dropped(),
	}

	p.meterLock.Lock()
	level := p.level
	lastBlock := p.lastBlock
	p.meterLock.Unlock()

	if level != nil {
		result.Level = level.Level()
	}
	filter := p.channelizer.Snapshot()
	result.Peak, result.PeakLevel = dsp.PeakFrequency(lastBlock, filter.SampleRate/filter.Decimation)
	return result
}

// SetSampleRate changes the sample rate of the source. The filter is redesigned for the new rate.
func (p *Pipeline) SetSampleRate(sampleRate int) error {
	return p.reconfigure(func(c *core.Configuration) { c.SampleRate = sampleRate }, true, true)
}

// SetCenterOffset changes the distance between the tuner frequency and the channel center. The source is retuned,
// the channel center stays where it is.
func (p *Pipeline) SetCenterOffset(offset core.Frequency) error {
	return p.reconfigure(func(c *core.Configuration) { c.CenterOffset = offset }, true, true)
}

// SetDecimation changes the decimation factor. The filter is redesigned for the new output rate.
func (p *Pipeline) SetDecimation(decimation int) error {
	return p.reconfigure(func(c *core.Configuration) { c.Decimation = decimation }, false, true)
}

// SetChannelCenter moves the channel to the given frequency. Only the source is retuned.
func (p *Pipeline) SetChannelCenter(f core.Frequency) error {
	return p.reconfigure(func(c *core.Configuration) { c.ChannelCenter = f }, true, false)
}

func (p *Pipeline) reconfigure(change func(*core.Configuration), updateSource bool, updateChannelizer bool) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	configuration := p.configuration
	change(&configuration)
	err := configuration.Validate()
	if err != nil {
		return err
	}

	if updateSource && p.state == Running {
		err = p.updateSource(p.configuration, configuration)
		if err != nil {
			return err
		}
	}
	if updateChannelizer {
		err = p.channelizer.Configure(configuration.SampleRate, configuration.CenterOffset, configuration.Decimation)
		if err != nil {
			return err
		}
		if sink, ok := p.sink.(rateAware); ok && configuration.OutputRate() != p.configuration.OutputRate() {
			sink.SetSampleRate(configuration.OutputRate())
		}
	}

	p.configuration = configuration
	log.Printf("reconfigured: %v", configuration)
	p.updateBand()
	return nil
}

func (p *Pipeline) updateSource(current, next core.Configuration) error {
	if next.SampleRate != current.SampleRate {
		err := p.source.SetSampleRate(next.SampleRate)
		if err != nil {
			return errors.Wrap(err, "cannot change the sample rate of the source")
		}
	}
	if next.TunerFrequency() != current.TunerFrequency() {
		err := p.source.SetCenterFrequency(next.TunerFrequency())
		if err != nil {
			return errors.Wrap(err, "cannot retune the source")
		}
	}
	return nil
}

func (p *Pipeline) updateBand() {
	f := p.configuration.ChannelCenter
	if p.band.Contains(f) {
		return
	}
	p.band = bandplan.IARURegion1.ByFrequency(f)
	log.Printf("channel %v is in band %v", f, p.band)
	for _, bandChanged := range p.bandChangedCallbacks {
		bandChanged(p.band)
	}
}
