package core

import (
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
)

// Frequency represents a frequency in Hz.
type Frequency float64

func (f Frequency) String() string {
	return fmt.Sprintf("%.2fHz", f)
}

// FrequencyRange represents a range of frequencies.
type FrequencyRange struct {
	From, To Frequency
}

func (r FrequencyRange) String() string {
	return fmt.Sprintf("[%v,%v]", r.From, r.To)
}

// Center frequency of this range.
func (r FrequencyRange) Center() Frequency {
	return r.From + (r.To-r.From)/2
}

// Width of the frequency range.
func (r FrequencyRange) Width() Frequency {
	return r.To - r.From
}

// Contains the given frequency.
func (r FrequencyRange) Contains(f Frequency) bool {
	return f >= r.From && f <= r.To
}

// DB represents decibel (dB).
type DB float64

func (f DB) String() string {
	return fmt.Sprintf("%.2fdB", f)
}

// All errors the channel capture core reports. Call sites wrap them, use errors.Cause or errors.Is to check.
var (
	ErrInvalidDesignParameters = errors.New("invalid filter design parameters")
	ErrInvalidConfiguration    = errors.New("invalid configuration")
	ErrAdapterUnavailable      = errors.New("adapter unavailable")
	ErrRingOverflow            = errors.New("sample ring overflow")
	ErrIOWriteFailure          = errors.New("output write failed")
)

// OutputFormat of the persisted channel samples.
type OutputFormat string

// All output formats.
const (
	// OutputRaw writes interleaved little-endian float32 I/Q pairs without any header.
	OutputRaw OutputFormat = "raw"
	// OutputWAV writes a 16-bit stereo WAV file, I on the left and Q on the right channel.
	OutputWAV OutputFormat = "wav"
)

// Configuration parameters of the application.
type Configuration struct {
	SampleRate    int
	CenterOffset  Frequency
	Decimation    int
	ChannelCenter Frequency

	FrequencyCorrection int
	Gain                DB
	AutoGain            bool
	Antenna             string

	Source         string
	Device         int
	Output         string
	OutputFormat   OutputFormat
	Unbuffered     bool
	RingCapacity   int
	BlockSize      int
	OverflowPolicy string
	VFOHost        string
	StatsInterval  time.Duration
}

// TunerFrequency is the physical center frequency the receiver must be tuned to.
func (c Configuration) TunerFrequency() Frequency {
	return c.ChannelCenter + c.CenterOffset
}

// OutputRate is the sample rate of the channel after decimation.
func (c Configuration) OutputRate() int {
	if c.Decimation < 1 {
		return 0
	}
	return c.SampleRate / c.Decimation
}

// Shift is the frequency translation applied by the channelizer. It is the negated center offset,
// which moves the channel center from the tuner baseband onto 0Hz.
func (c Configuration) Shift() Frequency {
	return -c.CenterOffset
}

// Validate the signal chain parameters.
func (c Configuration) Validate() error {
	if c.SampleRate <= 0 {
		return errors.Wrapf(ErrInvalidConfiguration, "sample rate must be positive, got %d", c.SampleRate)
	}
	if c.Decimation < 1 {
		return errors.Wrapf(ErrInvalidConfiguration, "decimation must be at least 1, got %d", c.Decimation)
	}
	if !finite(float64(c.CenterOffset)) {
		return errors.Wrapf(ErrInvalidConfiguration, "center offset must be a finite frequency, got %v", float64(c.CenterOffset))
	}
	if !finite(float64(c.ChannelCenter)) {
		return errors.Wrapf(ErrInvalidConfiguration, "channel center must be a finite frequency, got %v", float64(c.ChannelCenter))
	}
	if !finite(float64(c.Gain)) {
		return errors.Wrapf(ErrInvalidConfiguration, "gain must be finite, got %v", float64(c.Gain))
	}
	if math.Abs(float64(c.CenterOffset)) >= float64(c.SampleRate)/2 {
		return errors.Wrapf(ErrInvalidConfiguration, "center offset %v outside of the sampled band ±%v", c.CenterOffset, Frequency(c.SampleRate)/2)
	}
	if c.OutputRate() == 0 {
		return errors.Wrapf(ErrInvalidConfiguration, "decimation %d too large for sample rate %d", c.Decimation, c.SampleRate)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (c Configuration) String() string {
	return fmt.Sprintf("rate %d, offset %v, decimation %d, channel %v, tuner %v, output rate %d",
		c.SampleRate, c.CenterOffset, c.Decimation, c.ChannelCenter, c.TunerFrequency(), c.OutputRate())
}

// SamplesReceiver consumes the sample blocks a SampleSource delivers.
type SamplesReceiver interface {
	// Deliver a block of samples. The receiver takes ownership of the block.
	Deliver(samples []complex128)
	// EndOfStream is called once when the source cannot deliver any more samples. err is nil for a regular end.
	EndOfStream(err error)
}

// SampleSource produces the raw complex sample stream of the receiver.
type SampleSource interface {
	SetSampleRate(sampleRate int) error
	SetCenterFrequency(f Frequency) error
	SetFrequencyCorrection(ppm int) error
	SetGain(gain DB) error
	SetGainMode(auto bool) error
	SetAntenna(name string) error

	// Start the delivery of samples to the given receiver. The delivery runs on its own goroutine.
	Start(receiver SamplesReceiver) error
	// Stop the delivery and release the source.
	Stop() error
}

// SampleSink consumes the filtered and decimated channel samples.
type SampleSink interface {
	Open() error
	Write(samples []complex128) error
	Close() error
}
