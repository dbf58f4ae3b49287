package iqfile

import (
	"io"
	"log"
	"math"
	"os"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"

	"github.com/ftl/chancap/core"
)

// DefaultBlockSize is the number of samples delivered at once.
const DefaultBlockSize = 16384

// NewSource returns a source that replays the named I/Q file. If throttle is set, the samples are delivered at the
// configured sample rate, otherwise as fast as they can be read.
func NewSource(name string, format Format, blockSize int, throttle bool) *Source {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Source{
		name:      name,
		format:    format,
		blockSize: blockSize,
		throttle:  throttle,
		wait:      new(sync.WaitGroup),
	}
}

// Source replays recorded I/Q samples. Tuning has no effect on a recording, the tuner settings are only kept.
type Source struct {
	name      string
	format    Format
	blockSize int
	throttle  bool

	lock            sync.Mutex
	sampleRate      int
	centerFrequency core.Frequency
	done            chan struct{}
	wait            *sync.WaitGroup
}

// SetSampleRate sets the rate used to throttle the delivery.
func (s *Source) SetSampleRate(sampleRate int) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.sampleRate = sampleRate
	return nil
}

// SetCenterFrequency is kept for reference, a recording cannot be retuned.
func (s *Source) SetCenterFrequency(f core.Frequency) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.centerFrequency = f
	return nil
}

// CenterFrequency returns the last frequency the source was tuned to.
func (s *Source) CenterFrequency() core.Frequency {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.centerFrequency
}

// SetFrequencyCorrection has no effect on a recording.
func (s *Source) SetFrequencyCorrection(int) error { return nil }

// SetGain has no effect on a recording.
func (s *Source) SetGain(core.DB) error { return nil }

// SetGainMode has no effect on a recording.
func (s *Source) SetGainMode(bool) error { return nil }

// SetAntenna has no effect on a recording.
func (s *Source) SetAntenna(string) error { return nil }

// Start opens the file and starts the delivery of samples.
func (s *Source) Start(receiver core.SamplesReceiver) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.done != nil {
		return errors.New("file source already started")
	}

	file, err := os.Open(s.name)
	if err != nil {
		return errors.Wrapf(err, "cannot open %s", s.name)
	}

	var read blockReader
	switch s.format {
	case WAV:
		read, err = s.wavReader(file)
	case CU8:
		read = rawReader(file, s.blockSize, CU8.BytesPerSample(), DecodeCU8)
	case CF32:
		read = rawReader(file, s.blockSize, CF32.BytesPerSample(), DecodeCF32)
	default:
		err = errors.Errorf("unknown I/Q file format %q", s.format)
	}
	if err != nil {
		file.Close()
		return err
	}

	done := make(chan struct{})
	s.done = done
	pace := s.blockDuration()
	log.Printf("replaying %s from %s", s.format, s.name)

	s.wait.Add(1)
	go func() {
		defer s.wait.Done()
		defer file.Close()
		s.run(read, receiver, done, pace)
	}()
	return nil
}

func (s *Source) blockDuration() time.Duration {
	if !s.throttle || s.sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(s.blockSize) / float64(s.sampleRate) * float64(time.Second))
}

func (s *Source) run(read blockReader, receiver core.SamplesReceiver, done <-chan struct{}, pace time.Duration) {
	next := time.Now()
	for {
		samples, err := read()
		if len(samples) > 0 {
			receiver.Deliver(samples)
		}
		if err == io.EOF {
			log.Printf("end of %s", s.name)
			receiver.EndOfStream(nil)
			return
		}
		if err != nil {
			receiver.EndOfStream(errors.Wrapf(err, "cannot read %s", s.name))
			return
		}

		if pace > 0 {
			next = next.Add(pace)
			select {
			case <-done:
				return
			case <-time.After(time.Until(next)):
			}
		} else {
			select {
			case <-done:
				return
			default:
			}
		}
	}
}

// Stop the delivery and close the file.
func (s *Source) Stop() error {
	s.lock.Lock()
	done := s.done
	s.done = nil
	s.lock.Unlock()
	if done == nil {
		return nil
	}
	close(done)
	s.wait.Wait()
	return nil
}

// blockReader returns the next block of samples, or io.EOF after the last block.
type blockReader func() ([]complex128, error)

func rawReader(r io.Reader, blockSize int, bytesPerSample int, decode func([]byte) []complex128) blockReader {
	buffer := make([]byte, blockSize*bytesPerSample)
	return func() ([]complex128, error) {
		n, err := io.ReadFull(r, buffer)
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return decode(buffer[:n-n%bytesPerSample]), err
	}
}

func (s *Source) wavReader(file io.ReadSeeker) (blockReader, error) {
	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, errors.Errorf("%s is not a valid WAV file", s.name)
	}
	if decoder.NumChans != 2 {
		return nil, errors.Errorf("%s has %d channels, I/Q needs 2", s.name, decoder.NumChans)
	}
	if decoder.BitDepth != 16 && decoder.BitDepth != 24 && decoder.BitDepth != 32 {
		return nil, errors.Errorf("%s has %d bits per sample, only 16, 24 or 32 are supported", s.name, decoder.BitDepth)
	}
	if int(decoder.SampleRate) != s.sampleRate {
		log.Printf("%s was recorded at %dHz, the configured sample rate is %dHz", s.name, decoder.SampleRate, s.sampleRate)
	}
	err := decoder.FwdToPCM()
	if err != nil {
		return nil, errors.Wrapf(err, "cannot find the samples in %s", s.name)
	}

	fullScale := math.Pow(2, float64(decoder.BitDepth-1))
	buffer := &audio.IntBuffer{Data: make([]int, 2*s.blockSize)}
	return func() ([]complex128, error) {
		n, err := decoder.PCMBuffer(buffer)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, io.EOF
		}
		result := make([]complex128, n/2)
		for i := range result {
			result[i] = complex(float64(buffer.Data[2*i])/fullScale, float64(buffer.Data[2*i+1])/fullScale)
		}
		return result, nil
	}, nil
}
