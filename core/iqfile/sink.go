package iqfile

import (
	"bufio"
	"log"
	"os"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"

	"github.com/ftl/chancap/core"
)

// Stdout is the sink name that selects the standard output instead of a file.
const Stdout = "-"

// NewSink returns a sink that writes into the named file or to stdout. The file is truncated when the sink is opened.
// Raw output is buffered unless unbuffered is set, then every write is flushed.
func NewSink(name string, format core.OutputFormat, unbuffered bool) *Sink {
	return &Sink{
		name:       name,
		format:     format,
		unbuffered: unbuffered,
	}
}

// Sink writes channel samples as raw cf32 or as WAV. Close may be called while a Write is in progress.
type Sink struct {
	name       string
	format     core.OutputFormat
	unbuffered bool

	lock       sync.Mutex
	sampleRate int
	file       *os.File
	closing    bool
	writing    bool
	written    int64

	// output is held while samples are written or flushed, it guards the fields below.
	output  sync.Mutex
	writer  *bufio.Writer
	encoder *wav.Encoder
	buffer  []byte
	pcm     *audio.IntBuffer
}

// SetSampleRate sets the rate written into the WAV header. It has no effect once a WAV file is open.
func (s *Sink) SetSampleRate(sampleRate int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.file != nil && s.format == core.OutputWAV && sampleRate != s.sampleRate {
		log.Printf("output rate changed to %d, the WAV header still says %d", sampleRate, s.sampleRate)
		return
	}
	s.sampleRate = sampleRate
}

// Open the sink for writing.
func (s *Sink) Open() error {
	s.output.Lock()
	defer s.output.Unlock()
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.file != nil {
		return errors.New("sink already open")
	}

	var file *os.File
	var err error
	switch s.format {
	case core.OutputRaw, "":
		if s.name == Stdout {
			file = os.Stdout
			file.SetWriteDeadline(time.Time{})
		} else {
			file, err = os.Create(s.name)
			if err != nil {
				return errors.Wrapf(err, "cannot create %s", s.name)
			}
		}
		s.writer = bufio.NewWriterSize(file, 64*1024)
		s.encoder = nil
	case core.OutputWAV:
		if s.name == Stdout {
			return errors.New("WAV output needs a file, it cannot be written to stdout")
		}
		if s.sampleRate <= 0 {
			return errors.New("WAV output needs the output sample rate")
		}
		file, err = os.Create(s.name)
		if err != nil {
			return errors.Wrapf(err, "cannot create %s", s.name)
		}
		s.writer = nil
		s.encoder = wav.NewEncoder(file, s.sampleRate, 16, 2, 1)
		s.pcm = &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 2, SampleRate: s.sampleRate},
			SourceBitDepth: 16,
		}
	default:
		return errors.Errorf("unknown output format %q", s.format)
	}

	s.file = file
	s.closing = false
	s.written = 0
	log.Printf("writing %s output to %s", s.format, s.name)
	return nil
}

// Write the given samples. Errors are reported as core.ErrIOWriteFailure, samples written before stay in the output.
func (s *Sink) Write(samples []complex128) error {
	s.output.Lock()
	defer s.output.Unlock()

	s.lock.Lock()
	if s.file == nil || s.closing {
		s.lock.Unlock()
		return errors.Wrap(core.ErrIOWriteFailure, "sink is not open")
	}
	s.writing = true
	s.lock.Unlock()

	var err error
	if s.encoder != nil {
		err = s.writeWAV(samples)
	} else {
		err = s.writeRaw(samples)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.writing = false
	if err != nil {
		return errors.Wrapf(core.ErrIOWriteFailure, "%s: %v", s.name, err)
	}
	s.written += int64(len(samples))
	return nil
}

func (s *Sink) writeRaw(samples []complex128) error {
	s.buffer = EncodeCF32(s.buffer[:0], samples)
	_, err := s.writer.Write(s.buffer)
	if err != nil {
		return err
	}
	if s.unbuffered {
		return s.writer.Flush()
	}
	return nil
}

func (s *Sink) writeWAV(samples []complex128) error {
	if cap(s.pcm.Data) < 2*len(samples) {
		s.pcm.Data = make([]int, 2*len(samples))
	}
	s.pcm.Data = s.pcm.Data[:2*len(samples)]
	for i, v := range samples {
		s.pcm.Data[2*i] = toPCM16(real(v))
		s.pcm.Data[2*i+1] = toPCM16(imag(v))
	}
	return s.encoder.Write(s.pcm)
}

// Written returns the number of samples written since the sink was opened.
func (s *Sink) Written() int64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.written
}

// Close flushes all buffered samples and closes the output. A write into a stalled pipe is interrupted,
// then the samples that are still buffered are discarded.
func (s *Sink) Close() error {
	s.lock.Lock()
	if s.file == nil || s.closing {
		s.lock.Unlock()
		return nil
	}
	s.closing = true
	file := s.file
	// regular files do not support deadlines, a pending write to a file completes
	interrupted := s.writing && file.SetWriteDeadline(time.Now()) == nil
	s.lock.Unlock()

	s.output.Lock()
	defer s.output.Unlock()

	var err error
	switch {
	case interrupted:
		log.Printf("blocked write to %s interrupted, buffered samples discarded", s.name)
	case s.writer != nil:
		err = s.writer.Flush()
	case s.encoder != nil:
		err = s.encoder.Close()
	}
	s.writer = nil
	s.encoder = nil

	var closeErr error
	if s.name != Stdout {
		closeErr = file.Close()
	}

	s.lock.Lock()
	s.file = nil
	written := s.written
	s.lock.Unlock()

	if err != nil {
		return errors.Wrapf(core.ErrIOWriteFailure, "%s: %v", s.name, err)
	}
	if closeErr != nil {
		return errors.Wrapf(core.ErrIOWriteFailure, "%s: %v", s.name, closeErr)
	}
	log.Printf("%d samples written to %s", written, s.name)
	return nil
}
