package app

import (
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/ftl/chancap/core"
	"github.com/ftl/chancap/core/bandplan"
	"github.com/ftl/chancap/core/iqfile"
	"github.com/ftl/chancap/core/pipeline"
	"github.com/ftl/chancap/core/rtlsdr"
	"github.com/ftl/chancap/core/synth"
	"github.com/ftl/chancap/core/vfo"
)

// Source names.
const (
	SourceRTLSDR = "rtlsdr"
	SourceTone   = "tone"
	SourceFile   = "file"
)

// NewController returns a controller for the given configuration.
func NewController(configuration core.Configuration) *Controller {
	return &Controller{
		configuration: configuration,
	}
}

// Controller for the application.
type Controller struct {
	configuration core.Configuration
	done          chan struct{}
	subProcesses  *sync.WaitGroup

	pipeline *pipeline.Pipeline
	mainLoop *mainLoop
}

// Startup the application: build and start the pipeline and follow the VFO if a VFO host is configured.
func (c *Controller) Startup() error {
	source, err := newSource(c.configuration)
	if err != nil {
		return err
	}
	sink := iqfile.NewSink(c.configuration.Output, c.configuration.OutputFormat, c.configuration.Unbuffered)

	c.pipeline, err = pipeline.New(c.configuration, source, sink)
	if err != nil {
		return err
	}
	c.pipeline.OnBandChange(func(band bandplan.Band) {
		log.Printf("now capturing in band %v", band)
	})
	err = c.pipeline.Start()
	if err != nil {
		return err
	}

	c.done = make(chan struct{})
	c.subProcesses = new(sync.WaitGroup)
	c.mainLoop = newMainLoop(c.pipeline)
	c.subProcesses.Add(1)
	go func() {
		defer c.subProcesses.Done()
		c.mainLoop.Run(c.done)
	}()

	if c.configuration.VFOHost != "" {
		rig, err := vfo.Open(c.configuration.VFOHost)
		if err != nil {
			log.Print("Cannot follow the VFO: ", err)
			return nil
		}
		rig.OnFrequencyChange(func(f core.Frequency) {
			log.Print("Current VFO frequency: ", f)
			c.mainLoop.SetChannelCenter(f)
		})
		rig.Run(c.done, c.subProcesses)
	}
	return nil
}

// Wait until the capture ends and return the error that ended it.
func (c *Controller) Wait() error {
	if c.pipeline == nil {
		return nil
	}
	return c.pipeline.Wait()
}

// Shutdown the application.
func (c *Controller) Shutdown() error {
	if c.done != nil {
		close(c.done)
		c.subProcesses.Wait()
		c.done = nil
	}
	if c.pipeline == nil {
		return nil
	}
	stats := c.Stats()
	err := c.pipeline.Stop()
	log.Print("Shutdown: ", stats)
	return err
}

// Stats of the running capture.
func (c *Controller) Stats() pipeline.Stats {
	return c.pipeline.Stats()
}

// Reconfigure applies the runtime settings of the given configuration to the running capture: sample rate,
// center offset, decimation and channel center. Other settings take effect with the next start.
func (c *Controller) Reconfigure(configuration core.Configuration) {
	c.mainLoop.Apply(configuration)
}

// newSource selects the source by name: "rtlsdr", "tone", "tone:<frequency in Hz>" or "file:<path>".
func newSource(configuration core.Configuration) (core.SampleSource, error) {
	name, argument := configuration.Source, ""
	if i := strings.Index(name, ":"); i >= 0 {
		name, argument = name[:i], name[i+1:]
	}

	switch strings.ToLower(name) {
	case "", SourceRTLSDR:
		return rtlsdr.New(configuration.Device), nil
	case SourceTone:
		frequency := configuration.ChannelCenter
		if argument != "" {
			f, err := strconv.ParseFloat(argument, 64)
			if err != nil {
				return nil, errors.Wrapf(core.ErrInvalidConfiguration, "invalid tone frequency %q", argument)
			}
			frequency = core.Frequency(f)
		}
		tone := synth.NewTone(frequency, 0.5, configuration.BlockSize)
		tone.SetNoise(0.01)
		return tone, nil
	case SourceFile:
		if argument == "" {
			return nil, errors.Wrap(core.ErrInvalidConfiguration, "file source needs a file name")
		}
		return iqfile.NewSource(argument, iqfile.FormatByName(argument), configuration.BlockSize, true), nil
	default:
		return nil, errors.Wrapf(core.ErrInvalidConfiguration, "unknown source %q", configuration.Source)
	}
}
