package app

import (
	"log"

	"github.com/ftl/chancap/core"
)

func newMainLoop(pipeline pipelineType) *mainLoop {
	return &mainLoop{
		pipeline: pipeline,
		command:  make(chan command, 10),
	}
}

type command func()

// mainLoop serializes the retuning commands from the different controls (VFO, configuration reload) into the pipeline.
type mainLoop struct {
	pipeline pipelineType
	command  chan command
}

type pipelineType interface {
	SetSampleRate(int) error
	SetCenterOffset(core.Frequency) error
	SetDecimation(int) error
	SetChannelCenter(core.Frequency) error
	Configuration() core.Configuration
}

func (m *mainLoop) Run(stop chan struct{}) {
	defer log.Print("main loop shutdown")
	for {
		select {
		case command := <-m.command:
			command()
		case <-stop:
			return
		}
	}
}

func (m *mainLoop) q(cmd command) {
	select {
	case m.command <- cmd:
	default:
		log.Print("Mainloop.q hangs")
	}
}

func logError(action string, err error) {
	if err != nil {
		log.Printf("%s failed: %v", action, err)
	}
}

// SetChannelCenter moves the channel to the given frequency.
func (m *mainLoop) SetChannelCenter(f core.Frequency) {
	m.q(func() {
		logError("retuning the channel", m.pipeline.SetChannelCenter(f))
	})
}

// Apply the runtime settings of the given configuration that differ from the current configuration of the pipeline.
func (m *mainLoop) Apply(next core.Configuration) {
	m.q(func() {
		current := m.pipeline.Configuration()
		setSampleRate := func() {
			if next.SampleRate != current.SampleRate {
				logError("changing the sample rate", m.pipeline.SetSampleRate(next.SampleRate))
			}
		}
		setCenterOffset := func() {
			if next.CenterOffset != current.CenterOffset {
				logError("changing the center offset", m.pipeline.SetCenterOffset(next.CenterOffset))
			}
		}

		// the offset must fit into the band of the new sample rate
		if next.SampleRate < current.SampleRate {
			setCenterOffset()
			setSampleRate()
		} else {
			setSampleRate()
			setCenterOffset()
		}
		if next.Decimation != current.Decimation {
			logError("changing the decimation", m.pipeline.SetDecimation(next.Decimation))
		}
		if next.ChannelCenter != current.ChannelCenter {
			logError("retuning the channel", m.pipeline.SetChannelCenter(next.ChannelCenter))
		}
	})
}
