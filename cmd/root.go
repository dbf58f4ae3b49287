// Package cmd implements the command line interface of chancap.
package cmd

import (
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ftl/chancap/core"
	"github.com/ftl/chancap/core/cfg"
)

var rootCmd = &cobra.Command{
	Use:   "chancap",
	Short: "Capture a narrow channel from an SDR into a file",
	Long: `chancap tunes an RTL-SDR next to the channel of interest, shifts the channel to 0Hz,
low-pass filters and decimates it and writes the channel samples into a file.

The defaults capture 144.7MHz with the tuner at 144.6MHz, 3.2MS/s decimated by 20 into
/tmp/channel0.iq as interleaved little-endian float32 I/Q pairs at 160kS/s.`,
	SilenceUsage: true,
	RunE:         runCapture,
}

var rootFlags = struct {
	sampleRate          int
	centerOffset        float64
	decimation          int
	channelCenter       float64
	frequencyCorrection int
	gain                float64
	autoGain            bool
	antenna             string
	source              string
	device              int
	output              string
	outputFormat        string
	unbuffered          bool
	ringCapacity        int
	blockSize           int
	overflowPolicy      string
	vfoHost             string
	statsInterval       time.Duration
}{}

func init() {
	defaults := cfg.Static()
	flags := rootCmd.PersistentFlags()
	flags.IntVarP(&rootFlags.sampleRate, "sample-rate", "s", defaults.SampleRate, "sample rate of the receiver in S/s")
	flags.Float64VarP(&rootFlags.centerOffset, "center-offset", "o", float64(defaults.CenterOffset), "tuner frequency relative to the channel center in Hz")
	flags.IntVarP(&rootFlags.decimation, "decimation", "d", defaults.Decimation, "decimation factor")
	flags.Float64VarP(&rootFlags.channelCenter, "channel-center", "f", float64(defaults.ChannelCenter), "center frequency of the channel in Hz")
	flags.IntVar(&rootFlags.frequencyCorrection, "ppm", defaults.FrequencyCorrection, "frequency correction of the receiver in ppm")
	flags.Float64VarP(&rootFlags.gain, "gain", "g", float64(defaults.Gain), "tuner gain in dB")
	flags.BoolVar(&rootFlags.autoGain, "auto-gain", defaults.AutoGain, "use automatic gain control")
	flags.StringVar(&rootFlags.antenna, "antenna", defaults.Antenna, "antenna input of the receiver")
	flags.StringVar(&rootFlags.source, "source", defaults.Source, `sample source: "rtlsdr", "tone[:<Hz>]" or "file:<path>"`)
	flags.IntVar(&rootFlags.device, "device", defaults.Device, "index of the RTL-SDR device")
	flags.StringVarP(&rootFlags.output, "output", "O", defaults.Output, `output file, "-" for stdout`)
	flags.StringVar(&rootFlags.outputFormat, "output-format", string(defaults.OutputFormat), `output format: "raw" (cf32) or "wav"`)
	flags.BoolVarP(&rootFlags.unbuffered, "unbuffered", "u", defaults.Unbuffered, "flush the output after every block")
	flags.IntVar(&rootFlags.ringCapacity, "ring-capacity", defaults.RingCapacity, "capacity of the sample ring in samples")
	flags.IntVar(&rootFlags.blockSize, "block-size", defaults.BlockSize, "number of samples processed at once")
	flags.StringVar(&rootFlags.overflowPolicy, "overflow-policy", defaults.OverflowPolicy, `what to drop if the ring is full: "drop-oldest" or "reject-newest"`)
	flags.StringVar(&rootFlags.vfoHost, "vfo", defaults.VFOHost, "follow the frequency of the hamlib rig at this address")
	flags.DurationVar(&rootFlags.statsInterval, "stats-interval", defaults.StatsInterval, "interval of the stats log, 0 to disable")
}

// Execute the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// loadConfiguration reads the configuration file and overrides it with the flags that are set on the command line.
func loadConfiguration(flags *pflag.FlagSet) (core.Configuration, error) {
	configuration, err := cfg.Load()
	if err != nil {
		log.Println(err)
		configuration = cfg.Static()
	}
	applyFlags(flags, &configuration)

	err = configuration.Validate()
	if err != nil {
		return core.Configuration{}, err
	}
	return configuration, nil
}

func applyFlags(flags *pflag.FlagSet, configuration *core.Configuration) {
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("sample-rate", func() { configuration.SampleRate = rootFlags.sampleRate })
	set("center-offset", func() { configuration.CenterOffset = core.Frequency(rootFlags.centerOffset) })
	set("decimation", func() { configuration.Decimation = rootFlags.decimation })
	set("channel-center", func() { configuration.ChannelCenter = core.Frequency(rootFlags.channelCenter) })
	set("ppm", func() { configuration.FrequencyCorrection = rootFlags.frequencyCorrection })
	set("gain", func() { configuration.Gain = core.DB(rootFlags.gain) })
	set("auto-gain", func() { configuration.AutoGain = rootFlags.autoGain })
	set("antenna", func() { configuration.Antenna = rootFlags.antenna })
	set("source", func() { configuration.Source = rootFlags.source })
	set("device", func() { configuration.Device = rootFlags.device })
	set("output", func() { configuration.Output = rootFlags.output })
	set("output-format", func() { configuration.OutputFormat = core.OutputFormat(rootFlags.outputFormat) })
	set("unbuffered", func() { configuration.Unbuffered = rootFlags.unbuffered })
	set("ring-capacity", func() { configuration.RingCapacity = rootFlags.ringCapacity })
	set("block-size", func() { configuration.BlockSize = rootFlags.blockSize })
	set("overflow-policy", func() { configuration.OverflowPolicy = rootFlags.overflowPolicy })
	set("vfo", func() { configuration.VFOHost = rootFlags.vfoHost })
	set("stats-interval", func() { configuration.StatsInterval = rootFlags.statsInterval })
}
