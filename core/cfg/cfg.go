package cfg

import (
	"time"

	"github.com/ftl/hamradio/cfg"

	"github.com/ftl/chancap/core"
)

const (
	sampleRate          cfg.Key = "chancap.sampleRate"
	centerOffset        cfg.Key = "chancap.centerOffset"
	decimation          cfg.Key = "chancap.decimation"
	channelCenter       cfg.Key = "chancap.channelCenter"
	frequencyCorrection cfg.Key = "chancap.frequencyCorrection"
	gain                cfg.Key = "chancap.gain"
	autoGain            cfg.Key = "chancap.autoGain"
	antenna             cfg.Key = "chancap.antenna"
	source              cfg.Key = "chancap.source"
	device              cfg.Key = "chancap.device"
	output              cfg.Key = "chancap.output"
	outputFormat        cfg.Key = "chancap.outputFormat"
	unbuffered          cfg.Key = "chancap.unbuffered"
	ringCapacity        cfg.Key = "chancap.ringCapacity"
	blockSize           cfg.Key = "chancap.blockSize"
	overflowPolicy      cfg.Key = "chancap.overflowPolicy"
	vfoHost             cfg.Key = "chancap.vfoHost"
	statsInterval       cfg.Key = "chancap.statsInterval"
)

// getter reads a single value from the configuration file.
type getter interface {
	Get(key cfg.Key, defaultValue interface{}) interface{}
}

// Load the configuration from the default configuration file. Keys that are not set keep the static defaults.
func Load() (core.Configuration, error) {
	configuration, err := cfg.LoadDefault()
	if err != nil {
		return core.Configuration{}, err
	}
	return read(&configuration), nil
}

func read(configuration getter) core.Configuration {
	defaults := Static()
	return core.Configuration{
		SampleRate:    getInt(configuration, sampleRate, defaults.SampleRate),
		CenterOffset:  core.Frequency(getFloat(configuration, centerOffset, float64(defaults.CenterOffset))),
		Decimation:    getInt(configuration, decimation, defaults.Decimation),
		ChannelCenter: core.Frequency(getFloat(configuration, channelCenter, float64(defaults.ChannelCenter))),

		FrequencyCorrection: getInt(configuration, frequencyCorrection, defaults.FrequencyCorrection),
		Gain:                core.DB(getFloat(configuration, gain, float64(defaults.Gain))),
		AutoGain:            getBool(configuration, autoGain, defaults.AutoGain),
		Antenna:             getString(configuration, antenna, defaults.Antenna),

		Source:         getString(configuration, source, defaults.Source),
		Device:         getInt(configuration, device, defaults.Device),
		Output:         getString(configuration, output, defaults.Output),
		OutputFormat:   core.OutputFormat(getString(configuration, outputFormat, string(defaults.OutputFormat))),
		Unbuffered:     getBool(configuration, unbuffered, defaults.Unbuffered),
		RingCapacity:   getInt(configuration, ringCapacity, defaults.RingCapacity),
		BlockSize:      getInt(configuration, blockSize, defaults.BlockSize),
		OverflowPolicy: getString(configuration, overflowPolicy, defaults.OverflowPolicy),
		VFOHost:        getString(configuration, vfoHost, defaults.VFOHost),
		StatsInterval:  time.Duration(getFloat(configuration, statsInterval, defaults.StatsInterval.Seconds()) * float64(time.Second)),
	}
}

// Static returns the default configuration: a 2m channel at 144.7MHz, captured with an RTL-SDR at 3.2MS/s
// and decimated to 160kS/s.
func Static() core.Configuration {
	return core.Configuration{
		SampleRate:    3200000,
		CenterOffset:  -100000,
		Decimation:    20,
		ChannelCenter: 144700000,

		Gain:    10,
		Antenna: "",

		Source:         "rtlsdr",
		Output:         "/tmp/channel0.iq",
		OutputFormat:   core.OutputRaw,
		RingCapacity:   1 << 21,
		BlockSize:      16384,
		OverflowPolicy: "drop-oldest",
		StatsInterval:  10 * time.Second,
	}
}

// numbers in the configuration file are always float64
func getFloat(configuration getter, key cfg.Key, defaultValue float64) float64 {
	value, ok := configuration.Get(key, defaultValue).(float64)
	if !ok {
		return defaultValue
	}
	return value
}

func getInt(configuration getter, key cfg.Key, defaultValue int) int {
	return int(getFloat(configuration, key, float64(defaultValue)))
}

func getString(configuration getter, key cfg.Key, defaultValue string) string {
	value, ok := configuration.Get(key, defaultValue).(string)
	if !ok {
		return defaultValue
	}
	return value
}

func getBool(configuration getter, key cfg.Key, defaultValue bool) bool {
	value, ok := configuration.Get(key, defaultValue).(bool)
	if !ok {
		return defaultValue
	}
	return value
}
