package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/chancap/core"
	"github.com/ftl/chancap/core/cfg"
)

func TestApplyFlagsOverridesOnlyChangedFlags(t *testing.T) {
	flags := rootCmd.PersistentFlags()
	require.NoError(t, flags.Parse([]string{
		"-f", "145500000",
		"--decimation=40",
		"--source", "tone",
		"--output-format", "wav",
		"-u",
		"--stats-interval", "1s",
	}))
	configuration := cfg.Static()
	configuration.Output = "/var/tmp/capture.iq"

	applyFlags(flags, &configuration)

	assert.Equal(t, core.Frequency(145.5e6), configuration.ChannelCenter)
	assert.Equal(t, 40, configuration.Decimation)
	assert.Equal(t, "tone", configuration.Source)
	assert.Equal(t, core.OutputWAV, configuration.OutputFormat)
	assert.True(t, configuration.Unbuffered)
	assert.Equal(t, time.Second, configuration.StatsInterval)
	assert.Equal(t, "/var/tmp/capture.iq", configuration.Output, "not set on the command line")
	assert.Equal(t, 3200000, configuration.SampleRate)
	assert.Equal(t, core.Frequency(-100e3), configuration.CenterOffset)
}

func TestPrintTaps(t *testing.T) {
	out := new(bytes.Buffer)

	require.NoError(t, printTaps(out, cfg.Static()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 482)
	assert.True(t, strings.HasPrefix(lines[0], "# 481 taps, sample rate 3200000"), lines[0])
	assert.True(t, strings.HasPrefix(lines[241], "240\t0.0500647045003"), lines[241])
}

func TestPrintTapsRejectsInvalidConfiguration(t *testing.T) {
	configuration := cfg.Static()
	configuration.Decimation = 0

	assert.Error(t, printTaps(new(bytes.Buffer), configuration))
}
