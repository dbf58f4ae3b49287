package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ftl/chancap/core"
	"github.com/ftl/chancap/core/dsp"
)

var tapsCmd = &cobra.Command{
	Use:   "taps",
	Short: "Print the channel filter that is designed for the current configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configuration, err := loadConfiguration(cmd.Flags())
		if err != nil {
			return err
		}
		return printTaps(cmd.OutOrStdout(), configuration)
	},
}

func init() {
	rootCmd.AddCommand(tapsCmd)
}

func printTaps(out io.Writer, configuration core.Configuration) error {
	taps, err := dsp.ChannelFilter(configuration.SampleRate, configuration.Decimation)
	if err != nil {
		return err
	}

	outputRate := configuration.OutputRate()
	fmt.Fprintf(out, "# %d taps, sample rate %d, cutoff %v, transition %v, output rate %d, shift %v\n",
		len(taps), configuration.SampleRate,
		core.Frequency(outputRate)/2, core.Frequency(outputRate)/10,
		outputRate, configuration.Shift())
	for i, tap := range taps {
		fmt.Fprintf(out, "%d\t%.17g\n", i, tap)
	}
	return nil
}
