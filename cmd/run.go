package cmd

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ftl/chancap/core/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture the channel until interrupted or the source ends (default), SIGHUP reloads the configuration",
	Args:  cobra.NoArgs,
	RunE:  runCapture,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
	configuration, err := loadConfiguration(cmd.Flags())
	if err != nil {
		return err
	}

	controller := app.NewController(configuration)
	err = controller.Startup()
	if err != nil {
		controller.Shutdown()
		return err
	}

	ended := make(chan error, 1)
	go func() {
		ended <- controller.Wait()
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)

loop:
	for {
		select {
		case s := <-signals:
			if s == syscall.SIGHUP {
				reload(cmd.Flags(), controller)
				continue
			}
			log.Printf("%v received", s)
			break loop
		case err = <-ended:
			if err != nil {
				log.Print("capture ended: ", err)
			}
			break loop
		}
	}

	shutdownErr := controller.Shutdown()
	if err != nil {
		return err
	}
	return shutdownErr
}

// reload reads the configuration again and applies its runtime settings. Flags given on the command line keep
// their values.
func reload(flags *pflag.FlagSet, controller *app.Controller) {
	configuration, err := loadConfiguration(flags)
	if err != nil {
		log.Print("cannot reload the configuration: ", err)
		return
	}
	log.Print("configuration reloaded: ", configuration)
	controller.Reconfigure(configuration)
}
