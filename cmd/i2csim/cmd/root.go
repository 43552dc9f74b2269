// Package cmd provides the command-line interface of i2csim.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "i2csim",
		Short: "i2csim runs a brokered multi-client I2C system.",
		Long: `i2csim builds the broker, the driver and the clients described ` +
			`by a system file, runs the clients' operations against simulated ` +
			`bus targets, and reports what happened.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "system description (YAML)")
	root.PersistentFlags().String("env", "", "file with environment overrides")

	root.AddCommand(newRunCmd())
	root.AddCommand(newLayoutCmd())

	return root
}

// Execute runs the command line and exits. Exiting through atexit flushes
// any trace database still open.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
