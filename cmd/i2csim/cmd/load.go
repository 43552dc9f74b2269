package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sarchlab/i2cmux/config"
)

func loadConfig(cmd *cobra.Command) (config.System, error) {
	envFile, _ := cmd.Flags().GetString("env")

	var err error
	if envFile != "" {
		err = config.LoadDotEnv(envFile)
	} else {
		err = config.LoadDotEnv()
	}
	if err != nil {
		return config.System{}, err
	}

	path, _ := cmd.Flags().GetString("config")

	return config.Load(path)
}
