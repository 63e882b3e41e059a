package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/shuttercut/shuttercut-agent/internal/config"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var envFileFlag string

	ctx := &commandContext{configFlag: &configFlag, envFileFlag: &envFileFlag}

	rootCmd := &cobra.Command{
		Use:           "shuttercut",
		Short:         "Local overlay editor agent and render client",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", "", "Dotenv file to read (default .env)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newRenderCommand(ctx))
	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newProbeCommand(ctx))

	return rootCmd
}

type commandContext struct {
	configFlag  *string
	envFileFlag *string

	configOnce sync.Once
	config     *config.EnvConfig
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.EnvConfig, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.Load(config.Options{
			ConfigFile: strings.TrimSpace(*c.configFlag),
			EnvFile:    strings.TrimSpace(*c.envFileFlag),
		})
	})
	return c.config, c.configErr
}
