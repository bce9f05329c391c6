// root.go viper root command code
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/qrmstation/qrmlogger/internal/app"
)

// RootCommand builds the qrmlogger CLI: a long-running process by
// default, or a single capture-and-exit when --run-once is set.
func RootCommand() *cobra.Command {
	var (
		configPath        string
		dynamicConfigPath string
		runOnce           bool
	)

	rootCmd := &cobra.Command{
		Use:   "qrmlogger",
		Short: "Spectrum-monitoring QRM logging station",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(configPath, dynamicConfigPath)
			if err != nil {
				return fmt.Errorf("starting station: %w", err)
			}
			defer a.Close()

			if runOnce {
				if err := a.ExecuteCaptureDefault(cmd.Context()); err != nil {
					return fmt.Errorf("capture failed: %w", err)
				}
				return nil
			}

			if err := a.StartScheduler(); err != nil {
				return fmt.Errorf("starting scheduler: %w", err)
			}
			<-cmd.Context().Done()
			return nil
		},
	}

	defaultConfigPath := "config.toml"
	if v := viper.GetString("config"); v != "" {
		defaultConfigPath = v
	}
	defaultDynamicConfigPath := "config-dynamic.json"
	if v := viper.GetString("dynamic-config"); v != "" {
		defaultDynamicConfigPath = v
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "Path to the main TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&dynamicConfigPath, "dynamic-config", defaultDynamicConfigPath, "Path to the per-batch dynamic JSON config overlay")
	rootCmd.Flags().BoolVar(&runOnce, "run-once", false, "Execute one capture batch with default parameters, then exit")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		rootCmd.PrintErrln(fmt.Errorf("error binding flags: %w", err))
	}

	return rootCmd
}

// Execute runs the root command against ctx, returning a non-zero-worthy
// error for the caller to translate into a process exit code.
func Execute(ctx context.Context) error {
	return RootCommand().ExecuteContext(ctx)
}
