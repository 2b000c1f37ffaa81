package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/defectscan/defectscan-go/cmd/analyze"
	"github.com/defectscan/defectscan-go/cmd/projects"
	"github.com/defectscan/defectscan-go/cmd/report"
	"github.com/defectscan/defectscan-go/cmd/serve"
	"github.com/defectscan/defectscan-go/internal/conf"
	"github.com/defectscan/defectscan-go/internal/logging"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "defectscan",
		Short: "DefectScan CLI",
		Long:  "Analyze house photos for defects, manage inspection projects, and generate PDF reports.",
	}

	// Set up the global flags for the root command.
	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		analyze.Command(settings),
		projects.Command(settings),
		report.Command(settings),
		serve.Command(settings),
		statusCommand(settings),
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Parse the command line flags
		if err := cmd.Flags().Parse(args); err != nil {
			return err
		}

		if settings.Debug {
			settings.Main.LogLevel = "debug"
		}
		logging.Init(conf.ParseLogLevel(settings.Main.LogLevel))
		return nil
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Gateway.APIURL, "api", viper.GetString("gateway.apiurl"), "Base URL of the backend API")
	rootCmd.PersistentFlags().StringVar(&settings.Gateway.Inference.Provider, "provider", viper.GetString("gateway.inference.provider"), "Inference provider: remote or mock")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
