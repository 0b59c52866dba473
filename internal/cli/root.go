// Package cli defines the nightguard command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"nightguard/internal/config"
)

const AppName = "nightguard"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "Unattended session guardian",
		Long:          "nightguard watches a chat log, obeys exit/delay/cancel commands from allowed players and shuts the machine down on schedule.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			if envFile == "" {
				return config.LoadDotEnv()
			}
			return config.LoadDotEnv(envFile)
		},
	}
	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().StringP("config", "c", "./nightguard.yaml", "path to config (yaml or json)")
	cmd.PersistentFlags().String("env-file", "", "dotenv file to load (default ./.env)")

	run := NewRunCmd()
	// Bare "nightguard" behaves like "nightguard run".
	cmd.RunE = run.RunE
	cmd.Flags().AddFlagSet(run.Flags())

	cmd.AddCommand(
		run,
		NewValidateCmd(),
		NewScheduleCmd(),
		NewAuditCmd(),
	)
	return cmd
}

func configPath(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("config")
	return p
}

// loadConfig parses and validates without starting anything.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.NewConfigManager(configPath(cmd)).Load()
}
