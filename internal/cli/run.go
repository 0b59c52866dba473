package cli

import (
	"github.com/spf13/cobra"

	"nightguard/internal/app"
)

func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Wait for the activation key, then guard the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			noWait, _ := cmd.Flags().GetBool("no-wait")
			a, err := app.New(app.Options{ConfigPath: configPath(cmd), NoWait: noWait})
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
	cmd.Flags().Bool("no-wait", false, "activate immediately instead of waiting for the hotkey")
	return cmd
}
