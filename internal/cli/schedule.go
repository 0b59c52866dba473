package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"nightguard/internal/app"
	"nightguard/internal/guardian"
)

func NewScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print the upcoming shutdowns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, _ := cmd.Flags().GetInt("count")
			if n <= 0 {
				n = 1
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			sc, err := app.ScheduleConfig(cfg)
			if err != nil {
				return err
			}
			lead := sc.WarningLead
			if lead <= 0 {
				lead = guardian.DefaultWarningLead
			}

			out := cmd.OutOrStdout()
			now := time.Now()
			at := now
			for i := 0; i < n; i++ {
				next, err := guardian.NextShutdown(sc.ShutdownAt, at, sc.Location)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s  (%s, warning at %s)\n",
					next.Format("Mon 2006-01-02 15:04 MST"),
					humanize.RelTime(next, now, "ago", "from now"),
					next.Add(-lead).Format("15:04"),
				)
				at = next
			}
			return nil
		},
	}
	cmd.Flags().IntP("count", "n", 3, "number of occurrences to print")
	return cmd
}
