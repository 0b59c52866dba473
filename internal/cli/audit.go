package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"nightguard/internal/app"
	"nightguard/internal/guardian"
	logx "nightguard/pkg/logx"
)

var errNoStore = errors.New("storage is disabled in the config")

func NewAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent guardian events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, _ := cmd.Flags().GetInt("limit")
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := app.OpenStore(cfg, logx.Nop())
			if err != nil {
				return err
			}
			if st == nil {
				return errNoStore
			}
			defer st.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			rows, err := st.Recent(ctx, n)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "no events recorded")
				return nil
			}
			now := time.Now()
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tEVENT\tPHASE\tWHO\tDETAIL")
			for _, r := range rows {
				who := r.Speaker
				if who != "" && r.Source != "" {
					who += "@" + r.Source
				}
				detail := r.Command
				if r.Reason != "" {
					detail = r.Reason
				}
				if r.Error != "" {
					detail = color.New(color.FgRed).Sprint(r.Error)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					humanize.RelTime(r.At, now, "ago", "from now"),
					eventLabel(r.Event), r.Phase, who, detail)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "number of events to show")
	return cmd
}

func eventLabel(ev string) string {
	switch ev {
	case guardian.EventEmergencyArmed, guardian.EventShutdownBegin, guardian.EventShutdownDone:
		return color.New(color.FgRed).Sprint(ev)
	case guardian.EventWarning, guardian.EventDelayed:
		return color.New(color.FgYellow).Sprint(ev)
	case guardian.EventEmergencyCancelled:
		return color.New(color.FgGreen).Sprint(ev)
	default:
		return ev
	}
}
