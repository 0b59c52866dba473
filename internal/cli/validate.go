package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"nightguard/internal/app"
	"nightguard/internal/guardian"
)

func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and print the computed schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fail := color.New(color.FgRed).Sprint("FAIL")

			cfg, err := loadConfig(cmd)
			if err == nil {
				err = app.Check(cfg)
			}
			if err != nil {
				fmt.Fprintf(out, "%s %s: %v\n", fail, configPath(cmd), err)
				return err
			}

			sc, _ := app.ScheduleConfig(cfg)
			next, err := guardian.NextShutdown(sc.ShutdownAt, time.Now(), sc.Location)
			if err != nil {
				fmt.Fprintf(out, "%s %v\n", fail, err)
				return err
			}
			lead := sc.WarningLead
			if lead <= 0 {
				lead = guardian.DefaultWarningLead
			}

			allowed := guardian.ParseAllowList(cfg.Guardian.AllowedSpeakers)
			who := strings.Join(allowed.Fragments(), ", ")
			if allowed.Open() {
				who = color.New(color.FgYellow).Sprint("everyone (open mode)")
			}

			fmt.Fprintf(out, "%s %s\n", color.New(color.FgGreen).Sprint("OK"), configPath(cmd))
			fmt.Fprintf(out, "  log:       %s\n", cfg.Guardian.LogPath)
			fmt.Fprintf(out, "  shutdown:  %s\n", next.Format("2006-01-02 15:04 MST"))
			fmt.Fprintf(out, "  warning:   %s\n", next.Add(-lead).Format("2006-01-02 15:04 MST"))
			fmt.Fprintf(out, "  allowed:   %s\n", who)
			fmt.Fprintf(out, "  output:    %s\n", orDefault(cfg.Output.Driver, "log"))
			fmt.Fprintf(out, "  power:     %s\n", powerLabel(cfg.Power.Driver))
			fmt.Fprintf(out, "  telegram:  %s\n", onOff(cfg.Telegram.Enabled))
			return nil
		},
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func powerLabel(driver string) string {
	d := orDefault(driver, "dry-run")
	if d == "dry-run" || d == "dryrun" {
		return color.New(color.FgYellow).Sprint(d)
	}
	return color.New(color.FgRed).Sprint(d)
}

func onOff(b bool) string {
	if b {
		return color.New(color.FgGreen).Sprint("on")
	}
	return "off"
}
