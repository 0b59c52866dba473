package config

import (
	"reflect"
	"strings"

	logx "nightguard/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// structured fields for logging (never the bot token).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	fields := make([]logx.Field, 0, 12)

	if !reflect.DeepEqual(oldCfg.Guardian, newCfg.Guardian) {
		changed = append(changed, "guardian")
		fields = append(fields,
			logx.String("guardian.shutdown_at", newCfg.Guardian.ShutdownAt),
			logx.Int("guardian.warning_minutes", newCfg.Guardian.WarningMinutes),
		)
	}
	if !reflect.DeepEqual(oldCfg.Output, newCfg.Output) {
		changed = append(changed, "output")
		fields = append(fields, logx.String("output.driver", newCfg.Output.Driver))
	}
	if !reflect.DeepEqual(oldCfg.ExitSequence, newCfg.ExitSequence) {
		changed = append(changed, "exit_sequence")
		fields = append(fields, logx.Int("exit_sequence.steps", len(newCfg.ExitSequence.Steps)))
	}
	if !reflect.DeepEqual(oldCfg.Power, newCfg.Power) {
		changed = append(changed, "power")
		fields = append(fields, logx.String("power.driver", newCfg.Power.Driver))
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	tokenChanged := strings.TrimSpace(ot.Token) != strings.TrimSpace(nt.Token)
	ot.Token, nt.Token = "", ""
	if tokenChanged || !reflect.DeepEqual(ot, nt) {
		changed = append(changed, "telegram")
		fields = append(fields,
			logx.Bool("telegram.enabled", nt.Enabled),
			logx.Bool("telegram.token_changed", tokenChanged),
			logx.Bool("telegram.accept_commands", nt.AcceptCommands),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
	}
	return changed, fields
}

// RestartRequired filters sections that cannot be applied to a running
// session. Only logging is live.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		if s != "logging" {
			out = append(out, s)
		}
	}
	return out
}
