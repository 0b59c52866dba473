package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks field-level constraints. Cross-component checks (the
// shutdown time expression, encodings, drivers) happen when the app maps
// the config onto its components.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	g := cfg.Guardian
	if strings.TrimSpace(g.LogPath) == "" {
		return fmt.Errorf("guardian.log_path is required")
	}
	if strings.TrimSpace(g.ShutdownAt) == "" {
		return fmt.Errorf("guardian.shutdown_at is required")
	}
	if g.WarningMinutes < 0 {
		return fmt.Errorf("guardian.warning_minutes must be >= 0")
	}
	if g.SaveTimeoutSeconds < 0 {
		return fmt.Errorf("guardian.save_timeout_seconds must be >= 0")
	}
	if g.ShutdownDelaySeconds < 0 {
		return fmt.Errorf("guardian.shutdown_delay_seconds must be >= 0")
	}
	if tz := strings.TrimSpace(g.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("guardian.timezone: invalid %q: %w", tz, err)
		}
	}
	if _, err := ParseDurationField("guardian.tick", g.Tick); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(g.Language)) {
	case "", "en", "ru":
	default:
		return fmt.Errorf("guardian.language: unsupported %q (use en or ru)", g.Language)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Output.Driver)) {
	case "", "log":
	case "command":
		if len(cfg.Output.Command) == 0 {
			return fmt.Errorf("output.command is required when output.driver=command")
		}
	default:
		return fmt.Errorf("output.driver: unknown %q", cfg.Output.Driver)
	}
	if _, err := ParseDurationField("output.timeout", cfg.Output.Timeout); err != nil {
		return err
	}

	for i, st := range cfg.ExitSequence.Steps {
		path := fmt.Sprintf("exit_sequence.steps[%d]", i)
		if len(st.Command) == 0 && strings.TrimSpace(st.Pause) == "" {
			return fmt.Errorf("%s: command or pause is required", path)
		}
		if _, err := ParseDurationField(path+".pause", st.Pause); err != nil {
			return err
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Power.Driver)) {
	case "", "dry-run", "dryrun", "command", "logind":
	default:
		return fmt.Errorf("power.driver: unknown %q", cfg.Power.Driver)
	}

	if cfg.Telegram.Enabled {
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			return fmt.Errorf("telegram.token is required when telegram.enabled=true (or set %s)", EnvTelegramToken)
		}
		if cfg.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required when telegram.enabled=true")
		}
	}
	if cfg.Telegram.RatePerSec < 0 {
		return fmt.Errorf("telegram.rate_per_sec must be >= 0")
	}
	if cfg.Telegram.RetryMax < 0 {
		return fmt.Errorf("telegram.retry_max must be >= 0")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}

	if sc := cfg.Storage; sc != nil {
		switch strings.ToLower(strings.TrimSpace(sc.Driver)) {
		case "", "none", "file":
		case "sqlite", "sqlite3":
			if strings.TrimSpace(sc.Path) == "" {
				return fmt.Errorf("storage.path is required when storage.driver=sqlite")
			}
		default:
			return fmt.Errorf("unknown storage.driver: %s", sc.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", sc.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}
