package app

import (
	"fmt"
	"strings"
	"time"

	"nightguard/internal/config"
	"nightguard/internal/guardian"
	"nightguard/internal/notifier"
	"nightguard/internal/power"
	"nightguard/internal/storage"
	logx "nightguard/pkg/logx"
)

const defaultStorePath = "./nightguard_store"

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// ScheduleConfig maps the guardian section onto the scheduler's settings
// and checks the shutdown expression. Errors are start-up errors.
func ScheduleConfig(cfg *config.Config) (guardian.SchedulerConfig, error) {
	g := cfg.Guardian
	if _, err := guardian.ParseShutdownAt(g.ShutdownAt); err != nil {
		return guardian.SchedulerConfig{}, fmt.Errorf("guardian.shutdown_at: %w", err)
	}
	loc := time.Local
	if tz := strings.TrimSpace(g.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return guardian.SchedulerConfig{}, fmt.Errorf("guardian.timezone: invalid %q: %w", tz, err)
		}
		loc = l
	}
	cat, err := guardian.CatalogFor(strings.ToLower(strings.TrimSpace(g.Language)))
	if err != nil {
		return guardian.SchedulerConfig{}, fmt.Errorf("guardian.language: %w", err)
	}
	return guardian.SchedulerConfig{
		ShutdownAt:    g.ShutdownAt,
		Location:      loc,
		WarningLead:   time.Duration(g.WarningMinutes) * time.Minute,
		SaveTimeout:   time.Duration(g.SaveTimeoutSeconds) * time.Second,
		ShutdownDelay: time.Duration(g.ShutdownDelaySeconds) * time.Second,
		Messages:      cat,
	}, nil
}

func mapTick(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("guardian.tick", cfg.Guardian.Tick, guardian.DefaultTick)
}

func mapExitSteps(cfg *config.Config) ([]power.Step, error) {
	steps := make([]power.Step, 0, len(cfg.ExitSequence.Steps))
	for i, st := range cfg.ExitSequence.Steps {
		pause, err := config.ParseDurationField(fmt.Sprintf("exit_sequence.steps[%d].pause", i), st.Pause)
		if err != nil {
			return nil, err
		}
		steps = append(steps, power.Step{Argv: st.Command, Pause: pause})
	}
	return steps, nil
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	tg := cfg.Telegram
	rps := tg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	retry := tg.RetryMax
	if retry <= 0 {
		retry = 3
	}
	return notifier.Config{
		Enabled:       tg.Enabled,
		Workers:       1,
		QueueSize:     64,
		RatePerSec:    rps,
		RetryMax:      retry,
		RetryBase:     500 * time.Millisecond,
		RetryMaxDelay: 5 * time.Second,
		SendTimeout:   8 * time.Second,
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		if path == "" {
			path = defaultStorePath
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// OpenStore opens the configured audit store; nil when disabled.
func OpenStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil || !enabled {
		return nil, err
	}
	return storage.Open(sc, log)
}
