package app

import (
	"fmt"

	"nightguard/internal/activation"
	"nightguard/internal/config"
	"nightguard/internal/guardian"
	"nightguard/internal/power"
	"nightguard/internal/transport/output"
	logx "nightguard/pkg/logx"
)

// Check runs every config mapping New performs, without opening stores,
// files or connections.
func Check(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := ScheduleConfig(cfg); err != nil {
		return err
	}
	if _, err := mapTick(cfg); err != nil {
		return err
	}
	if _, err := mapExitSteps(cfg); err != nil {
		return err
	}
	if _, err := config.ParseDurationOrDefault("output.timeout", cfg.Output.Timeout, output.DefaultCommandTimeout); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := guardian.NewTailer(cfg.Guardian.LogPath, cfg.Guardian.LogEncoding, logx.Nop()); err != nil {
		return fmt.Errorf("guardian.log_encoding: %w", err)
	}
	if _, err := power.New(power.Options{Driver: cfg.Power.Driver}); err != nil {
		return fmt.Errorf("power.driver: %w", err)
	}
	hotkey := cfg.Guardian.ActivationHotkey
	if hotkey == "" {
		hotkey = activation.DefaultHotkey
	}
	if _, err := activation.KeySequences(hotkey); err != nil {
		return fmt.Errorf("guardian.activation_hotkey: %w", err)
	}
	return nil
}
