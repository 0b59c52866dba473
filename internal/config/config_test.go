package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
guardian:
  log_path: /srv/mc/logs/latest.log
  shutdown_at: "02:15"
  warning_minutes: 15
  save_timeout_seconds: 20
  allowed_speakers: "SiPeRNiK, nikita, SpiderDog, Allotron"
  activation_hotkey: F8
output:
  driver: command
  command: ["tmux", "send-keys", "-t", "{surface}", "say {message}", "Enter"]
exit_sequence:
  steps:
    - command: ["tmux", "send-keys", "-t", "{surface}", "stop", "Enter"]
      pause: 1500ms
power:
  driver: dry-run
logging:
  level: debug
  console: true
storage:
  driver: file
  path: ./store/nightguard
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeFile(t, "nightguard.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Guardian.ShutdownAt != "02:15" {
		t.Fatalf("ShutdownAt = %q", cfg.Guardian.ShutdownAt)
	}
	if got := len(cfg.Output.Command); got != 6 {
		t.Fatalf("output.command len = %d, want 6", got)
	}
	if cfg.ExitSequence.Steps[0].Pause != "1500ms" {
		t.Fatalf("pause = %q", cfg.ExitSequence.Steps[0].Pause)
	}
	if m.Get() != cfg {
		t.Fatal("Load should commit the parsed config")
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	_, err := Decode("c.json", []byte(`{"guardian":{"log_path":"x","shutdown_time":"02:15"}}`))
	if err == nil || !strings.Contains(err.Error(), "shutdown_time") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	t.Parallel()
	_, err := Decode("c.json", []byte(`{"guardian":{}} {"guardian":{}}`))
	if err == nil {
		t.Fatal("expected trailing data error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		return &Config{Guardian: GuardianConfig{LogPath: "latest.log", ShutdownAt: "02:15"}}
	}
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "missing log path", mutate: func(c *Config) { c.Guardian.LogPath = " " }, wantErr: "guardian.log_path"},
		{name: "missing shutdown", mutate: func(c *Config) { c.Guardian.ShutdownAt = "" }, wantErr: "guardian.shutdown_at"},
		{name: "negative warning", mutate: func(c *Config) { c.Guardian.WarningMinutes = -1 }, wantErr: "guardian.warning_minutes"},
		{name: "bad tz", mutate: func(c *Config) { c.Guardian.Timezone = "Mars/Olympus" }, wantErr: "guardian.timezone"},
		{name: "bad tick", mutate: func(c *Config) { c.Guardian.Tick = "soon" }, wantErr: "guardian.tick"},
		{name: "bad language", mutate: func(c *Config) { c.Guardian.Language = "de" }, wantErr: "guardian.language"},
		{name: "command without argv", mutate: func(c *Config) { c.Output.Driver = "command" }, wantErr: "output.command"},
		{name: "empty exit step", mutate: func(c *Config) { c.ExitSequence.Steps = []ExitStepConfig{{}} }, wantErr: "exit_sequence.steps[0]"},
		{name: "bad power", mutate: func(c *Config) { c.Power.Driver = "reboot" }, wantErr: "power.driver"},
		{name: "telegram without token", mutate: func(c *Config) { c.Telegram.Enabled = true; c.Telegram.ChatID = 1 }, wantErr: "telegram.token"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Storage = &StorageConfig{Driver: "sqlite"} }, wantErr: "storage.path"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base()
			tt.mutate(c)
			err := Validate(c)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvTelegramToken, "123:abc")
	t.Setenv(EnvTelegramChatID, "-10042")
	t.Setenv(EnvLogPath, "/tmp/latest.log")

	cfg := &Config{Guardian: GuardianConfig{LogPath: "from-file.log"}}
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Telegram.ChatID != -10042 {
		t.Fatalf("telegram overrides not applied: %+v", cfg.Telegram)
	}
	if cfg.Guardian.LogPath != "/tmp/latest.log" {
		t.Fatalf("LogPath = %q", cfg.Guardian.LogPath)
	}
}

func TestApplyEnvBadChatID(t *testing.T) {
	t.Setenv(EnvTelegramChatID, "general")
	if err := ApplyEnv(&Config{}); err == nil {
		t.Fatal("expected error for non-numeric chat id")
	}
}

func TestLoadDotEnvMissingIsFine(t *testing.T) {
	t.Parallel()
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("guardian.tick", "", time.Second)
	if err != nil || d != time.Second {
		t.Fatalf("default: got %v, %v", d, err)
	}
	d, err = ParseDurationOrDefault("guardian.tick", "250ms", time.Second)
	if err != nil || d != 250*time.Millisecond {
		t.Fatalf("explicit: got %v, %v", d, err)
	}
	if _, err := ParseDurationField("guardian.tick", "-1s"); err == nil {
		t.Fatal("expected negative duration to be rejected")
	}
}
