package config

// Config is the on-disk configuration (JSON or YAML).
//
// Unknown keys are rejected so a typo in a night-critical setting (e.g.
// "shutdown_time" instead of "shutdown_at") fails at start-up instead of
// silently falling back to a default.
type Config struct {
	Guardian     GuardianConfig     `json:"guardian"`
	Output       OutputConfig       `json:"output"`
	ExitSequence ExitSequenceConfig `json:"exit_sequence"`
	Power        PowerConfig        `json:"power"`
	Telegram     TelegramConfig     `json:"telegram"`
	Logging      LoggingConfig      `json:"logging"`
	Storage      *StorageConfig     `json:"storage,omitempty"`
}

// GuardianConfig holds the schedule and command-channel settings.
//
// Defaults (when fields are omitted/zero):
//   - log_encoding: "utf-8"
//   - warning_minutes: 15
//   - save_timeout_seconds: 20
//   - shutdown_delay_seconds: 60
//   - activation_hotkey: "F8"
//   - tick: "1s"
//   - language: "en"
type GuardianConfig struct {
	LogPath     string `json:"log_path"`
	LogEncoding string `json:"log_encoding,omitempty"`

	// ShutdownAt is "HH:MM" (24h) or a 5-field cron expression.
	ShutdownAt string `json:"shutdown_at"`
	// Timezone is an IANA zone; empty means the host's local time.
	Timezone string `json:"timezone,omitempty"`

	WarningMinutes       int `json:"warning_minutes,omitempty"`
	SaveTimeoutSeconds   int `json:"save_timeout_seconds,omitempty"`
	ShutdownDelaySeconds int `json:"shutdown_delay_seconds,omitempty"`

	// AllowedSpeakers is a comma-separated list of name fragments.
	// Empty means every speaker may issue commands.
	AllowedSpeakers  string `json:"allowed_speakers"`
	ActivationHotkey string `json:"activation_hotkey,omitempty"`

	// Tick is a Go duration string (e.g. "1s").
	Tick     string `json:"tick,omitempty"`
	Language string `json:"language,omitempty"`
}

// OutputConfig selects how notifications reach the shared chat.
//
// Command arguments may contain {message} and {surface} placeholders.
// CaptureCommand runs once on activation; its trimmed stdout becomes the
// surface (e.g. a window id or tmux target).
type OutputConfig struct {
	Driver         string   `json:"driver,omitempty"` // log | command
	Command        []string `json:"command,omitempty"`
	CaptureCommand []string `json:"capture_command,omitempty"`
	// Timeout bounds a single delivery (Go duration string, default "5s").
	Timeout string `json:"timeout,omitempty"`
}

type ExitSequenceConfig struct {
	Steps []ExitStepConfig `json:"steps,omitempty"`
}

// ExitStepConfig runs Command (optional) and then waits Pause.
type ExitStepConfig struct {
	Command []string `json:"command,omitempty"`
	Pause   string   `json:"pause,omitempty"`
}

type PowerConfig struct {
	Driver string `json:"driver,omitempty"` // dry-run | command | logind
	// Command overrides the platform shutdown command; supports {seconds} and {reason}.
	Command []string `json:"command,omitempty"`
}

// TelegramConfig mirrors notifications to a chat and optionally accepts
// commands from it.
type TelegramConfig struct {
	Enabled        bool   `json:"enabled"`
	Token          string `json:"token,omitempty"`
	ChatID         int64  `json:"chat_id,omitempty"`
	ThreadID       int    `json:"thread_id,omitempty"`
	AcceptCommands bool   `json:"accept_commands,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	RetryMax    int    `json:"retry_max,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the audit trail.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./nightguard_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
