package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment overrides. Secrets (the bot token) are better kept out of the
// config file; a .env next to the binary is loaded first.
const (
	EnvTelegramToken  = "NIGHTGUARD_TELEGRAM_TOKEN"
	EnvTelegramChatID = "NIGHTGUARD_TELEGRAM_CHAT_ID"
	EnvLogPath        = "NIGHTGUARD_LOG_PATH"
	EnvShutdownAt     = "NIGHTGUARD_SHUTDOWN_AT"
)

// LoadDotEnv loads the given .env files (default: ./.env). Missing files are
// not an error; existing process variables are never overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// ApplyEnv overlays NIGHTGUARD_* variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelegramToken)); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelegramChatID)); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errors.New(EnvTelegramChatID + ": invalid chat id " + strconv.Quote(v))
		}
		cfg.Telegram.ChatID = id
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogPath)); v != "" {
		cfg.Guardian.LogPath = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvShutdownAt)); v != "" {
		cfg.Guardian.ShutdownAt = v
	}
	return nil
}
