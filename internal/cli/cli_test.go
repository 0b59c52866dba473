package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nightguard/internal/storage"
	logx "nightguard/pkg/logx"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "nightguard.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

const validConfig = `
guardian:
  log_path: /srv/mc/logs/latest.log
  shutdown_at: "02:15"
  timezone: UTC
  warning_minutes: 10
  allowed_speakers: "SiPeRNiK, Allotron"
logging: {level: info, console: false}
`

func TestValidateOK(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "validate", "--config", writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	for _, want := range []string{"OK", "02:15 UTC", "02:05 UTC", "sipernik, allotron", "dry-run"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidateFails(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad time", strings.Replace(validConfig, `"02:15"`, `"24:00"`, 1), "guardian.shutdown_at"},
		{"unknown key", validConfig + "shutdown_time: \"02:15\"\n", "unknown field"},
		{"bad hotkey", strings.Replace(validConfig, "timezone: UTC", "timezone: UTC\n  activation_hotkey: hyper", 1), "guardian.activation_hotkey"},
		{"bad encoding", strings.Replace(validConfig, "timezone: UTC", "timezone: UTC\n  log_encoding: klingon", 1), "guardian.log_encoding"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out, err := execute(t, "validate", "--config", writeConfig(t, tt.body))
			if err == nil {
				t.Fatalf("expected error, output:\n%s", out)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
			if !strings.Contains(out, "FAIL") {
				t.Fatalf("output missing FAIL:\n%s", out)
			}
		})
	}
}

func TestSchedulePrintsOccurrences(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "schedule", "-n", "2", "--config", writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2:\n%s", len(lines), out)
	}
	for _, l := range lines {
		if !strings.Contains(l, "02:15 UTC") || !strings.Contains(l, "warning at 02:05") || !strings.Contains(l, "from now") {
			t.Fatalf("unexpected line %q", l)
		}
	}
}

func TestAuditLists(t *testing.T) {
	t.Parallel()

	storePath := filepath.Join(t.TempDir(), "store")
	st, err := storage.Open(storage.Config{Driver: "file", Path: storePath}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	at := time.Now().Add(-time.Hour)
	_ = st.AppendAudit(context.Background(), storage.AuditEntry{At: at, SessionID: "s", Event: "guardian.command", Phase: "scheduled", Speaker: "Allotron", Source: "log", Command: "delay"})
	_ = st.AppendAudit(context.Background(), storage.AuditEntry{At: at, SessionID: "s", Event: "guardian.delayed", Phase: "scheduled"})
	_ = st.Close()

	cfgPath := writeConfig(t, validConfig+"storage: {driver: file, path: "+storePath+"}\n")
	out, err := execute(t, "audit", "--config", cfgPath)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	for _, want := range []string{"guardian.command", "Allotron@log", "delay", "guardian.delayed", "1 hour ago"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAuditWithoutStore(t *testing.T) {
	t.Parallel()

	if _, err := execute(t, "audit", "--config", writeConfig(t, validConfig)); err != errNoStore {
		t.Fatalf("err = %v, want errNoStore", err)
	}
}
