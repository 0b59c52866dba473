package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "nightguard/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	at               TEXT NOT NULL,
	session_id       TEXT NOT NULL,
	event            TEXT NOT NULL,
	phase            TEXT,
	speaker          TEXT,
	source           TEXT,
	command          TEXT,
	reason           TEXT,
	text             TEXT,
	err              TEXT,
	next_shutdown_at TEXT
);
CREATE INDEX IF NOT EXISTS audit_session ON audit(session_id);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("audit store opened", logx.String("driver", "sqlite"), logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, session_id, event, phase, speaker, source, command, reason, text, err, next_shutdown_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.SessionID, e.Event, nullStr(e.Phase), nullStr(e.Speaker),
		nullStr(e.Source), nullStr(e.Command), nullStr(e.Reason), nullStr(e.Text), nullStr(e.Error),
		nullTime(e.NextShutdownAt),
	)
	return err
}

func (s *sqliteStore) Recent(ctx context.Context, n int) ([]AuditEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, session_id, event, phase, speaker, source, command, reason, text, err, next_shutdown_at
		 FROM audit ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var at string
		var phase, speaker, source, command, reason, text, errS, next sql.NullString
		if err := rows.Scan(&at, &e.SessionID, &e.Event, &phase, &speaker, &source, &command, &reason, &text, &errS, &next); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		e.Phase, e.Speaker, e.Source = phase.String, speaker.String, source.String
		e.Command, e.Reason, e.Text, e.Error = command.String, reason.String, text.String, errS.String
		if next.Valid {
			e.NextShutdownAt, _ = time.Parse(time.RFC3339Nano, next.String)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// newest first from the query; callers want chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}
