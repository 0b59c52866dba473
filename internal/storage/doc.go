// Package storage persists the guardian's audit trail: one entry per
// guardian.* event (activation, accepted commands, warnings, shutdowns).
//
// Two drivers exist:
//   - file:   <prefix>.audit.jsonl, append-only JSON Lines
//   - sqlite: a single SQLite database (modernc.org/sqlite, no cgo)
//
// Schedule state is never persisted; the audit trail is write-mostly and
// only read back by "nightguard audit".
package storage
