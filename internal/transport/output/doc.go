// Package output implements guardian.OutputChannel drivers: the log
// driver for dry runs, the command driver that injects text through an
// external tool, and a Telegram mirror. Fanout combines them.
package output
