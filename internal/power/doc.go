// Package power implements the guardian's terminal collaborators: the exit
// sequence that brings the monitored application to a saved state, and the
// drivers that ask the OS to power off.
package power
