// Package notifier mirrors guardian notices to a chat platform
// asynchronously.
//
// Notify never blocks the monitoring tick: messages go into a bounded queue
// and a small worker pool delivers them through a transport.Adapter with a
// token-bucket rate limit and jittered exponential retry. Outbound dedup is
// the guardian's job (10s window) and is not repeated here.
package notifier
