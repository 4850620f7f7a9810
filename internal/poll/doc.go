// Package poll owns the cycle cadence: a cron-driven tick that runs the
// dispatch engine with single-flight semantics. A tick that lands while the
// previous cycle is still running is skipped and counted, never queued, so a
// slow feed cannot pile up concurrent cycles.
package poll
