// Package render composes outgoing Telegram content: the per-event alert
// (HTML text plus an optional map artifact produced by an external command)
// and the /top10 and /today summaries.
//
// The map artifact is best-effort. A render failure is logged and the alert
// degrades to text-only; it never blocks delivery.
package render
