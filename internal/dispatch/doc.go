// Package dispatch runs the per-tick notification cycle: fetch the feed
// window, normalize and record events, then fan out to every subscriber whose
// threshold the event clears and that has not been notified for it yet.
//
// A pair (subscriber, event) reaches the terminal notified state only after
// the sender accepted the message, so failed deliveries retry on later ticks
// for as long as the event stays in the feed window. Re-walking the full
// window every cycle also means a relaxed threshold picks up events from
// earlier ticks retroactively.
package dispatch
