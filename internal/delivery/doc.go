// Package delivery sends rendered notifications through the transport adapter.
//
// Send is synchronous: the caller needs the outcome to decide whether the
// subscriber/event pair is done or must stay eligible for the next cycle.
// Inside a send the service still rate-limits (shared token bucket across all
// subscribers) and retries with exponential backoff and jitter. A photo send
// that keeps failing degrades to a final text-only attempt so a bad artifact
// cannot starve the alert itself.
package delivery
