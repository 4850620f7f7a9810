// Package ops serves the operator HTTP surface: /healthz for liveness,
// /status for a JSON snapshot of the poller, last cycle, storage and recent
// deliveries, and /metrics in Prometheus text format.
//
// The server is optional and defaults to a loopback bind. Binding to a
// non-loopback address requires a token or an explicit allow_insecure.
package ops
