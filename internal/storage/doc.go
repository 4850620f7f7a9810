// Package storage persists the two documents the pipeline depends on across
// restarts: the append-only event log (dedup identity -> event) and the
// subscriber registry (chat id -> threshold, delivery target, notified set).
//
// Two drivers share one contract:
//   - "file": two JSON snapshots plus a JSONL journal; mutations land in the
//     journal immediately, Flush rewrites the snapshots atomically
//     (temp file + rename) and truncates the journal
//   - "sqlite": embedded SQLite (WAL); every mutation is durable on commit and
//     Flush degenerates to a passive WAL checkpoint
//
// A missing snapshot on first run is not an error: the store initializes empty
// and persists immediately. A corrupt snapshot is a fatal open error.
package storage
