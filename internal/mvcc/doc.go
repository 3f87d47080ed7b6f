// Package mvcc provides the in-memory multi-version key index of the log
// backend.
//
// The index maps keys to version chains:
//
//   - Wait-free reads via atomic.Pointer
//   - Writes serialized by a mutex, one Apply per commit LSN
//   - Snapshot reads at any LSN not yet pruned
//   - Ordered range scans for prefix iteration
//
// # Implementation
//
// Keys live in an immutable sorted table of a base slice plus a small delta
// slice. New keys are merged into the delta by copy-on-write; once the delta
// grows past a limit it is folded into a new base. Readers keep whatever table
// they loaded, so a scan never observes a half-applied commit.
package mvcc
