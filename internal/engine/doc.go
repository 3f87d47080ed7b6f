// Package engine implements the record store on top of a kv.Store.
//
// The engine owns:
//   - identifier sequences (one per entity, never lowered in memory)
//   - record encoding and compression
//   - unique constraints and secondary index entries
//   - the per-entity live record counter
//   - persistence and verification of each entity's property table
//
// Every write goes through a kv.Batch supplied by the caller, so a failed
// operation is undone by discarding that batch.
package engine
