// Package resource governs the shared resources of an open store.
//
//   - Writer: a weighted semaphore of size one. Holding it is what makes a
//     transaction the single writer.
//   - Background workers: bounds concurrent backup and restore workers.
//   - IO: a token bucket limiting background bytes per second.
//
// All methods handle a nil Controller as unlimited.
package resource
