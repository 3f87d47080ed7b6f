// Package hash holds the one checksum boxdb persists: CRC32-Castagnoli.
//
// Commit frames carry it over their LSN, length and operations, backup
// manifests carry one per entity stream, and S3 uploads send it as the
// object checksum. hash/crc32 uses the CPU's CRC instructions when present.
package hash
