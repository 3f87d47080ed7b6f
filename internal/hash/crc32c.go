package hash

import (
	"hash"
	"hash/crc32"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// CRC32C returns the Castagnoli checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}

// UpdateCRC32C continues crc over data, so a frame header and its body can
// be checksummed without joining them.
func UpdateCRC32C(crc uint32, data []byte) uint32 {
	return crc32.Update(crc, castagnoli, data)
}

// NewCRC32C returns a streaming Castagnoli hash. Backups use it to checksum
// entity streams while they are written.
func NewCRC32C() hash.Hash32 {
	return crc32.New(castagnoli)
}
