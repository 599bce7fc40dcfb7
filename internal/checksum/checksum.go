// Package checksum computes the integrity digest carried by every
// FILE_DATA fragment. The digest is CRC-32C (Castagnoli): 4 bytes of
// overhead per fragment, and bit-error detection is what the link-layer
// transport actually needs; corruption here is noise, not an adversary.
package checksum

import "hash/crc32"

// Size is the digest width in bytes as embedded in the FILE_DATA payload.
const Size = 4

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Sum returns the CRC-32C digest of data.
func Sum(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}

// Verify reports whether digest matches the CRC-32C of data.
func Verify(data []byte, digest uint32) bool {
	return Sum(data) == digest
}
