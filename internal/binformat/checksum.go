package binformat

import (
	"fmt"
	"hash"
	"hash/crc32"
	"io"
)

// CRC32Table is the IEEE polynomial table used for payload checksums.
var CRC32Table = crc32.MakeTable(crc32.IEEE)

// crc32cTable is the Castagnoli polynomial table, used only where a
// consumer requires CRC32C specifically (S3's ChecksumCRC32C field) rather
// than this package's own IEEE-based on-disk checksum.
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32C returns the CRC32-Castagnoli checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

// ChecksumWriter wraps an io.Writer and computes a running CRC32 checksum
// of everything written through it, so a partition payload's checksum can
// be computed in the same pass that writes it.
type ChecksumWriter struct {
	w    io.Writer
	hash hash.Hash32
}

// NewChecksumWriter wraps w.
func NewChecksumWriter(w io.Writer) *ChecksumWriter {
	return &ChecksumWriter{w: w, hash: crc32.New(CRC32Table)}
}

func (cw *ChecksumWriter) Write(p []byte) (int, error) {
	if _, err := cw.hash.Write(p); err != nil {
		return 0, err
	}
	return cw.w.Write(p)
}

// Sum returns the checksum of everything written so far.
func (cw *ChecksumWriter) Sum() uint32 { return cw.hash.Sum32() }

// ChecksumMismatchError is returned when a loaded payload's checksum
// disagrees with the one recorded in its header, indicating on-disk
// corruption.
type ChecksumMismatchError struct {
	Expected uint32
	Actual   uint32
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("binformat: checksum mismatch: expected 0x%08x, got 0x%08x", e.Expected, e.Actual)
}

// VerifyChecksum computes data's CRC32 and compares it against expected.
func VerifyChecksum(data []byte, expected uint32) error {
	actual := crc32.ChecksumIEEE(data)
	if actual != expected {
		return &ChecksumMismatchError{Expected: expected, Actual: actual}
	}
	return nil
}
