// Package binformat is the binary on-disk layout for one partition
// snapshot: a fixed 76-byte header plus CLV, tip-character, scaler, and
// probability-matrix payloads, each written as its own LZ4 frame. Slots
// are read back in the order they were written; there is no slot index
// for seeking to a single slot.
package binformat

import "errors"

const (
	// MagicNumber identifies partition binary files (ASCII: "PLC0").
	MagicNumber = 0x504c4330
	// Version is the current file format version (v1.0.0).
	Version = 0x00010000
)

var (
	ErrInvalidMagic   = errors.New("binformat: invalid magic number")
	ErrInvalidVersion = errors.New("binformat: unsupported version")
)

// FileHeader is the 76-byte encoded header at the start of every partition
// payload file, giving a reader everything it needs to size its CLV,
// tipchar, scaler, and pmatrix buffer pools before touching slot data.
type FileHeader struct {
	Magic        uint32
	Version      uint32
	States       uint8   // 4 for DNA, 20 for amino acid
	RateCats     uint8   // discrete gamma rate categories
	Padding1     [2]byte
	Sites        uint64 // per-sequence site count (patterns, if compressed)
	NumCLVs      uint64
	NumTipChars  uint64
	NumScalers   uint64
	NumPMatrices uint64
	Checksum     uint32 // CRC32 of the payload section
	Padding2     [4]byte
	Reserved     [16]byte
}
