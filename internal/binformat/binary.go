package binformat

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"
)

// Writer writes partition payloads in the binformat layout: a raw header
// followed by one LZ4 frame per slot, so a slot can be read back without
// decompressing its neighbors.
type Writer struct {
	w         io.Writer
	byteOrder binary.ByteOrder
}

// NewWriter wraps w as a binformat writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, byteOrder: binary.LittleEndian}
}

// WriteHeader writes the file header, stamping the current magic/version.
func (bw *Writer) WriteHeader(h *FileHeader) error {
	h.Magic = MagicNumber
	h.Version = Version
	return binary.Write(bw.w, bw.byteOrder, h)
}

// WriteSlot writes one slot's raw bytes as an LZ4 frame prefixed by its
// uncompressed length, so a reader can size its destination buffer before
// decompressing.
func (bw *Writer) WriteSlot(raw []byte) error {
	if err := binary.Write(bw.w, bw.byteOrder, uint64(len(raw))); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	zw := lz4.NewWriter(bw.w)
	if _, err := zw.Write(raw); err != nil {
		return err
	}
	return zw.Close()
}

// WriteFloat64Slice LZ4-frames a []float64 slot (a CLV or probability
// matrix buffer).
func (bw *Writer) WriteFloat64Slice(vec []float64) error {
	raw, err := Float64SliceBytes(vec)
	if err != nil {
		return err
	}
	return bw.WriteSlot(raw)
}

// WriteUint32Slice LZ4-frames a []uint32 slot (a scaler-exponent buffer).
func (bw *Writer) WriteUint32Slice(vec []uint32) error {
	raw, err := Uint32SliceBytes(vec)
	if err != nil {
		return err
	}
	return bw.WriteSlot(raw)
}

// Reader reads partition payloads written by Writer.
type Reader struct {
	r         io.Reader
	byteOrder binary.ByteOrder
}

// NewReader wraps r as a binformat reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, byteOrder: binary.LittleEndian}
}

// ReadHeader reads and validates the file header.
func (br *Reader) ReadHeader() (*FileHeader, error) {
	var h FileHeader
	if err := binary.Read(br.r, br.byteOrder, &h); err != nil {
		return nil, err
	}
	if h.Magic != MagicNumber {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, h.Magic)
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidVersion, h.Version)
	}
	return &h, nil
}

// ReadSlot reads one LZ4-framed slot back into raw bytes.
func (br *Reader) ReadSlot() ([]byte, error) {
	var n uint64
	if err := binary.Read(br.r, br.byteOrder, &n); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	raw := make([]byte, n)
	zr := lz4.NewReader(br.r)
	if _, err := io.ReadFull(zr, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ReadFloat64Slice reads back a slot written by WriteFloat64Slice.
func (br *Reader) ReadFloat64Slice() ([]float64, error) {
	raw, err := br.ReadSlot()
	if err != nil || raw == nil {
		return nil, err
	}
	return BytesToFloat64Slice(raw), nil
}

// ReadUint32Slice reads back a slot written by WriteUint32Slice.
func (br *Reader) ReadUint32Slice() ([]uint32, error) {
	raw, err := br.ReadSlot()
	if err != nil || raw == nil {
		return nil, err
	}
	return BytesToUint32Slice(raw), nil
}

// SaveToFile atomically writes a file via a temp-file-then-rename dance:
// writeFunc runs against a buffered writer over the temp file, which is
// fsynced and renamed into place only on success.
func SaveToFile(filename string, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)

	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()
	_ = tmp.Chmod(0644)

	buf := bufio.NewWriterSize(tmp, 256*1024)
	if err := writeFunc(buf); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, filename); err != nil {
		return err
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	tmpName = ""
	return nil
}

// LoadFromFile opens filename and runs readFunc against a buffered reader
// over it.
func LoadFromFile(filename string, readFunc func(io.Reader) error) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	buf := bufio.NewReaderSize(f, 256*1024)
	return readFunc(buf)
}
