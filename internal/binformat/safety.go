package binformat

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"
)

var (
	// ErrUnsupportedArchitecture is returned on a CPU architecture this
	// package's unsafe zero-copy slicing hasn't been validated against.
	ErrUnsupportedArchitecture = errors.New("binformat: unsupported architecture: only amd64 and arm64 are supported")

	// ErrBigEndian is returned on a big-endian host, since the on-disk
	// layout is fixed little-endian.
	ErrBigEndian = errors.New("binformat: big-endian systems are not supported")

	// ErrUnalignedAccess is returned when a slice isn't aligned for the
	// unsafe byte-reinterpretation WriteFloat64Slice/WriteUint32Slice use.
	ErrUnalignedAccess = errors.New("binformat: unaligned memory access detected")
)

func init() {
	if err := validatePlatform(); err != nil {
		panic(fmt.Sprintf("binformat: %v", err))
	}
}

func validatePlatform() error {
	arch := runtime.GOARCH
	if arch != "amd64" && arch != "arm64" {
		return fmt.Errorf("%w: %s", ErrUnsupportedArchitecture, arch)
	}
	if !isLittleEndian() {
		return ErrBigEndian
	}
	return nil
}

func isLittleEndian() bool {
	var test uint16 = 0x0001
	firstByte := *(*byte)(unsafe.Pointer(&test))
	return firstByte == 1
}

func validateFloat64SliceAlignment(vec []float64) error {
	if len(vec) == 0 {
		return nil
	}
	ptr := uintptr(unsafe.Pointer(&vec[0]))
	if ptr%8 != 0 {
		return fmt.Errorf("%w: float64 slice at address 0x%x", ErrUnalignedAccess, ptr)
	}
	return nil
}

func validateUint32SliceAlignment(slice []uint32) error {
	if len(slice) == 0 {
		return nil
	}
	ptr := uintptr(unsafe.Pointer(&slice[0]))
	if ptr%4 != 0 {
		return fmt.Errorf("%w: uint32 slice at address 0x%x", ErrUnalignedAccess, ptr)
	}
	return nil
}

// Float64SliceBytes zero-copy reinterprets vec as its underlying byte
// representation. The returned slice aliases vec; it must not be retained
// past vec's lifetime or written through once handed to an LZ4/zstd writer.
func Float64SliceBytes(vec []float64) ([]byte, error) {
	if len(vec) == 0 {
		return nil, nil
	}
	if err := validateFloat64SliceAlignment(vec); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&vec[0])), len(vec)*8), nil
}

// BytesToFloat64Slice copies raw into a freshly allocated []float64. raw's
// length must be a multiple of 8.
func BytesToFloat64Slice(raw []byte) []float64 {
	if len(raw) == 0 {
		return nil
	}
	vec := make([]float64, len(raw)/8)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&vec[0])), len(raw)), raw)
	return vec
}

// Uint32SliceBytes zero-copy reinterprets vec as its underlying byte
// representation, with the same aliasing caveat as Float64SliceBytes.
func Uint32SliceBytes(vec []uint32) ([]byte, error) {
	if len(vec) == 0 {
		return nil, nil
	}
	if err := validateUint32SliceAlignment(vec); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&vec[0])), len(vec)*4), nil
}

// BytesToUint32Slice copies raw into a freshly allocated []uint32. raw's
// length must be a multiple of 4.
func BytesToUint32Slice(raw []byte) []uint32 {
	if len(raw) == 0 {
		return nil
	}
	vec := make([]uint32, len(raw)/4)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&vec[0])), len(raw)), raw)
	return vec
}
