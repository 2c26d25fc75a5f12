package placement

import (
	"errors"
	"fmt"

	"github.com/evoplace/placer/internal/domain"
	"github.com/evoplace/placer/internal/fasta"
	"github.com/evoplace/placer/internal/kernel"
	"github.com/evoplace/placer/internal/lookupstore"
	"github.com/evoplace/placer/internal/newick"
)

var (
	// ErrEmptyReferenceTree is returned when the reference tree has fewer
	// than the two tips a placement run needs.
	ErrEmptyReferenceTree = errors.New("placement: reference tree has fewer than 2 tips")

	// ErrEngineClosed is returned by Place after Close has been called.
	ErrEngineClosed = errors.New("placement: engine is closed")
)

// InputError indicates malformed or inconsistent caller-supplied data: a
// reference tree or MSA that fails to parse, a query or reference sequence
// of the wrong length, or an unmapped alphabet character reached from
// outside the engine's own build step.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type InputError struct {
	Msg   string
	cause error
}

func (e *InputError) Error() string { return "placement: invalid input: " + e.Msg }
func (e *InputError) Unwrap() error { return e.cause }

// ConfigurationError indicates a Builder option, or combination of
// options, that the engine cannot satisfy.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return "placement: invalid configuration: " + e.Msg }

// KernelError indicates the numerical kernel could not evaluate a
// likelihood, most often a non-finite or non-positive intermediate value
// produced by a branch length or CLV that has drifted outside a sane
// range.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type KernelError struct {
	Op    string
	Msg   string
	cause error
}

func (e *KernelError) Error() string { return fmt.Sprintf("placement: kernel: %s: %s", e.Op, e.Msg) }
func (e *KernelError) Unwrap() error { return e.cause }

// OutOfBoundsError indicates an index into partition-sized state (a CLV,
// scaler, or pmatrix slot) fell outside its slice bounds — a defect in
// engine bookkeeping rather than in caller input.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type OutOfBoundsError struct {
	Kind  string
	Index int
	Size  int
	cause error
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("placement: %s index %d out of bounds [0,%d)", e.Kind, e.Index, e.Size)
}
func (e *OutOfBoundsError) Unwrap() error { return e.cause }

// InvalidCharacterError indicates a query or reference sequence contains a
// symbol absent from the active alphabet.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type InvalidCharacterError struct {
	Char  byte
	Site  int
	cause error
}

func (e *InvalidCharacterError) Error() string {
	return fmt.Sprintf("placement: invalid character %q at site %d", e.Char, e.Site)
}
func (e *InvalidCharacterError) Unwrap() error { return e.cause }

// ConsistencyError indicates a traversal or bookkeeping invariant was
// violated — fatal, and never recoverable by retrying with the same
// input.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ConsistencyError struct {
	Msg   string
	cause error
}

func (e *ConsistencyError) Error() string { return "placement: consistency error: " + e.Msg }
func (e *ConsistencyError) Unwrap() error { return e.cause }

// translateError maps an internal package error onto the public taxonomy
// so a caller only needs to switch on this package's own types regardless
// of which internal package actually detected the failure.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var pe *newick.ParseError
	if errors.As(err, &pe) {
		return &InputError{Msg: pe.Error(), cause: err}
	}
	var fe *fasta.FormatError
	if errors.As(err, &fe) {
		return &InputError{Msg: fe.Error(), cause: err}
	}

	var oob *kernel.OutOfBoundsError
	if errors.As(err, &oob) {
		return &OutOfBoundsError{Kind: oob.Kind, Index: oob.Index, Size: oob.Size, cause: err}
	}
	var kic *kernel.InvalidCharacterError
	if errors.As(err, &kic) {
		return &InvalidCharacterError{Char: kic.Char, Site: kic.Site, cause: err}
	}
	var lic *lookupstore.InvalidCharacterError
	if errors.As(err, &lic) {
		return &InvalidCharacterError{Char: lic.Char, Site: lic.Site, cause: err}
	}
	var bai *lookupstore.BranchAlreadyInitError
	if errors.As(err, &bai) {
		return &ConsistencyError{Msg: bai.Error(), cause: err}
	}
	var ce *domain.ConsistencyError
	if errors.As(err, &ce) {
		return &ConsistencyError{Msg: ce.Msg, cause: err}
	}
	var ke *kernel.KernelError
	if errors.As(err, &ke) {
		return &KernelError{Op: ke.Op, Msg: ke.Msg, cause: err}
	}

	return err
}
