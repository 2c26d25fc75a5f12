// Package work holds the (branch_id, sequence_id) pair sets that drive one
// placement-driver invocation: the pairs still needing a score. Pairs are
// packed into a single 64-bit key and stored in a Roaring64 bitmap so large
// chunk x branch cross products stay compact and splitting/merging is a
// cheap bitmap operation rather than a slice copy.
package work

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/evoplace/placer/internal/domain"
)

// Pair is one (branch, sequence) unit of work.
type Pair struct {
	BranchID   domain.BranchID
	SequenceID domain.SequenceID
}

func pack(p Pair) uint64 {
	return uint64(p.BranchID)<<32 | uint64(p.SequenceID)
}

func unpack(key uint64) Pair {
	return Pair{
		BranchID:   domain.BranchID(key >> 32),
		SequenceID: domain.SequenceID(key),
	}
}

// Set is a compact, orderable collection of (branch, sequence) pairs, plus
// the is_last flag marking whether this is the final chunk of a stream.
type Set struct {
	bm     *roaring64.Bitmap
	IsLast bool
}

// New builds an empty work set.
func New() *Set {
	return &Set{bm: roaring64.New()}
}

// FromPairs builds a work set containing exactly the given pairs.
func FromPairs(pairs []Pair, isLast bool) *Set {
	s := New()
	s.IsLast = isLast
	for _, p := range pairs {
		s.bm.Add(pack(p))
	}
	return s
}

// IsLastCycle implements pipeline.IsLast so a work set can be S0's output
// type in a pipeline.Pipeline.
func (s *Set) IsLastCycle() bool { return s.IsLast }

// Add inserts one pair.
func (s *Set) Add(p Pair) { s.bm.Add(pack(p)) }

// Len returns the number of pairs in the set.
func (s *Set) Len() int { return int(s.bm.GetCardinality()) }

// Pairs iterates the set's pairs in branch-major order (the bitmap's
// natural ascending key order, since branch occupies the high 32 bits),
// so consecutive pairs sharing a branch are adjacent — letting the driver
// reuse one tiny-tree instance across a run of same-branch pairs.
func (s *Set) Pairs() iter.Seq[Pair] {
	return func(yield func(Pair) bool) {
		it := s.bm.Iterator()
		for it.HasNext() {
			if !yield(unpack(it.Next())) {
				return
			}
		}
	}
}

// Split shards the set into n roughly equal contiguous pieces, preserving
// branch-major order within each piece. Only the last piece carries
// IsLast, and only if the source set did.
func Split(s *Set, n int) []*Set {
	if n < 1 {
		n = 1
	}
	total := s.Len()
	if total == 0 {
		return []*Set{s}
	}
	keys := make([]uint64, 0, total)
	it := s.bm.Iterator()
	for it.HasNext() {
		keys = append(keys, it.Next())
	}

	shardSize := (total + n - 1) / n
	shards := make([]*Set, 0, n)
	for start := 0; start < total; start += shardSize {
		end := start + shardSize
		if end > total {
			end = total
		}
		shard := New()
		for _, k := range keys[start:end] {
			shard.bm.Add(k)
		}
		shards = append(shards, shard)
	}
	if len(shards) > 0 && s.IsLast {
		shards[len(shards)-1].IsLast = true
	}
	return shards
}

// Merge concatenates the pair sets of every shard into one, preserving
// IsLast if any shard carried it.
func Merge(shards []*Set) *Set {
	out := New()
	for _, s := range shards {
		out.bm.Or(s.bm)
		if s.IsLast {
			out.IsLast = true
		}
	}
	return out
}
