// Package backingstore is the abstract partition load/store contract: it
// persists a reference tree's topology and a partition's CLV, tip-character,
// and scaler buffers as individually addressable blobs in a
// blobstore.BlobStore, and exposes a Loader satisfying
// internal/residentset.Loader so a resident set can fault a CLV back in from
// durable storage on a miss. The concrete object-storage wiring lives in the
// backingstore/s3 and backingstore/minio subpackages; this package only
// knows blobstore.BlobStore, so it works identically over a LocalStore,
// MemoryStore, or CachingStore front.
package backingstore

import (
	"context"
	"fmt"
	"io"

	"github.com/evoplace/placer/blobstore"
	"github.com/evoplace/placer/internal/binformat"
	"github.com/evoplace/placer/internal/domain"
	"github.com/evoplace/placer/internal/fs"
	"github.com/evoplace/placer/internal/newick"
	"github.com/evoplace/placer/internal/resource"
	"github.com/evoplace/placer/manifest"
)

// topologyBlobName is the single blob holding the binformat header and the
// numbered-Newick topology slot; it is small enough to read whole on open.
const topologyBlobName = "topology.bin"

// Store is the backing store for one partition's persisted state. It wraps
// a blobstore.BlobStore with the key layout, codec, and resource governance
// that turn it into an addressable CLV/tipchar/scaler/topology contract.
type Store struct {
	bs       blobstore.BlobStore
	rc       *resource.Controller
	codec    *codec
	manifest *manifest.Store
}

// New wraps bs as a backing store. rc may be nil, in which case fault-ins
// are not concurrency- or IO-throttled, matching resource.Controller's own
// nil-receiver no-op semantics.
func New(bs blobstore.BlobStore, rc *resource.Controller) *Store {
	return &Store{bs: bs, rc: rc, codec: newCodec()}
}

// WithManifest attaches a manifest store rooted at dir: Checkpoint will
// atomically record the current topology and payload counts there, so a
// later process can validate a resumed run's backing store without
// re-scanning every blob. Returns s for chaining off New.
func (s *Store) WithManifest(dir string) *Store {
	s.manifest = manifest.NewStore(fs.Default, dir)
	return s
}

// Checkpoint records a point-in-time manifest of the persisted partition:
// the reference tree's tip count and how many CLV, scaler, and pmatrix
// slots have been saved. It is a no-op if WithManifest was never called.
func (s *Store) Checkpoint(ctx context.Context, tips, numCLVs, numScalers, numMatrices int) error {
	if s.manifest == nil {
		return nil
	}
	current, err := s.manifest.Load()
	if err != nil {
		return fmt.Errorf("backingstore: load manifest: %w", err)
	}
	current.PartitionID = 0
	current.Topology = manifest.TopologyInfo{Path: topologyBlobName, Tips: tips}
	current.Payload = manifest.PayloadInfo{
		NumCLVs:     numCLVs,
		NumScalers:  numScalers,
		NumMatrices: numMatrices,
	}
	if err := s.manifest.Save(current); err != nil {
		return fmt.Errorf("backingstore: save manifest: %w", err)
	}
	return nil
}

func clvKey(idx int) string     { return fmt.Sprintf("clv/%08d.bin", idx) }
func tipCharKey(idx int) string { return fmt.Sprintf("tipchar/%08d.bin", idx) }
func scalerKey(idx int) string  { return fmt.Sprintf("scaler/%08d.bin", idx) }

// SaveTopology persists t as the numbered-Newick form, LZ4-framed behind a
// binformat header so LoadTopology can validate magic/version before
// parsing it back.
func (s *Store) SaveTopology(ctx context.Context, t *domain.Tree) error {
	numbered, err := newick.WriteNumbered(t)
	if err != nil {
		return fmt.Errorf("backingstore: render topology: %w", err)
	}

	w, err := s.bs.Create(ctx, topologyBlobName)
	if err != nil {
		return fmt.Errorf("backingstore: create topology blob: %w", err)
	}

	bw := binformat.NewWriter(w)
	h := &binformat.FileHeader{
		Sites: uint64(t.Tips),
	}
	if err := bw.WriteHeader(h); err != nil {
		_ = w.Close()
		return fmt.Errorf("backingstore: write topology header: %w", err)
	}
	if err := bw.WriteSlot([]byte(numbered)); err != nil {
		_ = w.Close()
		return fmt.Errorf("backingstore: write topology slot: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("backingstore: close topology blob: %w", err)
	}
	return nil
}

// LoadTopology reads back a tree persisted by SaveTopology.
func (s *Store) LoadTopology(ctx context.Context) (*domain.Tree, error) {
	blob, err := s.bs.Open(ctx, topologyBlobName)
	if err != nil {
		return nil, fmt.Errorf("backingstore: open topology blob: %w", err)
	}
	defer blob.Close()

	rr, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return nil, fmt.Errorf("backingstore: read topology blob: %w", err)
	}
	defer rr.Close()

	br := binformat.NewReader(rr)
	if _, err := br.ReadHeader(); err != nil {
		return nil, fmt.Errorf("backingstore: read topology header: %w", err)
	}
	raw, err := br.ReadSlot()
	if err != nil {
		return nil, fmt.Errorf("backingstore: read topology slot: %w", err)
	}
	t, err := newick.Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("backingstore: parse topology: %w", err)
	}
	return t, nil
}

// SaveCLV zstd-compresses clv and writes it to its per-index blob.
func (s *Store) SaveCLV(ctx context.Context, clvIndex int, clv []float64) error {
	raw, err := binformat.Float64SliceBytes(clv)
	if err != nil {
		return fmt.Errorf("backingstore: clv %d: %w", clvIndex, err)
	}
	return s.putCompressed(ctx, clvKey(clvIndex), raw)
}

// LoadCLV faults clvIndex's CLV back in, decompressing it and bounding
// concurrent in-flight fault-ins through rc's background-worker limit. It
// satisfies internal/residentset.Loader's signature exactly.
func (s *Store) LoadCLV(ctx context.Context, clvIndex int) ([]float64, error) {
	raw, err := s.getCompressed(ctx, clvKey(clvIndex))
	if err != nil {
		return nil, fmt.Errorf("backingstore: clv %d: %w", clvIndex, err)
	}
	return binformat.BytesToFloat64Slice(raw), nil
}

// SaveScaler zstd-compresses a scaler-exponent buffer and writes it to its
// per-index blob.
func (s *Store) SaveScaler(ctx context.Context, scalerIndex int, scaler []uint32) error {
	raw, err := binformat.Uint32SliceBytes(scaler)
	if err != nil {
		return fmt.Errorf("backingstore: scaler %d: %w", scalerIndex, err)
	}
	return s.putCompressed(ctx, scalerKey(scalerIndex), raw)
}

// LoadScaler faults scalerIndex's scaler buffer back in.
func (s *Store) LoadScaler(ctx context.Context, scalerIndex int) ([]uint32, error) {
	raw, err := s.getCompressed(ctx, scalerKey(scalerIndex))
	if err != nil {
		return nil, fmt.Errorf("backingstore: scaler %d: %w", scalerIndex, err)
	}
	return binformat.BytesToUint32Slice(raw), nil
}

// SaveTipChars persists a tip's raw per-site character codes — the compact
// representation kept instead of an expanded CLV for sequences that are
// never themselves an ancestral-state target.
func (s *Store) SaveTipChars(ctx context.Context, tipIndex int, codes []byte) error {
	return s.putCompressed(ctx, tipCharKey(tipIndex), codes)
}

// LoadTipChars faults a tip's character codes back in.
func (s *Store) LoadTipChars(ctx context.Context, tipIndex int) ([]byte, error) {
	return s.getCompressed(ctx, tipCharKey(tipIndex))
}

// putCompressed zstd-compresses raw and writes it under name, throttled by
// rc's IO rate limiter and bounded by rc's background-worker limit so a
// burst of persisted slots cannot starve foreground placement queries.
func (s *Store) putCompressed(ctx context.Context, name string, raw []byte) error {
	if err := s.rc.AcquireBackground(ctx); err != nil {
		return err
	}
	defer s.rc.ReleaseBackground()

	compressed := s.codec.compress(raw)
	if err := s.rc.AcquireIO(ctx, len(compressed)); err != nil {
		return err
	}
	if err := s.bs.Put(ctx, name, compressed); err != nil {
		return fmt.Errorf("backingstore: put %s: %w", name, err)
	}
	return nil
}

// getCompressed reads name whole and zstd-decompresses it, throttled the
// same way as putCompressed.
func (s *Store) getCompressed(ctx context.Context, name string) ([]byte, error) {
	if err := s.rc.AcquireBackground(ctx); err != nil {
		return nil, err
	}
	defer s.rc.ReleaseBackground()

	blob, err := s.bs.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("backingstore: open %s: %w", name, err)
	}
	defer blob.Close()

	if err := s.rc.AcquireIO(ctx, int(blob.Size())); err != nil {
		return nil, err
	}

	rr, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return nil, fmt.Errorf("backingstore: read %s: %w", name, err)
	}
	defer rr.Close()

	compressed, err := io.ReadAll(rr)
	if err != nil {
		return nil, fmt.Errorf("backingstore: read %s: %w", name, err)
	}

	raw, err := s.codec.decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("backingstore: decompress %s: %w", name, err)
	}
	return raw, nil
}
