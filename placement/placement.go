package placement

import (
	"context"
	"io"
	"sync"

	"github.com/evoplace/placer/internal/alphabet"
	"github.com/evoplace/placer/internal/domain"
	"github.com/evoplace/placer/internal/fasta"
	"github.com/evoplace/placer/internal/jplace"
	"github.com/evoplace/placer/internal/kernel"
	"github.com/evoplace/placer/internal/lookupstore"
	"github.com/evoplace/placer/internal/pipeline"
	"github.com/evoplace/placer/internal/residentset"
	"github.com/evoplace/placer/internal/sample"
	"github.com/evoplace/placer/internal/work"
)

// Engine holds one reference dataset's fully-built static state: the
// parsed topology, every reference CLV and per-branch pmatrix, and the
// prescoring lookup tables. Build it once with a Builder and call Place
// once per query stream; a single Engine is safe for concurrent Place
// calls, each running its own pipeline over its own query stream.
type Engine struct {
	tree      *domain.Tree
	partition *kernel.Partition
	resident  *residentset.Set
	lookups   *lookupstore.Store
	alpha     *alphabet.Alphabet
	geometry  *branchGeometry

	closed sync.Mutex
	isDone bool

	opts options
}

// Close marks the engine closed, so every later Place call fails with
// ErrEngineClosed. It frees nothing: the resident set and every reference
// CLV stay held by the Engine value. Close is only meaningful once no
// further Place calls are pending.
func (e *Engine) Close() error {
	e.closed.Lock()
	defer e.closed.Unlock()
	e.isDone = true
	return nil
}

// Place drives one query stream to a finished jplace document: queries are
// read from r in chunk-sized batches, each batch scored against every
// reference branch (via prescoring if enabled, otherwise directly), and
// the merged, filtered results assembled into a Document. invocation is
// recorded verbatim in the output for provenance.
func (e *Engine) Place(ctx context.Context, r io.Reader, invocation string) (*jplace.Document, error) {
	e.closed.Lock()
	closed := e.isDone
	e.closed.Unlock()
	if closed {
		return nil, ErrEngineClosed
	}

	pc := &pipeline.PlacementContext{
		Partition:      e.partition,
		Resident:       e.resident,
		Lookups:        e.lookups,
		Alpha:          e.alpha,
		Geometry:       e.geometry,
		Threads:        e.opts.threads,
		DefaultPendant: e.opts.defaultPendant,
	}

	branchCount := e.geometry.branchCount()
	state := &ingestState{reader: fasta.NewReader(r)}
	chunkSize := e.opts.chunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	aggregate := sample.New()

	ingest := func(ctx context.Context, in any) (any, error) {
		chunk, offset, err := state.next(chunkSize)
		if err != nil {
			return nil, translateError(err)
		}
		pc.Offset = offset

		var pairs []work.Pair
		for branch := 0; branch < branchCount; branch++ {
			for seq := 0; seq < len(chunk.Records); seq++ {
				pairs = append(pairs, work.Pair{
					BranchID:   domain.BranchID(branch),
					SequenceID: domain.SequenceID(seq),
				})
			}
		}
		w := work.FromPairs(pairs, chunk.IsLast)
		e.opts.logger.LogChunk(ctx, len(chunk.Records), w.Len(), chunk.IsLast, nil)
		return &pipeline.Cycle{Work: w, Chunk: chunk}, nil
	}

	write := func(ctx context.Context, in any) (any, error) {
		result := in.(*pipeline.CycleResult)
		sample.Merge(aggregate, result.Sample)
		return nil, nil
	}

	var p *pipeline.Pipeline
	if e.opts.prescoring {
		filter := pipeline.FilterConfig{
			ByPercentage: e.opts.prescoringByPercentage,
			Threshold:    e.opts.prescoringThreshold,
			Percent:      e.opts.prescoringThreshold,
		}
		p = pipeline.BuildPrescoring(ingest, write, pc, filter)
	} else {
		p = pipeline.BuildDirect(ingest, write, pc)
	}

	if err := p.Run(ctx); err != nil {
		return nil, translateError(err)
	}

	sample.ComputeAndSetLWR(aggregate)
	sample.Collapse(aggregate)
	switch {
	case e.opts.accThreshold:
		sample.DiscardByAccumulatedThreshold(aggregate, e.opts.supportThreshold, e.opts.filterMin, e.opts.filterMax)
	case e.opts.supportThreshold > 0 || e.opts.filterMin > 0 || e.opts.filterMax > 0:
		sample.DiscardBySupportThreshold(aggregate, e.opts.supportThreshold, e.opts.filterMin, e.opts.filterMax)
	}

	doc, err := jplace.Build(e.tree, aggregate, invocation)
	if err != nil {
		return nil, translateError(err)
	}
	return doc, nil
}

// ingestState turns fasta.Reader's pull-based single-record stream into
// fixed-size chunks with correct end-of-stream detection, buffering at
// most one record of lookahead beyond the current chunk so a chunk that
// exactly fills chunkSize is not marked IsLast until the stream is
// confirmed exhausted.
type ingestState struct {
	reader  *fasta.Reader
	pending *domain.Record
	nextSeq domain.SequenceID
}

func (s *ingestState) next(chunkSize int) (*domain.Chunk, domain.SequenceID, error) {
	var recs []domain.Record
	if s.pending != nil {
		recs = append(recs, *s.pending)
		s.pending = nil
	}
	for len(recs) < chunkSize {
		rec, err := s.reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		recs = append(recs, rec)
	}

	isLast := len(recs) < chunkSize
	if !isLast {
		rec, err := s.reader.Next()
		if err == io.EOF {
			isLast = true
		} else if err != nil {
			return nil, 0, err
		} else {
			s.pending = &rec
		}
	}

	offset := s.nextSeq
	s.nextSeq += domain.SequenceID(len(recs))
	return &domain.Chunk{Records: recs, IsLast: isLast}, offset, nil
}
