package domain

// SequenceID is a dense, chunk-local identifier for a query sequence, 0..N-1
// within the chunk (plus the driver's sequence-id offset for global
// numbering across chunks).
type SequenceID uint32

// BranchID indexes into a reference Tree's branch list; it is the id used
// throughout lookup-store, work-set, and placement records.
type BranchID uint32

// Record is one (header, sequence) pair in an MSA chunk.
type Record struct {
	Header   string
	Sequence string
}

// Chunk is a fixed-size batch of query sequences aligned to the reference
// alignment length, processed as one pipeline cycle.
type Chunk struct {
	Records []Record
	// IsLast marks the final chunk of the query stream.
	IsLast bool
}

// Len returns the number of sequences in the chunk.
func (c *Chunk) Len() int { return len(c.Records) }

// At returns the record for a chunk-local sequence id.
func (c *Chunk) At(id SequenceID) Record { return c.Records[id] }
