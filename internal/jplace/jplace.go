// Package jplace builds the placement-JSON output document: the
// numbered reference tree plus one placement list per query, encoded
// with the same high-throughput codec the rest of the module uses for
// its own payloads.
package jplace

import (
	"sort"

	"github.com/evoplace/placer/codec"
	"github.com/evoplace/placer/internal/domain"
	"github.com/evoplace/placer/internal/newick"
	"github.com/evoplace/placer/internal/sample"
)

// FieldOrder is the fixed column order of every placement row, matching
// the field names recorded in Document.Fields.
var FieldOrder = []string{"sequence_id", "branch_id", "likelihood", "lwr", "distal_length", "pendant_length"}

// QueryPlacements is one query's placement rows plus its original header,
// carried alongside sequence_id since a jplace consumer has no other way
// to recover the query name from a purely numeric id.
type QueryPlacements struct {
	SequenceID domain.SequenceID `json:"sequence_id"`
	Name       string            `json:"n"`
	P          [][]float64       `json:"p"`
}

// Document is the full placement-JSON output: a numbered reference tree,
// one placement list per query (sorted by descending LWR), the column
// order those lists use, and a free-form invocation string recording how
// the run was launched.
type Document struct {
	Version    int               `json:"version"`
	Tree       string            `json:"tree"`
	Fields     []string          `json:"fields"`
	Placements []QueryPlacements `json:"placements"`
	Metadata   map[string]string `json:"metadata"`
	Invocation string            `json:"invocation"`
}

// Build assembles a Document from a reference tree and a finished sample.
// The sample's entries are expected to already be collapsed and LWR-
// scored (ComputeAndSetLWR, Collapse) by the caller.
func Build(tree *domain.Tree, s *sample.Sample, invocation string) (*Document, error) {
	numberedTree, err := newick.WriteNumbered(tree)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Version:    3,
		Tree:       numberedTree,
		Fields:     append([]string(nil), FieldOrder...),
		Invocation: invocation,
		Metadata:   map[string]string{"invocation": invocation},
	}

	for _, seqID := range s.SequenceIDs() {
		entries := append([]sample.Entry(nil), s.Entries(seqID)...)
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].LWR > entries[j].LWR
		})

		rows := make([][]float64, len(entries))
		for i, e := range entries {
			rows[i] = []float64{
				float64(e.SequenceID),
				float64(e.Placement.BranchID),
				e.Placement.LogL,
				e.LWR,
				e.Placement.Distal,
				e.Placement.Pendant,
			}
		}

		name := ""
		if len(entries) > 0 {
			name = entries[0].Header
		}
		doc.Placements = append(doc.Placements, QueryPlacements{
			SequenceID: seqID,
			Name:       name,
			P:          rows,
		})
	}

	return doc, nil
}

// Marshal encodes doc with the module's go-json codec, the same one used
// elsewhere for high-throughput payloads.
func Marshal(doc *Document) ([]byte, error) {
	return codec.GoJSON{}.Marshal(doc)
}
