package placement

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/evoplace/placer/internal/alphabet"
	"github.com/evoplace/placer/internal/domain"
	"github.com/evoplace/placer/internal/fasta"
	"github.com/evoplace/placer/internal/kernel"
	"github.com/evoplace/placer/internal/lookupstore"
	"github.com/evoplace/placer/internal/newick"
)

// referenceAlignment maps a tip label to its aligned sequence, plus the
// common alignment length every sequence was checked against.
type referenceAlignment struct {
	bySeq map[string]string
	sites int
}

func loadReferenceTree(path string) (*domain.Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &InputError{Msg: "reading reference tree: " + err.Error(), cause: err}
	}
	tree, err := newick.Parse(string(data))
	if err != nil {
		return nil, translateError(err)
	}
	return tree, nil
}

func loadReferenceAlignment(path string) (*referenceAlignment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &InputError{Msg: "reading reference alignment: " + err.Error(), cause: err}
	}
	defer f.Close()

	ref := &referenceAlignment{bySeq: make(map[string]string)}
	r := fasta.NewReader(f)
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, translateError(err)
		}
		label := firstToken(rec.Header)
		ref.bySeq[label] = rec.Sequence
		ref.sites = len(rec.Sequence)
	}
	if len(ref.bySeq) == 0 {
		return nil, &InputError{Msg: "reference alignment has no records"}
	}
	return ref, nil
}

func firstToken(header string) string {
	if i := strings.IndexAny(header, " \t"); i >= 0 {
		return header[:i]
	}
	return header
}

// buildPartition sizes a partition for tree and populates every tip CLV
// and per-branch pmatrix from ref, then computes every inner CLV by a
// memoized postorder walk over the half-edge ring. The returned slice is
// indexed by domain.Node.CLVIndex and is complete: every slot is non-nil.
func buildPartition(tree *domain.Tree, branches []domain.NodeIndex, ref *referenceAlignment, model kernel.Model, alpha *alphabet.Alphabet) (*kernel.Partition, [][]float64, error) {
	partition := kernel.NewPartition(model, ref.sites, len(tree.Nodes), 0, len(branches))

	lengths := make([]float64, len(branches))
	indices := make([]int, len(branches))
	for i, b := range branches {
		lengths[i] = tree.Nodes[b].Length
		indices[i] = i
	}
	if err := kernel.UpdateProbMatrices(partition, indices, lengths); err != nil {
		return nil, nil, translateError(err)
	}

	clvs := make([][]float64, len(tree.Nodes))
	for i := range tree.Nodes {
		node := tree.Nodes[i]
		if !node.IsTip() {
			continue
		}
		seq, ok := ref.bySeq[node.Label]
		if !ok {
			return nil, nil, &InputError{Msg: fmt.Sprintf("reference tip %q has no sequence in the reference alignment", node.Label)}
		}
		clv, err := partition.TipCLV(seq, alpha)
		if err != nil {
			return nil, nil, translateError(err)
		}
		clvs[node.CLVIndex] = clv
	}

	for i := range tree.Nodes {
		idx := domain.NodeIndex(i)
		if tree.Nodes[idx].IsTip() {
			continue
		}
		if _, err := computeCLV(tree, partition, clvs, idx); err != nil {
			return nil, nil, translateError(err)
		}
	}

	return partition, clvs, nil
}

// computeCLV returns the CLV for idx's own half-edge — the conditional
// likelihood of everything visible looking away from idx.Back — computing
// and memoizing it first if needed. idx's ring neighbors supply the two
// subtrees idx combines: each neighbor's own Back is the entry point into
// one of those subtrees, and the neighbor's Length is the branch joining
// them.
func computeCLV(tree *domain.Tree, partition *kernel.Partition, clvs [][]float64, idx domain.NodeIndex) ([]float64, error) {
	node := tree.Nodes[idx]
	if clvs[node.CLVIndex] != nil {
		return clvs[node.CLVIndex], nil
	}
	if node.IsTip() {
		return nil, &domain.ConsistencyError{Msg: "tip CLV missing before inner CLV computation"}
	}

	y, z := tree.RingNeighbors(idx)
	childA, err := computeCLV(tree, partition, clvs, tree.Nodes[y].Back)
	if err != nil {
		return nil, err
	}
	childB, err := computeCLV(tree, partition, clvs, tree.Nodes[z].Back)
	if err != nil {
		return nil, err
	}

	clv := kernel.ComputePartialRaw(partition, childA, childB, tree.Nodes[y].Length, tree.Nodes[z].Length)
	clvs[node.CLVIndex] = clv
	return clv, nil
}

// oneHotCLVs builds one synthetic CLV per alphabet state: state k's CLV is
// the partition's representation of a sequence carrying the unambiguous
// character for state k at every site, replicated across rate categories.
// These stand in for the query side of EdgeSiteLogLikelihoods when
// precomputing a branch's lookup table, one table column per state.
func oneHotCLVs(p *kernel.Partition, numBases int) [][]float64 {
	out := make([][]float64, numBases)
	for state := 0; state < numBases; state++ {
		clv := p.NewCLV()
		for site := 0; site < p.Sites; site++ {
			for cat := 0; cat < p.RateCategories; cat++ {
				base := (site*p.RateCategories + cat) * p.States
				clv[base+state] = 1
			}
		}
		out[state] = clv
	}
	return out
}

// buildLookups precomputes every reference branch's prescoring table. Per
// branch, the two endpoint CLVs are first joined at the branch midpoint —
// matching tinytree's own prescoring convention of reporting a split at
// originalLen/2 without optimising it — giving one inner CLV; each table
// column k is then that inner CLV's per-site log-likelihood against a
// hypothetical query carrying character k at every site, with
// defaultPendant as the pendant length. SumPrecomputedSiteLK later sums
// table[site, query[site]] over sites for the actual query.
func buildLookups(tree *domain.Tree, branches []domain.NodeIndex, partition *kernel.Partition, clvs [][]float64, alpha *alphabet.Alphabet, defaultPendant float64) (*lookupstore.Store, error) {
	numBases := alpha.States()
	store := lookupstore.New(len(branches), partition.Sites, alpha)
	oneHots := oneHotCLVs(partition, numBases)

	for i, b := range branches {
		node := tree.Nodes[b]
		back := tree.Nodes[node.Back]
		proximal := clvs[node.CLVIndex]
		distal := clvs[back.CLVIndex]
		half := node.Length / 2
		inner := kernel.ComputePartialRaw(partition, proximal, distal, half, node.Length-half)

		table := make([]float64, partition.Sites*numBases)
		for state := 0; state < numBases; state++ {
			perSite, err := kernel.EdgeSiteLogLikelihoods(partition, inner, oneHots[state], defaultPendant)
			if err != nil {
				return nil, translateError(err)
			}
			for site, v := range perSite {
				table[site*numBases+state] = v
			}
		}
		if err := store.InitBranch(i, table); err != nil {
			return nil, translateError(err)
		}
	}
	return store, nil
}
