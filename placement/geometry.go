package placement

import "github.com/evoplace/placer/internal/domain"

// branchGeometry resolves a branch ID — a domain.NodeIndex into the
// reference tree's half-edge arena — to the driver's BranchGeometry
// contract: the branch's current length and the resident-set CLV indices
// of its two endpoints.
type branchGeometry struct {
	tree     *domain.Tree
	branches []domain.NodeIndex
}

// BranchInfo implements driver.BranchGeometry.
func (g *branchGeometry) BranchInfo(branchID domain.BranchID) (originalLen float64, proximalCLVIdx, distalCLVIdx int) {
	idx := g.branches[branchID]
	node := g.tree.Nodes[idx]
	back := g.tree.Nodes[node.Back]
	return node.Length, int(node.CLVIndex), int(back.CLVIndex)
}

// branchCount reports how many distinct undirected branches the reference
// tree has.
func (g *branchGeometry) branchCount() int { return len(g.branches) }
