package dataflow

import "github.com/mna/dflow/lang/cfg"

// Direction selects which way flow facts propagate across edges: a
// Forward analysis (e.g. reaching definitions) reads predecessors'
// outputs and writes along successor edges; a Backward analysis (e.g.
// liveness) reads successors' outputs and writes along predecessor
// edges.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// MergeFunc combines a running input set with one contributing
// neighbor's solution. Called once per incoming edge; must be
// commutative and idempotent (set union, for both analyses in this
// repository) for the worklist algorithm to terminate at a fixed
// point.
type MergeFunc func(acc, neighbor *BitSet) *BitSet

// TransferFunc computes a block's output set from its merged input
// set: conventionally out = (in \ kill) ∪ gen.
type TransferFunc func(block cfg.BlockIdx, in *BitSet) *BitSet

// Solve runs the generic monotone dataflow worklist algorithm over g
// and returns the solution set — out, for Forward; in, for Backward —
// for every block reachable from g.Entry(). Blocks not reachable from
// the entry are absent from the result.
//
// entryInputs supplies the externally-fixed input for one or more
// blocks (conventionally just the function entry for a whole-CFG
// forward solve; every block with an external predecessor/successor,
// for a per-component solve scheduled by the parallel solver). A block
// with no entry in entryInputs starts from the empty set.
func Solve(g CFGLike, dir Direction, entryInputs map[cfg.BlockIdx]*BitSet, merge MergeFunc, transfer TransferFunc) map[cfg.BlockIdx]*BitSet {
	postorder := constructPostorder(g)

	solution := make(map[cfg.BlockIdx]*BitSet, len(postorder))
	for _, v := range postorder {
		solution[v] = NewBitSet()
	}

	var worklist []cfg.BlockIdx
	if dir == Forward {
		worklist = reversed(postorder)
	} else {
		worklist = append([]cfg.BlockIdx(nil), postorder...)
	}
	inWorklist := make(map[cfg.BlockIdx]bool, len(worklist))
	for _, v := range worklist {
		inWorklist[v] = true
	}

	flowPreds, flowSuccs := g.Predecessors, g.Successors
	if dir == Backward {
		flowPreds, flowSuccs = g.Successors, g.Predecessors
	}

	for len(worklist) > 0 {
		v := worklist[0]
		worklist = worklist[1:]
		inWorklist[v] = false

		in := CloneOrEmpty(entryInputs[v])
		for _, p := range flowPreds(v) {
			if ps, ok := solution[p]; ok {
				in = merge(in, ps)
			}
		}

		out := transfer(v, in)
		if Equal(out, solution[v]) {
			continue
		}
		solution[v] = out

		for _, s := range flowSuccs(v) {
			if _, ok := solution[s]; !ok {
				continue // outside this solve's vertex domain
			}
			if !inWorklist[s] {
				worklist = append(worklist, s)
				inWorklist[s] = true
			}
		}
	}

	return solution
}

// constructPostorder walks g.Successors depth-first from g.Entry() and
// returns the postorder traversal. This traversal direction is fixed
// regardless of the analysis Direction: it only needs to visit every
// reachable block once, in an order that lets the worklist seed in
// the right priority (reverse postorder forward, postorder backward).
func constructPostorder(g CFGLike) []cfg.BlockIdx {
	visited := make(map[cfg.BlockIdx]bool)
	var order []cfg.BlockIdx
	var visit func(cfg.BlockIdx)
	visit = func(v cfg.BlockIdx) {
		if visited[v] {
			return
		}
		visited[v] = true
		for _, s := range g.Successors(v) {
			visit(s)
		}
		order = append(order, v)
	}
	visit(g.Entry())
	return order
}

func reversed(in []cfg.BlockIdx) []cfg.BlockIdx {
	out := make([]cfg.BlockIdx, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}
