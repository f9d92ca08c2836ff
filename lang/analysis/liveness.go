// Package analysis implements the two concrete dataflow analyses this
// repository ships: liveness (backward, ground set = variable ids) and
// reaching definitions (forward, ground set = instruction offsets).
// Both are expressed purely as gen/kill computation plus a call into
// lang/dataflow's generic solver — neither analysis hand-rolls its own
// fixed-point loop.
package analysis

import (
	"github.com/mna/dflow/lang/cfg"
	"github.com/mna/dflow/lang/dataflow"
	"github.com/mna/dflow/lang/scc"
)

// Liveness computes, for every block reachable from the function's
// entry, the set of variable ids live on entry to that block.
func Liveness(c *cfg.CFG) map[cfg.BlockIdx]*dataflow.BitSet {
	gen, kill := livenessGenKill(c)
	a := livenessAnalysis(gen, kill)
	return dataflow.Solve(dataflow.WholeCFG{C: c}, a.Direction, nil, a.Merge, a.Transfer)
}

// LivenessParallel is Liveness scheduled as one sequential solve per
// strongly-connected component of cc, run across n workers. It
// converges to the same fixed point as Liveness.
func LivenessParallel(cc *scc.CondensedCFG, n int) map[cfg.BlockIdx]*dataflow.BitSet {
	gen, kill := livenessGenKill(cc.CFG)
	a := livenessAnalysis(gen, kill)
	return dataflow.SolveParallel(cc, n, a)
}

func livenessAnalysis(gen, kill map[cfg.BlockIdx]*dataflow.BitSet) dataflow.Analysis {
	return dataflow.Analysis{
		Direction: dataflow.Backward,
		Merge:     dataflow.Union,
		Transfer: func(b cfg.BlockIdx, in *dataflow.BitSet) *dataflow.BitSet {
			return dataflow.Union(gen[b], dataflow.Difference(in, kill[b]))
		},
	}
}

// livenessGenKill computes, per block, kill = every variable the block
// defines, and gen = every variable the block uses before any
// definition of that same variable within the block. Scanning each
// block from its last instruction to its first makes both sets fall
// out of a single pass: a definition clears gen and sets kill; a use
// sets gen regardless of kill, since the use happens before whatever
// later (in program order) redefinition already cleared it.
func livenessGenKill(c *cfg.CFG) (gen, kill map[cfg.BlockIdx]*dataflow.BitSet) {
	gen = make(map[cfg.BlockIdx]*dataflow.BitSet, len(c.Vertices))
	kill = make(map[cfg.BlockIdx]*dataflow.BitSet, len(c.Vertices))

	for i := range c.Vertices {
		b := cfg.BlockIdx(i)
		blockGen := dataflow.NewBitSet()
		blockKill := dataflow.NewBitSet()

		blk := c.Instructions(b)
		for j := len(blk) - 1; j >= 0; j-- {
			instr := blk[j]
			if instr.Dest != nil {
				blockKill.Set(uint(instr.Dest.ID))
				blockGen.Clear(uint(instr.Dest.ID))
			}
			for _, op := range instr.Operands {
				blockGen.Set(uint(op.ID))
			}
		}
		gen[b] = blockGen
		kill[b] = blockKill
	}
	return gen, kill
}
