package analysis

import (
	"github.com/mna/dflow/lang/cfg"
	"github.com/mna/dflow/lang/dataflow"
	"github.com/mna/dflow/lang/scc"
)

// ReachingDef computes, for every block reachable from the function's
// entry, the set of instruction offsets whose definitions may reach
// the end of that block (i.e. are still live on exit, before the
// successor's own definitions take over). A caller that needs the set
// reaching a particular program point inside the block combines the
// block's predecessors' results with a local forward scan up to that
// point.
func ReachingDef(c *cfg.CFG) map[cfg.BlockIdx]*dataflow.BitSet {
	gen, kill := reachingDefGenKill(c)
	a := reachingDefAnalysis(gen, kill)
	return dataflow.Solve(dataflow.WholeCFG{C: c}, a.Direction, nil, a.Merge, a.Transfer)
}

// ReachingDefParallel is ReachingDef scheduled as one sequential solve
// per strongly-connected component of cc, run across n workers. It
// converges to the same fixed point as ReachingDef.
func ReachingDefParallel(cc *scc.CondensedCFG, n int) map[cfg.BlockIdx]*dataflow.BitSet {
	gen, kill := reachingDefGenKill(cc.CFG)
	a := reachingDefAnalysis(gen, kill)
	return dataflow.SolveParallel(cc, n, a)
}

func reachingDefAnalysis(gen, kill map[cfg.BlockIdx]*dataflow.BitSet) dataflow.Analysis {
	return dataflow.Analysis{
		Direction: dataflow.Forward,
		Merge:     dataflow.Union,
		Transfer: func(b cfg.BlockIdx, in *dataflow.BitSet) *dataflow.BitSet {
			return dataflow.Union(gen[b], dataflow.Difference(in, kill[b]))
		},
	}
}

// reachingDefGenKill computes, per block: gen = the last
// definition-site offset of each variable the block defines; kill =
// every other definition offset, anywhere in the function, of a
// variable the block also defines. A definition that is itself
// shadowed by a later definition of the same variable within the same
// block never reaches the block's exit, so it falls into kill along
// with every out-of-block definition of that variable.
func reachingDefGenKill(c *cfg.CFG) (gen, kill map[cfg.BlockIdx]*dataflow.BitSet) {
	defsByVar := make(map[uint32][]int)
	instrs := c.Program.FunctionInstructions(c.Function)
	for offset, instr := range instrs {
		if instr.Dest != nil {
			defsByVar[instr.Dest.ID] = append(defsByVar[instr.Dest.ID], offset)
		}
	}

	gen = make(map[cfg.BlockIdx]*dataflow.BitSet, len(c.Vertices))
	kill = make(map[cfg.BlockIdx]*dataflow.BitSet, len(c.Vertices))

	for i := range c.Vertices {
		b := cfg.BlockIdx(i)
		blockGen := dataflow.NewBitSet()
		blockKill := dataflow.NewBitSet()

		base := c.Vertices[i].Range[0]
		blk := c.Instructions(b)
		lastDefOffset := make(map[uint32]int)
		for j, instr := range blk {
			if instr.Dest != nil {
				lastDefOffset[instr.Dest.ID] = base + j
			}
		}
		for varID, offset := range lastDefOffset {
			blockGen.Set(uint(offset))
			for _, d := range defsByVar[varID] {
				if d != offset {
					blockKill.Set(uint(d))
				}
			}
		}
		gen[b] = blockGen
		kill[b] = blockKill
	}
	return gen, kill
}
