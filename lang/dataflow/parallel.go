package dataflow

import (
	"github.com/mna/dflow/internal/concurrent"
	"github.com/mna/dflow/lang/cfg"
	"github.com/mna/dflow/lang/scc"
)

// Analysis bundles the direction and lattice operations shared by a
// sequential and a parallel solve of the same dataflow problem.
type Analysis struct {
	Direction Direction
	Merge     MergeFunc
	Transfer  TransferFunc
}

// SolveParallel runs the analysis described by a over the strongly-
// connected-component condensation cc, scheduling one sequential solve
// per component as a task on an n-worker pool.
//
// A component becomes eligible to run as soon as every component it
// depends on, in the analysis's flow direction, has published its
// block results: a Forward analysis flows along CFG edges and so
// depends on its DAG predecessors; a Backward analysis flows against
// CFG edges and so depends on its DAG successors. The initial ready
// set is {entry component} for Forward and the condensation's sinks
// reachable from the entry component for Backward — those sinks are
// ready immediately, and every other component waits until all of
// its DAG successors have completed. Sinks unreachable
// from the entry are dead code (Build still gives them their own
// component, so the condensation stays total) and must not be
// scheduled: the sequential solver's entry-rooted postorder never
// visits them, so scheduling them here would publish a result key
// Solve never produces.
//
// Component solves read their externally-fixed input per block: every
// block in the component with a neighbor (predecessor, for Forward;
// successor, for Backward) outside the component gets an entry input
// merged from that neighbor's already-published result, not just the
// component's single Entry block — a component can be entered through
// more than one of its blocks.
func SolveParallel(cc *scc.CondensedCFG, n int, a Analysis) map[cfg.BlockIdx]*BitSet {
	result := concurrent.NewShardedMap[cfg.BlockIdx, *BitSet](cc.CFG.NumVertices())

	depends := cc.RevEdges
	notify := cc.Edges
	ready := []scc.ComponentIdx{cc.Entry}
	if a.Direction == Backward {
		depends = cc.Edges
		notify = cc.RevEdges
		ready = cc.ReachableSinks()
	}

	readySet := make(map[scc.ComponentIdx]bool, len(ready))
	for _, r := range ready {
		readySet[r] = true
	}

	counters := concurrent.NewCounterMap[scc.ComponentIdx](len(cc.Components))
	for ci := range cc.Components {
		idx := scc.ComponentIdx(ci)
		if readySet[idx] {
			counters.Set(idx, 0)
			continue
		}
		counters.Set(idx, len(depends[idx]))
	}

	pool := concurrent.NewPool(n)

	var run func(ci scc.ComponentIdx)
	run = func(ci scc.ComponentIdx) {
		comp := &cc.Components[ci]
		view := NewComponentView(cc, comp)

		entryInputs := make(map[cfg.BlockIdx]*BitSet)
		for _, v := range comp.Vertices {
			var neighbors []cfg.BlockIdx
			if a.Direction == Forward {
				neighbors = cc.CFG.Predecessors(v)
			} else {
				neighbors = cc.CFG.Successors(v)
			}
			for _, nb := range neighbors {
				if cc.ComponentOf[nb] == ci {
					continue // internal edge; the component solve handles it
				}
				nbOut, ok := result.Load(nb)
				if !ok {
					continue
				}
				if existing, has := entryInputs[v]; has {
					entryInputs[v] = a.Merge(existing, nbOut)
				} else {
					entryInputs[v] = CloneOrEmpty(nbOut)
				}
			}
		}

		solution := Solve(view, a.Direction, entryInputs, a.Merge, a.Transfer)
		for v, out := range solution {
			result.Store(v, out)
		}

		for _, next := range notify[ci] {
			next := next
			if counters.DecrementAndCheckZero(next) {
				pool.Spawn(func() { run(next) })
			}
		}
	}

	for _, r := range ready {
		r := r
		pool.Spawn(func() { run(r) })
	}
	pool.Wait()

	out := make(map[cfg.BlockIdx]*BitSet, result.Len())
	result.Range(func(k cfg.BlockIdx, v *BitSet) { out[k] = v })
	return out
}
