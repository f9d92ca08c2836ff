package analysis_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/dflow/internal/asm"
	"github.com/mna/dflow/lang/analysis"
	"github.com/mna/dflow/lang/cfg"
	"github.com/mna/dflow/lang/scc"
)

func findBlock(t *testing.T, g *cfg.CFG, label string) cfg.BlockIdx {
	t.Helper()
	for i, b := range g.Vertices {
		if b.Label != nil && b.Label.Name == label {
			return cfg.BlockIdx(i)
		}
	}
	t.Fatalf("no block labeled %q", label)
	return -1
}

// TestReachingDefKillAcrossBlocks: v0 is redefined in "b" after being
// defined in "a"; only b's definition survives into "c".
func TestReachingDefKillAcrossBlocks(t *testing.T) {
	g := buildCFG(t, `
		program:
			function: f void
				code:
					jmp a
				a:
					v0:int = const 1
					jmp b
				b:
					v0:int = const 2
					jmp c
				c:
					print v0
					ret
	`)
	reach := analysis.ReachingDef(g)

	aDef := g.Vertices[findBlock(t, g, "a")].Range[0]
	bDef := g.Vertices[findBlock(t, g, "b")].Range[0]
	c := findBlock(t, g, "c")

	require.True(t, reach[c].Test(uint(bDef)), "b's definition must reach c")
	require.False(t, reach[c].Test(uint(aDef)), "a's definition must be killed by b's redefinition")
}

// TestReachingDefLoopConverges: v1 is defined once before the loop and
// again inside the loop body; since the loop may run zero or more
// times, both definitions must reach "done", which only a fixed-point
// solve across the loop's back edge can establish.
func TestReachingDefLoopConverges(t *testing.T) {
	g := buildCFG(t, `
		program:
			function: f int n:int
				code:
					v1:int = const 0
				loop:
					v2:bool = lt v1 n
					br v2 body done
				body:
					v1:int = add v1 n
					jmp loop
				done:
					ret v1
	`)
	reach := analysis.ReachingDef(g)

	initDef := g.Entry
	entryOffset := g.Vertices[initDef].Range[0]
	bodyOffset := g.Vertices[findBlock(t, g, "body")].Range[0]
	done := findBlock(t, g, "done")

	require.True(t, reach[done].Test(uint(entryOffset)), "the pre-loop definition must reach done (loop may run zero times)")
	require.True(t, reach[done].Test(uint(bodyOffset)), "the loop-body definition must reach done (loop may run one or more times)")
}

// TestReachingDefParallelMatchesSequential checks that the
// SCC-scheduled solver converges to the same fixed point as the
// sequential solver, across several worker counts, for a CFG whose
// loop forces a multi-block component.
func TestReachingDefParallelMatchesSequential(t *testing.T) {
	g := buildCFG(t, `
		program:
			function: f int n:int
				code:
					v1:int = const 0
				loop:
					v2:bool = lt v1 n
					br v2 body done
				body:
					v1:int = add v1 n
					jmp loop
				done:
					ret v1
	`)
	want := analysis.ReachingDef(g)
	cc := scc.Build(g)

	for _, threads := range []int{1, 2, 4, 8} {
		got := analysis.ReachingDefParallel(cc, threads)
		require.Equal(t, len(want), len(got), "threads=%d", threads)
		for b, wantSet := range want {
			gotSet, ok := got[b]
			require.Truef(t, ok, "threads=%d: missing block %d", threads, b)
			require.Truef(t, wantSet.Equal(gotSet), "threads=%d: block %d differs: want %v got %v", threads, b, wantSet, gotSet)
		}
	}
}

// TestReachingDefParallelMatchesSequentialWithDeadCode mirrors
// TestLivenessParallelMatchesSequentialWithDeadCode for the forward
// analysis: an unreachable block following an unconditional ret must
// not appear in ReachingDefParallel's result.
func TestReachingDefParallelMatchesSequentialWithDeadCode(t *testing.T) {
	g := buildCFG(t, `
		program:
			function: f int n:int
				code:
					ret n
				dead:
					v1:int = const 1
					ret v1
	`)
	want := analysis.ReachingDef(g)
	cc := scc.Build(g)

	for _, threads := range []int{1, 2, 4, 8} {
		got := analysis.ReachingDefParallel(cc, threads)
		require.Equalf(t, len(want), len(got), "threads=%d: result map must not contain the unreachable block", threads)
		for b := range got {
			_, ok := want[b]
			require.Truef(t, ok, "threads=%d: block %d is unreachable and must not appear in the parallel result", threads, b)
		}
	}
}
