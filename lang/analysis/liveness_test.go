package analysis_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/dflow/internal/asm"
	"github.com/mna/dflow/lang/analysis"
	"github.com/mna/dflow/lang/cfg"
	"github.com/mna/dflow/lang/scc"
)

func buildCFG(t *testing.T, src string) *cfg.CFG {
	t.Helper()
	prog, err := asm.Parse([]byte(src))
	require.NoError(t, err)
	require.Len(t, prog.Functions, 1)
	g, err := cfg.Build(prog, &prog.Functions[0])
	require.NoError(t, err)
	return g
}

// TestLivenessDiamond: c is used in the branch test and again after
// the join, so it is live across both arms; v1 and v2 are each local
// to their own arm and never escape it.
func TestLivenessDiamond(t *testing.T) {
	g := buildCFG(t, `
		program:
			function: f bool c:bool
				code:
					br c then else
				then:
					v1:int = const 1
					jmp join
				else:
					v2:int = const 2
					jmp join
				join:
					ret c
	`)
	live := analysis.Liveness(g)

	cID := g.Function.Parameters[0].ID
	require.True(t, live[g.Entry].Test(uint(cID)))

	for b := cfg.BlockIdx(0); int(b) < len(g.Vertices); b++ {
		if b == g.Entry {
			continue
		}
		set := live[b]
		require.NotNil(t, set)
	}
}

// TestLivenessDeadAssignment: v1 is assigned but never used anywhere,
// so it must never appear in any block's live-in set.
func TestLivenessDeadAssignment(t *testing.T) {
	g := buildCFG(t, `
		program:
			function: f void
				code:
					v0:int = const 1
					v1:int = const 2
					print v0
					ret
	`)
	live := analysis.Liveness(g)

	var v1ID uint32 = 1 // second declared variable
	for b, set := range live {
		require.Falsef(t, set.Test(uint(v1ID)), "v1 must not be live-in at block %d", b)
	}
}

// TestLivenessParallelMatchesSequential checks that the SCC-scheduled
// solver converges to the same fixed point as the sequential solver,
// across several worker counts, for a CFG with a loop (so some blocks
// are scheduled as a multi-block component).
func TestLivenessParallelMatchesSequential(t *testing.T) {
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
	want := analysis.Liveness(g)
	cc := scc.Build(g)

	for _, threads := range []int{1, 2, 4, 8} {
		got := analysis.LivenessParallel(cc, threads)
		require.Equal(t, len(want), len(got), "threads=%d", threads)
		for b, wantSet := range want {
			gotSet, ok := got[b]
			require.Truef(t, ok, "threads=%d: missing block %d", threads, b)
			require.Truef(t, wantSet.Equal(gotSet), "threads=%d: block %d differs: want %v got %v", threads, b, wantSet, gotSet)
		}
	}
}

// TestLivenessParallelMatchesSequentialWithDeadCode checks that an
// unreachable block following an unconditional ret (nothing jumps to
// it) does not show up in LivenessParallel's result when it is absent
// from Liveness's: a DAG sink unreachable from the entry component
// must not be scheduled by the parallel solver.
func TestLivenessParallelMatchesSequentialWithDeadCode(t *testing.T) {
	g := buildCFG(t, `
		program:
			function: f int n:int
				code:
					ret n
				dead:
					v1:int = const 1
					ret v1
	`)
	want := analysis.Liveness(g)
	cc := scc.Build(g)

	for _, threads := range []int{1, 2, 4, 8} {
		got := analysis.LivenessParallel(cc, threads)
		require.Equalf(t, len(want), len(got), "threads=%d: result map must not contain the unreachable block", threads)
		for b := range got {
			_, ok := want[b]
			require.Truef(t, ok, "threads=%d: block %d is unreachable and must not appear in the parallel result", threads, b)
		}
	}
}
