package scc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/dflow/internal/asm"
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

func TestBuildAcyclicIsOneComponentPerBlock(t *testing.T) {
	g := buildCFG(t, `
		program:
			function: f bool c:bool
				code:
					br c then else
				then:
					jmp join
				else:
					jmp join
				join:
					ret c
	`)
	cc := scc.Build(g)
	require.Len(t, cc.Components, len(g.Vertices))
	require.Len(t, cc.Sinks(), 1) // exactly one sink: the join block's component
}

func TestBuildCollapsesLoopIntoOneComponent(t *testing.T) {
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
	cc := scc.Build(g)

	// "loop" and "body" form a cycle and must land in the same
	// component; the entry block and "done" are each alone.
	require.Len(t, cc.Components, 3)

	loopComp := cc.ComponentOf[cfg.BlockIdx(1)]
	bodyComp := cc.ComponentOf[cfg.BlockIdx(2)]
	require.Equal(t, loopComp, bodyComp)

	comp := cc.Components[loopComp]
	require.Equal(t, cfg.BlockIdx(1), comp.Entry)
	require.ElementsMatch(t, []cfg.BlockIdx{1, 2}, comp.Vertices)
}

func TestSinksHaveNoOutgoingEdge(t *testing.T) {
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
	cc := scc.Build(g)
	sinks := cc.Sinks()
	require.Len(t, sinks, 1)
	doneComp := cc.ComponentOf[cfg.BlockIdx(3)]
	require.Equal(t, doneComp, sinks[0])
}

// TestReachableSinksExcludesDeadCode: "dead" follows an unconditional
// ret and nothing jumps to it, so Build's totality-preserving second
// pass still gives it its own component (with zero outgoing edges,
// making it a Sink), but it is unreachable from the entry component.
// ReachableSinks must exclude it.
func TestReachableSinksExcludesDeadCode(t *testing.T) {
	g := buildCFG(t, `
		program:
			function: f int n:int
				code:
					ret n
				dead:
					v1:int = const 1
					ret v1
	`)
	cc := scc.Build(g)

	deadComp := cc.ComponentOf[cfg.BlockIdx(1)]
	require.Contains(t, cc.Sinks(), deadComp, "dead code block has no outgoing edge, so Sinks includes it")
	require.NotContains(t, cc.ReachableSinks(), deadComp, "dead code block is unreachable from entry, so ReachableSinks must exclude it")

	entryComp := cc.ComponentOf[g.Entry]
	require.Contains(t, cc.ReachableSinks(), entryComp)
}
