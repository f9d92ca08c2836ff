package dataflow

import (
	"github.com/mna/dflow/lang/cfg"
	"github.com/mna/dflow/lang/scc"
)

// CFGLike is the graph shape both solvers operate over: enough to run
// a worklist algorithm without caring whether the underlying vertices
// are a whole function's basic blocks or one strongly-connected
// component's member blocks. WholeCFG (an adapter over *cfg.CFG) and
// ComponentView below both implement it.
type CFGLike interface {
	Entry() cfg.BlockIdx
	VerticesCapacity() int
	Successors(v cfg.BlockIdx) []cfg.BlockIdx
	Predecessors(v cfg.BlockIdx) []cfg.BlockIdx
}

// WholeCFG adapts a *cfg.CFG to CFGLike for sequential, whole-function
// solves.
type WholeCFG struct {
	C *cfg.CFG
}

func (w WholeCFG) Entry() cfg.BlockIdx           { return w.C.Entry }
func (w WholeCFG) VerticesCapacity() int         { return w.C.NumVertices() }
func (w WholeCFG) Successors(v cfg.BlockIdx) []cfg.BlockIdx   { return w.C.Successors(v) }
func (w WholeCFG) Predecessors(v cfg.BlockIdx) []cfg.BlockIdx { return w.C.Predecessors(v) }

// ComponentView adapts one scc.Component to CFGLike, restricting
// Successors/Predecessors to edges that stay within the component: the
// parallel solver runs a sequential solve per component, and
// cross-component flow is handled separately by seeding entry_inputs
// from already-solved neighboring components before the component
// solve starts.
type ComponentView struct {
	CC      *scc.CondensedCFG
	Comp    *scc.Component
	members map[cfg.BlockIdx]bool
}

// NewComponentView builds the membership filter once so Successors and
// Predecessors don't rescan Comp.Vertices per call.
func NewComponentView(cc *scc.CondensedCFG, comp *scc.Component) *ComponentView {
	members := make(map[cfg.BlockIdx]bool, len(comp.Vertices))
	for _, v := range comp.Vertices {
		members[v] = true
	}
	return &ComponentView{CC: cc, Comp: comp, members: members}
}

func (cv *ComponentView) Entry() cfg.BlockIdx   { return cv.Comp.Entry }
func (cv *ComponentView) VerticesCapacity() int { return cv.CC.CFG.NumVertices() }

func (cv *ComponentView) Successors(v cfg.BlockIdx) []cfg.BlockIdx {
	return cv.filtered(cv.CC.CFG.Successors(v))
}

func (cv *ComponentView) Predecessors(v cfg.BlockIdx) []cfg.BlockIdx {
	return cv.filtered(cv.CC.CFG.Predecessors(v))
}

func (cv *ComponentView) filtered(vs []cfg.BlockIdx) []cfg.BlockIdx {
	var out []cfg.BlockIdx
	for _, v := range vs {
		if cv.members[v] {
			out = append(out, v)
		}
	}
	return out
}
