// Package cfg builds a control-flow graph from one ir.Function: basic
// blocks plus typed control exits, constructed in a single pass over
// the function's interleaved label/instruction sequence.
//
// The graph is slot-allocated: blocks are identified by a stable
// BlockIdx into a dense vertices slice, and edges are stored as maps
// from BlockIdx to successor information rather than as pointers, so
// the whole structure stays trivially shareable (read-only) across
// the parallel solver's worker goroutines.
package cfg

import (
	"fmt"

	"github.com/mna/dflow/lang/ir"
)

// BlockIdx identifies a BasicBlock within a CFG.
type BlockIdx int

// ExitKind discriminates the resolved control exit of a block.
type ExitKind int

const (
	ExitReturn ExitKind = iota
	ExitUnconditional
	ExitConditional
)

// Exit is the resolved control exit of a block: the targets are
// BlockIdx values, already looked up from the labels recorded on the
// block during the build pass.
type Exit struct {
	Kind    ExitKind
	Target  BlockIdx // meaningful iff Kind == ExitUnconditional
	IfTrue  BlockIdx // meaningful iff Kind == ExitConditional
	IfFalse BlockIdx // meaningful iff Kind == ExitConditional
}

// BasicBlock is a maximal straight-line run of instructions: a
// contiguous slice of the owning function's instruction range, an
// optional leading label, and whether it is the function's entry.
type BasicBlock struct {
	Label   *ir.Label
	Range   [2]int // instruction offsets, relative to the function
	IsEntry bool
}

// NumInstructions returns the number of instructions in b.
func (b *BasicBlock) NumInstructions() int { return b.Range[1] - b.Range[0] }

// CFG is a directed graph over a function's basic blocks.
type CFG struct {
	Function *ir.Function
	Program  *ir.Program

	Entry    BlockIdx
	Vertices []BasicBlock
	Edges    map[BlockIdx]Exit
	RevEdges map[BlockIdx][]BlockIdx
}

// Instructions returns the instruction slice of block b, relative to
// the owning function's instruction buffer.
func (c *CFG) Instructions(b BlockIdx) []ir.Instruction {
	blk := &c.Vertices[b]
	instrs := c.Program.FunctionInstructions(c.Function)
	return instrs[blk.Range[0]:blk.Range[1]]
}

// Successors returns the blocks b can transfer control to.
func (c *CFG) Successors(b BlockIdx) []BlockIdx {
	exit := c.Edges[b]
	switch exit.Kind {
	case ExitUnconditional:
		return []BlockIdx{exit.Target}
	case ExitConditional:
		return []BlockIdx{exit.IfTrue, exit.IfFalse}
	default:
		return nil
	}
}

// Predecessors returns the blocks that can transfer control to b.
func (c *CFG) Predecessors(b BlockIdx) []BlockIdx { return c.RevEdges[b] }

// NumVertices returns the number of blocks in the CFG.
func (c *CFG) NumVertices() int { return len(c.Vertices) }

// labeledExitKind mirrors the not-yet-resolved exit recorded while
// building the CFG, before label references are turned into BlockIdx
// targets.
type labeledExitKind int

const (
	labeledFallthrough labeledExitKind = iota
	labeledUnconditional
	labeledConditional
	labeledReturn
)

type labeledExit struct {
	kind            labeledExitKind
	target          ir.LabelIdx
	ifTrue, ifFalse ir.LabelIdx
}

type buildingBlock struct {
	label   *ir.Label
	labelIx int // index into function.Labels, -1 if none
	start   int
	end     int
	isEntry bool
	exit    labeledExit
}

// Build constructs the CFG for fn, a member of prog. Referencing an
// unknown label is fatal: it indicates a malformed input IR, per the
// contract the external shim (or, in this repository, internal/asm)
// is required to uphold.
func Build(prog *ir.Program, fn *ir.Function) (*CFG, error) {
	items := fn.Items(prog)

	var blocks []buildingBlock
	openIdx := -1
	entryIdx := -1

	openBlock := func(start int) int {
		blocks = append(blocks, buildingBlock{start: start, end: start, labelIx: -1})
		idx := len(blocks) - 1
		if entryIdx == -1 {
			entryIdx = idx
		}
		return idx
	}

	for _, item := range items {
		if item.IsLabel {
			// A label finalizes the currently open block if it has
			// instructions or a label, then opens a new block and
			// assigns the label to it. An open block with neither is
			// reused rather than finalized. Two labels at the same
			// position therefore get two blocks: the first stays empty
			// and falls through into the second.
			if openIdx != -1 {
				b := &blocks[openIdx]
				if b.end > b.start || b.label != nil {
					openIdx = -1
				}
			}
			if openIdx == -1 {
				openIdx = openBlock(item.InstrIndex)
			}
			blocks[openIdx].label = &item.Label
			blocks[openIdx].labelIx = item.LabelIndex
			continue
		}

		if openIdx == -1 {
			openIdx = openBlock(item.InstrIndex)
		}
		blocks[openIdx].end = item.InstrIndex + 1

		switch item.Instr.Op {
		case ir.OpJmp:
			blocks[openIdx].exit = labeledExit{kind: labeledUnconditional, target: item.Instr.Labels[0]}
			openIdx = -1
		case ir.OpBr:
			blocks[openIdx].exit = labeledExit{kind: labeledConditional, ifTrue: item.Instr.Labels[0], ifFalse: item.Instr.Labels[1]}
			openIdx = -1
		case ir.OpRet:
			blocks[openIdx].exit = labeledExit{kind: labeledReturn}
			openIdx = -1
		}
	}

	if len(blocks) == 0 {
		// Empty function: one empty entry block, falls through to
		// nothing and therefore resolves to Return below.
		openBlock(0)
		blocks[0].isEntry = true
	}
	if entryIdx >= 0 {
		blocks[entryIdx].isEntry = true
	}

	vertices := make([]BasicBlock, len(blocks))
	labelToBlock := make(map[int]BlockIdx, len(blocks))
	for i, b := range blocks {
		vertices[i] = BasicBlock{Range: [2]int{b.start, b.end}, IsEntry: b.isEntry}
		if b.labelIx >= 0 {
			vertices[i].Label = &fn.Labels[b.labelIx]
			labelToBlock[b.labelIx] = BlockIdx(i)
		}
	}

	c := &CFG{
		Function: fn,
		Program:  prog,
		Vertices: vertices,
		Edges:    make(map[BlockIdx]Exit, len(vertices)),
		RevEdges: make(map[BlockIdx][]BlockIdx, len(vertices)),
	}
	for i, b := range blocks {
		if b.isEntry {
			c.Entry = BlockIdx(i)
		}
	}

	for i, b := range blocks {
		from := BlockIdx(i)
		switch b.exit.kind {
		case labeledFallthrough:
			if i+1 < len(blocks) {
				c.Edges[from] = Exit{Kind: ExitUnconditional, Target: BlockIdx(i + 1)}
			} else {
				c.Edges[from] = Exit{Kind: ExitReturn}
			}
		case labeledUnconditional:
			target, ok := labelToBlock[int(b.exit.target)]
			if !ok {
				return nil, fmt.Errorf("cfg: build %s: unresolved jmp target label index %d", fn.Name, b.exit.target)
			}
			c.Edges[from] = Exit{Kind: ExitUnconditional, Target: target}
		case labeledConditional:
			ifTrue, ok := labelToBlock[int(b.exit.ifTrue)]
			if !ok {
				return nil, fmt.Errorf("cfg: build %s: unresolved br true-target label index %d", fn.Name, b.exit.ifTrue)
			}
			ifFalse, ok := labelToBlock[int(b.exit.ifFalse)]
			if !ok {
				return nil, fmt.Errorf("cfg: build %s: unresolved br false-target label index %d", fn.Name, b.exit.ifFalse)
			}
			c.Edges[from] = Exit{Kind: ExitConditional, IfTrue: ifTrue, IfFalse: ifFalse}
		case labeledReturn:
			c.Edges[from] = Exit{Kind: ExitReturn}
		}
	}

	for from, exit := range c.Edges {
		switch exit.Kind {
		case ExitUnconditional:
			c.RevEdges[exit.Target] = append(c.RevEdges[exit.Target], from)
		case ExitConditional:
			c.RevEdges[exit.IfTrue] = append(c.RevEdges[exit.IfTrue], from)
			c.RevEdges[exit.IfFalse] = append(c.RevEdges[exit.IfFalse], from)
		}
	}

	return c, nil
}
