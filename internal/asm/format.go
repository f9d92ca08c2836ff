package asm

import (
	"bytes"
	"fmt"

	"github.com/mna/dflow/lang/ir"
)

// Format renders prog back to its textual assembly form. Format and
// Parse round-trip: Parse(Format(prog)) builds a Program equivalent to
// prog (variable ids may differ if the source used names Parse
// wouldn't itself choose, but Format always emits vN names).
func Format(prog *ir.Program) []byte {
	var buf bytes.Buffer
	buf.WriteString("program:\n")
	for i := range prog.Functions {
		buf.WriteByte('\n')
		formatFunction(&buf, prog, &prog.Functions[i])
	}
	return buf.Bytes()
}

func formatFunction(buf *bytes.Buffer, prog *ir.Program, fn *ir.Function) {
	fmt.Fprintf(buf, "function: %s ", fn.Name)
	if fn.ReturnType != nil {
		buf.WriteString(fn.ReturnType.String())
	} else {
		buf.WriteString("void")
	}
	for _, p := range fn.Parameters {
		fmt.Fprintf(buf, " v%d:%s", p.ID, p.Type)
	}
	buf.WriteString("\n\tcode:\n")

	instrs := prog.FunctionInstructions(fn)
	li := 0
	for i := 0; i <= len(instrs); i++ {
		for li < len(fn.Labels) && fn.Labels[li].Offset == i {
			fmt.Fprintf(buf, "\t%s:\n", fn.Labels[li].Name)
			li++
		}
		if i == len(instrs) {
			break
		}
		formatInstruction(buf, prog, fn, instrs[i])
	}
}

func formatInstruction(buf *bytes.Buffer, prog *ir.Program, fn *ir.Function, instr ir.Instruction) {
	buf.WriteString("\t\t")
	if instr.Dest != nil {
		fmt.Fprintf(buf, "v%d:%s = %s", instr.Dest.ID, instr.Dest.Type, instr.Op)
	} else {
		buf.WriteString(instr.Op.String())
	}

	switch instr.Op {
	case ir.OpConst:
		if instr.Dest.Type == ir.TypeBool {
			fmt.Fprintf(buf, " %t", instr.ConstBool)
		} else {
			fmt.Fprintf(buf, " %d", instr.ConstInt)
		}
	case ir.OpJmp:
		fmt.Fprintf(buf, " %s", fn.Labels[instr.Labels[0]].Name)
	case ir.OpBr:
		fmt.Fprintf(buf, " v%d %s %s", instr.Operands[0].ID, fn.Labels[instr.Labels[0]].Name, fn.Labels[instr.Labels[1]].Name)
	case ir.OpCall:
		fmt.Fprintf(buf, " %s", prog.Functions[instr.Func].Name)
		for _, op := range instr.Operands {
			fmt.Fprintf(buf, " v%d", op.ID)
		}
	default:
		for _, op := range instr.Operands {
			fmt.Fprintf(buf, " v%d", op.ID)
		}
	}
	buf.WriteByte('\n')
}
