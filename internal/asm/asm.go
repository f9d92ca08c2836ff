// Package asm implements a human-readable/writable textual form of a
// dflow Program: the stand-in for a structured (e.g. JSON) wire
// format, letting tests and the command line construct programs
// directly without a surrounding parser/name-resolution pipeline.
//
// The format looks like this (indentation is arbitrary, section order
// is not):
//
//	program:
//
//	function: fib int n:int
//		code:
//			one:int = const 1
//			v1:bool = le n one
//			br v1 base rec
//		base:
//			ret n
//		rec:
//			v2:int = sub n one
//			v3:int = call fib v2
//			two:int = const 2
//			v4:int = sub n two
//			v5:int = call fib v4
//			v6:int = add v3 v5
//			ret v6
//
// Operands are always variable names; literal values are introduced
// with const.
package asm

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/mna/dflow/lang/ir"
)

var fnSections = map[string]bool{"code:": true, "function:": true}

type lineTokens struct {
	line   int
	fields []string
}

func tokenizeLines(src []byte) []lineTokens {
	var out []lineTokens
	sc := bufio.NewScanner(bytes.NewReader(src))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		for i, f := range fields {
			if strings.HasPrefix(f, "#") {
				fields = fields[:i]
				break
			}
		}
		if len(fields) == 0 {
			continue
		}
		out = append(out, lineTokens{line: lineNo, fields: fields})
	}
	return out
}

// Parse reads a Program from its textual assembly form. It collects
// every malformed line instead of stopping at the first: the returned
// error, if non-nil, is always an ErrorList.
func Parse(src []byte) (*ir.Program, error) {
	lines := tokenizeLines(src)
	var errs ErrorList

	if len(lines) == 0 || !strings.EqualFold(lines[0].fields[0], "program:") {
		errs.Add(1, "expected 'program:' header")
		return nil, errs.Err()
	}
	lines = lines[1:]

	// Pre-scan function names so a call may reference a function
	// declared later in the source. funcNames assigns dense indices in
	// first-seen order, which is also the order functions are appended
	// to prog.Functions below, so the interned index doubles as the
	// FunctionIdx.
	funcNames := ir.NewInterner()
	for _, lt := range lines {
		if strings.EqualFold(lt.fields[0], "function:") && len(lt.fields) >= 2 {
			funcNames.Intern(lt.fields[1])
		}
	}

	p := &parser{funcNames: funcNames}
	prog := &ir.Program{}
	for len(lines) > 0 {
		if !strings.EqualFold(lines[0].fields[0], "function:") {
			errs.Add(lines[0].line, "expected 'function:', got %q", lines[0].fields[0])
			break
		}
		var fn ir.Function
		fn, lines = p.function(prog, lines, &errs)
		prog.Functions = append(prog.Functions, fn)
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}
	return prog, nil
}

type parser struct {
	funcNames *ir.Interner
}

// function parses one function block starting at lines[0] (the
// "function:" header) and returns the built Function plus the
// remaining, unconsumed lines.
func (p *parser) function(prog *ir.Program, lines []lineTokens, errs *ErrorList) (ir.Function, []lineTokens) {
	header := lines[0]
	lines = lines[1:]

	var fn ir.Function
	if len(header.fields) < 3 {
		errs.Add(header.line, "function header needs at least a name and a return type")
		return fn, skipToNextFunction(lines)
	}
	fn.Name = header.fields[1]

	fb := &funcBuilder{names: ir.NewInterner()}
	if !strings.EqualFold(header.fields[2], "void") {
		t, err := typeFromString(header.fields[2])
		if err != nil {
			errs.Add(header.line, "%s", err)
		} else {
			fn.ReturnType = &t
		}
	}
	for _, tok := range header.fields[3:] {
		name, typStr, ok := splitNameType(tok)
		if !ok {
			errs.Add(header.line, "invalid parameter %q: want name:type", tok)
			continue
		}
		t, err := typeFromString(typStr)
		if err != nil {
			errs.Add(header.line, "%s", err)
			continue
		}
		fn.Parameters = append(fn.Parameters, fb.declare(name, t))
	}

	if len(lines) == 0 || !strings.EqualFold(lines[0].fields[0], "code:") {
		errs.Add(header.line, "function %s: expected 'code:' section", fn.Name)
		return fn, skipToNextFunction(lines)
	}
	lines = lines[1:]

	var body []lineTokens
	for len(lines) > 0 && !fnSections[strings.ToLower(lines[0].fields[0])] {
		body = append(body, lines[0])
		lines = lines[1:]
	}

	base := len(prog.Instructions)
	instrs, labels := p.code(fb, body, errs)
	prog.Instructions = append(prog.Instructions, instrs...)
	fn.Range = [2]int{base, base + len(instrs)}
	fn.Labels = labels

	return fn, lines
}

func skipToNextFunction(lines []lineTokens) []lineTokens {
	for len(lines) > 0 && !strings.EqualFold(lines[0].fields[0], "function:") {
		lines = lines[1:]
	}
	return lines
}

// code builds the flat instruction slice and label table for one
// function body. A first pass records every label's offset (the index
// of the instruction immediately following it), interning each name
// into labelNames in the same first-seen order the label table itself
// is built in, so the interned index doubles as the index into
// labels; a second pass builds the instructions, resolving jmp/br
// targets against labelNames so forward references work.
func (p *parser) code(fb *funcBuilder, body []lineTokens, errs *ErrorList) ([]ir.Instruction, []ir.Label) {
	var labels []ir.Label
	labelNames := ir.NewInterner()
	instrCount := 0
	for _, lt := range body {
		if isLabelLine(lt.fields) {
			name := strings.TrimSuffix(lt.fields[0], ":")
			labelNames.Intern(name)
			labels = append(labels, ir.Label{Name: name, Offset: instrCount})
			continue
		}
		instrCount++
	}

	instrs := make([]ir.Instruction, 0, instrCount)
	for _, lt := range body {
		if isLabelLine(lt.fields) {
			continue
		}
		if instr, ok := p.instruction(fb, lt, labelNames, errs); ok {
			instrs = append(instrs, instr)
		}
	}
	return instrs, labels
}

func isLabelLine(fields []string) bool {
	return len(fields) == 1 && strings.HasSuffix(fields[0], ":") && !strings.EqualFold(fields[0], "code:")
}

func (p *parser) instruction(fb *funcBuilder, lt lineTokens, labelNames *ir.Interner, errs *ErrorList) (ir.Instruction, bool) {
	fields := lt.fields

	if len(fields) >= 3 && fields[1] == "=" {
		return p.assignment(fb, lt, labelNames, errs)
	}

	switch fields[0] {
	case "nop":
		return ir.Instruction{Op: ir.OpNop}, true
	case "print":
		return ir.Instruction{Op: ir.OpPrint, Operands: p.operands(fb, fields[1:], lt.line, errs)}, true
	case "jmp":
		if len(fields) != 2 {
			errs.Add(lt.line, "jmp takes exactly one label")
			return ir.Instruction{}, false
		}
		idx, ok := labelNames.Lookup(fields[1])
		if !ok {
			errs.Add(lt.line, "jmp to undeclared label %q", fields[1])
			return ir.Instruction{}, false
		}
		return ir.Instruction{Op: ir.OpJmp, Labels: []ir.LabelIdx{ir.LabelIdx(idx)}}, true
	case "br":
		if len(fields) != 4 {
			errs.Add(lt.line, "br takes a condition and two labels")
			return ir.Instruction{}, false
		}
		ifTrue, ok1 := labelNames.Lookup(fields[2])
		ifFalse, ok2 := labelNames.Lookup(fields[3])
		if !ok1 || !ok2 {
			errs.Add(lt.line, "br to undeclared label")
			return ir.Instruction{}, false
		}
		return ir.Instruction{
			Op:       ir.OpBr,
			Operands: p.operands(fb, fields[1:2], lt.line, errs),
			Labels:   []ir.LabelIdx{ir.LabelIdx(ifTrue), ir.LabelIdx(ifFalse)},
		}, true
	case "ret":
		return ir.Instruction{Op: ir.OpRet, Operands: p.operands(fb, fields[1:], lt.line, errs)}, true
	case "call":
		if len(fields) < 2 {
			errs.Add(lt.line, "call takes a function name")
			return ir.Instruction{}, false
		}
		fnIdx, ok := p.funcNames.Lookup(fields[1])
		if !ok {
			errs.Add(lt.line, "call to undeclared function %q", fields[1])
			return ir.Instruction{}, false
		}
		return ir.Instruction{Op: ir.OpCall, Func: ir.FunctionIdx(fnIdx), HasFunc: true, Operands: p.operands(fb, fields[2:], lt.line, errs)}, true
	default:
		errs.Add(lt.line, "unknown statement %q", fields[0])
		return ir.Instruction{}, false
	}
}

func (p *parser) assignment(fb *funcBuilder, lt lineTokens, labelNames *ir.Interner, errs *ErrorList) (ir.Instruction, bool) {
	fields := lt.fields
	destName, destType, ok := splitNameType(fields[0])
	if !ok {
		errs.Add(lt.line, "invalid destination %q: want name:type", fields[0])
		return ir.Instruction{}, false
	}
	typ, err := typeFromString(destType)
	if err != nil {
		errs.Add(lt.line, "%s", err)
		return ir.Instruction{}, false
	}
	dest := fb.declare(destName, typ)

	op, ok := lookupOp(fields[2])
	if !ok {
		errs.Add(lt.line, "unknown opcode %q", fields[2])
		return ir.Instruction{}, false
	}
	rest := fields[3:]

	instr := ir.Instruction{Op: op, Dest: &dest}
	switch op {
	case ir.OpConst:
		if len(rest) != 1 {
			errs.Add(lt.line, "const takes exactly one literal value")
			return ir.Instruction{}, false
		}
		if typ == ir.TypeBool {
			b, err := strconv.ParseBool(rest[0])
			if err != nil {
				errs.Add(lt.line, "invalid bool literal %q", rest[0])
				return ir.Instruction{}, false
			}
			instr.ConstBool = b
		} else {
			n, err := strconv.ParseInt(rest[0], 10, 64)
			if err != nil {
				errs.Add(lt.line, "invalid int literal %q", rest[0])
				return ir.Instruction{}, false
			}
			instr.ConstInt = n
		}
	case ir.OpCall:
		if len(rest) == 0 {
			errs.Add(lt.line, "call takes a function name")
			return ir.Instruction{}, false
		}
		fnIdx, ok := p.funcNames.Lookup(rest[0])
		if !ok {
			errs.Add(lt.line, "call to undeclared function %q", rest[0])
			return ir.Instruction{}, false
		}
		instr.Func, instr.HasFunc = ir.FunctionIdx(fnIdx), true
		instr.Operands = p.operands(fb, rest[1:], lt.line, errs)
	default:
		instr.Operands = p.operands(fb, rest, lt.line, errs)
	}
	return instr, true
}

func (p *parser) operands(fb *funcBuilder, names []string, line int, errs *ErrorList) []ir.Variable {
	vars := make([]ir.Variable, 0, len(names))
	for _, n := range names {
		v, ok := fb.ref(n)
		if !ok {
			errs.Add(line, "undefined variable %q", n)
			continue
		}
		vars = append(vars, v)
	}
	return vars
}

func lookupOp(name string) (ir.Op, bool) {
	switch name {
	case "const":
		return ir.OpConst, true
	case "add":
		return ir.OpAdd, true
	case "sub":
		return ir.OpSub, true
	case "mul":
		return ir.OpMul, true
	case "div":
		return ir.OpDiv, true
	case "eq":
		return ir.OpEq, true
	case "lt":
		return ir.OpLt, true
	case "gt":
		return ir.OpGt, true
	case "le":
		return ir.OpLe, true
	case "ge":
		return ir.OpGe, true
	case "not":
		return ir.OpNot, true
	case "and":
		return ir.OpAnd, true
	case "or":
		return ir.OpOr, true
	case "id":
		return ir.OpID, true
	case "call":
		return ir.OpCall, true
	default:
		return 0, false
	}
}

func splitNameType(tok string) (name, typ string, ok bool) {
	i := strings.IndexByte(tok, ':')
	if i < 0 {
		return "", "", false
	}
	return tok[:i], tok[i+1:], true
}

func typeFromString(s string) (ir.Type, error) {
	switch s {
	case "int":
		return ir.TypeInt, nil
	case "bool":
		return ir.TypeBool, nil
	default:
		return 0, fmt.Errorf("unknown type %q", s)
	}
}

// funcBuilder tracks the non-SSA variable table of one function being
// parsed: a name may be declared once (as a parameter or as the
// destination of its first assignment) and then redefined by later
// assignments, all sharing the same Variable.ID — the dataflow
// analyses need repeated definitions of the same id to observe
// anything interesting across loop iterations. names interns each
// variable name to its dense ID in first-seen order; types is indexed
// by that same ID, recording the type the name was first declared
// with.
type funcBuilder struct {
	names *ir.Interner
	types []ir.Type
}

func (fb *funcBuilder) declare(name string, typ ir.Type) ir.Variable {
	if id, ok := fb.names.Lookup(name); ok {
		return ir.Variable{ID: id, Type: fb.types[id]}
	}
	id := fb.names.Intern(name)
	fb.types = append(fb.types, typ)
	return ir.Variable{ID: id, Type: typ}
}

func (fb *funcBuilder) ref(name string) (ir.Variable, bool) {
	id, ok := fb.names.Lookup(name)
	if !ok {
		return ir.Variable{}, false
	}
	return ir.Variable{ID: id, Type: fb.types[id]}, true
}
