package asm

import (
	"fmt"
	"sort"
	"strings"
)

// Error records one malformed line, with its 1-based line number in
// the source text.
type Error struct {
	Line int
	Msg  string
}

func (e Error) Error() string { return fmt.Sprintf("line %d: %s", e.Line, e.Msg) }

// ErrorList collects every error found while parsing a program,
// modeled on go/scanner.ErrorList: a malformed line does not stop the
// parse, so a caller sees every problem in a source in one pass rather
// than fixing and re-running one error at a time.
type ErrorList []Error

// Add appends a formatted error at line.
func (l *ErrorList) Add(line int, format string, args ...any) {
	*l = append(*l, Error{Line: line, Msg: fmt.Sprintf(format, args...)})
}

// Err returns l as an error, or nil if l is empty.
func (l ErrorList) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}

func (l ErrorList) Error() string {
	sort.SliceStable(l, func(i, j int) bool { return l[i].Line < l[j].Line })
	var sb strings.Builder
	for i, e := range l {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(e.Error())
	}
	return sb.String()
}
