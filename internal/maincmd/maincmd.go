package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"runtime"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/mna/mainer"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/mna/dflow/internal/asm"
	"github.com/mna/dflow/lang/analysis"
	"github.com/mna/dflow/lang/cfg"
	"github.com/mna/dflow/lang/dataflow"
	"github.com/mna/dflow/lang/ir"
	"github.com/mna/dflow/lang/scc"
)

const binName = "dflow"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] <command> <path>
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] <command> <path>
       %[1]s -h|--help
       %[1]s -v|--version

Dataflow analysis infrastructure over the small three-address IR read
by internal/asm: control-flow graphs, strongly-connected-component
condensation, and two analyses (liveness, reaching definitions), each
runnable sequentially or across a worker pool.

The <command> can be one of:
       cfg                       Print the control-flow graph of every
                                 function in <path>.
       scc                       Print the strongly-connected-component
                                 condensation of every function in <path>.
       live                      Run liveness analysis and print, per
                                 block, the variable ids live on entry.
       reach                     Run reaching-definitions analysis and
                                 print, per block, the instruction
                                 offsets whose definitions reach it.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.
       --func NAME               Only process the named function
                                 (default: every function in the file).
       --threads N               Worker count for the parallel solver
                                 (default: GOMAXPROCS; also DFLOW_THREADS).
       --seq                     Force the sequential solver, ignoring
                                 --threads (also DFLOW_SEQ=1).

More information on the %[1]s repository:
       https://github.com/mna/dflow
`, binName)
)

// envConfig holds the subset of Cmd's configuration that may also be
// supplied via the environment, read separately from mainer's own
// flag parsing so a flag explicitly set on the command line always
// wins over its environment counterpart.
type envConfig struct {
	Threads int  `env:"DFLOW_THREADS"`
	Seq     bool `env:"DFLOW_SEQ"`
}

type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`

	Func    string `flag:"func"`
	Threads int    `flag:"threads"`
	Seq     bool   `flag:"seq"`

	args  []string
	flags map[string]bool
	cmdFn func(context.Context, mainer.Stdio, []string) error
}

func (c *Cmd) SetArgs(args []string) {
	c.args = args
}

func (c *Cmd) SetFlags(flags map[string]bool) {
	c.flags = flags
}

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}

	if len(c.args) == 0 {
		return errors.New("no command specified")
	}

	cmdName := c.args[0]
	commands := buildCmds(c)
	c.cmdFn = commands[cmdName]
	if c.cmdFn == nil {
		return fmt.Errorf("unknown command: %s", cmdName)
	}
	if len(c.args[1:]) != 1 {
		return fmt.Errorf("%s: exactly one file must be provided", cmdName)
	}

	var envCfg envConfig
	if err := env.Parse(&envCfg); err != nil {
		return fmt.Errorf("invalid environment configuration: %w", err)
	}
	if !c.flags["threads"] && envCfg.Threads > 0 {
		c.Threads = envCfg.Threads
	}
	if !c.flags["seq"] && envCfg.Seq {
		c.Seq = true
	}
	if c.Threads <= 0 {
		c.Threads = runtime.GOMAXPROCS(0)
	}

	return nil
}

func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{
		EnvVars:   false,
		EnvPrefix: binName + "_",
	}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success

	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	if err := c.cmdFn(ctx, stdio, c.args[1:]); err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
		return mainer.Failure
	}
	return mainer.Success
}

// valid commands are those that take a context.Context, a mainer.Stdio
// and a slice of strings as input, and return an error as output.
func buildCmds(v interface{}) map[string]func(context.Context, mainer.Stdio, []string) error {
	cmds := make(map[string]func(context.Context, mainer.Stdio, []string) error)

	vv := reflect.ValueOf(v)
	vt := vv.Type()
	for i := 0; i < vt.NumMethod(); i++ {
		m := vt.Method(i)
		mt := m.Type

		if mt.NumIn() != 4 || mt.NumOut() != 1 {
			continue
		}
		if rt := mt.Out(0); rt.Kind() != reflect.Interface || rt.Name() != "error" {
			continue
		}
		if p0 := mt.In(0); p0.Kind() != reflect.Ptr || p0.Elem().Name() != "Cmd" {
			continue
		}
		if p1 := mt.In(1); p1.Kind() != reflect.Interface || p1.Name() != "Context" {
			continue
		}
		if p2 := mt.In(2); p2.Kind() != reflect.Struct || p2.Name() != "Stdio" {
			continue
		}
		if p3 := mt.In(3); p3.Kind() != reflect.Slice || p3.Elem().Name() != "string" {
			continue
		}
		cmds[strings.ToLower(m.Name)] = vv.Method(i).Interface().(func(context.Context, mainer.Stdio, []string) error)
	}
	return cmds
}

func (c *Cmd) loadProgram(path string) (*ir.Program, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return asm.Parse(b)
}

func (c *Cmd) functions(prog *ir.Program) ([]*ir.Function, error) {
	if c.Func == "" {
		fns := make([]*ir.Function, len(prog.Functions))
		for i := range prog.Functions {
			fns[i] = &prog.Functions[i]
		}
		return fns, nil
	}
	for i := range prog.Functions {
		if prog.Functions[i].Name == c.Func {
			return []*ir.Function{&prog.Functions[i]}, nil
		}
	}
	return nil, fmt.Errorf("no such function: %s", c.Func)
}

// Cfg prints the control-flow graph of every selected function.
func (c *Cmd) Cfg(_ context.Context, stdio mainer.Stdio, args []string) error {
	prog, err := c.loadProgram(args[0])
	if err != nil {
		return err
	}
	fns, err := c.functions(prog)
	if err != nil {
		return err
	}

	for _, fn := range fns {
		g, err := cfg.Build(prog, fn)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdio.Stdout, "function %s:\n", fn.Name)
		for i := range g.Vertices {
			b := cfg.BlockIdx(i)
			marker := ""
			if b == g.Entry {
				marker = " (entry)"
			}
			fmt.Fprintf(stdio.Stdout, "  block %d%s: %d instruction(s)\n", b, marker, g.Vertices[i].NumInstructions())
			succs := append([]cfg.BlockIdx(nil), g.Successors(b)...)
			slices.Sort(succs)
			for _, s := range succs {
				fmt.Fprintf(stdio.Stdout, "    -> block %d\n", s)
			}
		}
	}
	return nil
}

// Scc prints the strongly-connected-component condensation of every
// selected function.
func (c *Cmd) Scc(_ context.Context, stdio mainer.Stdio, args []string) error {
	prog, err := c.loadProgram(args[0])
	if err != nil {
		return err
	}
	fns, err := c.functions(prog)
	if err != nil {
		return err
	}

	for _, fn := range fns {
		g, err := cfg.Build(prog, fn)
		if err != nil {
			return err
		}
		cc := scc.Build(g)

		fmt.Fprintf(stdio.Stdout, "function %s:\n", fn.Name)
		for ci, comp := range cc.Components {
			blocks := append([]cfg.BlockIdx(nil), comp.Vertices...)
			slices.Sort(blocks)
			fmt.Fprintf(stdio.Stdout, "  component %d (entry block %d): blocks %v\n", ci, comp.Entry, blocks)
		}
		for ci := range cc.Components {
			idx := scc.ComponentIdx(ci)
			succs := append([]scc.ComponentIdx(nil), cc.Edges[idx]...)
			slices.Sort(succs)
			for _, s := range succs {
				fmt.Fprintf(stdio.Stdout, "    component %d -> component %d\n", idx, s)
			}
		}
	}
	return nil
}

// Live runs liveness analysis over every selected function.
func (c *Cmd) Live(_ context.Context, stdio mainer.Stdio, args []string) error {
	return c.runAnalysis(stdio, args[0], "live")
}

// Reach runs reaching-definitions analysis over every selected
// function.
func (c *Cmd) Reach(_ context.Context, stdio mainer.Stdio, args []string) error {
	return c.runAnalysis(stdio, args[0], "reach")
}

func (c *Cmd) runAnalysis(stdio mainer.Stdio, path, kind string) error {
	prog, err := c.loadProgram(path)
	if err != nil {
		return err
	}
	fns, err := c.functions(prog)
	if err != nil {
		return err
	}

	for _, fn := range fns {
		g, err := cfg.Build(prog, fn)
		if err != nil {
			return err
		}

		var result map[cfg.BlockIdx]*dataflow.BitSet
		if c.Seq {
			if kind == "live" {
				result = analysis.Liveness(g)
			} else {
				result = analysis.ReachingDef(g)
			}
		} else {
			cc := scc.Build(g)
			if kind == "live" {
				result = analysis.LivenessParallel(cc, c.Threads)
			} else {
				result = analysis.ReachingDefParallel(cc, c.Threads)
			}
		}

		fmt.Fprintf(stdio.Stdout, "function %s:\n", fn.Name)
		blocks := maps.Keys(result)
		slices.Sort(blocks)
		for _, b := range blocks {
			label := ""
			if l := g.Vertices[b].Label; l != nil {
				label = " (" + l.Name + ")"
			}
			fmt.Fprintf(stdio.Stdout, "  block %d%s: %s\n", b, label, formatBitSet(result[b]))
		}
	}
	return nil
}

func formatBitSet(b *dataflow.BitSet) string {
	var ids []string
	for i, e := b.NextSet(0); e; i, e = b.NextSet(i + 1) {
		ids = append(ids, fmt.Sprintf("%d", i))
	}
	return "{" + strings.Join(ids, ", ") + "}"
}
