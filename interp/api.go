// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

// Package interp implements an interpreter that executes shell
// programs. It aims for POSIX behavior with the common bash
// extensions.
package interp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/posh-shell/posh/expand"
	"github.com/posh-shell/posh/syntax"
)

// A Runner interprets shell programs. It can be reused, but it is not
// safe for concurrent use. Use [New] to build a new Runner.
//
// Note that writes to Stdout and Stderr may be concurrent if
// background commands are used, so an [io.Writer] that is not safe
// for concurrent use needs to be wrapped.
type Runner struct {
	// Env specifies the initial environment for the interpreter,
	// which must not be nil.
	Env expand.Environ

	// Dir specifies the working directory of the command, which must
	// be an absolute path.
	Dir string

	// Params are the current positional parameters.
	Params []string

	// scopes is the variable scope stack: the first entry is the
	// global scope, and inner scopes stack on top of it during
	// function calls and sourced files.
	scopes []*scope

	// Separate maps, since a name can be both a variable and a
	// function at once.
	Funcs map[string]*syntax.Stmt

	alias map[string]alias
	traps map[string]string
	opts  map[string]bool

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// origStdout is the standard output the runner started with,
	// before redirections; process substitutions write there.
	origStdout io.Writer

	// files tracks file descriptors above 2 opened via redirections,
	// passed along to spawned commands.
	files map[int]*os.File

	ecfg *expand.Config
	ectx context.Context

	jobs *JobManager
	sig  *SignalManager

	// ttyFile and shellPgid are set when job control is active: the
	// controlling terminal and the shell's own process group.
	ttyFile   *os.File
	shellPgid int

	interactive bool
	filename    string
	tempDir     string

	shellPID  int
	lastBgPID int

	exit     exitStatus
	lastExit exitStatus
	// lastExpandExit is the status of the last command substitution,
	// surfaced when a statement has no command of its own.
	lastExpandExit exitStatus

	// >0 to break or continue out of that many enclosing loops
	breakEnclosing, contnEnclosing int

	inLoop       bool
	inFunc       bool
	inSource     bool
	handlingTrap bool

	// noErrExit suppresses errexit, as within an if condition.
	noErrExit bool

	// keepRedirs makes the current redirection context permanent, as
	// the exec builtin without arguments requires.
	keepRedirs bool

	// curSrc is the source text of the script being run, used for
	// job descriptions and xtrace.
	curSrc string

	// parent is set on background subshells, so that the first
	// process they spawn can publish $! to the parent shell.
	parent *Runner

	usedNew     bool
	didReset    bool
	ranExitTrap bool
}

// exitStatus is the result of running a command, including the
// control-flow state that propagates through the executor.
type exitStatus struct {
	code      int
	returning bool
	exiting   bool
	err       error // fatal error that stops the whole run
}

func (e exitStatus) ok() bool { return e.code == 0 && e.err == nil }

func (e *exitStatus) oneIf(b bool) {
	if b {
		e.code = 1
	} else {
		e.code = 0
	}
}

func (e *exitStatus) fatal(err error) {
	if e.err == nil {
		e.err = err
	}
	if e.code == 0 {
		e.code = 1
	}
	e.exiting = true
}

// ExitStatus is a non-zero status code resulting from running a shell
// node, returned as an error by [Runner.Run].
type ExitStatus uint8

func (s ExitStatus) Error() string { return fmt.Sprintf("exit status %d", s) }

// NewExitStatus creates an error which contains the specified exit
// status code.
func NewExitStatus(status uint8) error {
	return ExitStatus(status)
}

// IsExitStatus checks whether error contains an exit status and
// returns it if it does.
func IsExitStatus(err error) (status uint8, ok bool) {
	var s ExitStatus
	if errors.As(err, &s) {
		return uint8(s), true
	}
	return 0, false
}

// RunnerOption can be passed to [New] to alter a Runner's behaviour.
type RunnerOption func(*Runner) error

// New creates a new Runner, applying a number of options. If no
// options are given, the Runner runs the current shell's environment
// in the current directory with the standard file descriptors.
func New(opts ...RunnerOption) (*Runner, error) {
	r := &Runner{
		usedNew:  true,
		shellPID: os.Getpid(),
	}
	r.dirtyDefaults()
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.Env == nil {
		r.Env = expand.ListEnviron(os.Environ()...)
	}
	if r.Dir == "" {
		dir, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("could not get current dir: %w", err)
		}
		r.Dir = dir
	}
	if r.stdout == nil || r.stderr == nil {
		if err := StdIO(os.Stdin, os.Stdout, os.Stderr)(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Runner) dirtyDefaults() {
	r.opts = map[string]bool{}
	for _, name := range shellOptNames {
		r.opts[name] = false
	}
	r.opts["monitor"] = false
	r.tempDir = os.TempDir()
}

// shellOptNames is the set of options settable via set -o and the
// corresponding short flags where one exists.
var shellOptNames = []string{
	"allexport", "errexit", "noexec", "noglob", "nounset", "xtrace",
	"pipefail", "noclobber", "monitor", "notify", "ignoreeof", "posix",
	"histexpand", "expand_aliases", "globstar", "nocaseglob", "nullglob",
}

var optLetters = map[byte]string{
	'a': "allexport",
	'e': "errexit",
	'n': "noexec",
	'f': "noglob",
	'u': "nounset",
	'x': "xtrace",
	'C': "noclobber",
	'm': "monitor",
	'b': "notify",
	'H': "histexpand",
}

// Env sets the interpreter's environment. If nil, a copy of the
// current process's environment is used.
func Env(env expand.Environ) RunnerOption {
	return func(r *Runner) error {
		r.Env = env
		return nil
	}
}

// Dir sets the interpreter's working directory. If empty, the
// process's current directory is used.
func Dir(path string) RunnerOption {
	return func(r *Runner) error {
		if path == "" {
			r.Dir = ""
			return nil
		}
		path = absPath(r.Dir, path)
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("could not stat: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", path)
		}
		r.Dir = path
		return nil
	}
}

// StdIO configures an interpreter's standard input, standard output,
// and standard error. If out or err are nil, they default to a writer
// that discards the output.
func StdIO(in io.Reader, out, err io.Writer) RunnerOption {
	return func(r *Runner) error {
		r.stdin = in
		if out == nil {
			out = io.Discard
		}
		r.stdout = out
		r.origStdout = out
		if err == nil {
			err = io.Discard
		}
		r.stderr = err
		return nil
	}
}

// Interactive marks the Runner as an interactive shell: job control
// is enabled when stdin is a terminal, completed background jobs are
// reported, and errors do not abort the session.
func Interactive(enabled bool) RunnerOption {
	return func(r *Runner) error {
		r.interactive = enabled
		return nil
	}
}

// Params populates the shell options and parameters, much like the
// invocation of a shell program. The given arguments are parsed like
// "set" flags: "-e" enables an option, "+e" disables it, "-o name"
// uses the long form, and remaining words become the positional
// parameters. "--" ends flag parsing.
func Params(args ...string) RunnerOption {
	return func(r *Runner) error {
		fp := flagParser{remaining: args}
		for fp.more() {
			flag := fp.flag()
			if flag == "-" {
				// TODO: implement "The -x and -v options are turned off."
				if args := fp.args(); len(args) > 0 {
					r.Params = args
				}
				return nil
			}
			enable := flag[0] == '-'
			if flag[1] == 'o' {
				name := fp.value()
				if name == "" && enable {
					for _, name := range shellOptNames {
						r.outf("%s\t%s\n", name, onOff(r.opts[name]))
					}
					continue
				}
				if name == "" {
					for _, name := range shellOptNames {
						r.outf("set %co %s\n", flag[0], name)
					}
					continue
				}
				if _, known := r.opts[name]; !known {
					return fmt.Errorf("invalid option: %q", name)
				}
				r.opts[name] = enable
				continue
			}
			name, known := optLetters[flag[1]]
			if !known {
				return fmt.Errorf("invalid option: %q", flag)
			}
			r.opts[name] = enable
		}
		if args := fp.args(); len(args) > 0 || fp.sawDashDash {
			r.Params = args
		}
		return nil
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// flagParser walks a list of command arguments, splitting grouped
// short flags such as -ex into their parts.
type flagParser struct {
	current   string
	remaining []string

	// sawDashDash records a "--" terminator, which also clears the
	// positional parameters when no words follow it.
	sawDashDash bool
}

func (p *flagParser) more() bool {
	if p.current != "" {
		return true
	}
	if len(p.remaining) == 0 {
		return false
	}
	arg := p.remaining[0]
	if arg == "--" {
		p.remaining = p.remaining[1:]
		p.sawDashDash = true
		return false
	}
	if len(arg) < 2 || (arg[0] != '-' && arg[0] != '+') {
		return false
	}
	p.current = arg
	p.remaining = p.remaining[1:]
	return true
}

func (p *flagParser) flag() string {
	arg := p.current
	p.current = ""
	if len(arg) > 2 {
		// split -ex into -e and -x
		p.current = arg[:1] + arg[2:]
		arg = arg[:2]
	}
	return arg
}

func (p *flagParser) value() string {
	if len(p.remaining) == 0 {
		return ""
	}
	arg := p.remaining[0]
	p.remaining = p.remaining[1:]
	return arg
}

func (p *flagParser) args() []string { return p.remaining }

// Reset returns a runner to its initial state, right before the first
// call to Run.
func (r *Runner) Reset() {
	if !r.usedNew {
		panic("interp.Runner must be created via interp.New")
	}
	env := r.Env
	*r = Runner{
		Env:         env,
		Dir:         r.Dir,
		Params:      r.Params,
		stdin:       r.stdin,
		stdout:      r.stdout,
		stderr:      r.stderr,
		origStdout:  r.origStdout,
		interactive: r.interactive,
		opts:        r.opts,
		tempDir:     r.tempDir,
		shellPID:    r.shellPID,
		usedNew:     r.usedNew,
	}
	r.scopes = []*scope{{vars: map[string]expand.Variable{}}}
	r.Funcs = make(map[string]*syntax.Stmt)
	r.alias = make(map[string]alias)
	r.traps = make(map[string]string)
	r.files = make(map[int]*os.File)
	r.jobs = newJobManager(r)
	if tmp := r.Env.Get("TMPDIR").String(); strings.HasPrefix(tmp, "/") {
		r.tempDir = tmp
	}
	if r.interactive {
		r.initInteractive()
	}
	r.didReset = true
}

// Run interprets a node, which can be a *[syntax.Script], *[syntax.Stmt],
// or [syntax.Command]. If a non-zero status code is obtained, it is
// returned in the form of an [ExitStatus].
//
// Run can be called multiple times synchronously to interpret
// programs incrementally; shell state is kept between calls.
func (r *Runner) Run(ctx context.Context, node syntax.Node) error {
	if !r.didReset {
		r.Reset()
	}
	r.fillExpandConfig(ctx)
	r.exit = exitStatus{}
	switch node := node.(type) {
	case *syntax.Script:
		r.curSrc = node.Src
		r.filename = node.Name
		r.stmts(ctx, node.Stmts)
		if !r.interactive || r.Exited() {
			r.exitShell(ctx)
		}
	case *syntax.Stmt:
		r.stmt(ctx, node)
	case syntax.Command:
		r.cmd(ctx, node)
	default:
		return fmt.Errorf("node can only be a Script, Stmt, or Command: %T", node)
	}
	if r.exit.err != nil {
		return r.exit.err
	}
	if r.exit.code != 0 {
		return NewExitStatus(uint8(r.exit.code))
	}
	return nil
}

// Exited reports whether the shell has to stop running, due to the
// exit builtin or a fatal error.
func (r *Runner) Exited() bool {
	return r.exit.exiting
}

// exitShell runs the EXIT trap, if any, and finalizes the shell run.
// The trap fires at most once per shell lifetime.
func (r *Runner) exitShell(ctx context.Context) {
	if !r.ranExitTrap {
		r.ranExitTrap = true
		r.runTrap(ctx, "EXIT")
	}
	if r.jobs != nil {
		r.jobs.stopNotifications()
	}
	if r.sig != nil {
		r.sig.Close()
	}
}

// Subshell makes a copy of the given Runner, suitable for running
// commands in an isolated environment such as a command substitution,
// one side of a pipeline, or a background statement.
func (r *Runner) Subshell() *Runner {
	return r.subshell(true)
}

func (r *Runner) subshell(background bool) *Runner {
	r2 := &Runner{
		Env:         r.Env,
		Dir:         r.Dir,
		Params:      r.Params,
		Funcs:       r.Funcs,
		stdin:       r.stdin,
		stdout:      r.stdout,
		stderr:      r.stderr,
		origStdout:  r.origStdout,
		interactive: false,
		filename:    r.filename,
		tempDir:     r.tempDir,
		shellPID:    r.shellPID,
		curSrc:      r.curSrc,
		inFunc:      r.inFunc,
		usedNew:     r.usedNew,
		didReset:    true,
		lastExit:    r.lastExit,
	}
	// deep-copy the mutable state so the subshell cannot affect the
	// parent, matching the semantics of a forked child
	r2.scopes = make([]*scope, len(r.scopes))
	for i, sc := range r.scopes {
		vars := make(map[string]expand.Variable, len(sc.vars))
		for name, vr := range sc.vars {
			vars[name] = vr
		}
		r2.scopes[i] = &scope{vars: vars, funcScope: sc.funcScope}
	}
	r2.opts = make(map[string]bool, len(r.opts))
	for name, v := range r.opts {
		r2.opts[name] = v
	}
	r2.alias = make(map[string]alias, len(r.alias))
	for name, v := range r.alias {
		r2.alias[name] = v
	}
	r2.traps = make(map[string]string, len(r.traps))
	for name, v := range r.traps {
		r2.traps[name] = v
	}
	r2.files = make(map[int]*os.File, len(r.files))
	for fd, f := range r.files {
		r2.files[fd] = f
	}
	r2.Funcs = make(map[string]*syntax.Stmt, len(r.Funcs))
	for name, body := range r.Funcs {
		r2.Funcs[name] = body
	}
	r2.jobs = r.jobs
	if background {
		r2.jobs = newJobManager(r2)
	}
	r2.fillExpandConfig(r.ectx)
	return r2
}

func (r *Runner) out(s string) {
	io.WriteString(r.stdout, s)
}

func (r *Runner) outf(format string, a ...any) {
	fmt.Fprintf(r.stdout, format, a...)
}

func (r *Runner) errf(format string, a ...any) {
	fmt.Fprintf(r.stderr, format, a...)
}

