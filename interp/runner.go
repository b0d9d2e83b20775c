// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

package interp

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/posh-shell/posh/expand"
	"github.com/posh-shell/posh/pattern"
	"github.com/posh-shell/posh/syntax"
)

const (
	// shellReplyVar, or REPLY, stores the result of select and of
	// read when no variable name is given.
	shellReplyVar = "REPLY"
	// shellPS3Var holds the prompt select shows; its default is "#? ".
	shellPS3Var     = "PS3"
	shellDefaultPS3 = "#? "

	fifoNamePrefix = "posh-fifo-"
)

// alias is a parsed alias definition. blank means the definition
// ended in a space, which makes the following word eligible for
// alias expansion too.
type alias struct {
	args  []*syntax.Word
	blank bool
}

func (r *Runner) fillExpandConfig(ctx context.Context) {
	r.ectx = ctx
	r.ecfg = &expand.Config{
		Env: r.writeEnv(),
		CmdSubst: func(w io.Writer, cs *syntax.CmdSubst) error {
			r2 := r.subshell(false)
			r2.stdout = w
			r2.stmts(ctx, cs.Stmts)
			r2.exit.exiting = false // subshells don't exit the parent
			r.lastExpandExit = r2.exit
			if r2.exit.err != nil {
				return r2.exit.err
			}
			return nil
		},
		ProcSubst: func(ps *syntax.ProcSubst) (string, error) {
			return r.procSubst(ctx, ps)
		},
	}
	r.updateExpandOpts()
}

func (r *Runner) updateExpandOpts() {
	if r.opts["noglob"] {
		r.ecfg.ReadDir = nil
	} else {
		r.ecfg.ReadDir = func(s string) ([]fs.DirEntry, error) {
			return os.ReadDir(s)
		}
	}
	r.ecfg.GlobStar = r.opts["globstar"]
	r.ecfg.NoCaseGlob = r.opts["nocaseglob"]
	r.ecfg.NullGlob = r.opts["nullglob"]
	r.ecfg.NoUnset = r.opts["nounset"]
}

// procSubst implements <(cmd) and >(cmd) with a named pipe, exposing
// its path to the command being built.
func (r *Runner) procSubst(ctx context.Context, ps *syntax.ProcSubst) (string, error) {
	if len(ps.Stmts) == 0 {
		return os.DevNull, nil
	}
	// keep trying random paths until one does not exist
	var path string
	for try := 0; ; try++ {
		path = filepath.Join(r.tempDir, fifoNamePrefix+strconv.FormatUint(rand.Uint64(), 16))
		err := mkfifo(path, 0o666)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("cannot create fifo: %v", err)
		}
		if try > 100 {
			return "", fmt.Errorf("giving up at creating fifo: %v", err)
		}
	}
	r2 := r.subshell(true)
	stdout := r.origStdout
	job := r.jobs.addJob(ps.Op.String() + "…)")
	go func() {
		defer r.jobs.finishJob(job, &r2.exit)
		switch ps.Op {
		case syntax.CmdIn:
			f, err := os.OpenFile(path, os.O_WRONLY, 0)
			if err != nil {
				r.errf("cannot open fifo for writing: %v\n", err)
				return
			}
			r2.stdout = f
			defer func() {
				f.Close()
				os.Remove(path)
			}()
		default: // syntax.CmdOut
			f, err := os.OpenFile(path, os.O_RDONLY, 0)
			if err != nil {
				r.errf("cannot open fifo for reading: %v\n", err)
				return
			}
			r2.stdin = f
			r2.stdout = stdout
			defer func() {
				f.Close()
				os.Remove(path)
			}()
		}
		r2.stmts(ctx, ps.Stmts)
		r2.exit.exiting = false
	}()
	return path, nil
}

func (r *Runner) expandErr(err error) {
	if err == nil {
		return
	}
	r.errf("posh: %v\n", err)
	switch err.(type) {
	case expand.UnsetParameterError:
		r.exit.code = 1
		if !r.interactive {
			r.exit.exiting = true
		}
	default:
		r.exit.code = 1
	}
}

func (r *Runner) arithm(expr syntax.ArithmExpr) int64 {
	n, err := expand.Arithm(r.ecfg, expr)
	if err != nil {
		r.errf("posh: %v\n", err)
		r.exit.code = 2
		return 0
	}
	return n
}

func (r *Runner) fields(words ...*syntax.Word) []string {
	strs, err := expand.Fields(r.ecfg, words...)
	r.expandErr(err)
	return strs
}

func (r *Runner) literal(word *syntax.Word) string {
	str, err := expand.Literal(r.ecfg, word)
	r.expandErr(err)
	return str
}

func (r *Runner) document(word *syntax.Word) string {
	str, err := expand.Document(r.ecfg, word)
	r.expandErr(err)
	return str
}

func (r *Runner) pattern(word *syntax.Word) string {
	str, err := expand.Pattern(r.ecfg, word)
	r.expandErr(err)
	return str
}

// nodeText slices the original source for a node, for job listings
// and trace output.
func (r *Runner) nodeText(n syntax.Node) string {
	if r.curSrc == "" || !n.Pos().IsValid() || int(n.End()) > len(r.curSrc)+1 {
		return ""
	}
	return strings.TrimSpace(r.curSrc[n.Pos()-1 : n.End()-1])
}

// stop reports whether the runner should halt before running another
// command.
func (r *Runner) stop(ctx context.Context) bool {
	if !r.handlingTrap && (r.exit.returning || r.exit.exiting) {
		return true
	}
	if r.breakEnclosing > 0 || r.contnEnclosing > 0 {
		return true
	}
	if err := ctx.Err(); err != nil {
		r.exit.fatal(err)
		return true
	}
	if r.opts["noexec"] {
		return true
	}
	if r.sig != nil && r.sig.Interrupted() {
		r.exit.code = 130
		return true
	}
	return false
}

func (r *Runner) stmts(ctx context.Context, stmts []*syntax.Stmt) {
	for _, stmt := range stmts {
		r.stmt(ctx, stmt)
	}
}

func (r *Runner) stmt(ctx context.Context, st *syntax.Stmt) {
	if r.stop(ctx) {
		return
	}
	if r.sig != nil {
		r.sig.Drain(ctx)
	}
	r.exit = exitStatus{}
	if st.Background {
		r2 := r.subshell(true)
		st2 := *st
		st2.Background = false
		text := r.nodeText(st.List)
		job := r.jobs.addJob(text)
		r2.parent = r
		go func() {
			r2.stmtSync(ctx, &st2)
			r2.exit.exiting = false
			r.jobs.finishJob(job, &r2.exit)
		}()
	} else {
		r.stmtSync(ctx, st)
	}
	r.lastExit = r.exit
}

func (r *Runner) stmtSync(ctx context.Context, st *syntax.Stmt) {
	r.andOrList(ctx, st.List)
}

func (r *Runner) andOrList(ctx context.Context, l *syntax.AndOrList) {
	oldNoErrExit := r.noErrExit
	if len(l.Rest) > 0 {
		// only the last pipeline of && and || chains can trip errexit
		r.noErrExit = true
	}
	r.pipeline(ctx, l.First)
	for i, part := range l.Rest {
		if r.stop(ctx) {
			break
		}
		run := r.exit.ok() == (part.Op == syntax.AndStmt)
		if i == len(l.Rest)-1 {
			r.noErrExit = oldNoErrExit
		}
		if !run {
			continue
		}
		r.exit = exitStatus{}
		r.pipeline(ctx, part.Pipeline)
	}
	r.noErrExit = oldNoErrExit
	// a pipeline negated with "!" never trips errexit
	last := l.First
	if n := len(l.Rest); n > 0 {
		last = l.Rest[n-1].Pipeline
	}
	if !last.Negated {
		r.errExit(ctx)
	}
}

// errExit applies set -e once a pipeline's exit status is final,
// after any && and || handling and negation.
func (r *Runner) errExit(ctx context.Context) {
	if r.exit.ok() || r.noErrExit {
		return
	}
	r.runTrap(ctx, "ERR")
	if r.opts["errexit"] {
		r.exit.exiting = true
	}
}

func (r *Runner) pipeline(ctx context.Context, pl *syntax.Pipeline) {
	if r.stop(ctx) {
		return
	}
	if len(pl.Cmds) == 1 {
		r.cmdWithRedirs(ctx, pl.Cmds[0])
	} else {
		r.pipelineCmds(ctx, pl)
	}
	if pl.Negated {
		r.exit.oneIf(r.exit.ok())
		r.exit.err = nil
	}
}

// pipelineCmds connects the pipeline's commands with pipes and runs
// them concurrently, each in its own subshell environment.
func (r *Runner) pipelineCmds(ctx context.Context, pl *syntax.Pipeline) {
	n := len(pl.Cmds)
	exits := make([]exitStatus, n)
	var g errgroup.Group
	var prevRead *os.File
	for i, cmd := range pl.Cmds {
		i, cmd := i, cmd
		last := i == n-1
		var pr, pw *os.File
		if !last {
			var err error
			pr, pw, err = os.Pipe()
			if err != nil {
				r.exit.fatal(err)
				return
			}
		}
		r2 := r.subshell(false)
		if prevRead != nil {
			r2.stdin = prevRead
		}
		if !last {
			r2.stdout = pw
			if i < len(pl.Ops) && pl.Ops[i] == syntax.PipeAll {
				r2.stderr = pw
			}
		}
		closeIn, closeOut := prevRead, pw
		g.Go(func() error {
			r2.cmdWithRedirs(ctx, cmd)
			r2.exit.exiting = false
			if closeOut != nil {
				closeOut.Close()
			}
			if closeIn != nil {
				closeIn.Close()
			}
			exits[i] = r2.exit
			return nil
		})
		prevRead = pr
	}
	g.Wait()
	r.exit = exits[n-1]
	if r.opts["pipefail"] {
		for _, e := range exits {
			if !e.ok() {
				r.exit = e
			}
		}
	}
	for _, e := range exits {
		if e.err != nil {
			r.exit.fatal(e.err)
		}
	}
}

// cmdWithRedirs runs one pipeline element: apply its redirections,
// run the body, restore.
func (r *Runner) cmdWithRedirs(ctx context.Context, c *syntax.Cmd) {
	restore, err := r.applyRedirs(ctx, c.Redirs)
	if err != nil {
		r.errf("posh: %v\n", err)
		r.exit.code = 1
		r.errExit(ctx)
		return
	}
	if restore != nil {
		defer func() {
			if r.keepRedirs {
				r.keepRedirs = false
				return
			}
			restore()
		}()
	}
	if c.Body != nil {
		r.cmd(ctx, c.Body)
	}
}

func (r *Runner) cmd(ctx context.Context, cm syntax.Command) {
	if r.stop(ctx) {
		return
	}
	switch cm := cm.(type) {
	case *syntax.Block:
		r.stmts(ctx, cm.Stmts)
	case *syntax.Subshell:
		r2 := r.subshell(false)
		r2.stmts(ctx, cm.Stmts)
		r2.exit.exiting = false
		r.exit = r2.exit
	case *syntax.SimpleCmd:
		r.simpleCmd(ctx, cm)
	case *syntax.IfCmd:
		for _, branch := range cm.Branches {
			oldNoErrExit := r.noErrExit
			r.noErrExit = true
			r.stmts(ctx, branch.Cond)
			r.noErrExit = oldNoErrExit
			if r.exit.ok() {
				r.stmts(ctx, branch.Then)
				return
			}
		}
		r.exit.code = 0
		r.stmts(ctx, cm.Else)
	case *syntax.WhileCmd:
		for !r.stop(ctx) {
			oldNoErrExit := r.noErrExit
			r.noErrExit = true
			r.stmts(ctx, cm.Cond)
			r.noErrExit = oldNoErrExit

			stop := r.exit.ok() == cm.Until
			r.exit.code = 0
			if stop || r.loopStmtsBroken(ctx, cm.Do) {
				break
			}
		}
	case *syntax.ForCmd:
		if cm.Select {
			r.selectLoop(ctx, cm)
			return
		}
		name := cm.Name.Value
		items := r.Params // for i; do ...
		if cm.InPos.IsValid() {
			items = r.fields(cm.Items...) // for i in ...; do ...
		}
		for _, field := range items {
			r.setVarString(name, field)
			if r.loopStmtsBroken(ctx, cm.Do) {
				break
			}
		}
	case *syntax.CForCmd:
		if cm.Init != nil {
			r.arithm(cm.Init)
		}
		for cm.Cond == nil || r.arithm(cm.Cond) != 0 {
			if !r.exit.ok() || r.loopStmtsBroken(ctx, cm.Do) {
				break
			}
			if cm.Post != nil {
				r.arithm(cm.Post)
			}
		}
	case *syntax.CaseCmd:
		r.caseCmd(ctx, cm)
	case *syntax.FuncDecl:
		r.setFunc(cm.Name.Value, cm.Body)
	case *syntax.ArithmCmd:
		r.exit.oneIf(r.arithm(cm.X) == 0)
	case *syntax.LetCmd:
		var val int64
		for _, expr := range cm.Exprs {
			val = r.arithm(expr)
		}
		r.exit.oneIf(val == 0)
	case *syntax.TestCmd:
		if r.evalTest(ctx, cm.X, false) == "" && r.exit.ok() {
			// preserve exit status 2 for regex errors
			r.exit.code = 1
		}
	case *syntax.TimeCmd:
		start := time.Now()
		if cm.Stmt != nil {
			r.stmt(ctx, cm.Stmt)
		}
		real := time.Since(start)
		r.errf("\nreal\t%s\n", elapsedString(real))
		r.errf("user\t%s\n", elapsedString(0))
		r.errf("sys\t%s\n", elapsedString(0))
	default:
		panic(fmt.Sprintf("unhandled command node: %T", cm))
	}
}

func elapsedString(d time.Duration) string {
	min := int(d.Minutes())
	sec := d.Seconds() - float64(min)*60
	return fmt.Sprintf("%dm%.3fs", min, sec)
}

func (r *Runner) caseCmd(ctx context.Context, cm *syntax.CaseCmd) {
	str := r.literal(cm.Word)
	for i := 0; i < len(cm.Arms); i++ {
		arm := cm.Arms[i]
		matched := false
		for _, word := range arm.Patterns {
			pat := r.pattern(word)
			if match(pat, str) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		r.stmts(ctx, arm.Stmts)
		for arm.Op == syntax.Fallthrough && i+1 < len(cm.Arms) {
			// ;& runs the next arm without matching it
			i++
			arm = cm.Arms[i]
			r.stmts(ctx, arm.Stmts)
		}
		if arm.Op != syntax.Resume {
			return
		}
		// ;;& resumes pattern matching with the next arm
	}
}

func match(pat, name string) bool {
	expr, err := pattern.Regexp(pat, pattern.EntireString)
	if err != nil {
		return false
	}
	rx, err := regexp.Compile(expr)
	if err != nil {
		return false
	}
	return rx.MatchString(name)
}

func (r *Runner) selectLoop(ctx context.Context, cm *syntax.ForCmd) {
	name := cm.Name.Value
	items := r.Params
	if cm.InPos.IsValid() {
		items = r.fields(cm.Items...)
	}
	ps3 := shellDefaultPS3
	if e := r.getVar(shellPS3Var); e != "" {
		ps3 = e
	}
	br := newLineReader(r.stdin)
	for {
		for i, word := range items {
			r.errf("%d) %s\n", i+1, word)
		}
		r.errf("%s", ps3)
		line, err := br.ReadLine()
		if err != nil {
			r.exit.code = 1
			return
		}
		if len(line) == 0 {
			continue
		}
		reply := string(line)
		r.setVarString(shellReplyVar, reply)
		r.setVarString(name, "")
		if n, _ := strconv.Atoi(reply); n > 0 && n <= len(items) {
			r.setVarString(name, items[n-1])
		}
		if r.loopStmtsBroken(ctx, cm.Do) {
			return
		}
	}
}

func (r *Runner) loopStmtsBroken(ctx context.Context, stmts []*syntax.Stmt) bool {
	oldInLoop := r.inLoop
	r.inLoop = true
	defer func() { r.inLoop = oldInLoop }()
	for _, stmt := range stmts {
		r.stmt(ctx, stmt)
		if r.contnEnclosing > 0 {
			r.contnEnclosing--
			return r.contnEnclosing > 0
		}
		if r.breakEnclosing > 0 {
			r.breakEnclosing--
			return true
		}
	}
	return false
}

func (r *Runner) simpleCmd(ctx context.Context, cm *syntax.SimpleCmd) {
	r.runTrap(ctx, "DEBUG")

	// expand aliases on the command word, repeatedly while the
	// previous alias ended in a blank
	args := cm.Args
	for i := 0; i < len(args); {
		if !r.opts["expand_aliases"] {
			break
		}
		als, ok := r.alias[args[i].Lit()]
		if !ok {
			break
		}
		newArgs := make([]*syntax.Word, 0, len(args)+len(als.args)-1)
		newArgs = append(newArgs, args[:i]...)
		newArgs = append(newArgs, als.args...)
		newArgs = append(newArgs, args[i+1:]...)
		args = newArgs
		if !als.blank {
			break
		}
		i += len(als.args)
	}

	r.lastExpandExit = exitStatus{}
	fields := r.fields(args...)
	if len(fields) == 0 {
		// no command: apply the assignments to the current shell
		for _, as := range cm.Assigns {
			prev, _ := r.findVar(as.Name.Value)
			vr := r.assignVal(prev, as)
			r.setVarWithIndex(prev, as.Name.Value, as.Index, vr)
			if r.opts["xtrace"] {
				r.errf("+ %s=%s\n", as.Name.Value, vr.String())
			}
		}
		// surface a failed command substitution used in the
		// assignments, as in a=$(false)
		if r.exit.ok() {
			r.exit = r.lastExpandExit
		}
		return
	}

	// command-scoped assignments: visible to builtins and functions,
	// and exported to externals; restored afterwards
	type restoreVar struct {
		name string
		vr   expand.Variable
		idx  int
	}
	var restores []restoreVar
	for _, as := range cm.Assigns {
		name := as.Name.Value
		prev, idx := r.findVar(name)
		vr := r.assignVal(prev, as)
		vr.Exported = true
		restores = append(restores, restoreVar{name, prev, idx})
		r.setVar(name, vr)
	}

	if r.opts["xtrace"] {
		r.errf("+ %s\n", strings.Join(fields, " "))
	}

	r.call(ctx, cm.Args[0].Pos(), fields)

	for _, restore := range restores {
		if restore.idx < 0 && !restore.vr.Declared() {
			r.delVar(restore.name)
		} else {
			r.scopes[maxInt(restore.idx, 0)].vars[restore.name] = restore.vr
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// call resolves and runs a command name: function, builtin, or
// external program, in that order.
func (r *Runner) call(ctx context.Context, pos syntax.Pos, args []string) {
	if r.stop(ctx) {
		return
	}
	name := args[0]
	if body := r.Funcs[name]; body != nil {
		r.callFunc(ctx, name, body, args[1:])
		return
	}
	if b, ok := builtins[name]; ok {
		r.exit.code = b(r, ctx, name, args[1:])
		return
	}
	r.exec(ctx, pos, args)
}

func (r *Runner) callFunc(ctx context.Context, name string, body *syntax.Stmt, params []string) {
	oldParams := r.Params
	r.Params = params
	oldInFunc := r.inFunc
	r.inFunc = true
	r.pushScope(true)

	r.stmt(ctx, body)

	r.popScope()
	r.Params = oldParams
	r.inFunc = oldInFunc
	r.exit.returning = false
	r.runTrap(ctx, "RETURN")
}

// runTrap runs a trap callback for the named condition or signal, if
// one is set.
func (r *Runner) runTrap(ctx context.Context, name string) {
	callback := r.traps[name]
	if callback == "" || r.handlingTrap {
		return
	}
	r.handlingTrap = true
	defer func() { r.handlingTrap = false }()

	file, err := syntax.Parse([]byte(callback), name+" trap")
	if err != nil {
		r.errf("posh: %s trap: %v\n", name, err)
		return
	}
	oldExit := r.exit
	oldSrc := r.curSrc
	r.curSrc = file.Src
	r.stmts(ctx, file.Stmts)
	r.curSrc = oldSrc
	r.exit = oldExit
}

// lineReader reads single lines from a reader without buffering
// ahead, so that the shell does not steal input from commands.
type lineReader struct {
	r io.Reader
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: r}
}

func (lr *lineReader) ReadLine() ([]byte, error) {
	if lr.r == nil {
		return nil, io.EOF
	}
	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := lr.r.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				return line, nil
			}
			line = append(line, buf[0])
		}
		if err != nil {
			if len(line) > 0 && err == io.EOF {
				return line, nil
			}
			return line, err
		}
	}
}
