// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

package interp

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/posh-shell/posh/expand"
	"github.com/posh-shell/posh/syntax"
)

// builtinFunc implements one shell builtin. Builtins run in the
// current shell process and may modify its state; they return the
// command's exit code.
type builtinFunc func(r *Runner, ctx context.Context, name string, args []string) int

// builtins is the registry the executor resolves command names
// against, after aliases and functions.
var builtins map[string]builtinFunc

// IsBuiltin reports whether the given word names a shell builtin.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

func init() {
	builtins = map[string]builtinFunc{
		":":        builtinTrue,
		"true":     builtinTrue,
		"false":    builtinFalse,
		"echo":     builtinEcho,
		"printf":   builtinPrintf,
		"cd":       builtinCd,
		"pwd":      builtinPwd,
		"exit":     builtinExit,
		"return":   builtinReturn,
		"break":    builtinBreak,
		"continue": builtinBreak,
		"shift":    builtinShift,
		"set":      builtinSet,
		"unset":    builtinUnset,
		"export":   builtinDeclare,
		"readonly": builtinDeclare,
		"local":    builtinDeclare,
		"declare":  builtinDeclare,
		"typeset":  builtinDeclare,
		"eval":     builtinEval,
		"source":   builtinSource,
		".":        builtinSource,
		"trap":     builtinTrap,
		"wait":     builtinWait,
		"jobs":     builtinJobs,
		"fg":       builtinFgBg,
		"bg":       builtinFgBg,
		"kill":     builtinKill,
		"read":     builtinRead,
		"test":     builtinTest,
		"[":        builtinTest,
		"getopts":  builtinGetopts,
		"exec":     builtinExec,
		"command":  builtinCommand,
		"builtin":  builtinBuiltin,
		"type":     builtinType,
		"alias":    builtinAlias,
		"unalias":  builtinUnalias,
		"umask":    builtinUmask,
		"let":      builtinLet,
		"help":     builtinHelp,
	}
}

func builtinTrue(r *Runner, ctx context.Context, name string, args []string) int {
	return 0
}

func builtinFalse(r *Runner, ctx context.Context, name string, args []string) int {
	return 1
}

func builtinEcho(r *Runner, ctx context.Context, name string, args []string) int {
	newline, doExpand := true, false
parseOpts:
	for len(args) > 0 {
		switch args[0] {
		case "-n":
			newline = false
		case "-e":
			doExpand = true
		case "-E":
			doExpand = false
		case "-ne", "-en":
			newline, doExpand = false, true
		default:
			break parseOpts
		}
		args = args[1:]
	}
	for i, arg := range args {
		if i > 0 {
			r.out(" ")
		}
		if doExpand {
			arg, _, _ = expand.Format(arg, nil)
		}
		r.out(arg)
	}
	if newline {
		r.out("\n")
	}
	return 0
}

func builtinPrintf(r *Runner, ctx context.Context, name string, args []string) int {
	if len(args) == 0 {
		r.errf("usage: printf format [arguments]\n")
		return 2
	}
	format, args := args[0], args[1:]
	for {
		s, n, err := expand.Format(format, args)
		if err != nil {
			r.errf("posh: printf: %v\n", err)
			return 1
		}
		r.out(s)
		args = args[n:]
		if n == 0 || len(args) == 0 {
			// the format is reused until the arguments run out
			break
		}
	}
	return 0
}

func builtinCd(r *Runner, ctx context.Context, name string, args []string) int {
	var dir string
	switch len(args) {
	case 0:
		dir = r.getVar("HOME")
		if dir == "" {
			r.errf("posh: cd: HOME not set\n")
			return 1
		}
	case 1:
		dir = args[0]
		if dir == "-" {
			dir = r.getVar("OLDPWD")
			if dir == "" {
				r.errf("posh: cd: OLDPWD not set\n")
				return 1
			}
			defer r.outf("%s\n", dir)
		}
	default:
		r.errf("posh: cd: too many arguments\n")
		return 1
	}
	path := absPath(r.Dir, dir)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		r.errf("posh: cd: %s: no such file or directory\n", dir)
		return 1
	}
	r.setVarString("OLDPWD", r.Dir)
	r.Dir = path
	vr := expand.Variable{Set: true, Exported: true, Kind: expand.String, Str: path}
	r.setVar("PWD", vr)
	return 0
}

func builtinPwd(r *Runner, ctx context.Context, name string, args []string) int {
	r.outf("%s\n", r.Dir)
	return 0
}

func builtinExit(r *Runner, ctx context.Context, name string, args []string) int {
	code := r.lastExit.code
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			r.errf("posh: exit: %s: numeric argument required\n", args[0])
			n = 2
		}
		code = n & 0xff
	}
	r.exit.exiting = true
	return code
}

func builtinReturn(r *Runner, ctx context.Context, name string, args []string) int {
	if !r.inFunc && !r.inSource {
		r.errf("posh: return: can only be done from a func or sourced script\n")
		return 1
	}
	code := r.lastExit.code
	if len(args) > 0 {
		code, _ = strconv.Atoi(args[0])
	}
	r.exit.returning = true
	return code
}

func builtinBreak(r *Runner, ctx context.Context, name string, args []string) int {
	if !r.inLoop {
		r.errf("posh: %s: only meaningful in a loop\n", name)
		return 0
	}
	n := 1
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil && v > 0 {
			n = v
		} else {
			r.errf("posh: %s: numeric argument required\n", name)
			return 1
		}
	}
	if name == "break" {
		r.breakEnclosing = n
	} else {
		r.contnEnclosing = n
	}
	return 0
}

func builtinShift(r *Runner, ctx context.Context, name string, args []string) int {
	n := 1
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 0 {
			r.errf("posh: shift: %s: invalid number\n", args[0])
			return 1
		}
		n = v
	}
	if n > len(r.Params) {
		return 1
	}
	r.Params = r.Params[n:]
	return 0
}

func builtinSet(r *Runner, ctx context.Context, name string, args []string) int {
	if len(args) == 0 {
		for _, name := range r.namesInScope() {
			vr := r.lookupVar(name)
			if vr.Kind == expand.String {
				r.outf("%s=%s\n", name, vr.Str)
			}
		}
		return 0
	}
	if err := Params(args...)(r); err != nil {
		r.errf("posh: set: %v\n", err)
		return 2
	}
	r.updateExpandOpts()
	return 0
}

func builtinUnset(r *Runner, ctx context.Context, name string, args []string) int {
	unsetFuncs := false
	for len(args) > 0 {
		switch args[0] {
		case "-f":
			unsetFuncs = true
		case "-v":
			unsetFuncs = false
		default:
			goto names
		}
		args = args[1:]
	}
names:
	for _, arg := range args {
		if unsetFuncs {
			delete(r.Funcs, arg)
		} else {
			r.delVar(arg)
		}
	}
	return 0
}

// builtinDeclare covers declare, typeset, local, export, and
// readonly: attribute changes plus optional assignments.
func builtinDeclare(r *Runner, ctx context.Context, name string, args []string) int {
	local := name == "local"
	if local && !r.inFunc {
		r.errf("posh: local: can only be used in a function\n")
		return 1
	}
	var modes []string
	switch name {
	case "export":
		modes = append(modes, "-x")
	case "readonly":
		modes = append(modes, "-r")
	case "declare":
		local = r.inFunc
	}
	printOnly := false
	unexport := false
	for len(args) > 0 && len(args[0]) > 1 &&
		(args[0][0] == '-' || args[0][0] == '+') {
		arg := args[0]
		if arg == "--" {
			args = args[1:]
			break
		}
		for _, ch := range arg[1:] {
			switch {
			case arg[0] == '+' && ch == 'x':
				unexport = true
			case arg[0] == '+':
				// other attribute removals are not supported
			case ch == 'p':
				printOnly = true
			case ch == 'g':
				local = false
			case strings.ContainsRune("niluaAxr", ch):
				modes = append(modes, "-"+string(ch))
			default:
				r.errf("posh: %s: -%c: invalid option\n", name, ch)
				return 2
			}
		}
		args = args[1:]
	}
	if printOnly || len(args) == 0 {
		for _, vname := range r.namesInScope() {
			r.printDecl(vname)
		}
		return 0
	}
	for _, arg := range args {
		vname, value, hasValue := strings.Cut(arg, "=")
		if !syntax.ValidName(vname) {
			r.errf("posh: %s: `%s': not a valid identifier\n", name, arg)
			return 1
		}
		prev, _ := r.findVar(vname)
		vr := prev
		if hasValue {
			vr = expand.Variable{Set: true, Kind: expand.String, Str: value}
		} else if !vr.Declared() {
			vr = expand.Variable{Kind: expand.Unknown}
		}
		for _, mode := range modes {
			switch mode {
			case "-x":
				vr.Exported = true
			case "-r":
				vr.ReadOnly = true
			case "-i":
				vr.Integer = true
			case "-l":
				vr.Lowercase = true
				vr.Uppercase = false
			case "-u":
				vr.Uppercase = true
				vr.Lowercase = false
			case "-n":
				vr.Kind = expand.NameRef
				vr.Str = value
			case "-a":
				if vr.Kind != expand.Indexed {
					vr.Kind = expand.Indexed
					if hasValue {
						vr.List = []string{value}
					}
				}
			case "-A":
				if vr.Kind != expand.Associative {
					vr.Kind = expand.Associative
					vr.Map = map[string]string{}
				}
			}
		}
		if unexport {
			vr.Exported = false
		}
		vr.Local = local
		r.setVar(vname, vr)
	}
	return r.exit.code
}

// printDecl writes one declare -p line. Re-running the line for a
// string variable restores it with its attributes; values are quoted
// with Go's %q, so a value holding $, a backquote or a control
// character does not read back unchanged. The name=(...) lines printed
// for indexed and associative arrays are not accepted back, since the
// parser does not take array literals as declare arguments.
func (r *Runner) printDecl(name string) {
	vr := r.lookupVar(name)
	if !vr.Declared() {
		return
	}
	flags := ""
	if vr.Kind == expand.Indexed {
		flags += "a"
	}
	if vr.Kind == expand.Associative {
		flags += "A"
	}
	if vr.Kind == expand.NameRef {
		flags += "n"
	}
	if vr.Integer {
		flags += "i"
	}
	if vr.Lowercase {
		flags += "l"
	}
	if vr.Uppercase {
		flags += "u"
	}
	if vr.ReadOnly {
		flags += "r"
	}
	if vr.Exported {
		flags += "x"
	}
	if flags == "" {
		flags = "-"
	}
	switch vr.Kind {
	case expand.Indexed:
		var sb strings.Builder
		for i, elem := range vr.List {
			if i > 0 {
				sb.WriteByte(' ')
			}
			fmt.Fprintf(&sb, "[%d]=%q", i, elem)
		}
		r.outf("declare -%s %s=(%s)\n", flags, name, sb.String())
	case expand.Associative:
		keys := make([]string, 0, len(vr.Map))
		for k := range vr.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(' ')
			}
			fmt.Fprintf(&sb, "[%q]=%q", k, vr.Map[k])
		}
		r.outf("declare -%s %s=(%s)\n", flags, name, sb.String())
	default:
		if vr.IsSet() {
			r.outf("declare -%s %s=%q\n", flags, name, vr.Str)
		} else {
			r.outf("declare -%s %s\n", flags, name)
		}
	}
}

func builtinEval(r *Runner, ctx context.Context, name string, args []string) int {
	src := strings.Join(args, " ")
	if src == "" {
		return 0
	}
	file, err := syntax.Parse([]byte(src), "eval")
	if err != nil {
		r.errf("posh: eval: %v\n", err)
		return 2
	}
	oldSrc := r.curSrc
	r.curSrc = file.Src
	r.stmts(ctx, file.Stmts)
	r.curSrc = oldSrc
	return r.exit.code
}

func builtinSource(r *Runner, ctx context.Context, name string, args []string) int {
	if len(args) == 0 {
		r.errf("posh: %s: filename argument required\n", name)
		return 2
	}
	path := args[0]
	if !strings.Contains(path, "/") {
		if found, err := lookPathDir(r.Dir, r.writeEnv(), path); err == nil {
			path = found
		}
	}
	src, err := os.ReadFile(absPath(r.Dir, path))
	if err != nil {
		r.errf("posh: %s: %s: no such file or directory\n", name, args[0])
		return 1
	}
	file, err := syntax.Parse(src, args[0])
	if err != nil {
		r.errf("posh: %v\n", err)
		return 2
	}
	oldParams := r.Params
	if len(args) > 1 {
		r.Params = args[1:]
	}
	oldInSource := r.inSource
	r.inSource = true
	oldSrc := r.curSrc
	r.curSrc = file.Src

	r.stmts(ctx, file.Stmts)

	r.curSrc = oldSrc
	r.Params = oldParams
	r.inSource = oldInSource
	code := r.exit.code
	r.exit.returning = false
	r.runTrap(ctx, "RETURN")
	return code
}

func builtinTrap(r *Runner, ctx context.Context, name string, args []string) int {
	if len(args) == 0 || args[0] == "-p" {
		names := make([]string, 0, len(r.traps))
		for cond := range r.traps {
			names = append(names, cond)
		}
		sort.Strings(names)
		for _, cond := range names {
			r.outf("trap -- %q %s\n", r.traps[cond], cond)
		}
		return 0
	}
	action := args[0]
	conds := args[1:]
	reset := action == "-"
	if len(conds) == 0 {
		// "trap 15" resets signal 15
		reset = true
		conds = args
	}
	for _, cond := range conds {
		canonical := strings.ToUpper(cond)
		switch canonical {
		case "EXIT", "DEBUG", "ERR", "RETURN", "0":
			if canonical == "0" {
				canonical = "EXIT"
			}
		default:
			sig, sigName, err := parseSignal(cond)
			if err != nil {
				r.errf("posh: trap: %v\n", err)
				return 1
			}
			canonical = sigName
			if r.sig == nil {
				r.sig = newSignalManager(r)
			}
			if reset {
				r.sig.Unwatch(sig)
			} else {
				r.sig.Watch(sig)
			}
		}
		if reset {
			delete(r.traps, canonical)
		} else {
			r.traps[canonical] = action
		}
	}
	return 0
}

func builtinWait(r *Runner, ctx context.Context, name string, args []string) int {
	if len(args) == 0 {
		return r.jobs.waitAll(ctx)
	}
	code := 0
	for _, arg := range args {
		if strings.HasPrefix(arg, "%") {
			job, err := r.jobs.bySpec(arg)
			if err != nil {
				r.errf("posh: wait: %v\n", err)
				return 127
			}
			code = r.jobs.wait(ctx, job)
			continue
		}
		pid, err := strconv.Atoi(arg)
		if err != nil {
			r.errf("posh: wait: %s: not a pid or valid job spec\n", arg)
			return 2
		}
		code = r.waitPid(ctx, pid)
	}
	return code
}

// waitPid waits for a specific child process, used by wait with a
// numeric argument.
func (r *Runner) waitPid(ctx context.Context, pid int) int {
	for {
		wpid, status, err := wait4(pid, true)
		if err != nil {
			return 127
		}
		if wpid == pid && (status.Exited() || status.Signaled()) {
			if status.Signaled() {
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}
}

func builtinJobs(r *Runner, ctx context.Context, name string, args []string) int {
	showPids := false
	for _, arg := range args {
		if arg == "-l" || arg == "-p" {
			showPids = true
		}
	}
	r.jobs.List(showPids)
	return 0
}

func builtinFgBg(r *Runner, ctx context.Context, name string, args []string) int {
	spec := "%%"
	if len(args) > 0 {
		spec = args[0]
	}
	job, err := r.jobs.bySpec(spec)
	if err != nil {
		r.errf("posh: %s: %v\n", name, err)
		return 1
	}
	if name == "fg" {
		r.errf("%s\n", job.Command)
	} else {
		r.errf("[%d]+ %s &\n", job.ID, job.Command)
	}
	code, err := r.jobs.cont(ctx, job, name == "fg")
	if err != nil {
		r.errf("posh: %s: %v\n", name, err)
		return 1
	}
	return code
}

func builtinKill(r *Runner, ctx context.Context, name string, args []string) int {
	sig := syscall.SIGTERM
	for len(args) > 0 && strings.HasPrefix(args[0], "-") && args[0] != "--" {
		arg := args[0]
		args = args[1:]
		spec := strings.TrimPrefix(arg, "-")
		if spec == "s" {
			if len(args) == 0 {
				r.errf("posh: kill: option requires an argument -- s\n")
				return 2
			}
			spec, args = args[0], args[1:]
		} else if spec == "l" {
			names := make([]string, 0, len(signalsByName))
			for n := range signalsByName {
				names = append(names, n)
			}
			sort.Strings(names)
			r.outf("%s\n", strings.Join(names, " "))
			return 0
		}
		s, _, err := parseSignal(spec)
		if err != nil {
			r.errf("posh: kill: %v\n", err)
			return 1
		}
		sig = s
	}
	if len(args) > 0 && args[0] == "--" {
		args = args[1:]
	}
	if len(args) == 0 {
		r.errf("posh: kill: usage: kill [-s signal] pid | %%job\n")
		return 2
	}
	code := 0
	for _, arg := range args {
		if strings.HasPrefix(arg, "%") {
			job, err := r.jobs.bySpec(arg)
			if err != nil {
				r.errf("posh: kill: %v\n", err)
				code = 1
				continue
			}
			if job.PGID != 0 {
				killPgid(job.PGID, sig)
			}
			continue
		}
		pid, err := strconv.Atoi(arg)
		if err != nil {
			r.errf("posh: kill: %s: arguments must be process or job IDs\n", arg)
			code = 1
			continue
		}
		if err := syscall.Kill(pid, sig); err != nil {
			r.errf("posh: kill: (%d) - %v\n", pid, err)
			code = 1
		}
	}
	return code
}

func builtinRead(r *Runner, ctx context.Context, name string, args []string) int {
	raw := false
	prompt := ""
	var timeout time.Duration
	for len(args) > 0 && strings.HasPrefix(args[0], "-") {
		switch args[0] {
		case "-r":
			raw = true
		case "-p":
			if len(args) < 2 {
				r.errf("posh: read: -p: option requires an argument\n")
				return 2
			}
			prompt = args[1]
			args = args[1:]
		case "-t":
			if len(args) < 2 {
				r.errf("posh: read: -t: option requires an argument\n")
				return 2
			}
			secs, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				r.errf("posh: read: %s: invalid timeout specification\n", args[1])
				return 2
			}
			timeout = time.Duration(secs * float64(time.Second))
			args = args[1:]
		default:
			r.errf("posh: read: %s: invalid option\n", args[0])
			return 2
		}
		args = args[1:]
	}
	if prompt != "" {
		r.errf("%s", prompt)
	}
	line, err := r.readLine(ctx, timeout)
	if err != nil {
		return 1
	}
	names := args
	if len(names) == 0 {
		names = []string{shellReplyVar}
	}
	fields := expand.ReadFields(r.ecfg, string(line), len(names), raw)
	for i, fname := range names {
		val := ""
		if i < len(fields) {
			val = fields[i]
		}
		r.setVarString(fname, val)
	}
	return 0
}

// readLine reads one line from standard input, honoring the read -t
// timeout without consuming bytes past the newline.
func (r *Runner) readLine(ctx context.Context, timeout time.Duration) ([]byte, error) {
	lr := newLineReader(r.stdin)
	if timeout <= 0 {
		return lr.ReadLine()
	}
	type result struct {
		line []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := lr.ReadLine()
		ch <- result{line, err}
	}()
	select {
	case res := <-ch:
		return res.line, res.err
	case <-time.After(timeout):
		return nil, fmt.Errorf("read timed out")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func builtinGetopts(r *Runner, ctx context.Context, name string, args []string) int {
	if len(args) < 2 {
		r.errf("posh: getopts: usage: getopts optstring name [arg ...]\n")
		return 2
	}
	optstring, varName := args[0], args[1]
	params := r.Params
	if len(args) > 2 {
		params = args[2:]
	}
	optind := 1
	if v := r.getVar("OPTIND"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			optind = n
		}
	}
	// OPTIND counts from one, params from zero
	i := optind - 1
	if i >= len(params) || !strings.HasPrefix(params[i], "-") || params[i] == "-" {
		r.setVarString(varName, "?")
		return 1
	}
	arg := params[i]
	if arg == "--" {
		r.setVarString("OPTIND", strconv.Itoa(i+2))
		r.setVarString(varName, "?")
		return 1
	}
	opt := arg[1:2]
	idx := strings.Index(optstring, opt)
	if idx < 0 || opt == ":" {
		r.setVarString(varName, "?")
		if !strings.HasPrefix(optstring, ":") {
			r.errf("posh: getopts: illegal option -- %s\n", opt)
		}
		r.setVarString("OPTARG", opt)
		r.advanceGetopts(arg, i)
		return 0
	}
	if idx+1 < len(optstring) && optstring[idx+1] == ':' {
		// the option takes an argument
		if len(arg) > 2 {
			r.setVarString("OPTARG", arg[2:])
			r.setVarString("OPTIND", strconv.Itoa(i+2))
		} else if i+1 < len(params) {
			r.setVarString("OPTARG", params[i+1])
			r.setVarString("OPTIND", strconv.Itoa(i+3))
		} else {
			r.setVarString(varName, ":")
			r.setVarString("OPTARG", opt)
			r.setVarString("OPTIND", strconv.Itoa(i+2))
			return 0
		}
		r.setVarString(varName, opt)
		return 0
	}
	r.setVarString(varName, opt)
	r.advanceGetopts(arg, i)
	return 0
}

// advanceGetopts moves OPTIND past the current flag, handling
// grouped flags like -ab by rewriting the remainder.
func (r *Runner) advanceGetopts(arg string, i int) {
	if len(arg) > 2 {
		// grouped short flags are consumed one at a time; shells
		// track an extra offset, which we fold into OPTIND by
		// mutating the parameter in place
		r.Params[i] = "-" + arg[2:]
		r.setVarString("OPTIND", strconv.Itoa(i+1))
		return
	}
	r.setVarString("OPTIND", strconv.Itoa(i+2))
}

func builtinExec(r *Runner, ctx context.Context, name string, args []string) int {
	if len(args) == 0 {
		// make the surrounding redirections permanent
		r.keepRedirs = true
		return 0
	}
	path, err := lookPathDir(r.Dir, r.writeEnv(), args[0])
	if err != nil {
		r.errf("posh: exec: %s: not found\n", args[0])
		r.exit.exiting = true
		return 127
	}
	err = execReplace(path, args, r.execEnv())
	r.errf("posh: exec: %v\n", err)
	r.exit.exiting = true
	return 126
}

func builtinCommand(r *Runner, ctx context.Context, name string, args []string) int {
	verbose := false
	for len(args) > 0 && (args[0] == "-v" || args[0] == "-V") {
		verbose = true
		args = args[1:]
	}
	if len(args) == 0 {
		return 0
	}
	if verbose {
		return builtinType(r, ctx, "type", args)
	}
	if b, ok := builtins[args[0]]; ok {
		return b(r, ctx, args[0], args[1:])
	}
	r.exec(ctx, syntax.Pos(0), args)
	return r.exit.code
}

func builtinBuiltin(r *Runner, ctx context.Context, name string, args []string) int {
	if len(args) == 0 {
		return 0
	}
	b, ok := builtins[args[0]]
	if !ok {
		r.errf("posh: builtin: %s: not a shell builtin\n", args[0])
		return 1
	}
	return b(r, ctx, args[0], args[1:])
}

func builtinType(r *Runner, ctx context.Context, name string, args []string) int {
	code := 0
	for _, arg := range args {
		if _, ok := r.alias[arg]; ok {
			r.outf("%s is an alias\n", arg)
			continue
		}
		if _, ok := r.Funcs[arg]; ok {
			r.outf("%s is a function\n", arg)
			continue
		}
		if IsBuiltin(arg) {
			r.outf("%s is a shell builtin\n", arg)
			continue
		}
		if path, err := lookPathDir(r.Dir, r.writeEnv(), arg); err == nil {
			r.outf("%s is %s\n", arg, path)
			continue
		}
		r.errf("posh: type: %s: not found\n", arg)
		code = 1
	}
	return code
}

func builtinAlias(r *Runner, ctx context.Context, name string, args []string) int {
	show := func(name string, als alias) {
		var sb strings.Builder
		for i, word := range als.args {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(word.Lit())
		}
		if als.blank {
			sb.WriteByte(' ')
		}
		r.outf("alias %s='%s'\n", name, sb.String())
	}
	if len(args) == 0 {
		names := make([]string, 0, len(r.alias))
		for name := range r.alias {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			show(name, r.alias[name])
		}
		return 0
	}
	code := 0
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok {
			als, known := r.alias[name]
			if !known {
				r.errf("posh: alias: %s: not found\n", name)
				code = 1
				continue
			}
			show(name, als)
			continue
		}
		file, err := syntax.Parse([]byte(value), "alias")
		if err != nil || len(file.Stmts) > 1 {
			r.errf("posh: alias: %s: invalid alias value\n", name)
			code = 1
			continue
		}
		var als alias
		als.blank = strings.HasSuffix(value, " ") || strings.HasSuffix(value, "\t")
		if len(file.Stmts) == 1 {
			if sc, ok := file.Stmts[0].List.First.Cmds[0].Body.(*syntax.SimpleCmd); ok {
				als.args = sc.Args
			}
		}
		r.alias[name] = als
	}
	return code
}

func builtinUnalias(r *Runner, ctx context.Context, name string, args []string) int {
	if len(args) > 0 && args[0] == "-a" {
		r.alias = make(map[string]alias)
		return 0
	}
	for _, arg := range args {
		delete(r.alias, arg)
	}
	return 0
}

func builtinUmask(r *Runner, ctx context.Context, name string, args []string) int {
	if len(args) == 0 {
		mask := syscall.Umask(0)
		syscall.Umask(mask)
		r.outf("%04o\n", mask)
		return 0
	}
	n, err := strconv.ParseUint(args[0], 8, 32)
	if err != nil {
		r.errf("posh: umask: %s: octal number out of range\n", args[0])
		return 1
	}
	syscall.Umask(int(n))
	return 0
}

func builtinLet(r *Runner, ctx context.Context, name string, args []string) int {
	if len(args) == 0 {
		r.errf("posh: let: expression expected\n")
		return 2
	}
	var last int64
	for _, arg := range args {
		expr, err := syntax.ParseArithm(arg)
		if err != nil {
			r.errf("posh: let: %v\n", err)
			return 2
		}
		n, err := expand.Arithm(r.ecfg, expr)
		if err != nil {
			r.errf("posh: let: %v\n", err)
			return 2
		}
		last = n
	}
	if last == 0 {
		return 1
	}
	return 0
}

func builtinHelp(r *Runner, ctx context.Context, name string, args []string) int {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	r.outf("posh, a POSIX-leaning shell\nbuiltin commands:\n")
	for _, name := range names {
		r.outf("  %s\n", name)
	}
	return 0
}

// isTermFd reports whether a descriptor currently refers to a
// terminal, for test -t.
func (r *Runner) isTermFd(fd int) bool {
	var f *os.File
	switch fd {
	case 0:
		f, _ = r.stdin.(*os.File)
	case 1:
		f, _ = r.stdout.(*os.File)
	case 2:
		f, _ = r.stderr.(*os.File)
	default:
		f = r.files[fd]
	}
	return f != nil && term.IsTerminal(int(f.Fd()))
}
