// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

package interp

import (
	"context"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/posh-shell/posh/expand"
	"github.com/posh-shell/posh/syntax"
)

// evalTest evaluates a [[ ]] expression, returning a non-empty string
// for truth, mirroring how test treats a lone operand. classic
// selects the test builtin's semantics where the two differ.
func (r *Runner) evalTest(ctx context.Context, expr syntax.TestExpr, classic bool) string {
	switch x := expr.(type) {
	case *syntax.Word:
		return r.literal(x)
	case *syntax.ParenTest:
		return r.evalTest(ctx, x.X, classic)
	case *syntax.UnaryTest:
		return boolStr(r.evalUnaryTest(ctx, x, classic))
	case *syntax.BinaryTest:
		return boolStr(r.evalBinaryTest(ctx, x, classic))
	default:
		panic("unhandled test expression")
	}
}

func boolStr(b bool) string {
	if b {
		return "1"
	}
	return ""
}

func (r *Runner) evalUnaryTest(ctx context.Context, u *syntax.UnaryTest, classic bool) bool {
	if u.Op == syntax.TsNot {
		return r.evalTest(ctx, u.X, classic) == ""
	}
	arg := r.literal(u.X.(*syntax.Word))
	switch u.Op {
	case syntax.TsEmpStr:
		return arg == ""
	case syntax.TsNempStr:
		return arg != ""
	case syntax.TsOptSet:
		v, known := r.opts[arg]
		return known && v
	case syntax.TsVarSet:
		return r.lookupVar(arg).IsSet()
	case syntax.TsRefVar:
		return r.lookupVar(arg).Kind == expand.NameRef
	case syntax.TsFdTerm:
		fd, err := strconv.Atoi(arg)
		return err == nil && r.isTermFd(fd)
	}
	path := absPath(r.Dir, arg)
	var info os.FileInfo
	var err error
	if u.Op == syntax.TsSmbLink {
		info, err = os.Lstat(path)
	} else {
		info, err = os.Stat(path)
	}
	if err != nil {
		return false
	}
	mode := info.Mode()
	switch u.Op {
	case syntax.TsExists:
		return true
	case syntax.TsRegFile:
		return mode.IsRegular()
	case syntax.TsDirect:
		return mode.IsDir()
	case syntax.TsCharSp:
		return mode&os.ModeCharDevice != 0
	case syntax.TsBlckSp:
		return mode&os.ModeDevice != 0 && mode&os.ModeCharDevice == 0
	case syntax.TsNmPipe:
		return mode&os.ModeNamedPipe != 0
	case syntax.TsSocket:
		return mode&os.ModeSocket != 0
	case syntax.TsSmbLink:
		return mode&os.ModeSymlink != 0
	case syntax.TsGIDSet:
		return mode&os.ModeSetgid != 0
	case syntax.TsUIDSet:
		return mode&os.ModeSetuid != 0
	case syntax.TsRead:
		return accessOK(path, 4)
	case syntax.TsWrite:
		return accessOK(path, 2)
	case syntax.TsExec:
		return accessOK(path, 1)
	case syntax.TsNoEmpty:
		return info.Size() > 0
	default:
		return false
	}
}

func (r *Runner) evalBinaryTest(ctx context.Context, b *syntax.BinaryTest, classic bool) bool {
	switch b.Op {
	case syntax.TsMatch, syntax.TsNoMatch, syntax.TsAssgn:
		str := r.evalTestWordX(b.X)
		var matched bool
		if classic || b.Op == syntax.TsAssgn {
			matched = str == r.evalTestWordX(b.Y)
		} else {
			// within [[ ]] the right side is a pattern
			pat := r.pattern(b.Y.(*syntax.Word))
			matched = match(pat, str)
		}
		return matched == (b.Op != syntax.TsNoMatch)
	case syntax.TsReMatch:
		str := r.evalTestWordX(b.X)
		exprStr := r.literal(b.Y.(*syntax.Word))
		rx, err := regexp.Compile(exprStr)
		if err != nil {
			r.errf("posh: invalid regex: %v\n", err)
			r.exit.code = 2
			return false
		}
		m := rx.FindStringSubmatch(str)
		if m == nil {
			return false
		}
		r.setVar("BASH_REMATCH", expand.Variable{
			Set:  true,
			Kind: expand.Indexed,
			List: m,
		})
		return true
	case syntax.TsBefore:
		return r.evalTestWordX(b.X) < r.evalTestWordX(b.Y)
	case syntax.TsAfter:
		return r.evalTestWordX(b.X) > r.evalTestWordX(b.Y)
	case syntax.TsEql, syntax.TsNeq, syntax.TsLeq, syntax.TsGeq,
		syntax.TsLss, syntax.TsGtr:
		x := atoi(r.evalTestWordX(b.X))
		y := atoi(r.evalTestWordX(b.Y))
		switch b.Op {
		case syntax.TsEql:
			return x == y
		case syntax.TsNeq:
			return x != y
		case syntax.TsLeq:
			return x <= y
		case syntax.TsGeq:
			return x >= y
		case syntax.TsLss:
			return x < y
		default:
			return x > y
		}
	case syntax.TsNewer, syntax.TsOlder, syntax.TsDevIno:
		xi, xerr := os.Stat(absPath(r.Dir, r.evalTestWordX(b.X)))
		yi, yerr := os.Stat(absPath(r.Dir, r.evalTestWordX(b.Y)))
		if xerr != nil || yerr != nil {
			return false
		}
		switch b.Op {
		case syntax.TsNewer:
			return xi.ModTime().After(yi.ModTime())
		case syntax.TsOlder:
			return xi.ModTime().Before(yi.ModTime())
		default:
			return os.SameFile(xi, yi)
		}
	case syntax.TsAnd:
		return r.evalTest(ctx, b.X, classic) != "" &&
			r.evalTest(ctx, b.Y, classic) != ""
	case syntax.TsOr:
		return r.evalTest(ctx, b.X, classic) != "" ||
			r.evalTest(ctx, b.Y, classic) != ""
	default:
		return false
	}
}

func (r *Runner) evalTestWordX(x syntax.TestExpr) string {
	if w, ok := x.(*syntax.Word); ok {
		return r.literal(w)
	}
	return ""
}

// atoi parses a decimal integer loosely, ignoring errors and
// whitespace, the way arithmetic contexts coerce strings.
func atoi(s string) int64 {
	s = strings.TrimSpace(s)
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// builtinTest implements test and [ by translating the argument list
// into a test expression and evaluating it.
func builtinTest(r *Runner, ctx context.Context, name string, args []string) int {
	if name == "[" {
		if len(args) == 0 || args[len(args)-1] != "]" {
			r.errf("posh: [: missing `]'\n")
			return 2
		}
		args = args[:len(args)-1]
	}
	ok, err := r.testArgs(ctx, args)
	if err != nil {
		r.errf("posh: %s: %v\n", name, err)
		return 2
	}
	if ok {
		return 0
	}
	return 1
}

// testArgs evaluates a classic test expression over plain arguments,
// including the -a and -o connectives.
func (r *Runner) testArgs(ctx context.Context, args []string) (bool, error) {
	// split on -o first, then -a, to get the right precedence
	for _, connective := range []string{"-o", "-a"} {
		depth := 0
		for i, arg := range args {
			switch arg {
			case "(":
				depth++
			case ")":
				depth--
			}
			if depth == 0 && arg == connective && i > 0 && i < len(args)-1 {
				left, err := r.testArgs(ctx, args[:i])
				if err != nil {
					return false, err
				}
				if connective == "-o" && left {
					return true, nil
				}
				if connective == "-a" && !left {
					return false, nil
				}
				return r.testArgs(ctx, args[i+1:])
			}
		}
	}
	switch len(args) {
	case 0:
		return false, nil
	case 1:
		return args[0] != "", nil
	}
	if args[0] == "!" {
		ok, err := r.testArgs(ctx, args[1:])
		return !ok, err
	}
	if args[0] == "(" && args[len(args)-1] == ")" {
		return r.testArgs(ctx, args[1:len(args)-1])
	}
	mkWord := func(s string) *syntax.Word {
		return &syntax.Word{Parts: []syntax.WordPart{&syntax.SglQuoted{Value: s}}}
	}
	switch len(args) {
	case 2:
		op := testUnaryOpFor(args[0])
		if op == 0 {
			return false, &StateError{Name: args[0], Op: "unary operator expected"}
		}
		u := &syntax.UnaryTest{Op: op, X: mkWord(args[1])}
		return r.evalUnaryTest(ctx, u, true), nil
	case 3:
		op := testBinaryOpFor(args[1])
		if op == 0 {
			return false, &StateError{Name: args[1], Op: "binary operator expected"}
		}
		b := &syntax.BinaryTest{Op: op, X: mkWord(args[0]), Y: mkWord(args[2])}
		return r.evalBinaryTest(ctx, b, true), nil
	}
	return false, &StateError{Name: strings.Join(args, " "), Op: "too many arguments"}
}

func testUnaryOpFor(s string) syntax.UnTestOperator {
	switch s {
	case "-e", "-a":
		return syntax.TsExists
	case "-f":
		return syntax.TsRegFile
	case "-d":
		return syntax.TsDirect
	case "-c":
		return syntax.TsCharSp
	case "-b":
		return syntax.TsBlckSp
	case "-p":
		return syntax.TsNmPipe
	case "-S":
		return syntax.TsSocket
	case "-L", "-h":
		return syntax.TsSmbLink
	case "-g":
		return syntax.TsGIDSet
	case "-u":
		return syntax.TsUIDSet
	case "-r":
		return syntax.TsRead
	case "-w":
		return syntax.TsWrite
	case "-x":
		return syntax.TsExec
	case "-s":
		return syntax.TsNoEmpty
	case "-t":
		return syntax.TsFdTerm
	case "-z":
		return syntax.TsEmpStr
	case "-n":
		return syntax.TsNempStr
	case "-o":
		return syntax.TsOptSet
	case "-v":
		return syntax.TsVarSet
	}
	return 0
}

func testBinaryOpFor(s string) syntax.BinTestOperator {
	switch s {
	case "=", "==":
		return syntax.TsAssgn
	case "!=":
		return syntax.TsNoMatch
	case "-eq":
		return syntax.TsEql
	case "-ne":
		return syntax.TsNeq
	case "-le":
		return syntax.TsLeq
	case "-ge":
		return syntax.TsGeq
	case "-lt":
		return syntax.TsLss
	case "-gt":
		return syntax.TsGtr
	case "-nt":
		return syntax.TsNewer
	case "-ot":
		return syntax.TsOlder
	case "-ef":
		return syntax.TsDevIno
	case "<":
		return syntax.TsBefore
	case ">":
		return syntax.TsAfter
	}
	return 0
}
