// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

package syntax

import (
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
)

// firstCmd parses src and returns the body of the first command of
// the first statement.
func firstCmd(t *testing.T, src string) Command {
	t.Helper()
	f, err := Parse([]byte(src), "")
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	if len(f.Stmts) == 0 {
		t.Fatalf("parse %q: no statements", src)
	}
	return f.Stmts[0].List.First.Cmds[0].Body
}

func TestParseSimpleCmd(t *testing.T) {
	c := qt.New(t)
	sc, ok := firstCmd(t, "echo foo bar").(*SimpleCmd)
	c.Assert(ok, qt.IsTrue)
	c.Assert(sc.Args, qt.HasLen, 3)
	c.Assert(sc.Args[0].Lit(), qt.Equals, "echo")
	c.Assert(sc.Args[2].Lit(), qt.Equals, "bar")
}

func TestParseAssignments(t *testing.T) {
	c := qt.New(t)
	sc := firstCmd(t, "a=1 b+=2 cmd").(*SimpleCmd)
	c.Assert(sc.Assigns, qt.HasLen, 2)
	c.Assert(sc.Assigns[0].Name.Value, qt.Equals, "a")
	c.Assert(sc.Assigns[0].Append, qt.IsFalse)
	c.Assert(sc.Assigns[1].Name.Value, qt.Equals, "b")
	c.Assert(sc.Assigns[1].Append, qt.IsTrue)
	c.Assert(sc.Args, qt.HasLen, 1)

	sc = firstCmd(t, "a[3]=x").(*SimpleCmd)
	c.Assert(sc.Assigns[0].Name.Value, qt.Equals, "a")
	c.Assert(sc.Assigns[0].Index, qt.IsNotNil)

	sc = firstCmd(t, "a=(x y z)").(*SimpleCmd)
	c.Assert(sc.Assigns[0].Array, qt.IsNotNil)
	c.Assert(sc.Assigns[0].Array.Elems, qt.HasLen, 3)
}

func TestParsePipeline(t *testing.T) {
	c := qt.New(t)
	f, err := Parse([]byte("! foo | bar |& baz"), "")
	c.Assert(err, qt.IsNil)
	pl := f.Stmts[0].List.First
	c.Assert(pl.Negated, qt.IsTrue)
	c.Assert(pl.Cmds, qt.HasLen, 3)
	c.Assert(pl.Ops, qt.HasLen, 2)
	c.Assert(pl.Ops[0], qt.Equals, Pipe)
	c.Assert(pl.Ops[1], qt.Equals, PipeAll)
}

func TestParseAndOrList(t *testing.T) {
	c := qt.New(t)
	f, err := Parse([]byte("a && b || c"), "")
	c.Assert(err, qt.IsNil)
	l := f.Stmts[0].List
	c.Assert(l.Rest, qt.HasLen, 2)
	c.Assert(l.Rest[0].Op, qt.Equals, AndStmt)
	c.Assert(l.Rest[1].Op, qt.Equals, OrStmt)
}

func TestParseKeywordsOnlyAtCommandPosition(t *testing.T) {
	c := qt.New(t)
	// "if" as an argument must stay a plain word
	sc, ok := firstCmd(t, "echo if").(*SimpleCmd)
	c.Assert(ok, qt.IsTrue)
	c.Assert(sc.Args[1].Lit(), qt.Equals, "if")

	_, ok = firstCmd(t, "if true; then echo x; fi").(*IfCmd)
	c.Assert(ok, qt.IsTrue)
}

func TestParseIfElifElse(t *testing.T) {
	c := qt.New(t)
	ic := firstCmd(t, "if a; then b; elif c; then d; else e; fi").(*IfCmd)
	c.Assert(ic.Branches, qt.HasLen, 2)
	c.Assert(ic.Else, qt.HasLen, 1)
}

func TestParseLoops(t *testing.T) {
	c := qt.New(t)
	wc := firstCmd(t, "while a; do b; done").(*WhileCmd)
	c.Assert(wc.Until, qt.IsFalse)
	uc := firstCmd(t, "until a; do b; done").(*WhileCmd)
	c.Assert(uc.Until, qt.IsTrue)

	fc := firstCmd(t, "for x in a b c; do echo $x; done").(*ForCmd)
	c.Assert(fc.Name.Value, qt.Equals, "x")
	c.Assert(fc.Items, qt.HasLen, 3)
	c.Assert(fc.Select, qt.IsFalse)

	sel := firstCmd(t, "select x in a b; do echo $x; done").(*ForCmd)
	c.Assert(sel.Select, qt.IsTrue)

	cf := firstCmd(t, "for ((i=0; i<3; i++)); do echo $i; done").(*CForCmd)
	c.Assert(cf.Init, qt.IsNotNil)
	c.Assert(cf.Cond, qt.IsNotNil)
	c.Assert(cf.Post, qt.IsNotNil)
}

func TestParseCase(t *testing.T) {
	c := qt.New(t)
	cc := firstCmd(t, "case $x in a|b) echo ab;; c) echo c;& d) echo d;;& e) echo e;; esac").(*CaseCmd)
	c.Assert(cc.Arms, qt.HasLen, 4)
	c.Assert(cc.Arms[0].Patterns, qt.HasLen, 2)
	c.Assert(cc.Arms[0].Op, qt.Equals, Break)
	c.Assert(cc.Arms[1].Op, qt.Equals, Fallthrough)
	c.Assert(cc.Arms[2].Op, qt.Equals, Resume)
}

func TestParseFuncDecl(t *testing.T) {
	c := qt.New(t)
	fd := firstCmd(t, "foo() { echo hi; }").(*FuncDecl)
	c.Assert(fd.Name.Value, qt.Equals, "foo")
	c.Assert(fd.RsrvWord, qt.IsFalse)

	fd = firstCmd(t, "function foo { echo hi; }").(*FuncDecl)
	c.Assert(fd.Name.Value, qt.Equals, "foo")
	c.Assert(fd.RsrvWord, qt.IsTrue)
}

func TestParseRedirects(t *testing.T) {
	c := qt.New(t)
	f, err := Parse([]byte("cmd <in >out 2>>err 3>&1 >|clob"), "")
	c.Assert(err, qt.IsNil)
	cmd := f.Stmts[0].List.First.Cmds[0]
	c.Assert(cmd.Redirs, qt.HasLen, 5)
	c.Assert(cmd.Redirs[0].Op, qt.Equals, RdrIn)
	c.Assert(cmd.Redirs[1].Op, qt.Equals, RdrOut)
	c.Assert(cmd.Redirs[2].Op, qt.Equals, AppOut)
	c.Assert(cmd.Redirs[2].N.Value, qt.Equals, "2")
	c.Assert(cmd.Redirs[3].Op, qt.Equals, DplOut)
	c.Assert(cmd.Redirs[4].Op, qt.Equals, ClbOut)
}

func TestParseHeredoc(t *testing.T) {
	c := qt.New(t)
	src := "cat <<EOF\nhello $x\nworld\nEOF\n"
	f, err := Parse([]byte(src), "")
	c.Assert(err, qt.IsNil)
	rd := f.Stmts[0].List.First.Cmds[0].Redirs[0]
	c.Assert(rd.Op, qt.Equals, Hdoc)
	c.Assert(rd.Hdoc, qt.IsNotNil)
	c.Assert(rd.HdocQuoted, qt.IsFalse)

	src = "cat <<'EOF'\nhello $x\nEOF\n"
	f, err = Parse([]byte(src), "")
	c.Assert(err, qt.IsNil)
	rd = f.Stmts[0].List.First.Cmds[0].Redirs[0]
	c.Assert(rd.HdocQuoted, qt.IsTrue)
	c.Assert(rd.Hdoc.Lit(), qt.Equals, "hello $x\n")

	// partial quoting still counts as quoting
	src = "cat <<E\"O\"F\nhello $x\nEOF\n"
	f, err = Parse([]byte(src), "")
	c.Assert(err, qt.IsNil)
	rd = f.Stmts[0].List.First.Cmds[0].Redirs[0]
	c.Assert(rd.HdocQuoted, qt.IsTrue)
}

func TestParseWordParts(t *testing.T) {
	c := qt.New(t)
	sc := firstCmd(t, `echo "hello"$USER'!'`).(*SimpleCmd)
	c.Assert(sc.Args, qt.HasLen, 2)
	parts := sc.Args[1].Parts
	c.Assert(parts, qt.HasLen, 3)
	_, isDq := parts[0].(*DblQuoted)
	c.Assert(isDq, qt.IsTrue)
	pe, isPe := parts[1].(*ParamExp)
	c.Assert(isPe, qt.IsTrue)
	c.Assert(pe.Param.Value, qt.Equals, "USER")
	c.Assert(pe.Short, qt.IsTrue)
	sq, isSq := parts[2].(*SglQuoted)
	c.Assert(isSq, qt.IsTrue)
	c.Assert(sq.Value, qt.Equals, "!")
}

func TestParseParamExp(t *testing.T) {
	c := qt.New(t)
	get := func(src string) *ParamExp {
		sc := firstCmd(t, "echo "+src).(*SimpleCmd)
		return sc.Args[1].Parts[0].(*ParamExp)
	}
	pe := get("${x:-def}")
	c.Assert(pe.Exp, qt.IsNotNil)
	c.Assert(pe.Exp.Op, qt.Equals, DefaultValueOrNull)
	c.Assert(pe.Exp.Word.Lit(), qt.Equals, "def")

	pe = get("${#x}")
	c.Assert(pe.Length, qt.IsTrue)

	pe = get("${x##*/}")
	c.Assert(pe.Exp.Op, qt.Equals, RemLargePrefix)

	pe = get("${x/a/b}")
	c.Assert(pe.Repl, qt.IsNotNil)
	c.Assert(pe.Repl.All, qt.IsFalse)

	pe = get("${x//a/b}")
	c.Assert(pe.Repl.All, qt.IsTrue)

	pe = get("${x:1:2}")
	c.Assert(pe.Slice, qt.IsNotNil)
	c.Assert(pe.Slice.Offset, qt.IsNotNil)
	c.Assert(pe.Slice.Length, qt.IsNotNil)

	pe = get("${!x}")
	c.Assert(pe.Excl, qt.IsTrue)

	pe = get("${a[@]}")
	c.Assert(pe.Index, qt.IsNotNil)

	pe = get("${x^^}")
	c.Assert(pe.Exp.Op, qt.Equals, UpperAll)
}

func TestParseCmdSubst(t *testing.T) {
	c := qt.New(t)
	sc := firstCmd(t, "echo $(date) `uname`").(*SimpleCmd)
	cs := sc.Args[1].Parts[0].(*CmdSubst)
	c.Assert(cs.Backquote, qt.IsFalse)
	cs = sc.Args[2].Parts[0].(*CmdSubst)
	c.Assert(cs.Backquote, qt.IsTrue)
}

func TestParseArithmExp(t *testing.T) {
	c := qt.New(t)
	sc := firstCmd(t, "echo $((1 + 2 * 3))").(*SimpleCmd)
	ae := sc.Args[1].Parts[0].(*ArithmExp)
	b := ae.X.(*BinaryArithm)
	c.Assert(b.Op, qt.Equals, Add)
	inner := b.Y.(*BinaryArithm)
	c.Assert(inner.Op, qt.Equals, Mul)
}

func TestParseArithmAssociativity(t *testing.T) {
	c := qt.New(t)
	x, err := ParseArithm("1 - 2 + 3")
	c.Assert(err, qt.IsNil)
	// same-level operators group to the left
	b := x.(*BinaryArithm)
	c.Assert(b.Op, qt.Equals, Add)
	left := b.X.(*BinaryArithm)
	c.Assert(left.Op, qt.Equals, Sub)

	x, err = ParseArithm("2 ** 3 ** 2")
	c.Assert(err, qt.IsNil)
	// exponentiation groups to the right
	b = x.(*BinaryArithm)
	c.Assert(b.Op, qt.Equals, Pow)
	right := b.Y.(*BinaryArithm)
	c.Assert(right.Op, qt.Equals, Pow)
}

func TestParseTestCmd(t *testing.T) {
	c := qt.New(t)
	tc := firstCmd(t, "[[ -f foo && $x == a* ]]").(*TestCmd)
	b := tc.X.(*BinaryTest)
	c.Assert(b.Op, qt.Equals, TsAnd)
	u := b.X.(*UnaryTest)
	c.Assert(u.Op, qt.Equals, TsRegFile)
	m := b.Y.(*BinaryTest)
	c.Assert(m.Op, qt.Equals, TsMatch)
}

func TestParseArithmCmdVsSubshell(t *testing.T) {
	c := qt.New(t)
	_, isArithm := firstCmd(t, "((x = 1 + 2))").(*ArithmCmd)
	c.Assert(isArithm, qt.IsTrue)
	_, isSubshell := firstCmd(t, "( (echo a) )").(*Subshell)
	c.Assert(isSubshell, qt.IsTrue)
}

func TestParseProcSubst(t *testing.T) {
	c := qt.New(t)
	sc := firstCmd(t, "diff <(sort a) >(cat)").(*SimpleCmd)
	ps := sc.Args[1].Parts[0].(*ProcSubst)
	c.Assert(ps.Op, qt.Equals, CmdIn)
	ps = sc.Args[2].Parts[0].(*ProcSubst)
	c.Assert(ps.Op, qt.Equals, CmdOut)
}

func TestParseBackground(t *testing.T) {
	c := qt.New(t)
	f, err := Parse([]byte("sleep 1 & echo done"), "")
	c.Assert(err, qt.IsNil)
	c.Assert(f.Stmts, qt.HasLen, 2)
	c.Assert(f.Stmts[0].Background, qt.IsTrue)
	c.Assert(f.Stmts[1].Background, qt.IsFalse)
}

func TestParseErrors(t *testing.T) {
	c := qt.New(t)
	cases := []struct {
		src, wantSub string
	}{
		{"'unclosed", "without closing quote"},
		{`"unclosed`, "without closing quote"},
		{"if true; then echo x;", `must end with "fi"`},
		{"while true; do x;", `must end with "done"`},
		{"case x in a) b;;", `must end with "esac"`},
		{"foo | ", "must be followed by a statement"},
		{"foo &&", "must be followed by a statement"},
		{"echo ${", "parameter expansion requires a literal"},
		{"echo $(foo", "without matching"},
		{"foo )", "can only be used to close a subshell"},
		{";", "can only immediately follow a statement"},
	}
	for _, tc := range cases {
		_, err := Parse([]byte(tc.src), "")
		c.Assert(err, qt.IsNotNil, qt.Commentf("src: %q", tc.src))
		c.Assert(err.Error(), qt.Contains, tc.wantSub, qt.Commentf("src: %q", tc.src))
	}
}

func TestParseErrorPosition(t *testing.T) {
	c := qt.New(t)
	_, err := Parse([]byte("echo ok\nfoo )"), "file.sh")
	c.Assert(err, qt.IsNotNil)
	pe := err.(*ParseError)
	c.Assert(pe.Filename, qt.Equals, "file.sh")
	c.Assert(pe.Line, qt.Equals, 2)
	c.Assert(strings.HasPrefix(err.Error(), "file.sh:2:"), qt.IsTrue)
}

func TestIsIncomplete(t *testing.T) {
	c := qt.New(t)
	for _, src := range []string{
		"if true; then",
		"echo 'abc",
		"foo && ",
		"while true; do",
	} {
		_, err := Parse([]byte(src), "")
		c.Assert(err, qt.IsNotNil, qt.Commentf("src: %q", src))
		c.Assert(IsIncomplete(err), qt.IsTrue, qt.Commentf("src: %q", src))
	}
	_, err := Parse([]byte("foo )"), "")
	c.Assert(IsIncomplete(err), qt.IsFalse)
}

func TestParseWords(t *testing.T) {
	c := qt.New(t)
	words, err := ParseWords([]byte(`foo "bar baz" $HOME`))
	c.Assert(err, qt.IsNil)
	c.Assert(words, qt.HasLen, 3)
	c.Assert(words[0].Lit(), qt.Equals, "foo")
}

func TestParseEmpty(t *testing.T) {
	c := qt.New(t)
	f, err := Parse(nil, "")
	c.Assert(err, qt.IsNil)
	c.Assert(f.Stmts, qt.HasLen, 0)
}

func TestPosition(t *testing.T) {
	c := qt.New(t)
	f, err := Parse([]byte("echo a\necho b\n"), "")
	c.Assert(err, qt.IsNil)
	pos := f.Position(f.Stmts[1].Pos())
	c.Assert(pos.Line, qt.Equals, 2)
	c.Assert(pos.Column, qt.Equals, 1)
}
