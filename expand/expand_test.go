// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

package expand

import (
	"errors"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/posh-shell/posh/syntax"
)

// mapEnviron is a writable environment for tests.
type mapEnviron struct {
	vars map[string]Variable
}

func newMapEnviron(pairs ...string) *mapEnviron {
	m := &mapEnviron{vars: make(map[string]Variable)}
	for _, pair := range pairs {
		name, value, _ := strings.Cut(pair, "=")
		m.vars[name] = Variable{Set: true, Kind: String, Str: value}
	}
	return m
}

func (m *mapEnviron) Get(name string) Variable {
	return m.vars[name]
}

func (m *mapEnviron) Set(name string, vr Variable) error {
	m.vars[name] = vr
	return nil
}

func (m *mapEnviron) Each(fn func(name string, vr Variable) bool) {
	for name, vr := range m.vars {
		if !fn(name, vr) {
			return
		}
	}
}

func parseWord(t *testing.T, src string) *syntax.Word {
	t.Helper()
	words, err := syntax.ParseWords([]byte(src))
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	if len(words) != 1 {
		t.Fatalf("parse %q: want one word, got %d", src, len(words))
	}
	return words[0]
}

func parseWords(t *testing.T, src string) []*syntax.Word {
	t.Helper()
	words, err := syntax.ParseWords([]byte(src))
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return words
}

func TestLiteral(t *testing.T) {
	c := qt.New(t)
	env := newMapEnviron("FOO=bar", "EMPTY=")
	cfg := &Config{Env: env}
	cases := []struct {
		src, want string
	}{
		{`plain`, "plain"},
		{`'single $FOO'`, "single $FOO"},
		{`"double $FOO"`, "double bar"},
		{`$FOO`, "bar"},
		{`${FOO}`, "bar"},
		{`pre${FOO}post`, "prebarpost"},
		{`$EMPTY`, ""},
		{`$UNSET`, ""},
		{`${UNSET:-def}`, "def"},
		{`${EMPTY:-def}`, "def"},
		{`${EMPTY-def}`, ""},
		{`${FOO:+alt}`, "alt"},
		{`${UNSET:+alt}`, ""},
		{`${#FOO}`, "3"},
		{`${FOO#b}`, "ar"},
		{`${FOO%r}`, "ba"},
		{`${FOO/b/c}`, "car"},
		{`${FOO^}`, "Bar"},
		{`${FOO^^}`, "BAR"},
		{`$((2 + 3))`, "5"},
		{`$'a\tb'`, "a\tb"},
	}
	for _, tc := range cases {
		got, err := Literal(cfg, parseWord(t, tc.src))
		c.Assert(err, qt.IsNil, qt.Commentf("src: %s", tc.src))
		c.Assert(got, qt.Equals, tc.want, qt.Commentf("src: %s", tc.src))
	}
}

func TestLiteralAssign(t *testing.T) {
	c := qt.New(t)
	env := newMapEnviron()
	cfg := &Config{Env: env}
	got, err := Literal(cfg, parseWord(t, "${X:=hello}"))
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, "hello")
	c.Assert(env.Get("X").Str, qt.Equals, "hello")
}

func TestLiteralUnsetError(t *testing.T) {
	c := qt.New(t)
	cfg := &Config{Env: newMapEnviron()}
	_, err := Literal(cfg, parseWord(t, "${X:?no value}"))
	c.Assert(err, qt.IsNotNil)
	var upe UnsetParameterError
	c.Assert(errors.As(err, &upe), qt.IsTrue)
	c.Assert(upe.Message, qt.Equals, "no value")
}

func TestFieldsSplitting(t *testing.T) {
	c := qt.New(t)
	env := newMapEnviron("SPACED=one two  three", "EMPTY=")
	cfg := &Config{Env: env}
	cases := []struct {
		src  string
		want []string
	}{
		{`a b c`, []string{"a", "b", "c"}},
		{`$SPACED`, []string{"one", "two", "three"}},
		{`"$SPACED"`, []string{"one two  three"}},
		{`pre$EMPTY`, []string{"pre"}},
		{`$EMPTY`, nil},
		{`"$EMPTY"`, []string{""}},
		{`''`, []string{""}},
		{`x$SPACED`, []string{"xone", "two", "three"}},
		{`{a,b}c`, []string{"ac", "bc"}},
		{`{1..3}`, []string{"1", "2", "3"}},
	}
	for _, tc := range cases {
		got, err := Fields(cfg, parseWords(t, tc.src)...)
		c.Assert(err, qt.IsNil, qt.Commentf("src: %s", tc.src))
		c.Assert(got, qt.DeepEquals, tc.want, qt.Commentf("src: %s", tc.src))
	}
}

func TestFieldsCustomIFS(t *testing.T) {
	c := qt.New(t)
	env := newMapEnviron("IFS=:", "PATHISH=a:b:c")
	cfg := &Config{Env: env}
	got, err := Fields(cfg, parseWord(t, "$PATHISH"))
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, []string{"a", "b", "c"})

	// an empty IFS disables splitting entirely
	env.Set("IFS", Variable{Set: true, Kind: String, Str: ""})
	got, err = Fields(cfg, parseWord(t, "$PATHISH"))
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, []string{"a:b:c"})
}

func TestQuotedParamsDistribute(t *testing.T) {
	c := qt.New(t)
	env := newMapEnviron()
	env.vars["@"] = Variable{Set: true, Kind: Indexed, List: []string{"a", "b"}}
	cfg := &Config{Env: env}

	got, err := Fields(cfg, parseWord(t, `"$@"`))
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, []string{"a", "b"})

	// prefixes and suffixes attach to the first and last fields
	got, err = Fields(cfg, parseWord(t, `"x$@y"`))
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, []string{"xa", "by"})

	// with no parameters, "$@" produces zero fields
	env.vars["@"] = Variable{Set: true, Kind: Indexed, List: nil}
	got, err = Fields(cfg, parseWord(t, `"$@"`))
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, []string(nil))
}

func TestArrays(t *testing.T) {
	c := qt.New(t)
	env := newMapEnviron()
	env.vars["a"] = Variable{Set: true, Kind: Indexed, List: []string{"x", "y", "z"}}
	cfg := &Config{Env: env}
	cases := []struct {
		src, want string
	}{
		{`${a[0]}`, "x"},
		{`${a[2]}`, "z"},
		{`${a[@]}`, "x y z"},
		{`${#a[@]}`, "3"},
		{`${a[1+1]}`, "z"},
	}
	for _, tc := range cases {
		got, err := Literal(cfg, parseWord(t, tc.src))
		c.Assert(err, qt.IsNil, qt.Commentf("src: %s", tc.src))
		c.Assert(got, qt.Equals, tc.want, qt.Commentf("src: %s", tc.src))
	}
}

func TestSlices(t *testing.T) {
	c := qt.New(t)
	env := newMapEnviron("S=hello world")
	cfg := &Config{Env: env}
	cases := []struct {
		src, want string
	}{
		{`${S:6}`, "world"},
		{`${S:0:5}`, "hello"},
		{`${S:6:100}`, "world"},
		{`${S: -5}`, "world"},
	}
	for _, tc := range cases {
		got, err := Literal(cfg, parseWord(t, tc.src))
		c.Assert(err, qt.IsNil, qt.Commentf("src: %s", tc.src))
		c.Assert(got, qt.Equals, tc.want, qt.Commentf("src: %s", tc.src))
	}
}

func TestFormat(t *testing.T) {
	c := qt.New(t)
	cases := []struct {
		format string
		args   []string
		want   string
	}{
		{`plain`, nil, "plain"},
		{`a\tb\n`, nil, "a\tb\n"},
		{`\x41`, nil, "A"},
		{`\101`, nil, "A"},
		{`%s-%s`, []string{"a", "b"}, "a-b"},
		{`%d`, []string{"42"}, "42"},
		{`%05d`, []string{"42"}, "00042"},
		{`%x`, []string{"255"}, "ff"},
		{`%%`, []string{}, "%"},
	}
	for _, tc := range cases {
		got, _, err := Format(tc.format, tc.args)
		c.Assert(err, qt.IsNil, qt.Commentf("format: %q", tc.format))
		c.Assert(got, qt.Equals, tc.want, qt.Commentf("format: %q", tc.format))
	}
}

func TestReadFields(t *testing.T) {
	c := qt.New(t)
	cfg := &Config{Env: newMapEnviron()}
	got := ReadFields(cfg, "a b c", -1, false)
	c.Assert(got, qt.DeepEquals, []string{"a", "b", "c"})
	got = ReadFields(cfg, "a b c", 2, false)
	c.Assert(got, qt.DeepEquals, []string{"a", "b c"})
	got = ReadFields(cfg, `a\ b c`, -1, false)
	c.Assert(got, qt.DeepEquals, []string{"a b", "c"})
	got = ReadFields(cfg, `a\ b c`, -1, true)
	c.Assert(got, qt.DeepEquals, []string{`a\`, "b", "c"})
}
