// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

package pattern

import (
	"regexp"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestRegexpMatches(t *testing.T) {
	c := qt.New(t)
	cases := []struct {
		pat   string
		mode  Mode
		str   string
		match bool
	}{
		{"foo", EntireString, "foo", true},
		{"foo", EntireString, "foobar", false},
		{"foo*", EntireString, "foobar", true},
		{"*", EntireString, "", true},
		{"?", EntireString, "a", true},
		{"?", EntireString, "ab", false},
		{"[abc]", EntireString, "b", true},
		{"[!abc]", EntireString, "b", false},
		{"[a-z]", EntireString, "q", true},
		{"[a-z]", EntireString, "Q", false},
		{"[[:digit:]]", EntireString, "5", true},
		{"[[:digit:]]", EntireString, "x", false},
		{`\*`, EntireString, "*", true},
		{`\*`, EntireString, "x", false},
		{"a*b", EntireString, "a\nb", true}, // globs match newlines
		{"FOO", EntireString | NoGlobCase, "foo", true},
		{"*", EntireString | Filenames, "a/b", false},
		{"a/*", EntireString | Filenames, "a/b", true},
		{"?", EntireString | Filenames, "/", false},
	}
	for _, tc := range cases {
		expr, err := Regexp(tc.pat, tc.mode)
		c.Assert(err, qt.IsNil, qt.Commentf("pattern: %q", tc.pat))
		rx := regexp.MustCompile(expr)
		c.Assert(rx.MatchString(tc.str), qt.Equals, tc.match,
			qt.Commentf("pattern %q vs %q (regexp %q)", tc.pat, tc.str, expr))
	}
}

func TestRegexpShortcut(t *testing.T) {
	c := qt.New(t)
	// plain strings pass through untouched
	got, err := Regexp("foo-bar_baz", 0)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, "foo-bar_baz")
}

func TestRegexpErrors(t *testing.T) {
	c := qt.New(t)
	for _, pat := range []string{
		`\`,
		"[",
		"[a",
		"[z-a]",
		"[[:bogus:]]",
	} {
		_, err := Regexp(pat, 0)
		c.Assert(err, qt.IsNotNil, qt.Commentf("pattern: %q", pat))
	}
}

func TestHasMeta(t *testing.T) {
	c := qt.New(t)
	c.Assert(HasMeta("foo"), qt.IsFalse)
	c.Assert(HasMeta("foo*"), qt.IsTrue)
	c.Assert(HasMeta(`foo\*`), qt.IsFalse)
	c.Assert(HasMeta("fo?o"), qt.IsTrue)
	c.Assert(HasMeta("[ab]"), qt.IsTrue)
}

func TestQuoteMeta(t *testing.T) {
	c := qt.New(t)
	c.Assert(QuoteMeta("foo"), qt.Equals, "foo")
	c.Assert(QuoteMeta("foo*bar?"), qt.Equals, `foo\*bar\?`)
	c.Assert(QuoteMeta("[x]"), qt.Equals, `\[x]`)
	// quoting then translating matches the literal text
	expr, err := Regexp(QuoteMeta("a*b"), EntireString)
	c.Assert(err, qt.IsNil)
	rx := regexp.MustCompile(expr)
	c.Assert(rx.MatchString("a*b"), qt.IsTrue)
	c.Assert(rx.MatchString("axb"), qt.IsFalse)
}
