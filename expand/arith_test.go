// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

package expand

import (
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/posh-shell/posh/syntax"
)

func evalArithm(t *testing.T, cfg *Config, src string) (int64, error) {
	t.Helper()
	expr, err := syntax.ParseArithm(src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return Arithm(cfg, expr)
}

func TestArithmBasics(t *testing.T) {
	c := qt.New(t)
	cfg := &Config{Env: newMapEnviron("x=10", "y=3", "s=1+2")}
	cases := []struct {
		src  string
		want int64
	}{
		{"0", 0},
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"10 / 3", 3},
		{"-10 / 3", -3}, // truncation toward zero
		{"-7 % 2", -1},  // C-style modulo
		{"7 % -2", 1},
		{"2 ** 10", 1024},
		{"2 ** 3 ** 2", 512}, // right-associative
		{"1 << 4", 16},
		{"256 >> 4", 16},
		{"1 << 64", -9223372036854775808}, // count clamped to 63
		{"1 >> -1", 1},                    // count clamped to 0
		{"5 & 3", 1},
		{"5 | 3", 7},
		{"5 ^ 3", 6},
		{"~0", -1},
		{"!0", 1},
		{"!5", 0},
		{"1 < 2", 1},
		{"2 <= 1", 0},
		{"3 == 3", 1},
		{"3 != 3", 0},
		{"1 && 2", 1},
		{"1 && 0", 0},
		{"0 || 0", 0},
		{"0 || 9", 1},
		{"1 ? 10 : 20", 10},
		{"0 ? 10 : 20", 20},
		{"1, 2, 3", 3},
		{"x", 10},
		{"x + y", 13},
		{"s", 3}, // variables holding expressions evaluate recursively
		{"unset_var", 0},
		{"0x1f", 31},
		{"010", 8},
		{"2#101", 5},
		{"16#ff", 255},
		{"36#z", 35},
	}
	for _, tc := range cases {
		got, err := evalArithm(t, cfg, tc.src)
		c.Assert(err, qt.IsNil, qt.Commentf("src: %q", tc.src))
		c.Assert(got, qt.Equals, tc.want, qt.Commentf("src: %q", tc.src))
	}
}

func TestArithmAssignments(t *testing.T) {
	c := qt.New(t)
	env := newMapEnviron("x=5")
	cfg := &Config{Env: env}

	got, err := evalArithm(t, cfg, "x = 40 + 2")
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, int64(42))
	c.Assert(env.Get("x").Str, qt.Equals, "42")

	got, err = evalArithm(t, cfg, "x += 8")
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, int64(50))

	got, err = evalArithm(t, cfg, "x++")
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, int64(50)) // post-increment yields the old value
	c.Assert(env.Get("x").Str, qt.Equals, "51")

	got, err = evalArithm(t, cfg, "++x")
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, int64(52))

	got, err = evalArithm(t, cfg, "x--")
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, int64(52))
	c.Assert(env.Get("x").Str, qt.Equals, "51")
}

func TestArithmSideEffectsOnce(t *testing.T) {
	c := qt.New(t)
	env := newMapEnviron("n=0")
	cfg := &Config{Env: env}
	// only the taken branch of a ternary runs its side effects
	_, err := evalArithm(t, cfg, "1 ? (n += 1) : (n += 100)")
	c.Assert(err, qt.IsNil)
	c.Assert(env.Get("n").Str, qt.Equals, "1")
}

func TestArithmErrors(t *testing.T) {
	c := qt.New(t)
	cfg := &Config{Env: newMapEnviron()}
	cases := []struct {
		src  string
		want error
	}{
		{"1 / 0", ErrDivByZero},
		{"1 % 0", ErrDivByZero},
		{"2 ** -1", ErrNegExponent},
		{"09", ErrBadNumber},
		{"65#1", ErrBadBase},
		{"1#1", ErrBadBase},
		{"2#9", ErrBadNumber},
	}
	for _, tc := range cases {
		_, err := evalArithm(t, cfg, tc.src)
		c.Assert(errors.Is(err, tc.want), qt.IsTrue,
			qt.Commentf("src %q gave %v, want %v", tc.src, err, tc.want))
	}
}

func TestArithmReferentialTransparency(t *testing.T) {
	c := qt.New(t)
	cfg := &Config{Env: newMapEnviron("a=6", "b=7")}
	for _, src := range []string{"a * b", "a << 2", "(a + b) % 5"} {
		first, err := evalArithm(t, cfg, src)
		c.Assert(err, qt.IsNil)
		second, err := evalArithm(t, cfg, src)
		c.Assert(err, qt.IsNil)
		c.Assert(first, qt.Equals, second)
	}
}
