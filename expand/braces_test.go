// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

package expand

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/posh-shell/posh/syntax"
)

func TestBraces(t *testing.T) {
	cases := []struct {
		src  string
		want []string
	}{
		{`a`, []string{"a"}},
		{`{a,b}`, []string{"a", "b"}},
		{`x{a,b}y`, []string{"xay", "xby"}},
		{`{a,b}{c,d}`, []string{"ac", "ad", "bc", "bd"}},
		{`{a,{b,c}}`, []string{"a", "b", "c"}},
		{`{1..4}`, []string{"1", "2", "3", "4"}},
		{`{4..1}`, []string{"4", "3", "2", "1"}},
		{`{0..10..5}`, []string{"0", "5", "10"}},
		{`{a..c}`, []string{"a", "b", "c"}},
		{`{a}`, []string{"{a}"}},       // no comma: not an expansion
		{`{a..}`, []string{"{a..}"}},   // bad sequence stays literal
		{`'{a,b}'`, []string{"{a,b}"}}, // quoted braces stay literal
	}
	for _, tc := range cases {
		words, err := syntax.ParseWords([]byte(tc.src))
		if err != nil {
			t.Fatalf("parse %q: %v", tc.src, err)
		}
		cfg := &Config{Env: newMapEnviron()}
		var got []string
		for _, w := range Braces(words...) {
			s, err := Literal(cfg, w)
			if err != nil {
				t.Fatalf("expand %q: %v", tc.src, err)
			}
			got = append(got, s)
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("braces %q mismatch (-want +got):\n%s", tc.src, diff)
		}
	}
}
