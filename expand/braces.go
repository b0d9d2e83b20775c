// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

package expand

import (
	"strconv"
	"strings"

	"github.com/posh-shell/posh/syntax"
)

// Braces performs brace expansion on the given words, returning the
// resulting list. Words without unquoted brace groups pass through
// unchanged. Both comma lists like {a,b} and sequences like {1..9}
// are supported; groups nest, and a group must be contained within a
// single literal part to be recognized.
func Braces(words ...*syntax.Word) []*syntax.Word {
	var out []*syntax.Word
	for _, word := range words {
		out = append(out, braceWord(word)...)
	}
	return out
}

func braceWord(word *syntax.Word) []*syntax.Word {
	for pi, part := range word.Parts {
		lit, ok := part.(*syntax.Lit)
		if !ok {
			continue
		}
		open, close, ok := findBraceGroup(lit.Value)
		if !ok {
			continue
		}
		elems := braceElems(lit.Value[open+1 : close])
		if elems == nil {
			continue
		}
		var out []*syntax.Word
		for _, elem := range elems {
			val := lit.Value[:open] + elem + lit.Value[close+1:]
			parts := make([]syntax.WordPart, 0, len(word.Parts))
			parts = append(parts, word.Parts[:pi]...)
			parts = append(parts, &syntax.Lit{
				ValuePos: lit.ValuePos,
				ValueEnd: lit.ValueEnd,
				Value:    val,
			})
			parts = append(parts, word.Parts[pi+1:]...)
			out = append(out, braceWord(&syntax.Word{Parts: parts})...)
		}
		return out
	}
	return []*syntax.Word{word}
}

// findBraceGroup locates the first balanced unescaped brace group.
func findBraceGroup(s string) (open, close int, ok bool) {
	depth := 0
	open = -1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '{':
			if depth == 0 {
				open = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					return open, i, true
				}
			}
		}
	}
	return 0, 0, false
}

// braceElems splits the inside of a brace group into its elements,
// or expands a sequence expression. A nil result means the group is
// not a valid brace expansion and stays literal.
func braceElems(s string) []string {
	if elems := seqElems(s); elems != nil {
		return elems
	}
	var elems []string
	depth := 0
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				elems = append(elems, s[last:i])
				last = i + 1
			}
		}
	}
	if len(elems) == 0 {
		return nil // {x} is not an expansion
	}
	return append(elems, s[last:])
}

// seqElems expands {x..y} and {x..y..incr} sequences, either numeric
// or single ASCII letters.
func seqElems(s string) []string {
	parts := strings.Split(s, "..")
	if len(parts) != 2 && len(parts) != 3 {
		return nil
	}
	incr := 1
	if len(parts) == 3 {
		n, err := strconv.Atoi(parts[2])
		if err != nil || n == 0 {
			return nil
		}
		incr = n
	}
	if incr < 0 {
		incr = -incr
	}
	if from, err := strconv.Atoi(parts[0]); err == nil {
		to, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil
		}
		var elems []string
		if from <= to {
			for i := from; i <= to; i += incr {
				elems = append(elems, strconv.Itoa(i))
			}
		} else {
			for i := from; i >= to; i -= incr {
				elems = append(elems, strconv.Itoa(i))
			}
		}
		return elems
	}
	if len(parts[0]) == 1 && len(parts[1]) == 1 &&
		isASCIILetter(parts[0][0]) && isASCIILetter(parts[1][0]) {
		from, to := parts[0][0], parts[1][0]
		var elems []string
		if from <= to {
			for c := from; c <= to; c += byte(incr) {
				elems = append(elems, string(c))
			}
		} else {
			for c := from; c >= to; c -= byte(incr) {
				elems = append(elems, string(c))
			}
		}
		return elems
	}
	return nil
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
