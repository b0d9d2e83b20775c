// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

package expand

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/posh-shell/posh/pattern"
	"github.com/posh-shell/posh/syntax"
)

// UnsetParameterError is returned for ${x?msg} expansions of unset
// parameters, and for unset parameters under set -u.
type UnsetParameterError struct {
	Node    *syntax.ParamExp
	Message string
}

func (u UnsetParameterError) Error() string {
	return fmt.Sprintf("%s: %s", u.Node.Param.Value, u.Message)
}

func anyOfLit(v syntax.ArithmExpr, vals ...string) string {
	w, _ := v.(*syntax.Word)
	if w == nil {
		return ""
	}
	lit := w.Lit()
	for _, val := range vals {
		if lit == val {
			return val
		}
	}
	return ""
}

func (cfg *Config) paramExp(pe *syntax.ParamExp) (string, error) {
	name := pe.Param.Value
	index := pe.Index
	switch name {
	case "@", "*":
		index = &syntax.Word{Parts: []syntax.WordPart{
			&syntax.Lit{Value: name},
		}}
	}
	vr := cfg.Env.Get(name)
	if vr.Kind == NameRef && !pe.Excl {
		_, vr = vr.Resolve(cfg.Env)
	}
	set := vr.IsSet()
	str := vr.String()
	var err error
	if index != nil {
		str, err = cfg.varInd(vr, index)
		if err != nil {
			return "", err
		}
	}
	elems := []string{str}
	if anyOfLit(index, "@", "*") != "" {
		switch vr.Kind {
		case Unknown:
			elems = nil
		case Indexed:
			elems = vr.List
		case Associative:
			keys := make([]string, 0, len(vr.Map))
			for k := range vr.Map {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			elems = elems[:0]
			for _, k := range keys {
				elems = append(elems, vr.Map[k])
			}
		}
	}
	switch {
	case pe.Length:
		n := len(elems)
		if anyOfLit(index, "@", "*") == "" {
			n = utf8.RuneCountInString(str)
		}
		return strconv.Itoa(n), nil
	case pe.Excl:
		var strs []string
		switch {
		case pe.Names != 0:
			strs = cfg.namesByPrefix(pe.Param.Value)
		case vr.Kind == NameRef:
			strs = append(strs, vr.Str)
		case anyOfLit(index, "@", "*") != "" && vr.Kind == Indexed:
			for i, e := range vr.List {
				if e != "" {
					strs = append(strs, strconv.Itoa(i))
				}
			}
		case anyOfLit(index, "@", "*") != "" && vr.Kind == Associative:
			for k := range vr.Map {
				strs = append(strs, k)
			}
		case str != "":
			vr = cfg.Env.Get(str)
			strs = append(strs, vr.String())
		}
		sort.Strings(strs)
		return strings.Join(strs, " "), nil
	case pe.Slice != nil:
		if anyOfLit(index, "@", "*") != "" {
			if name == "@" || name == "*" {
				// positional slicing counts $0 at offset zero
				elems = append([]string{cfg.Env.Get("0").String()}, elems...)
			}
			return cfg.sliceElems(pe, elems)
		}
		return cfg.sliceStr(pe, str)
	case pe.Repl != nil:
		orig, err := Pattern(cfg, pe.Repl.Orig)
		if err != nil {
			return "", err
		}
		with, err := Literal(cfg, pe.Repl.With)
		if err != nil {
			return "", err
		}
		n := 1
		if pe.Repl.All {
			n = -1
		}
		locs := findAllIndex(orig, str, n)
		var sb strings.Builder
		last := 0
		for _, loc := range locs {
			sb.WriteString(str[last:loc[0]])
			sb.WriteString(with)
			last = loc[1]
		}
		sb.WriteString(str[last:])
		return sb.String(), nil
	case pe.Exp != nil:
		return cfg.expOp(pe, name, str, set, elems)
	}
	if !set && cfg.NoUnset && !isSpecialParam(name) {
		return "", UnsetParameterError{Node: pe, Message: "unbound variable"}
	}
	return str, nil
}

func isSpecialParam(name string) bool {
	switch name {
	case "@", "*", "#", "?", "$", "!", "-", "0":
		return true
	}
	if len(name) == 1 && name[0] >= '1' && name[0] <= '9' {
		return true
	}
	return false
}

func (cfg *Config) expOp(pe *syntax.ParamExp, name, str string, set bool, elems []string) (string, error) {
	arg, err := Literal(cfg, pe.Exp.Word)
	if err != nil {
		return "", err
	}
	switch op := pe.Exp.Op; op {
	case syntax.AlternateValue:
		if set {
			return arg, nil
		}
		return "", nil
	case syntax.AlternateValueOrNull:
		if str != "" {
			return arg, nil
		}
		return "", nil
	case syntax.DefaultValue:
		if set {
			return str, nil
		}
		return arg, nil
	case syntax.DefaultValueOrNull:
		if str == "" {
			return arg, nil
		}
		return str, nil
	case syntax.ErrorUnset, syntax.ErrorUnsetOrNull:
		unset := !set
		if op == syntax.ErrorUnsetOrNull {
			unset = str == ""
		}
		if unset {
			if arg == "" {
				arg = "parameter null or not set"
			}
			return "", UnsetParameterError{Node: pe, Message: arg}
		}
		return str, nil
	case syntax.AssignUnset, syntax.AssignUnsetOrNull:
		unset := !set
		if op == syntax.AssignUnsetOrNull {
			unset = str == ""
		}
		if unset {
			if err := cfg.envSet(name, arg); err != nil {
				return "", err
			}
			return arg, nil
		}
		return str, nil
	case syntax.RemSmallPrefix, syntax.RemLargePrefix,
		syntax.RemSmallSuffix, syntax.RemLargeSuffix:
		suffix := op == syntax.RemSmallSuffix || op == syntax.RemLargeSuffix
		large := op == syntax.RemLargePrefix || op == syntax.RemLargeSuffix
		for i, elem := range elems {
			elems[i] = removePattern(elem, arg, suffix, large)
		}
		return strings.Join(elems, " "), nil
	case syntax.UpperFirst, syntax.UpperAll,
		syntax.LowerFirst, syntax.LowerAll:
		caseFunc := unicode.ToLower
		if op == syntax.UpperFirst || op == syntax.UpperAll {
			caseFunc = unicode.ToUpper
		}
		all := op == syntax.UpperAll || op == syntax.LowerAll

		// an empty pattern matches any character
		expr, err := pattern.Regexp(arg, 0)
		if err != nil {
			return str, nil
		}
		rx := regexp.MustCompile(expr)
		for i, elem := range elems {
			rs := []rune(elem)
			for ri, r := range rs {
				if arg == "" || rx.MatchString(string(r)) {
					rs[ri] = caseFunc(r)
					if !all {
						break
					}
				}
			}
			elems[i] = string(rs)
		}
		return strings.Join(elems, " "), nil
	default:
		panic(fmt.Sprintf("unhandled expansion operator: %v", pe.Exp.Op))
	}
}

func (cfg *Config) slicePos(expr syntax.ArithmExpr, length int) (int, error) {
	n, err := Arithm(cfg, expr)
	if err != nil {
		return 0, err
	}
	p := int(n)
	if p < 0 {
		p = length + p
		if p < 0 {
			p = length
		}
	} else if p > length {
		p = length
	}
	return p, nil
}

func (cfg *Config) sliceStr(pe *syntax.ParamExp, str string) (string, error) {
	rs := []rune(str)
	if pe.Slice.Offset != nil {
		offset, err := cfg.slicePos(pe.Slice.Offset, len(rs))
		if err != nil {
			return "", err
		}
		rs = rs[offset:]
	}
	if pe.Slice.Length != nil {
		n, err := Arithm(cfg, pe.Slice.Length)
		if err != nil {
			return "", err
		}
		length := int(n)
		if length < 0 {
			// a negative length counts back from the end
			length = len(rs) + length
			if length < 0 {
				return "", fmt.Errorf("substring expression < 0")
			}
		} else if length > len(rs) {
			length = len(rs)
		}
		rs = rs[:length]
	}
	return string(rs), nil
}

func (cfg *Config) sliceElems(pe *syntax.ParamExp, elems []string) (string, error) {
	if pe.Slice.Offset != nil {
		offset, err := cfg.slicePos(pe.Slice.Offset, len(elems))
		if err != nil {
			return "", err
		}
		elems = elems[offset:]
	}
	if pe.Slice.Length != nil {
		length, err := cfg.slicePos(pe.Slice.Length, len(elems))
		if err != nil {
			return "", err
		}
		elems = elems[:length]
	}
	return strings.Join(elems, " "), nil
}

func (cfg *Config) varInd(vr Variable, idx syntax.ArithmExpr) (string, error) {
	_, vr = vr.Resolve(cfg.Env)
	switch vr.Kind {
	case String:
		n, err := Arithm(cfg, idx)
		if err != nil {
			return "", err
		}
		if n == 0 {
			return vr.Str, nil
		}
	case Indexed:
		switch anyOfLit(idx, "@", "*") {
		case "@":
			return strings.Join(vr.List, " "), nil
		case "*":
			return cfg.ifsJoin(vr.List), nil
		}
		n, err := Arithm(cfg, idx)
		if err != nil {
			return "", err
		}
		i := int(n)
		if i < 0 {
			i += len(vr.List)
		}
		if i >= 0 && i < len(vr.List) {
			return vr.List[i], nil
		}
	case Associative:
		switch lit := anyOfLit(idx, "@", "*"); lit {
		case "@", "*":
			keys := make([]string, 0, len(vr.Map))
			for k := range vr.Map {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			strs := make([]string, 0, len(keys))
			for _, k := range keys {
				strs = append(strs, vr.Map[k])
			}
			if lit == "*" {
				return cfg.ifsJoin(strs), nil
			}
			return strings.Join(strs, " "), nil
		}
		w, ok := idx.(*syntax.Word)
		if !ok {
			return "", nil
		}
		k, err := Literal(cfg, w)
		if err != nil {
			return "", err
		}
		return vr.Map[k], nil
	}
	return "", nil
}

func (cfg *Config) namesByPrefix(prefix string) []string {
	var names []string
	cfg.Env.Each(func(name string, vr Variable) bool {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return true
	})
	return names
}

// findAllIndex locates up to n matches of a shell pattern in name.
func findAllIndex(pat, name string, n int) [][]int {
	expr, err := pattern.Regexp(pat, 0)
	if err != nil {
		return nil
	}
	rx, err := regexp.Compile(expr)
	if err != nil {
		return nil
	}
	return rx.FindAllStringIndex(name, n)
}

// removePattern strips the smallest or largest prefix or suffix of
// str matching a shell pattern.
func removePattern(str, pat string, fromEnd, greedy bool) string {
	mode := pattern.Mode(0)
	if !greedy {
		mode |= pattern.Shortest
	}
	expr, err := pattern.Regexp(pat, mode)
	if err != nil {
		return str
	}
	switch {
	case fromEnd && !greedy:
		// use a greedy .* prefix to find the shortest suffix
		expr = "(?s).*(" + expr + ")$"
	case fromEnd:
		expr = "(?s)(" + expr + ")$"
	default:
		expr = "^(" + expr + ")"
	}
	rx, err := regexp.Compile(expr)
	if err != nil {
		return str
	}
	if loc := rx.FindStringSubmatchIndex(str); loc != nil {
		// remove the submatch, keeping the rest
		str = str[:loc[2]] + str[loc[3]:]
	}
	return str
}
