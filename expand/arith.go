// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

package expand

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/posh-shell/posh/syntax"
)

// Sentinel arithmetic evaluation errors; the errors returned by
// [Arithm] wrap one of these where applicable.
var (
	ErrDivByZero   = errors.New("division by zero")
	ErrNegExponent = errors.New("exponent less than 0")
	ErrBadBase     = errors.New("invalid arithmetic base")
	ErrBadNumber   = errors.New("invalid arithmetic number")
	ErrBadShift    = errors.New("shift count out of range")
)

// Arithm evaluates an arithmetic expression to a signed 64-bit
// integer. Division and modulo truncate toward zero, matching C, so
// that (-7)%2 is -1 and 7%(-2) is 1.
func Arithm(cfg *Config, expr syntax.ArithmExpr) (int64, error) {
	if expr == nil {
		// an empty expression, as in $(( )), evaluates to zero
		return 0, nil
	}
	switch expr := expr.(type) {
	case *syntax.Word:
		str, err := Literal(cfg, expr)
		if err != nil {
			return 0, err
		}
		return cfg.arithmWord(str, 0)
	case *syntax.ParenArithm:
		return Arithm(cfg, expr.X)
	case *syntax.UnaryArithm:
		switch expr.Op {
		case syntax.Inc, syntax.Dec:
			name, err := arithmVarName(cfg, expr.X)
			if err != nil {
				return 0, err
			}
			old, err := cfg.arithmWord(cfg.arithmVarGet(name), 0)
			if err != nil {
				return 0, err
			}
			val := old
			if expr.Op == syntax.Inc {
				val++
			} else {
				val--
			}
			if err := cfg.arithmVarSet(name, val); err != nil {
				return 0, err
			}
			if expr.Post {
				return old, nil
			}
			return val, nil
		}
		val, err := Arithm(cfg, expr.X)
		if err != nil {
			return 0, err
		}
		switch expr.Op {
		case syntax.Not:
			return oneIf(val == 0), nil
		case syntax.BitNegation:
			return ^val, nil
		case syntax.Plus:
			return val, nil
		default: // syntax.Minus
			return -val, nil
		}
	case *syntax.BinaryArithm:
		switch expr.Op {
		case syntax.Assgn, syntax.AddAssgn, syntax.SubAssgn,
			syntax.MulAssgn, syntax.QuoAssgn, syntax.RemAssgn,
			syntax.AndAssgn, syntax.OrAssgn, syntax.XorAssgn,
			syntax.ShlAssgn, syntax.ShrAssgn:
			return cfg.assgnArithm(expr)
		case syntax.TernQuest: // TernColon can't happen here
			cond, err := Arithm(cfg, expr.X)
			if err != nil {
				return 0, err
			}
			b2 := expr.Y.(*syntax.BinaryArithm) // must have Op==TernColon
			if cond != 0 {
				return Arithm(cfg, b2.X)
			}
			return Arithm(cfg, b2.Y)
		case syntax.AndArit:
			left, err := Arithm(cfg, expr.X)
			if err != nil {
				return 0, err
			}
			if left == 0 {
				return 0, nil
			}
			right, err := Arithm(cfg, expr.Y)
			if err != nil {
				return 0, err
			}
			return oneIf(right != 0), nil
		case syntax.OrArit:
			left, err := Arithm(cfg, expr.X)
			if err != nil {
				return 0, err
			}
			if left != 0 {
				return 1, nil
			}
			right, err := Arithm(cfg, expr.Y)
			if err != nil {
				return 0, err
			}
			return oneIf(right != 0), nil
		}
		left, err := Arithm(cfg, expr.X)
		if err != nil {
			return 0, err
		}
		right, err := Arithm(cfg, expr.Y)
		if err != nil {
			return 0, err
		}
		return binArithm(expr.Op, left, right)
	default:
		panic(fmt.Sprintf("unexpected arithm expr: %T", expr))
	}
}

func oneIf(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// arithmWord resolves an arithmetic leaf string: a numeric literal, a
// variable name followed recursively, an array element, or a nested
// expression.
func (cfg *Config) arithmWord(str string, depth int) (int64, error) {
	str = strings.TrimSpace(str)
	if depth > maxNameRefDepth {
		return 0, nil
	}
	if str == "" {
		return 0, nil
	}
	if syntax.ValidName(str) {
		val := cfg.envGet(str)
		return cfg.arithmWord(val, depth+1)
	}
	if name, idx, ok := splitElemRef(str); ok {
		val, err := cfg.arithmElemGet(name, idx)
		if err != nil {
			return 0, err
		}
		return cfg.arithmWord(val, depth+1)
	}
	n, err := parseArithmNum(str)
	if err == nil {
		return n, nil
	}
	if strings.ContainsAny(str, "+-*/%()&|^<>?:=!~ \t") {
		// not a plain number; reparse as a nested expression, as
		// happens for variables holding expression strings
		expr, perr := syntax.ParseArithm(str)
		if perr == nil {
			if w, ok := expr.(*syntax.Word); !ok || w.Lit() != str {
				return Arithm(cfg, expr)
			}
		}
	}
	if errors.Is(err, errNotNumber) {
		return 0, fmt.Errorf("%w: %q", ErrBadNumber, str)
	}
	return 0, err
}

var errNotNumber = errors.New("not a number")

// parseArithmNum parses the shell's arithmetic literals: decimal,
// 0x hex, leading-0 octal, and base#digits for bases 2 through 64.
func parseArithmNum(s string) (int64, error) {
	neg := false
	if strings.HasPrefix(s, "-") {
		neg, s = true, s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	if s == "" {
		return 0, errNotNumber
	}
	abs := func(n int64, err error) (int64, error) {
		if neg {
			n = -n
		}
		return n, err
	}
	if base, digits, ok := strings.Cut(s, "#"); ok {
		b, err := strconv.ParseInt(base, 10, 64)
		if err != nil || b < 2 || b > 64 {
			return 0, fmt.Errorf("%w: %q", ErrBadBase, base)
		}
		return abs(parseBaseNum(digits, b))
	}
	if s[0] < '0' || s[0] > '9' {
		return 0, errNotNumber
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, err := strconv.ParseInt(s[2:], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrBadNumber, s)
		}
		return abs(n, nil)
	}
	if len(s) > 1 && s[0] == '0' {
		n, err := strconv.ParseInt(s[1:], 8, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid octal %q", ErrBadNumber, s)
		}
		return abs(n, nil)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadNumber, s)
	}
	return abs(n, nil)
}

// parseBaseNum parses digits in an arbitrary base up to 64, using
// 0-9, a-z, A-Z, @ and _ as digit characters.
func parseBaseNum(digits string, base int64) (int64, error) {
	if digits == "" {
		return 0, fmt.Errorf("%w: empty number", ErrBadNumber)
	}
	var n int64
	for _, c := range digits {
		var d int64
		switch {
		case '0' <= c && c <= '9':
			d = int64(c - '0')
		case 'a' <= c && c <= 'z':
			d = int64(c-'a') + 10
		case 'A' <= c && c <= 'Z':
			d = int64(c-'A') + 36
		case c == '@':
			d = 62
		case c == '_':
			d = 63
		default:
			return 0, fmt.Errorf("%w: %q", ErrBadNumber, digits)
		}
		if base <= 36 && d >= 36 {
			// bases up to 36 treat letters case-insensitively
			d -= 26
		}
		if d >= base {
			return 0, fmt.Errorf("%w: digit %q out of range for base %d", ErrBadNumber, c, base)
		}
		n = n*base + d
	}
	return n, nil
}

// splitElemRef splits an "a[expr]" array element reference.
func splitElemRef(s string) (name, idx string, ok bool) {
	i := strings.IndexByte(s, '[')
	if i <= 0 || !strings.HasSuffix(s, "]") {
		return "", "", false
	}
	name = s[:i]
	if !syntax.ValidName(name) {
		return "", "", false
	}
	return name, s[i+1 : len(s)-1], true
}

func (cfg *Config) arithmElemGet(name, idx string) (string, error) {
	vr := cfg.Env.Get(name)
	_, vr = vr.Resolve(cfg.Env)
	switch vr.Kind {
	case Indexed:
		i, err := cfg.arithmWord(idx, 0)
		if err != nil {
			return "", err
		}
		if i < 0 {
			i += int64(len(vr.List))
		}
		if i >= 0 && i < int64(len(vr.List)) {
			return vr.List[i], nil
		}
		return "", nil
	case Associative:
		return vr.Map[idx], nil
	default:
		if idx == "0" || idx == "" {
			return vr.String(), nil
		}
		return "", nil
	}
}

// arithmVarName extracts the assignable reference from the left side
// of an assignment or an increment: a plain name or a[expr].
func arithmVarName(cfg *Config, x syntax.ArithmExpr) (string, error) {
	w, ok := x.(*syntax.Word)
	if !ok {
		return "", fmt.Errorf("%w: assignment requires a variable name", ErrBadNumber)
	}
	str, err := Literal(cfg, w)
	if err != nil {
		return "", err
	}
	str = strings.TrimSpace(str)
	if !syntax.ValidName(str) {
		if _, _, ok := splitElemRef(str); !ok {
			return "", fmt.Errorf("%w: %q is not a variable name", ErrBadNumber, str)
		}
	}
	return str, nil
}

func (cfg *Config) arithmVarGet(ref string) string {
	if name, idx, ok := splitElemRef(ref); ok {
		s, _ := cfg.arithmElemGet(name, idx)
		return s
	}
	return cfg.envGet(ref)
}

func (cfg *Config) arithmVarSet(ref string, val int64) error {
	str := strconv.FormatInt(val, 10)
	name, idx, ok := splitElemRef(ref)
	if !ok {
		return cfg.envSet(ref, str)
	}
	wenv, ok := cfg.Env.(WriteEnviron)
	if !ok {
		return fmt.Errorf("environment is read-only")
	}
	vr := cfg.Env.Get(name)
	switch vr.Kind {
	case Associative:
		if vr.Map == nil {
			vr.Map = make(map[string]string)
		}
		vr.Map[idx] = str
	default:
		i, err := cfg.arithmWord(idx, 0)
		if err != nil {
			return err
		}
		if vr.Kind == String {
			vr.List = []string{vr.Str}
		}
		vr.Kind = Indexed
		for int64(len(vr.List)) <= i {
			vr.List = append(vr.List, "")
		}
		vr.List[i] = str
	}
	vr.Set = true
	return wenv.Set(name, vr)
}

func (cfg *Config) assgnArithm(b *syntax.BinaryArithm) (int64, error) {
	name, err := arithmVarName(cfg, b.X)
	if err != nil {
		return 0, err
	}
	val, err := cfg.arithmWord(cfg.arithmVarGet(name), 0)
	if err != nil {
		return 0, err
	}
	arg, err := Arithm(cfg, b.Y)
	if err != nil {
		return 0, err
	}
	if b.Op == syntax.Assgn {
		val = arg
	} else {
		op := map[syntax.BinAritOperator]syntax.BinAritOperator{
			syntax.AddAssgn: syntax.Add,
			syntax.SubAssgn: syntax.Sub,
			syntax.MulAssgn: syntax.Mul,
			syntax.QuoAssgn: syntax.Quo,
			syntax.RemAssgn: syntax.Rem,
			syntax.AndAssgn: syntax.And,
			syntax.OrAssgn:  syntax.Or,
			syntax.XorAssgn: syntax.Xor,
			syntax.ShlAssgn: syntax.Shl,
			syntax.ShrAssgn: syntax.Shr,
		}[b.Op]
		if val, err = binArithm(op, val, arg); err != nil {
			return 0, err
		}
	}
	if err := cfg.arithmVarSet(name, val); err != nil {
		return 0, err
	}
	return val, nil
}

func intPow(a, b int64) int64 {
	p := int64(1)
	for b > 0 {
		if b&1 != 0 {
			p *= a
		}
		b >>= 1
		a *= a
	}
	return p
}

func binArithm(op syntax.BinAritOperator, x, y int64) (int64, error) {
	switch op {
	case syntax.Add:
		return x + y, nil
	case syntax.Sub:
		return x - y, nil
	case syntax.Mul:
		return x * y, nil
	case syntax.Quo:
		if y == 0 {
			return 0, ErrDivByZero
		}
		return x / y, nil
	case syntax.Rem:
		if y == 0 {
			return 0, ErrDivByZero
		}
		return x % y, nil
	case syntax.Pow:
		if y < 0 {
			return 0, ErrNegExponent
		}
		return intPow(x, y), nil
	case syntax.Eql:
		return oneIf(x == y), nil
	case syntax.Gtr:
		return oneIf(x > y), nil
	case syntax.Lss:
		return oneIf(x < y), nil
	case syntax.Neq:
		return oneIf(x != y), nil
	case syntax.Leq:
		return oneIf(x <= y), nil
	case syntax.Geq:
		return oneIf(x >= y), nil
	case syntax.And:
		return x & y, nil
	case syntax.Or:
		return x | y, nil
	case syntax.Xor:
		return x ^ y, nil
	case syntax.Shr, syntax.Shl:
		// shift counts are clamped to 0-63
		if y < 0 {
			y = 0
		} else if y > 63 {
			y = 63
		}
		if op == syntax.Shr {
			return x >> uint(y), nil
		}
		return x << uint(y), nil
	default: // syntax.Comma: x is evaluated, its result discarded
		return y, nil
	}
}
