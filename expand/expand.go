// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

package expand

import (
	"fmt"
	"io"
	"io/fs"
	"os/user"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/posh-shell/posh/pattern"
	"github.com/posh-shell/posh/syntax"
)

// Config collects the state the expansion stages read. Env must not
// be nil; the other fields are optional.
type Config struct {
	Env Environ

	// CmdSubst runs a command substitution, writing its standard
	// output to the given writer. If nil, command substitutions
	// expand to an empty string.
	CmdSubst func(io.Writer, *syntax.CmdSubst) error

	// ProcSubst runs a process substitution and returns the path
	// exposed to the command, such as a file under /dev/fd.
	ProcSubst func(*syntax.ProcSubst) (string, error)

	// ReadDir reads a directory for pathname expansion. If nil,
	// globbing is disabled, as with set -f.
	ReadDir func(string) ([]fs.DirEntry, error)

	GlobStar   bool
	NoCaseGlob bool
	NullGlob   bool
	NoUnset    bool

	ifs string
}

func (cfg *Config) prepareIFS() {
	vr := cfg.Env.Get("IFS")
	if !vr.IsSet() {
		cfg.ifs = " \t\n"
	} else {
		cfg.ifs = vr.String()
	}
}

func (cfg *Config) ifsRune(r rune) bool {
	for _, r2 := range cfg.ifs {
		if r == r2 {
			return true
		}
	}
	return false
}

func (cfg *Config) ifsJoin(strs []string) string {
	sep := ""
	if cfg.ifs != "" {
		sep = cfg.ifs[:1]
	}
	return strings.Join(strs, sep)
}

func (cfg *Config) envGet(name string) string {
	return cfg.Env.Get(name).String()
}

func (cfg *Config) envSet(name, value string) error {
	wenv, ok := cfg.Env.(WriteEnviron)
	if !ok {
		return fmt.Errorf("environment is read-only")
	}
	return wenv.Set(name, Variable{Set: true, Kind: String, Str: value})
}

// Literal expands a single word without field splitting or pathname
// expansion, as used for assignment values and redirect targets.
func Literal(cfg *Config, word *syntax.Word) (string, error) {
	if word == nil {
		return "", nil
	}
	cfg.prepareIFS()
	field, err := cfg.wordField(word.Parts, quoteDouble, true)
	if err != nil {
		return "", err
	}
	return fieldJoin(field), nil
}

// Document expands a word following the rules of an unquoted heredoc
// body: expansions happen, but no splitting, globbing, or tilde.
func Document(cfg *Config, word *syntax.Word) (string, error) {
	if word == nil {
		return "", nil
	}
	cfg.prepareIFS()
	field, err := cfg.wordField(word.Parts, quoteHdoc, false)
	if err != nil {
		return "", err
	}
	return fieldJoin(field), nil
}

// Pattern expands a word into a shell pattern string, quoting the
// pattern metacharacters within any quoted parts so that they match
// literally.
func Pattern(cfg *Config, word *syntax.Word) (string, error) {
	cfg.prepareIFS()
	field, err := cfg.wordField(word.Parts, quoteSingle, true)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, part := range field {
		if part.quote > quoteNone {
			sb.WriteString(pattern.QuoteMeta(part.val))
		} else {
			sb.WriteString(part.val)
		}
	}
	return sb.String(), nil
}

// Fields expands a number of words as a shell would when building the
// argument list of a simple command, applying the full set of stages:
// brace and tilde expansion, parameter and command and arithmetic
// substitution, field splitting, pathname expansion, and quote
// removal.
func Fields(cfg *Config, words ...*syntax.Word) ([]string, error) {
	cfg.prepareIFS()
	var fields []string
	dir := cfg.envGet("PWD")
	for _, word := range Braces(words...) {
		wfields, err := cfg.wordFields(word.Parts)
		if err != nil {
			return nil, err
		}
		for _, field := range wfields {
			path, doGlob := cfg.escapedGlobField(field)
			var matches []string
			if doGlob && cfg.ReadDir != nil {
				matches = cfg.glob(dir, path)
				if len(matches) == 0 && cfg.NullGlob {
					continue
				}
			}
			if len(matches) == 0 {
				fields = append(fields, fieldJoin(field))
				continue
			}
			sort.Strings(matches)
			fields = append(fields, matches...)
		}
	}
	return fields, nil
}

type quoteLevel uint8

const (
	quoteNone quoteLevel = iota
	quoteHdoc
	quoteDouble
	quoteSingle
)

type fieldPart struct {
	val   string
	quote quoteLevel
}

func fieldJoin(parts []fieldPart) string {
	switch len(parts) {
	case 0:
		return ""
	case 1: // short-cut without a string copy
		return parts[0].val
	}
	var sb strings.Builder
	for _, part := range parts {
		sb.WriteString(part.val)
	}
	return sb.String()
}

func (cfg *Config) escapedGlobField(parts []fieldPart) (escaped string, glob bool) {
	var sb strings.Builder
	for _, part := range parts {
		if part.quote > quoteNone {
			sb.WriteString(pattern.QuoteMeta(part.val))
			continue
		}
		sb.WriteString(part.val)
		if pattern.HasMeta(part.val) {
			glob = true
		}
	}
	if glob { // only copy the string if it will be used
		escaped = sb.String()
	}
	return escaped, glob
}

// wordField expands word parts into a single field, with ql giving
// the surrounding quote context. tilde allows user expansion on the
// word's leading literal, which quoting disables.
func (cfg *Config) wordField(wps []syntax.WordPart, ql quoteLevel, tilde bool) ([]fieldPart, error) {
	var field []fieldPart
	for i, wp := range wps {
		switch x := wp.(type) {
		case *syntax.Lit:
			s := x.Value
			if i == 0 && tilde {
				s = cfg.expandUser(s)
			}
			if ql == quoteDouble || ql == quoteHdoc {
				s = unescapeDquote(s)
			} else {
				s = unescape(s)
			}
			field = append(field, fieldPart{val: s})
		case *syntax.SglQuoted:
			fp := fieldPart{quote: quoteSingle, val: x.Value}
			if x.Dollar {
				var err error
				fp.val, _, err = Format(fp.val, nil)
				if err != nil {
					return nil, err
				}
			}
			field = append(field, fp)
		case *syntax.DblQuoted:
			sub, err := cfg.wordField(x.Parts, quoteDouble, false)
			if err != nil {
				return nil, err
			}
			for _, part := range sub {
				part.quote = quoteDouble
				field = append(field, part)
			}
		case *syntax.ParamExp:
			val, err := cfg.paramExp(x)
			if err != nil {
				return nil, err
			}
			field = append(field, fieldPart{val: val})
		case *syntax.CmdSubst:
			val, err := cfg.cmdSubst(x)
			if err != nil {
				return nil, err
			}
			field = append(field, fieldPart{val: val})
		case *syntax.ArithmExp:
			n, err := Arithm(cfg, x.X)
			if err != nil {
				return nil, err
			}
			field = append(field, fieldPart{val: strconv.FormatInt(n, 10)})
		case *syntax.ProcSubst:
			path, err := cfg.procSubst(x)
			if err != nil {
				return nil, err
			}
			field = append(field, fieldPart{val: path})
		default:
			panic(fmt.Sprintf("unhandled word part: %T", x))
		}
	}
	return field, nil
}

func (cfg *Config) cmdSubst(cs *syntax.CmdSubst) (string, error) {
	if cfg.CmdSubst == nil {
		return "", nil
	}
	var sb strings.Builder
	if err := cfg.CmdSubst(&sb, cs); err != nil {
		return "", err
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (cfg *Config) procSubst(ps *syntax.ProcSubst) (string, error) {
	if cfg.ProcSubst == nil {
		return "", fmt.Errorf("process substitution is not supported here")
	}
	return cfg.ProcSubst(ps)
}

// wordFields expands word parts into any number of fields, splitting
// unquoted expansion results on IFS.
func (cfg *Config) wordFields(wps []syntax.WordPart) ([][]fieldPart, error) {
	var fields [][]fieldPart
	var curField []fieldPart
	allowEmpty := false
	flush := func() {
		if len(curField) == 0 {
			return
		}
		fields = append(fields, curField)
		curField = nil
	}
	splitAdd := func(val string) {
		fieldStart := -1
		for i, r := range val {
			if cfg.ifsRune(r) {
				if fieldStart >= 0 {
					curField = append(curField, fieldPart{val: val[fieldStart:i]})
					fieldStart = -1
				}
				flush()
			} else if fieldStart < 0 {
				fieldStart = i
			}
		}
		if fieldStart >= 0 {
			curField = append(curField, fieldPart{val: val[fieldStart:]})
		}
	}
	for i, wp := range wps {
		switch x := wp.(type) {
		case *syntax.Lit:
			s := x.Value
			if i == 0 {
				s = cfg.expandUser(s)
			}
			curField = append(curField, fieldPart{val: unescape(s)})
		case *syntax.SglQuoted:
			allowEmpty = true
			fp := fieldPart{quote: quoteSingle, val: x.Value}
			if x.Dollar {
				var err error
				fp.val, _, err = Format(fp.val, nil)
				if err != nil {
					return nil, err
				}
			}
			curField = append(curField, fp)
		case *syntax.DblQuoted:
			hasAt := false
			for _, part := range x.Parts {
				if pe, ok := part.(*syntax.ParamExp); ok {
					if elems, ok := cfg.quotedElems(pe); ok {
						hasAt = true
						for i, elem := range elems {
							if i > 0 {
								flush()
							}
							curField = append(curField, fieldPart{
								quote: quoteDouble,
								val:   elem,
							})
						}
						continue
					}
				}
				sub, err := cfg.wordField([]syntax.WordPart{part}, quoteDouble, false)
				if err != nil {
					return nil, err
				}
				for _, fp := range sub {
					fp.quote = quoteDouble
					curField = append(curField, fp)
				}
			}
			if !hasAt {
				allowEmpty = true
			}
		case *syntax.ParamExp:
			val, err := cfg.paramExp(x)
			if err != nil {
				return nil, err
			}
			splitAdd(val)
		case *syntax.CmdSubst:
			val, err := cfg.cmdSubst(x)
			if err != nil {
				return nil, err
			}
			splitAdd(val)
		case *syntax.ArithmExp:
			n, err := Arithm(cfg, x.X)
			if err != nil {
				return nil, err
			}
			curField = append(curField, fieldPart{val: strconv.FormatInt(n, 10)})
		case *syntax.ProcSubst:
			path, err := cfg.procSubst(x)
			if err != nil {
				return nil, err
			}
			curField = append(curField, fieldPart{val: path})
		default:
			panic(fmt.Sprintf("unhandled word part: %T", x))
		}
	}
	flush()
	if allowEmpty && len(fields) == 0 {
		fields = append(fields, curField)
	}
	return fields, nil
}

// quotedElems returns the elements of a "$@" or "${a[@]}" expansion
// within double quotes, which distribute into separate fields rather
// than joining.
func (cfg *Config) quotedElems(pe *syntax.ParamExp) ([]string, bool) {
	if pe == nil || pe.Excl || pe.Length || pe.Slice != nil ||
		pe.Repl != nil || pe.Exp != nil || pe.Names != 0 {
		return nil, false
	}
	if pe.Param.Value == "@" && pe.Index == nil {
		vr := cfg.Env.Get("@")
		return vr.List, true
	}
	if w, ok := pe.Index.(*syntax.Word); !ok || w.Lit() != "@" {
		return nil, false
	}
	vr := cfg.Env.Get(pe.Param.Value)
	_, vr = vr.Resolve(cfg.Env)
	switch vr.Kind {
	case Indexed:
		return vr.List, true
	case Associative:
		keys := make([]string, 0, len(vr.Map))
		for k := range vr.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		elems := make([]string, 0, len(keys))
		for _, k := range keys {
			elems = append(elems, vr.Map[k])
		}
		return elems, true
	case String:
		if vr.Set {
			return []string{vr.Str}, true
		}
		return nil, true
	}
	return nil, true
}

// unescape removes backslash escapes from an unquoted literal.
func unescape(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b == '\\' && i+1 < len(s) {
			i++
			b = s[i]
		}
		sb.WriteByte(b)
	}
	return sb.String()
}

// unescapeDquote removes the escapes a backslash performs within
// double quotes, where only a handful of characters are special.
func unescapeDquote(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '\n': // line continuation
				i++
				continue
			case '"', '\\', '$', '`':
				i++
				b = s[i]
			}
		}
		sb.WriteByte(b)
	}
	return sb.String()
}

// expandUser performs tilde expansion on the start of a word.
func (cfg *Config) expandUser(field string) string {
	if len(field) == 0 || field[0] != '~' {
		return field
	}
	name := field[1:]
	rest := ""
	if i := strings.Index(name, "/"); i >= 0 {
		rest = name[i:]
		name = name[:i]
	}
	if name == "" {
		return cfg.Env.Get("HOME").String() + rest
	}
	u, err := user.Lookup(name)
	if err != nil {
		return field
	}
	return u.HomeDir + rest
}

// glob expands a pattern into the matching pathnames under dir.
func (cfg *Config) glob(dir, pat string) []string {
	parts := strings.Split(pat, "/")
	matches := []string{""}
	if strings.HasPrefix(pat, "/") {
		matches = []string{"/"}
		for len(parts) > 0 && parts[0] == "" {
			parts = parts[1:]
		}
	}
	for _, part := range parts {
		switch {
		case part == "", part == ".", part == "..":
			for i, dir := range matches {
				matches[i] = pathJoin2(dir, part)
			}
			continue
		case !pattern.HasMeta(part):
			lit := unescape(part)
			exact := func(name string) bool { return name == lit }
			var newMatches []string
			for _, d := range matches {
				newMatches = cfg.globDir(dir, d, exact, newMatches)
			}
			matches = newMatches
			continue
		case part == "**" && cfg.GlobStar:
			// "a/**" matches "a/", "a/b", "a/b/c", and so on
			latest := matches
			for i := range matches {
				matches[i] = pathJoin2(matches[i], "")
			}
			for {
				var newMatches []string
				for _, d := range latest {
					newMatches = cfg.globDir(dir, d, anyDirEntry, newMatches)
				}
				if len(newMatches) == 0 {
					break
				}
				matches = append(matches, newMatches...)
				latest = newMatches
			}
			continue
		}
		mode := pattern.Filenames | pattern.EntireString
		if cfg.NoCaseGlob {
			mode |= pattern.NoGlobCase
		}
		expr, err := pattern.Regexp(part, mode)
		if err != nil {
			return nil
		}
		rx := regexp.MustCompile(expr)
		wantHidden := strings.HasPrefix(part, ".") || strings.HasPrefix(part, "\\.")
		match := func(name string) bool {
			if !wantHidden && strings.HasPrefix(name, ".") {
				return false
			}
			return rx.MatchString(name)
		}
		var newMatches []string
		for _, d := range matches {
			newMatches = cfg.globDir(dir, d, match, newMatches)
		}
		matches = newMatches
	}
	return matches
}

func anyDirEntry(string) bool { return true }

func pathJoin2(base, name string) string {
	if base == "" {
		return name
	}
	if strings.HasSuffix(base, "/") {
		return base + name
	}
	return base + "/" + name
}

func (cfg *Config) globDir(base, dir string, match func(string) bool, matches []string) []string {
	full := dir
	if !filepath.IsAbs(full) {
		full = filepath.Join(base, dir)
	}
	infos, err := cfg.ReadDir(full)
	if err != nil {
		return matches
	}
	for _, info := range infos {
		name := info.Name()
		if match(name) {
			matches = append(matches, pathJoin2(dir, name))
		}
	}
	return matches
}

// ReadFields splits a string into at most n fields the way the read
// builtin does; raw disables backslash processing.
func ReadFields(cfg *Config, s string, n int, raw bool) []string {
	cfg.prepareIFS()
	type pos struct {
		start, end int
	}
	var fpos []pos

	runes := make([]rune, 0, len(s))
	infield := false
	esc := false
	for _, r := range s {
		if infield {
			if cfg.ifsRune(r) && (raw || !esc) {
				fpos[len(fpos)-1].end = len(runes)
				infield = false
			}
		} else {
			if !cfg.ifsRune(r) && (raw || !esc) {
				fpos = append(fpos, pos{start: len(runes), end: -1})
				infield = true
			}
		}
		if r == '\\' {
			if raw || esc {
				runes = append(runes, r)
			}
			esc = !esc
			continue
		}
		runes = append(runes, r)
		esc = false
	}
	if len(fpos) == 0 {
		return nil
	}
	if infield {
		fpos[len(fpos)-1].end = len(runes)
	}

	switch {
	case n == 1:
		// include leading and trailing IFS characters
		fpos[0].start, fpos[0].end = 0, len(runes)
		fpos = fpos[:1]
	case n != -1 && n < len(fpos):
		// collapse down to n fields
		fpos[n-1].end = fpos[len(fpos)-1].end
		fpos = fpos[:n]
	}

	fields := make([]string, len(fpos))
	for i, p := range fpos {
		fields[i] = string(runes[p.start:p.end])
	}
	return fields
}
