// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

package interp

import (
	"sort"
	"strconv"
	"strings"

	"github.com/posh-shell/posh/expand"
	"github.com/posh-shell/posh/syntax"
)

// scope is one level of the variable scope stack. Function calls and
// sourced files push a scope; local declares a name in the topmost
// function scope.
type scope struct {
	vars      map[string]expand.Variable
	funcScope bool
}

func (r *Runner) pushScope(funcScope bool) {
	r.scopes = append(r.scopes, &scope{
		vars:      map[string]expand.Variable{},
		funcScope: funcScope,
	})
}

func (r *Runner) popScope() {
	r.scopes = r.scopes[:len(r.scopes)-1]
}

// lookupVar resolves a name, checking the special parameters first,
// then walking the scope stack outward, then the starting
// environment.
func (r *Runner) lookupVar(name string) expand.Variable {
	if name == "" {
		panic("interp: variable name must not be empty")
	}
	str := func(s string) expand.Variable {
		return expand.Variable{Set: true, Kind: expand.String, Str: s}
	}
	switch name {
	case "#":
		return str(strconv.Itoa(len(r.Params)))
	case "@", "*":
		return expand.Variable{
			Set:  true,
			Kind: expand.Indexed,
			List: r.Params,
		}
	case "?":
		return str(strconv.Itoa(r.lastExit.code))
	case "$":
		return str(strconv.Itoa(r.shellPID))
	case "!":
		if r.lastBgPID == 0 {
			return expand.Variable{}
		}
		return str(strconv.Itoa(r.lastBgPID))
	case "-":
		var sb strings.Builder
		for letter, opt := range optLetters {
			if r.opts[opt] {
				sb.WriteByte(letter)
			}
		}
		flags := []byte(sb.String())
		sort.Slice(flags, func(i, j int) bool { return flags[i] < flags[j] })
		return str(string(flags))
	case "0":
		if r.filename != "" {
			return str(r.filename)
		}
		return str("posh")
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		i := int(name[0] - '1')
		if i < len(r.Params) {
			return str(r.Params[i])
		}
		return expand.Variable{}
	case "PPID":
		return str(strconv.Itoa(ppid()))
	}
	if n, err := strconv.Atoi(name); err == nil && n > 9 {
		if n-1 < len(r.Params) {
			return str(r.Params[n-1])
		}
		return expand.Variable{}
	}
	for i := len(r.scopes) - 1; i >= 0; i-- {
		if vr, ok := r.scopes[i].vars[name]; ok {
			return vr
		}
	}
	if vr := r.Env.Get(name); vr.IsSet() {
		return vr
	}
	return expand.Variable{}
}

// getVar returns a variable's string value, following namerefs.
func (r *Runner) getVar(name string) string {
	vr := r.lookupVar(name)
	_, vr = vr.Resolve(r.writeEnv())
	return vr.String()
}

func (r *Runner) setVarString(name, value string) {
	r.setVar(name, expand.Variable{Set: true, Kind: expand.String, Str: value})
}

// setVar assigns a variable, honoring its attributes: readonly
// rejects the write, nameref redirects it, integer evaluates the
// value arithmetically, and the case attributes transform it.
func (r *Runner) setVar(name string, vr expand.Variable) {
	if err := r.setVarErr(name, vr); err != nil {
		r.errf("posh: %v\n", err)
		r.exit.code = 1
		if !r.interactive {
			// a failed readonly write aborts a script
			r.exit.exiting = true
		}
	}
}

func (r *Runner) setVarErr(name string, vr expand.Variable) error {
	cur, scopeIdx := r.findVar(name)
	if cur.ReadOnly {
		return &StateError{Name: name, Op: "readonly variable"}
	}
	if cur.Kind == expand.NameRef && vr.Kind != expand.NameRef {
		// writes through a nameref go to the target
		target, _ := cur.Resolve(r.writeEnv())
		if target != "" && target != name {
			return r.setVarErr(target, vr)
		}
	}
	// carry over attributes from the existing declaration
	if vr.Kind == expand.String || vr.Kind == expand.Unknown {
		vr.Integer = vr.Integer || cur.Integer
		vr.Lowercase = vr.Lowercase || cur.Lowercase
		vr.Uppercase = vr.Uppercase || cur.Uppercase
	}
	vr.Exported = vr.Exported || cur.Exported
	if r.opts["allexport"] && vr.Kind == expand.String {
		vr.Exported = true
	}
	if vr.Kind == expand.String {
		if vr.Integer {
			n, err := arithmString(r, vr.Str)
			if err != nil {
				return err
			}
			vr.Str = strconv.FormatInt(n, 10)
		}
		if vr.Lowercase {
			vr.Str = strings.ToLower(vr.Str)
		}
		if vr.Uppercase {
			vr.Str = strings.ToUpper(vr.Str)
		}
	}
	if vr.Local {
		// local declares in the innermost function scope, shadowing
		// any outer variable of the same name
		if fi := r.funcScopeIdx(); scopeIdx < fi {
			scopeIdx = fi
		}
	}
	if scopeIdx < 0 {
		scopeIdx = 0
	}
	r.scopes[scopeIdx].vars[name] = vr
	return nil
}

// findVar locates an existing variable and the scope index holding
// it; -1 means the name is not set in any scope.
func (r *Runner) findVar(name string) (expand.Variable, int) {
	for i := len(r.scopes) - 1; i >= 0; i-- {
		if vr, ok := r.scopes[i].vars[name]; ok {
			return vr, i
		}
	}
	if vr := r.Env.Get(name); vr.IsSet() {
		return vr, -1
	}
	return expand.Variable{}, -1
}

func (r *Runner) funcScopeIdx() int {
	for i := len(r.scopes) - 1; i >= 0; i-- {
		if r.scopes[i].funcScope {
			return i
		}
	}
	return 0
}

// arithmString evaluates a string as an arithmetic expression, used
// for assignments to integer-attributed variables. Strings that do
// not parse as an arithmetic expression evaluate to zero.
func arithmString(r *Runner, s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	expr, err := syntax.ParseArithm(s)
	if err != nil {
		return 0, nil
	}
	return expand.Arithm(r.ecfg, expr)
}

func (r *Runner) delVar(name string) {
	for i := len(r.scopes) - 1; i >= 0; i-- {
		if vr, ok := r.scopes[i].vars[name]; ok {
			if vr.ReadOnly {
				r.errf("posh: %s: readonly variable\n", name)
				r.exit.code = 1
				return
			}
			delete(r.scopes[i].vars, name)
			return
		}
	}
	// mask a variable from the starting environment
	r.scopes[0].vars[name] = expand.Variable{}
}

// setVarWithIndex assigns to a variable or one of its elements.
func (r *Runner) setVarWithIndex(prev expand.Variable, name string, index syntax.ArithmExpr, vr expand.Variable) {
	if prev.Kind == expand.Indexed && index == nil && vr.Kind == expand.String {
		// a plain assignment to an array targets element zero
		index = &syntax.Word{Parts: []syntax.WordPart{
			&syntax.Lit{Value: "0"},
		}}
	}
	if index == nil {
		r.setVar(name, vr)
		return
	}
	valStr := vr.Str
	if prev.Kind == expand.Associative {
		w, ok := index.(*syntax.Word)
		if !ok {
			return
		}
		k := r.literal(w)
		if prev.Map == nil {
			prev.Map = make(map[string]string)
		}
		prev.Map[k] = valStr
		prev.Set = true
		r.setVar(name, prev)
		return
	}
	var list []string
	switch prev.Kind {
	case expand.String:
		list = []string{prev.Str}
	case expand.Indexed:
		list = prev.List
	}
	k64, err := expand.Arithm(r.ecfg, index)
	if err != nil {
		r.errf("posh: %v\n", err)
		r.exit.code = 1
		return
	}
	k := int(k64)
	if k < 0 {
		k += len(list)
		if k < 0 {
			r.errf("posh: %s: bad array subscript\n", name)
			r.exit.code = 1
			return
		}
	}
	for len(list) < k+1 {
		list = append(list, "")
	}
	list[k] = valStr
	prev.Kind = expand.Indexed
	prev.List = list
	prev.Set = true
	r.setVar(name, prev)
}

func (r *Runner) setFunc(name string, body *syntax.Stmt) {
	if r.Funcs == nil {
		r.Funcs = make(map[string]*syntax.Stmt, 4)
	}
	r.Funcs[name] = body
}

// assignVal resolves the value of an assignment node into a Variable,
// handling append and array literals.
func (r *Runner) assignVal(prev expand.Variable, as *syntax.Assign) expand.Variable {
	if as.Naked {
		return prev
	}
	if as.Value != nil {
		s := r.literal(as.Value)
		if !as.Append || !prev.IsSet() {
			return expand.Variable{Set: true, Kind: expand.String, Str: s}
		}
		switch prev.Kind {
		case expand.String:
			prev.Str += s
			return prev
		case expand.Indexed:
			if len(prev.List) == 0 {
				prev.List = append(prev.List, "")
			}
			prev.List[0] += s
			return prev
		}
		return expand.Variable{Set: true, Kind: expand.String, Str: s}
	}
	if as.Array == nil {
		// e.g. "declare foo="
		return expand.Variable{Set: true, Kind: expand.String, Str: ""}
	}
	strs := make([]string, 0, len(as.Array.Elems))
	for _, elem := range as.Array.Elems {
		strs = append(strs, r.fields(elem.Value)...)
	}
	if as.Append && prev.Kind == expand.Indexed {
		prev.List = append(prev.List, strs...)
		prev.Set = true
		return prev
	}
	return expand.Variable{Set: true, Kind: expand.Indexed, List: strs}
}

// writeEnv exposes the runner's variables to the expand package.
func (r *Runner) writeEnv() expand.WriteEnviron {
	return expandEnv{r}
}

type expandEnv struct {
	r *Runner
}

func (e expandEnv) Get(name string) expand.Variable {
	return e.r.lookupVar(name)
}

func (e expandEnv) Set(name string, vr expand.Variable) error {
	if !vr.IsSet() && !vr.Declared() {
		e.r.delVar(name)
		return nil
	}
	return e.r.setVarErr(name, vr)
}

func (e expandEnv) Each(fn func(name string, vr expand.Variable) bool) {
	seen := make(map[string]bool)
	for i := len(e.r.scopes) - 1; i >= 0; i-- {
		for name, vr := range e.r.scopes[i].vars {
			if seen[name] {
				continue
			}
			seen[name] = true
			if !fn(name, vr) {
				return
			}
		}
	}
	e.r.Env.Each(func(name string, vr expand.Variable) bool {
		if seen[name] {
			return true
		}
		return fn(name, vr)
	})
}

// execEnv builds the environment for a spawned command from the
// exported variables, keeping the process environment mirror in sync
// with the variable store.
func (r *Runner) execEnv() []string {
	list := make([]string, 0, 64)
	r.writeEnv().Each(func(name string, vr expand.Variable) bool {
		if !vr.IsSet() {
			return true
		}
		if vr.Exported && vr.Kind == expand.String {
			list = append(list, name+"="+vr.Str)
		}
		return true
	})
	sort.Strings(list)
	return list
}

// Vars returns a copy of the currently visible shell variables, as
// used by callers that source a file for its side effects.
func (r *Runner) Vars() map[string]expand.Variable {
	vars := make(map[string]expand.Variable)
	r.writeEnv().Each(func(name string, vr expand.Variable) bool {
		if vr.IsSet() {
			vars[name] = vr
		}
		return true
	})
	return vars
}

// namesInScope lists the currently visible variable names, sorted.
func (r *Runner) namesInScope() []string {
	var names []string
	r.writeEnv().Each(func(name string, vr expand.Variable) bool {
		if vr.Declared() {
			names = append(names, name)
		}
		return true
	})
	sort.Strings(names)
	return names
}
