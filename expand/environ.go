// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

// Package expand implements the POSIX shell expansion stages over the
// syntax package's word representation.
package expand

import (
	"sort"
	"strings"
)

// Environ lets the expansion stages fetch variables by name and
// iterate over all the currently set variables.
type Environ interface {
	// Get retrieves a variable by its name. To check if the variable
	// is set, use [Variable.IsSet].
	Get(name string) Variable

	// Each iterates over all the currently set variables, calling
	// the supplied function on each variable. Iteration stops if the
	// function returns false.
	Each(func(name string, vr Variable) bool)
}

// WriteEnviron is an Environ that also supports modifying and
// deleting variables.
type WriteEnviron interface {
	Environ
	// Set sets a variable by name. If !vr.IsSet(), the variable is
	// being unset. An error is returned if the operation is invalid,
	// such as writing to a read-only variable.
	Set(name string, vr Variable) error
}

// ValueKind describes which kind of value a variable holds.
type ValueKind uint8

const (
	// Unknown is used for unset variables which do not have a kind.
	Unknown ValueKind = iota
	// String describes plain string variables, such as foo=bar.
	String
	// NameRef describes variables which reference another by name.
	NameRef
	// Indexed describes indexed array variables, such as foo=(a b).
	Indexed
	// Associative describes associative array variables.
	Associative
)

// Variable is a shell variable: a value of one of the supported kinds
// plus its attributes.
type Variable struct {
	// Set is true when the variable has been assigned a value, which
	// may be empty.
	Set bool

	Local    bool
	Exported bool
	ReadOnly bool

	// Integer makes assignments evaluate their value arithmetically.
	Integer bool
	// Lowercase and Uppercase transform values on assignment.
	Lowercase bool
	Uppercase bool

	// Kind selects which of the value fields below is in use.
	Kind ValueKind

	Str  string            // String or NameRef
	List []string          // Indexed
	Map  map[string]string // Associative
}

// IsSet reports whether the variable has been set to a value. The
// zero value of a Variable is unset.
func (v Variable) IsSet() bool { return v.Set }

// Declared reports whether the variable has been declared, which may
// be the case even when unset, as with export foo.
func (v Variable) Declared() bool {
	return v.Set || v.Local || v.Exported || v.ReadOnly || v.Kind != Unknown
}

// String returns the variable's value as a string. Indexed arrays
// yield their first element, matching how a shell reads $a for an
// array a.
func (v Variable) String() string {
	switch v.Kind {
	case String, NameRef:
		return v.Str
	case Indexed:
		if len(v.List) > 0 {
			return v.List[0]
		}
	}
	return ""
}

// maxNameRefDepth bounds how many name references are followed when
// resolving a variable, so reference loops cannot hang the caller.
const maxNameRefDepth = 100

// Resolve follows name references, returning the last referenced name
// and the variable it points to.
func (v Variable) Resolve(env Environ) (string, Variable) {
	name := ""
	for i := 0; i < maxNameRefDepth; i++ {
		if v.Kind != NameRef {
			return name, v
		}
		name = v.Str
		v = env.Get(name)
	}
	return name, Variable{}
}

// FuncEnviron wraps a function mapping variable names to their string
// values, and implements [Environ]. Empty strings returned by the
// function are treated as unset variables. All variables are exported.
//
// The returned Environ's Each method is a no-op.
func FuncEnviron(fn func(string) string) Environ {
	return funcEnviron(fn)
}

type funcEnviron func(string) string

func (f funcEnviron) Get(name string) Variable {
	value := f(name)
	if value == "" {
		return Variable{}
	}
	return Variable{Set: true, Exported: true, Kind: String, Str: value}
}

func (f funcEnviron) Each(func(name string, vr Variable) bool) {}

// ListEnviron returns an [Environ] with the supplied variables, in
// the form "key=value". All variables are exported. The last value in
// pairs is used if a name is repeated.
func ListEnviron(pairs ...string) Environ {
	m := make(map[string]string, len(pairs))
	names := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			continue
		}
		if _, seen := m[name]; !seen {
			names = append(names, name)
		}
		m[name] = value
	}
	sort.Strings(names)
	return &listEnviron{names: names, values: m}
}

type listEnviron struct {
	names  []string
	values map[string]string
}

func (l *listEnviron) Get(name string) Variable {
	value, ok := l.values[name]
	if !ok {
		return Variable{}
	}
	return Variable{Set: true, Exported: true, Kind: String, Str: value}
}

func (l *listEnviron) Each(fn func(name string, vr Variable) bool) {
	for _, name := range l.names {
		vr := Variable{Set: true, Exported: true, Kind: String, Str: l.values[name]}
		if !fn(name, vr) {
			return
		}
	}
}
