// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

package syntax

import "fmt"

func walkStmts(stmts []*Stmt, f func(Node) bool) {
	for _, s := range stmts {
		Walk(s, f)
	}
}

func walkWords(words []*Word, f func(Node) bool) {
	for _, w := range words {
		Walk(w, f)
	}
}

// Walk traverses the syntax tree in depth-first order: it starts by
// calling f(node); node must not be nil. If f returns true, Walk
// invokes f recursively for each of the non-nil children of node,
// followed by f(nil).
func Walk(node Node, f func(Node) bool) {
	if !f(node) {
		return
	}

	switch x := node.(type) {
	case *Script:
		walkStmts(x.Stmts, f)
	case *Stmt:
		if x.List != nil {
			Walk(x.List, f)
		}
	case *AndOrList:
		Walk(x.First, f)
		for _, part := range x.Rest {
			Walk(part.Pipeline, f)
		}
	case *Pipeline:
		for _, c := range x.Cmds {
			Walk(c, f)
		}
	case *Cmd:
		if x.Body != nil {
			Walk(x.Body, f)
		}
		for _, r := range x.Redirs {
			Walk(r, f)
		}
	case *SimpleCmd:
		for _, a := range x.Assigns {
			Walk(a, f)
		}
		walkWords(x.Args, f)
	case *Assign:
		if x.Name != nil {
			Walk(x.Name, f)
		}
		if x.Index != nil {
			Walk(x.Index, f)
		}
		if x.Value != nil {
			Walk(x.Value, f)
		}
		if x.Array != nil {
			Walk(x.Array, f)
		}
	case *ArrayExpr:
		for _, el := range x.Elems {
			if el.Index != nil {
				Walk(el.Index, f)
			}
			Walk(el.Value, f)
		}
	case *Redirect:
		if x.N != nil {
			Walk(x.N, f)
		}
		Walk(x.Word, f)
		if x.Hdoc != nil {
			Walk(x.Hdoc, f)
		}
	case *IfCmd:
		for _, b := range x.Branches {
			walkStmts(b.Cond, f)
			walkStmts(b.Then, f)
		}
		walkStmts(x.Else, f)
	case *WhileCmd:
		walkStmts(x.Cond, f)
		walkStmts(x.Do, f)
	case *ForCmd:
		Walk(x.Name, f)
		walkWords(x.Items, f)
		walkStmts(x.Do, f)
	case *CForCmd:
		if x.Init != nil {
			Walk(x.Init, f)
		}
		if x.Cond != nil {
			Walk(x.Cond, f)
		}
		if x.Post != nil {
			Walk(x.Post, f)
		}
		walkStmts(x.Do, f)
	case *CaseCmd:
		Walk(x.Word, f)
		for _, arm := range x.Arms {
			walkWords(arm.Patterns, f)
			walkStmts(arm.Stmts, f)
		}
	case *Block:
		walkStmts(x.Stmts, f)
	case *Subshell:
		walkStmts(x.Stmts, f)
	case *FuncDecl:
		Walk(x.Name, f)
		Walk(x.Body, f)
	case *ArithmCmd:
		Walk(x.X, f)
	case *TestCmd:
		Walk(x.X, f)
	case *LetCmd:
		for _, expr := range x.Exprs {
			Walk(expr, f)
		}
	case *TimeCmd:
		if x.Stmt != nil {
			Walk(x.Stmt, f)
		}
	case *Word:
		for _, wp := range x.Parts {
			Walk(wp, f)
		}
	case *Lit:
	case *SglQuoted:
	case *DblQuoted:
		for _, wp := range x.Parts {
			Walk(wp, f)
		}
	case *ParamExp:
		if x.Param != nil {
			Walk(x.Param, f)
		}
		if x.Index != nil {
			Walk(x.Index, f)
		}
		if x.Slice != nil {
			if x.Slice.Offset != nil {
				Walk(x.Slice.Offset, f)
			}
			if x.Slice.Length != nil {
				Walk(x.Slice.Length, f)
			}
		}
		if x.Repl != nil {
			if x.Repl.Orig != nil {
				Walk(x.Repl.Orig, f)
			}
			if x.Repl.With != nil {
				Walk(x.Repl.With, f)
			}
		}
		if x.Exp != nil && x.Exp.Word != nil {
			Walk(x.Exp.Word, f)
		}
	case *CmdSubst:
		walkStmts(x.Stmts, f)
	case *ArithmExp:
		Walk(x.X, f)
	case *ProcSubst:
		walkStmts(x.Stmts, f)
	case *BinaryArithm:
		Walk(x.X, f)
		Walk(x.Y, f)
	case *UnaryArithm:
		Walk(x.X, f)
	case *ParenArithm:
		Walk(x.X, f)
	case *BinaryTest:
		Walk(x.X, f)
		Walk(x.Y, f)
	case *UnaryTest:
		Walk(x.X, f)
	case *ParenTest:
		Walk(x.X, f)
	default:
		panic(fmt.Sprintf("syntax.Walk: unexpected node type %T", x))
	}

	f(nil)
}
