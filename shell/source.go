// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

// Package shell holds convenience wrappers around the syntax, expand,
// and interp packages for common one-off operations.
package shell

import (
	"context"
	"fmt"
	"os"

	"github.com/posh-shell/posh/expand"
	"github.com/posh-shell/posh/interp"
	"github.com/posh-shell/posh/syntax"
)

// SourceFile sources a shell file with a fresh interpreter and
// returns the variables visible when it finishes, including those
// inherited from the process environment. The file runs with no
// standard input and with its output discarded. It returns an error if
// the file cannot be read or parsed, or if it finishes with a non-zero
// exit status.
//
// A context can be used to cancel the interpreter if it runs for too
// long.
func SourceFile(ctx context.Context, path string) (map[string]expand.Variable, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read: %w", err)
	}
	file, err := syntax.Parse(src, path)
	if err != nil {
		return nil, fmt.Errorf("could not parse: %w", err)
	}
	return SourceNode(ctx, file)
}

// SourceNode sources a parsed shell program like [SourceFile] does.
func SourceNode(ctx context.Context, node *syntax.Script) (map[string]expand.Variable, error) {
	r, err := interp.New(interp.StdIO(nil, nil, nil))
	if err != nil {
		return nil, err
	}
	if err := r.Run(ctx, node); err != nil {
		return nil, fmt.Errorf("could not run: %w", err)
	}
	return r.Vars(), nil
}
