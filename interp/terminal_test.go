//go:build unix

// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

package interp

import (
	"bytes"
	"testing"

	"github.com/creack/pty"
	qt "github.com/frankban/quicktest"
)

func TestJobControlRequiresTerminal(t *testing.T) {
	c := qt.New(t)

	// with a plain reader as stdin, interactive mode must not claim
	// the terminal or enable monitor mode
	var buf bytes.Buffer
	r, err := New(Interactive(true), StdIO(bytes.NewReader(nil), &buf, &buf))
	c.Assert(err, qt.IsNil)
	r.Reset()
	c.Assert(r.opts["monitor"], qt.IsFalse)
	c.Assert(r.ttyFile, qt.IsNil)

	// with a pty slave as stdin, job control switches on
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("cannot open pty: %v", err)
	}
	defer ptmx.Close()
	defer tty.Close()

	r2, err := New(Interactive(true), StdIO(tty, &buf, &buf))
	c.Assert(err, qt.IsNil)
	r2.Reset()
	c.Assert(r2.opts["monitor"], qt.IsTrue)
	c.Assert(r2.ttyFile, qt.IsNotNil)
	c.Assert(r2.shellPgid, qt.Not(qt.Equals), 0)
	r2.sig.Close()
}

func TestTermiosSaveRestore(t *testing.T) {
	c := qt.New(t)
	_, tty, err := pty.Open()
	if err != nil {
		t.Skipf("cannot open pty: %v", err)
	}
	defer tty.Close()

	st, err := saveTermios(tty)
	c.Assert(err, qt.IsNil)
	c.Assert(st, qt.IsNotNil)
	c.Assert(restoreTermios(tty, st), qt.IsNil)
}
