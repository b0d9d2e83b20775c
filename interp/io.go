// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

package interp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/posh-shell/posh/syntax"
)

// savedFDs remembers the runner's descriptor state so it can be
// restored after a redirection context ends, as required around
// builtin calls.
type savedFDs struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	files  map[int]*os.File

	toClose []io.Closer
}

// applyRedirs applies a redirection list left to right, returning a
// function that restores the previous descriptor state. Later
// redirections can override earlier ones.
func (r *Runner) applyRedirs(ctx context.Context, redirs []*syntax.Redirect) (func(), error) {
	if len(redirs) == 0 {
		return nil, nil
	}
	saved := &savedFDs{
		stdin:  r.stdin,
		stdout: r.stdout,
		stderr: r.stderr,
		files:  make(map[int]*os.File, len(r.files)),
	}
	for fd, f := range r.files {
		saved.files[fd] = f
	}
	for _, rd := range redirs {
		cls, err := r.redir(ctx, rd)
		if err != nil {
			saved.restore(r)
			return nil, err
		}
		if cls != nil {
			saved.toClose = append(saved.toClose, cls)
		}
	}
	return func() { saved.restore(r) }, nil
}

func (s *savedFDs) restore(r *Runner) {
	r.stdin, r.stdout, r.stderr = s.stdin, s.stdout, s.stderr
	r.files = s.files
	for _, cls := range s.toClose {
		cls.Close()
	}
}

// redir applies one redirection.
func (r *Runner) redir(ctx context.Context, rd *syntax.Redirect) (io.Closer, error) {
	if rd.Hdoc != nil {
		pr, err := r.hdocReader(rd)
		if err != nil {
			return nil, err
		}
		r.setReader(r.redirFD(rd, 0), pr)
		return pr, nil
	}
	fd := r.redirFD(rd, 1)
	arg := r.literal(rd.Word)
	switch rd.Op {
	case syntax.WordHdoc:
		pr, pw, err := os.Pipe()
		if err != nil {
			return nil, err
		}
		r.setReader(r.redirFD(rd, 0), pr)
		// write in a new goroutine, as pipe writes may block once
		// the buffer fills up
		go func() {
			pw.WriteString(arg)
			pw.WriteString("\n")
			pw.Close()
		}()
		return pr, nil
	case syntax.DplIn:
		if arg == "-" {
			r.setReader(r.redirFD(rd, 0), nil)
			return nil, nil
		}
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, &RedirectionError{Target: arg, Msg: "bad file descriptor"}
		}
		r.setReader(r.redirFD(rd, 0), r.reader(n))
		return nil, nil
	case syntax.DplOut:
		if arg == "-" {
			r.setWriter(fd, io.Discard)
			return nil, nil
		}
		if n, err := strconv.Atoi(arg); err == nil {
			r.setWriter(fd, r.writer(n))
			return nil, nil
		}
		if rd.N == nil {
			// >&file is equivalent to &>file
			return r.openRedir(rd, arg, redirAll)
		}
		return nil, &RedirectionError{Target: arg, Msg: "bad file descriptor"}
	case syntax.RdrAll:
		return r.openRedir(rd, arg, redirAll)
	case syntax.AppAll:
		return r.openRedir(rd, arg, redirAllApp)
	case syntax.RdrIn, syntax.RdrOut, syntax.AppOut, syntax.ClbOut, syntax.RdrInOut:
		return r.openRedir(rd, arg, redirKind(rd.Op))
	default:
		panic(fmt.Sprintf("unhandled redirect op: %v", rd.Op))
	}
}

type redirKind syntax.RedirOperator

const (
	redirAll    redirKind = 200
	redirAllApp redirKind = 201
)

// redirFD returns the descriptor number a redirect targets, with a
// default that depends on the operator direction.
func (r *Runner) redirFD(rd *syntax.Redirect, def int) int {
	if rd.N == nil {
		switch rd.Op {
		case syntax.RdrIn, syntax.DplIn, syntax.Hdoc, syntax.DashHdoc,
			syntax.WordHdoc, syntax.RdrInOut:
			return 0
		}
		return def
	}
	n, err := strconv.Atoi(rd.N.Value)
	if err != nil {
		return def
	}
	return n
}

func (r *Runner) openRedir(rd *syntax.Redirect, arg string, kind redirKind) (io.Closer, error) {
	mode := os.O_RDONLY
	switch kind {
	case redirKind(syntax.RdrOut), redirKind(syntax.ClbOut), redirAll:
		mode = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case redirKind(syntax.AppOut), redirAllApp:
		mode = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	case redirKind(syntax.RdrInOut):
		mode = os.O_RDWR | os.O_CREATE
	}
	path := absPath(r.Dir, arg)
	if kind == redirKind(syntax.RdrOut) || kind == redirAll {
		// noclobber is checked before opening; >| overrides it
		if r.opts["noclobber"] {
			if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
				return nil, &RedirectionError{Target: arg, Msg: "cannot overwrite existing file"}
			}
		}
	}
	f, err := os.OpenFile(path, mode, 0o644)
	if err != nil {
		return nil, &RedirectionError{Target: arg, Err: unwrapPathError(err)}
	}
	switch kind {
	case redirKind(syntax.RdrIn):
		r.setReader(r.redirFD(rd, 0), f)
	case redirKind(syntax.RdrInOut):
		r.setReader(r.redirFD(rd, 0), f)
	case redirAll, redirAllApp:
		r.setWriter(1, f)
		r.setWriter(2, f)
	default:
		r.setWriter(r.redirFD(rd, 1), f)
	}
	return f, nil
}

func unwrapPathError(err error) error {
	if pe, ok := err.(*os.PathError); ok {
		return pe.Err
	}
	return err
}

// reader returns the reader currently bound to a descriptor.
func (r *Runner) reader(fd int) io.Reader {
	if fd == 0 {
		return r.stdin
	}
	if f, ok := r.files[fd]; ok {
		return f
	}
	return nil
}

// writer returns the writer currently bound to a descriptor.
func (r *Runner) writer(fd int) io.Writer {
	switch fd {
	case 1:
		return r.stdout
	case 2:
		return r.stderr
	}
	if f, ok := r.files[fd]; ok {
		return f
	}
	return io.Discard
}

func (r *Runner) setReader(fd int, rdr io.Reader) {
	switch fd {
	case 0:
		r.stdin = rdr
	default:
		if f, ok := rdr.(*os.File); ok {
			r.files[fd] = f
		}
	}
}

func (r *Runner) setWriter(fd int, w io.Writer) {
	switch fd {
	case 1:
		r.stdout = w
	case 2:
		r.stderr = w
	default:
		if f, ok := w.(*os.File); ok {
			r.files[fd] = f
		}
	}
}

// hdocReader produces the read end of a pipe holding a heredoc body.
// A quoted delimiter produced a literal body; otherwise the body is
// expanded. <<- additionally strips leading tabs from each line.
func (r *Runner) hdocReader(rd *syntax.Redirect) (*os.File, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	if rd.HdocQuoted {
		var sb strings.Builder
		for _, wp := range rd.Hdoc.Parts {
			if lit, ok := wp.(*syntax.Lit); ok {
				sb.WriteString(lit.Value)
			}
		}
		body := sb.String()
		if rd.Op == syntax.DashHdoc {
			lines := strings.Split(body, "\n")
			for i, line := range lines {
				lines[i] = strings.TrimLeft(line, "\t")
			}
			body = strings.Join(lines, "\n")
		}
		go func() {
			pw.WriteString(body)
			pw.Close()
		}()
		return pr, nil
	}
	if rd.Op != syntax.DashHdoc {
		hdoc := r.document(rd.Hdoc)
		go func() {
			pw.WriteString(hdoc)
			pw.Close()
		}()
		return pr, nil
	}
	var buf bytes.Buffer
	var cur []syntax.WordPart
	flushLine := func() {
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(r.document(&syntax.Word{Parts: cur}))
		cur = cur[:0]
	}
	for _, wp := range rd.Hdoc.Parts {
		lit, ok := wp.(*syntax.Lit)
		if !ok {
			cur = append(cur, wp)
			continue
		}
		for i, part := range strings.Split(lit.Value, "\n") {
			if i > 0 {
				flushLine()
				cur = cur[:0]
			}
			part = strings.TrimLeft(part, "\t")
			cur = append(cur, &syntax.Lit{Value: part})
		}
	}
	flushLine()
	go func() {
		pw.Write(buf.Bytes())
		pw.Close()
	}()
	return pr, nil
}
