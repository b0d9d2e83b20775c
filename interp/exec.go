// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

package interp

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/posh-shell/posh/expand"
	"github.com/posh-shell/posh/syntax"
)

func absPath(dir, path string) string {
	if path == "" {
		return ""
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	return filepath.Clean(path)
}

func ppid() int { return os.Getppid() }

// lookPathDir finds an executable named file, either relative to cwd
// when the name contains a slash, or via the PATH list.
func lookPathDir(cwd string, env expand.Environ, file string) (string, error) {
	if strings.Contains(file, "/") {
		path := absPath(cwd, file)
		if err := checkExecutable(path); err != nil {
			return "", err
		}
		return path, nil
	}
	path := env.Get("PATH").String()
	for _, elem := range filepath.SplitList(path) {
		if elem == "" {
			elem = "."
		}
		cand := filepath.Join(absPath(cwd, elem), file)
		if err := checkExecutable(cand); err == nil {
			return cand, nil
		}
	}
	return "", fmt.Errorf("%s: command not found", file)
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	m := info.Mode()
	if m.IsDir() {
		return fmt.Errorf("%s: is a directory", path)
	}
	if m&0o111 == 0 {
		return fs.ErrPermission
	}
	return nil
}

// exec runs an external command, forking a new process with the
// redirected descriptors, the exported environment, and the process
// group that job control requires.
func (r *Runner) exec(ctx context.Context, pos syntax.Pos, args []string) {
	path, err := lookPathDir(r.Dir, r.writeEnv(), args[0])
	if err != nil {
		switch {
		case os.IsPermission(err):
			r.errf("posh: %s: permission denied\n", args[0])
			r.exit.code = 126
		case strings.HasSuffix(err.Error(), "is a directory"):
			r.errf("posh: %s: is a directory\n", args[0])
			r.exit.code = 126
		default:
			r.errf("posh: %s: command not found\n", args[0])
			r.exit.code = 127
		}
		return
	}
	cmd := &exec.Cmd{
		Path:   path,
		Args:   args,
		Env:    r.execEnv(),
		Dir:    r.Dir,
		Stdin:  r.stdin,
		Stdout: r.stdout,
		Stderr: r.stderr,
	}
	r.addExtraFiles(cmd)
	monitor := r.opts["monitor"] && r.ttyFile != nil
	if monitor {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}
	if err := cmd.Start(); err != nil {
		r.errf("posh: %s: %v\n", args[0], err)
		r.exit.code = 126
		return
	}
	pid := cmd.Process.Pid
	if r.parent != nil {
		r.parent.lastBgPID = pid
		r.parent = nil
	}
	if !monitor {
		// without job control, let the runtime reap the child
		stop := context.AfterFunc(ctx, func() {
			cmd.Process.Signal(os.Interrupt)
		})
		err := cmd.Wait()
		stop()
		r.exit.code = exitStatusFromErr(err)
		return
	}
	// with job control the child owns the terminal until it exits
	// or stops
	tcSetForeground(r.ttyFile, pid)
	code, stopped := r.jobs.waitForegroundProc(pid)
	tcSetForeground(r.ttyFile, r.shellPgid)
	if stopped {
		job := r.jobs.addStoppedProc(pid, strings.Join(args, " "))
		job.savedTermios, _ = saveTermios(r.ttyFile)
		r.errf("\n[%d]+  Stopped\t%s\n", job.ID, job.Command)
	}
	r.exit.code = code
}

// addExtraFiles forwards descriptors above 2 that redirections have
// opened in the current context.
func (r *Runner) addExtraFiles(cmd *exec.Cmd) {
	if len(r.files) == 0 {
		return
	}
	maxFD := 0
	for fd := range r.files {
		if fd > maxFD {
			maxFD = fd
		}
	}
	devNull := func() *os.File {
		f, err := os.Open(os.DevNull)
		if err != nil {
			return nil
		}
		return f
	}
	for fd := 3; fd <= maxFD; fd++ {
		f, ok := r.files[fd]
		if !ok {
			f = devNull()
		}
		cmd.ExtraFiles = append(cmd.ExtraFiles, f)
	}
}

func exitStatusFromErr(err error) int {
	if err == nil {
		return 0
	}
	if ee, ok := err.(*exec.ExitError); ok {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				return 128 + int(ws.Signal())
			}
			return ws.ExitStatus()
		}
		return ee.ExitCode()
	}
	return 1
}
