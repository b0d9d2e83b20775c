//go:build unix

// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

package interp

import (
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

func mkfifo(path string, mode uint32) error {
	return unix.Mkfifo(path, mode)
}

// execReplace replaces the current process image, as the exec builtin
// with arguments requires. It only returns on error.
func execReplace(path string, args, env []string) error {
	return syscall.Exec(path, args, env)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func setNonblock(f *os.File) {
	unix.SetNonblock(int(f.Fd()), true)
}

func getpgrp() int {
	return unix.Getpgrp()
}

// accessOK checks real-user access to a path: 4 read, 2 write, 1
// execute, as the test builtin's -r, -w, and -x require.
func accessOK(path string, mode uint32) bool {
	return unix.Access(path, mode) == nil
}

// wait4 waits for a child's state to change, reporting stops as well
// as exits. Without block set it polls, as the SIGCHLD reaper does.
func wait4(pid int, block bool) (int, unix.WaitStatus, error) {
	var status unix.WaitStatus
	flags := unix.WUNTRACED
	if !block {
		flags |= unix.WNOHANG
	}
	wpid, err := unix.Wait4(pid, &status, flags, nil)
	return wpid, status, err
}

const sigCont = unix.SIGCONT

// killPgid delivers a signal to every process in a group.
func killPgid(pgid int, sig syscall.Signal) error {
	return unix.Kill(-pgid, sig)
}

// tcSetForeground hands the terminal to a process group. The call
// fails harmlessly when the file is not the controlling terminal.
func tcSetForeground(f *os.File, pgid int) {
	if f == nil {
		return
	}
	unix.IoctlSetPointerInt(int(f.Fd()), unix.TIOCSPGRP, pgid)
}

// termiosState saves terminal modes across a job suspension.
type termiosState struct {
	termios unix.Termios
}

func saveTermios(f *os.File) (*termiosState, error) {
	t, err := unix.IoctlGetTermios(int(f.Fd()), ioctlGetTermios)
	if err != nil {
		return nil, err
	}
	return &termiosState{termios: *t}, nil
}

func restoreTermios(f *os.File, st *termiosState) error {
	if st == nil {
		return nil
	}
	return unix.IoctlSetTermios(int(f.Fd()), ioctlSetTermios, &st.termios)
}

// signalName maps a signal to the name used in trap specifications.
func signalName(sig os.Signal) string {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return sig.String()
	}
	for name, known := range signalsByName {
		if known == s {
			return name
		}
	}
	return strconv.Itoa(int(s))
}

var signalsByName = map[string]syscall.Signal{
	"HUP":  unix.SIGHUP,
	"INT":  unix.SIGINT,
	"QUIT": unix.SIGQUIT,
	"ILL":  unix.SIGILL,
	"TRAP": unix.SIGTRAP,
	"ABRT": unix.SIGABRT,
	"BUS":  unix.SIGBUS,
	"FPE":  unix.SIGFPE,
	"KILL": unix.SIGKILL,
	"USR1": unix.SIGUSR1,
	"SEGV": unix.SIGSEGV,
	"USR2": unix.SIGUSR2,
	"PIPE": unix.SIGPIPE,
	"ALRM": unix.SIGALRM,
	"TERM": unix.SIGTERM,
	"CHLD": unix.SIGCHLD,
	"CONT": unix.SIGCONT,
	"STOP": unix.SIGSTOP,
	"TSTP": unix.SIGTSTP,
	"TTIN": unix.SIGTTIN,
	"TTOU": unix.SIGTTOU,
	"URG":  unix.SIGURG,
	"XCPU": unix.SIGXCPU,
	"XFSZ": unix.SIGXFSZ,
	"WINCH": unix.SIGWINCH,
	"IO":   unix.SIGIO,
	"SYS":  unix.SIGSYS,
}

// parseSignal resolves a trap or kill argument: a number, a name, or
// a SIG-prefixed name.
func parseSignal(s string) (syscall.Signal, string, error) {
	up := strings.ToUpper(strings.TrimPrefix(strings.ToUpper(s), "SIG"))
	if sig, ok := signalsByName[up]; ok {
		return sig, up, nil
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 && n < 65 {
		return syscall.Signal(n), signalName(syscall.Signal(n)), nil
	}
	return 0, "", &SignalError{Name: s}
}
