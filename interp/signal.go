// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

package interp

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SignalManager receives signals asynchronously and defers their
// handling to the main interpreter loop. The handler side only
// records the signal and writes one byte to a self-pipe; Drain is
// called from the main loop at safe points to act on what arrived.
type SignalManager struct {
	r *Runner

	ch    chan os.Signal
	pipeR *os.File
	pipeW *os.File

	mu          sync.Mutex
	pending     map[string]int
	interrupted bool

	quit chan struct{}
}

func newSignalManager(r *Runner) *SignalManager {
	s := &SignalManager{
		r:       r,
		ch:      make(chan os.Signal, 16),
		pending: make(map[string]int),
		quit:    make(chan struct{}),
	}
	if pr, pw, err := os.Pipe(); err == nil {
		s.pipeR, s.pipeW = pr, pw
		setNonblock(pr)
		setNonblock(pw)
	}
	// the shell itself must survive the terminal-control signals it
	// hands to its jobs
	signal.Ignore(syscall.SIGTTIN, syscall.SIGTTOU, syscall.SIGTSTP, syscall.SIGQUIT)
	signal.Notify(s.ch, syscall.SIGCHLD, syscall.SIGINT, syscall.SIGWINCH)
	go s.receive()
	return s
}

// receive is the only goroutine that touches the channel; it records
// each signal and pokes the self-pipe so blocking reads wake up.
func (s *SignalManager) receive() {
	for {
		select {
		case sig := <-s.ch:
			s.mu.Lock()
			s.pending[signalName(sig)]++
			if sig == syscall.SIGINT {
				s.interrupted = true
			}
			s.mu.Unlock()
			if s.pipeW != nil {
				s.pipeW.Write([]byte{0})
			}
		case <-s.quit:
			return
		}
	}
}

// Watch registers interest in an extra signal, as the trap builtin
// requires.
func (s *SignalManager) Watch(sig os.Signal) {
	signal.Notify(s.ch, sig)
}

// Unwatch restores the default disposition of a signal.
func (s *SignalManager) Unwatch(sig os.Signal) {
	signal.Reset(sig)
}

// Drain processes the signals received since the last call. It runs
// in the main loop, so it is safe to reap children and run traps.
func (s *SignalManager) Drain(ctx context.Context) {
	if s.pipeR != nil {
		var buf [64]byte
		for {
			n, _ := s.pipeR.Read(buf[:])
			if n < len(buf) {
				break
			}
		}
	}
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]int)
	s.mu.Unlock()
	for name := range pending {
		switch name {
		case "CHLD":
			s.r.jobs.reap()
			s.r.jobs.Notify(s.r.opts["notify"])
		case "WINCH":
			// window size changes only matter to the line editor
		case "INT":
			s.r.runTrap(ctx, "INT")
		default:
			s.r.runTrap(ctx, name)
		}
	}
}

// Interrupted reports and clears whether a SIGINT arrived; the caller
// cancels the current foreground work in response.
func (s *SignalManager) Interrupted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.interrupted
	s.interrupted = false
	return was
}

// Close stops signal delivery and releases the self-pipe.
func (s *SignalManager) Close() {
	signal.Stop(s.ch)
	close(s.quit)
	if s.pipeR != nil {
		s.pipeR.Close()
		s.pipeW.Close()
	}
}

// initInteractive turns on the interactive niceties: the signal
// manager, and job control when stdin is a terminal.
func (r *Runner) initInteractive() {
	if r.sig == nil {
		r.sig = newSignalManager(r)
	}
	f, ok := r.stdin.(*os.File)
	if !ok || !isTerminal(f) {
		return
	}
	r.ttyFile = f
	r.shellPgid = getpgrp()
	r.opts["monitor"] = true
}

// NotifyJobs reports finished background jobs; an interactive caller
// invokes this before showing a prompt.
func (r *Runner) NotifyJobs() {
	if r.jobs != nil {
		r.jobs.Notify(true)
	}
	if r.sig != nil {
		r.sig.Drain(context.Background())
	}
}
