// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

package interp

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// JobState is the lifecycle state of a job.
type JobState uint8

const (
	JobRunning JobState = iota
	JobStopped
	JobDone
)

func (s JobState) String() string {
	switch s {
	case JobRunning:
		return "Running"
	case JobStopped:
		return "Stopped"
	default:
		return "Done"
	}
}

// Proc is one process belonging to a job.
type Proc struct {
	PID  int
	Done bool
	Exit int
}

// Job is a pipeline or background statement under the shell's
// control. Process-backed jobs own a process group; jobs built from
// shell constructs run as goroutine subshells and are tracked through
// their done channel instead.
type Job struct {
	ID      int
	PGID    int
	Command string
	State   JobState

	Procs []*Proc

	exit     exitStatus
	done     chan struct{}
	notified bool

	// savedTermios holds the terminal modes captured when the job
	// was suspended, restored when it returns to the foreground.
	savedTermios *termiosState
}

// JobManager tracks the jobs of one shell environment. It is safe
// for concurrent use, since pipeline stages and background subshells
// report from their own goroutines.
type JobManager struct {
	r *Runner

	mu     sync.Mutex
	jobs   []*Job
	nextID int
}

func newJobManager(r *Runner) *JobManager {
	return &JobManager{r: r, nextID: 1}
}

// addJob registers a new running job.
func (m *JobManager) addJob(command string) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := &Job{
		ID:      m.nextID,
		Command: command,
		State:   JobRunning,
		done:    make(chan struct{}),
	}
	m.nextID++
	m.jobs = append(m.jobs, job)
	return job
}

// addStoppedProc registers a foreground process that was just
// suspended as a stopped job.
func (m *JobManager) addStoppedProc(pid int, command string) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := &Job{
		ID:      m.nextID,
		PGID:    pid,
		Command: command,
		State:   JobStopped,
		Procs:   []*Proc{{PID: pid}},
		done:    make(chan struct{}),
	}
	m.nextID++
	m.jobs = append(m.jobs, job)
	return job
}

// finishJob marks a goroutine-backed job as done.
func (m *JobManager) finishJob(job *Job, exit *exitStatus) {
	m.mu.Lock()
	job.exit = *exit
	job.State = JobDone
	m.mu.Unlock()
	close(job.done)
	if m.r.opts["notify"] {
		m.Notify(true)
	}
}

// waitForegroundProc waits for a foreground process, also noticing
// suspension when job control is enabled.
func (m *JobManager) waitForegroundProc(pid int) (code int, stopped bool) {
	for {
		wpid, status, err := wait4(pid, true)
		if err != nil || wpid <= 0 {
			return 1, false
		}
		switch {
		case status.Stopped():
			return 128 + int(status.StopSignal()), true
		case status.Signaled():
			return 128 + int(status.Signal()), false
		case status.Exited():
			return status.ExitStatus(), false
		}
	}
}

// reap collects terminated and stopped children after a SIGCHLD,
// without blocking.
func (m *JobManager) reap() {
	for {
		pid, status, err := wait4(-1, false)
		if err != nil || pid <= 0 {
			return
		}
		m.updateWait(pid, 128+int(status.Signal()), status.Exited(), status.Stopped(), status.ExitStatus())
	}
}

func (m *JobManager) updateWait(pid, sigCode int, exited, stopped bool, code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		for _, proc := range job.Procs {
			if proc.PID != pid || proc.Done {
				continue
			}
			switch {
			case stopped:
				job.State = JobStopped
			case exited:
				proc.Done = true
				proc.Exit = code
			default:
				proc.Done = true
				proc.Exit = sigCode
			}
			allDone := true
			for _, p := range job.Procs {
				if !p.Done {
					allDone = false
				}
			}
			if allDone && job.State != JobDone {
				job.State = JobDone
				job.exit = exitStatus{code: job.Procs[len(job.Procs)-1].Exit}
				close(job.done)
			}
			return
		}
	}
}

// bySpec resolves a job specification: %n, %%, %+, %-, %string, and
// %?string.
func (m *JobManager) bySpec(spec string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	live := m.liveJobs()
	if len(live) == 0 {
		return nil, &JobControlError{Spec: spec, Msg: "no current job"}
	}
	body := strings.TrimPrefix(spec, "%")
	switch body {
	case "", "%", "+":
		return live[len(live)-1], nil
	case "-":
		if len(live) > 1 {
			return live[len(live)-2], nil
		}
		return live[len(live)-1], nil
	}
	if n, err := strconv.Atoi(body); err == nil {
		for _, job := range m.jobs {
			if job.ID == n {
				return job, nil
			}
		}
		return nil, &JobControlError{Spec: spec, Msg: "no such job"}
	}
	matches := func(job *Job) bool {
		if strings.HasPrefix(body, "?") {
			return strings.Contains(job.Command, body[1:])
		}
		return strings.HasPrefix(job.Command, body)
	}
	var found *Job
	for _, job := range live {
		if !matches(job) {
			continue
		}
		if found != nil {
			return nil, &JobControlError{Spec: spec, Msg: "ambiguous job spec"}
		}
		found = job
	}
	if found == nil {
		return nil, &JobControlError{Spec: spec, Msg: "no such job"}
	}
	return found, nil
}

// liveJobs returns the jobs that have not finished, oldest first.
// The caller must hold the mutex.
func (m *JobManager) liveJobs() []*Job {
	var live []*Job
	for _, job := range m.jobs {
		if job.State != JobDone {
			live = append(live, job)
		}
	}
	return live
}

// marker returns the + and - markers used in job listings.
func (m *JobManager) marker(job *Job) string {
	live := m.liveJobs()
	if len(live) > 0 && live[len(live)-1] == job {
		return "+"
	}
	if len(live) > 1 && live[len(live)-2] == job {
		return "-"
	}
	return " "
}

// List writes the jobs table, as the jobs builtin does.
func (m *JobManager) List(showPids bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if showPids && len(job.Procs) > 0 {
			m.r.outf("[%d]%s %d %s\t%s\n", job.ID, m.marker(job),
				job.PGID, job.State, job.Command)
		} else {
			m.r.outf("[%d]%s  %s\t\t%s\n", job.ID, m.marker(job),
				job.State, job.Command)
		}
		if job.State == JobDone {
			job.notified = true
		}
	}
	m.removeNotified()
}

// Notify reports completed background jobs. Interactive shells call
// it before each prompt; set -o notify makes it happen immediately.
func (m *JobManager) Notify(force bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.State != JobDone || job.notified {
			continue
		}
		if !m.r.interactive && !force {
			continue
		}
		status := "Done"
		if job.exit.code != 0 {
			status = fmt.Sprintf("Exit %d", job.exit.code)
		}
		m.r.errf("[%d]%s  %s\t\t%s\n", job.ID, m.marker(job), status, job.Command)
		job.notified = true
	}
	m.removeNotified()
}

// removeNotified drops finished jobs the user has seen. The caller
// must hold the mutex.
func (m *JobManager) removeNotified() {
	var keep []*Job
	for _, job := range m.jobs {
		if job.State == JobDone && job.notified {
			continue
		}
		keep = append(keep, job)
	}
	m.jobs = keep
}

// wait blocks until a job finishes and returns its exit code.
func (m *JobManager) wait(ctx context.Context, job *Job) int {
	select {
	case <-job.done:
	case <-ctx.Done():
		return 130
	}
	m.mu.Lock()
	code := job.exit.code
	job.notified = true
	m.removeNotified()
	m.mu.Unlock()
	return code
}

// waitAll blocks until every known job finishes.
func (m *JobManager) waitAll(ctx context.Context) int {
	m.mu.Lock()
	jobs := append([]*Job(nil), m.jobs...)
	m.mu.Unlock()
	for _, job := range jobs {
		m.wait(ctx, job)
	}
	return 0
}

// cont resumes a stopped job, in the foreground or background.
func (m *JobManager) cont(ctx context.Context, job *Job, foreground bool) (int, error) {
	m.mu.Lock()
	pgid := job.PGID
	state := job.State
	m.mu.Unlock()
	if pgid == 0 {
		// a goroutine-backed job cannot be suspended or resumed;
		// foregrounding it just waits for it
		if !foreground {
			return 0, &JobControlError{Msg: "job is not process-backed"}
		}
		return m.wait(ctx, job), nil
	}
	if state == JobStopped {
		if err := killPgid(pgid, sigCont); err != nil {
			return 1, err
		}
		m.mu.Lock()
		job.State = JobRunning
		m.mu.Unlock()
	}
	if !foreground {
		return 0, nil
	}
	if m.r.ttyFile != nil {
		restoreTermios(m.r.ttyFile, job.savedTermios)
		tcSetForeground(m.r.ttyFile, pgid)
		defer tcSetForeground(m.r.ttyFile, m.r.shellPgid)
	}
	pid := job.Procs[len(job.Procs)-1].PID
	code, stopped := m.waitForegroundProc(pid)
	if stopped {
		m.mu.Lock()
		job.State = JobStopped
		if m.r.ttyFile != nil {
			job.savedTermios, _ = saveTermios(m.r.ttyFile)
		}
		m.mu.Unlock()
		m.r.errf("\n[%d]+  Stopped\t%s\n", job.ID, job.Command)
	} else {
		m.mu.Lock()
		job.State = JobDone
		job.exit = exitStatus{code: code}
		select {
		case <-job.done:
		default:
			close(job.done)
		}
		job.notified = true
		m.removeNotified()
		m.mu.Unlock()
	}
	return code, nil
}

// stopNotifications is called when the shell exits; any remaining
// jobs keep running but are no longer tracked.
func (m *JobManager) stopNotifications() {
	m.mu.Lock()
	m.jobs = nil
	m.mu.Unlock()
}
