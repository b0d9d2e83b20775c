// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

// posh is a POSIX-leaning shell with the common bash extensions.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/posh-shell/posh/interp"
	"github.com/posh-shell/posh/syntax"
)

var (
	command     = flag.StringP("command", "c", "", "read commands from the given string")
	fromStdin   = flag.BoolP("stdin", "s", false, "read commands from standard input")
	interactive = flag.BoolP("interactive", "i", false, "run interactively")
	errExit     = flag.BoolP("errexit", "e", false, "exit on the first command failure")
	xTrace      = flag.BoolP("xtrace", "x", false, "print commands before running them")
	setOptions  = flag.StringArrayP("option", "o", nil, "enable a named shell option")
)

func main() {
	os.Exit(main1())
}

func main1() int {
	flag.Parse()
	err := runAll()
	if code, ok := interp.IsExitStatus(err); ok {
		return int(code)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func runAll() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()

	args := flag.Args()
	useStdin := *fromStdin || (*command == "" && len(args) == 0)
	stdinTTY := term.IsTerminal(int(os.Stdin.Fd()))
	runInteractively := *interactive || (useStdin && *command == "" && stdinTTY)

	var setFlags []string
	if *errExit {
		setFlags = append(setFlags, "-e")
	}
	if *xTrace {
		setFlags = append(setFlags, "-x")
	}
	for _, opt := range *setOptions {
		setFlags = append(setFlags, "-o", opt)
	}

	r, err := interp.New(
		interp.Interactive(runInteractively),
		interp.StdIO(os.Stdin, os.Stdout, os.Stderr),
		interp.Params(setFlags...),
	)
	if err != nil {
		return err
	}

	if *command != "" {
		if len(args) > 0 {
			interp.Params(append([]string{"--"}, args...)...)(r)
		}
		return run(ctx, r, []byte(*command), "")
	}
	if len(args) == 0 || *fromStdin {
		if runInteractively {
			return runInteractive(ctx, r, os.Stdin, os.Stdout)
		}
		src, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		return run(ctx, r, src, "")
	}
	if len(args) > 1 {
		interp.Params(append([]string{"--"}, args[1:]...)...)(r)
	}
	return runPath(ctx, r, args[0])
}

func run(ctx context.Context, r *interp.Runner, src []byte, name string) error {
	prog, err := syntax.Parse(src, name)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return interp.NewExitStatus(2)
	}
	return r.Run(ctx, prog)
}

func runPath(ctx context.Context, r *interp.Runner, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return run(ctx, r, src, path)
}

func runInteractive(ctx context.Context, r *interp.Runner, stdin io.Reader, stdout io.Writer) error {
	hist := loadHistory()
	defer hist.save()

	scanner := bufio.NewScanner(stdin)
	var buf strings.Builder
	prompt := func() string {
		if buf.Len() > 0 {
			return "> "
		}
		r.NotifyJobs()
		return "$ "
	}
	fmt.Fprint(stdout, prompt())
	for scanner.Scan() {
		line := scanner.Text()
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(line)
		src := buf.String()
		prog, err := syntax.Parse([]byte(src), "")
		if err != nil {
			if syntax.IsIncomplete(err) {
				fmt.Fprint(stdout, prompt())
				continue
			}
			fmt.Fprintln(os.Stderr, err)
			buf.Reset()
			fmt.Fprint(stdout, prompt())
			continue
		}
		if strings.TrimSpace(src) != "" {
			hist.add(src)
		}
		buf.Reset()
		if err := r.Run(ctx, prog); r.Exited() {
			return err
		}
		fmt.Fprint(stdout, prompt())
	}
	return scanner.Err()
}
