// Package shell implements the interactive control shell (spec §4.6): a
// line-oriented REPL over stdin/stdout offering status, start, stop,
// restart, and exit. Grounded on the teacher's cmd/provisr CLI dispatch
// (one subcommand per verb, JSON-ish status printing) but reworked into a
// persistent REPL loop instead of one-shot cobra invocations, since the
// supervisor itself is the long-running process here.
package shell

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/arcbound/taskmaster/internal/supervisor"
)

// Commander is the narrow view of *supervisor.Manager the shell depends on.
type Commander interface {
	Start(target string) ([]supervisor.Outcome, error)
	Stop(target string) ([]supervisor.Outcome, error)
	Restart(target string) ([]supervisor.Outcome, error)
	Status() []supervisor.StatusEntry
}

// Shell is the interactive control loop.
type Shell struct {
	mgr    Commander
	in     *bufio.Scanner
	out    io.Writer
	prompt string
}

// New builds a Shell reading lines from in and writing output to out.
func New(mgr Commander, in io.Reader, out io.Writer) *Shell {
	return &Shell{mgr: mgr, in: bufio.NewScanner(in), out: out, prompt: "taskmaster> "}
}

// Run blocks, processing one line at a time until "exit" is read or the
// input stream ends.
func (s *Shell) Run() {
	for {
		fmt.Fprint(s.out, s.prompt)
		if !s.in.Scan() {
			return
		}
		line := strings.TrimSpace(s.in.Text())
		if line == "" {
			continue
		}
		if s.dispatch(line) {
			return
		}
	}
}

// dispatch handles one line of input, returning true if the shell should
// stop.
func (s *Shell) dispatch(line string) bool {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "exit", "quit":
		return true
	case "status":
		s.printStatus()
	case "start", "stop", "restart":
		if len(args) != 1 {
			fmt.Fprintf(s.out, "usage: %s <program|program:index>\n", cmd)
			return false
		}
		s.runTargeted(cmd, args[0])
	case "help":
		fmt.Fprintln(s.out, "commands: status, start <target>, stop <target>, restart <target>, exit")
	default:
		fmt.Fprintf(s.out, "unknown command %q (try: help)\n", cmd)
	}
	return false
}

func (s *Shell) runTargeted(cmd, target string) {
	var (
		outcomes []supervisor.Outcome
		err      error
	)
	switch cmd {
	case "start":
		outcomes, err = s.mgr.Start(target)
	case "stop":
		outcomes, err = s.mgr.Stop(target)
	case "restart":
		outcomes, err = s.mgr.Restart(target)
	}
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}
	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Fprintf(s.out, "%s: %s (%v)\n", o.Instance, o.Result, o.Err)
		} else {
			fmt.Fprintf(s.out, "%s: %s\n", o.Instance, o.Result)
		}
	}
}

func (s *Shell) printStatus() {
	entries := s.mgr.Status()
	if len(entries) == 0 {
		fmt.Fprintln(s.out, "no instances configured")
		return
	}
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(s.out, string(b))
}
