// Package run wraps external command execution. The provisioning logic only
// observes exit codes and combined output from the commands it drives (git,
// ssh, ssh-keygen), so the interface is deliberately narrow and easy to fake
// in tests.
package run

import (
	"context"
	"os/exec"
	"strings"
)

// Runner executes a command in dir and returns its combined stdout/stderr.
// A non-nil error indicates a non-zero exit status or a failure to start; the
// output is returned in either case.
type Runner interface {
	Run(ctx context.Context, dir string, name string, args ...string) (string, error)
}

// ExecRunner runs commands with os/exec, blocking until completion. No
// timeout is imposed here; cancellation is the caller's context.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// Call records a single command invocation made against Fake.
type Call struct {
	Dir  string
	Name string
	Args []string
}

func (c Call) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Fake is an in-memory Runner for tests. Results are keyed by the
// space-joined command line; unknown commands succeed with empty output
// unless Strict is set.
type Fake struct {
	Results map[string]Result
	Strict  bool
	Calls   []Call
}

type Result struct {
	Output string
	Err    error
}

func (f *Fake) Run(_ context.Context, dir string, name string, args ...string) (string, error) {
	call := Call{Dir: dir, Name: name, Args: args}
	f.Calls = append(f.Calls, call)

	if r, ok := f.Results[call.String()]; ok {
		return r.Output, r.Err
	}
	if f.Strict {
		return "", &UnexpectedCommandError{Command: call.String()}
	}
	return "", nil
}

// Commands returns the space-joined command lines in invocation order.
func (f *Fake) Commands() []string {
	cmds := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		cmds[i] = c.String()
	}
	return cmds
}

type UnexpectedCommandError struct {
	Command string
}

func (e *UnexpectedCommandError) Error() string {
	return "unexpected command: " + e.Command
}
