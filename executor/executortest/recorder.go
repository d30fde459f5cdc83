// Package executortest provides a recording executor.Runner for tests.
package executortest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/iamd3vil/rlsr/executor"
)

// Call is one recorded invocation.
type Call struct {
	Program string
	Args    []string
	Dir     string
	Environ []string
	Env     map[string]string
}

// Line joins the program and its arguments with spaces.
func (c Call) Line() string {
	return strings.TrimSpace(c.Program + " " + strings.Join(c.Args, " "))
}

// Lookup returns the value of key in the call's effective environment.
func (c Call) Lookup(key string) (string, bool) {
	if v, ok := c.Env[key]; ok {
		return v, true
	}
	for i := len(c.Environ) - 1; i >= 0; i-- {
		if k, v, ok := strings.Cut(c.Environ[i], "="); ok && k == key {
			return v, true
		}
	}
	return "", false
}

type rule struct {
	match    func(Call) bool
	exitCode int
	stdout   string
	stderr   string
}

// Recorder records every Run call and never spawns a process. It is safe
// for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	rules []rule
	// Hook, when set, runs for each call before the result is returned.
	Hook func(Call)
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWhen makes calls matching match exit with exitCode.
func (r *Recorder) FailWhen(match func(Call) bool, exitCode int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule{match: match, exitCode: exitCode})
}

// FailWithOutput makes calls matching match exit with exitCode and write
// stderr.
func (r *Recorder) FailWithOutput(match func(Call) bool, exitCode int, stderr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule{match: match, exitCode: exitCode, stderr: stderr})
}

// RespondWhen makes calls matching match succeed with stdout.
func (r *Recorder) RespondWhen(match func(Call) bool, stdout string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule{match: match, stdout: stdout})
}

// Run implements executor.Runner.
func (r *Recorder) Run(_ context.Context, program string, args []string, opts ...executor.Option) (*executor.Result, error) {
	o := executor.DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	call := Call{
		Program: program,
		Args:    append([]string(nil), args...),
		Dir:     o.WorkingDir,
		Environ: o.Environ,
		Env:     o.Env,
	}

	r.mu.Lock()
	r.calls = append(r.calls, call)
	rules := append([]rule(nil), r.rules...)
	hook := r.Hook
	r.mu.Unlock()

	if hook != nil {
		hook(call)
	}

	for _, rl := range rules {
		if !rl.match(call) {
			continue
		}
		if rl.exitCode != 0 {
			err := fmt.Errorf("command execution failed: exit status %d", rl.exitCode)
			return &executor.Result{Stderr: rl.stderr, ExitCode: rl.exitCode, Err: err}, err
		}
		return &executor.Result{Stdout: rl.stdout}, nil
	}
	return &executor.Result{}, nil
}

// Calls returns a copy of the recorded calls in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Lines returns the command line of every recorded call.
func (r *Recorder) Lines() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Line()
	}
	return out
}

// LineContains matches calls whose command line contains sub.
func LineContains(sub string) func(Call) bool {
	return func(c Call) bool { return strings.Contains(c.Line(), sub) }
}
