// Package executor runs external processes for rlsr: user build commands and
// hooks through a shell, and docker invocations as argv. It captures output,
// reports exit codes and supports retrying transient failures.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Result holds the output and exit status of one command execution.
type Result struct {
	Stdout   string
	Stderr   string
	Combined string
	ExitCode int
	Err      error
}

// Runner executes a program with arguments. Build and publish stages depend
// on this interface so tests can record invocations instead of spawning.
type Runner interface {
	Run(ctx context.Context, program string, args []string, opts ...Option) (*Result, error)
}

// Options configures command execution behavior.
type Options struct {
	// Output handling
	CaptureStdout     bool
	CaptureStderr     bool
	CaptureCombined   bool
	RedirectToConsole bool

	// Retry configuration
	MaxRetries int
	RetryDelay time.Duration
	RetryOn    func(error) bool

	WorkingDir string

	// Environ, when non-nil, is the complete child environment and the
	// process environment is not inherited.
	Environ []string

	// Env is appended to the inherited (or Environ) environment.
	Env map[string]string

	StdoutWriter io.Writer
	StderrWriter io.Writer
}

// Option is a function that modifies Options.
type Option func(*Options)

// DefaultOptions returns default execution options.
func DefaultOptions() *Options {
	return &Options{
		CaptureStdout: true,
		CaptureStderr: true,
		RetryDelay:    time.Second,
		Env:           make(map[string]string),
	}
}

// CommandExecutor runs a single program with fixed arguments.
type CommandExecutor struct {
	program string
	args    []string
	options *Options
}

// New creates a new CommandExecutor.
func New(program string, args ...string) *CommandExecutor {
	return &CommandExecutor{
		program: program,
		args:    args,
		options: DefaultOptions(),
	}
}

// Shell creates a CommandExecutor that hands command to `sh -c` unparsed.
func Shell(command string) *CommandExecutor {
	return New("sh", "-c", command)
}

// String renders the command line for logs and error messages.
func (c *CommandExecutor) String() string {
	if len(c.args) == 0 {
		return c.program
	}
	return c.program + " " + strings.Join(c.args, " ")
}

// Execute runs the command.
func (c *CommandExecutor) Execute(ctx context.Context, opts ...Option) (*Result, error) {
	return c.ExecuteWithInput(ctx, "", opts...)
}

// ExecuteWithInput runs the command with input written to its stdin.
func (c *CommandExecutor) ExecuteWithInput(
	ctx context.Context,
	input string,
	opts ...Option,
) (*Result, error) {
	options := c.mergeOptions(opts...)

	maxAttempts := options.MaxRetries + 1
	var lastResult *Result

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := c.executeOnce(ctx, input, options)
		lastResult = result

		if err == nil || attempt == maxAttempts {
			return result, err
		}

		if options.RetryOn != nil && !options.RetryOn(err) {
			return result, err
		}

		select {
		case <-ctx.Done():
			return result, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-time.After(options.RetryDelay):
		}
	}

	return lastResult, lastResult.Err
}

// Local is the Runner that spawns processes on the host.
type Local struct {
	defaults []Option
}

// NewLocal returns a host Runner applying defaults before per-call options.
func NewLocal(defaults ...Option) *Local {
	return &Local{defaults: defaults}
}

// Run implements Runner.
func (l *Local) Run(ctx context.Context, program string, args []string, opts ...Option) (*Result, error) {
	all := make([]Option, 0, len(l.defaults)+len(opts))
	all = append(all, l.defaults...)
	all = append(all, opts...)
	return New(program, args...).Execute(ctx, all...)
}

// RunShell runs command through `sh -c` on r.
func RunShell(ctx context.Context, r Runner, command string, opts ...Option) (*Result, error) {
	return r.Run(ctx, "sh", []string{"-c", command}, opts...)
}

func (c *CommandExecutor) setupCommand(cmd *exec.Cmd, input string, options *Options) {
	if options.WorkingDir != "" {
		cmd.Dir = options.WorkingDir
	}

	switch {
	case options.Environ != nil:
		cmd.Env = make([]string, 0, len(options.Environ)+len(options.Env))
		cmd.Env = append(cmd.Env, options.Environ...)
	case len(options.Env) > 0:
		cmd.Env = os.Environ()
	}
	for k, v := range options.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}
}

func (c *CommandExecutor) setupOutputCapture(
	cmd *exec.Cmd,
	options *Options,
) (*bytes.Buffer, *bytes.Buffer, *bytes.Buffer) {
	var stdoutBuf, stderrBuf, combinedBuf bytes.Buffer

	writers := func(own *bytes.Buffer, capture bool, console, custom io.Writer) []io.Writer {
		var ws []io.Writer
		switch {
		case options.CaptureCombined:
			ws = append(ws, &combinedBuf)
		case capture:
			ws = append(ws, own)
		}
		if options.RedirectToConsole {
			ws = append(ws, console)
		}
		if custom != nil {
			ws = append(ws, custom)
		}
		return ws
	}

	if ws := writers(&stdoutBuf, options.CaptureStdout, os.Stdout, options.StdoutWriter); len(ws) > 0 {
		cmd.Stdout = io.MultiWriter(ws...)
	}
	if ws := writers(&stderrBuf, options.CaptureStderr, os.Stderr, options.StderrWriter); len(ws) > 0 {
		cmd.Stderr = io.MultiWriter(ws...)
	}

	return &stdoutBuf, &stderrBuf, &combinedBuf
}

func (c *CommandExecutor) executeOnce(
	ctx context.Context,
	input string,
	options *Options,
) (*Result, error) {
	cmd := exec.CommandContext(ctx, c.program, c.args...)

	c.setupCommand(cmd, input, options)
	stdoutBuf, stderrBuf, combinedBuf := c.setupOutputCapture(cmd, options)

	err := cmd.Run()

	result := &Result{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Combined: combinedBuf.String(),
		Err:      err,
		ExitCode: ExitCode(err),
	}

	if err != nil {
		return result, fmt.Errorf("command execution failed: %w", err)
	}
	return result, nil
}

// ExitCode extracts the process exit status from err: 0 for nil, the
// status for an *exec.ExitError, and -1 when the process never ran.
func ExitCode(err error) int {
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exitErr):
		return exitErr.ExitCode()
	default:
		return -1
	}
}

func (c *CommandExecutor) mergeOptions(opts ...Option) *Options {
	merged := *c.options
	merged.Env = make(map[string]string, len(c.options.Env))
	for k, v := range c.options.Env {
		merged.Env[k] = v
	}

	for _, opt := range opts {
		opt(&merged)
	}

	return &merged
}

// WithCapture configures output capture.
func WithCapture(stdout, stderr, combined bool) Option {
	return func(o *Options) {
		o.CaptureStdout = stdout
		o.CaptureStderr = stderr
		o.CaptureCombined = combined
	}
}

// WithConsoleRedirect enables/disables console output.
func WithConsoleRedirect(redirect bool) Option {
	return func(o *Options) {
		o.RedirectToConsole = redirect
	}
}

// WithRetry configures retry behavior.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(o *Options) {
		o.MaxRetries = maxRetries
		o.RetryDelay = delay
	}
}

// WithRetryCondition sets a custom retry condition.
func WithRetryCondition(fn func(error) bool) Option {
	return func(o *Options) {
		o.RetryOn = fn
	}
}

// WithWorkingDir sets the working directory.
func WithWorkingDir(dir string) Option {
	return func(o *Options) {
		o.WorkingDir = dir
	}
}

// WithEnviron sets the complete child environment as KEY=VALUE entries.
func WithEnviron(environ []string) Option {
	return func(o *Options) {
		o.Environ = append([]string{}, environ...)
	}
}

// WithEnv adds environment variables.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string)
		}
		for k, v := range env {
			o.Env[k] = v
		}
	}
}

// WithEnvVar adds a single environment variable.
func WithEnvVar(key, value string) Option {
	return WithEnv(map[string]string{key: value})
}

// WithStdoutWriter sets a custom stdout writer.
func WithStdoutWriter(w io.Writer) Option {
	return func(o *Options) {
		o.StdoutWriter = w
	}
}

// WithStderrWriter sets a custom stderr writer.
func WithStderrWriter(w io.Writer) Option {
	return func(o *Options) {
		o.StderrWriter = w
	}
}

// CaptureAll captures and redirects to console simultaneously.
func CaptureAll() Option {
	return func(o *Options) {
		o.CaptureStdout = true
		o.CaptureStderr = true
		o.RedirectToConsole = true
	}
}

// SilentMode captures output without console redirect.
func SilentMode() Option {
	return func(o *Options) {
		o.CaptureStdout = true
		o.CaptureStderr = true
		o.RedirectToConsole = false
	}
}
