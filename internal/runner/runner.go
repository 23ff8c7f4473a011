// Package runner executes external diagnostic commands (ip, traceroute,
// ipsec, wg, iptables) with a bounded timeout.
//
// Commands are always built as argument lists and run without a shell, so
// target addresses can never be interpreted as shell syntax. A Runner never
// returns an error: failures surface in Result as a non-zero exit code,
// captured stderr and the TimedOut flag.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const (
	// ExitNotFound is reported when the executable does not exist.
	ExitNotFound = 127

	// ExitTimeout is reported when the command exceeded its timeout.
	ExitTimeout = 124

	// ExitStartFailure is reported when the command could not be started
	// for another reason (permissions, cancelled context).
	ExitStartFailure = 126

	// DefaultTimeout applies when a Command has no timeout of its own.
	DefaultTimeout = 10 * time.Second
)

// Command is one invocation.
type Command struct {
	// Name is the executable, looked up in PATH.
	Name string

	// Args are passed verbatim.
	Args []string

	// Timeout bounds the run. Zero means DefaultTimeout.
	Timeout time.Duration

	// Privileged marks commands that usually need root (ipsec, wg,
	// iptables). They are prefixed with "sudo -n" when the runner is
	// configured to do so.
	Privileged bool
}

// String renders the command for logs and reports.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is the outcome of running a Command.
type Result struct {
	Command  string        `json:"command"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the command did not exit cleanly.
func (r Result) Failed() bool {
	return r.ExitCode != 0 || r.TimedOut
}

// Err returns a *CommandError describing the failure, or nil.
func (r Result) Err() error {
	if !r.Failed() {
		return nil
	}
	return &CommandError{
		Command:  r.Command,
		ExitCode: r.ExitCode,
		Stderr:   strings.TrimSpace(r.Stderr),
		TimedOut: r.TimedOut,
	}
}

// CommandError is the error form of a failed Result.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
	TimedOut bool
}

// Error implements error.
func (e *CommandError) Error() string {
	switch {
	case e.TimedOut:
		return fmt.Sprintf("command %q timed out", e.Command)
	case e.ExitCode == ExitNotFound:
		return fmt.Sprintf("command %q not found", e.Command)
	case e.Stderr != "":
		return fmt.Sprintf("command %q exited with code %d: %s", e.Command, e.ExitCode, e.Stderr)
	default:
		return fmt.Sprintf("command %q exited with code %d", e.Command, e.ExitCode)
	}
}

// Runner runs commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) Result
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// useSudo prefixes privileged commands with "sudo -n".
	useSudo bool

	// logger for structured logging.
	logger *slog.Logger
}

// Option configures an ExecRunner.
type Option func(*ExecRunner)

// WithSudo enables the non-interactive sudo prefix for privileged commands.
// "-n" makes sudo fail instead of prompting, which keeps runs unattended.
func WithSudo(useSudo bool) Option {
	return func(r *ExecRunner) {
		r.useSudo = useSudo
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *ExecRunner) {
		r.logger = logger
	}
}

// NewExecRunner creates an ExecRunner.
func NewExecRunner(opts ...Option) *ExecRunner {
	r := &ExecRunner{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes cmd and captures its output. Output written before a
// timeout is kept, so callers can parse partial results.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) Result {
	name, args := cmd.Name, cmd.Args
	if cmd.Privileged && r.useSudo {
		name, args = "sudo", append([]string{"-n", cmd.Name}, cmd.Args...)
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(ctx, name, args...) //nolint:gosec // argument list, no shell
	c.Stdout = &stdout
	c.Stderr = &stderr
	c.WaitDelay = time.Second

	start := time.Now()
	err := c.Run()

	res := Result{
		Command:  cmd.String(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
		res.ExitCode = ExitTimeout
	case errors.Is(err, exec.ErrNotFound):
		res.ExitCode = ExitNotFound
		res.Stderr = err.Error()
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		if res.ExitCode < 0 {
			res.ExitCode = ExitStartFailure
		}
	default:
		res.ExitCode = ExitStartFailure
		if res.Stderr == "" {
			res.Stderr = err.Error()
		}
	}

	r.logger.Debug("command finished",
		"command", res.Command,
		"exit_code", res.ExitCode,
		"timed_out", res.TimedOut,
		"duration", res.Duration,
	)
	if res.Failed() && res.Stderr != "" {
		r.logger.Debug("command stderr", "command", res.Command, "stderr", res.Stderr)
	}

	return res
}
