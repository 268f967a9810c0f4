// Package system runs user-requested shell commands under the security
// policy from the configuration: a blocklist of dangerous commands and,
// in sandbox mode, an explicit allowlist.
package system

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/gliderlab/clawbee/pkg/config"
)

const (
	defaultTimeout = 30 * time.Second
	maxTimeout     = 300 * time.Second
	maxStdoutBytes = 10000
	maxStderrBytes = 2000
)

// PolicyError reports a command rejected by the security policy.
type PolicyError struct {
	Command string
	Reason  string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("command %q rejected: %s", e.Command, e.Reason)
}

// Result holds the outcome of a command run.
type Result struct {
	Command  string `json:"command"`
	Success  bool   `json:"success"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	Error    string `json:"error,omitempty"`
}

// Runner executes commands without a shell. Arguments are tokenized
// with shlex so quoted arguments survive, but pipes and redirects are
// never interpreted.
type Runner struct {
	policy  config.SecurityConfig
	timeout time.Duration
}

// New builds a Runner from the security configuration.
func New(policy config.SecurityConfig) *Runner {
	return &Runner{policy: policy, timeout: defaultTimeout}
}

// SetTimeout overrides the default per-command timeout.
func (r *Runner) SetTimeout(d time.Duration) {
	if d > maxTimeout {
		d = maxTimeout
	}
	if d > 0 {
		r.timeout = d
	}
}

// check applies the policy to the resolved program name.
func (r *Runner) check(command, program string) error {
	for _, blocked := range r.policy.BlockedCommands {
		if program == blocked {
			return &PolicyError{Command: command, Reason: "command is blocked"}
		}
	}
	if r.policy.Sandbox {
		allowed := false
		for _, a := range r.policy.AllowedCommands {
			if program == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return &PolicyError{Command: command, Reason: "not in sandbox allowlist"}
		}
	}
	return nil
}

// Run tokenizes and executes a command. Shell metacharacters are not
// interpreted; a command containing them fails tokenization or runs
// with them as literal arguments.
func (r *Runner) Run(ctx context.Context, command string) (*Result, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, fmt.Errorf("empty command")
	}

	parts, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	if err := r.check(command, parts[0]); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("command timed out after %s", r.timeout)
	}

	result := &Result{
		Command:  command,
		Success:  runErr == nil,
		ExitCode: -1,
		Stdout:   truncate(stdout.String(), maxStdoutBytes),
		Stderr:   truncate(stderr.String(), maxStderrBytes),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}
	return result, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... (truncated)"
}
