package exec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

// DefaultMaxOutput caps each captured stream.
const DefaultMaxOutput = 64000

// ManagerConfig configures how commands are spawned.
type ManagerConfig struct {
	// Shell is the interpreter and its flag, e.g. ["bash", "-c"]. Empty
	// selects cmd /C on Windows and bash -c elsewhere.
	Shell []string
	// Dir is the working directory; empty inherits the process directory.
	Dir string
	// Env is appended to the process environment.
	Env map[string]string
	// Timeout bounds every command; zero means no limit beyond the context.
	Timeout time.Duration
	// MaxOutput caps stdout and stderr separately.
	MaxOutput int
}

// Manager runs shell commands synchronously.
type Manager struct {
	shell     []string
	dir       string
	env       []string
	timeout   time.Duration
	maxOutput int
}

// NewManager creates a command manager.
func NewManager(cfg ManagerConfig) *Manager {
	shell := cfg.Shell
	if len(shell) == 0 {
		shell = defaultShell()
	}
	maxOutput := cfg.MaxOutput
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}
	var env []string
	if len(cfg.Env) > 0 {
		env = os.Environ()
		for k, v := range cfg.Env {
			env = append(env, k+"="+v)
		}
	}
	return &Manager{
		shell:     shell,
		dir:       cfg.Dir,
		env:       env,
		timeout:   cfg.Timeout,
		maxOutput: maxOutput,
	}
}

func defaultShell() []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd", "/C"}
	}
	return []string{"bash", "-c"}
}

// RunCommand executes command and waits for it. A non-zero exit is reported
// in the result, not as an error; errors mean the command could not be run
// to completion.
func (m *Manager) RunCommand(ctx context.Context, command string) (ExecResult, error) {
	if command == "" {
		return ExecResult{}, fmt.Errorf("command is required")
	}
	runCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	args := append(append([]string{}, m.shell[1:]...), command)
	cmd := exec.CommandContext(runCtx, m.shell[0], args...)
	cmd.Dir = m.dir
	if m.env != nil {
		cmd.Env = m.env
	}
	stdout := newLimitedBuffer(m.maxOutput)
	stderr := newLimitedBuffer(m.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Background children can hold the pipes open after a kill.
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	result := ExecResult{
		Command:   command,
		Cwd:       cmd.Dir,
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  time.Since(start),
		ExitCode:  exitCode(err),
		Truncated: stdout.Truncated() || stderr.Truncated(),
	}

	if ctxErr := runCtx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) && ctx.Err() == nil {
			return result, fmt.Errorf("command timed out after %s: %w", m.timeout, ctxErr)
		}
		return result, ctxErr
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return result, fmt.Errorf("start command: %w", err)
	}
	return result, nil
}

type limitedBuffer struct {
	mu        sync.Mutex
	buf       []byte
	max       int
	truncated bool
}

func newLimitedBuffer(max int) *limitedBuffer {
	return &limitedBuffer{max: max}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.max > 0 && len(b.buf) >= b.max {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	remaining := b.max - len(b.buf)
	if b.max > 0 && len(p) > remaining {
		b.buf = append(b.buf, p[:remaining]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

func (b *limitedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// ExecResult summarizes a synchronous exec call.
type ExecResult struct {
	Command   string        `json:"command"`
	Cwd       string        `json:"cwd"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	ExitCode  int           `json:"exit_code"`
	Duration  time.Duration `json:"duration"`
	Truncated bool          `json:"truncated,omitempty"`
}
