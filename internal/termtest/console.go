//go:build unix

package termtest

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// Options configures NewTest.
type Options struct {
	CmdName string
	Args    []string
	Env     []string
	Dir     string
	// Rows and Cols default to 40x120.
	Rows, Cols uint16
	// DefaultTimeout bounds Expect and ExpectExitCode. Defaults to 30s.
	DefaultTimeout time.Duration
}

// ConsoleProcess is a started PTYTest bound to a test. Expectations match
// output produced since the previous successful Expect, so a stale frame
// cannot satisfy a later assertion.
type ConsoleProcess struct {
	pty     *PTYTest
	t       testing.TB
	timeout time.Duration
	mark    int
}

// NewTest starts the command and closes it when the test ends.
func NewTest(t testing.TB, opts Options) (*ConsoleProcess, error) {
	p := New(context.Background(), opts.CmdName, opts.Args...)
	p.SetEnv(opts.Env...)
	if opts.Dir != "" {
		p.SetDir(opts.Dir)
	}
	if opts.Rows > 0 && opts.Cols > 0 {
		p.SetSize(opts.Rows, opts.Cols)
	}
	if err := p.Start(); err != nil {
		return nil, err
	}
	t.Cleanup(func() { _ = p.Close() })

	timeout := opts.DefaultTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ConsoleProcess{pty: p, t: t, timeout: timeout}, nil
}

// Send types s.
func (cp *ConsoleProcess) Send(s string) error { return cp.pty.SendInput(s) }

// SendKeys sends named keys, see PTYTest.SendKeys.
func (cp *ConsoleProcess) SendKeys(keys ...string) error { return cp.pty.SendKeys(keys...) }

// Expect waits for text in the output produced since the last successful
// Expect and moves the mark past it.
func (cp *ConsoleProcess) Expect(text string) error {
	if err := cp.pty.WaitForOutputSince(text, cp.mark, cp.timeout); err != nil {
		return err
	}
	cp.mark = cp.pty.OutputLen()
	return nil
}

// ExpectExitCode waits for the process to exit with code.
func (cp *ConsoleProcess) ExpectExitCode(code int) error {
	got, err := cp.pty.WaitForExit(cp.timeout)
	if err != nil {
		return fmt.Errorf("failed to wait for exit: %w", err)
	}
	if got != code {
		return fmt.Errorf("expected exit code %d, got %d; output: %q", code, got, cp.pty.Text(0))
	}
	return nil
}

// Output returns the captured output with escape sequences removed.
func (cp *ConsoleProcess) Output() string { return cp.pty.Text(0) }

// Close kills the process if needed.
func (cp *ConsoleProcess) Close() error { return cp.pty.Close() }
