//go:build unix

// Package termtest runs a command attached to a real pseudo terminal, so
// tests can drive the interactive player with key presses and assert on what
// it draws.
package termtest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/creack/pty"

	"github.com/joeycumines/whatsdemo/internal/testutil"
)

// PTYTest is a command running on the slave side of a pty. Output written by
// the command is captured from the master side.
type PTYTest struct {
	ptm  *os.File
	cmd  *exec.Cmd
	size pty.Winsize

	outputMu sync.RWMutex
	output   strings.Builder

	exited  chan struct{}
	waitErr error

	closeOnce sync.Once
}

// New prepares command with a 40x120 terminal. Call Start to run it.
func New(ctx context.Context, command string, args ...string) *PTYTest {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	return &PTYTest{
		cmd:    cmd,
		size:   pty.Winsize{Rows: 40, Cols: 120},
		exited: make(chan struct{}),
	}
}

// SetEnv appends environment variables; later entries win.
func (p *PTYTest) SetEnv(env ...string) { p.cmd.Env = append(p.cmd.Env, env...) }

// SetDir sets the working directory of the command.
func (p *PTYTest) SetDir(dir string) { p.cmd.Dir = dir }

// SetSize sets the terminal size used by Start.
func (p *PTYTest) SetSize(rows, cols uint16) { p.size = pty.Winsize{Rows: rows, Cols: cols} }

// Start runs the command with the pty as its controlling terminal.
func (p *PTYTest) Start() error {
	ptm, err := pty.StartWithSize(p.cmd, &p.size)
	if err != nil {
		return fmt.Errorf("failed to start command with pty: %w", err)
	}
	p.ptm = ptm
	go p.readOutput()
	go func() {
		p.waitErr = p.cmd.Wait()
		close(p.exited)
	}()
	return nil
}

func (p *PTYTest) readOutput() {
	buf := make([]byte, 4096)
	for {
		n, err := p.ptm.Read(buf)
		if n > 0 {
			p.outputMu.Lock()
			p.output.Write(buf[:n])
			p.outputMu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// SendInput writes s to the terminal as typed input.
func (p *PTYTest) SendInput(s string) error {
	if _, err := p.ptm.WriteString(s); err != nil {
		return fmt.Errorf("failed to write input: %w", err)
	}
	return nil
}

var keySequences = map[string]string{
	"enter":     "\r",
	"esc":       "\x1b",
	"escape":    "\x1b",
	"space":     " ",
	"tab":       "\t",
	"backspace": "\x7f",
	"ctrl-c":    "\x03",
	"ctrl-d":    "\x04",
	"up":        "\x1b[A",
	"down":      "\x1b[B",
	"right":     "\x1b[C",
	"left":      "\x1b[D",
}

// SendKeys sends named keys such as "enter", "space" or "left".
func (p *PTYTest) SendKeys(keys ...string) error {
	for _, k := range keys {
		seq, ok := keySequences[strings.ToLower(k)]
		if !ok {
			return fmt.Errorf("unknown key sequence: %s", k)
		}
		if err := p.SendInput(seq); err != nil {
			return err
		}
	}
	return nil
}

// OutputLen returns the number of raw bytes captured so far.
func (p *PTYTest) OutputLen() int {
	p.outputMu.RLock()
	defer p.outputMu.RUnlock()
	return p.output.Len()
}

// Output returns everything captured so far, escape sequences included.
func (p *PTYTest) Output() string {
	p.outputMu.RLock()
	defer p.outputMu.RUnlock()
	return p.output.String()
}

// Text returns the output captured after raw offset start with escape
// sequences removed.
func (p *PTYTest) Text(start int) string {
	out := p.Output()
	start = min(max(start, 0), len(out))
	return ansi.Strip(out[start:])
}

// WaitForOutputSince waits for text to appear, escape sequences ignored, in
// the output captured after raw offset start.
func (p *PTYTest) WaitForOutputSince(text string, start int, timeout time.Duration) error {
	err := testutil.Poll(context.Background(), func() bool {
		return strings.Contains(p.Text(start), text)
	}, timeout, testutil.PollingInterval)
	if err != nil {
		return fmt.Errorf("expected text %q not found in output after %v: %q", text, timeout, p.Text(start))
	}
	return nil
}

// WaitForExit waits for the command to exit and returns its exit code.
func (p *PTYTest) WaitForExit(timeout time.Duration) (int, error) {
	select {
	case <-p.exited:
	case <-time.After(timeout):
		return -1, fmt.Errorf("command still running after %v", timeout)
	}
	var exitErr *exec.ExitError
	switch {
	case p.waitErr == nil:
		return 0, nil
	case errors.As(p.waitErr, &exitErr):
		return exitErr.ExitCode(), nil
	default:
		return -1, p.waitErr
	}
}

// Close kills the command if it is still running and releases the pty.
func (p *PTYTest) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.ptm == nil {
			return
		}
		select {
		case <-p.exited:
		default:
			_ = p.cmd.Process.Kill()
			<-p.exited
		}
		err = p.ptm.Close()
	})
	return err
}
