// Package proc starts downstream tools as child processes.
package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bft-labs/sraship/internal/ports"
)

// Launcher starts commands with os/exec. The child's stderr is forwarded to
// Stderr; stdout goes to the command's Stdout file, or to Stderr when none is set.
type Launcher struct {
	Stderr io.Writer
	logger ports.Logger
}

// NewLauncher creates a Launcher forwarding child diagnostics to os.Stderr.
func NewLauncher(logger ports.Logger) *Launcher {
	return &Launcher{Stderr: os.Stderr, logger: logger}
}

// WaitDelay bounds how long reaping waits for the child's output copies after
// it has exited. Grandchildren that inherited stderr would otherwise hold
// Wait open.
const WaitDelay = 2 * time.Second

// Start launches cmd in its own process group. The child is not tied to ctx: a cancelled run still
// closes the pipes and waits for the tool to finish.
func (l *Launcher) Start(ctx context.Context, cmd ports.Command) (ports.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := exec.LookPath(cmd.Path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.Tool, err)
	}

	c := exec.Command(path, cmd.Args...)
	c.Stderr = l.Stderr
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.WaitDelay = WaitDelay

	var out *os.File
	if cmd.Stdout != "" {
		out, err = os.Create(cmd.Stdout)
		if err != nil {
			return nil, fmt.Errorf("create output: %w", err)
		}
		c.Stdout = out
	} else {
		c.Stdout = l.Stderr
	}

	if err := c.Start(); err != nil {
		if out != nil {
			out.Close()
		}
		return nil, fmt.Errorf("start %s: %w", cmd.Tool, err)
	}

	p := &process{cmd: c, out: out, done: make(chan struct{})}
	go p.reap()

	if l.logger != nil {
		l.logger.Debug("child started",
			ports.String("tool", cmd.Tool),
			ports.Int("pid", c.Process.Pid),
			ports.Any("args", cmd.Args),
		)
	}
	return p, nil
}

type process struct {
	cmd  *exec.Cmd
	out  *os.File
	done chan struct{}

	once     sync.Once
	exitCode int
	waitErr  error
}

// reap waits for the child exactly once and records its exit status.
func (p *process) reap() {
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		p.exitCode = 0
	case errors.As(err, &exitErr):
		p.exitCode = exitErr.ExitCode()
	default:
		p.exitCode = -1
		p.waitErr = err
	}
	if p.out != nil {
		if cerr := p.out.Close(); cerr != nil && p.waitErr == nil {
			p.waitErr = fmt.Errorf("close output: %w", cerr)
		}
	}
	close(p.done)
}

func (p *process) Pid() int {
	return p.cmd.Process.Pid
}

func (p *process) Done() <-chan struct{} {
	return p.done
}

func (p *process) Wait() (int, error) {
	<-p.done
	return p.exitCode, p.waitErr
}

// Kill sends SIGKILL to the child's process group, so helpers the tool
// spawned die with it.
func (p *process) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	err := unix.Kill(-p.cmd.Process.Pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		err = p.cmd.Process.Kill()
	}
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
