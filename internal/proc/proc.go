// Package proc runs external processes with full output capture.
//
// Every process is started in its own process group so that a forced
// kill takes down the whole subtree. Stdout and stderr are drained
// concurrently with the wait; draining them only after a kill loses
// whatever the OS pipe still buffered, which on a chatty node process
// is tens of kilobytes of log.
package proc

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ledgerbench/ledgerbench/pkg/threadsafe"
)

// Result classifies how a process reached its final state.
type Result int

const (
	// Finished means the process exited on its own.
	Finished Result = iota
	// Killed means the process had to be forcibly terminated.
	Killed
)

func (r Result) String() string {
	if r == Killed {
		return "killed"
	}
	return "finished"
}

// KilledExitCode is the sentinel exit code reported for forcibly
// killed processes. The raw signal-derived code is platform noise;
// Output.Result is the authoritative marker.
const KilledExitCode = -1

// Command describes one external process invocation.
type Command struct {
	Path string
	Args []string
	// Env entries are appended to the parent environment.
	Env []string
	Dir string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Path + " " + strings.Join(c.Args, " "))
}

// Output is the immutable snapshot of a finished process, produced
// exactly once at join time.
type Output struct {
	Result   Result
	ExitCode int
	Stdout   string
	Stderr   string
}

// Process is a handle to an asynchronously started command.
type Process struct {
	cmd     *exec.Cmd
	command Command

	stdout bytes.Buffer
	stderr bytes.Buffer

	// collector, when set, owns the stderr stream instead of the
	// internal drain.
	collector *Collector

	drains sync.WaitGroup
	done   chan struct{}

	killMu sync.Mutex
	killed bool
}

// Start spawns the command asynchronously in its own process group
// and begins draining both output streams. It fails only if the
// command cannot be spawned at all.
func Start(cmd Command) (*Process, error) {
	return start(cmd, nil)
}

// StartCollected spawns the command like Start, but hands the stderr
// stream to a Collector that drains it line by line until stop is
// raised or the stream closes. The returned collector is owned by
// the caller; its contents also back Output.Stderr.
func StartCollected(cmd Command, stop *threadsafe.Flag) (*Process, *Collector, error) {
	c := newCollector(stop)
	p, err := start(cmd, c)
	if err != nil {
		return nil, nil, err
	}
	return p, c, nil
}

func start(cmd Command, collector *Collector) (*Process, error) {
	c := exec.Command(cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe for %q: %w", cmd, err)
	}
	stderr, err := c.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe for %q: %w", cmd, err)
	}

	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("spawn %q: %w", cmd, err)
	}
	slog.Debug("process started", "command", cmd.String(), "pid", c.Process.Pid)

	p := &Process{
		cmd:       c,
		command:   cmd,
		collector: collector,
		done:      make(chan struct{}),
	}

	p.drains.Add(2)
	go func() {
		defer p.drains.Done()
		io.Copy(&p.stdout, stdout)
	}()
	if collector != nil {
		go func() {
			defer p.drains.Done()
			collector.run(stderr)
		}()
	} else {
		go func() {
			defer p.drains.Done()
			io.Copy(&p.stderr, stderr)
		}()
	}

	go func() {
		// Wait must not run before the pipe readers are done,
		// it closes the pipes out from under them.
		p.drains.Wait()
		p.cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

// RunSync spawns the command, blocks until it exits and returns its
// output. A nonzero exit code is not an error here; callers inspect
// Output.ExitCode. The returned error is an OS-level spawn failure.
func RunSync(cmd Command) (Output, error) {
	p, err := Start(cmd)
	if err != nil {
		return Output{}, err
	}
	<-p.done
	return p.snapshot(false), nil
}

// Join waits up to timeout for the process to exit. If it is still
// running past the deadline and killOnTimeout is set, the whole
// process group is killed and Join waits unboundedly for the actual
// exit; the result is then marked Killed. With killOnTimeout unset,
// Join keeps waiting past the deadline.
func (p *Process) Join(timeout time.Duration, killOnTimeout bool) Output {
	select {
	case <-p.done:
		return p.snapshot(false)
	case <-time.After(timeout):
	}

	if !killOnTimeout {
		<-p.done
		return p.snapshot(false)
	}

	slog.Debug("join timed out, killing process group",
		"command", p.command.String(), "pid", p.cmd.Process.Pid, "timeout", timeout)
	p.Kill()
	<-p.done
	return p.snapshot(true)
}

// Kill sends SIGKILL to the entire process group.
func (p *Process) Kill() {
	p.killMu.Lock()
	defer p.killMu.Unlock()
	if p.killed {
		return
	}
	p.killed = true

	pgid := p.cmd.Process.Pid
	if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil {
		slog.Warn("failed to kill process group", "pid", pgid, "error", err)
	}
}

// Signal delivers a signal to the entire process group.
func (p *Process) Signal(sig syscall.Signal) error {
	pgid := p.cmd.Process.Pid
	return syscall.Kill(-pgid, sig)
}

// snapshot must only be called after p.done is closed.
func (p *Process) snapshot(forced bool) Output {
	out := Output{
		Result:   Finished,
		ExitCode: p.cmd.ProcessState.ExitCode(),
		Stdout:   p.stdout.String(),
		Stderr:   p.stderr.String(),
	}
	if p.collector != nil {
		out.Stderr = p.collector.Log()
	}
	if forced {
		out.Result = Killed
		out.ExitCode = KilledExitCode
	}
	return out
}
