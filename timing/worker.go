package timing

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

const (
	readyLine = "ready"
	startLine = "start"
)

// ErrProtocol is returned when a worker does not follow the start protocol.
var ErrProtocol = errors.New("timing: worker protocol violation")

// Job describes the work handed to one parallel worker.
type Job struct {
	Benchmark   string
	Iterations  uint64
	Warmup      uint64
	Repetitions int
}

// Launcher starts workers.
type Launcher interface {
	Launch(ctx context.Context, job Job) (Worker, error)
}

// Worker is a started worker. Ready blocks until the worker finished its
// setup, Start releases it, Wait collects its result.
type Worker interface {
	Ready() error
	Start() error
	Wait() (Result, error)
	Kill()
}

// ServeWorker runs job against b on behalf of a parent harness, speaking
// the line protocol on in and out: it performs Setup(0), writes "ready",
// waits for "start", measures, performs Teardown(0) and writes the Result
// as JSON.
func ServeWorker(ctx context.Context, b Benchmark, job Job, cfg Config, in io.Reader, out io.Writer) (err error) {
	cfg.Parallel = 1
	cfg.Iterations = job.Iterations
	cfg.Warmup = job.Warmup
	cfg.Repetitions = job.Repetitions
	h := New(cfg)

	if job.Iterations == 0 {
		return fmt.Errorf("%w: worker needs a fixed iteration count", ErrInvalidConfig)
	}

	if err := b.Setup(ctx, 0); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, b.Teardown(ctx, 0))
	}()

	if _, err := fmt.Fprintln(out, readyLine); err != nil {
		return err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil {
		return fmt.Errorf("%w: waiting for start: %w", ErrProtocol, err)
	}
	if strings.TrimSpace(line) != startLine {
		return fmt.Errorf("%w: unexpected %q", ErrProtocol, line)
	}

	if h.cfg.Warmup > 0 {
		if _, err := h.batch(ctx, b, h.cfg.Warmup); err != nil {
			return err
		}
	}
	elapsed, err := h.repeat(ctx, b, job.Iterations)
	if err != nil {
		return err
	}

	return json.NewEncoder(out).Encode(Result{
		Elapsed:    elapsed,
		Iterations: job.Iterations,
		Processes:  1,
	})
}

// ExecLauncher starts every worker as a child process of Path.
type ExecLauncher struct {
	// Path is the executable. If empty, the running executable is used.
	Path string
	// Args builds the child command line for a job.
	Args func(Job) []string
	// Stderr receives the children's diagnostics. If nil, os.Stderr.
	Stderr io.Writer
}

// Launch implements Launcher.
func (l *ExecLauncher) Launch(ctx context.Context, job Job) (Worker, error) {
	path := l.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, err
		}
		path = exe
	}

	var args []string
	if l.Args != nil {
		args = l.Args(job)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stderr = l.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return &processWorker{cmd: cmd, stdin: stdin, stdout: bufio.NewReader(stdout)}, nil
}

type processWorker struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
}

func (w *processWorker) Ready() error {
	line, err := w.stdout.ReadString('\n')
	if err != nil {
		return fmt.Errorf("%w: waiting for ready: %w", ErrProtocol, errors.Join(err, w.cmd.Wait()))
	}
	if strings.TrimSpace(line) != readyLine {
		return fmt.Errorf("%w: unexpected %q", ErrProtocol, line)
	}
	return nil
}

func (w *processWorker) Start() error {
	if _, err := io.WriteString(w.stdin, startLine+"\n"); err != nil {
		return err
	}
	return w.stdin.Close()
}

func (w *processWorker) Wait() (Result, error) {
	var r Result
	decodeErr := json.NewDecoder(w.stdout).Decode(&r)
	if err := w.cmd.Wait(); err != nil {
		return Result{}, err
	}
	if decodeErr != nil {
		return Result{}, fmt.Errorf("%w: decode result: %w", ErrProtocol, decodeErr)
	}
	return r, nil
}

func (w *processWorker) Kill() {
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
		_ = w.cmd.Wait()
	}
}
