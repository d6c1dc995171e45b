// Package runner executes external collaborator processes under a timeout and
// captures their output.
package runner

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/8gabri8/TST-bioimage/internal/errors"
	"github.com/8gabri8/TST-bioimage/internal/logger"
)

// waitDelay bounds how long Wait blocks on pipes held by orphaned children
const waitDelay = 2 * time.Second

// ErrNonZeroExit is wrapped by the error returned for a process that ran to
// completion with a nonzero exit status.
var ErrNonZeroExit = errors.NewStd("process exited with nonzero status")

// Command describes one process invocation
type Command struct {
	Name    string        // label used in logs and errors
	Path    string        // executable
	Args    []string
	Dir     string
	Env     []string      // appended to the current environment
	Timeout time.Duration // 0 means only the parent context applies
}

// Result is the captured outcome of a process
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int // -1 when the process did not exit normally
	Duration time.Duration
}

// Run starts the command and waits for it, draining stdout and stderr
// concurrently. A Result is returned whenever the process was started, also
// alongside an error for nonzero exit, timeout or cancellation.
func Run(ctx context.Context, c Command) (*Result, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	log := GetLogger().With(logger.String("command", c.Name))

	cmd := exec.CommandContext(ctx, c.Path, c.Args...) //nolint:gosec // paths come from validated configuration
	cmd.Dir = c.Dir
	cmd.WaitDelay = waitDelay
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, startError(c, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, startError(c, err)
	}

	log.Debug("starting process",
		logger.String("path", c.Path),
		logger.String("args", strings.Join(c.Args, " ")),
		logger.Duration("timeout", c.Timeout))

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, startError(c, err)
	}

	var outBuf, errBuf bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(&outBuf, stdout)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(&errBuf, stderr)
		return err
	})
	drainErr := g.Wait()
	waitErr := cmd.Wait()

	res := &Result{
		Stdout:   outBuf.Bytes(),
		Stderr:   errBuf.Bytes(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}

	log.Debug("process finished",
		logger.Int("exit_code", res.ExitCode),
		logger.Duration("duration", res.Duration),
		logger.Int("stdout_bytes", len(res.Stdout)),
		logger.Int("stderr_bytes", len(res.Stderr)))

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return res, errors.New(ctx.Err()).
			Category(errors.CategoryTimeout).
			Context("command", c.Name).
			Timing("run_"+c.Name, res.Duration).
			Build()
	case errors.Is(ctx.Err(), context.Canceled):
		return res, errors.New(ctx.Err()).
			Category(errors.CategoryCancellation).
			Context("command", c.Name).
			Build()
	case waitErr != nil:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return res, errors.New(errors.Join(ErrNonZeroExit, waitErr)).
				Category(errors.CategoryCommandExecution).
				Context("command", c.Name).
				Context("exit_code", res.ExitCode).
				Context("stderr", tail(res.Stderr)).
				Build()
		}
		return res, errors.New(waitErr).
			Category(errors.CategoryCommandExecution).
			Context("command", c.Name).
			Build()
	case drainErr != nil:
		return res, errors.New(drainErr).
			Category(errors.CategoryCommandExecution).
			Context("command", c.Name).
			Context("operation", "drain_output").
			Build()
	}

	return res, nil
}

func startError(c Command, err error) error {
	return errors.New(err).
		Category(errors.CategoryCommandExecution).
		Context("command", c.Name).
		Context("path", c.Path).
		Context("operation", "start_process").
		Build()
}

// tail keeps the end of the process stderr for error context
func tail(b []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		s = "..." + s[len(s)-limit:]
	}
	return s
}

// GetLogger returns the runner module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("runner")
}
