package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DefaultGrace is how long children get between SIGTERM and SIGKILL.
const DefaultGrace = 3 * time.Second

// ShutdownNotice is the message emitted once when the group is torn down.
const ShutdownNotice = "Shutting down..."

// Supervisor runs a group of child processes with a shared lifecycle.
type Supervisor struct {
	// Output receives every child's stdout and stderr, line-prefixed with its name.
	Output io.Writer
	Logger *zap.Logger
	Grace  time.Duration
	// Notice is called exactly once per Run when shutdown begins.
	Notice func(msg string)
	// OnStart, if set, is called after each child starts.
	OnStart func(spec Spec, pid int)
}

type handle struct {
	spec Spec
	cmd  *exec.Cmd
	done chan struct{}
	// err is written before done is closed.
	err error
}

type group struct {
	sup     *Supervisor
	out     *syncWriter
	mu      sync.Mutex
	handles []*handle
	once    sync.Once
}

// Run starts every background spec in order, then the foreground spec if any,
// and blocks until the foreground exits, every background process has exited
// (when there is no foreground), or ctx is done. A process that failed before
// ctx was done is reported alongside ctx.Err(). All started processes are torn
// down before Run returns, including when it panics.
func (s *Supervisor) Run(ctx context.Context, background []Spec, foreground *Spec) (err error) {
	g := &group{sup: s, out: &syncWriter{w: s.output()}}
	defer func() {
		if r := recover(); r != nil {
			g.shutdown()
			panic(r)
		}
		if serr := g.shutdown(); serr != nil {
			s.logger().Debug("shutdown", zap.Error(serr))
		}
	}()

	for _, spec := range background {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := g.start(spec); err != nil {
			return err
		}
	}

	if foreground != nil {
		h, err := g.start(*foreground)
		if err != nil {
			return err
		}
		select {
		case <-h.done:
			if h.err != nil {
				return &ExitError{Name: h.spec.Name, Err: h.err}
			}
			return nil
		case <-ctx.Done():
			return multierr.Append(ctx.Err(), g.failed())
		}
	}

	return g.waitAll(ctx)
}

func (g *group) start(spec Spec) (*handle, error) {
	s := g.sup
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	out := newPrefixWriter(g.out, spec.Name)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = s.grace() + time.Second
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", spec.Name, err)
	}
	s.logger().Debug("started", zap.String("name", spec.Name), zap.Int("pid", cmd.Process.Pid), zap.Strings("args", cmd.Args))

	h := &handle{spec: spec, cmd: cmd, done: make(chan struct{})}
	g.mu.Lock()
	g.handles = append(g.handles, h)
	g.mu.Unlock()

	go func() {
		err := cmd.Wait()
		out.Flush()
		h.err = err
		close(h.done)
		s.logger().Debug("exited", zap.String("name", spec.Name), zap.Error(err))
	}()

	if s.OnStart != nil {
		s.OnStart(spec, cmd.Process.Pid)
	}
	return h, nil
}

// waitAll blocks until every handle has exited and reports the first failure.
func (g *group) waitAll(ctx context.Context) error {
	g.mu.Lock()
	handles := append([]*handle(nil), g.handles...)
	g.mu.Unlock()

	var first error
	for _, h := range handles {
		select {
		case <-h.done:
			if h.err != nil && first == nil {
				first = &ExitError{Name: h.spec.Name, Err: h.err}
			}
		case <-ctx.Done():
			return multierr.Append(ctx.Err(), g.failed())
		}
	}
	return first
}

// failed returns the first process that has already exited unsuccessfully.
func (g *group) failed() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, h := range g.handles {
		select {
		case <-h.done:
			if h.err != nil {
				return &ExitError{Name: h.spec.Name, Err: h.err}
			}
		default:
		}
	}
	return nil
}

// shutdown terminates every started process group once: SIGTERM, the grace
// period, then SIGKILL for whatever is left.
func (g *group) shutdown() error {
	var errs error
	g.once.Do(func() {
		g.mu.Lock()
		handles := append([]*handle(nil), g.handles...)
		g.mu.Unlock()
		if len(handles) == 0 {
			return
		}

		s := g.sup
		if s.Notice != nil {
			s.Notice(ShutdownNotice)
		}

		for _, h := range handles {
			errs = multierr.Append(errs, wrapSignalErr(h, terminateGroup(h.cmd)))
		}

		deadline := time.After(s.grace())
	grace:
		for _, h := range handles {
			select {
			case <-h.done:
			case <-deadline:
				break grace
			}
		}

		for _, h := range handles {
			select {
			case <-h.done:
				// The leader is gone; reap stragglers left in its group.
				_ = killGroup(h.cmd)
			default:
				s.logger().Debug("killing after grace period", zap.String("name", h.spec.Name))
				errs = multierr.Append(errs, wrapSignalErr(h, killGroup(h.cmd)))
			}
		}
		for _, h := range handles {
			<-h.done
		}
	})
	return errs
}

func wrapSignalErr(h *handle, err error) error {
	if err == nil || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return fmt.Errorf("signal %s: %w", h.spec.Name, err)
}

func (s *Supervisor) output() io.Writer {
	if s.Output == nil {
		return os.Stdout
	}
	return s.Output
}

func (s *Supervisor) grace() time.Duration {
	if s.Grace <= 0 {
		return DefaultGrace
	}
	return s.Grace
}

func (s *Supervisor) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
