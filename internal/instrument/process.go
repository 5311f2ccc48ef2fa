package instrument

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"tracerank/internal/errors"
	"tracerank/internal/model"
)

// EventFDEnv tells the traced program which descriptor to write events to.
const EventFDEnv = "TRACERANK_EVENT_FD"

// eventFD is the child descriptor of the event pipe: the first entry of
// ExtraFiles after stdin, stdout and stderr.
const eventFD = 3

// ProcessSource runs an instrumented program and reads its events from a
// dedicated pipe, leaving stdout and stderr to the program.
type ProcessSource struct {
	Path   string
	Args   []string
	Dir    string
	Env    []string
	Stdout io.Writer
	Stderr io.Writer

	MaxLineSize int
	Logger      *slog.Logger
}

// Events implements Source. When the program exits without reporting a
// program_exit event, one is synthesized from its exit status.
func (p *ProcessSource) Events(ctx context.Context) (<-chan Event, <-chan error) {
	events := make(chan Event)
	errs := make(chan error)

	go func() {
		defer close(errs)
		defer close(events)
		if err := p.run(ctx, events, errs); err != nil {
			select {
			case errs <- err:
			case <-ctx.Done():
			}
		}
	}()
	return events, errs
}

func (p *ProcessSource) run(ctx context.Context, events chan<- Event, errs chan<- error) error {
	if runtime.GOOS == "windows" {
		return errors.New(errors.InternalError, "event pipe is not supported on windows", nil)
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return errors.New(errors.IOFailure, "creating event pipe failed", err)
	}
	defer pr.Close()

	cmd := exec.CommandContext(ctx, p.Path, p.Args...)
	cmd.Dir = p.Dir
	cmd.Env = append(append(os.Environ(), p.Env...), EventFDEnv+"="+strconv.Itoa(eventFD))
	cmd.Stdout = p.Stdout
	cmd.Stderr = p.Stderr
	cmd.ExtraFiles = []*os.File{pw}

	if err := cmd.Start(); err != nil {
		pw.Close()
		return errors.New(errors.IOFailure, fmt.Sprintf("starting %s failed", p.Path), err)
	}
	// The child holds its own copy; ours must go so the reader sees EOF.
	pw.Close()
	logger.Debug("Traced program started", "path", p.Path, "pid", cmd.Process.Pid)

	var sawExit atomic.Bool
	forward := make(chan Event)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(forward)
		return decodeStream(gctx, pr, p.MaxLineSize, forward, errs)
	})
	g.Go(func() error {
		for ev := range forward {
			if ev.Kind == KindProgramExit {
				sawExit.Store(true)
			}
			select {
			case events <- ev:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	streamErr := g.Wait()
	// A reader that stopped early must not leave the child blocked on a full pipe.
	pr.Close()
	waitErr := cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if streamErr != nil {
		// decodeStream has already reported it.
		return nil
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !stderrors.As(waitErr, &exitErr) {
			return errors.New(errors.IOFailure, "waiting for traced program failed", waitErr)
		}
		exitCode = exitErr.ExitCode()
	}
	logger.Debug("Traced program exited", "path", p.Path, "exitCode", exitCode)

	if !sawExit.Load() {
		failure := ""
		if exitCode != 0 {
			failure = fmt.Sprintf("exit status %d", exitCode)
		}
		select {
		case events <- Event{Kind: KindProgramExit, Message: model.FormatExitMessage(exitCode == 0, failure)}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
