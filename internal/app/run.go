package app

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/bft-labs/sraship/internal/batch"
	"github.com/bft-labs/sraship/internal/domain"
	"github.com/bft-labs/sraship/internal/ports"
)

// ExitGracePeriod is how long a run waits for a child that broke a pipe to
// exit on its own before killing it.
const ExitGracePeriod = 10 * time.Second

// RunObserver receives run events. It is the hook metrics attach to.
type RunObserver interface {
	EventEmitter
	OnFlush(pairs int, final bool)
	OnWritten(written [2]int64)
}

// Result summarizes a finished run.
type Result struct {
	RunID     string
	Pairs     int64
	ExitCode  int
	Artifacts []string
	Duration  time.Duration
}

// run holds the resources of one pipeline invocation. Fields are set as the
// run acquires them; teardown releases whatever is set.
type run struct {
	id       string
	tool     string
	lc       *Lifecycle
	logger   ports.Logger
	observer RunObserver
	started  time.Time

	src       ports.PairSource
	endpoints ports.Endpoints
	proc      ports.Process
	sink      ports.PairSink
	buf       *batch.Buffer
	watcher   OutputWatcher

	pairs     int64
	exitCode  int
	artifacts []string
	reported  bool
}

func newRun(tool string, logger ports.Logger, observer RunObserver) *run {
	return &run{
		id:       uuid.NewString(),
		tool:     tool,
		lc:       NewLifecycle(logger, observer),
		logger:   logger,
		observer: observer,
		started:  time.Now(),
	}
}

func (r *run) bufferOptions(cfg RunConfig) []batch.Option {
	var opts []batch.Option
	if cfg.LineSeparator != "" {
		opts = append(opts, batch.WithLineSeparator(cfg.LineSeparator))
	}
	if r.observer != nil {
		opts = append(opts, batch.WithObserver(r.observer))
	}
	return opts
}

// drain closes the buffer: the final flush goes out and the pipes close,
// which is the tool's end of input.
func (r *run) drain(reason string) error {
	if err := r.lc.TransitionTo(StateDraining, reason); err != nil {
		return err
	}
	err := r.buf.Close()
	r.reportWritten()
	return err
}

// awaitExit waits up to grace for the child to exit by itself.
func (r *run) awaitExit(grace time.Duration) (int, bool) {
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-r.proc.Done():
		code, err := r.proc.Wait()
		return code, err == nil
	case <-t.C:
		return 0, false
	}
}

// fail moves the run to Failed, tears everything down and returns primary.
// Teardown errors are logged and never replace primary.
func (r *run) fail(primary error) (Result, error) {
	if r.proc != nil && domain.IsBrokenPipe(primary) {
		// The child closed its end: report how it exited.
		if code, ok := r.awaitExit(ExitGracePeriod); ok && code != 0 {
			primary = &domain.ToolError{Tool: r.tool, ExitCode: code, Err: primary}
		}
	}
	var te *domain.ToolError
	if errors.As(primary, &te) {
		r.exitCode = te.ExitCode
	}

	_ = r.lc.TransitionTo(StateFailed, primary.Error())

	if err := r.teardown(); err != nil {
		r.logger.Warn("teardown incomplete",
			ports.String("run_id", r.id),
			ports.Err(err),
		)
	}
	r.logger.Error("run failed",
		ports.String("run_id", r.id),
		ports.Int64("pairs", r.pairs),
		ports.Err(primary),
	)
	return r.result(), primary
}

// teardown releases every acquired resource, continuing past failures.
func (r *run) teardown() error {
	var err error
	switch {
	case r.buf != nil:
		if n := r.buf.Discard(); n > 0 {
			r.logger.Debug("discarded pending pairs", ports.Int("pairs", n))
		}
		err = multierr.Append(err, r.buf.Close())
		r.reportWritten()
	case r.sink != nil:
		err = multierr.Append(err, r.sink.Close())
	}
	if r.proc != nil {
		err = multierr.Append(err, r.proc.Kill())
		if _, werr := r.proc.Wait(); werr != nil {
			err = multierr.Append(err, werr)
		}
	}
	if r.endpoints != nil {
		err = multierr.Append(err, r.endpoints.Remove())
	}
	if r.src != nil {
		err = multierr.Append(err, r.src.Close())
	}
	r.stopWatch()

	if err != nil {
		return &domain.TeardownError{Err: err}
	}
	return nil
}

// complete releases what is left after a successful drain. cause is the
// context error when the run was cut short, and is returned as is.
func (r *run) complete(cause error) (Result, error) {
	var err error
	if r.endpoints != nil {
		err = multierr.Append(err, r.endpoints.Remove())
	}
	if r.src != nil {
		err = multierr.Append(err, r.src.Close())
	}
	r.stopWatch()

	reason := "end of data"
	if cause != nil {
		reason = cause.Error()
	}
	_ = r.lc.TransitionTo(StateCompleted, reason)

	fields := []ports.Field{
		ports.String("run_id", r.id),
		ports.Int64("pairs", r.pairs),
		ports.Duration("elapsed", time.Since(r.started)),
	}
	if len(r.artifacts) > 0 {
		fields = append(fields, ports.Any("artifacts", r.artifacts))
	}
	r.logger.Info("run completed", fields...)

	if cause != nil {
		return r.result(), cause
	}
	if err != nil {
		terr := &domain.TeardownError{Err: err}
		r.logger.Warn("teardown incomplete", ports.String("run_id", r.id), ports.Err(terr))
		return r.result(), terr
	}
	return r.result(), nil
}

func (r *run) stopWatch() {
	if r.watcher != nil {
		r.artifacts = r.watcher.Stop()
		r.watcher = nil
	}
}

// reportWritten hands the per-side byte counts to the observer once the
// sink is closed.
func (r *run) reportWritten() {
	if r.observer == nil || r.reported {
		return
	}
	if w, ok := r.sink.(interface{ Written() [2]int64 }); ok {
		r.reported = true
		r.observer.OnWritten(w.Written())
	}
}

func (r *run) result() Result {
	return Result{
		RunID:     r.id,
		Pairs:     r.pairs,
		ExitCode:  r.exitCode,
		Artifacts: r.artifacts,
		Duration:  time.Since(r.started),
	}
}
