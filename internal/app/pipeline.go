package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bft-labs/sraship/internal/batch"
	"github.com/bft-labs/sraship/internal/domain"
	"github.com/bft-labs/sraship/internal/ports"
)

// RunConfig contains configuration for a run.
type RunConfig struct {
	Pipeline string

	// Params is the tool command configuration. Read1 and Read2 are filled
	// in with the FIFO paths of the run.
	Params ports.ToolParams

	BatchSize     int
	MaxReads      int64
	LineSeparator string
	WatchOutput   bool
}

// SourceFunc opens the pair source of a run.
type SourceFunc func(ctx context.Context) (ports.PairSource, error)

// SinkFunc wraps the two opened FIFO write ends in a PairSink. cleanup must
// run once both ends are closed.
type SinkFunc func(w1, w2 io.WriteCloser, cleanup func() error) ports.PairSink

// OutputWatcher records the files a tool writes.
type OutputWatcher interface {
	Start(ctx context.Context) error
	Stop() []string
}

// Adapters are the infrastructure a ToolPipeline is wired to.
type Adapters struct {
	OpenSource SourceFunc
	Formatter  ports.Formatter
	Allocator  ports.EndpointAllocator
	NewSink    SinkFunc
	Launcher   ports.Launcher

	// NewWatcher is optional.
	NewWatcher func(dir string) OutputWatcher
}

// ToolPipeline streams an accession into a downstream tool through two FIFOs.
type ToolPipeline struct {
	config   RunConfig
	tool     ports.Tool
	adapters Adapters
	logger   ports.Logger
	observer RunObserver
}

// NewToolPipeline creates a pipeline for tool. observer may be nil.
func NewToolPipeline(config RunConfig, tool ports.Tool, adapters Adapters, logger ports.Logger, observer RunObserver) *ToolPipeline {
	return &ToolPipeline{
		config:   config,
		tool:     tool,
		adapters: adapters,
		logger:   logger,
		observer: observer,
	}
}

// Run executes one run to completion. A non-zero exit of the tool is
// reported as *domain.ToolError after the pipes have been closed. When ctx
// is cancelled while streaming, the pairs produced so far are drained into
// the tool, the tool is awaited and ctx.Err() is returned.
func (p *ToolPipeline) Run(ctx context.Context) (Result, error) {
	r := newRun(p.tool.Name(), p.logger, p.observer)
	p.logger.Info("run starting",
		ports.String("run_id", r.id),
		ports.String("pipeline", p.config.Pipeline),
	)

	// Configuring
	src, err := p.adapters.OpenSource(ctx)
	if err != nil {
		return r.fail(err)
	}
	r.src = src

	endpoints, err := p.adapters.Allocator.Allocate(r.id)
	if err != nil {
		return r.fail(fmt.Errorf("allocate pipes: %w", err))
	}
	r.endpoints = endpoints

	params := p.config.Params
	paths := endpoints.Paths()
	params.Read1, params.Read2 = paths[0], paths[1]

	cmd, err := p.tool.Command(params)
	if err != nil {
		return r.fail(err)
	}

	outDir := p.tool.OutputDir(params)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return r.fail(fmt.Errorf("create output dir: %w", err))
	}
	if p.config.WatchOutput && p.adapters.NewWatcher != nil {
		w := p.adapters.NewWatcher(outDir)
		if err := w.Start(ctx); err != nil {
			p.logger.Warn("output watcher disabled", ports.Err(err))
		} else {
			r.watcher = w
		}
	}

	// Launching
	if err := r.lc.TransitionTo(StateLaunching, cmd.Path); err != nil {
		return r.fail(err)
	}
	proc, err := p.adapters.Launcher.Start(ctx, cmd)
	if err != nil {
		return r.fail(err)
	}
	r.proc = proc
	p.logger.Info("tool started",
		ports.String("tool", cmd.Tool),
		ports.Int("pid", proc.Pid()),
		ports.String("read1", params.Read1),
		ports.String("read2", params.Read2),
	)

	w1, w2, err := openWhileAlive(ctx, endpoints, proc)
	if err != nil {
		if exited(proc) {
			code, _ := proc.Wait()
			err = &domain.ToolError{Tool: cmd.Tool, ExitCode: code, Err: errors.New("exited before opening its input")}
		}
		return r.fail(err)
	}
	r.sink = p.adapters.NewSink(w1, w2, endpoints.Remove)

	buf, err := batch.New(r.sink, p.adapters.Formatter, p.config.BatchSize, r.bufferOptions(p.config)...)
	if err != nil {
		return r.fail(err)
	}
	r.buf = buf

	// Streaming
	if err := r.lc.TransitionTo(StateStreaming, ""); err != nil {
		return r.fail(err)
	}
	n, streamErr := Stream(ctx, src, buf, p.config.MaxReads)
	r.pairs = n
	if streamErr != nil && !isContextErr(streamErr) {
		return r.fail(streamErr)
	}

	// Draining
	reason := "end of data"
	if streamErr != nil {
		reason = "cancelled"
	}
	if err := r.drain(reason); err != nil {
		return r.fail(err)
	}

	code, err := proc.Wait()
	if err != nil {
		return r.fail(fmt.Errorf("wait for %s: %w", cmd.Tool, err))
	}
	r.exitCode = code
	if code != 0 {
		return r.fail(&domain.ToolError{Tool: cmd.Tool, ExitCode: code})
	}

	// Completed
	return r.complete(streamErr)
}

// openWhileAlive opens the FIFO write ends, giving up if the child exits
// before it has opened the read ends.
func openWhileAlive(ctx context.Context, endpoints ports.Endpoints, proc ports.Process) (io.WriteCloser, io.WriteCloser, error) {
	openCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-proc.Done():
			cancel()
		case <-openCtx.Done():
		}
	}()
	return endpoints.Open(openCtx)
}

func exited(proc ports.Process) bool {
	select {
	case <-proc.Done():
		return true
	default:
		return false
	}
}

// DryRun streams an accession into a diagnostic sink instead of a tool.
type DryRun struct {
	config     RunConfig
	openSource SourceFunc
	formatter  ports.Formatter
	sink       ports.PairSink
	logger     ports.Logger
	observer   RunObserver
}

// NewDryRun creates a dry run writing into sink. observer may be nil.
func NewDryRun(config RunConfig, openSource SourceFunc, formatter ports.Formatter, sink ports.PairSink, logger ports.Logger, observer RunObserver) *DryRun {
	return &DryRun{
		config:     config,
		openSource: openSource,
		formatter:  formatter,
		sink:       sink,
		logger:     logger,
		observer:   observer,
	}
}

// Run streams every pair into the sink. There is no process to await.
func (d *DryRun) Run(ctx context.Context) (Result, error) {
	r := newRun(d.config.Pipeline, d.logger, d.observer)
	r.sink = d.sink
	d.logger.Info("dry run starting",
		ports.String("run_id", r.id),
		ports.String("pipeline", d.config.Pipeline),
	)

	src, err := d.openSource(ctx)
	if err != nil {
		return r.fail(err)
	}
	r.src = src

	if err := r.lc.TransitionTo(StateLaunching, "diagnostic output"); err != nil {
		return r.fail(err)
	}
	buf, err := batch.New(d.sink, d.formatter, d.config.BatchSize, r.bufferOptions(d.config)...)
	if err != nil {
		return r.fail(err)
	}
	r.buf = buf

	if err := r.lc.TransitionTo(StateStreaming, ""); err != nil {
		return r.fail(err)
	}
	n, streamErr := Stream(ctx, src, buf, d.config.MaxReads)
	r.pairs = n
	if streamErr != nil && !isContextErr(streamErr) {
		return r.fail(streamErr)
	}

	reason := "end of data"
	if streamErr != nil {
		reason = "cancelled"
	}
	if err := r.drain(reason); err != nil {
		return r.fail(err)
	}
	return r.complete(streamErr)
}
