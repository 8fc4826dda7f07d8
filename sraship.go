// Package sraship streams paired sequencing reads from a record archive into
// an external analysis tool through two named pipes, without writing the
// reads to disk.
//
// Example usage:
//
//	cfg := sraship.DefaultConfig()
//	cfg.Pipeline = "salmon"
//	cfg.SRAAccession = "SRR5000000"
//	cfg.ArchiveDir = "/data/sra"
//	cfg.Index = "/ref/salmon_index"
//	cfg.Output = "/out/SRR5000000"
//	res, err := sraship.Run(ctx, cfg, sraship.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Pairs)
package sraship

import (
	"context"
	"io"
	"os"
	"sort"

	"github.com/bft-labs/sraship/internal/adapters/archive"
	"github.com/bft-labs/sraship/internal/adapters/console"
	"github.com/bft-labs/sraship/internal/adapters/fifo"
	logAdapter "github.com/bft-labs/sraship/internal/adapters/log"
	"github.com/bft-labs/sraship/internal/adapters/proc"
	"github.com/bft-labs/sraship/internal/app"
	"github.com/bft-labs/sraship/internal/cliconfig"
	"github.com/bft-labs/sraship/internal/domain"
	"github.com/bft-labs/sraship/internal/format"
	"github.com/bft-labs/sraship/internal/metrics"
	"github.com/bft-labs/sraship/internal/ports"
	"github.com/bft-labs/sraship/internal/source"
	"github.com/bft-labs/sraship/internal/tool"
	"github.com/bft-labs/sraship/internal/watch"
)

// Config holds the configuration of a run.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = cliconfig.Config

// Result summarizes a finished run.
type Result = app.Result

// State is the lifecycle state of a run.
type State = app.State

// Run states.
const (
	StateConfiguring = app.StateConfiguring
	StateLaunching   = app.StateLaunching
	StateStreaming   = app.StateStreaming
	StateDraining    = app.StateDraining
	StateCompleted   = app.StateCompleted
	StateFailed      = app.StateFailed
)

// Re-exported collaborator types.
type (
	// Logger is the interface for structured logging.
	Logger = ports.Logger

	// LogField represents a structured log field.
	LogField = ports.Field

	// Archive opens read collections by accession.
	Archive = ports.Archive

	// Launcher starts the downstream tool.
	Launcher = ports.Launcher

	// Record is a raw archive record; Fragment one of its reads.
	Record   = domain.Record
	Fragment = domain.Fragment

	// MemoryArchive is an Archive of in-memory records.
	MemoryArchive = archive.Memory
)

// Errors that can be checked with errors.Is.
var (
	ErrSourceUnavailable = domain.ErrSourceUnavailable
	ErrPairing           = domain.ErrPairing
	ErrExternalTool      = domain.ErrExternalTool
	ErrTeardown          = domain.ErrTeardown
	ErrInvalidConfig     = domain.ErrInvalidConfig
	ErrUnknownPipeline   = domain.ErrUnknownPipeline
)

// ToolError carries the exit code of a failed tool. Use errors.As.
type ToolError = domain.ToolError

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return cliconfig.DefaultConfig()
}

// NewMemoryArchive returns an empty in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return archive.NewMemory()
}

// Pipelines returns the supported pipeline names in sorted order.
func Pipelines() []string {
	names := append(tool.Names(), tool.Mock)
	sort.Strings(names)
	return names
}

// EventHandler receives lifecycle transitions of a run.
// Calls happen synchronously on the run's goroutine.
type EventHandler interface {
	OnStateChange(previous, current State, reason string)
}

// Option configures optional behavior of Run.
type Option func(*options)

type options struct {
	logger       ports.Logger
	archive      ports.Archive
	launcher     ports.Launcher
	diagnostic   io.Writer
	eventHandler EventHandler
}

// WithLogger sets a logger. If not provided, a no-op logger is used.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithArchive replaces the local directory archive.
func WithArchive(a Archive) Option {
	return func(o *options) {
		o.archive = a
	}
}

// WithLauncher replaces the os/exec launcher.
func WithLauncher(l Launcher) Option {
	return func(o *options) {
		o.launcher = l
	}
}

// WithDiagnosticOutput sets where the mock pipeline prints pairs.
// Defaults to os.Stdout.
func WithDiagnosticOutput(w io.Writer) Option {
	return func(o *options) {
		o.diagnostic = w
	}
}

// WithEventHandler sets a handler for lifecycle transitions.
func WithEventHandler(h EventHandler) Option {
	return func(o *options) {
		o.eventHandler = h
	}
}

// Run validates cfg and executes one pipeline run. It blocks until the tool
// has exited (or, for the mock pipeline, every pair has been printed).
// Cancelling ctx stops reading from the archive; the pairs already read are
// still handed to the tool and the tool is awaited before Run returns.
func Run(ctx context.Context, cfg Config, opts ...Option) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	o := options{diagnostic: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = logAdapter.NewNoopLogger()
	}
	if o.archive == nil {
		o.archive = archive.Dir{Root: cfg.ArchiveDir}
	}
	if o.launcher == nil {
		o.launcher = proc.NewLauncher(logger)
	}

	formatter, err := format.Lookup(cfg.Format)
	if err != nil {
		return Result{}, err
	}

	m := metrics.New(cfg.Pipeline)
	observer := &runObserver{metrics: m, handler: o.eventHandler}

	openSource := func(ctx context.Context) (ports.PairSource, error) {
		return source.Open(ctx, o.archive, cfg.SRAAccession, source.Options{
			ChunkSize: cfg.BatchSize,
			MaxReads:  cfg.MaxReads,
		})
	}
	runCfg := app.RunConfig{
		Pipeline: cfg.Pipeline,
		Params: ports.ToolParams{
			Threads:   cfg.Threads,
			Index:     cfg.Index,
			Output:    cfg.Output,
			ExtraArgs: cfg.AlignerArgs,
			LibType:   cfg.LibType,
		},
		BatchSize:   cfg.BatchSize,
		MaxReads:    cfg.MaxReads,
		WatchOutput: cfg.WatchOutput,
	}

	var res Result
	if cfg.Pipeline == tool.Mock {
		sink := console.NewSink(o.diagnostic)
		res, err = app.NewDryRun(runCfg, openSource, formatter, sink, logger, observer).Run(ctx)
	} else {
		t, lerr := tool.Lookup(cfg.Pipeline)
		if lerr != nil {
			return Result{}, lerr
		}
		adapters := app.Adapters{
			OpenSource: openSource,
			Formatter:  formatter,
			Allocator:  fifo.Allocator{Parent: cfg.WorkDir},
			NewSink: func(w1, w2 io.WriteCloser, cleanup func() error) ports.PairSink {
				return fifo.NewSink(w1, w2, fifo.WithCleanup(cleanup))
			},
			Launcher: o.launcher,
			NewWatcher: func(dir string) app.OutputWatcher {
				return watch.New(dir, logger)
			},
		}
		res, err = app.NewToolPipeline(runCfg, t, adapters, logger, observer).Run(ctx)
	}

	m.Finish()
	if cfg.MetricsFile != "" {
		if merr := m.WriteTextfile(cfg.MetricsFile); merr != nil {
			logger.Warn("metrics export failed", ports.Err(merr))
		}
	}
	return res, err
}

// runObserver feeds run events into the metrics and the caller's handler.
type runObserver struct {
	metrics *metrics.Run
	handler EventHandler
}

func (r *runObserver) OnStateChange(previous, current State, reason string) {
	r.metrics.SetState(int(current))
	if r.handler != nil {
		r.handler.OnStateChange(previous, current, reason)
	}
}

func (r *runObserver) OnFlush(pairs int, final bool) {
	r.metrics.OnFlush(pairs, final)
}

func (r *runObserver) OnWritten(written [2]int64) {
	r.metrics.AddBytes(metrics.Side1, written[0])
	r.metrics.AddBytes(metrics.Side2, written[1])
}
