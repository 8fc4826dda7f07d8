package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/sraship/internal/adapters/console"
	"github.com/bft-labs/sraship/internal/adapters/fifo"
	"github.com/bft-labs/sraship/internal/domain"
	"github.com/bft-labs/sraship/internal/format"
	"github.com/bft-labs/sraship/internal/ports"
)

// eventLog records the order in which pipes close and processes exit.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.events...)
}

// memPipe is an in-memory write end that never blocks.
type memPipe struct {
	name   string
	log    *eventLog
	mu     sync.Mutex
	buf    bytes.Buffer
	once   sync.Once
	closed chan struct{}
}

func newMemPipe(name string, log *eventLog) *memPipe {
	return &memPipe{name: name, log: log, closed: make(chan struct{})}
}

func (p *memPipe) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Write(b)
}

func (p *memPipe) Close() error {
	p.once.Do(func() {
		p.log.add("close " + p.name)
		close(p.closed)
	})
	return nil
}

func (p *memPipe) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.String()
}

type fakeEndpoints struct {
	pipes   [2]*memPipe
	block   bool // Open blocks until ctx is done
	mu      sync.Mutex
	removed int
}

func (e *fakeEndpoints) Paths() [2]string {
	return [2]string{"/run/Read1", "/run/Read2"}
}

func (e *fakeEndpoints) Open(ctx context.Context) (io.WriteCloser, io.WriteCloser, error) {
	if e.block {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	return e.pipes[0], e.pipes[1], nil
}

func (e *fakeEndpoints) Remove() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removed++
	return nil
}

type fakeAllocator struct {
	endpoints *fakeEndpoints
	runID     string
}

func (a *fakeAllocator) Allocate(runID string) (ports.Endpoints, error) {
	a.runID = runID
	return a.endpoints, nil
}

// fakeProcess exits with code once both pipes are closed, or right away
// when exitEarly is set, or with -1 when killed.
type fakeProcess struct {
	done   chan struct{}
	kill   chan struct{}
	once   sync.Once
	code   int
	killed bool
}

func (p *fakeProcess) Pid() int              { return 4242 }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) Wait() (int, error) {
	<-p.done
	return p.code, nil
}

func (p *fakeProcess) Kill() error {
	p.once.Do(func() { close(p.kill) })
	return nil
}

type fakeLauncher struct {
	code      int
	exitEarly bool
	pipes     [2]*memPipe
	log       *eventLog

	cmd  ports.Command
	proc *fakeProcess
}

func (l *fakeLauncher) Start(ctx context.Context, cmd ports.Command) (ports.Process, error) {
	l.cmd = cmd
	p := &fakeProcess{done: make(chan struct{}), kill: make(chan struct{})}
	l.proc = p
	go func() {
		defer close(p.done)
		if l.exitEarly {
			p.code = l.code
			l.log.add("exit")
			return
		}
		waitBoth := make(chan struct{})
		go func() {
			<-l.pipes[0].closed
			<-l.pipes[1].closed
			close(waitBoth)
		}()
		select {
		case <-waitBoth:
			p.code = l.code
		case <-p.kill:
			p.code = -1
			p.killed = true
		}
		l.log.add("exit")
	}()
	return p, nil
}

type fakeTool struct {
	outDir string
}

func (fakeTool) Name() string { return "fake" }

func (fakeTool) Command(p ports.ToolParams) (ports.Command, error) {
	return ports.Command{Tool: "fake", Path: "fake", Args: []string{p.Read1, p.Read2}}, nil
}

func (t fakeTool) OutputDir(p ports.ToolParams) string { return t.outDir }

type recordingObserver struct {
	mockEmitter
	mu      sync.Mutex
	pairs   int
	written [2]int64
}

func (o *recordingObserver) OnFlush(pairs int, final bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pairs += pairs
}

func (o *recordingObserver) OnWritten(w [2]int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.written[0] += w[0]
	o.written[1] += w[1]
}

type harness struct {
	log       *eventLog
	pipes     [2]*memPipe
	endpoints *fakeEndpoints
	allocator *fakeAllocator
	launcher  *fakeLauncher
	source    *fakeSource
	observer  *recordingObserver
}

func newHarness(t *testing.T, pairs int) *harness {
	t.Helper()
	log := &eventLog{}
	pipes := [2]*memPipe{newMemPipe("read1", log), newMemPipe("read2", log)}
	endpoints := &fakeEndpoints{pipes: pipes}
	return &harness{
		log:       log,
		pipes:     pipes,
		endpoints: endpoints,
		allocator: &fakeAllocator{endpoints: endpoints},
		launcher:  &fakeLauncher{pipes: pipes, log: log},
		source:    &fakeSource{n: pairs},
		observer:  &recordingObserver{},
	}
}

func (h *harness) pipeline(t *testing.T, batchSize int) *ToolPipeline {
	t.Helper()
	cfg := RunConfig{
		Pipeline:  "fake",
		Params:    ports.ToolParams{Threads: 1, Index: "/idx", Output: t.TempDir()},
		BatchSize: batchSize,
	}
	adapters := Adapters{
		OpenSource: func(ctx context.Context) (ports.PairSource, error) { return h.source, nil },
		Formatter:  format.FASTQ{},
		Allocator:  h.allocator,
		NewSink: func(w1, w2 io.WriteCloser, cleanup func() error) ports.PairSink {
			return fifo.NewSink(w1, w2, fifo.WithCleanup(cleanup))
		},
		Launcher: h.launcher,
	}
	return NewToolPipeline(cfg, fakeTool{outDir: t.TempDir()}, adapters, &mockLogger{}, h.observer)
}

func TestToolPipeline_Success(t *testing.T) {
	h := newHarness(t, 5)

	res, err := h.pipeline(t, 2).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(5), res.Pairs)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, h.allocator.runID, res.RunID)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []string{"/run/Read1", "/run/Read2"}, h.launcher.cmd.Args)

	side1 := h.pipes[0].String()
	assert.Equal(t, 5, strings.Count(side1, "@P"))
	assert.True(t, strings.HasPrefix(side1, "@P1\nACGT\n+\nIIII\n@P2"))
	assert.True(t, strings.HasSuffix(h.pipes[1].String(), "@P5\nTGCA\n+\nJJJJ"))

	assert.Equal(t, []State{StateLaunching, StateStreaming, StateDraining, StateCompleted}, h.observer.States())
	assert.Equal(t, 5, h.observer.pairs)
	assert.Equal(t, int64(len(side1)), h.observer.written[0])
	assert.GreaterOrEqual(t, h.endpoints.removed, 1)
	assert.Equal(t, 1, h.source.closes)
}

func TestToolPipeline_ExitCodeAfterPipesClosed(t *testing.T) {
	h := newHarness(t, 3)
	h.launcher.code = 2

	res, err := h.pipeline(t, 2).Run(context.Background())

	var te *domain.ToolError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, 2, te.ExitCode)
	assert.ErrorIs(t, err, domain.ErrExternalTool)
	assert.Equal(t, 2, res.ExitCode)

	events := h.log.all()
	require.Len(t, events, 3)
	assert.ElementsMatch(t, []string{"close read1", "close read2"}, events[:2])
	assert.Equal(t, "exit", events[2])

	states := h.observer.States()
	assert.Equal(t, StateFailed, states[len(states)-1])
	assert.Equal(t, StateDraining, h.observer.Events()[len(states)-1].previous)
	assert.GreaterOrEqual(t, h.endpoints.removed, 1)
	assert.Equal(t, 1, h.source.closes)
}

func TestToolPipeline_PairingErrorTearsDown(t *testing.T) {
	h := newHarness(t, 3)
	h.source.err = &domain.PairingError{Read: "P4", Fragments: 1, Reason: "one fragment"}

	_, err := h.pipeline(t, 2).Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrPairing)

	side1 := h.pipes[0].String()
	assert.Contains(t, side1, "@P2")
	assert.NotContains(t, side1, "@P3", "pending pairs of a failed run are not flushed")

	<-h.launcher.proc.done
	assert.True(t, h.launcher.proc.killed || h.launcher.proc.code == 0)
	assert.GreaterOrEqual(t, h.endpoints.removed, 1)
	assert.Equal(t, 1, h.source.closes)

	states := h.observer.States()
	assert.Equal(t, StateFailed, states[len(states)-1])
}

func TestToolPipeline_ChildExitsBeforeOpeningPipes(t *testing.T) {
	h := newHarness(t, 3)
	h.endpoints.block = true
	h.launcher.exitEarly = true
	h.launcher.code = 3

	p := h.pipeline(t, 2)
	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = p.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not give up on the pipes after the child exited")
	}

	var te *domain.ToolError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, 3, te.ExitCode)
	assert.Equal(t, 1, h.endpoints.removed)
}

func TestToolPipeline_SourceUnavailable(t *testing.T) {
	h := newHarness(t, 0)
	p := h.pipeline(t, 2)
	p.adapters.OpenSource = func(ctx context.Context) (ports.PairSource, error) {
		return nil, &domain.SourceError{Accession: "SRR0", Op: "open", Err: errors.New("no route")}
	}

	_, err := p.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Nil(t, h.launcher.proc, "no tool is started without a source")
	assert.Equal(t, []State{StateFailed}, h.observer.States())
}

func TestToolPipeline_CancelDrainsAndAwaits(t *testing.T) {
	h := newHarness(t, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.source.onNext = func(i int) {
		if i == 3 {
			cancel()
		}
	}

	res, err := h.pipeline(t, 2).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(3), res.Pairs)
	assert.Equal(t, 3, strings.Count(h.pipes[0].String(), "@P"))
	assert.False(t, h.launcher.proc.killed, "a cancelled run drains instead of killing")

	states := h.observer.States()
	assert.Equal(t, StateCompleted, states[len(states)-1])
}

func TestDryRun(t *testing.T) {
	src := &fakeSource{n: 3}
	var out bytes.Buffer
	observer := &recordingObserver{}

	cfg := RunConfig{Pipeline: "mock", BatchSize: 2}
	d := NewDryRun(cfg,
		func(ctx context.Context) (ports.PairSource, error) { return src, nil },
		format.TSV{},
		console.NewSink(&out),
		&mockLogger{},
		observer,
	)

	res, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Pairs)

	want := "[1] P1\tACGT\tIIII\n[1] P2\tACGT\tIIII\n" +
		"[2] P1\tTGCA\tJJJJ\n[2] P2\tTGCA\tJJJJ\n" +
		"[1] P3\tACGT\tIIII\n" +
		"[2] P3\tTGCA\tJJJJ\n"
	assert.Equal(t, want, out.String())
	assert.Equal(t, []State{StateLaunching, StateStreaming, StateDraining, StateCompleted}, observer.States())
	assert.Equal(t, 1, src.closes)
}
