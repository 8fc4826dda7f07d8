package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/sraship/internal/adapters/archive"
	"github.com/bft-labs/sraship/internal/adapters/fifo"
	"github.com/bft-labs/sraship/internal/adapters/proc"
	"github.com/bft-labs/sraship/internal/domain"
	"github.com/bft-labs/sraship/internal/format"
	"github.com/bft-labs/sraship/internal/ports"
	"github.com/bft-labs/sraship/internal/source"
)

// shellTool runs a shell script with the FIFO paths as $0 and $1.
type shellTool struct {
	script string
	outDir string
}

func (shellTool) Name() string { return "sh" }

func (t shellTool) Command(p ports.ToolParams) (ports.Command, error) {
	return ports.Command{Tool: "sh", Path: "/bin/sh", Args: []string{"-c", t.script, p.Read1, p.Read2}}, nil
}

func (t shellTool) OutputDir(p ports.ToolParams) string { return t.outDir }

func requireFIFOs(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
}

func memoryArchive(n int) *archive.Memory {
	a := archive.NewMemory()
	for i := 1; i <= n; i++ {
		name := fmt.Sprintf("SRR1.%d", i)
		seq := strings.Repeat("ACGT", 25)
		qual := strings.Repeat("I", 100)
		a.Add("SRR1", domain.Record{Name: name, Fragments: []domain.Fragment{
			{Bases: seq, Qualities: qual, Paired: true},
			{Bases: seq, Qualities: qual, Paired: true},
		}})
	}
	return a
}

func runShell(t *testing.T, script string, reads int, maxReads int64) (Result, error) {
	t.Helper()
	a := memoryArchive(reads)
	cfg := RunConfig{
		Pipeline:  "sh",
		Params:    ports.ToolParams{Threads: 1},
		BatchSize: 64,
		MaxReads:  maxReads,
	}
	adapters := Adapters{
		OpenSource: func(ctx context.Context) (ports.PairSource, error) {
			return source.Open(ctx, a, "SRR1", source.Options{ChunkSize: 50, MaxReads: maxReads})
		},
		Formatter: format.FASTQ{},
		Allocator: fifo.Allocator{Parent: t.TempDir()},
		NewSink: func(w1, w2 io.WriteCloser, cleanup func() error) ports.PairSink {
			return fifo.NewSink(w1, w2, fifo.WithCleanup(cleanup))
		},
		Launcher: &proc.Launcher{Stderr: &bytes.Buffer{}},
	}
	p := NewToolPipeline(cfg, shellTool{script: script, outDir: t.TempDir()}, adapters, &mockLogger{}, nil)

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := p.Run(context.Background())
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-time.After(30 * time.Second):
		t.Fatal("run did not finish")
		return Result{}, nil
	}
}

func TestToolPipeline_RealFIFOs(t *testing.T) {
	requireFIFOs(t)
	out := t.TempDir()
	out1 := filepath.Join(out, "1.fq")
	out2 := filepath.Join(out, "2.fq")
	script := fmt.Sprintf(`cat "$0" > %s & cat "$1" > %s; wait`, out1, out2)

	// Enough data to fill the OS pipe buffers many times over.
	res, err := runShell(t, script, 3000, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), res.Pairs)

	for _, p := range []string{out1, out2} {
		b, err := os.ReadFile(p)
		require.NoError(t, err)
		lines := strings.Split(string(b), "\n")
		require.Len(t, lines, 4*3000)
		assert.Equal(t, "@SRR1.1", lines[0])
		assert.Equal(t, "@SRR1.3000", lines[4*2999])
		assert.Equal(t, "+", lines[4*2999+2])
	}
}

func TestToolPipeline_RealFIFOsMaxReads(t *testing.T) {
	requireFIFOs(t)
	out1 := filepath.Join(t.TempDir(), "1.fq")
	script := fmt.Sprintf(`cat "$0" > %s & cat "$1" > /dev/null; wait`, out1)

	res, err := runShell(t, script, 500, 130)
	require.NoError(t, err)
	assert.Equal(t, int64(130), res.Pairs)

	b, err := os.ReadFile(out1)
	require.NoError(t, err)
	assert.Equal(t, 130, strings.Count(string(b), "@SRR1."))
}

func TestToolPipeline_RealToolExitCode(t *testing.T) {
	requireFIFOs(t)
	script := `cat "$0" > /dev/null & cat "$1" > /dev/null; wait; exit 2`

	res, err := runShell(t, script, 200, 0)
	var te *domain.ToolError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, 2, te.ExitCode)
	assert.Equal(t, 2, res.ExitCode)
}

func TestToolPipeline_RealToolDiesBeforeOpening(t *testing.T) {
	requireFIFOs(t)

	_, err := runShell(t, `exit 3`, 10, 0)
	var te *domain.ToolError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, 3, te.ExitCode)
}

func TestToolPipeline_RealToolStopsReading(t *testing.T) {
	requireFIFOs(t)
	// Opens both pipes, then exits without reading.
	script := `exec 3<"$0" 4<"$1"; exit 4`

	_, err := runShell(t, script, 5000, 0)
	var te *domain.ToolError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, 4, te.ExitCode)
}
