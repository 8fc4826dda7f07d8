package sraship_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/sraship"
	"github.com/bft-labs/sraship/internal/adapters/proc"
	"github.com/bft-labs/sraship/internal/ports"
)

func testArchive() *sraship.MemoryArchive {
	a := sraship.NewMemoryArchive()
	for _, name := range []string{"SRR9.1", "SRR9.2", "SRR9.3"} {
		a.Add("SRR9", sraship.Record{Name: name, Fragments: []sraship.Fragment{
			{Bases: "ACGT", Qualities: "IIII", Paired: true},
			{Bases: "TTAA", Qualities: "JJJJ", Paired: true},
		}})
	}
	return a
}

type stateRecorder struct {
	states []sraship.State
}

func (s *stateRecorder) OnStateChange(previous, current sraship.State, reason string) {
	s.states = append(s.states, current)
}

func TestPipelines(t *testing.T) {
	assert.Equal(t, []string{"hisat", "kallisto", "mock", "salmon", "star"}, sraship.Pipelines())
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := sraship.DefaultConfig()
	cfg.Pipeline = "bowtie"
	cfg.SRAAccession = "SRR9"

	_, err := sraship.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sraship.ErrUnknownPipeline))
}

func TestRun_Mock(t *testing.T) {
	cfg := sraship.DefaultConfig()
	cfg.Pipeline = "mock"
	cfg.SRAAccession = "SRR9"
	cfg.Format = "tsv"
	cfg.BatchSize = 2
	cfg.MetricsFile = filepath.Join(t.TempDir(), "sraship.prom")

	var out bytes.Buffer
	recorder := &stateRecorder{}
	res, err := sraship.Run(context.Background(), cfg,
		sraship.WithArchive(testArchive()),
		sraship.WithDiagnosticOutput(&out),
		sraship.WithEventHandler(recorder),
	)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Pairs)
	assert.NotEmpty(t, res.RunID)

	want := "[1] SRR9.1\tACGT\tIIII\n[1] SRR9.2\tACGT\tIIII\n" +
		"[2] SRR9.1\tTTAA\tJJJJ\n[2] SRR9.2\tTTAA\tJJJJ\n" +
		"[1] SRR9.3\tACGT\tIIII\n" +
		"[2] SRR9.3\tTTAA\tJJJJ\n"
	assert.Equal(t, want, out.String())
	assert.Equal(t, []sraship.State{
		sraship.StateLaunching, sraship.StateStreaming, sraship.StateDraining, sraship.StateCompleted,
	}, recorder.states)

	prom, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `sraship_pairs_total{pipeline="mock"} 3`)
	assert.Contains(t, string(prom), `sraship_batches_total{final="true",pipeline="mock"} 1`)
}

func TestRun_SourceUnavailable(t *testing.T) {
	cfg := sraship.DefaultConfig()
	cfg.Pipeline = "mock"
	cfg.SRAAccession = "SRR404"

	_, err := sraship.Run(context.Background(), cfg,
		sraship.WithArchive(testArchive()),
		sraship.WithDiagnosticOutput(&bytes.Buffer{}),
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sraship.ErrSourceUnavailable))
}

// shellLauncher replaces the hisat2 binary with a shell that copies the
// first FIFO to stdout and drains the second.
type shellLauncher struct {
	inner *proc.Launcher
}

func (l shellLauncher) Start(ctx context.Context, cmd ports.Command) (ports.Process, error) {
	var r1, r2 string
	for i := 0; i+1 < len(cmd.Args); i++ {
		switch cmd.Args[i] {
		case "-1":
			r1 = cmd.Args[i+1]
		case "-2":
			r2 = cmd.Args[i+1]
		}
	}
	cmd.Path = "/bin/sh"
	cmd.Args = []string{"-c", `cat "$1" > /dev/null & cat "$0"; wait`, r1, r2}
	return l.inner.Start(ctx, cmd)
}

func TestRun_ToolPipeline(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	dir := t.TempDir()
	cfg := sraship.DefaultConfig()
	cfg.Pipeline = "hisat"
	cfg.SRAAccession = "SRR9"
	cfg.Index = filepath.Join(dir, "idx")
	cfg.Output = filepath.Join(dir, "out", "SRR9.sam")
	cfg.WorkDir = dir
	cfg.MetricsFile = filepath.Join(dir, "sraship.prom")

	launcher := shellLauncher{inner: &proc.Launcher{Stderr: &bytes.Buffer{}}}
	res, err := sraship.Run(context.Background(), cfg,
		sraship.WithArchive(testArchive()),
		sraship.WithLauncher(launcher),
	)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Pairs)
	assert.Equal(t, 0, res.ExitCode)

	b, err := os.ReadFile(cfg.Output)
	require.NoError(t, err)
	lines := strings.Split(string(b), "\n")
	require.Len(t, lines, 12)
	assert.Equal(t, "@SRR9.1", lines[0])
	assert.Equal(t, "ACGT", lines[1])
	assert.Equal(t, "IIII", lines[11])

	// FIFO directories are removed after the run.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "sraship-")
	}

	prom, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `sraship_pairs_total{pipeline="hisat"} 3`)
	assert.Contains(t, string(prom), `sraship_bytes_written_total{pipeline="hisat",side="read1"}`)
}
