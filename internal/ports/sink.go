package ports

import (
	"context"
	"io"

	"github.com/bft-labs/sraship/internal/domain"
)

// Formatter renders one read as a fixed-size group of lines.
type Formatter interface {
	// Name returns the format name (e.g. "fastq").
	Name() string

	// LinesPerRecord returns the number of lines each read occupies.
	LinesPerRecord() int

	// Format writes the lines of r into dst. len(dst) == LinesPerRecord().
	Format(dst []string, r domain.Read)
}

// PairSink owns the two read-side output streams.
type PairSink interface {
	// Write writes block1 to side 1 and block2 to side 2 as one unit.
	Write(block1, block2 string) error

	// Close flushes and closes both sides and releases their resources.
	// It is safe to call more than once.
	Close() error
}

// Endpoints are the two named pipes of a run.
type Endpoints interface {
	// Paths returns the filesystem paths of the side 1 and side 2 pipes.
	Paths() [2]string

	// Open opens both pipes for writing. It blocks until the reader opens
	// them or ctx is done.
	Open(ctx context.Context) (io.WriteCloser, io.WriteCloser, error)

	// Remove deletes the pipes and their directory. Safe to call repeatedly.
	Remove() error
}

// EndpointAllocator creates the pipes for one run.
type EndpointAllocator interface {
	Allocate(runID string) (Endpoints, error)
}
