// Package fifo implements the pipe side of a run: allocation of the two named
// pipes in a per-run directory and the paired sink that writes into them.
package fifo

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/sraship/internal/domain"
)

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithCleanup registers a function run after both sides are closed,
// typically Endpoints.Remove.
func WithCleanup(fn func() error) SinkOption {
	return func(s *Sink) {
		s.cleanup = fn
	}
}


type side struct {
	name    string
	w       io.WriteCloser
	written int64
}

// write hands the whole block to the endpoint before returning. Blocks are
// already joined batches, so they go to the pipe unbuffered.
func (s *side) write(block string) error {
	if block == "" {
		return nil
	}
	n, err := io.WriteString(s.w, block)
	s.written += int64(n)
	if err != nil {
		return fmt.Errorf("write %s: %w", s.name, err)
	}
	return nil
}

func (s *side) close() error {
	return ignorable(s.w.Close())
}

// Sink writes paired blocks into two streams. Every paired write runs both sides on separate goroutines, so a consumer
// that drains one pipe before the other cannot stall the run. A paired write
// returns only after both blocks have reached their endpoints.
type Sink struct {
	sides   [2]*side
	cleanup func() error

	mu     sync.Mutex
	closed bool
}

// NewSink wraps the two write ends. The Sink owns them from now on.
func NewSink(w1, w2 io.WriteCloser, opts ...SinkOption) *Sink {
	s := &Sink{}
	for _, opt := range opts {
		opt(s)
	}
	s.sides[0] = &side{name: "read1", w: w1}
	s.sides[1] = &side{name: "read2", w: w2}
	return s
}

// Write writes block1 to side 1 and block2 to side 2 and returns once both
// writes are done.
func (s *Sink) Write(block1, block2 string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return os.ErrClosed
	}

	var errs [2]error
	var g errgroup.Group
	g.Go(func() error {
		errs[0] = s.sides[0].write(block1)
		return errs[0]
	})
	g.Go(func() error {
		errs[1] = s.sides[1].write(block2)
		return errs[1]
	})
	_ = g.Wait()
	return multierr.Combine(errs[0], errs[1])
}

// Close closes each side on its own goroutine, then runs the cleanup.
// Errors from endpoints that are already closed or removed, and broken pipes,
// are ignored. Close is idempotent.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs [2]error
	var g errgroup.Group
	for i, sd := range s.sides {
		i, sd := i, sd
		g.Go(func() error {
			errs[i] = sd.close()
			return nil
		})
	}
	_ = g.Wait()

	err := multierr.Combine(errs[0], errs[1])
	if s.cleanup != nil {
		err = multierr.Append(err, ignorable(s.cleanup()))
	}
	return err
}

// Written returns the bytes accepted per side so far.
func (s *Sink) Written() [2]int64 {
	return [2]int64{s.sides[0].written, s.sides[1].written}
}

func ignorable(err error) error {
	if err == nil || errors.Is(err, os.ErrClosed) || errors.Is(err, fs.ErrNotExist) || domain.IsBrokenPipe(err) {
		return nil
	}
	return err
}
