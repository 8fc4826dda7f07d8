// Package console implements a diagnostic PairSink that prints both read sides
// to a single writer. It backs the dry-run pipeline.
package console

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync"
)

// Side prefixes.
const (
	Prefix1 = "[1] "
	Prefix2 = "[2] "
)

// Option configures a Sink.
type Option func(*Sink)

// WithLineSeparator sets the separator the buffer uses. Writes consisting of
// only the separator mark batch boundaries and print nothing.
func WithLineSeparator(sep string) Option {
	return func(s *Sink) {
		s.sep = sep
	}
}

// Sink prints every line of a paired write prefixed with its side.
type Sink struct {
	w   *bufio.Writer
	sep string

	mu     sync.Mutex
	closed bool
	lines  [2]int64
}

// NewSink creates a Sink on w. The writer is not closed by the Sink.
func NewSink(w io.Writer, opts ...Option) *Sink {
	s := &Sink{w: bufio.NewWriter(w), sep: "\n"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sink) Write(block1, block2 string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return os.ErrClosed
	}

	if err := s.print(0, Prefix1, block1); err != nil {
		return err
	}
	if err := s.print(1, Prefix2, block2); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *Sink) print(i int, prefix, block string) error {
	if block == "" || block == s.sep {
		return nil
	}
	for _, line := range strings.Split(block, s.sep) {
		if _, err := s.w.WriteString(prefix + line + "\n"); err != nil {
			return err
		}
		s.lines[i]++
	}
	return nil
}

// Close flushes pending output. It is idempotent.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.w.Flush()
}

// Lines returns the number of lines printed per side.
func (s *Sink) Lines() [2]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines
}
