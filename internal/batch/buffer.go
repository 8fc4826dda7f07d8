// Package batch accumulates formatted read pairs into fixed-size batches and
// hands each batch to a PairSink as one paired write.
package batch

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/bft-labs/sraship/internal/domain"
	"github.com/bft-labs/sraship/internal/ports"
)

// DefaultLineSeparator joins the lines of a batch.
const DefaultLineSeparator = "\n"

// Observer is called after each batch reaches the sink.
type Observer interface {
	OnFlush(pairs int, final bool)
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithLineSeparator sets the separator placed between lines and between batches.
func WithLineSeparator(sep string) Option {
	return func(b *Buffer) {
		b.sep = sep
	}
}

// WithObserver registers an observer for flushes.
func WithObserver(o Observer) Option {
	return func(b *Buffer) {
		b.observer = o
	}
}

// Buffer holds up to capacity pairs as two parallel line arrays, one per
// mate side. Both arrays always have capacity*linesPerRecord entries; only the
// first fill*linesPerRecord are valid.
//
// A Buffer is driven by a single goroutine.
type Buffer struct {
	sink      ports.PairSink
	formatter ports.Formatter
	observer  Observer
	sep       string

	capacity int
	lpr      int
	lines    [2][]string
	fill     int

	flushErr error
	closed   bool
}

// New creates a Buffer writing to sink. The Buffer owns the sink from now on
// and closes it in Close.
func New(sink ports.PairSink, formatter ports.Formatter, capacity int, opts ...Option) (*Buffer, error) {
	if sink == nil {
		return nil, errors.New("batch: sink is required")
	}
	if formatter == nil {
		return nil, errors.New("batch: formatter is required")
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("batch: capacity must be positive, got %d", capacity)
	}
	lpr := formatter.LinesPerRecord()
	if lpr <= 0 {
		return nil, fmt.Errorf("batch: format %s has no lines per record", formatter.Name())
	}

	b := &Buffer{
		sink:      sink,
		formatter: formatter,
		sep:       DefaultLineSeparator,
		capacity:  capacity,
		lpr:       lpr,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.lines[0] = make([]string, capacity*lpr)
	b.lines[1] = make([]string, capacity*lpr)
	return b, nil
}

// Add formats both mates into the next slot. When the buffer becomes full it
// is flushed before Add returns, so Add blocks for as long as the sink does.
func (b *Buffer) Add(pair domain.ReadPair) error {
	if b.closed {
		return domain.ErrClosed
	}
	if b.flushErr != nil {
		return b.flushErr
	}

	off := b.fill * b.lpr
	b.formatter.Format(b.lines[0][off:off+b.lpr], pair.Mate1)
	b.formatter.Format(b.lines[1][off:off+b.lpr], pair.Mate2)
	b.fill++

	if b.fill == b.capacity {
		return b.flush(false)
	}
	return nil
}

// Flush writes the pending pairs. A non-final flush is followed by one
// separator write per side so the next batch starts on a new line.
// Flushing an empty buffer does nothing.
func (b *Buffer) Flush(final bool) error {
	if b.closed {
		return domain.ErrClosed
	}
	if b.flushErr != nil {
		return b.flushErr
	}
	return b.flush(final)
}

func (b *Buffer) flush(final bool) error {
	if b.fill == 0 {
		return nil
	}

	n := b.fill * b.lpr
	block1 := strings.Join(b.lines[0][:n], b.sep)
	block2 := strings.Join(b.lines[1][:n], b.sep)

	pairs := b.fill
	if err := b.sink.Write(block1, block2); err != nil {
		b.flushErr = fmt.Errorf("flush %d pairs: %w", pairs, err)
		return b.flushErr
	}
	if !final {
		if err := b.sink.Write(b.sep, b.sep); err != nil {
			b.flushErr = fmt.Errorf("write batch separator: %w", err)
			return b.flushErr
		}
	}
	b.fill = 0

	if b.observer != nil {
		b.observer.OnFlush(pairs, final)
	}
	return nil
}

// Close flushes any pending pairs as the final batch, releases the line
// arrays and closes the sink. The final flush is skipped if an earlier flush
// failed. Close is idempotent; only the first call does any work.
func (b *Buffer) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true

	var err error
	if b.fill > 0 && b.flushErr == nil {
		err = b.flush(true)
	}
	b.fill = 0
	b.lines = [2][]string{}

	return multierr.Append(err, b.sink.Close())
}

// Discard drops the pending pairs so that a following Close writes nothing.
// It returns the number of pairs dropped. Used when a run is torn down after
// a failure and its output is unusable anyway.
func (b *Buffer) Discard() int {
	n := b.fill
	b.fill = 0
	return n
}

// Pending returns the number of pairs waiting to be flushed.
func (b *Buffer) Pending() int {
	return b.fill
}

// Capacity returns the number of pairs per batch.
func (b *Buffer) Capacity() int {
	return b.capacity
}
