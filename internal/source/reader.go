// Package source turns an archive collection into a lazy cursor of read pairs.
//
// The Reader fetches fixed-size windows of records and hands them out one pair
// at a time. Callers only see Next and io.EOF; windowing is internal.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/bft-labs/sraship/internal/domain"
	"github.com/bft-labs/sraship/internal/ports"
)

// DefaultChunkSize is the number of records requested per range query.
const DefaultChunkSize = 1000

// Options controls how a Reader walks the collection.
type Options struct {
	// ChunkSize is the number of records per range query.
	ChunkSize int

	// MaxReads caps the number of pairs delivered. Zero or negative means all.
	MaxReads int64
}

// Reader is a non-restartable cursor over the pairs of one collection.
type Reader struct {
	coll      ports.Collection
	accession string
	chunk     int64
	limit     int64

	nextFirst int64 // 1-based index of the next record to fetch
	window    []domain.ReadPair
	pos       int
	err       error
	closed    bool
}

// Open opens accession on the archive and returns a Reader over it.
func Open(ctx context.Context, archive ports.Archive, accession string, opts Options) (*Reader, error) {
	coll, err := archive.Open(ctx, accession)
	if err != nil {
		var se *domain.SourceError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, &domain.SourceError{Accession: accession, Op: "open", Err: err}
	}
	r, err := NewReader(ctx, coll, opts)
	if err != nil {
		coll.Close()
		return nil, err
	}
	r.accession = accession
	return r, nil
}

// NewReader wraps an opened collection. The Reader takes ownership of coll.
func NewReader(ctx context.Context, coll ports.Collection, opts Options) (*Reader, error) {
	total, err := coll.Count(ctx)
	if err != nil {
		return nil, wrapSource(coll.Name(), "count", err)
	}

	limit := total
	if opts.MaxReads > 0 && opts.MaxReads < limit {
		limit = opts.MaxReads
	}
	chunk := int64(opts.ChunkSize)
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}

	return &Reader{
		coll:      coll,
		accession: coll.Name(),
		chunk:     chunk,
		limit:     limit,
		nextFirst: 1,
	}, nil
}

// Limit returns the number of pairs this Reader will deliver at most.
func (r *Reader) Limit() int64 {
	return r.limit
}

// Next returns the next pair or ports.ErrEndOfData. After an error every
// further call returns the same error.
func (r *Reader) Next(ctx context.Context) (domain.ReadPair, error) {
	if r.closed {
		return domain.ReadPair{}, domain.ErrClosed
	}
	if r.err != nil {
		return domain.ReadPair{}, r.err
	}

	if r.pos == len(r.window) {
		if err := r.fill(ctx); err != nil {
			r.err = err
			return domain.ReadPair{}, err
		}
	}

	pair := r.window[r.pos]
	r.window[r.pos] = domain.ReadPair{}
	r.pos++
	return pair, nil
}

func (r *Reader) fill(ctx context.Context) error {
	if r.nextFirst > r.limit {
		return ports.ErrEndOfData
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	count := r.chunk
	if remaining := r.limit - r.nextFirst + 1; remaining < count {
		count = remaining
	}

	pairs, err := r.coll.FetchRange(ctx, r.nextFirst, count)
	if err != nil {
		return wrapSource(r.accession, "fetch", err)
	}
	if int64(len(pairs)) != count {
		return &domain.SourceError{
			Accession: r.accession,
			Op:        "fetch",
			Err:       fmt.Errorf("range at %d returned %d of %d records", r.nextFirst, len(pairs), count),
		}
	}

	r.nextFirst += count
	r.window = pairs
	r.pos = 0
	return nil
}

// Close releases the collection. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.window = nil
	return r.coll.Close()
}

// wrapSource leaves pairing, source and context errors as they are and
// reports anything else as the archive being unavailable.
func wrapSource(accession, op string, err error) error {
	if errors.Is(err, domain.ErrPairing) || errors.Is(err, domain.ErrSourceUnavailable) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &domain.SourceError{Accession: accession, Op: op, Err: err}
}
