package ports

import (
	"context"
	"io"

	"github.com/bft-labs/sraship/internal/domain"
)

// Archive opens read collections by accession.
type Archive interface {
	// Open resolves the accession. Failures wrap domain.ErrSourceUnavailable.
	Open(ctx context.Context, accession string) (Collection, error)
}

// Collection is an opened read collection supporting range queries.
// Read indexes are 1-based, like archive read ids.
type Collection interface {
	// Name returns the collection (run) name.
	Name() string

	// Count returns the total number of records.
	Count(ctx context.Context) (int64, error)

	// FetchRange returns the pairs for records [first, first+count).
	// It fails with a *domain.PairingError if any record in the range is not
	// a proper pair; in that case no pair of the range is returned.
	FetchRange(ctx context.Context, first, count int64) ([]domain.ReadPair, error)

	// Close releases the collection.
	Close() error
}

// PairSource is a lazy, finite, non-restartable sequence of read pairs.
type PairSource interface {
	// Next returns the next pair, or ErrEndOfData when the source is exhausted.
	Next(ctx context.Context) (domain.ReadPair, error)

	// Close releases all resources held by the source.
	Close() error
}

// ErrEndOfData signals that a PairSource has no more pairs.
var ErrEndOfData = io.EOF
