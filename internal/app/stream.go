package app

import (
	"context"
	"errors"
	"io"

	"github.com/bft-labs/sraship/internal/domain"
	"github.com/bft-labs/sraship/internal/ports"
)

// PairAdder accepts pairs one at a time.
type PairAdder interface {
	Add(pair domain.ReadPair) error
}

// Stream moves pairs from src into buf until the source is exhausted,
// maxReads pairs have been added (when positive), ctx is done, or an error
// occurs. It returns the number of pairs added. End of data is not an error;
// a done context returns ctx.Err().
func Stream(ctx context.Context, src ports.PairSource, buf PairAdder, maxReads int64) (int64, error) {
	var n int64
	for maxReads <= 0 || n < maxReads {
		if err := ctx.Err(); err != nil {
			return n, err
		}

		pair, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}

		if err := buf.Add(pair); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
