package archive

import (
	"context"
	"fmt"
	"io/fs"
	"sync"

	"github.com/bft-labs/sraship/internal/domain"
	"github.com/bft-labs/sraship/internal/ports"
)

// Memory is an archive of in-memory records, keyed by accession.
type Memory struct {
	mu   sync.RWMutex
	runs map[string][]domain.Record
}

// NewMemory creates an empty in-memory archive.
func NewMemory() *Memory {
	return &Memory{runs: make(map[string][]domain.Record)}
}

// Add appends records to an accession.
func (m *Memory) Add(accession string, recs ...domain.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[accession] = append(m.runs[accession], recs...)
}

func (m *Memory) Open(ctx context.Context, accession string) (ports.Collection, error) {
	m.mu.RLock()
	recs, ok := m.runs[accession]
	m.mu.RUnlock()
	if !ok {
		return nil, &domain.SourceError{Accession: accession, Op: "open", Err: fs.ErrNotExist}
	}
	return &memoryCollection{name: accession, recs: recs}, nil
}

type memoryCollection struct {
	name string
	recs []domain.Record
}

func (c *memoryCollection) Name() string {
	return c.name
}

func (c *memoryCollection) Count(ctx context.Context) (int64, error) {
	return int64(len(c.recs)), nil
}

func (c *memoryCollection) FetchRange(ctx context.Context, first, count int64) ([]domain.ReadPair, error) {
	if first < 1 || count < 0 || first-1+count > int64(len(c.recs)) {
		return nil, &domain.SourceError{
			Accession: c.name,
			Op:        "fetch",
			Err:       fmt.Errorf("range [%d,%d) outside 1..%d", first, first+count, len(c.recs)),
		}
	}
	pairs := make([]domain.ReadPair, 0, count)
	for _, rec := range c.recs[first-1 : first-1+count] {
		pair, err := domain.PairFromRecord(rec)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

func (c *memoryCollection) Close() error {
	return nil
}
