package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/bft-labs/sraship/internal/domain"
	"github.com/bft-labs/sraship/internal/ports"
)

// Extensions tried, in order, when resolving an accession.
var Extensions = []string{"fastq", "fq", "fastq.gz", "fq.gz", "fastq.zst", "fq.zst"}

// Dir is an archive of split FASTQ files under Root.
type Dir struct {
	Root string
}

// Open resolves accession to its mate files. It does not read them yet.
func (d Dir) Open(ctx context.Context, accession string) (ports.Collection, error) {
	if accession == "" {
		return nil, &domain.SourceError{Op: "open", Err: errors.New("empty accession")}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var paths [2]string
	for i := range paths {
		p, err := d.resolve(accession, i+1)
		if err != nil {
			return nil, &domain.SourceError{Accession: accession, Op: "open", Err: err}
		}
		paths[i] = p
	}
	return &fileCollection{name: accession, paths: paths, count: -1}, nil
}

func (d Dir) resolve(accession string, mate int) (string, error) {
	for _, ext := range Extensions {
		p := filepath.Join(d.Root, fmt.Sprintf("%s_%d.%s", accession, mate, ext))
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("no mate %d file for %s in %s: %w", mate, accession, d.Root, fs.ErrNotExist)
}

// fileCollection reads both mate files forward. Asking for an earlier range
// reopens the files.
type fileCollection struct {
	name  string
	paths [2]string

	mu      sync.Mutex
	count   int64
	files   [2]io.ReadCloser
	readers [2]*fastqReader
	next    int64 // 1-based index of the record the readers are positioned at
}

func (c *fileCollection) Name() string {
	return c.name
}

// Count scans mate 1 once and caches the result. Extra mate 2 records are
// reported when the last range is fetched.
func (c *fileCollection) Count(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count >= 0 {
		return c.count, nil
	}

	f, err := openFile(c.paths[0])
	if err != nil {
		return 0, c.sourceErr("count", err)
	}
	defer f.Close()

	r := newFastqReader(c.paths[0], f)
	var n int64
	for {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		if _, err := r.next(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, c.sourceErr("count", err)
		}
		n++
	}
	c.count = n
	return n, nil
}

func (c *fileCollection) FetchRange(ctx context.Context, first, count int64) ([]domain.ReadPair, error) {
	if first < 1 || count < 0 {
		return nil, c.sourceErr("fetch", fmt.Errorf("invalid range first=%d count=%d", first, count))
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.readers[0] == nil || first < c.next {
		if err := c.reopen(); err != nil {
			return nil, c.sourceErr("fetch", err)
		}
	}
	for c.next < first {
		if _, err := c.readRecord(); err != nil {
			return nil, c.rangeErr(err)
		}
	}

	pairs := make([]domain.ReadPair, 0, count)
	for i := int64(0); i < count; i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := c.readRecord()
		if err != nil {
			return nil, c.rangeErr(err)
		}
		pair, err := domain.PairFromRecord(rec)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	if c.count >= 0 && first+count-1 == c.count {
		if err := c.checkMate2Exhausted(); err != nil {
			return nil, err
		}
	}
	return pairs, nil
}

// checkMate2Exhausted fails with a PairingError when mate 2 still holds
// records after the last record of mate 1 has been served.
func (c *fileCollection) checkMate2Exhausted() error {
	r2, err := c.readers[1].next()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return c.rangeErr(err)
	}
	return &domain.PairingError{
		Read:      r2.name,
		Fragments: 1,
		Reason:    "mate 2 has records past the end of mate 1",
	}
}

// readRecord reads one record from each mate file and advances next.
func (c *fileCollection) readRecord() (domain.Record, error) {
	r1, err := c.readers[0].next()
	if err != nil {
		return domain.Record{}, err
	}
	c.next++

	rec := domain.Record{
		Name:      r1.name,
		Fragments: []domain.Fragment{{Bases: r1.sequence, Qualities: r1.qualities, Paired: true}},
	}
	r2, err := c.readers[1].next()
	if errors.Is(err, io.EOF) {
		// mate 2 ran out: a one-fragment record.
		rec.Fragments[0].Paired = false
		return rec, nil
	}
	if err != nil {
		return domain.Record{}, err
	}
	if r2.name != r1.name {
		return domain.Record{}, &domain.PairingError{
			Read:      r1.name,
			Fragments: 2,
			Reason:    fmt.Sprintf("mate 2 is named %q", r2.name),
		}
	}
	rec.Fragments = append(rec.Fragments, domain.Fragment{Bases: r2.sequence, Qualities: r2.qualities, Paired: true})
	return rec, nil
}

func (c *fileCollection) reopen() error {
	c.closeFiles()
	for i, p := range c.paths {
		f, err := openFile(p)
		if err != nil {
			c.closeFiles()
			return err
		}
		c.files[i] = f
		c.readers[i] = newFastqReader(p, f)
	}
	c.next = 1
	return nil
}

func (c *fileCollection) closeFiles() error {
	var first error
	for i, f := range c.files {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
		c.files[i] = nil
		c.readers[i] = nil
	}
	return first
}

func (c *fileCollection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeFiles()
}

func (c *fileCollection) sourceErr(op string, err error) error {
	return &domain.SourceError{Accession: c.name, Op: op, Err: err}
}

// rangeErr keeps pairing errors as they are and reports everything else,
// including running past the end, as a source failure.
func (c *fileCollection) rangeErr(err error) error {
	var pe *domain.PairingError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, io.EOF) {
		err = fmt.Errorf("range past end of %s: %w", c.name, io.ErrUnexpectedEOF)
	}
	return c.sourceErr("fetch", err)
}
