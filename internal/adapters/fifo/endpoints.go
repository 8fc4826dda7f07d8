package fifo

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/bft-labs/sraship/internal/ports"
)

// Pipe names inside the run directory.
const (
	Read1Name = "Read1"
	Read2Name = "Read2"
)

const dirPrefix = "sraship-"

// Allocator creates the run directory and its two FIFOs.
type Allocator struct {
	// Parent is the directory the run directory is created in.
	// Empty means os.TempDir().
	Parent string
}

// Allocate creates <parent>/sraship-<runID>-*/{Read1,Read2}.
func (a Allocator) Allocate(runID string) (ports.Endpoints, error) {
	dir, err := os.MkdirTemp(a.Parent, dirPrefix+runID+"-")
	if err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}

	paths := [2]string{
		filepath.Join(dir, Read1Name),
		filepath.Join(dir, Read2Name),
	}
	for _, p := range paths {
		if err := unix.Mkfifo(p, 0o600); err != nil {
			_ = os.RemoveAll(dir)
			return nil, fmt.Errorf("mkfifo %s: %w", p, err)
		}
	}
	return &Endpoints{dir: dir, paths: paths}, nil
}

// Endpoints is a pair of FIFOs in a directory owned by one run.
type Endpoints struct {
	dir   string
	paths [2]string

	mu      sync.Mutex
	removed bool
}

// Dir returns the run directory.
func (e *Endpoints) Dir() string {
	return e.dir
}

// Paths returns the side 1 and side 2 FIFO paths.
func (e *Endpoints) Paths() [2]string {
	return e.paths
}

// Open opens both FIFOs for writing. Opening a FIFO blocks until a reader
// opens the other end, so both opens run concurrently. If ctx ends first the
// pending opens are released by opening the read ends ourselves and the
// context error is returned.
func (e *Endpoints) Open(ctx context.Context) (io.WriteCloser, io.WriteCloser, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var files [2]*os.File
	var g errgroup.Group
	for i, p := range e.paths {
		i, p := i, p
		g.Go(func() error {
			f, err := os.OpenFile(p, os.O_WRONLY, 0)
			if err != nil {
				cancel()
				return fmt.Errorf("open %s: %w", p, err)
			}
			files[i] = f
			return nil
		})
	}

	done := make(chan struct{})
	released := make(chan []*os.File, 1)
	go func() {
		select {
		case <-ctx.Done():
			released <- e.release()
		case <-done:
			released <- nil
		}
	}()

	err := g.Wait()
	close(done)
	for _, r := range <-released {
		_ = r.Close()
	}

	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		for _, f := range files {
			if f != nil {
				_ = f.Close()
			}
		}
		return nil, nil, err
	}
	return files[0], files[1], nil
}

// release opens the read end of every FIFO without blocking, which lets any
// writer blocked in open proceed.
func (e *Endpoints) release() []*os.File {
	var readers []*os.File
	for _, p := range e.paths {
		f, err := os.OpenFile(p, os.O_RDONLY|unix.O_NONBLOCK, 0)
		if err == nil {
			readers = append(readers, f)
		}
	}
	return readers
}

// Remove deletes the FIFOs and the run directory.
func (e *Endpoints) Remove() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil
	}
	e.removed = true
	return os.RemoveAll(e.dir)
}
