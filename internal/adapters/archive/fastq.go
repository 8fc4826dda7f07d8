package archive

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const maxLineSize = 16 << 20

type fastqRecord struct {
	name      string
	sequence  string
	qualities string
}

// fastqReader reads four-line FASTQ records.
type fastqReader struct {
	path string
	sc   *bufio.Scanner
	line int
}

func newFastqReader(path string, r io.Reader) *fastqReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	return &fastqReader{path: path, sc: sc}
}

// next returns io.EOF after the last complete record.
func (r *fastqReader) next() (fastqRecord, error) {
	var lines [4]string
	for i := range lines {
		if !r.sc.Scan() {
			if err := r.sc.Err(); err != nil {
				return fastqRecord{}, fmt.Errorf("%s: %w", r.path, err)
			}
			if i == 0 {
				return fastqRecord{}, io.EOF
			}
			return fastqRecord{}, fmt.Errorf("%s:%d: truncated record: %w", r.path, r.line, io.ErrUnexpectedEOF)
		}
		r.line++
		lines[i] = strings.TrimRight(r.sc.Text(), "\r")
	}

	if !strings.HasPrefix(lines[0], "@") {
		return fastqRecord{}, fmt.Errorf("%s:%d: header does not start with '@'", r.path, r.line-3)
	}
	if !strings.HasPrefix(lines[2], "+") {
		return fastqRecord{}, fmt.Errorf("%s:%d: separator does not start with '+'", r.path, r.line-1)
	}
	return fastqRecord{
		name:      readName(lines[0][1:]),
		sequence:  lines[1],
		qualities: lines[3],
	}, nil
}

// readName drops the description and the /1, /2 mate suffix.
func readName(header string) string {
	if i := strings.IndexAny(header, " \t"); i >= 0 {
		header = header[:i]
	}
	if strings.HasSuffix(header, "/1") || strings.HasSuffix(header, "/2") {
		header = header[:len(header)-2]
	}
	return header
}

type multiCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiCloser) Close() error {
	var first error
	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}

// openFile opens a FASTQ file, decompressing .gz and .zst transparently.
func openFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasSuffix(path, ".gz"):
		zr, err := gzip.NewReader(bufio.NewReader(f))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return &multiCloser{Reader: zr, closers: []io.Closer{f, zr}}, nil
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(bufio.NewReader(f))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return &multiCloser{Reader: zr, closers: []io.Closer{f, closerFunc(zr.Close)}}, nil
	default:
		return f, nil
	}
}
