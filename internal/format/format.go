// Package format renders reads into the line-oriented record formats the
// downstream tools consume.
//
// Every format writes a fixed number of lines per read, so the batch buffer
// can pre-size its arrays and stay format-agnostic. A new format only needs a
// LinesPerRecord value and a Format rule.
package format

import (
	"fmt"
	"sort"

	"github.com/bft-labs/sraship/internal/domain"
	"github.com/bft-labs/sraship/internal/ports"
)

// Default is the format used when none is configured.
const Default = "fastq"

var registry = map[string]ports.Formatter{
	"fastq": FASTQ{},
	"fasta": FASTA{},
	"tsv":   TSV{},
}

// Lookup returns the formatter registered under name.
func Lookup(name string) (ports.Formatter, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown format %q (available: %v)", name, Names())
	}
	return f, nil
}

// Names returns the registered format names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FASTQ renders the four-line FASTQ record: header, bases, separator, qualities.
type FASTQ struct{}

func (FASTQ) Name() string        { return "fastq" }
func (FASTQ) LinesPerRecord() int { return 4 }

func (FASTQ) Format(dst []string, r domain.Read) {
	dst[0] = "@" + r.Name
	dst[1] = r.Sequence
	dst[2] = "+"
	dst[3] = r.Quality
}

// FASTA renders a two-line FASTA record. Qualities are dropped.
type FASTA struct{}

func (FASTA) Name() string        { return "fasta" }
func (FASTA) LinesPerRecord() int { return 2 }

func (FASTA) Format(dst []string, r domain.Read) {
	dst[0] = ">" + r.Name
	dst[1] = r.Sequence
}

// TSV renders one tab-separated line per read; used for inspection.
type TSV struct{}

func (TSV) Name() string        { return "tsv" }
func (TSV) LinesPerRecord() int { return 1 }

func (TSV) Format(dst []string, r domain.Read) {
	dst[0] = r.Name + "\t" + r.Sequence + "\t" + r.Quality
}
