// Package tool builds the command lines of the supported downstream tools.
//
// Every tool reads the two FIFOs as its mate files. Aligners that stream
// their alignments on stdout (star, hisat) have stdout bound to the output
// path; quantifiers (kallisto, salmon) write into the output directory.
package tool

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bft-labs/sraship/internal/domain"
	"github.com/bft-labs/sraship/internal/ports"
)

// Mock is the dry-run pipeline. It has no tool.
const Mock = "mock"

var registry = map[string]ports.Tool{
	"star":     Star{},
	"kallisto": Kallisto{},
	"salmon":   Salmon{},
	"hisat":    Hisat{},
}

// Lookup returns the tool registered under name.
func Lookup(name string) (ports.Tool, error) {
	t, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownPipeline, name)
	}
	return t, nil
}

// Names returns the registered tool names in sorted order. Mock is not included.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SplitArgs splits an extra-arguments string on whitespace.
func SplitArgs(extra string) []string {
	return strings.Fields(extra)
}

func validate(p ports.ToolParams) error {
	var errs []error
	if p.Threads <= 0 {
		errs = append(errs, fmt.Errorf("threads must be positive, got %d", p.Threads))
	}
	if p.Index == "" {
		errs = append(errs, errors.New("index is required"))
	}
	if p.Output == "" {
		errs = append(errs, errors.New("output is required"))
	}
	if p.Read1 == "" || p.Read2 == "" {
		errs = append(errs, errors.New("both read paths are required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func binary(override, def string) string {
	if override != "" {
		return override
	}
	return def
}

// Star aligns with STAR and streams a coordinate-sorted BAM to the output file.
type Star struct {
	// Binary overrides the executable; defaults to "STAR".
	Binary string
}

func (Star) Name() string { return "star" }

func (t Star) Command(p ports.ToolParams) (ports.Command, error) {
	if err := validate(p); err != nil {
		return ports.Command{}, err
	}
	args := []string{
		"--runThreadN", strconv.Itoa(p.Threads),
		"--genomeDir", p.Index,
		"--readFilesIn", p.Read1, p.Read2,
		"--outSAMtype", "BAM", "SortedByCoordinate",
		"--outStd", "BAM", "SortedByCoordinate",
		"--outMultimapperOrder", "Random",
	}
	args = append(args, SplitArgs(p.ExtraArgs)...)
	return ports.Command{Tool: t.Name(), Path: binary(t.Binary, "STAR"), Args: args, Stdout: p.Output}, nil
}

func (Star) OutputDir(p ports.ToolParams) string { return filepath.Dir(p.Output) }

// Kallisto quantifies with kallisto quant into the output directory.
type Kallisto struct {
	Binary string
}

func (Kallisto) Name() string { return "kallisto" }

func (t Kallisto) Command(p ports.ToolParams) (ports.Command, error) {
	if err := validate(p); err != nil {
		return ports.Command{}, err
	}
	args := []string{"quant", "-t", strconv.Itoa(p.Threads), "-i", p.Index, "-o", p.Output}
	switch {
	case strings.Contains(p.LibType, "F"):
		args = append(args, "--fr-stranded")
	case strings.Contains(p.LibType, "R"):
		args = append(args, "--rf-stranded")
	}
	args = append(args, SplitArgs(p.ExtraArgs)...)
	args = append(args, p.Read1, p.Read2)
	return ports.Command{Tool: t.Name(), Path: binary(t.Binary, "kallisto"), Args: args}, nil
}

func (Kallisto) OutputDir(p ports.ToolParams) string { return p.Output }

// Salmon quantifies with salmon quant into the output directory.
type Salmon struct {
	Binary string
}

func (Salmon) Name() string { return "salmon" }

func (t Salmon) Command(p ports.ToolParams) (ports.Command, error) {
	if err := validate(p); err != nil {
		return ports.Command{}, err
	}
	lib := p.LibType
	if lib == "" {
		lib = "A"
	}
	args := []string{"quant", "-p", strconv.Itoa(p.Threads), "-i", p.Index, "-l", lib}
	args = append(args, SplitArgs(p.ExtraArgs)...)
	args = append(args, "-1", p.Read1, "-2", p.Read2, "-o", p.Output)
	return ports.Command{Tool: t.Name(), Path: binary(t.Binary, "salmon"), Args: args}, nil
}

func (Salmon) OutputDir(p ports.ToolParams) string { return p.Output }

// Hisat aligns with hisat2 and writes SAM to the output file.
type Hisat struct {
	Binary string
}

func (Hisat) Name() string { return "hisat" }

func (t Hisat) Command(p ports.ToolParams) (ports.Command, error) {
	if err := validate(p); err != nil {
		return ports.Command{}, err
	}
	args := []string{"-p", strconv.Itoa(p.Threads), "-x", p.Index, "-1", p.Read1, "-2", p.Read2}
	args = append(args, SplitArgs(p.ExtraArgs)...)
	return ports.Command{Tool: t.Name(), Path: binary(t.Binary, "hisat2"), Args: args, Stdout: p.Output}, nil
}

func (Hisat) OutputDir(p ports.ToolParams) string { return filepath.Dir(p.Output) }
