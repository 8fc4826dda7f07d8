package domain

import (
	"errors"
	"fmt"
	"io"
	"syscall"
)

// Domain errors represent error conditions in the sraship domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrSourceUnavailable is returned when an accession cannot be opened or read.
	ErrSourceUnavailable = errors.New("sraship: source unavailable")

	// ErrPairing is returned when the archive yields a record that is not a proper pair.
	ErrPairing = errors.New("sraship: read is not paired")

	// ErrExternalTool is returned when the child process exits non-zero.
	ErrExternalTool = errors.New("sraship: external tool failed")

	// ErrTeardown is returned when closing a pipe or removing a temp entry fails.
	ErrTeardown = errors.New("sraship: resource teardown failed")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("sraship: invalid configuration")

	// ErrUnknownPipeline is returned for a pipeline name missing from the registry.
	ErrUnknownPipeline = errors.New("sraship: unknown pipeline")

	// ErrInvalidTransition is returned when a run moves to a state its current state does not allow.
	ErrInvalidTransition = errors.New("sraship: invalid state transition")

	// ErrClosed is returned when writing to a buffer or sink after Close.
	ErrClosed = errors.New("sraship: closed")
)

// SourceError reports a failure to open or read from the record archive.
type SourceError struct {
	Accession string
	Op        string
	Err       error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("sraship: %s %s: %v", e.Op, e.Accession, e.Err)
}

func (e *SourceError) Unwrap() []error {
	return []error{ErrSourceUnavailable, e.Err}
}

// PairingError reports an archive record that violates the paired-end assumption.
type PairingError struct {
	Read      string
	Fragments int
	Reason    string
}

func (e *PairingError) Error() string {
	return fmt.Sprintf("sraship: read %q is not paired (%d fragments): %s", e.Read, e.Fragments, e.Reason)
}

func (e *PairingError) Unwrap() error {
	return ErrPairing
}

// ToolError reports a non-zero exit of the external tool.
type ToolError struct {
	Tool     string
	ExitCode int

	// Err is the error that surfaced the failure, if any (e.g. a broken pipe).
	Err error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sraship: %s exited with code %d: %v", e.Tool, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("sraship: %s exited with code %d", e.Tool, e.ExitCode)
}

func (e *ToolError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrExternalTool, e.Err}
	}
	return []error{ErrExternalTool}
}

// TeardownError aggregates failures while releasing run resources.
type TeardownError struct {
	Err error
}

func (e *TeardownError) Error() string {
	return "sraship: teardown: " + e.Err.Error()
}

func (e *TeardownError) Unwrap() []error {
	return []error{ErrTeardown, e.Err}
}

// IsBrokenPipe reports whether err is what a pipe write sees after the
// reading process has gone away.
func IsBrokenPipe(err error) bool {
	return err != nil && (errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrClosedPipe))
}
