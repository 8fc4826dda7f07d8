package ports

import "context"

// Command describes a child process invocation.
type Command struct {
	// Tool is the display name used in logs and errors.
	Tool string
	Path string
	Args []string

	// Stdout is a file path receiving the child's standard output.
	// Empty means the child's stdout is discarded to the parent's stderr.
	Stdout string
}

// Launcher starts child processes.
type Launcher interface {
	Start(ctx context.Context, cmd Command) (Process, error)
}

// Process is a running child process.
type Process interface {
	// Pid returns the OS process id.
	Pid() int

	// Done is closed when the process has exited.
	Done() <-chan struct{}

	// Wait blocks until exit and returns the exit code.
	// The error is non-nil only when the exit status could not be obtained.
	Wait() (int, error)

	// Kill terminates the process. Killing an exited process is not an error.
	Kill() error
}

// ToolParams is the tool-agnostic part of a command line.
type ToolParams struct {
	Threads   int
	Index     string
	Output    string
	ExtraArgs string
	LibType   string
	Read1     string
	Read2     string
}

// Tool builds the invocation of a downstream analysis tool.
type Tool interface {
	Name() string
	Command(p ToolParams) (Command, error)

	// OutputDir returns the directory the tool writes its results into.
	OutputDir(p ToolParams) string
}
