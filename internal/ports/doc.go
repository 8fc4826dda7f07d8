// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// Ports are the boundaries between the streaming core and the outside world:
// they say what the core needs from the archive, the pipes and the child
// process without saying how those needs are met.
//
// # Port Interfaces
//
//   - [Archive], [Collection]: open an accession and range-query paired records
//   - [PairSource]: the cursor the core pulls pairs from
//   - [Formatter]: turns one read into its line group
//   - [PairSink]: paired writes into the two read-side streams
//   - [Endpoints], [EndpointAllocator]: the two named pipes of a run
//   - [Launcher], [Process]: the child process
//   - [Tool]: command construction for a downstream tool
//   - [Logger]: structured logging abstraction
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them with FIFOs,
// os/exec, local FASTQ files and zerolog.
package ports
