// Package domain contains the core entities and error taxonomy for sraship.
//
// This package is the innermost layer: it knows nothing about pipes, processes,
// archives or logging and holds only the values that flow through a run and
// the rules those values must obey.
//
// # Entities
//
//   - [Read]: one sequencing read (name, bases, qualities)
//   - [ReadPair]: the two mates of one fragment group, emitted together or not at all
//   - [Record]: a raw archive record with its fragments, before pairing checks
//
// # Errors
//
// Sentinel errors ([ErrSourceUnavailable], [ErrPairing], [ErrExternalTool],
// [ErrTeardown]) are matched with errors.Is. The structured errors
// ([SourceError], [PairingError], [ToolError], [TeardownError]) carry the
// details and are found with errors.As.
package domain
