// Package app drives a run: it pulls pairs from a source, batches them into
// the pipe sink and coordinates the downstream tool's lifetime against the
// producer.
//
// A run moves through Configuring, Launching, Streaming and Draining to
// Completed, or to Failed from any of them. The failure path tears resources
// down in a fixed order: discard and close the buffer (which closes the pipes),
// kill and reap the child, remove the FIFOs, close the source.
package app
