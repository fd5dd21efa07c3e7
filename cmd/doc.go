// Package cmd implements the command-line interface of gridlock. It provides a
// hierarchical command structure with operations for running the lock server
// and interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - lock: Commands for exclusive locks (acquire, release, cancel, owner, ...)
//   - rwlock: Commands for read/write locks (read, read-unlock, write, ...)
//   - serve: Commands for starting and configuring the gridlock server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See gridlock -help for a list of all commands.
package cmd
