// Package model defines the domain types and value objects for the dsenv
// CLI.
//
// This package contains pure data structures with no side effects. The
// environment descriptor, extension identifiers, step results, and the
// aggregated run report are all transient: dsenv keeps no state of its own,
// the provisioned environment on disk is the only lasting effect.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
