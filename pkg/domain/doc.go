// Package domain holds the core data model of the workflow engine:
// steps and their configuration, the per-execution context, agent results,
// tool specifications, observability events and typed errors.
//
// The package has no dependencies on the runtime; adapters and the
// coordinator both speak in these types.
package domain
