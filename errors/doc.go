// Package errors provides the structured error type used across the discovery
// module. Configuration mistakes (bad version strings, bad version rules, bad
// settings) surface as *AppError values with a machine-readable code so callers
// can tell them apart from transient registry failures.
package errors
