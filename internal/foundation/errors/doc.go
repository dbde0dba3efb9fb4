// Package errors provides the classified error primitives used across sitebuilder.
//
// Every failure that crosses a component boundary is a ClassifiedError carrying:
//   - ErrorCategory: what failed (config, node creation, render, cache, ...)
//   - ErrorSeverity: impact level (fatal aborts the run, error is scoped, warning degrades)
//   - ErrorScope: how far the failure reaches (whole run, single source path, single node)
//   - ErrorContext: structured key/value context for logs and run summaries
//
// Example usage:
//
//	err := errors.NodeCreationError("missing mandatory meta information").
//		WithContext("path", p.Path).
//		WithContext("key", "title").
//		Build()
package errors
