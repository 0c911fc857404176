// Package aprzerr defines the error kinds shared across providers and the
// orchestrator, so callers can classify a failure with errors.Is instead of
// string matching.
package aprzerr

import "errors"

// Sentinel kinds. Wrap with fmt.Errorf("...: %w", Kind) at the boundary
// where a failure is first classified; errors.Is(err, aprzerr.Timeout)
// etc. works through any number of further %w wraps.
var (
	Io              = errors.New("io error")
	Http            = errors.New("http error")
	Parse           = errors.New("parse error")
	Timeout         = errors.New("timeout")
	RateLimited     = errors.New("rate limited")
	ConfigInvalid   = errors.New("invalid configuration")
	ExpressionError = errors.New("expression evaluation failed")
)
