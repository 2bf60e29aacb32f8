// cti/errors.go
package cti

import "errors"

// Sentinel error kinds. Construction functions wrap one of these with
// fmt.Errorf("...: %w", ErrX) so callers can distinguish kinds with
// errors.Is while still getting a descriptive message.
var (
	// ErrInvalidArgument marks a construction-time rejection: bad
	// dimensions, non-positive timescales, negative densities, vl > vh,
	// inconsistent per-phase trap fraction weights, and similar.
	ErrInvalidArgument = errors.New("cti: invalid argument")

	// ErrCapacityExceeded marks a watermark table overflow. Given a
	// correctly sized maxNTransfers this cannot occur; seeing it means a
	// caller under-sized the manager for the column length it fed it.
	ErrCapacityExceeded = errors.New("cti: watermark capacity exceeded")

	// ErrNumerical marks NaN or Inf appearing in a cloud volume or fill
	// fraction computation.
	ErrNumerical = errors.New("cti: numerical error")

	// ErrConvergence is a non-fatal warning: RemoveCTI's residual was
	// still changing after the requested number of iterations. Callers
	// use errors.Is to decide whether to treat it as fatal.
	ErrConvergence = errors.New("cti: residual did not converge")
)
