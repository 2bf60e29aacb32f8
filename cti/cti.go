// cti/cti.go
package cti

import (
	"fmt"
	"math"
)

// convergenceEpsilon is the residual threshold below which RemoveCTI
// considers its last iteration to have converged.
const convergenceEpsilon = 1e-6

// AddCTI composes parallel then serial clocking (or either alone) on a
// 2-D image. The serial direction is clocked by transposing, running the
// same single-direction clocker along the row axis, then transposing
// back; an explicit copy, trading memory for avoiding strided access in
// the inner loop.
func AddCTI(image *Image, parallel, serial *DirectionConfig) (*Image, error) {
	result := image

	if parallel != nil {
		var err error
		result, err = ClockDirection(result, parallel)
		if err != nil {
			return nil, fmt.Errorf("parallel direction: %w", err)
		}
	}

	if serial != nil {
		transposed := result.Transpose()
		clocked, err := ClockDirection(transposed, serial)
		if err != nil {
			return nil, fmt.Errorf("serial direction: %w", err)
		}
		result = clocked.Transpose()
	}

	if parallel == nil && serial == nil {
		return image.Clone(), nil
	}
	return result, nil
}

// RemoveCTI iteratively inverts the forward model: starting from the
// input image as its own first estimate, each iteration subtracts the
// modelled trail (AddCTI(model) - model) from the original image to
// produce the next estimate. Returns a non-fatal ErrConvergence (checked
// with errors.Is) if the residual between the last two iterations has
// not shrunk below tolerance.
func RemoveCTI(image *Image, nIterations int, parallel, serial *DirectionConfig) (*Image, error) {
	if nIterations <= 0 {
		return nil, fmt.Errorf("%w: n_iterations %d <= 0", ErrInvalidArgument, nIterations)
	}

	model := image.Clone()
	var lastDelta float64

	for i := 0; i < nIterations; i++ {
		modeled, err := AddCTI(model, parallel, serial)
		if err != nil {
			return nil, err
		}

		next := model.Clone()
		maxDelta := 0.0
		for r := range next.Rows {
			for c := range next.Rows[r] {
				trail := modeled.Rows[r][c] - model.Rows[r][c]
				newVal := image.Rows[r][c] - trail
				if d := math.Abs(newVal - next.Rows[r][c]); d > maxDelta {
					maxDelta = d
				}
				next.Rows[r][c] = newVal
			}
		}
		lastDelta = maxDelta
		model = next
	}

	if lastDelta > convergenceEpsilon {
		return model, fmt.Errorf("%w: residual delta %g after %d iterations", ErrConvergence, lastDelta, nIterations)
	}
	return model, nil
}
