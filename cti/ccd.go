// cti/ccd.go
package cti

import (
	"fmt"
	"math"
)

// CCDPhase describes one physical potential well within a pixel: its
// full-well depth, well-notch depth, well-fill power, and the fractional
// cloud volume occupied by the first electron.
type CCDPhase struct {
	FullWellDepth     float64 // W > 0
	WellNotchDepth    float64 // n >= 0
	WellFillPower     float64 // p in (0, 1]
	FirstElectronFill float64 // f in [0, 1)
}

// NewCCDPhase validates and constructs a CCDPhase.
func NewCCDPhase(fullWellDepth, wellNotchDepth, wellFillPower, firstElectronFill float64) (CCDPhase, error) {
	if fullWellDepth <= 0 {
		return CCDPhase{}, fmt.Errorf("%w: full well depth %g <= 0", ErrInvalidArgument, fullWellDepth)
	}
	if wellNotchDepth < 0 {
		return CCDPhase{}, fmt.Errorf("%w: well notch depth %g < 0", ErrInvalidArgument, wellNotchDepth)
	}
	if wellFillPower <= 0 || wellFillPower > 1 {
		return CCDPhase{}, fmt.Errorf("%w: well fill power %g not in (0, 1]", ErrInvalidArgument, wellFillPower)
	}
	if firstElectronFill < 0 || firstElectronFill >= 1 {
		return CCDPhase{}, fmt.Errorf("%w: first electron fill %g not in [0, 1)", ErrInvalidArgument, firstElectronFill)
	}
	return CCDPhase{
		FullWellDepth:     fullWellDepth,
		WellNotchDepth:    wellNotchDepth,
		WellFillPower:     wellFillPower,
		FirstElectronFill: firstElectronFill,
	}, nil
}

// CloudFractionalVolume maps a free-electron count q to the fraction of
// the pixel's volume occupied by the cloud, per the piecewise power law:
//
//	v(q) = 0                                                   if q <= n
//	v(q) = f + (1-f) * clamp((q-n)/(W-n), 0, 1)^p               if n < q < W
//	v(q) = 1                                                    if q >= W
func (ph CCDPhase) CloudFractionalVolume(q float64) float64 {
	if q <= ph.WellNotchDepth {
		return 0
	}
	if q >= ph.FullWellDepth {
		return 1
	}
	denom := ph.FullWellDepth - ph.WellNotchDepth
	frac := (q - ph.WellNotchDepth) / denom
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return ph.FirstElectronFill + (1-ph.FirstElectronFill)*math.Pow(frac, ph.WellFillPower)
}

// CCD is an ordered sequence of phases with per-phase trap-fraction
// weights summing to 1. A single-phase CCD has exactly one phase with
// weight 1.
type CCD struct {
	Phases        []CCDPhase
	TrapFractions []float64
}

// NewCCD validates and constructs a multi-phase CCD. TrapFractions must
// have the same length as phases and sum to 1 within tolerance.
func NewCCD(phases []CCDPhase, trapFractions []float64) (*CCD, error) {
	if len(phases) == 0 {
		return nil, fmt.Errorf("%w: CCD requires at least one phase", ErrInvalidArgument)
	}
	if len(trapFractions) != len(phases) {
		return nil, fmt.Errorf("%w: %d trap fractions for %d phases", ErrInvalidArgument, len(trapFractions), len(phases))
	}
	var sum float64
	for _, w := range trapFractions {
		if w < 0 {
			return nil, fmt.Errorf("%w: negative trap fraction %g", ErrInvalidArgument, w)
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-8 {
		return nil, fmt.Errorf("%w: trap fractions sum to %g, not 1", ErrInvalidArgument, sum)
	}
	cpy := make([]CCDPhase, len(phases))
	copy(cpy, phases)
	fcpy := make([]float64, len(trapFractions))
	copy(fcpy, trapFractions)
	return &CCD{Phases: cpy, TrapFractions: fcpy}, nil
}

// NewSingleCCD is a convenience constructor for the common single-phase
// case.
func NewSingleCCD(fullWellDepth, wellNotchDepth, wellFillPower float64) (*CCD, error) {
	ph, err := NewCCDPhase(fullWellDepth, wellNotchDepth, wellFillPower, 0)
	if err != nil {
		return nil, err
	}
	return NewCCD([]CCDPhase{ph}, []float64{1})
}

// NPhases returns the number of phase steps per transfer.
func (c *CCD) NPhases() int { return len(c.Phases) }
