// cti/traps.go
package cti

import (
	"fmt"
	"math"
)

// TrapSpecies describes one kind of lattice defect and its capture/release
// kinetics. Implementations are immutable and shared-read across columns
// and, when columns are clocked concurrently, across goroutines.
//
// The TrapManager keeps its species as TrapSpecies values and builds no
// per-species closure table: its release and capture loops check each
// species for the slowCaptureSpecies and continuumSpecies capabilities
// with type assertions, once per watermark row and species.
type TrapSpecies interface {
	// Density is the band-integrated total trap density (traps per pixel
	// volume). For species with a non-uniform vertical distribution this
	// is the nominal density referring to the full band-integrated total,
	// not the local density within the band.
	Density() float64

	// ReleaseRate is 1/releaseTimescale.
	ReleaseRate() float64

	// FillFractionFromTimeElapsed returns the population-level fill
	// fraction remaining after elapsed time t with no further capture.
	FillFractionFromTimeElapsed(t float64) float64

	// ExposedFraction returns the fraction of this species' traps lying
	// within the fractional-volume band [a, b] of a pixel. For species
	// with no declared band (the common case) this is uniformly 1.
	ExposedFraction(a, b float64) float64

	// IsSlowCapture reports whether this species uses the slow-capture
	// exchange (captured fill approaches a time-dependent limit rather
	// than saturating to 1 on contact).
	IsSlowCapture() bool
}

// slowCaptureSpecies is implemented by species whose capture step does not
// saturate instantly to 1.
type slowCaptureSpecies interface {
	TrapSpecies
	CaptureTimescale() float64
	// FillFractionAfterSlowCapture returns the fill fraction reached after
	// a stratum held at tElapsed-equivalent time-since-last-fill is
	// exposed to the cloud for dwell time dwell.
	FillFractionAfterSlowCapture(tElapsed, dwell float64) float64
}

// continuumSpecies is implemented by species whose release-time
// distribution is log-normal rather than single-lifetime, which requires
// inverting fill fraction back to an equivalent elapsed time.
type continuumSpecies interface {
	TrapSpecies
	// TimeElapsedFromFillFraction inverts FillFractionFromTimeElapsed,
	// saturating to tMax for fills below the table's resolution.
	TimeElapsedFromFillFraction(f, tMax float64) float64
	// MaxTime returns the upper bound of this species' precomputed time
	// table, used as the saturation tMax for inversion.
	MaxTime() float64
}

// band holds the optional fractional-volume exposure window [vl, vh] used
// by non-uniformly distributed traps. The zero value [0, 0] means "no
// band restriction": absence of a declared band yields uniform exposure 1.
type band struct {
	vl, vh float64
}

func newBand(vl, vh float64) (band, error) {
	if vl == 0 && vh == 0 {
		return band{}, nil
	}
	if vl < 0 || vh > 1 || vl > vh {
		return band{}, fmt.Errorf("%w: trap volume band [%g, %g] invalid", ErrInvalidArgument, vl, vh)
	}
	return band{vl: vl, vh: vh}, nil
}

// exposedFraction returns the fraction of a uniformly-in-band population
// lying within [a, b]. With no declared band, exposure is uniformly 1.
func (bd band) exposedFraction(a, b float64) float64 {
	if bd.vl == 0 && bd.vh == 0 {
		return 1
	}
	lo := math.Max(a, bd.vl)
	hi := math.Min(b, bd.vh)
	if hi <= lo {
		return 0
	}
	width := bd.vh - bd.vl
	if width <= 0 {
		return 0
	}
	return (hi - lo) / width
}

// TrapInstantCapture is a single-lifetime trap species whose capture step
// saturates instantly to a filled state on contact with the cloud.
type TrapInstantCapture struct {
	density         float64
	releaseTimescale float64
	band            band
}

// NewTrapInstantCapture constructs a single-lifetime instant-capture trap
// species with density rho and release timescale tau (must be > 0).
// vl/vh optionally restrict the species to a fractional-volume band;
// pass (0, 0) for no restriction.
func NewTrapInstantCapture(rho, tau, vl, vh float64) (*TrapInstantCapture, error) {
	if rho < 0 {
		return nil, fmt.Errorf("%w: trap density %g < 0", ErrInvalidArgument, rho)
	}
	if tau <= 0 {
		return nil, fmt.Errorf("%w: release timescale %g <= 0", ErrInvalidArgument, tau)
	}
	bd, err := newBand(vl, vh)
	if err != nil {
		return nil, err
	}
	return &TrapInstantCapture{density: rho, releaseTimescale: tau, band: bd}, nil
}

func (t *TrapInstantCapture) Density() float64      { return t.density }
func (t *TrapInstantCapture) ReleaseRate() float64  { return 1 / t.releaseTimescale }
func (t *TrapInstantCapture) IsSlowCapture() bool   { return false }
func (t *TrapInstantCapture) ExposedFraction(a, b float64) float64 {
	return t.band.exposedFraction(a, b)
}

// FillFractionFromTimeElapsed implements fill(t) = exp(-t/tau).
func (t *TrapInstantCapture) FillFractionFromTimeElapsed(elapsed float64) float64 {
	return math.Exp(-elapsed / t.releaseTimescale)
}

// TimeElapsedFromFillFraction implements the closed-form inverse
// t = -tau * log(f), recovering an equivalent elapsed time from a fill
// fraction. The trap manager's timeElapsedFor applies the same formula
// directly rather than calling this method.
func (t *TrapInstantCapture) TimeElapsedFromFillFraction(f, tMax float64) float64 {
	if f <= 0 {
		return tMax
	}
	if f >= 1 {
		return 0
	}
	return -t.releaseTimescale * math.Log(f)
}

// TrapSlowCapture is a single-lifetime trap species whose capture step
// approaches its limit over a finite capture timescale rather than
// saturating instantly.
type TrapSlowCapture struct {
	TrapInstantCapture
	captureTimescale float64
}

// NewTrapSlowCapture constructs a slow-capture trap species with density
// rho, release timescale tauR, and capture timescale tauC (both > 0).
func NewTrapSlowCapture(rho, tauR, tauC, vl, vh float64) (*TrapSlowCapture, error) {
	base, err := NewTrapInstantCapture(rho, tauR, vl, vh)
	if err != nil {
		return nil, err
	}
	if tauC <= 0 {
		return nil, fmt.Errorf("%w: capture timescale %g <= 0", ErrInvalidArgument, tauC)
	}
	return &TrapSlowCapture{TrapInstantCapture: *base, captureTimescale: tauC}, nil
}

func (t *TrapSlowCapture) IsSlowCapture() bool        { return true }
func (t *TrapSlowCapture) CaptureTimescale() float64  { return t.captureTimescale }

// FillFractionAfterSlowCapture returns the fill fraction reached after a
// stratum with fill-equivalent elapsed time tElapsed sits exposed to the
// cloud for dwell time dwell: it relaxes exponentially toward 1 with rate
// 1/captureTimescale, starting from the fill implied by tElapsed.
func (t *TrapSlowCapture) FillFractionAfterSlowCapture(tElapsed, dwell float64) float64 {
	fBefore := t.FillFractionFromTimeElapsed(tElapsed)
	return fBefore + (1-fBefore)*(1-math.Exp(-dwell/t.captureTimescale))
}
