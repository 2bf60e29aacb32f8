// cti/traps_continuum.go
package cti

import (
	"fmt"
	"math"
)

// nInterpolationPoints is the number of log-spaced points in each
// continuum-trap lookup table.
const nInterpolationPoints = 1000

// logNormalPDF is the log-normal probability density with median tauR
// (so mu = log(tauR)) and log-standard-deviation sigma.
func logNormalPDF(tau, tauR, sigma float64) float64 {
	if tau <= 0 {
		return 0
	}
	mu := math.Log(tauR)
	z := (math.Log(tau) - mu) / sigma
	return math.Exp(-0.5*z*z) / (tau * sigma * math.Sqrt(2*math.Pi))
}

// continuumFillAtTime integrates exp(-t/tau) * P_logN(tau; tauR, sigma) over
// tau via fixed-step Simpson's rule in log(tau), spanning +/- spanSigmas
// log-standard-deviations around the median. This has no closed form, so a
// small hand-rolled Simpson integrator is used rather than pulling in a
// quadrature library for one local computation (see DESIGN.md).
func continuumFillAtTime(t, tauR, sigma float64) float64 {
	const spanSigmas = 8.0
	const steps = 400 // even, for Simpson's rule
	lo := math.Log(tauR) - spanSigmas*sigma
	hi := math.Log(tauR) + spanSigmas*sigma
	h := (hi - lo) / steps

	integrand := func(logTau float64) float64 {
		tau := math.Exp(logTau)
		// d(tau) = tau * d(logTau), folded into the PDF-in-tau times tau.
		return math.Exp(-t/tau) * logNormalPDF(tau, tauR, sigma) * tau
	}

	sum := integrand(lo) + integrand(hi)
	for i := 1; i < steps; i++ {
		x := lo + float64(i)*h
		if i%2 == 0 {
			sum += 2 * integrand(x)
		} else {
			sum += 4 * integrand(x)
		}
	}
	return sum * h / 3
}

// continuumTable holds log-spaced (time, fill) samples and their inverse
// for linear interpolation in log-space.
type continuumTable struct {
	logTimes []float64 // log-spaced, ascending
	fills    []float64 // fill_table[i] = fill(exp(logTimes[i])), descending
	tMin     float64
	tMax     float64
}

func buildContinuumTable(tauR, sigma, tMin, tMax float64) continuumTable {
	tbl := continuumTable{
		logTimes: make([]float64, nInterpolationPoints),
		fills:    make([]float64, nInterpolationPoints),
		tMin:     tMin,
		tMax:     tMax,
	}
	logMin, logMax := math.Log(tMin), math.Log(tMax)
	for i := 0; i < nInterpolationPoints; i++ {
		frac := float64(i) / float64(nInterpolationPoints-1)
		logT := logMin + frac*(logMax-logMin)
		tbl.logTimes[i] = logT
		tbl.fills[i] = continuumFillAtTime(math.Exp(logT), tauR, sigma)
	}
	return tbl
}

// fillAtTime interpolates fill(t) in log-time space, saturating to 1.0 for
// t below the table's minimum and 0.0 above its maximum.
func (tbl continuumTable) fillAtTime(t float64) float64 {
	if t <= tbl.tMin {
		return 1.0
	}
	if t >= tbl.tMax {
		return 0.0
	}
	logT := math.Log(t)
	return interpLogX(tbl.logTimes, tbl.fills, logT)
}

// timeAtFill inverts fillAtTime via the same samples (fills is monotone
// decreasing in logTimes), saturating to tMax when f is below the table's
// resolution and to 0 when f saturates to 1.
func (tbl continuumTable) timeAtFill(f, tMax float64) float64 {
	if f <= tbl.fills[len(tbl.fills)-1] {
		return tMax
	}
	if f >= tbl.fills[0] {
		return 0
	}
	// fills is descending; search for the bracketing pair and invert
	// linearly in log-time vs fill directly (fill is not log-spaced, but
	// locally monotone so linear interpolation between bracket points is
	// consistent with how fillAtTime was built).
	lo, hi := 0, len(tbl.fills)-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if tbl.fills[mid] > f {
			lo = mid
		} else {
			hi = mid
		}
	}
	f0, f1 := tbl.fills[lo], tbl.fills[hi]
	t0, t1 := tbl.logTimes[lo], tbl.logTimes[hi]
	if f0 == f1 {
		return math.Exp(t0)
	}
	frac := (f - f0) / (f1 - f0)
	return math.Exp(t0 + frac*(t1-t0))
}

// interpLogX performs linear interpolation of y as a function of x, where
// x is assumed ascending (xs is log-time here).
func interpLogX(xs, ys []float64, x float64) float64 {
	lo, hi := 0, len(xs)-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if xs[mid] <= x {
			lo = mid
		} else {
			hi = mid
		}
	}
	x0, x1 := xs[lo], xs[hi]
	y0, y1 := ys[lo], ys[hi]
	if x1 == x0 {
		return y0
	}
	frac := (x - x0) / (x1 - x0)
	return y0 + frac*(y1-y0)
}

// TrapInstantCaptureContinuum is an instant-capture trap species whose
// release-time distribution is log-normal (median tauR, log-stdev sigma)
// rather than single-lifetime. Construction precomputes fill/time lookup
// tables so release probability lookups are O(log n) rather than
// re-integrating the distribution on every transfer.
type TrapInstantCaptureContinuum struct {
	density float64
	tauR    float64
	sigma   float64
	band    band
	table   continuumTable
}

// continuumTimeBounds picks a wide enough [tMin, tMax] span around the
// median release timescale to cover the log-normal tail to numerical
// saturation.
func continuumTimeBounds(tauR, sigma float64) (float64, float64) {
	const spanSigmas = 8.0
	return tauR * math.Exp(-spanSigmas*sigma), tauR * math.Exp(spanSigmas*sigma)
}

// NewTrapInstantCaptureContinuum constructs a continuum instant-capture
// trap species with density rho, median release timescale tauR, and
// log-stdev sigma (must be > 0).
func NewTrapInstantCaptureContinuum(rho, tauR, sigma, vl, vh float64) (*TrapInstantCaptureContinuum, error) {
	if rho < 0 {
		return nil, fmt.Errorf("%w: trap density %g < 0", ErrInvalidArgument, rho)
	}
	if tauR <= 0 {
		return nil, fmt.Errorf("%w: release timescale %g <= 0", ErrInvalidArgument, tauR)
	}
	if sigma <= 0 {
		return nil, fmt.Errorf("%w: log-sigma %g <= 0", ErrInvalidArgument, sigma)
	}
	bd, err := newBand(vl, vh)
	if err != nil {
		return nil, err
	}
	tMin, tMax := continuumTimeBounds(tauR, sigma)
	return &TrapInstantCaptureContinuum{
		density: rho, tauR: tauR, sigma: sigma, band: bd,
		table: buildContinuumTable(tauR, sigma, tMin, tMax),
	}, nil
}

func (t *TrapInstantCaptureContinuum) Density() float64     { return t.density }
func (t *TrapInstantCaptureContinuum) ReleaseRate() float64 { return 1 / t.tauR }
func (t *TrapInstantCaptureContinuum) IsSlowCapture() bool  { return false }
func (t *TrapInstantCaptureContinuum) ExposedFraction(a, b float64) float64 {
	return t.band.exposedFraction(a, b)
}
func (t *TrapInstantCaptureContinuum) FillFractionFromTimeElapsed(elapsed float64) float64 {
	return t.table.fillAtTime(elapsed)
}
func (t *TrapInstantCaptureContinuum) TimeElapsedFromFillFraction(f, tMax float64) float64 {
	return t.table.timeAtFill(f, tMax)
}
func (t *TrapInstantCaptureContinuum) MaxTime() float64 { return t.table.tMax }

// TrapSlowCaptureContinuum is a continuum trap species whose capture step
// also relaxes over a finite capture timescale. No fill-after-capture
// table is precomputed: FillFractionAfterSlowCapture evaluates its closed
// form on every call, for whatever dwell time it is given.
type TrapSlowCaptureContinuum struct {
	TrapInstantCaptureContinuum
	captureTimescale float64
}

// NewTrapSlowCaptureContinuum constructs a continuum slow-capture trap
// species with density rho, median release timescale tauR, log-stdev
// sigma, and capture timescale tauC (all > 0 except rho >= 0).
func NewTrapSlowCaptureContinuum(rho, tauR, sigma, tauC, vl, vh float64) (*TrapSlowCaptureContinuum, error) {
	base, err := NewTrapInstantCaptureContinuum(rho, tauR, sigma, vl, vh)
	if err != nil {
		return nil, err
	}
	if tauC <= 0 {
		return nil, fmt.Errorf("%w: capture timescale %g <= 0", ErrInvalidArgument, tauC)
	}
	return &TrapSlowCaptureContinuum{TrapInstantCaptureContinuum: *base, captureTimescale: tauC}, nil
}

func (t *TrapSlowCaptureContinuum) IsSlowCapture() bool       { return true }
func (t *TrapSlowCaptureContinuum) CaptureTimescale() float64 { return t.captureTimescale }

// FillFractionAfterSlowCapture mirrors TrapSlowCapture's relaxation but
// starting from the continuum species' own fill-at-time curve.
func (t *TrapSlowCaptureContinuum) FillFractionAfterSlowCapture(tElapsed, dwell float64) float64 {
	fBefore := t.FillFractionFromTimeElapsed(tElapsed)
	return fBefore + (1-fBefore)*(1-math.Exp(-dwell/t.captureTimescale))
}
