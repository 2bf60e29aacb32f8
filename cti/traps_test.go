// cti/traps_test.go
package cti

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrapInstantCaptureFillFraction(t *testing.T) {
	tau := -1.0 / math.Log(0.5)
	trap, err := NewTrapInstantCapture(10, tau, 0, 0)
	require.NoError(t, err)

	require.InDelta(t, 1.0, trap.FillFractionFromTimeElapsed(0), 1e-12)
	require.InDelta(t, 0.5, trap.FillFractionFromTimeElapsed(1), 1e-9)
	require.InDelta(t, 0.25, trap.FillFractionFromTimeElapsed(2), 1e-9)
}

func TestTrapInstantCaptureTimeInversionRoundTrips(t *testing.T) {
	trap, err := NewTrapInstantCapture(10, 2.5, 0, 0)
	require.NoError(t, err)

	for _, elapsed := range []float64{0.1, 1, 2.5, 10} {
		f := trap.FillFractionFromTimeElapsed(elapsed)
		got := trap.TimeElapsedFromFillFraction(f, 1e6)
		require.InDelta(t, elapsed, got, 1e-9)
	}
}

func TestNewTrapInstantCaptureRejectsInvalidParams(t *testing.T) {
	_, err := NewTrapInstantCapture(-1, 1, 0, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewTrapInstantCapture(1, 0, 0, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewTrapInstantCapture(1, 1, 0.8, 0.2)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTrapExposedFractionWithNoBandIsUniform(t *testing.T) {
	trap, err := NewTrapInstantCapture(10, 1, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1.0, trap.ExposedFraction(0, 1))
	require.Equal(t, 1.0, trap.ExposedFraction(0.2, 0.4))
}

func TestTrapExposedFractionWithBand(t *testing.T) {
	trap, err := NewTrapInstantCapture(10, 1, 0.25, 0.75)
	require.NoError(t, err)

	require.Equal(t, 0.0, trap.ExposedFraction(0, 0.1))
	require.InDelta(t, 1.0, trap.ExposedFraction(0.25, 0.75), 1e-12)
	require.InDelta(t, 0.5, trap.ExposedFraction(0.25, 0.5), 1e-12)
}

func TestTrapSlowCaptureRelaxesTowardOne(t *testing.T) {
	trap, err := NewTrapSlowCapture(10, 1, 2, 0, 0)
	require.NoError(t, err)

	// An infinite time since the last fill is an empty stratum.
	f0 := trap.FillFractionAfterSlowCapture(math.Inf(1), 0)
	require.Equal(t, 0.0, f0)

	fLong := trap.FillFractionAfterSlowCapture(math.Inf(1), 1e6)
	require.InDelta(t, 1.0, fLong, 1e-6)
}

func TestContinuumTrapMatchesSingleLifetimeAsSigmaShrinks(t *testing.T) {
	// A continuum trap with sigma -> 0 should reproduce single-lifetime
	// fills to within 1e-2 at elapsed time = tau.
	tau := 2.0
	sigma := 0.02
	continuum, err := NewTrapInstantCaptureContinuum(10, tau, sigma, 0, 0)
	require.NoError(t, err)
	single, err := NewTrapInstantCapture(10, tau, 0, 0)
	require.NoError(t, err)

	got := continuum.FillFractionFromTimeElapsed(tau)
	want := single.FillFractionFromTimeElapsed(tau)
	require.InDelta(t, want, got, 1e-2)
}

func TestContinuumTrapFillIsMonotoneDecreasing(t *testing.T) {
	continuum, err := NewTrapInstantCaptureContinuum(10, 2.0, 0.5, 0, 0)
	require.NoError(t, err)

	prev := continuum.FillFractionFromTimeElapsed(continuum.table.tMin)
	for _, elapsed := range []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 50} {
		f := continuum.FillFractionFromTimeElapsed(elapsed)
		require.LessOrEqual(t, f, prev+1e-9)
		prev = f
	}
}

func TestContinuumTrapSaturatesOutsideTableBounds(t *testing.T) {
	continuum, err := NewTrapInstantCaptureContinuum(10, 2.0, 0.3, 0, 0)
	require.NoError(t, err)

	require.Equal(t, 1.0, continuum.FillFractionFromTimeElapsed(continuum.table.tMin/2))
	require.Equal(t, 0.0, continuum.FillFractionFromTimeElapsed(continuum.table.tMax*2))
}

func TestNewTrapInstantCaptureContinuumRejectsInvalidSigma(t *testing.T) {
	_, err := NewTrapInstantCaptureContinuum(10, 1, 0, 0, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
}
