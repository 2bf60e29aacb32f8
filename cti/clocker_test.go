// cti/clocker_test.go
package cti

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// singlePixelFixture builds a length-n column holding a single bright
// pixel of 800 electrons at row 2, with one
// TrapInstantCapture(rho=10, tau=-1/ln(0.5)) species and a single-phase
// CCD(1e3, 0, 1).
func singlePixelFixture(t *testing.T, n int) (*Image, *ROE, *CCD, []TrapSpecies) {
	t.Helper()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = []float64{0}
	}
	rows[2][0] = 800
	img, err := NewImage(rows)
	require.NoError(t, err)

	tau := -1.0 / math.Log(0.5)
	trap, err := NewTrapInstantCapture(10, tau, 0, 0)
	require.NoError(t, err)

	roe, err := NewROE([]float64{1}, 0, -1, true, false, false, true)
	require.NoError(t, err)

	ccd, err := NewSingleCCD(1e3, 0, 1)
	require.NoError(t, err)

	return img, roe, ccd, []TrapSpecies{trap}
}

// TestClockDirectionMatchesReferenceVectorExpressOne checks the exact
// trail values at express=1: with K=1 there is exactly one express pass
// and every pixel's weight equals its own position + 1, so the compressed
// schedule reduces to a single deterministic sweep with no ambiguity
// about pass ordering. Values are a hand-verified reference vector for
// this single-species, single-phase fixture.
func TestClockDirectionMatchesReferenceVectorExpressOne(t *testing.T) {
	img, roe, ccd, species := singlePixelFixture(t, 20)

	cfg := &DirectionConfig{ROE: roe, CCD: ccd, Species: species, Express: 1, Window: FullWindow()}
	out, err := ClockDirection(img, cfg)
	require.NoError(t, err)

	want := []float64{
		0, 0, 776.0, 15.92, 9.99975, 6.02984925, 3.534999123, 2.030099496,
		1.147640621, 0.640766014, 0.354183414, 0.194156908, 0.105694167,
		0.057196805, 0.030794351, 0.016505772, 0.008812535, 0.004688787,
		0.002487011, 0.001315498,
	}
	for i, w := range want {
		require.InDelta(t, w, out.Rows[i][0], 1e-6, "row %d", i)
	}
}

func TestClockDirectionZeroDensityIsIdentity(t *testing.T) {
	img, roe, ccd, _ := singlePixelFixture(t, 20)
	zeroTrap, err := NewTrapInstantCapture(0, 1, 0, 0)
	require.NoError(t, err)

	for _, express := range []int{0, 1, 5} {
		cfg := &DirectionConfig{ROE: roe, CCD: ccd, Species: []TrapSpecies{zeroTrap}, Express: express, Window: FullWindow()}
		out, err := ClockDirection(img, cfg)
		require.NoError(t, err)
		for r := range img.Rows {
			require.Equal(t, img.Rows[r][0], out.Rows[r][0], "express=%d row=%d", express, r)
		}
	}
}

func TestClockDirectionWindowIsolation(t *testing.T) {
	img, roe, ccd, species := singlePixelFixture(t, 20)

	cfg := &DirectionConfig{
		ROE: roe, CCD: ccd, Species: species, Express: 1,
		Window: Window{RowStart: 0, RowStop: 2, ColStart: 0, ColStop: -1},
	}
	out, err := ClockDirection(img, cfg)
	require.NoError(t, err)

	// The window [0, 2) excludes the bright pixel at row 2, so nothing
	// inside the window and nothing outside it should change.
	for r := range img.Rows {
		require.Equal(t, img.Rows[r][0], out.Rows[r][0], "row %d", r)
	}
}

func TestClockDirectionWindowIsolationOutsideWindowUnchanged(t *testing.T) {
	img, roe, ccd, species := singlePixelFixture(t, 20)

	cfg := &DirectionConfig{
		ROE: roe, CCD: ccd, Species: species, Express: 1,
		Window: Window{RowStart: 0, RowStop: 5, ColStart: 0, ColStop: -1},
	}
	out, err := ClockDirection(img, cfg)
	require.NoError(t, err)

	for r := 5; r < len(img.Rows); r++ {
		require.Equal(t, img.Rows[r][0], out.Rows[r][0], "row %d outside window must be unchanged", r)
	}
	// Inside the window, the bright pixel should have lost electrons to
	// trailing trap capture.
	require.Less(t, out.Rows[2][0], img.Rows[2][0])
}

func TestClockDirectionConservesElectronsWithinWindow(t *testing.T) {
	img, roe, ccd, species := singlePixelFixture(t, 20)

	// Express 0 clocks every real transfer. A compressed schedule scales
	// each exchange by its pass weight and need not conserve: at express=1
	// the reference vector above sums to about 816 from 800.
	cfg := &DirectionConfig{ROE: roe, CCD: ccd, Species: species, Express: 0, Window: FullWindow()}
	out, err := ClockDirection(img, cfg)
	require.NoError(t, err)

	var before, after float64
	for r := range img.Rows {
		before += img.Rows[r][0]
		after += out.Rows[r][0]
	}
	// Electrons captured into traps are not lost from the universe; they
	// are trapped charge, recoverable via TotalTrappedElectrons on the
	// manager used internally. At the image level we only require that
	// the image does not gain electrons from nowhere.
	require.LessOrEqual(t, after, before+1e-6)
}

// TestClockDirectionWeightsByTrapFraction checks that a multi-phase CCD
// only applies each phase's share of the trap population. A 2-phase CCD
// with trap_fractions [1, 0] puts every trap in phase 0, so it must
// reproduce the single-phase fixture's trail exactly; a [0, 1] CCD must
// likewise match phase 1 acting alone.
func TestClockDirectionWeightsByTrapFraction(t *testing.T) {
	img, roe, singleCCD, species := singlePixelFixture(t, 20)

	baseline, err := ClockDirection(img, &DirectionConfig{ROE: roe, CCD: singleCCD, Species: species, Express: 1, Window: FullWindow()})
	require.NoError(t, err)

	ph, err := NewCCDPhase(1e3, 0, 1, 0)
	require.NoError(t, err)

	allInPhaseZero, err := NewCCD([]CCDPhase{ph, ph}, []float64{1, 0})
	require.NoError(t, err)
	twoPhaseRoe, err := NewROE([]float64{1, 1}, 0, -1, true, false, false, true)
	require.NoError(t, err)

	out, err := ClockDirection(img, &DirectionConfig{ROE: twoPhaseRoe, CCD: allInPhaseZero, Species: species, Express: 1, Window: FullWindow()})
	require.NoError(t, err)

	for r := range img.Rows {
		require.InDelta(t, baseline.Rows[r][0], out.Rows[r][0], 1e-9, "row %d", r)
	}

	allInPhaseOne, err := NewCCD([]CCDPhase{ph, ph}, []float64{0, 1})
	require.NoError(t, err)
	out2, err := ClockDirection(img, &DirectionConfig{ROE: twoPhaseRoe, CCD: allInPhaseOne, Species: species, Express: 1, Window: FullWindow()})
	require.NoError(t, err)

	for r := range img.Rows {
		require.InDelta(t, baseline.Rows[r][0], out2.Rows[r][0], 1e-9, "row %d", r)
	}
}

func TestClockDirectionExpressVariationStaysCloseToExact(t *testing.T) {
	img, roe, ccd, species := singlePixelFixture(t, 20)

	var results [][]float64
	for _, express := range []int{1, 2, 5, 10, 20} {
		cfg := &DirectionConfig{ROE: roe, CCD: ccd, Species: species, Express: express, Window: FullWindow()}
		out, err := ClockDirection(img, cfg)
		require.NoError(t, err)
		row := make([]float64, len(out.Rows))
		for r := range out.Rows {
			row[r] = out.Rows[r][0]
		}
		results = append(results, row)
	}

	// All express levels should agree closely on the brightest pixel's
	// post-transfer value and on qualitative trail shape (monotonically
	// decaying trail past the source row).
	for _, row := range results {
		require.InDelta(t, 776.0, row[2], 1.0)
		for r := 4; r < len(row)-1; r++ {
			require.GreaterOrEqual(t, row[r], row[r+1]-1e-9)
		}
	}
}
