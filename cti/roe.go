// cti/roe.go
package cti

import (
	"fmt"
	"math"
)

// ROEKind discriminates the three ROE schedule variants. The clocker
// never switches on this itself: it only consumes the express matrix
// produced by Setup, plus DwellOrder for per-phase dwell ordering.
type ROEKind int

const (
	ROEKindStandard ROEKind = iota
	ROEKindChargeInjection
	ROEKindTrapPumping
)

// ROE is a readout-electronics schedule: an ordered sequence of dwell
// times (one per phase step) plus the flags that control express matrix
// construction and release-direction ordering.
type ROE struct {
	Kind ROEKind

	DwellTimes []float64

	PrescanOffset   int
	OverscanStart   int // -1 means "no overscan"
	NPumps          int // ROEKindTrapPumping only

	EmptyTrapsBetweenColumns     bool
	EmptyTrapsForFirstTransfers  bool
	ForceReleaseAwayFromReadout  bool
	UseIntegerExpressMatrix      bool
}

func validateDwellTimes(dwellTimes []float64) error {
	if len(dwellTimes) == 0 {
		return fmt.Errorf("%w: ROE requires at least one dwell time", ErrInvalidArgument)
	}
	for _, d := range dwellTimes {
		if d <= 0 {
			return fmt.Errorf("%w: dwell time %g <= 0", ErrInvalidArgument, d)
		}
	}
	return nil
}

// NewROE constructs the standard ROE schedule.
func NewROE(dwellTimes []float64, prescanOffset, overscanStart int,
	emptyTrapsBetweenColumns, emptyTrapsForFirstTransfers,
	forceReleaseAwayFromReadout, useIntegerExpressMatrix bool) (*ROE, error) {
	if err := validateDwellTimes(dwellTimes); err != nil {
		return nil, err
	}
	if prescanOffset < 0 {
		return nil, fmt.Errorf("%w: prescan offset %d < 0", ErrInvalidArgument, prescanOffset)
	}
	dt := append([]float64(nil), dwellTimes...)
	return &ROE{
		Kind:                        ROEKindStandard,
		DwellTimes:                  dt,
		PrescanOffset:               prescanOffset,
		OverscanStart:               overscanStart,
		EmptyTrapsBetweenColumns:    emptyTrapsBetweenColumns,
		EmptyTrapsForFirstTransfers: emptyTrapsForFirstTransfers,
		ForceReleaseAwayFromReadout: forceReleaseAwayFromReadout,
		UseIntegerExpressMatrix:     useIntegerExpressMatrix,
	}, nil
}

// NewROEChargeInjection constructs a charge-injection ROE: traps are
// always empty for the first transfer of every pixel (charge is injected
// directly rather than read in from an adjacent pixel), so
// EmptyTrapsForFirstTransfers is forced true.
func NewROEChargeInjection(dwellTimes []float64, prescanOffset, overscanStart int,
	emptyTrapsBetweenColumns, forceReleaseAwayFromReadout, useIntegerExpressMatrix bool) (*ROE, error) {
	roe, err := NewROE(dwellTimes, prescanOffset, overscanStart,
		emptyTrapsBetweenColumns, true, forceReleaseAwayFromReadout, useIntegerExpressMatrix)
	if err != nil {
		return nil, err
	}
	roe.Kind = ROEKindChargeInjection
	return roe, nil
}

// NewROETrapPumping constructs a trap-pumping ROE: the dwell sequence is
// cycled forward then backward nPumps times, used to scan trap kinetics
// rather than to read out a science image. Traps are never emptied
// between "columns" since trap pumping repeatedly exercises the same
// pixel positions.
func NewROETrapPumping(dwellTimes []float64, nPumps int,
	emptyTrapsForFirstTransfers, useIntegerExpressMatrix bool) (*ROE, error) {
	if err := validateDwellTimes(dwellTimes); err != nil {
		return nil, err
	}
	if nPumps <= 0 {
		return nil, fmt.Errorf("%w: n_pumps %d <= 0", ErrInvalidArgument, nPumps)
	}
	cycle := make([]float64, 0, 2*len(dwellTimes)*nPumps)
	for i := 0; i < nPumps; i++ {
		cycle = append(cycle, dwellTimes...)
		for j := len(dwellTimes) - 1; j >= 0; j-- {
			cycle = append(cycle, dwellTimes[j])
		}
	}
	return &ROE{
		Kind:                        ROEKindTrapPumping,
		DwellTimes:                  cycle,
		OverscanStart:               -1,
		NPumps:                      nPumps,
		EmptyTrapsBetweenColumns:    false,
		EmptyTrapsForFirstTransfers: emptyTrapsForFirstTransfers,
		UseIntegerExpressMatrix:     useIntegerExpressMatrix,
	}, nil
}

// DwellOrder returns the per-phase-step dwell times for one transfer, in
// the order traps should see them. force_release_away_from_readout is a
// no-op unless the CCD is multi-phase (Open Question 2): a single-phase
// CCD's one dwell time has no "direction" to reverse.
func (r *ROE) DwellOrder(ccd *CCD) []float64 {
	if !r.ForceReleaseAwayFromReadout || ccd.NPhases() <= 1 {
		return r.DwellTimes
	}
	reversed := make([]float64, len(r.DwellTimes))
	for i, d := range r.DwellTimes {
		reversed[len(r.DwellTimes)-1-i] = d
	}
	return reversed
}

// ExpressMatrix is a dense K-by-N table of non-negative transfer-count
// weights: row k, column c gives the number of real transfers pixel c
// should be simulated as undergoing during express pass k. Columns sum to
// the true transfer count for that pixel.
type ExpressMatrix [][]float64

// Setup builds the express matrix for a column of nPixels pixels at the
// given express compression factor (0 means "exact", aliasing to
// nPixels plus any prescan offset, so every real transfer gets its own
// pass). The clocker stores/restores trap state once per pass boundary
// (every pass but the last), so no finer per-row bookkeeping is needed.
func (r *ROE) Setup(nPixels, express, extraOffset int) (ExpressMatrix, error) {
	if nPixels <= 0 {
		return nil, fmt.Errorf("%w: nPixels %d <= 0", ErrInvalidArgument, nPixels)
	}
	if express < 0 || express > nPixels {
		return nil, fmt.Errorf("%w: express %d out of range [0, %d]", ErrInvalidArgument, express, nPixels)
	}
	offset := r.PrescanOffset + extraOffset
	k := express
	if k == 0 {
		k = nPixels + offset
	}
	base := expressMatrixFromPixelsAndExpress(nPixels, k, offset, r.UseIntegerExpressMatrix, r.EmptyTrapsForFirstTransfers)
	return base, nil
}

// expressMatrixFromPixelsAndExpress implements the five construction
// rules. Every column's weights must sum to its true transfer count
// regardless of express, offset, or rounding (the column-sum law).
func expressMatrixFromPixelsAndExpress(nPixels, express, offset int, integer, emptyFirst bool) ExpressMatrix {
	if express <= 0 {
		express = nPixels + offset
	}

	// Rule 1 + rule 2: the offset's virtual prescan transfers are folded
	// into the staircase itself, not tacked onto pass 0 afterward. Build
	// the plain staircase over nPixels+offset virtual columns (so its
	// column sums run 1, 2, 3, ... up through the offset pixels too),
	// then keep only the last nPixels columns, which are the real ones.
	// max_multiplier is the per-pass cap this produces.
	totalCols := nPixels + offset
	maxMultiplier := int(math.Ceil(float64(totalCols) / float64(express)))

	base := make([][]float64, express)
	for k := 0; k < express; k++ {
		base[k] = make([]float64, nPixels)
		for c := 0; c < nPixels; c++ {
			virtualCol := c + offset
			v := float64(virtualCol+1) - float64(k*maxMultiplier)
			if v < 0 {
				v = 0
			}
			if v > float64(maxMultiplier) {
				v = float64(maxMultiplier)
			}
			base[k][c] = v
		}
	}

	// Rule 3: round to integers, preserving column sums via carry-over to
	// the last non-zero row of that column.
	if integer {
		for c := 0; c < nPixels; c++ {
			want := 0.0
			for k := 0; k < express; k++ {
				want += base[k][c]
			}
			roundedSum := 0.0
			lastNonZero := -1
			for k := 0; k < express; k++ {
				r := math.Round(base[k][c])
				base[k][c] = r
				roundedSum += r
				if r != 0 {
					lastNonZero = k
				}
			}
			diff := math.Round(want) - roundedSum
			if diff != 0 {
				if lastNonZero < 0 {
					lastNonZero = express - 1
				}
				base[lastNonZero][c] += diff
			}
		}
	}

	if !emptyFirst {
		return base
	}

	// Rule 4: peel the first transfer of every pixel (guaranteed empty
	// traps) into its own row weighted exactly 1; the compressed
	// remainder keeps the rest. Produces 2*express rows: an interleaved
	// [first-transfer row, remainder row] pair per pass.
	out := make([][]float64, 0, 2*express)
	for k := 0; k < express; k++ {
		firstRow := make([]float64, nPixels)
		remainder := make([]float64, nPixels)
		for c := 0; c < nPixels; c++ {
			w := base[k][c]
			if w <= 0 {
				continue
			}
			// Only the pass that holds this column's very first unit of
			// weight carries the peeled single transfer.
			isFirstPassForColumn := true
			for j := 0; j < k; j++ {
				if base[j][c] > 0 {
					isFirstPassForColumn = false
					break
				}
			}
			if isFirstPassForColumn {
				firstRow[c] = 1
				remainder[c] = w - 1
			} else {
				remainder[c] = w
			}
		}
		out = append(out, firstRow, remainder)
	}
	return out
}
