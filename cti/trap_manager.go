// cti/trap_manager.go
package cti

import (
	"fmt"
	"math"
)

// nWatermarksPerTransfer bounds how many new watermark rows a single
// transfer can create: at most one existing row splits in two, and at
// most one new top row is appended when the cloud grows past the current
// apex.
const nWatermarksPerTransfer = 2

// mergeTolerance is the per-species fill-fraction tolerance within which
// adjacent watermark rows are considered equal and coalesced.
const mergeTolerance = 1e-10

// TrapManager owns a column's watermark table and performs release and
// capture exchanges against a fixed set of trap species. One TrapManager
// is constructed per (species set, direction, column family); it is
// reset between columns unless the caller asks to carry state forward
// (ROE.EmptyTrapsBetweenColumns = false).
type TrapManager struct {
	species []TrapSpecies
	wm      *watermarkTable
	// allowNegativePixels selects whether Exchange runs the release and
	// capture steps for qIn < 0 (true) or returns 0 for it (false).
	allowNegativePixels bool

	pruneFrequency  int
	pruneNElectrons float64
	transferCount   int
	PruneStats      PruneStats
}

// PruneStats accumulates pruning activity across a manager's lifetime.
// ClockDirection does not return its manager, so these counts are not
// reported outside the manager.
type PruneStats struct {
	RowsPruned int
}

// NewTrapManager constructs a manager sized for maxNTransfers transfers
// of the given species set.
func NewTrapManager(species []TrapSpecies, maxNTransfers int, allowNegativePixels bool) (*TrapManager, error) {
	if len(species) == 0 {
		return nil, fmt.Errorf("%w: trap manager requires at least one species", ErrInvalidArgument)
	}
	if maxNTransfers <= 0 {
		return nil, fmt.Errorf("%w: maxNTransfers %d <= 0", ErrInvalidArgument, maxNTransfers)
	}
	sp := append([]TrapSpecies(nil), species...)
	return &TrapManager{
		species:             sp,
		wm:                  newWatermarkTable(maxNTransfers, nWatermarksPerTransfer, len(sp)),
		allowNegativePixels: allowNegativePixels,
	}, nil
}

// SetPruning enables pruning every frequency transfers, merging any row
// whose total trapped-electron content falls below nElectrons.
// frequency <= 0 disables pruning.
func (m *TrapManager) SetPruning(frequency int, nElectrons float64) {
	m.pruneFrequency = frequency
	m.pruneNElectrons = nElectrons
}

// ResetTrapStates returns the watermark table to empty.
func (m *TrapManager) ResetTrapStates() {
	m.wm.reset()
	m.transferCount = 0
}

// StoreTrapStates snapshots the watermark table for later restore.
func (m *TrapManager) StoreTrapStates() { m.wm.store() }

// RestoreTrapStates reloads the last-stored snapshot.
func (m *TrapManager) RestoreTrapStates() { m.wm.restore() }

// releaseProbability computes the per-row, per-species release
// probability for dwell time dwell given the row's current fill fBefore.
// Single-lifetime species reduce to 1 - exp(-dwell/tau) because the
// exponential is memoryless; continuum species require inverting the
// current fill back to an equivalent elapsed time first.
func releaseProbability(sp TrapSpecies, fBefore, dwell float64) float64 {
	if fBefore <= 0 {
		return 0
	}
	if cs, ok := sp.(continuumSpecies); ok {
		tBefore := cs.TimeElapsedFromFillFraction(fBefore, cs.MaxTime())
		fAfter := sp.FillFractionFromTimeElapsed(tBefore + dwell)
		return 1 - fAfter/fBefore
	}
	return 1 - math.Exp(-dwell*sp.ReleaseRate())
}

// Exchange performs one transfer's release-then-capture exchange for a
// pixel holding qIn free electrons, dwelling for dwell at the given CCD
// phase. trapFraction is the fraction of each species' total density that
// physically resides in this phase (CCD.TrapFractions[phaseIdx]); a
// multi-phase CCD calls Exchange once per phase and sums the results, so
// each call must only account for its own phase's share of the traps. It
// returns n_electrons_released_and_captured = deltaRelease - deltaCapture
// (the net electron count to add to the pixel, before the caller's
// express-pass weight is applied) and mutates the manager's watermark
// table in place.
//
// With allowNegativePixels false, a negative qIn yields delta = 0 and
// leaves watermarks untouched. With it true (iterative correction, whose
// residual images go negative between iterations), a negative qIn goes
// through the exchange: traps release into it as usual, and a cloud that
// stays at or below the well notch occupies zero volume and captures
// nothing.
func (m *TrapManager) Exchange(qIn float64, dwell float64, phase CCDPhase, trapFraction float64) (float64, error) {
	if qIn < 0 && !m.allowNegativePixels {
		return 0, nil
	}
	if math.IsNaN(qIn) || math.IsInf(qIn, 0) {
		return 0, fmt.Errorf("%w: input electron count is NaN/Inf", ErrNumerical)
	}
	m.transferCount++

	deltaRelease, err := m.release(dwell, trapFraction)
	if err != nil {
		return 0, err
	}

	qAfterRelease := qIn + deltaRelease
	vCloud := phase.CloudFractionalVolume(qAfterRelease)
	if math.IsNaN(vCloud) || math.IsInf(vCloud, 0) {
		return 0, fmt.Errorf("%w: cloud fractional volume is NaN/Inf", ErrNumerical)
	}

	deltaCapture, err := m.capture(vCloud, dwell, trapFraction)
	if err != nil {
		return 0, err
	}

	m.wm.mergeAdjacent(mergeTolerance)

	if m.pruneFrequency > 0 && m.transferCount%m.pruneFrequency == 0 {
		pruned := m.wm.pruneBelow(m.species, m.pruneNElectrons)
		m.PruneStats.RowsPruned += pruned
	}

	return deltaRelease - deltaCapture, nil
}

// release runs the release step over every active row and species,
// mutating fills in place and returning the total released electron
// count. trapFraction scales each species' density to this phase's share
// of the total trap population.
func (m *TrapManager) release(dwell, trapFraction float64) (float64, error) {
	var deltaRelease float64
	cumBottom := 0.0
	for w := 0; w < m.wm.nActive; w++ {
		row := &m.wm.rows[w]
		top := cumBottom + row.height
		for s, sp := range m.species {
			fBefore := row.fills[s]
			if fBefore <= 0 {
				continue
			}
			probRelease := releaseProbability(sp, fBefore, dwell)
			row.fills[s] = fBefore * (1 - probRelease)
			exposure := sp.ExposedFraction(cumBottom, top)
			deltaRelease += sp.Density() * trapFraction * exposure * row.height * fBefore * probRelease
		}
		cumBottom = top
	}
	if math.IsNaN(deltaRelease) {
		return 0, fmt.Errorf("%w: released electron count is NaN", ErrNumerical)
	}
	return deltaRelease, nil
}

// capture runs the capture step: rows wholly below vCloud are captured
// to their species' capture limit, the straddling row is split, and rows
// above vCloud are untouched. A new top row is appended if vCloud
// exceeds the current apex. trapFraction scales each species' density to
// this phase's share of the total trap population.
func (m *TrapManager) capture(vCloud, dwell, trapFraction float64) (float64, error) {
	var deltaCapture float64
	apex := m.wm.apex()

	// Walk existing rows bottom-up, splitting at most one straddling row.
	cumBottom := 0.0
	i := 0
	for i < m.wm.nActive {
		row := &m.wm.rows[i]
		top := cumBottom + row.height
		switch {
		case top <= vCloud:
			// Entirely captured.
			d, err := m.captureRow(row, cumBottom, top, dwell, trapFraction)
			if err != nil {
				return 0, err
			}
			deltaCapture += d
			cumBottom = top
			i++
		case cumBottom >= vCloud:
			// Entirely untouched; nothing to do.
			cumBottom = top
			i++
		default:
			// Straddles vCloud: split into a lower captured sub-row and
			// an upper untouched sub-row.
			lowerHeight := vCloud - cumBottom
			upperHeight := top - vCloud
			upperFills := append([]float64(nil), row.fills...)

			// Shrink the existing row to the lower (captured) portion in
			// place, then insert the upper (untouched) portion above it.
			row.height = lowerHeight
			d, err := m.captureRow(row, cumBottom, vCloud, dwell, trapFraction)
			if err != nil {
				return 0, err
			}
			deltaCapture += d
			if err := m.wm.insertAt(i+1, upperHeight, upperFills); err != nil {
				return 0, err
			}
			cumBottom = vCloud + upperHeight
			i += 2
		}
	}

	if vCloud > apex {
		newHeight := vCloud - apex
		fills := make([]float64, len(m.species))
		for s, sp := range m.species {
			f, d := m.captureEmpty(sp, apex, vCloud, newHeight, dwell, trapFraction)
			fills[s] = f
			deltaCapture += d
		}
		if err := m.wm.push(newHeight, fills); err != nil {
			return 0, err
		}
	}

	if math.IsNaN(deltaCapture) {
		return 0, fmt.Errorf("%w: captured electron count is NaN", ErrNumerical)
	}
	return deltaCapture, nil
}

// captureRow updates one existing row's fills toward its species'
// capture limit (1.0 for instant capture, a time-dependent limit for slow
// capture) and returns the electrons captured across all species.
func (m *TrapManager) captureRow(row *watermarkRow, bottom, top, dwell, trapFraction float64) (float64, error) {
	var delta float64
	for s, sp := range m.species {
		fBefore := row.fills[s]
		exposure := sp.ExposedFraction(bottom, top)
		if slow, ok := sp.(slowCaptureSpecies); ok {
			tMax := math.Inf(1)
			if cs, ok := sp.(continuumSpecies); ok {
				tMax = cs.MaxTime()
			}
			tElapsed := timeElapsedFor(sp, fBefore, tMax)
			fAfter := slow.FillFractionAfterSlowCapture(tElapsed, dwell)
			delta += sp.Density() * trapFraction * exposure * row.height * (fAfter - fBefore)
			row.fills[s] = fAfter
		} else {
			delta += sp.Density() * trapFraction * exposure * row.height * (1 - fBefore)
			row.fills[s] = 1
		}
	}
	return delta, nil
}

// captureEmpty computes the fill and captured electrons for a brand-new
// top row created above the prior apex, where the prior fill is 0 (no
// traps resided there before).
func (m *TrapManager) captureEmpty(sp TrapSpecies, apex, vCloud, height, dwell, trapFraction float64) (fill, delta float64) {
	exposure := sp.ExposedFraction(apex, vCloud)
	if slow, ok := sp.(slowCaptureSpecies); ok {
		tMax := math.Inf(1)
		if cs, ok := sp.(continuumSpecies); ok {
			tMax = cs.MaxTime()
		}
		fAfter := slow.FillFractionAfterSlowCapture(timeElapsedFor(sp, 0, tMax), dwell)
		return fAfter, sp.Density() * trapFraction * exposure * height * fAfter
	}
	return 1, sp.Density() * trapFraction * exposure * height
}

// timeElapsedFor inverts fBefore back to an elapsed time: through the
// lookup table for continuum species, or with the closed-form inverse
// -log(f)/releaseRate for single-lifetime species.
func timeElapsedFor(sp TrapSpecies, fBefore, tMax float64) float64 {
	if cs, ok := sp.(continuumSpecies); ok {
		return cs.TimeElapsedFromFillFraction(fBefore, tMax)
	}
	if fBefore <= 0 {
		return tMax
	}
	if fBefore >= 1 {
		return 0
	}
	return -math.Log(fBefore) / sp.ReleaseRate()
}

// TotalTrappedElectrons sums the electron content currently held across
// all active watermark rows and species, at each species' full density.
func (m *TrapManager) TotalTrappedElectrons() float64 {
	var total float64
	cumBottom := 0.0
	for w := 0; w < m.wm.nActive; w++ {
		row := m.wm.rows[w]
		top := cumBottom + row.height
		for s, sp := range m.species {
			total += sp.Density() * sp.ExposedFraction(cumBottom, top) * row.height * row.fills[s]
		}
		cumBottom = top
	}
	return total
}
