// cti/clocker.go
package cti

import "fmt"

// ClockDirection drives one column family through a ROE schedule using a
// trap manager, adding CTI along the row axis (row 0 nearest readout).
// It returns a clone of img with cfg.Window clocked; pixels outside the
// window are copied through unchanged.
func ClockDirection(img *Image, cfg *DirectionConfig) (*Image, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	out := img.Clone()
	r0, r1, c0, c1 := cfg.Window.resolve(img.NRows(), img.NCols())
	nRows := r1 - r0
	if nRows <= 0 || c1 <= c0 {
		return out, nil
	}

	matrix, err := cfg.ROE.Setup(nRows, cfg.Express, cfg.Offset)
	if err != nil {
		return nil, err
	}
	maxTransfers := (nRows + cfg.Offset) * cfg.CCD.NPhases()
	if maxTransfers <= 0 {
		maxTransfers = 1
	}

	manager, err := NewTrapManager(cfg.Species, maxTransfers, cfg.AllowNegativePixels)
	if err != nil {
		return nil, err
	}
	manager.SetPruning(cfg.PruneFrequency, cfg.PruneNElectrons)

	dwellOrder := cfg.ROE.DwellOrder(cfg.CCD)
	lastPass := len(matrix) - 1

	firstColumn := true
	for c := c0; c < c1; c++ {
		if cfg.ROE.EmptyTrapsBetweenColumns || firstColumn {
			manager.ResetTrapStates()
		} else {
			manager.RestoreTrapStates()
		}
		firstColumn = false

		for k, passWeights := range matrix {
			// Pass 0 continues from the state the column-level reset/
			// restore above already established; only later passes need
			// to reload the snapshot taken at the end of the previous
			// pass.
			if k > 0 {
				manager.RestoreTrapStates()
			}
			for ri := 0; ri < nRows; ri++ {
				w := passWeights[ri]
				if w == 0 {
					continue
				}
				r := r0 + ri
				for phaseIdx, phase := range cfg.CCD.Phases {
					trapFraction := cfg.CCD.TrapFractions[phaseIdx]
					if trapFraction == 0 {
						// No traps physically reside in this phase; skip
						// the exchange rather than let a no-op call perturb
						// shared watermark state.
						continue
					}
					dwell := dwellTimeForPhase(dwellOrder, phaseIdx)
					delta, err := manager.Exchange(out.Rows[r][c], dwell, phase, trapFraction)
					if err != nil {
						return nil, fmt.Errorf("column %d row %d: %w", c, r, err)
					}
					out.Rows[r][c] += w * delta
				}
			}
			if k != lastPass {
				manager.StoreTrapStates()
			}
		}

		if !cfg.ROE.EmptyTrapsBetweenColumns {
			manager.StoreTrapStates()
		}
	}

	return out, nil
}

// dwellTimeForPhase returns the dwell time for one phase step of a
// transfer; if the ROE declares fewer dwell times than CCD phases, the
// last declared dwell time is reused for remaining phases.
func dwellTimeForPhase(order []float64, phaseIdx int) float64 {
	if phaseIdx < len(order) {
		return order[phaseIdx]
	}
	return order[len(order)-1]
}
