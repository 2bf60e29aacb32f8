// cti/watermarks.go
package cti

// watermarkRow is one stratum in the occupancy stack: a volume height and,
// per species, the fraction of that species' traps filled within it.
type watermarkRow struct {
	height float64
	fills  []float64
}

// watermarkTable is a dense, pre-sized table of watermark rows plus a
// cursor marking how many rows currently carry meaning: the backing slice
// is sized once at construction to the provable upper bound and never
// reallocated inside the clocking loop, whether or not adjacent rows
// later get merged.
type watermarkTable struct {
	rows    []watermarkRow
	nActive int
	nSpecies int

	saved        []watermarkRow
	savedNActive int
}

// newWatermarkTable preallocates capacity = maxNTransfers *
// nWatermarksPerTransfer + 1 rows, the proven upper bound on how many
// strata a column of this length can ever hold.
func newWatermarkTable(maxNTransfers, nWatermarksPerTransfer, nSpecies int) *watermarkTable {
	capRows := maxNTransfers*nWatermarksPerTransfer + 1
	rows := make([]watermarkRow, capRows)
	for i := range rows {
		rows[i].fills = make([]float64, nSpecies)
	}
	saved := make([]watermarkRow, capRows)
	for i := range saved {
		saved[i].fills = make([]float64, nSpecies)
	}
	return &watermarkTable{rows: rows, nSpecies: nSpecies, saved: saved}
}

// reset clears the table to the empty sentinel (0.0 fills, 0 active rows).
func (w *watermarkTable) reset() {
	w.nActive = 0
	for i := range w.rows {
		w.rows[i].height = 0
		for s := range w.rows[i].fills {
			w.rows[i].fills[s] = 0
		}
	}
}

// apex returns the cumulative height of all active rows: the current top
// of the trapped-charge stack, in fractional cloud volume units.
func (w *watermarkTable) apex() float64 {
	var sum float64
	for i := 0; i < w.nActive; i++ {
		sum += w.rows[i].height
	}
	return sum
}

// store snapshots the active rows and cursor into the saved buffer.
func (w *watermarkTable) store() {
	w.savedNActive = w.nActive
	for i := 0; i < w.nActive; i++ {
		w.saved[i].height = w.rows[i].height
		copy(w.saved[i].fills, w.rows[i].fills)
	}
}

// restore reloads the saved snapshot, replacing the current active rows.
func (w *watermarkTable) restore() {
	w.nActive = w.savedNActive
	for i := 0; i < w.nActive; i++ {
		w.rows[i].height = w.saved[i].height
		copy(w.rows[i].fills, w.saved[i].fills)
	}
}

// push appends a new top row with the given height and fills, growing
// nActive by one. Returns ErrCapacityExceeded if the preallocated capacity
// would be exceeded, which indicates a bug in the caller's maxNTransfers
// sizing rather than a condition that can occur with correct sizing.
func (w *watermarkTable) push(height float64, fills []float64) error {
	if w.nActive >= len(w.rows) {
		return ErrCapacityExceeded
	}
	w.rows[w.nActive].height = height
	copy(w.rows[w.nActive].fills, fills)
	w.nActive++
	return nil
}

// insertAt inserts a new row at position idx (0 = bottom of the active
// stack), shifting rows at and above idx up by one.
func (w *watermarkTable) insertAt(idx int, height float64, fills []float64) error {
	if w.nActive >= len(w.rows) {
		return ErrCapacityExceeded
	}
	for i := w.nActive; i > idx; i-- {
		w.rows[i].height = w.rows[i-1].height
		copy(w.rows[i].fills, w.rows[i-1].fills)
	}
	w.rows[idx].height = height
	copy(w.rows[idx].fills, fills)
	w.nActive++
	return nil
}

// mergeAdjacent coalesces adjacent active rows whose per-species fills are
// equal within tolerance, summing their heights. Correctness-preserving:
// two strata with identical fill state behave identically regardless of
// how the height between them is subdivided.
func (w *watermarkTable) mergeAdjacent(tolerance float64) {
	if w.nActive < 2 {
		return
	}
	write := 0
	for read := 1; read < w.nActive; read++ {
		if rowsEqualWithinTolerance(w.rows[write], w.rows[read], tolerance) {
			w.rows[write].height += w.rows[read].height
			continue
		}
		write++
		if write != read {
			w.rows[write].height = w.rows[read].height
			copy(w.rows[write].fills, w.rows[read].fills)
		}
	}
	w.nActive = write + 1
}

func rowsEqualWithinTolerance(a, b watermarkRow, tol float64) bool {
	for s := range a.fills {
		d := a.fills[s] - b.fills[s]
		if d < -tol || d > tol {
			return false
		}
	}
	return true
}

// pruneBelow merges any active row whose total trapped-electron content
// (summed across species, weighted by density*exposure*height*fill) falls
// below nElectrons into the row above it (or below, if it is the top
// row). Lossy by design: callers gate this behind prune_frequency to
// trade off watermark resolution against table size.
func (w *watermarkTable) pruneBelow(species []TrapSpecies, nElectrons float64) int {
	if w.nActive < 2 {
		return 0
	}
	pruned := 0
	i := 0
	for i < w.nActive {
		total := 0.0
		for s, sp := range species {
			total += sp.Density() * sp.ExposedFraction(0, 1) * w.rows[i].height * w.rows[i].fills[s]
		}
		if total < nElectrons {
			neighbor := i + 1
			if neighbor >= w.nActive {
				neighbor = i - 1
			}
			if neighbor >= 0 && neighbor < w.nActive {
				lo, hi := i, neighbor
				if hi < lo {
					lo, hi = hi, lo
				}
				loHeight := w.rows[lo].height
				hiHeight := w.rows[hi].height
				w.rows[lo].height = loHeight + hiHeight
				for s := range w.rows[lo].fills {
					// Weighted average fill, height-proportional.
					h0 := w.rows[lo].height
					if h0 > 0 {
						w.rows[lo].fills[s] = (w.rows[lo].fills[s]*loHeight + w.rows[hi].fills[s]*hiHeight) / h0
					}
				}
				w.removeAt(hi)
				pruned++
				continue
			}
		}
		i++
	}
	return pruned
}

// removeAt deletes the row at idx, shifting rows above it down by one.
func (w *watermarkTable) removeAt(idx int) {
	for i := idx; i < w.nActive-1; i++ {
		w.rows[i].height = w.rows[i+1].height
		copy(w.rows[i].fills, w.rows[i+1].fills)
	}
	w.nActive--
}
