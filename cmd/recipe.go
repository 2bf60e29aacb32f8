package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jkeger/arctic-go/cti"
)

// recipe is the YAML-facing description of one AddCTI/RemoveCTI call: a
// user writes one file describing both clocking directions instead of
// juggling dozens of flags.
type recipe struct {
	Parallel *directionRecipe `yaml:"parallel"`
	Serial   *directionRecipe `yaml:"serial"`
}

type directionRecipe struct {
	ROE     roeRecipe       `yaml:"roe"`
	CCD     ccdRecipe       `yaml:"ccd"`
	Species []speciesRecipe `yaml:"species"`

	Express int          `yaml:"express"`
	Offset  int          `yaml:"offset"`
	Window  windowRecipe `yaml:"window"`

	AllowNegativePixels bool    `yaml:"allow_negative_pixels"`
	PruneFrequency      int     `yaml:"prune_frequency"`
	PruneNElectrons     float64 `yaml:"prune_n_electrons"`
}

type roeRecipe struct {
	Kind                        string    `yaml:"kind"`
	DwellTimes                  []float64 `yaml:"dwell_times"`
	PrescanOffset               int       `yaml:"prescan_offset"`
	OverscanStart               int       `yaml:"overscan_start"`
	NPumps                      int       `yaml:"n_pumps"`
	EmptyTrapsBetweenColumns    bool      `yaml:"empty_traps_between_columns"`
	EmptyTrapsForFirstTransfers bool      `yaml:"empty_traps_for_first_transfers"`
	ForceReleaseAwayFromReadout bool      `yaml:"force_release_away_from_readout"`
	IntegerExpressMatrix        bool      `yaml:"integer_express_matrix"`
}

type ccdRecipe struct {
	Phases        []ccdPhaseRecipe `yaml:"phases"`
	TrapFractions []float64        `yaml:"trap_fractions"`
}

type ccdPhaseRecipe struct {
	FullWellDepth     float64 `yaml:"full_well_depth"`
	WellNotchDepth    float64 `yaml:"well_notch_depth"`
	WellFillPower     float64 `yaml:"well_fill_power"`
	FirstElectronFill float64 `yaml:"first_electron_fill"`
}

type speciesRecipe struct {
	Kind             string  `yaml:"kind"` // instant, slow, instant_continuum, slow_continuum
	Density          float64 `yaml:"density"`
	ReleaseLifetime  float64 `yaml:"release_lifetime"`
	Sigma            float64 `yaml:"sigma"`
	CaptureTimescale float64 `yaml:"capture_timescale"`
	WellVolumeLow    float64 `yaml:"well_volume_low"`
	WellVolumeHigh   float64 `yaml:"well_volume_high"`
}

type windowRecipe struct {
	RowStart int `yaml:"row_start"`
	RowStop  int `yaml:"row_stop"`
	ColStart int `yaml:"col_start"`
	ColStop  int `yaml:"col_stop"`
}

// loadRecipe reads and parses a clocking recipe file. A missing or
// unreadable file is a fatal CLI error rather than a library-level one.
func loadRecipe(path string) (*recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading recipe %q: %w", path, err)
	}
	var r recipe
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing recipe %q: %w", path, err)
	}
	return &r, nil
}

func (r *directionRecipe) build() (*cti.DirectionConfig, error) {
	if r == nil {
		return nil, nil
	}

	roe, err := r.ROE.build()
	if err != nil {
		return nil, fmt.Errorf("roe: %w", err)
	}

	ccd, err := r.CCD.build()
	if err != nil {
		return nil, fmt.Errorf("ccd: %w", err)
	}

	species := make([]cti.TrapSpecies, 0, len(r.Species))
	for i, sr := range r.Species {
		sp, err := sr.build()
		if err != nil {
			return nil, fmt.Errorf("species[%d]: %w", i, err)
		}
		species = append(species, sp)
	}

	return &cti.DirectionConfig{
		ROE:                 roe,
		CCD:                 ccd,
		Species:             species,
		Express:             r.Express,
		Offset:              r.Offset,
		Window:              r.Window.build(),
		AllowNegativePixels: r.AllowNegativePixels,
		PruneFrequency:      r.PruneFrequency,
		PruneNElectrons:     r.PruneNElectrons,
	}, nil
}

func (r roeRecipe) build() (*cti.ROE, error) {
	switch r.Kind {
	case "", "standard":
		return cti.NewROE(r.DwellTimes, r.PrescanOffset, r.OverscanStart,
			r.EmptyTrapsBetweenColumns, r.EmptyTrapsForFirstTransfers,
			r.ForceReleaseAwayFromReadout, r.IntegerExpressMatrix)
	case "charge_injection":
		return cti.NewROEChargeInjection(r.DwellTimes, r.PrescanOffset, r.OverscanStart,
			r.EmptyTrapsBetweenColumns, r.ForceReleaseAwayFromReadout, r.IntegerExpressMatrix)
	case "trap_pumping":
		return cti.NewROETrapPumping(r.DwellTimes, r.NPumps,
			r.EmptyTrapsForFirstTransfers, r.IntegerExpressMatrix)
	default:
		return nil, fmt.Errorf("unknown roe kind %q", r.Kind)
	}
}

func (c ccdRecipe) build() (*cti.CCD, error) {
	phases := make([]cti.CCDPhase, 0, len(c.Phases))
	for i, p := range c.Phases {
		ph, err := cti.NewCCDPhase(p.FullWellDepth, p.WellNotchDepth, p.WellFillPower, p.FirstElectronFill)
		if err != nil {
			return nil, fmt.Errorf("phase[%d]: %w", i, err)
		}
		phases = append(phases, ph)
	}
	return cti.NewCCD(phases, c.TrapFractions)
}

func (s speciesRecipe) build() (cti.TrapSpecies, error) {
	switch s.Kind {
	case "", "instant":
		return cti.NewTrapInstantCapture(s.Density, s.ReleaseLifetime, s.WellVolumeLow, s.WellVolumeHigh)
	case "slow":
		return cti.NewTrapSlowCapture(s.Density, s.ReleaseLifetime, s.CaptureTimescale, s.WellVolumeLow, s.WellVolumeHigh)
	case "instant_continuum":
		return cti.NewTrapInstantCaptureContinuum(s.Density, s.ReleaseLifetime, s.Sigma, s.WellVolumeLow, s.WellVolumeHigh)
	case "slow_continuum":
		return cti.NewTrapSlowCaptureContinuum(s.Density, s.ReleaseLifetime, s.Sigma, s.CaptureTimescale, s.WellVolumeLow, s.WellVolumeHigh)
	default:
		return nil, fmt.Errorf("unknown species kind %q", s.Kind)
	}
}

func (w windowRecipe) build() cti.Window {
	win := cti.FullWindow()
	win.RowStart, win.RowStop = w.RowStart, w.RowStop
	win.ColStart, win.ColStop = w.ColStart, w.ColStop
	return win
}
