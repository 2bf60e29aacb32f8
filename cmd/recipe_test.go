package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleRecipe = `
parallel:
  roe:
    kind: standard
    dwell_times: [1]
    prescan_offset: 0
    overscan_start: -1
    empty_traps_between_columns: true
    integer_express_matrix: true
  ccd:
    phases:
      - full_well_depth: 1000
        well_fill_power: 1
    trap_fractions: [1]
  species:
    - kind: instant
      density: 10
      release_lifetime: 1.4427
  express: 1
  window:
    row_start: 0
    row_stop: -1
    col_start: 0
    col_stop: -1
`

func TestLoadRecipeBuildsParallelDirectionConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRecipe), 0o644))

	r, err := loadRecipe(path)
	require.NoError(t, err)
	require.NotNil(t, r.Parallel)
	require.Nil(t, r.Serial)

	cfg, err := r.Parallel.build()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, 1, cfg.Express)
	require.Len(t, cfg.Species, 1)
}

func TestNilDirectionRecipeBuildsNilConfig(t *testing.T) {
	var r *directionRecipe
	cfg, err := r.build()
	require.NoError(t, err)
	require.Nil(t, cfg)
}

func TestSpeciesRecipeRejectsUnknownKind(t *testing.T) {
	sr := speciesRecipe{Kind: "bogus"}
	_, err := sr.build()
	require.Error(t, err)
}

func TestROERecipeRejectsUnknownKind(t *testing.T) {
	rr := roeRecipe{Kind: "bogus", DwellTimes: []float64{1}}
	_, err := rr.build()
	require.Error(t, err)
}

func TestLoadRecipeRejectsMissingFile(t *testing.T) {
	_, err := loadRecipe(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
