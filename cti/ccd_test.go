// cti/ccd_test.go
package cti

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCCDPhaseCloudFractionalVolume(t *testing.T) {
	ph, err := NewCCDPhase(1e3, 0, 1, 0)
	require.NoError(t, err)

	require.Equal(t, 0.0, ph.CloudFractionalVolume(0))
	require.InDelta(t, 0.8, ph.CloudFractionalVolume(800), 1e-12)
	require.Equal(t, 1.0, ph.CloudFractionalVolume(1000))
	require.Equal(t, 1.0, ph.CloudFractionalVolume(2000))
}

func TestCCDPhaseWithNotchAndFirstElectronFill(t *testing.T) {
	ph, err := NewCCDPhase(1e3, 100, 0.5, 0.1)
	require.NoError(t, err)

	require.Equal(t, 0.0, ph.CloudFractionalVolume(100))
	require.Equal(t, 0.0, ph.CloudFractionalVolume(50))
	// At q = W, v = 1 regardless of f and p.
	require.Equal(t, 1.0, ph.CloudFractionalVolume(1000))
	// Just above notch, volume starts at the first-electron-fill height.
	v := ph.CloudFractionalVolume(100.0001)
	require.Greater(t, v, 0.0)
	require.Less(t, v, 0.2)
}

func TestNewCCDPhaseRejectsInvalidParams(t *testing.T) {
	_, err := NewCCDPhase(0, 0, 1, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewCCDPhase(1e3, -1, 1, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewCCDPhase(1e3, 0, 0, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewCCDPhase(1e3, 0, 1, 1)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNewCCDTrapFractionsMustSumToOne(t *testing.T) {
	ph, err := NewCCDPhase(1e3, 0, 1, 0)
	require.NoError(t, err)

	_, err = NewCCD([]CCDPhase{ph, ph}, []float64{0.5, 0.6})
	require.ErrorIs(t, err, ErrInvalidArgument)

	ccd, err := NewCCD([]CCDPhase{ph, ph}, []float64{0.5, 0.5})
	require.NoError(t, err)
	require.Equal(t, 2, ccd.NPhases())
}

func TestNewSingleCCD(t *testing.T) {
	ccd, err := NewSingleCCD(1e3, 0, 1)
	require.NoError(t, err)
	require.Equal(t, 1, ccd.NPhases())
	require.Equal(t, []float64{1}, ccd.TrapFractions)
}
