package lstio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfiguration(t *testing.T) {
	config := DefaultConfiguration()

	assert.True(t, config.AllStreams)
	assert.True(t, config.FillTriggerInfo)
	assert.Equal(t, "ucts", config.DefaultTriggerType)
	assert.Nil(t, config.UseFlatfieldHeuristic)
	assert.Equal(t, float32(3000), config.MinFlatfieldADC)
	assert.Equal(t, float32(12000), config.MaxFlatfieldADC)
	assert.Equal(t, float32(0.8), config.MinFlatfieldPixelFraction)
	assert.True(t, config.ApplyDRS4Corrections)
	assert.Equal(t, 400, config.Offset)
	assert.Equal(t, 3, config.R1SampleStart)
	assert.Equal(t, 39, config.R1SampleEnd)
	assert.Equal(t, float32(3500), config.GainSelectionThreshold)
	assert.Equal(t, 1.0, config.CalibScaleHighGain)
	assert.Equal(t, "LST1", config.DBName)
	assert.Equal(t, 4, config.CompressionLevel)
}

func TestLoadConfiguration(t *testing.T) {
	content := `{
	"file_in": "LST-1.1.Run02008.0000.fits.fz",
	"default_trigger_type": "tib",
	"use_flatfield_heuristic": false,
	"select_gain": false,
	"max_events": 100
}`
	filename := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(filename, []byte(content), 0o644))

	config, err := LoadConfiguration(filename)
	require.NoError(t, err)

	assert.Equal(t, "LST-1.1.Run02008.0000.fits.fz", config.FileIn)
	assert.Equal(t, "tib", config.DefaultTriggerType)
	require.NotNil(t, config.UseFlatfieldHeuristic)
	assert.False(t, *config.UseFlatfieldHeuristic)
	assert.False(t, config.SelectGain)
	assert.Equal(t, 100, config.MaxEvents)

	// Settings missing from the file keep their defaults.
	assert.True(t, config.AllStreams)
	assert.Equal(t, 400, config.Offset)
}

func TestLoadConfigurationErrors(t *testing.T) {
	_, err := LoadConfiguration(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	filename := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(filename, []byte("{"), 0o644))
	_, err = LoadConfiguration(filename)
	assert.Error(t, err)
}
