package lstio

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeRawStreamFile creates a small raw file with a CameraConfig row and
// two event rows. With signature set, the Events header carries the camera
// server cards checked by IsCompatible.
func writeRawStreamFile(t *testing.T, path string, signature bool) {
	t.Helper()

	osf, err := os.Create(path)
	require.NoError(t, err)
	f, err := fitsio.Create(osf)
	require.NoError(t, err)

	phdu, err := fitsio.NewPrimaryHDU(nil)
	require.NoError(t, err)
	require.NoError(t, f.Write(phdu))

	cfg := CameraConfig{
		ConfigurationID:   2008,
		Date:              1.6e9,
		NumPixels:         14,
		NumSamples:        NSamples,
		ExpectedPixelsID:  []uint16{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13},
		DataModelVersion:  "1.0",
		TelescopeID:       TelescopeID,
		CSSerial:          "CS-TEST",
		NumModules:        2,
		ExpectedModulesID: []uint16{0, 1},
		IdaqVersion:       40000,
		CdhsVersion:       35000,
		Algorithms:        "default",
		PreProcAlgorithms: "none",
	}
	cfgTable, err := fitsio.NewTableFrom("CameraConfig", cfg, fitsio.BINARY_TBL)
	require.NoError(t, err)
	require.NoError(t, cfgTable.Write(&cfg))
	require.NoError(t, f.Write(cfgTable))
	require.NoError(t, cfgTable.Close())

	events := []RawEvent{
		{
			ConfigurationID:    2008,
			EventID:            1,
			TelEventID:         1,
			TriggerType:        1,
			Waveform:           []uint16{100, 101, 102, 103},
			PixelStatus:        []uint8{0b1100, 0b1100},
			ModuleStatus:       []uint8{1, 1},
			ExtdevicesPresence: 0b111,
			TIBData:            make([]uint8, tibBlockSize),
			CDTSData:           make([]uint8, uctsBlockSize),
			SWATData:           make([]uint8, swatBlockSize),
			Counters:           make([]uint8, 2*dragonModuleSize),
			FirstCapacitorID:   []uint16{10, 20},
		},
		{
			ConfigurationID: 2008,
			EventID:         2,
			TelEventID:      2,
			TriggerType:     1,
			Waveform:        []uint16{200, 201, 202, 203},
			PixelStatus:     []uint8{0b1100, 0b1100},
		},
	}
	evtTable, err := fitsio.NewTableFrom("Events", events[0], fitsio.BINARY_TBL)
	require.NoError(t, err)
	if signature {
		require.NoError(t, evtTable.Header().Append(
			fitsio.Card{Name: "ZTABLE", Value: true},
			fitsio.Card{Name: "ORIGIN", Value: "CTA"},
			fitsio.Card{Name: "PBFHEAD", Value: "R1.CameraEvent"},
		))
	}
	for i := range events {
		require.NoError(t, evtTable.Write(&events[i]))
	}
	require.NoError(t, f.Write(evtTable))
	require.NoError(t, evtTable.Close())

	require.NoError(t, f.Close())
	require.NoError(t, osf.Close())
}

func TestOpenRawFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "LST-1.1.Run02008.0000.fits")
	writeRawStreamFile(t, path, true)

	r, err := OpenRawFile(path)
	require.NoError(t, err)
	defer r.Close()

	cfg := r.Config()
	assert.Equal(t, uint64(2008), cfg.ConfigurationID)
	assert.Equal(t, int32(14), cfg.NumPixels)
	assert.Equal(t, int32(2), cfg.NumModules)
	assert.Equal(t, "CS-TEST", cfg.CSSerial)
	assert.Equal(t, uint32(40000), cfg.IdaqVersion)
	assert.Equal(t, []uint16{0, 1}, cfg.ExpectedModulesID)
	assert.Len(t, cfg.ExpectedPixelsID, 14)
	assert.Equal(t, int64(2), r.NumEvents())

	evt, err := r.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), evt.EventID)
	assert.Equal(t, uint16(1), evt.TriggerType)
	assert.Equal(t, []uint16{100, 101, 102, 103}, evt.Waveform)
	assert.Equal(t, uint16(0b111), evt.ExtdevicesPresence)
	assert.Len(t, evt.TIBData, tibBlockSize)
	assert.Len(t, evt.Counters, 2*dragonModuleSize)

	evt, err = r.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), evt.EventID)

	_, err = r.NextEvent()
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpenRawFileMissingConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.fits")
	osf, err := os.Create(path)
	require.NoError(t, err)
	f, err := fitsio.Create(osf)
	require.NoError(t, err)
	phdu, err := fitsio.NewPrimaryHDU(nil)
	require.NoError(t, err)
	require.NoError(t, f.Write(phdu))
	require.NoError(t, f.Close())
	require.NoError(t, osf.Close())

	_, err = OpenRawFile(path)
	var missing ErrMissingTable
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "CameraConfig", missing.TableName)
}

func TestIsCompatible(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "LST-1.1.Run02008.0000.fits")
	writeRawStreamFile(t, good, true)
	assert.True(t, IsCompatible(good))

	// Same tables without the camera server signature cards.
	plain := filepath.Join(dir, "LST-1.1.Run02009.0000.fits")
	writeRawStreamFile(t, plain, false)
	assert.False(t, IsCompatible(plain))

	assert.False(t, IsCompatible(filepath.Join(dir, "missing.fits")))

	notFits := filepath.Join(dir, "notes.fits")
	require.NoError(t, os.WriteFile(notFits, []byte("not a fits file"), 0o644))
	assert.False(t, IsCompatible(notFits))
}

func TestParseStreamFilename(t *testing.T) {
	info, ok := parseStreamFilename("LST-1.1.Run02008.0000.fits.fz")
	require.True(t, ok)
	assert.Equal(t, "LST-1", info.Tel)
	assert.Equal(t, 1, info.Stream)
	assert.Equal(t, 2008, info.Run)
	assert.Equal(t, 0, info.Subrun)
	assert.Equal(t, ".fits.fz", info.Ext)

	info, ok = parseStreamFilename("LST-1.4.Run17043.0122.fits.fz")
	require.True(t, ok)
	assert.Equal(t, 4, info.Stream)
	assert.Equal(t, 17043, info.Run)
	assert.Equal(t, 122, info.Subrun)

	for _, name := range []string{
		"run123.fits.fz",
		"LST-1.Run02008.0000.fits.fz",
		"MAGIC-1.1.Run02008.0000.fits.fz",
	} {
		_, ok := parseStreamFilename(name)
		assert.False(t, ok, name)
	}
}

func TestAllStreamPaths(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"LST-1.1.Run02008.0000.fits.fz",
		"LST-1.2.Run02008.0000.fits.fz",
		"LST-1.3.Run02008.0000.fits.fz",
		"LST-1.1.Run02008.0001.fits.fz",
		"LST-1.1.Run02009.0000.fits.fz",
	}
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	paths, err := allStreamPaths(filepath.Join(dir, names[0]), true)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "LST-1.1.Run02008.0000.fits.fz"),
		filepath.Join(dir, "LST-1.2.Run02008.0000.fits.fz"),
		filepath.Join(dir, "LST-1.3.Run02008.0000.fits.fz"),
	}, paths)

	// With stream discovery disabled only the given file is opened.
	paths, err = allStreamPaths(filepath.Join(dir, names[0]), false)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, names[0])}, paths)

	// Names outside the stream pattern pass through unchanged.
	paths, err = allStreamPaths("/data/run123.fits.fz", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"/data/run123.fits.fz"}, paths)
}
