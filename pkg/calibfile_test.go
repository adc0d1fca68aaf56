package lstio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDRS4PedestalFile(t *testing.T, path string, raw []int16) {
	t.Helper()

	osf, err := os.Create(path)
	require.NoError(t, err)
	f, err := fitsio.Create(osf)
	require.NoError(t, err)

	phdu, err := fitsio.NewPrimaryHDU(nil)
	require.NoError(t, err)
	require.NoError(t, f.Write(phdu))

	img := fitsio.NewImage(16, []int{NCapacitorsPixel, NPixels, NGains})
	require.NoError(t, img.Write(&raw))
	require.NoError(t, f.Write(img))
	require.NoError(t, img.Close())

	require.NoError(t, f.Close())
	require.NoError(t, osf.Close())
}

func TestReadDRS4PedestalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drs4_pedestal.fits")
	raw := make([]int16, NGains*NPixels*NCapacitorsPixel)
	for i := range raw {
		raw[i] = int16(400 + i%100)
	}
	writeDRS4PedestalFile(t, path, raw)

	pedestal, err := readDRS4PedestalFile(path, 400)
	require.NoError(t, err)
	require.Len(t, pedestal, NGains*NPixels*pedestalStride)

	// Second gain-pixel ring: offset removed, first NSamples cells
	// repeated past the ring end.
	gp := 1
	ring := raw[gp*NCapacitorsPixel : (gp+1)*NCapacitorsPixel]
	dst := pedestal[gp*pedestalStride : (gp+1)*pedestalStride]
	assert.Equal(t, ring[0]-400, dst[0])
	assert.Equal(t, ring[NCapacitorsPixel-1]-400, dst[NCapacitorsPixel-1])
	assert.Equal(t, ring[0]-400, dst[NCapacitorsPixel])
	assert.Equal(t, ring[NSamples-1]-400, dst[NCapacitorsPixel+NSamples-1])
}

func TestReadDRS4PedestalFileMissing(t *testing.T) {
	_, err := readDRS4PedestalFile(filepath.Join(t.TempDir(), "nope.fits"), 0)
	var open ErrOpenFile
	require.ErrorAs(t, err, &open)
}
