package lstio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGeometryFile(t *testing.T, nPixels int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("# pixel module x y\n")
	for pixel := 0; pixel < nPixels; pixel++ {
		fmt.Fprintf(&b, "%d %d %f %f\n", pixel, pixel/NPixelsModule, float64(pixel)*0.001, -float64(pixel)*0.001)
	}
	filename := filepath.Join(t.TempDir(), "geometry.txt")
	require.NoError(t, os.WriteFile(filename, []byte(b.String()), 0o644))
	return filename
}

func TestReadCameraGeometryFile(t *testing.T) {
	geometry, err := readCameraGeometryFile(writeGeometryFile(t, NPixels))
	require.NoError(t, err)

	require.Len(t, geometry.PixXM, NPixels)
	assert.InDelta(t, 0.01, geometry.PixXM[10], 1e-9)
	assert.InDelta(t, -0.01, geometry.PixYM[10], 1e-9)
	assert.Equal(t, 1, geometry.ModuleID[10])
	assert.Equal(t, NModules-1, geometry.ModuleID[NPixels-1])
}

func TestReadCameraGeometryFileWrongRowCount(t *testing.T) {
	_, err := readCameraGeometryFile(writeGeometryFile(t, NPixels-1))
	var shapeErr ErrShapeMismatch
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, "camera geometry rows", shapeErr.What)
}

func TestReadPulseShapes(t *testing.T) {
	content := `# t hg lg
0.0 0.0 0.0
0.2 0.5 0.4
0.4 1.0 0.9
0.6 0.5 0.5
`
	filename := filepath.Join(t.TempDir(), "pulse.txt")
	require.NoError(t, os.WriteFile(filename, []byte(content), 0o644))

	readout, err := readPulseShapes(filename)
	require.NoError(t, err)

	assert.Equal(t, NPixels, readout.NumPixels)
	assert.Equal(t, NGains, readout.NumChannels)
	assert.InDelta(t, 1.0, readout.SamplingRateGHz, 1e-9)
	assert.InDelta(t, 0.2, readout.ReferencePulseSampleWidthNS, 1e-9)
	require.Len(t, readout.ReferencePulseShape, NGains)
	assert.Equal(t, []float64{0, 0.5, 1.0, 0.5}, readout.ReferencePulseShape[HighGain])
	assert.Equal(t, []float64{0, 0.4, 0.9, 0.5}, readout.ReferencePulseShape[LowGain])
}

func TestNewSubarray(t *testing.T) {
	subarray := NewSubarray(1, nil, nil)

	assert.Equal(t, "LST-1 subarray", subarray.Name)
	assert.Equal(t, 1, subarray.TelID)
	assert.Equal(t, "parabolic", subarray.Tel.Optics.ReflectorShape)
	assert.InDelta(t, 28, subarray.Tel.Optics.EquivalentFocalLengthM, 1e-9)

	// LST-1 sits slightly south west of the array reference point, just
	// above the MC observation level.
	assert.InDelta(t, 2184+15.883-2199, subarray.PositionM[2], 1e-9)
	assert.Less(t, subarray.PositionM[0], 0.0)
	assert.Greater(t, subarray.PositionM[1], 0.0)
}

func TestGroundFrameFromEarthLocation(t *testing.T) {
	// The reference point maps to the origin.
	pos := groundFrameFromEarthLocation(ReferenceLocation, ReferenceLocation)
	assert.InDelta(t, 0, pos[0], 1e-9)
	assert.InDelta(t, 0, pos[1], 1e-9)
	assert.InDelta(t, 0, pos[2], 1e-9)

	// A point north and east of the reference.
	north := ReferenceLocation
	north.LatDeg += 0.001
	north.LonDeg += 0.001
	north.HeightM += 10
	pos = groundFrameFromEarthLocation(north, ReferenceLocation)
	assert.Greater(t, pos[0], 0.0)
	// East is negative y in the ground frame.
	assert.Less(t, pos[1], 0.0)
	assert.InDelta(t, 10, pos[2], 1e-9)
}
