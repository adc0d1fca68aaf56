package lstio

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// OpticsDescription holds the mirror parameters of the telescope.
type OpticsDescription struct {
	Name                   string
	SizeType               string
	ReflectorShape         string
	EquivalentFocalLengthM float64
	EffectiveFocalLengthM  float64
	MirrorAreaM2           float64
	NumMirrorTiles         int
}

// LSTOptics describes the LST reflector.
var LSTOptics = OpticsDescription{
	Name:                   "LST",
	SizeType:               "LST",
	ReflectorShape:         "parabolic",
	EquivalentFocalLengthM: 28,
	EffectiveFocalLengthM:  29.30565,
	MirrorAreaM2:           386.73,
	NumMirrorTiles:         198,
}

// CameraGeometry holds the pixel positions in the camera frame.
type CameraGeometry struct {
	PixXM    []float64
	PixYM    []float64
	ModuleID []int
}

func newCameraGeometry() *CameraGeometry {
	return &CameraGeometry{
		PixXM:    make([]float64, NPixels),
		PixYM:    make([]float64, NPixels),
		ModuleID: make([]int, NPixels),
	}
}

// readCameraGeometryFile parses a pixel position file with one line per
// pixel: pixel id, module id, x [m], y [m]. Lines starting with # are
// skipped.
func readCameraGeometryFile(filename string) (*CameraGeometry, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, ErrOpenFile{Filename: filename, Err: err}
	}
	defer f.Close()

	geometry := newCameraGeometry()
	nRows := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return nil, fmt.Errorf("%s: malformed geometry line %q", filename, line)
		}
		pixel, err := strconv.Atoi(fields[0])
		if err != nil || pixel < 0 || pixel >= NPixels {
			return nil, fmt.Errorf("%s: bad pixel id in line %q", filename, line)
		}
		module, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("%s: bad module id in line %q", filename, line)
		}
		x, errX := strconv.ParseFloat(fields[2], 64)
		y, errY := strconv.ParseFloat(fields[3], 64)
		if errX != nil || errY != nil {
			return nil, fmt.Errorf("%s: bad position in line %q", filename, line)
		}
		geometry.PixXM[pixel] = x
		geometry.PixYM[pixel] = y
		geometry.ModuleID[pixel] = module
		nRows++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if nRows != NPixels {
		return nil, ErrShapeMismatch{
			What:     "camera geometry rows",
			Expected: fmt.Sprint(NPixels),
			Got:      fmt.Sprint(nRows),
		}
	}
	return geometry, nil
}

// CameraReadout describes the sampling of the camera.
type CameraReadout struct {
	Name            string
	NumPixels       int
	NumChannels     int
	NumSamples      int
	SamplingRateGHz float64
	// ReferencePulseShape per gain, oversampled.
	ReferencePulseShape [][]float64
	// ReferencePulseSampleWidthNS is the time step of the oversampled
	// pulse shapes.
	ReferencePulseSampleWidthNS float64
}

// readPulseShapes parses the oversampled reference pulse file: one line
// per time step with time [ns], high gain and low gain amplitude.
func readPulseShapes(filename string) (*CameraReadout, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, ErrOpenFile{Filename: filename, Err: err}
	}
	defer f.Close()

	var times []float64
	shapes := make([][]float64, NGains)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 1+NGains {
			return nil, fmt.Errorf("%s: malformed pulse shape line %q", filename, line)
		}
		t, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%s: bad time in line %q", filename, line)
		}
		times = append(times, t)
		for gain := 0; gain < NGains; gain++ {
			v, err := strconv.ParseFloat(fields[1+gain], 64)
			if err != nil {
				return nil, fmt.Errorf("%s: bad amplitude in line %q", filename, line)
			}
			shapes[gain] = append(shapes[gain], v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(times) < 2 {
		return nil, fmt.Errorf("%s: not enough pulse shape samples", filename)
	}

	return &CameraReadout{
		Name:                        "LSTCam",
		NumPixels:                   NPixels,
		NumChannels:                 NGains,
		NumSamples:                  NSamples,
		SamplingRateGHz:             1.0,
		ReferencePulseShape:         shapes,
		ReferencePulseSampleWidthNS: times[1] - times[0],
	}, nil
}

// TelescopeDescription bundles the instrument description of one
// telescope.
type TelescopeDescription struct {
	Name     string
	Optics   OpticsDescription
	Geometry *CameraGeometry
	Readout  *CameraReadout
}

// SubarrayDescription describes the (single telescope) subarray read from
// the raw files.
type SubarrayDescription struct {
	Name              string
	TelID             int
	Tel               TelescopeDescription
	// PositionM is the telescope position in the ground frame relative
	// to the reference location: x north, y west, z up.
	PositionM         [3]float64
	ReferenceLocation EarthLocation
}

// NewSubarray builds the subarray description for the given telescope.
func NewSubarray(telID int, geometry *CameraGeometry, readout *CameraReadout) *SubarrayDescription {
	location, ok := LSTLocations[telID]
	if !ok {
		location = LST1Location
	}
	return &SubarrayDescription{
		Name:  fmt.Sprintf("LST-%d subarray", telID),
		TelID: telID,
		Tel: TelescopeDescription{
			Name:     "LST",
			Optics:   LSTOptics,
			Geometry: geometry,
			Readout:  readout,
		},
		PositionM:         groundFrameFromEarthLocation(location, ReferenceLocation),
		ReferenceLocation: LST1Location,
	}
}

const earthRadiusM = 6371.0e3

// groundFrameFromEarthLocation converts a geodetic position into ground
// frame coordinates relative to the reference location.
func groundFrameFromEarthLocation(location, reference EarthLocation) [3]float64 {
	latRef := reference.LatDeg * math.Pi / 180
	north := (location.LatDeg - reference.LatDeg) * math.Pi / 180 * earthRadiusM
	east := (location.LonDeg - reference.LonDeg) * math.Pi / 180 * earthRadiusM * math.Cos(latRef)
	up := location.HeightM - reference.HeightM
	return [3]float64{north, -east, up}
}
