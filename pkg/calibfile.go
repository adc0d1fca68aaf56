package lstio

import (
	"fmt"
	"os"

	"github.com/astrogo/fitsio"
	hdf5 "github.com/next-exp/hdf5-go"
)

// readCalibrationFile loads the flatfield calibration coefficients and
// pixel masks from the hdf5 calibration file.
func readCalibrationFile(filename string) (*TelescopeCalibration, error) {
	f, err := hdf5.OpenFile(filename, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, ErrOpenFile{Filename: filename, Err: err}
	}
	defer f.Close()

	calib := &TelescopeCalibration{}

	base := fmt.Sprintf("tel_%d/calibration/", TelescopeID)
	if calib.DcToPe, err = readFloat64Dataset(f, base+"dc_to_pe", NGains*NPixels); err != nil {
		return nil, err
	}
	if calib.PedestalPerSample, err = readFloat64Dataset(f, base+"pedestal_per_sample", NGains*NPixels); err != nil {
		return nil, err
	}
	if calib.TimeCorrection, err = readFloat64Dataset(f, base+"time_correction", NGains*NPixels); err != nil {
		return nil, err
	}
	if calib.UnusablePixels, err = readBoolDataset(f, base+"unusable_pixels", NGains*NPixels); err != nil {
		return nil, err
	}

	base = fmt.Sprintf("tel_%d/pixel_status/", TelescopeID)
	if calib.PedestalFailingPixels, err = readBoolDataset(f, base+"pedestal_failing_pixels", NGains*NPixels); err != nil {
		return nil, err
	}
	if calib.FlatfieldFailingPixels, err = readBoolDataset(f, base+"flatfield_failing_pixels", NGains*NPixels); err != nil {
		return nil, err
	}

	logger.Info("Loaded calibration coefficients from "+filename, "calib")
	return calib, nil
}

// readDRS4TimeCalibrationFile loads the Fourier coefficients of the
// sampling time calibration, flat (NGains, NPixels, nHarmonics).
func readDRS4TimeCalibrationFile(filename string) (fan, fbn []float64, nHarmonics int, err error) {
	f, err := hdf5.OpenFile(filename, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, nil, 0, ErrOpenFile{Filename: filename, Err: err}
	}
	defer f.Close()

	dset, err := f.OpenDataset("fan")
	if err != nil {
		return nil, nil, 0, err
	}
	dims, _, err := dset.Space().SimpleExtentDims()
	dset.Close()
	if err != nil {
		return nil, nil, 0, err
	}
	if len(dims) != 3 || dims[0] != NGains || dims[1] != NPixels {
		return nil, nil, 0, ErrShapeMismatch{
			What:     "fan",
			Expected: fmt.Sprintf("(%d, %d, n)", NGains, NPixels),
			Got:      fmt.Sprint(dims),
		}
	}
	nHarmonics = int(dims[2])

	if fan, err = readFloat64Dataset(f, "fan", NGains*NPixels*nHarmonics); err != nil {
		return nil, nil, 0, err
	}
	if fbn, err = readFloat64Dataset(f, "fbn", NGains*NPixels*nHarmonics); err != nil {
		return nil, nil, 0, err
	}
	return fan, fbn, nHarmonics, nil
}

func readFloat64Dataset(f *hdf5.File, name string, n int) ([]float64, error) {
	dset, err := f.OpenDataset(name)
	if err != nil {
		return nil, err
	}
	defer dset.Close()
	data := make([]float64, n)
	if err := dset.Read(&data); err != nil {
		return nil, err
	}
	return data, nil
}

func readBoolDataset(f *hdf5.File, name string, n int) ([]bool, error) {
	dset, err := f.OpenDataset(name)
	if err != nil {
		return nil, err
	}
	defer dset.Close()
	raw := make([]uint8, n)
	if err := dset.Read(&raw); err != nil {
		return nil, err
	}
	data := make([]bool, n)
	for i, v := range raw {
		data[i] = v != 0
	}
	return data, nil
}

// readDRS4PedestalFile loads the per-capacitor baselines from the fits
// pedestal file. The first NSamples cells of each ring are repeated past
// its end so the per-event subtraction needs no wrap handling, and the
// configured offset is removed once here instead of per event.
func readDRS4PedestalFile(filename string, offset int) ([]int16, error) {
	osf, err := os.Open(filename)
	if err != nil {
		return nil, ErrOpenFile{Filename: filename, Err: err}
	}
	defer osf.Close()
	f, err := fitsio.Open(osf)
	if err != nil {
		return nil, ErrOpenFile{Filename: filename, Err: err}
	}
	defer f.Close()

	if len(f.HDUs()) < 2 {
		return nil, ErrMissingTable{Filename: filename, TableName: "pedestal image"}
	}
	img, ok := f.HDU(1).(fitsio.Image)
	if !ok {
		return nil, ErrMissingTable{Filename: filename, TableName: "pedestal image"}
	}
	raw := make([]int16, NGains*NPixels*NCapacitorsPixel)
	if err := img.Read(&raw); err != nil {
		return nil, err
	}

	pedestal := make([]int16, NGains*NPixels*pedestalStride)
	for gp := 0; gp < NGains*NPixels; gp++ {
		ring := raw[gp*NCapacitorsPixel : (gp+1)*NCapacitorsPixel]
		dst := pedestal[gp*pedestalStride : (gp+1)*pedestalStride]
		copy(dst, ring)
		copy(dst[NCapacitorsPixel:pedestalStride], ring[:NSamples])
		if offset != 0 {
			for i := 0; i < pedestalStride; i++ {
				dst[i] -= int16(offset)
			}
		}
	}
	return pedestal, nil
}

// readPedestalIDs loads the event ids of the interleaved pedestal events
// identified offline for this run.
func readPedestalIDs(filename string) (map[uint64]struct{}, error) {
	f, err := hdf5.OpenFile(filename, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, ErrOpenFile{Filename: filename, Err: err}
	}
	defer f.Close()

	dset, err := f.OpenDataset("interleaved_pedestal_ids/event_id")
	if err != nil {
		return nil, err
	}
	defer dset.Close()
	dims, _, err := dset.Space().SimpleExtentDims()
	if err != nil {
		return nil, err
	}
	n := 1
	for _, d := range dims {
		n *= int(d)
	}
	ids := make([]uint64, n)
	if err := dset.Read(&ids); err != nil {
		return nil, err
	}
	set := make(map[uint64]struct{}, n)
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}
