package lstio

import (
	"fmt"
	"math"
)

const pedestalStride = NCapacitorsPixel + NSamples

// TelescopeCalibration holds the coefficients of the camera calibration
// file: flatfield gains, baselines, time corrections and the pixel masks
// derived from the calibration runs. Per gain/pixel arrays are flat in
// (NGains, NPixels) order.
type TelescopeCalibration struct {
	DcToPe            []float64
	PedestalPerSample []float64
	// TimeCorrection from flat fielding, ns.
	TimeCorrection         []float64
	UnusablePixels         []bool
	PedestalFailingPixels  []bool
	FlatfieldFailingPixels []bool
}

// R0Corrections applies the camera-specific corrections that turn the raw
// DRS4 samples into calibrated R1 waveforms: cell baseline subtraction,
// timelapse correction, spike interpolation, gain selection and the
// conversion to photoelectrons.
type R0Corrections struct {
	offset                      int
	sampleStart, sampleEnd      int
	selectGain                  bool
	gainSelectionThreshold      float32
	applyDRS4PedestalCorrection bool
	applyTimelapseCorrection    bool
	applySpikeCorrection        bool
	addCalibrationTimeshift     bool
	calibScaleHighGain          float64
	calibScaleLowGain           float64

	monData *TelescopeCalibration

	// drs4Pedestal is flat (NGains, NPixels, pedestalStride) with the
	// first NSamples cells repeated past the ring end and the baseline
	// offset already subtracted.
	drs4Pedestal []int16

	// fan, fbn are the Fourier coefficients of the time calibration,
	// flat (NGains, NPixels, nHarmonics).
	fan, fbn   []float64
	nHarmonics int

	lastReadoutTime []uint64
	firstCaps       []uint16
	firstCapsOld    []uint16
}

// NewR0Corrections builds a calibrator from the configured correction
// flags and calibration files. Missing optional files disable the
// corresponding correction output; a missing pedestal file with the
// pedestal correction enabled is an error.
func NewR0Corrections(cfg *Configuration) (*R0Corrections, error) {
	c := &R0Corrections{
		offset:                      cfg.Offset,
		sampleStart:                 cfg.R1SampleStart,
		sampleEnd:                   cfg.R1SampleEnd,
		selectGain:                  cfg.SelectGain,
		gainSelectionThreshold:      float32(cfg.GainSelectionThreshold),
		applyDRS4PedestalCorrection: cfg.ApplyDRS4PedestalCorrection,
		applyTimelapseCorrection:    cfg.ApplyTimelapseCorrection,
		applySpikeCorrection:        cfg.ApplySpikeCorrection,
		addCalibrationTimeshift:     cfg.AddCalibrationTimeshift,
		calibScaleHighGain:          cfg.CalibScaleHighGain,
		calibScaleLowGain:           cfg.CalibScaleLowGain,
		lastReadoutTime:             make([]uint64, NGains*NPixels*NCapacitorsPixel),
		firstCaps:                   make([]uint16, NGains*NPixels),
		firstCapsOld:                make([]uint16, NGains*NPixels),
	}

	if cfg.CalibrationPath != "" {
		mon, err := readCalibrationFile(cfg.CalibrationPath)
		if err != nil {
			return nil, err
		}
		c.monData = mon
	}

	if cfg.ApplyDRS4PedestalCorrection {
		if cfg.DRS4PedestalPath == "" {
			return nil, fmt.Errorf("drs4 pedestal correction requested but no file configured")
		}
		pedestal, err := readDRS4PedestalFile(cfg.DRS4PedestalPath, cfg.Offset)
		if err != nil {
			return nil, err
		}
		c.drs4Pedestal = pedestal
	}

	if cfg.DRS4TimeCalibrationPath != "" {
		fan, fbn, nHarmonics, err := readDRS4TimeCalibrationFile(cfg.DRS4TimeCalibrationPath)
		if err != nil {
			return nil, err
		}
		c.fan, c.fbn, c.nHarmonics = fan, fbn, nHarmonics
	}

	return c, nil
}

// MonData returns the calibration file contents, or nil when none was
// configured.
func (c *R0Corrections) MonData() *TelescopeCalibration { return c.monData }

// UpdateFirstCapacitors records the first capacitors of the current event
// and keeps the previous ones for the spike search.
func (c *R0Corrections) UpdateFirstCapacitors(event *ArrayEvent) {
	c.firstCapsOld, c.firstCaps = c.firstCaps, c.firstCapsOld
	fc := firstCapacitorsForPixels(event.LST.FirstCapacitorID, event.Svc.PixelIDs)
	copy(c.firstCaps, fc)
}

// ApplyDRS4Corrections fills the R1 waveform from R0 and applies the
// enabled DRS4 corrections, then trims the sample window, subtracts the
// baseline offset and zeroes broken pixels.
func (c *R0Corrections) ApplyDRS4Corrections(event *ArrayEvent) {
	c.UpdateFirstCapacitors(event)

	r1 := &event.R1
	if r1.Waveform == nil {
		fillR1FromR0(event)
	}

	runID := event.LST.ConfigurationID

	if c.applyDRS4PedestalCorrection {
		if r1.GainSelected() {
			subtractPedestalGainSelected(r1.Waveform, c.firstCaps, c.drs4Pedestal, r1.SelectedGainChannel)
		} else {
			subtractPedestal(r1.Waveform, c.firstCaps, c.drs4Pedestal)
		}
	}

	if c.applyTimelapseCorrection {
		if r1.GainSelected() {
			applyTimelapseCorrectionGainSelected(
				r1.Waveform, event.LST.Counters.LocalClockCounter,
				c.firstCaps, c.lastReadoutTime, event.Svc.PixelIDs,
				r1.SelectedGainChannel, runID,
			)
		} else {
			applyTimelapseCorrection(
				r1.Waveform, event.LST.Counters.LocalClockCounter,
				c.firstCaps, c.lastReadoutTime, event.Svc.PixelIDs, runID,
			)
		}
	}

	if c.applySpikeCorrection {
		if r1.GainSelected() {
			interpolateSpikesGainSelected(r1.Waveform, c.firstCaps, c.firstCapsOld, r1.SelectedGainChannel, runID)
		} else {
			interpolateSpikes(r1.Waveform, c.firstCaps, c.firstCapsOld, runID)
		}
	}

	c.trimAndOffset(event)

	zeroBrokenPixels(r1, event.Mon.HardwareFailingPixels)
}

// trimAndOffset keeps the configured sample window and removes the
// baseline offset.
func (c *R0Corrections) trimAndOffset(event *ArrayEvent) {
	r1 := &event.R1
	start, end := c.sampleStart, c.sampleEnd
	out := end - start
	nWaveforms := len(r1.Waveform) / r1.Samples
	trimmed := make([]float32, nWaveforms*out)
	for w := 0; w < nWaveforms; w++ {
		src := r1.Waveform[w*r1.Samples+start : w*r1.Samples+end]
		dst := trimmed[w*out : (w+1)*out]
		for i, v := range src {
			dst[i] = v - float32(c.offset)
		}
	}
	r1.Waveform = trimmed
	r1.Samples = out
}

// Calibrate performs gain selection, converts the waveform to
// photoelectrons and fills the calibration block the host framework needs
// for DL1.
func (c *R0Corrections) Calibrate(event *ArrayEvent) {
	r1 := &event.R1
	if r1.Waveform == nil {
		fillR1FromR0(event)
	}

	// Gain selection happens before the pe conversion, like the event
	// builder does for regular runs.
	if c.selectGain && !r1.GainSelected() {
		r1.SelectedGainChannel = selectGainChannel(r1.Waveform, r1.Samples, c.gainSelectionThreshold)
		selected := make([]float32, NPixels*r1.Samples)
		for pixel := 0; pixel < NPixels; pixel++ {
			gain := int(r1.SelectedGainChannel[pixel])
			copy(
				selected[pixel*r1.Samples:(pixel+1)*r1.Samples],
				r1.Waveform[gpIndex(gain, pixel)*r1.Samples:],
			)
		}
		r1.Waveform = selected
	}

	if c.monData != nil {
		convertToPE(r1, c.monData)
	}

	zeroBrokenPixels(r1, event.Mon.HardwareFailingPixels)

	timeShift := c.drs4TimeCorrection(r1.SelectedGainChannel)
	if c.monData != nil && c.addCalibrationTimeshift {
		// The shift is subtracted downstream while the flatfield time
		// correction has to be added, hence the sign.
		if r1.GainSelected() {
			for pixel := 0; pixel < NPixels; pixel++ {
				gain := int(r1.SelectedGainChannel[pixel])
				timeShift[pixel] -= c.monData.TimeCorrection[gpIndex(gain, pixel)]
			}
		} else {
			for i := range timeShift {
				timeShift[i] -= c.monData.TimeCorrection[i]
			}
		}
	}
	event.Calibration.TimeShift = timeShift

	if r1.GainSelected() {
		factor := make([]float64, NPixels)
		for pixel := 0; pixel < NPixels; pixel++ {
			if r1.SelectedGainChannel[pixel] == HighGain {
				factor[pixel] = c.calibScaleHighGain
			} else {
				factor[pixel] = c.calibScaleLowGain
			}
		}
		event.Calibration.RelativeFactor = factor
	} else {
		factor := make([]float64, NGains*NPixels)
		for pixel := 0; pixel < NPixels; pixel++ {
			factor[gpIndex(HighGain, pixel)] = c.calibScaleHighGain
			factor[gpIndex(LowGain, pixel)] = c.calibScaleLowGain
		}
		event.Calibration.RelativeFactor = factor
	}
}

func (c *R0Corrections) drs4TimeCorrection(selectedGain []int8) []float64 {
	if c.fan == nil {
		if selectedGain == nil {
			return make([]float64, NGains*NPixels)
		}
		return make([]float64, NPixels)
	}
	if selectedGain != nil {
		shift := make([]float64, NPixels)
		for pixel := 0; pixel < NPixels; pixel++ {
			gain := int(selectedGain[pixel])
			shift[pixel] = c.fourierTimeCorrection(gain, pixel)
		}
		return shift
	}
	shift := make([]float64, NGains*NPixels)
	for gain := 0; gain < NGains; gain++ {
		for pixel := 0; pixel < NPixels; pixel++ {
			shift[gpIndex(gain, pixel)] = c.fourierTimeCorrection(gain, pixel)
		}
	}
	return shift
}

func (c *R0Corrections) fourierTimeCorrection(gain, pixel int) float64 {
	base := gpIndex(gain, pixel) * c.nHarmonics
	return calcFourierTimeCorrection(
		int(c.firstCaps[gpIndex(gain, pixel)]),
		c.fan[base:base+c.nHarmonics],
		c.fbn[base:base+c.nHarmonics],
	)
}

// fillR1FromR0 copies the raw samples into the R1 container as float32.
// uint16 values are represented exactly, so no precision is lost.
func fillR1FromR0(event *ArrayEvent) {
	r1 := &event.R1
	r1.Waveform = make([]float32, len(event.R0.Waveform))
	for i, v := range event.R0.Waveform {
		r1.Waveform[i] = float32(v)
	}
	r1.Samples = NSamples
}

func zeroBrokenPixels(r1 *R1Camera, hardwareFailing []bool) {
	if !r1.GainSelected() {
		for gp, failing := range hardwareFailing {
			if !failing {
				continue
			}
			wf := r1.Waveform[gp*r1.Samples : (gp+1)*r1.Samples]
			for i := range wf {
				wf[i] = 0
			}
		}
		return
	}
	for pixel := 0; pixel < NPixels; pixel++ {
		gain := int(r1.SelectedGainChannel[pixel])
		if !hardwareFailing[gpIndex(gain, pixel)] {
			continue
		}
		wf := r1.Waveform[pixel*r1.Samples : (pixel+1)*r1.Samples]
		for i := range wf {
			wf[i] = 0
		}
	}
}

// selectGainChannel picks the low gain channel for pixels whose high gain
// waveform exceeds the threshold anywhere in the window.
func selectGainChannel(waveform []float32, samples int, threshold float32) []int8 {
	selected := make([]int8, NPixels)
	for pixel := 0; pixel < NPixels; pixel++ {
		hg := waveform[gpIndex(HighGain, pixel)*samples : (gpIndex(HighGain, pixel)+1)*samples]
		for _, v := range hg {
			if v > threshold {
				selected[pixel] = LowGain
				break
			}
		}
	}
	return selected
}

func convertToPE(r1 *R1Camera, calib *TelescopeCalibration) {
	if !r1.GainSelected() {
		for gp := 0; gp < NGains*NPixels; gp++ {
			ped := float32(calib.PedestalPerSample[gp])
			scale := float32(calib.DcToPe[gp])
			wf := r1.Waveform[gp*r1.Samples : (gp+1)*r1.Samples]
			for i := range wf {
				wf[i] = (wf[i] - ped) * scale
			}
		}
		return
	}
	for pixel := 0; pixel < NPixels; pixel++ {
		gp := gpIndex(int(r1.SelectedGainChannel[pixel]), pixel)
		ped := float32(calib.PedestalPerSample[gp])
		scale := float32(calib.DcToPe[gp])
		wf := r1.Waveform[pixel*r1.Samples : (pixel+1)*r1.Samples]
		for i := range wf {
			wf[i] = (wf[i] - ped) * scale
		}
	}
}

// subtractPedestal removes the per-capacitor baseline. The pedestal array
// repeats the ring start past its end, so no wrap handling is needed.
func subtractPedestal(waveform []float32, firstCaps []uint16, pedestal []int16) {
	for gp := 0; gp < NGains*NPixels; gp++ {
		fc := int(firstCaps[gp])
		ped := pedestal[gp*pedestalStride+fc:]
		wf := waveform[gp*NSamples : (gp+1)*NSamples]
		for i := range wf {
			wf[i] -= float32(ped[i])
		}
	}
}

func subtractPedestalGainSelected(waveform []float32, firstCaps []uint16, pedestal []int16, selectedGain []int8) {
	for pixel := 0; pixel < NPixels; pixel++ {
		gp := gpIndex(int(selectedGain[pixel]), pixel)
		fc := int(firstCaps[gp])
		ped := pedestal[gp*pedestalStride+fc:]
		wf := waveform[pixel*NSamples : (pixel+1)*NSamples]
		for i := range wf {
			wf[i] -= float32(ped[i])
		}
	}
}

// pedTime is the power law of the timelapse baseline shift, fitted to
// Dragon test data at 20 degC.
func pedTime(timediffMS float64) float32 {
	return float32(32.99*math.Pow(timediffMS, -0.22) - 11.9)
}

func applyTimelapseCorrectionPixel(waveform []float32, firstCapacitor int, timeNow uint64, lastReadoutTime []uint64) {
	for sample := range waveform {
		capacitor := (firstCapacitor + sample) % NCapacitorsPixel

		last := lastReadoutTime[capacitor]
		if last == 0 {
			continue
		}
		timeDiffMS := float64(timeNow-last) / ClockFrequencyKHz

		// The shift is negligible above 100 ms.
		if timeDiffMS < 100 {
			corr := pedTime(timeDiffMS)
			if corr > waveform[sample] {
				corr = waveform[sample]
			}
			waveform[sample] -= corr
		}
	}
}

func updateLastReadoutTime(pixelInModule, firstCapacitor int, timeNow uint64, lastReadoutTime []uint64) {
	for sample := 0; sample < NSamples; sample++ {
		lastReadoutTime[(firstCapacitor+sample)%NCapacitorsPixel] = timeNow
	}

	// Dragon reads extra capacitors for even module pixels when the ROI
	// falls into the last quarter of the DRS4 ring.
	if pixelInModule%2 != 0 {
		return
	}
	firstCapacitorInChannel := firstCapacitor % NCapacitorsChannel
	if firstCapacitorInChannel > 767 && firstCapacitorInChannel < 1013 {
		start := firstCapacitor + NCapacitorsChannel
		for capacitor := start; capacitor < start+12; capacitor++ {
			lastReadoutTime[capacitor%NCapacitorsPixel] = timeNow
		}
	} else if firstCapacitorInChannel >= 1013 {
		start := firstCapacitor + NCapacitorsChannel
		end := (firstCapacitor/NCapacitorsChannel + 2) * NCapacitorsChannel
		for capacitor := start; capacitor < end; capacitor++ {
			lastReadoutTime[capacitor%NCapacitorsPixel] = timeNow
		}
	}
}

// updateLastReadoutTimeOldFirmware covers runs before the 2019-11-05
// firmware update, whose readout window is shifted by one cell.
func updateLastReadoutTimeOldFirmware(pixelInModule, firstCapacitor int, timeNow uint64, lastReadoutTime []uint64) {
	for sample := -1; sample < NSamples-1; sample++ {
		capacitor := (firstCapacitor + sample + NCapacitorsPixel) % NCapacitorsPixel
		lastReadoutTime[capacitor] = timeNow
	}

	if pixelInModule%2 != 0 {
		return
	}
	firstCapacitorInChannel := firstCapacitor % NCapacitorsChannel
	if firstCapacitorInChannel > 766 && firstCapacitorInChannel < 1013 {
		start := firstCapacitor + NCapacitorsChannel - 1
		end := firstCapacitor + NCapacitorsChannel + 11
		for capacitor := start; capacitor < end; capacitor++ {
			lastReadoutTime[capacitor%NCapacitorsPixel] = timeNow
		}
	} else if firstCapacitorInChannel >= 1013 {
		start := firstCapacitor + NCapacitorsChannel
		end := (firstCapacitor/NCapacitorsChannel + 2) * NCapacitorsChannel
		for capacitor := start; capacitor < end; capacitor++ {
			lastReadoutTime[capacitor%NCapacitorsPixel] = timeNow
		}
	}
}

func applyTimelapseCorrection(
	waveform []float32,
	localClockCounter []uint64,
	firstCaps []uint16,
	lastReadoutTime []uint64,
	expectedPixelsID []uint16,
	runID uint64,
) {
	nModules := len(expectedPixelsID) / NPixelsModule
	for gain := 0; gain < NGains; gain++ {
		for module := 0; module < nModules; module++ {
			timeNow := localClockCounter[module]
			for pixelInModule := 0; pixelInModule < NPixelsModule; pixelInModule++ {
				pixel := int(expectedPixelsID[module*NPixelsModule+pixelInModule])
				gp := gpIndex(gain, pixel)
				fc := int(firstCaps[gp])
				lrt := lastReadoutTime[gp*NCapacitorsPixel : (gp+1)*NCapacitorsPixel]

				applyTimelapseCorrectionPixel(
					waveform[gp*NSamples:(gp+1)*NSamples], fc, timeNow, lrt,
				)

				if runID > LastRunWithOldFirmware {
					updateLastReadoutTime(pixelInModule, fc, timeNow, lrt)
				} else {
					updateLastReadoutTimeOldFirmware(pixelInModule, fc, timeNow, lrt)
				}
			}
		}
	}
}

func applyTimelapseCorrectionGainSelected(
	waveform []float32,
	localClockCounter []uint64,
	firstCaps []uint16,
	lastReadoutTime []uint64,
	expectedPixelsID []uint16,
	selectedGain []int8,
	runID uint64,
) {
	nModules := len(expectedPixelsID) / NPixelsModule
	for module := 0; module < nModules; module++ {
		timeNow := localClockCounter[module]
		for pixelInModule := 0; pixelInModule < NPixelsModule; pixelInModule++ {
			pixel := int(expectedPixelsID[module*NPixelsModule+pixelInModule])
			gp := gpIndex(int(selectedGain[pixel]), pixel)

			applyTimelapseCorrectionPixel(
				waveform[pixel*NSamples:(pixel+1)*NSamples],
				int(firstCaps[gp]), timeNow,
				lastReadoutTime[gp*NCapacitorsPixel:(gp+1)*NCapacitorsPixel],
			)

			// The readout times of both gains advance, not just the
			// selected channel.
			for gain := 0; gain < NGains; gain++ {
				gp := gpIndex(gain, pixel)
				fc := int(firstCaps[gp])
				lrt := lastReadoutTime[gp*NCapacitorsPixel : (gp+1)*NCapacitorsPixel]
				if runID > LastRunWithOldFirmware {
					updateLastReadoutTime(pixelInModule, fc, timeNow, lrt)
				} else {
					updateLastReadoutTimeOldFirmware(pixelInModule, fc, timeNow, lrt)
				}
			}
		}
	}
}

// interpolateSpikeA replaces the two samples of a type A spike with a
// linear interpolation of their neighbours.
func interpolateSpikeA(waveform []float32, position int) {
	a := waveform[position-1]
	b := waveform[position+2]
	waveform[position] = a + 0.33*(b-a)
	waveform[position+1] = a + 0.66*(b-a)
}

func interpolateSpikesPixel(waveform []float32, currentFC, lastFC int) {
	const lastInFirstHalf = NCapacitorsChannel/2 - 1

	for k := 0; k < 4; k++ {
		// first case
		abspos := NCapacitorsChannel + 1 - NSamples - 2 - lastFC + k*NCapacitorsChannel + NCapacitorsPixel
		position := ((abspos-currentFC)%NCapacitorsPixel + NCapacitorsPixel) % NCapacitorsPixel
		if position > 2 && position < NSamples-2 {
			// only needed for an even last capacitor in the first half
			// of the DRS4 ring
			lastCapacitor := (lastFC + NSamples - 1) % NCapacitorsChannel
			if lastCapacitor%2 == 0 && lastCapacitor <= lastInFirstHalf {
				interpolateSpikeA(waveform, position)
			}
		}

		// second case
		abspos = NSamples - 1 + lastFC + k*NCapacitorsChannel
		position = ((abspos-currentFC)%NCapacitorsPixel + NCapacitorsPixel) % NCapacitorsPixel
		if position > 2 && position < NSamples-2 {
			lastLC := lastFC + NSamples - 1
			if lastLC%2 == 0 && lastLC%NCapacitorsChannel <= lastInFirstHalf {
				interpolateSpikeA(waveform, position)
			}
		}
	}
}

func interpolateSpikesPixelOldFirmware(waveform []float32, currentFC, lastFC int) {
	for k := 0; k < 4; k++ {
		// first case
		abspos := NCapacitorsChannel - NSamples - 2 - lastFC + k*NCapacitorsChannel + NCapacitorsPixel
		position := ((abspos-currentFC)%NCapacitorsPixel + NCapacitorsPixel) % NCapacitorsPixel
		if position > 2 && position < NSamples-2 {
			lastCapacitor := (lastFC + NSamples - 1) % NCapacitorsChannel
			if lastCapacitor%2 == 0 && lastCapacitor <= NCapacitorsChannel/2-2 {
				interpolateSpikeA(waveform, position)
			}
		}

		// second case
		abspos = NSamples - 2 + lastFC + k*NCapacitorsChannel
		position = ((abspos-currentFC)%NCapacitorsPixel + NCapacitorsPixel) % NCapacitorsPixel
		if position > 2 && position < NSamples-2 {
			lastLC := lastFC + NSamples - 1
			if lastLC%2 == 0 && lastLC%NCapacitorsChannel <= NCapacitorsChannel/2-1 {
				interpolateSpikeA(waveform, position)
			}
		}
	}
}

func interpolateSpikes(waveform []float32, firstCaps, previousFirstCaps []uint16, runID uint64) {
	for gp := 0; gp < NGains*NPixels; gp++ {
		wf := waveform[gp*NSamples : (gp+1)*NSamples]
		current := int(firstCaps[gp])
		last := int(previousFirstCaps[gp])
		if runID > LastRunWithOldFirmware {
			interpolateSpikesPixel(wf, current, last)
		} else {
			interpolateSpikesPixelOldFirmware(wf, current, last)
		}
	}
}

func interpolateSpikesGainSelected(waveform []float32, firstCaps, previousFirstCaps []uint16, selectedGain []int8, runID uint64) {
	for pixel := 0; pixel < NPixels; pixel++ {
		gp := gpIndex(int(selectedGain[pixel]), pixel)
		wf := waveform[pixel*NSamples : (pixel+1)*NSamples]
		current := int(firstCaps[gp])
		last := int(previousFirstCaps[gp])
		if runID > LastRunWithOldFirmware {
			interpolateSpikesPixel(wf, current, last)
		} else {
			interpolateSpikesPixelOldFirmware(wf, current, last)
		}
	}
}

func calcFourierTimeCorrection(firstCapacitor int, fan, fbn []float64) float64 {
	fc := float64(firstCapacitor % NCapacitorsChannel)
	time := 0.0
	for harmonic := 1; harmonic < len(fan); harmonic++ {
		omega := float64(harmonic) * (2 * math.Pi / NCapacitorsChannel)
		time += fan[harmonic] * math.Cos(omega*fc)
		time += fbn[harmonic] * math.Sin(omega*fc)
	}
	return time
}
