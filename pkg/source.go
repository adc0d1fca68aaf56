package lstio

import (
	"errors"
	"fmt"
	"io"
	"math"
)

// noFFHeuristicDate is the start of data taking with reliable flatfield
// trigger tagging, as unix seconds. Runs started earlier default to the
// waveform heuristic.
const noFFHeuristicDate = 1640995200 // 2022-01-01T00:00:00

func init() {
	RegisterSource("LSTEventSource", IsCompatible, func(inputURL string) (EventSource, error) {
		return NewLSTEventSource(inputURL)
	})
}

// LSTEventSource reads raw camera files and yields calibrated array
// events.
type LSTEventSource struct {
	inputURL  string
	multiFile *MultiFiles
	svc       *ServiceInfo
	subarray  *SubarrayDescription

	calibrator     *R0Corrections
	timeCalculator *EventTimeCalculator
	pointing       *PointingSource
	pedestalIDs    map[uint64]struct{}

	useFlatfieldHeuristic bool
	count                 int
}

// NewLSTEventSource opens the raw file (and its sibling streams) and
// loads the configured instrument and calibration inputs.
func NewLSTEventSource(inputURL string) (*LSTEventSource, error) {
	cfg := GetConfiguration()

	multiFile, err := OpenMultiFiles(inputURL, cfg.AllStreams)
	if err != nil {
		return nil, err
	}

	s := &LSTEventSource{
		inputURL:       inputURL,
		multiFile:      multiFile,
		svc:            multiFile.Config().ServiceInfo(),
		timeCalculator: NewEventTimeCalculator(0),
	}
	s.svc.TelescopeID = TelescopeID

	var geometry *CameraGeometry
	if !cfg.NoDB || cfg.CameraGeometryPath != "" {
		geometry, err = LoadCameraGeometry(int(multiFile.RunID()))
		if err != nil {
			multiFile.Close()
			return nil, err
		}
	}
	var readout *CameraReadout
	if cfg.PulseShapePath != "" {
		readout, err = readPulseShapes(cfg.PulseShapePath)
		if err != nil {
			multiFile.Close()
			return nil, err
		}
	}
	s.subarray = NewSubarray(TelescopeID, geometry, readout)

	s.calibrator, err = NewR0Corrections(&cfg)
	if err != nil {
		multiFile.Close()
		return nil, err
	}

	if cfg.PedestalIDsPath != "" {
		s.pedestalIDs, err = readPedestalIDs(cfg.PedestalIDsPath)
		if err != nil {
			multiFile.Close()
			return nil, err
		}
	}

	if cfg.FillPointingInfo && cfg.DriveReportPath != "" {
		s.pointing, err = LoadDriveReport(cfg.DriveReportPath)
		if err != nil {
			multiFile.Close()
			return nil, err
		}
	}

	if cfg.UseFlatfieldHeuristic != nil {
		s.useFlatfieldHeuristic = *cfg.UseFlatfieldHeuristic
	} else {
		s.useFlatfieldHeuristic = s.svc.Date < noFFHeuristicDate
		logger.Info(fmt.Sprintf(
			"Flatfield heuristic defaulted to %v from run start date",
			s.useFlatfieldHeuristic,
		), "source")
	}

	return s, nil
}

// Subarray returns the instrument description of the run.
func (s *LSTEventSource) Subarray() *SubarrayDescription { return s.subarray }

// ObservationID returns the run number.
func (s *LSTEventSource) ObservationID() uint64 { return s.multiFile.RunID() }

// DataLevels reports R1 only when a calibration file is configured.
func (s *LSTEventSource) DataLevels() []DataLevel {
	if s.calibrator.MonData() != nil {
		return []DataLevel{DataLevelR0, DataLevelR1}
	}
	return []DataLevel{DataLevelR0}
}

// NumEvents returns the total number of raw events in the input files.
func (s *LSTEventSource) NumEvents() int64 { return s.multiFile.NumEvents() }

func (s *LSTEventSource) Close() error { return s.multiFile.Close() }

// Next decodes, fills and calibrates the next event. It returns io.EOF
// at the end of the run.
func (s *LSTEventSource) Next() (*ArrayEvent, error) {
	cfg := GetConfiguration()
	for {
		if cfg.MaxEvents > 0 && s.count >= cfg.MaxEvents {
			return nil, io.EOF
		}
		raw, err := s.multiFile.NextEvent()
		if err != nil {
			return nil, err
		}

		// Some runs end with empty padding events.
		if raw.EventID == 0 {
			logger.Info("Event with event_id=0 found, skipping", "source")
			continue
		}

		event := &ArrayEvent{
			Count: s.count,
			Index: EventIndex{ObsID: s.multiFile.RunID(), EventID: raw.EventID},
			Svc:   s.svc,
			Mon:   NewMonitoringData(),
			Meta: map[string]string{
				"input_url": s.inputURL,
				"origin":    "LSTCAM",
			},
		}

		if err := s.fillR0R1(event, raw); err != nil {
			return nil, err
		}
		s.fillLSTEvent(event, raw)
		if cfg.FillTriggerInfo {
			s.fillTriggerInfo(event)
		}
		s.fillMon(event, raw)

		if s.pointing != nil {
			s.fillPointingInfo(event)
		}

		if cfg.ApplyDRS4Corrections {
			s.calibrator.ApplyDRS4Corrections(event)

			// The heuristic needs baseline subtracted waveforms, but
			// must run before the pe conversion.
			if s.useFlatfieldHeuristic {
				s.tagFlatfieldEvents(event)
			}
		}

		if s.pedestalIDs != nil {
			s.checkInterleavedPedestal(event)
		}

		if s.calibrator.MonData() != nil {
			skip := !cfg.CalibrateFlatfieldsAndPeds &&
				(event.Trigger.EventType == EventTypeFlatfield ||
					event.Trigger.EventType == EventTypeSkyPedestal)
			if !skip {
				s.calibrator.Calibrate(event)
			}
		}

		s.count++
		return event, nil
	}
}

// fillR0R1 reorders the raw samples into camera pixel order. Files written
// after gain selection fill R1 directly, otherwise R0 holds both gains.
// Missing pixels keep the maximum sample value as marker.
func (s *LSTEventSource) fillR0R1(event *ArrayEvent, raw *RawEvent) error {
	nPixels := s.svc.NumPixels
	nSamples := s.svc.NumSamples
	expected := s.svc.PixelIDs

	if nSamples != NSamples {
		return ErrShapeMismatch{
			What:     "samples per waveform",
			Expected: fmt.Sprint(NSamples),
			Got:      fmt.Sprint(nSamples),
		}
	}

	anyBroken := false
	gainSelected := false
	for _, status := range raw.PixelStatus {
		hasHigh := status&uint8(PixelBitHighGainStored) != 0
		hasLow := status&uint8(PixelBitLowGainStored) != 0
		if !hasHigh && !hasLow {
			anyBroken = true
		}
		if hasHigh != hasLow {
			gainSelected = true
		}
	}

	const fill = math.MaxUint16

	if gainSelected {
		nWaveforms := len(raw.Waveform) / nSamples
		if nWaveforms < nPixels {
			if anyBroken {
				return errors.New(
					"gain selected input with broken pixels missing from the waveform is not supported")
			}
			return ErrShapeMismatch{
				What:     "gain selected waveforms",
				Expected: fmt.Sprint(nPixels),
				Got:      fmt.Sprint(nWaveforms),
			}
		}

		waveform := make([]float32, NPixels*NSamples)
		for i := range waveform {
			waveform[i] = fill
		}
		selectedGain := make([]int8, NPixels)
		for i := range selectedGain {
			selectedGain[i] = -1
		}
		for index := 0; index < nPixels; index++ {
			pixel := int(expected[index])
			if raw.PixelStatus[index]&uint8(PixelBitHighGainStored) != 0 {
				selectedGain[pixel] = HighGain
			} else {
				selectedGain[pixel] = LowGain
			}
			wf := waveform[pixel*NSamples : (pixel+1)*NSamples]
			for sample := 0; sample < NSamples; sample++ {
				wf[sample] = float32(raw.Waveform[index*nSamples+sample])
			}
		}
		event.R1 = R1Camera{
			Waveform:            waveform,
			SelectedGainChannel: selectedGain,
			Samples:             NSamples,
		}
		return nil
	}

	nWaveforms := len(raw.Waveform) / nSamples
	if nWaveforms < NGains*nPixels {
		return ErrShapeMismatch{
			What:     "waveforms",
			Expected: fmt.Sprint(NGains * nPixels),
			Got:      fmt.Sprint(nWaveforms),
		}
	}

	waveform := make([]uint16, NGains*NPixels*NSamples)
	for i := range waveform {
		waveform[i] = fill
	}
	for gain := 0; gain < NGains; gain++ {
		for index := 0; index < nPixels; index++ {
			pixel := int(expected[index])
			src := raw.Waveform[(gain*nPixels+index)*nSamples:]
			dst := waveform[gpIndex(gain, pixel)*NSamples:]
			copy(dst[:NSamples], src[:nSamples])
		}
	}
	event.R0 = R0Camera{Waveform: waveform}
	return nil
}

// fillLSTEvent copies the detector specific block and decodes the
// auxiliary device data that is flagged as present.
func (s *LSTEventSource) fillLSTEvent(event *ArrayEvent, raw *RawEvent) {
	lst := &event.LST
	*lst = LSTEvent{
		ConfigurationID:    raw.ConfigurationID,
		EventID:            raw.EventID,
		TelEventID:         raw.TelEventID,
		PixelStatus:        raw.PixelStatus,
		PedID:              raw.PedID,
		ModuleStatus:       raw.ModuleStatus,
		ExtdevicesPresence: raw.ExtdevicesPresence,
		ChipsFlags:         raw.ChipsFlags,
		FirstCapacitorID:   raw.FirstCapacitorID,
		DrsTagStatus:       raw.DrsTagStatus,
		DrsTag:             raw.DrsTag,
	}

	if raw.ExtdevicesPresence&1 != 0 && len(raw.TIBData) >= tibBlockSize {
		lst.TIBAvailable = true
		lst.TIB = decodeTIB(raw.TIBData)
	}
	if raw.ExtdevicesPresence&2 != 0 {
		newLayout := s.svc.IdaqVersion > 37201
		need := uctsOldBlockSize
		if newLayout {
			need = uctsBlockSize
		}
		if len(raw.CDTSData) >= need {
			lst.UCTSAvailable = true
			lst.UCTS = decodeUCTS(raw.CDTSData, newLayout)
		}
	}
	if raw.ExtdevicesPresence&4 != 0 && len(raw.SWATData) >= swatBlockSize {
		lst.SWATAvailable = true
		lst.SWAT = decodeSWAT(raw.SWATData)
	}

	lst.Counters = decodeDragonCounters(raw.Counters, s.svc.NumModules)
}

func (s *LSTEventSource) fillTriggerInfo(event *ArrayEvent) {
	cfg := GetConfiguration()
	trigger := &event.Trigger
	trigger.TimeNS = s.timeCalculator.Time(event)
	trigger.TelsWith = []int{s.svc.TelescopeID}

	lst := &event.LST

	var bits TriggerBits
	switch {
	case lst.TIBAvailable && lst.UCTSAvailable:
		if cfg.DefaultTriggerType == "ucts" {
			bits = TriggerBits(lst.UCTS.TriggerType)
		} else {
			bits = TriggerBits(lst.TIB.MaskedTrigger)
		}
	case lst.TIBAvailable:
		bits = TriggerBits(lst.TIB.MaskedTrigger)
	case lst.UCTSAvailable:
		bits = TriggerBits(lst.UCTS.TriggerType)
	default:
		logger.Info("No trigger info available", "source")
		trigger.EventType = EventTypeUnknown
		return
	}

	if lst.UCTSAvailable && lst.UCTS.TriggerType == 42 && cfg.DefaultTriggerType == "ucts" {
		logger.Info(
			"Event with UCTS trigger_type 42 found, probably unreliable"+
				" or shifted UCTS data, consider using the TIB trigger",
			"source")
	}

	trigger.EventType = EventTypeFromTriggerBits(bits)
	if trigger.EventType == EventTypeUnknown {
		logger.Info(fmt.Sprintf(
			"Event %d has unknown event type, trigger: %s", event.Index.EventID, bits,
		), "source")
	}
}

// fillMon flags pixels without stored gain as hardware failing.
func (s *LSTEventSource) fillMon(event *ArrayEvent, raw *RawEvent) {
	expected := s.svc.PixelIDs
	status := make([]uint8, NPixels)
	for index, pixelStatus := range raw.PixelStatus {
		if index >= len(expected) {
			break
		}
		status[expected[index]] = pixelStatus
	}
	for pixel := 0; pixel < NPixels; pixel++ {
		failing := ChannelInfo(status[pixel]) == 0
		event.Mon.HardwareFailingPixels[gpIndex(HighGain, pixel)] = failing
		event.Mon.HardwareFailingPixels[gpIndex(LowGain, pixel)] = failing
	}
}

func (s *LSTEventSource) fillPointingInfo(event *ArrayEvent) {
	t := float64(event.Trigger.TimeNS) / nsPerSecond
	alt, az := s.pointing.PointingAltAz(t)
	pointing := &PointingInfo{AltitudeRad: alt, AzimuthRad: az}
	if ra, dec, ok := s.pointing.PointingICRS(t); ok {
		pointing.RaDeg = ra
		pointing.DecDeg = dec
	}
	event.Pointing = pointing
}

// tagFlatfieldEvents recognizes flatfield events from the waveforms.
// Tagging via the trigger bits does not work for all runs, so every event
// with most pixels inside the expected charge range is retagged.
func (s *LSTEventSource) tagFlatfieldEvents(event *ArrayEvent) {
	cfg := GetConfiguration()
	r1 := &event.R1

	nInRange := 0
	for pixel := 0; pixel < NPixels; pixel++ {
		var wf []float32
		if r1.GainSelected() {
			wf = r1.Waveform[pixel*r1.Samples : (pixel+1)*r1.Samples]
		} else {
			wf = r1.Waveform[gpIndex(HighGain, pixel)*r1.Samples : (gpIndex(HighGain, pixel)+1)*r1.Samples]
		}
		var sum float32
		for _, v := range wf {
			sum += v
		}
		if sum >= cfg.MinFlatfieldADC && sum <= cfg.MaxFlatfieldADC {
			nInRange++
		}
	}

	looksLikeFF := float32(nInRange) >= cfg.MinFlatfieldPixelFraction*NPixels
	if looksLikeFF {
		event.Trigger.EventType = EventTypeFlatfield
	} else if event.Trigger.EventType == EventTypeFlatfield {
		logger.Info(fmt.Sprintf(
			"Found flatfield tagged event %d that does not fulfill the"+
				" flatfield criteria", event.Index.EventID,
		), "source")
		event.Trigger.EventType = EventTypeUnknown
	}
}

// checkInterleavedPedestal retags events using the known pedestal event
// ids of the run.
func (s *LSTEventSource) checkInterleavedPedestal(event *ArrayEvent) {
	if _, ok := s.pedestalIDs[event.Index.EventID]; ok {
		event.Trigger.EventType = EventTypeSkyPedestal
		return
	}
	if event.Trigger.EventType == EventTypeSkyPedestal {
		// wrongly tagged pedestal events must be cosmics, flatfields
		// would have been retagged by the heuristic already
		event.Trigger.EventType = EventTypeSubarray
	}
}
