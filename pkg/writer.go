package lstio

import (
	"errors"
	"fmt"

	hdf5 "github.com/next-exp/hdf5-go"
)

type TriggerBitsHDF5 struct {
	ucts_trigger_type  int32
	tib_masked_trigger int32
	stereo_pattern     int32
}

// Writer stores decoded and calibrated events in an hdf5 file: one row
// per event in the tables, one slab per event in the waveform arrays.
type Writer struct {
	File          *hdf5.File
	Filename      string
	FirstEvt      bool
	RunGroup      *hdf5.Group
	R1Group       *hdf5.Group
	MonGroup      *hdf5.Group
	TriggerGroup  *hdf5.Group
	EventTable    *hdf5.Dataset
	RunInfoTable  *hdf5.Dataset
	PointingTable *hdf5.Dataset
	TriggerTable  *hdf5.Dataset
	CountersTable *hdf5.Dataset
	Waveforms     *hdf5.Dataset
	SelectedGain  *hdf5.Dataset
	PixelStatus   *hdf5.Dataset
	EvtCounter    int

	gainSelected bool
	nSamples     int
}

func NewWriter(filename string) *Writer {
	hdf5.SetStringLength(STRLEN)

	writer := &Writer{}
	logger.Info("Creating file "+filename, "writer")
	writer.File = createFile(filename)
	writer.Filename = filename
	writer.RunGroup = createGroup(writer.File, "Run")
	writer.R1Group = createGroup(writer.File, "R1")
	writer.MonGroup = createGroup(writer.File, "Monitoring")
	writer.TriggerGroup = createGroup(writer.File, "Trigger")
	writer.EventTable = createTable(writer.RunGroup, "events", EventInfoHDF5{})
	writer.RunInfoTable = createTable(writer.RunGroup, "runInfo", RunInfoHDF5{})
	writer.PointingTable = createTable(writer.RunGroup, "pointing", PointingHDF5{})
	writer.TriggerTable = createTable(writer.TriggerGroup, "trigger", TriggerBitsHDF5{})
	writer.CountersTable = createTable(writer.RunGroup, "counters", CountersHDF5{})
	writer.PixelStatus = create2dArray(writer.MonGroup, "pixel_status", hdf5.T_NATIVE_USHORT, NPixels)
	writer.EvtCounter = 0
	return writer
}

// WriteEvent appends one event. The waveform layout is fixed by the first
// event: gain selected runs store one waveform per pixel, otherwise both
// gains are stored as consecutive blocks.
func (w *Writer) WriteEvent(event *ArrayEvent) {
	r1 := &event.R1

	if !w.FirstEvt {
		w.gainSelected = r1.GainSelected()
		w.nSamples = r1.Samples

		writeEntryToTable(w.RunInfoTable, RunInfoHDF5{
			run_number:  int32(event.Index.ObsID),
			num_modules: int32(event.Svc.NumModules),
			idaq:        int32(event.Svc.IdaqVersion),
			cs_serial:   convertToHdf5String(event.Svc.CSSerial),
			data_model:  convertToHdf5String(event.Svc.DataModelVersion),
		}, w.EvtCounter)

		nWaveforms := NGains * NPixels
		if w.gainSelected {
			nWaveforms = NPixels
			w.SelectedGain = create2dArray(w.R1Group, "selected_gain_channel", hdf5.T_NATIVE_INT8, NPixels)
		}
		w.Waveforms = create3dArray(w.R1Group, "waveforms", hdf5.T_NATIVE_FLOAT, nWaveforms, w.nSamples)

		w.FirstEvt = true
	}

	writeEntryToTable(w.EventTable, EventInfoHDF5{
		evt_number: int32(event.Index.EventID),
		timestamp:  event.Trigger.TimeNS,
		event_type: int32(event.Trigger.EventType),
		ucts_jump:  boolToInt8(event.LST.UCTSJump),
	}, w.EvtCounter)

	writeEntryToTable(w.TriggerTable, TriggerBitsHDF5{
		ucts_trigger_type:  int32(event.LST.UCTS.TriggerType),
		tib_masked_trigger: int32(event.LST.TIB.MaskedTrigger),
		stereo_pattern:     int32(event.LST.TIB.StereoPattern),
	}, w.EvtCounter)

	if len(event.LST.Counters.PPSCounter) > 0 {
		counters := &event.LST.Counters
		writeEntryToTable(w.CountersTable, CountersHDF5{
			pps_counter:        int32(counters.PPSCounter[0]),
			tenMHz_counter:     int32(counters.TenMHzCounter[0]),
			trigger_counter:    int32(counters.TriggerCounter[0]),
			local_clock_lowest: int64(counters.LocalClockCounter[0]),
		}, w.EvtCounter)
	}

	if event.Pointing != nil {
		writeEntryToTable(w.PointingTable, PointingHDF5{
			azimuth:  event.Pointing.AzimuthRad,
			altitude: event.Pointing.AltitudeRad,
			ra:       event.Pointing.RaDeg,
			dec:      event.Pointing.DecDeg,
		}, w.EvtCounter)
	}

	nWaveforms := len(r1.Waveform) / w.nSamples
	write3dArray(w.Waveforms, &r1.Waveform, w.EvtCounter, nWaveforms, w.nSamples)

	if w.gainSelected && w.SelectedGain != nil {
		write2dArray(w.SelectedGain, &r1.SelectedGainChannel, w.EvtCounter, NPixels)
	}

	status := make([]uint16, NPixels)
	for index, pixelStatus := range event.LST.PixelStatus {
		if index < len(event.Svc.PixelIDs) {
			status[event.Svc.PixelIDs[index]] = uint16(pixelStatus)
		}
	}
	write2dArray(w.PixelStatus, &status, w.EvtCounter, NPixels)

	w.EvtCounter++
}

func boolToInt8(b bool) int8 {
	if b {
		return 1
	}
	return 0
}

func (w *Writer) Close() error {
	logger.Info("Closing file "+w.Filename, "writer")
	var errs []error

	if err := w.EventTable.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing event table: %w", err))
	}
	if err := w.RunInfoTable.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing run info table: %w", err))
	}
	if err := w.PointingTable.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing pointing table: %w", err))
	}
	if err := w.TriggerTable.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing trigger table: %w", err))
	}
	if err := w.CountersTable.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing counters table: %w", err))
	}
	if w.Waveforms != nil {
		if err := w.Waveforms.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing waveforms: %w", err))
		}
	}
	if w.SelectedGain != nil {
		if err := w.SelectedGain.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing selected gain channels: %w", err))
		}
	}
	if err := w.PixelStatus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing pixel status: %w", err))
	}
	if err := w.RunGroup.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing run group: %w", err))
	}
	if err := w.R1Group.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing R1 group: %w", err))
	}
	if err := w.MonGroup.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing monitoring group: %w", err))
	}
	if err := w.TriggerGroup.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing trigger group: %w", err))
	}
	if err := w.File.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing file: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
