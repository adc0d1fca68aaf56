package lstio

// EventType is the trigger classification of an event, using the host
// framework's codes.
type EventType uint8

const (
	EventTypeFlatfield   EventType = 0
	EventTypeSinglePE    EventType = 1
	EventTypeSkyPedestal EventType = 2
	EventTypeSubarray    EventType = 32
	EventTypeUnknown     EventType = 255
)

func (t EventType) String() string {
	switch t {
	case EventTypeFlatfield:
		return "FLATFIELD"
	case EventTypeSinglePE:
		return "SINGLE_PE"
	case EventTypeSkyPedestal:
		return "SKY_PEDESTAL"
	case EventTypeSubarray:
		return "SUBARRAY"
	default:
		return "UNKNOWN"
	}
}

// DataLevel of the containers a source fills.
type DataLevel int

const (
	DataLevelR0 DataLevel = iota
	DataLevelR1
)

// R0Camera holds the uncalibrated waveforms, flat in
// (NGains, NPixels, NSamples) order.
type R0Camera struct {
	Waveform []uint16
}

// At returns the sample for the given gain, pixel and sample index.
func (r *R0Camera) At(gain, pixel, sample int) uint16 {
	return r.Waveform[(gain*NPixels+pixel)*NSamples+sample]
}

// R1Camera holds the calibrated waveforms. Before gain selection the layout
// is (NGains, NPixels, Samples); after selection it is (NPixels, Samples)
// and SelectedGainChannel records the channel kept for each pixel, -1 for
// pixels missing from the file.
type R1Camera struct {
	Waveform            []float32
	SelectedGainChannel []int8
	Samples             int
}

func (r *R1Camera) GainSelected() bool {
	return r.SelectedGainChannel != nil
}

// ServiceInfo is the per-run detector configuration, copied from the
// CameraConfig table of the raw file.
type ServiceInfo struct {
	TelescopeID       int
	CSSerial          string
	ConfigurationID   uint64
	Date              float64
	NumPixels         int
	NumSamples        int
	PixelIDs          []uint16
	DataModelVersion  string
	NumModules        int
	ModuleIDs         []uint16
	IdaqVersion       uint32
	CdhsVersion       uint32
	Algorithms        string
	PreProcAlgorithms string
}

// TIBData are the fields of the TIB auxiliary block.
type TIBData struct {
	EventCounter  uint32
	PPSCounter    uint16
	TenMHzCounter uint32
	StereoPattern uint16
	MaskedTrigger uint8
}

// UCTSData are the fields of the UCTS/CDTS auxiliary block. Fields marked
// new are only present for idaq versions above 37201.
type UCTSData struct {
	Timestamp         uint64
	Address           uint32 // new
	EventCounter      uint32
	BusyCounter       uint32 // new
	PPSCounter        uint32
	ClockCounter      uint32
	TriggerType       uint8
	WhiteRabbitStatus uint8
	StereoPattern     uint8  // new
	NumInBunch        uint8  // new
	CDTSVersion       uint32 // new
	CameraTimestamp   uint64 // old layout only
}

// SWATData are the fields of the SWAT auxiliary block.
type SWATData struct {
	Timestamp      uint64
	Counter1       uint32
	Counter2       uint32
	EventType      uint8
	CameraFlag     uint8
	CameraEventNum uint32
	ArrayFlag      uint8
	ArrayEventNum  uint32
}

// DragonCounters hold the per-module counters of the Dragon boards.
type DragonCounters struct {
	PPSCounter        []uint16
	TenMHzCounter     []uint32
	EventCounter      []uint32
	TriggerCounter    []uint32
	LocalClockCounter []uint64
}

// LSTEvent is the detector-specific event block.
type LSTEvent struct {
	ConfigurationID    uint64
	EventID            uint64
	TelEventID         uint64
	PixelStatus        []uint8
	PedID              int32
	ModuleStatus       []uint8
	ExtdevicesPresence uint16

	TIBAvailable  bool
	TIB           TIBData
	UCTSAvailable bool
	UCTS          UCTSData
	SWATAvailable bool
	SWAT          SWATData

	Counters         DragonCounters
	ChipsFlags       []uint16
	FirstCapacitorID []uint16
	DrsTagStatus     []uint16
	DrsTag           []uint16

	UCTSJump bool
}

// TriggerInfo holds the array trigger decision for the event.
type TriggerInfo struct {
	// TimeNS is the trigger time as unix nanoseconds.
	TimeNS    uint64
	EventType EventType
	TelsWith  []int
}

// PointingInfo is the telescope pointing interpolated at the trigger time.
type PointingInfo struct {
	AltitudeRad float64
	AzimuthRad  float64
	RaDeg       float64
	DecDeg      float64
}

// MonitoringData holds per gain/pixel status masks, flat in
// (NGains, NPixels) order.
type MonitoringData struct {
	HardwareFailingPixels  []bool
	PedestalFailingPixels  []bool
	FlatfieldFailingPixels []bool
}

// CalibrationEvent holds the per-event data the host framework needs for
// its own DL1 calibration step.
type CalibrationEvent struct {
	// TimeShift per pixel (or per gain/pixel when not gain selected), ns.
	TimeShift []float64
	// RelativeFactor is the charge scale per pixel (or gain/pixel).
	RelativeFactor []float64
}

type EventIndex struct {
	ObsID   uint64
	EventID uint64
}

// ArrayEvent is the top-level container yielded by the event source.
type ArrayEvent struct {
	Count int
	Index EventIndex

	R0  R0Camera
	R1  R1Camera
	LST LSTEvent
	Svc *ServiceInfo

	Trigger     TriggerInfo
	Pointing    *PointingInfo
	Mon         MonitoringData
	Calibration CalibrationEvent

	Meta map[string]string
}

// NewMonitoringData returns masks with every pixel flagged as
// hardware-failing; the per-event fill clears the flags for pixels that
// were read out.
func NewMonitoringData() MonitoringData {
	mon := MonitoringData{
		HardwareFailingPixels:  make([]bool, NGains*NPixels),
		PedestalFailingPixels:  make([]bool, NGains*NPixels),
		FlatfieldFailingPixels: make([]bool, NGains*NPixels),
	}
	for i := range mon.HardwareFailingPixels {
		mon.HardwareFailingPixels[i] = true
	}
	return mon
}
