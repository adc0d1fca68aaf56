package lstio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServiceInfo() *ServiceInfo {
	pixelIDs := make([]uint16, NPixels)
	for i := range pixelIDs {
		pixelIDs[i] = uint16(i)
	}
	// Swapping the first two entries exercises the pixel reordering.
	pixelIDs[0], pixelIDs[1] = 1, 0

	return &ServiceInfo{
		TelescopeID: TelescopeID,
		NumPixels:   NPixels,
		NumSamples:  NSamples,
		NumModules:  NModules,
		PixelIDs:    pixelIDs,
		IdaqVersion: 40000,
	}
}

func newTestSource() *LSTEventSource {
	return &LSTEventSource{
		svc:            testServiceInfo(),
		timeCalculator: NewEventTimeCalculator(0),
	}
}

func newTestEvent(svc *ServiceInfo) *ArrayEvent {
	return &ArrayEvent{
		Index: EventIndex{ObsID: 2008, EventID: 1},
		Svc:   svc,
		Mon:   NewMonitoringData(),
	}
}

func bothGainsStatus() []uint8 {
	status := make([]uint8, NPixels)
	for i := range status {
		status[i] = uint8(PixelBitHighGainStored | PixelBitLowGainStored)
	}
	return status
}

func TestFillR0R1(t *testing.T) {
	SetConfiguration(DefaultConfiguration())
	s := newTestSource()
	event := newTestEvent(s.svc)

	raw := &RawEvent{
		EventID:     1,
		PixelStatus: bothGainsStatus(),
		Waveform:    make([]uint16, NGains*NPixels*NSamples),
	}
	// File index 0 maps to camera pixel 1.
	raw.Waveform[0] = 111
	raw.Waveform[(NPixels+0)*NSamples] = 222

	require.NoError(t, s.fillR0R1(event, raw))

	assert.False(t, event.R1.GainSelected())
	assert.Equal(t, uint16(111), event.R0.At(HighGain, 1, 0))
	assert.Equal(t, uint16(222), event.R0.At(LowGain, 1, 0))
	assert.Equal(t, uint16(0), event.R0.At(HighGain, 0, 0))
}

func TestFillR0R1MissingPixels(t *testing.T) {
	SetConfiguration(DefaultConfiguration())
	s := newTestSource()
	// The last module never joined the run.
	s.svc.NumPixels = NPixels - NPixelsModule
	s.svc.PixelIDs = s.svc.PixelIDs[:s.svc.NumPixels]
	event := newTestEvent(s.svc)

	raw := &RawEvent{
		EventID:     1,
		PixelStatus: bothGainsStatus()[:s.svc.NumPixels],
		Waveform:    make([]uint16, NGains*s.svc.NumPixels*NSamples),
	}

	require.NoError(t, s.fillR0R1(event, raw))

	// Missing pixels carry the maximum sample value as marker.
	assert.Equal(t, uint16(math.MaxUint16), event.R0.At(HighGain, NPixels-1, 0))
	assert.Equal(t, uint16(math.MaxUint16), event.R0.At(LowGain, NPixels-1, 0))
	assert.Equal(t, uint16(0), event.R0.At(HighGain, 0, 0))
}

func TestFillR0R1GainSelected(t *testing.T) {
	SetConfiguration(DefaultConfiguration())
	s := newTestSource()
	event := newTestEvent(s.svc)

	status := make([]uint8, NPixels)
	for i := range status {
		status[i] = uint8(PixelBitHighGainStored)
	}
	status[2] = uint8(PixelBitLowGainStored)

	raw := &RawEvent{
		EventID:     1,
		PixelStatus: status,
		Waveform:    make([]uint16, NPixels*NSamples),
	}
	raw.Waveform[2*NSamples] = 333

	require.NoError(t, s.fillR0R1(event, raw))

	require.True(t, event.R1.GainSelected())
	assert.Equal(t, int8(LowGain), event.R1.SelectedGainChannel[2])
	assert.Equal(t, int8(HighGain), event.R1.SelectedGainChannel[0])
	assert.Equal(t, float32(333), event.R1.Waveform[2*NSamples])
}

func TestFillR0R1GainSelectedBrokenMissing(t *testing.T) {
	SetConfiguration(DefaultConfiguration())
	s := newTestSource()
	event := newTestEvent(s.svc)

	status := make([]uint8, NPixels)
	for i := range status {
		status[i] = uint8(PixelBitHighGainStored)
	}
	// One pixel without any stored gain and one waveform short.
	status[10] = 0

	raw := &RawEvent{
		EventID:     1,
		PixelStatus: status,
		Waveform:    make([]uint16, (NPixels-1)*NSamples),
	}

	err := s.fillR0R1(event, raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pixels missing")
}

func TestFillR0R1TruncatedWaveform(t *testing.T) {
	SetConfiguration(DefaultConfiguration())
	s := newTestSource()
	event := newTestEvent(s.svc)

	raw := &RawEvent{
		EventID:     1,
		PixelStatus: bothGainsStatus(),
		Waveform:    make([]uint16, NGains*NPixels*NSamples/2),
	}

	err := s.fillR0R1(event, raw)
	var shapeErr ErrShapeMismatch
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, "waveforms", shapeErr.What)
}

func TestFillR0R1WrongSampleCount(t *testing.T) {
	SetConfiguration(DefaultConfiguration())
	s := newTestSource()
	s.svc.NumSamples = 30
	event := newTestEvent(s.svc)

	err := s.fillR0R1(event, &RawEvent{EventID: 1})
	var shapeErr ErrShapeMismatch
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, "samples per waveform", shapeErr.What)
}

func TestFillLSTEventDecodesAuxBlocks(t *testing.T) {
	SetConfiguration(DefaultConfiguration())
	s := newTestSource()
	s.svc.NumModules = 2
	event := newTestEvent(s.svc)

	swat := make([]byte, swatBlockSize)
	swat[16] = 3 // event type

	raw := &RawEvent{
		EventID:            1,
		ExtdevicesPresence: 0b101,
		TIBData:            make([]byte, tibBlockSize),
		SWATData:           swat,
		Counters:           make([]byte, 2*dragonModuleSize),
	}

	s.fillLSTEvent(event, raw)

	assert.True(t, event.LST.TIBAvailable)
	assert.False(t, event.LST.UCTSAvailable)
	assert.True(t, event.LST.SWATAvailable)
	assert.Equal(t, uint8(3), event.LST.SWAT.EventType)
	assert.Len(t, event.LST.Counters.PPSCounter, 2)
}

func TestFillMon(t *testing.T) {
	s := newTestSource()
	event := newTestEvent(s.svc)

	status := bothGainsStatus()
	// File index 0 is camera pixel 1.
	status[0] = 0

	s.fillMon(event, &RawEvent{PixelStatus: status})

	assert.True(t, event.Mon.HardwareFailingPixels[gpIndex(HighGain, 1)])
	assert.True(t, event.Mon.HardwareFailingPixels[gpIndex(LowGain, 1)])
	assert.False(t, event.Mon.HardwareFailingPixels[gpIndex(HighGain, 0)])
	assert.False(t, event.Mon.HardwareFailingPixels[gpIndex(LowGain, 2)])
}

func triggerTestEvent(svc *ServiceInfo) *ArrayEvent {
	event := newTestEvent(svc)
	event.LST.Counters = DragonCounters{
		PPSCounter:        []uint16{10},
		TenMHzCounter:     []uint32{0},
		EventCounter:      []uint32{1},
		TriggerCounter:    []uint32{1},
		LocalClockCounter: []uint64{0},
	}
	return event
}

func TestFillTriggerInfoPrefersUCTS(t *testing.T) {
	SetConfiguration(DefaultConfiguration())
	s := newTestSource()
	event := triggerTestEvent(s.svc)
	event.LST.UCTSAvailable = true
	event.LST.UCTS.Timestamp = 1_600_000_000 * nsPerSecond
	event.LST.UCTS.TriggerType = uint8(TriggerBitMono)
	event.LST.TIBAvailable = true
	event.LST.TIB.MaskedTrigger = uint8(TriggerBitPedestal)

	s.fillTriggerInfo(event)

	assert.Equal(t, EventTypeSubarray, event.Trigger.EventType)
	assert.Equal(t, []int{TelescopeID}, event.Trigger.TelsWith)
	assert.Equal(t, uint64(1_600_000_000)*nsPerSecond, event.Trigger.TimeNS)
}

func TestFillTriggerInfoTIBDefault(t *testing.T) {
	cfg := DefaultConfiguration()
	cfg.DefaultTriggerType = "tib"
	SetConfiguration(cfg)
	s := newTestSource()
	event := triggerTestEvent(s.svc)
	event.LST.UCTSAvailable = true
	event.LST.UCTS.TriggerType = uint8(TriggerBitMono)
	event.LST.TIBAvailable = true
	event.LST.TIB.MaskedTrigger = uint8(TriggerBitPedestal)

	s.fillTriggerInfo(event)
	assert.Equal(t, EventTypeSkyPedestal, event.Trigger.EventType)
}

func TestFillTriggerInfoFallsBackToTIB(t *testing.T) {
	SetConfiguration(DefaultConfiguration())
	s := newTestSource()
	event := triggerTestEvent(s.svc)
	event.LST.TIBAvailable = true
	event.LST.TIB.MaskedTrigger = uint8(TriggerBitCalibration)

	s.fillTriggerInfo(event)
	assert.Equal(t, EventTypeFlatfield, event.Trigger.EventType)
}

func TestFillTriggerInfoNoSource(t *testing.T) {
	SetConfiguration(DefaultConfiguration())
	s := newTestSource()
	event := triggerTestEvent(s.svc)

	s.fillTriggerInfo(event)
	assert.Equal(t, EventTypeUnknown, event.Trigger.EventType)
}

func TestTagFlatfieldEvents(t *testing.T) {
	SetConfiguration(DefaultConfiguration())
	s := newTestSource()

	event := newTestEvent(s.svc)
	event.R1.Samples = NSamples
	event.R1.Waveform = make([]float32, NGains*NPixels*NSamples)
	for pixel := 0; pixel < NPixels; pixel++ {
		for sample := 0; sample < NSamples; sample++ {
			// Sums to 4000 adc per high gain pixel, inside the window.
			event.R1.Waveform[gpIndex(HighGain, pixel)*NSamples+sample] = 100
		}
	}

	s.tagFlatfieldEvents(event)
	assert.Equal(t, EventTypeFlatfield, event.Trigger.EventType)
}

func TestTagFlatfieldEventsRetagsWrongFlatfield(t *testing.T) {
	SetConfiguration(DefaultConfiguration())
	s := newTestSource()

	event := newTestEvent(s.svc)
	event.Trigger.EventType = EventTypeFlatfield
	event.R1.Samples = NSamples
	// All sums are zero, far below the flatfield charge window.
	event.R1.Waveform = make([]float32, NGains*NPixels*NSamples)

	s.tagFlatfieldEvents(event)
	assert.Equal(t, EventTypeUnknown, event.Trigger.EventType)
}

func TestCheckInterleavedPedestal(t *testing.T) {
	s := newTestSource()
	s.pedestalIDs = map[uint64]struct{}{42: {}}

	event := newTestEvent(s.svc)
	event.Index.EventID = 42
	event.Trigger.EventType = EventTypeSubarray
	s.checkInterleavedPedestal(event)
	assert.Equal(t, EventTypeSkyPedestal, event.Trigger.EventType)

	// An event tagged pedestal that is not in the list must be a cosmic.
	event = newTestEvent(s.svc)
	event.Index.EventID = 43
	event.Trigger.EventType = EventTypeSkyPedestal
	s.checkInterleavedPedestal(event)
	assert.Equal(t, EventTypeSubarray, event.Trigger.EventType)
}
