package lstio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func timeTestEvent(pps uint16, tenMHz uint32, ucts uint64) *ArrayEvent {
	event := &ArrayEvent{Svc: &ServiceInfo{Date: 1_600_000_000}}
	event.LST.Counters = DragonCounters{
		PPSCounter:    []uint16{pps},
		TenMHzCounter: []uint32{tenMHz},
	}
	if ucts != 0 {
		event.LST.UCTSAvailable = true
		event.LST.UCTS.Timestamp = ucts
	}
	return event
}

func TestCombineCounters(t *testing.T) {
	assert.Equal(t, uint64(0), combineCounters(0, 0))
	assert.Equal(t, uint64(nsPerSecond), combineCounters(1, 0))
	assert.Equal(t, uint64(nsPerSecond+100), combineCounters(1, 1))
	assert.Equal(t, uint64(3*nsPerSecond+12300), combineCounters(3, 123))
}

func TestEventTimeFollowsUCTS(t *testing.T) {
	c := NewEventTimeCalculator(0)

	const t0 = 1_700_000_000 * uint64(nsPerSecond)
	event := timeTestEvent(10, 0, t0)
	assert.Equal(t, t0, c.Time(event))

	// One second later on both clocks.
	event = timeTestEvent(11, 0, t0+nsPerSecond)
	assert.Equal(t, t0+nsPerSecond, c.Time(event))
	assert.False(t, event.LST.UCTSJump)
}

func TestEventTimeWithoutUCTSUsesDragonCounters(t *testing.T) {
	c := NewEventTimeCalculator(0)

	const t0 = 1_700_000_000 * uint64(nsPerSecond)
	event := timeTestEvent(10, 0, t0)
	assert.Equal(t, t0, c.Time(event))

	// UCTS missing, half a second passed on the Dragon clock.
	event = timeTestEvent(10, 5_000_000, 0)
	assert.Equal(t, t0+nsPerSecond/2, c.Time(event))
}

func TestEventTimeDetectsUCTSJump(t *testing.T) {
	c := NewEventTimeCalculator(0)

	const t0 = 1_700_000_000 * uint64(nsPerSecond)
	event := timeTestEvent(10, 0, t0)
	assert.Equal(t, t0, c.Time(event))

	// The UCTS timestamp of the previous event repeats while the counters
	// advanced a full second.
	event = timeTestEvent(11, 0, t0)
	assert.Equal(t, t0+nsPerSecond, c.Time(event))
	assert.True(t, event.LST.UCTSJump)

	// A consistent timestamp afterwards is trusted again.
	event = timeTestEvent(12, 0, t0+2*nsPerSecond)
	assert.Equal(t, t0+2*nsPerSecond, c.Time(event))
	assert.False(t, event.LST.UCTSJump)
}

func TestEventTimeAnchorsOnRunDateWithoutUCTS(t *testing.T) {
	c := NewEventTimeCalculator(0)

	event := timeTestEvent(100, 0, 0)
	assert.Equal(t, uint64(1_600_000_000)*nsPerSecond, c.Time(event))
}
