package lstio

import "fmt"

// The Dragon boards count seconds (pps) and a 10 MHz clock since power on.
// Anchoring those counters to the absolute UCTS timestamp of one event
// gives an absolute time for every event, including events where the UCTS
// data is missing or shifted.

const (
	nsPerSecond    = 1_000_000_000
	nsPerTenMHzTick = 100

	// uctsJumpToleranceNS flags UCTS timestamps that disagree with the
	// Dragon counters by more than one readout frame as jumped.
	uctsJumpToleranceNS = 10_000_000
)

// EventTimeCalculator derives the trigger time of each event from the
// Dragon counters of a reference module, anchored to the first reliable
// UCTS timestamp of the run.
type EventTimeCalculator struct {
	moduleIndex int

	anchored           bool
	referenceTimeNS    uint64
	referenceCounterNS uint64

	lastUCTSTimestamp uint64
}

// NewEventTimeCalculator uses the Dragon counters of the module at the
// given index in the module list.
func NewEventTimeCalculator(moduleIndex int) *EventTimeCalculator {
	return &EventTimeCalculator{moduleIndex: moduleIndex}
}

// combineCounters converts a pps / 10 MHz counter pair into nanoseconds.
func combineCounters(ppsCounter uint16, tenMHzCounter uint32) uint64 {
	return uint64(ppsCounter)*nsPerSecond + uint64(tenMHzCounter)*nsPerTenMHzTick
}

// Time returns the trigger time of the event as unix nanoseconds and
// flags events whose UCTS timestamp jumped.
func (c *EventTimeCalculator) Time(event *ArrayEvent) uint64 {
	counters := &event.LST.Counters
	module := c.moduleIndex
	if module >= len(counters.PPSCounter) {
		module = 0
	}
	var counterNS uint64
	if len(counters.PPSCounter) > 0 {
		counterNS = combineCounters(counters.PPSCounter[module], counters.TenMHzCounter[module])
	}

	uctsValid := event.LST.UCTSAvailable && event.LST.UCTS.Timestamp != 0

	if !c.anchored {
		if uctsValid {
			c.referenceTimeNS = event.LST.UCTS.Timestamp
			c.referenceCounterNS = counterNS
			c.anchored = true
			logger.Info(fmt.Sprintf(
				"Dragon reference for event %d: time %d ns, counter %d ns",
				event.LST.EventID, c.referenceTimeNS, c.referenceCounterNS,
			), "eventtime")
		} else {
			// No UCTS yet, fall back to the run start date from the
			// camera configuration.
			c.referenceTimeNS = uint64(event.Svc.Date * nsPerSecond)
			c.referenceCounterNS = counterNS
		}
	}

	dragonTimeNS := c.referenceTimeNS + counterNS - c.referenceCounterNS

	if !uctsValid {
		return dragonTimeNS
	}

	ucts := event.LST.UCTS.Timestamp
	delta := int64(ucts) - int64(dragonTimeNS)
	if delta < 0 {
		delta = -delta
	}
	if c.lastUCTSTimestamp != 0 && (ucts <= c.lastUCTSTimestamp || delta > uctsJumpToleranceNS) {
		// UCTS data shifted by one or more events, trust the counters.
		event.LST.UCTSJump = true
		logger.Info(fmt.Sprintf(
			"UCTS timestamp of event %d jumped, using Dragon time", event.LST.EventID,
		), "eventtime")
		return dragonTimeNS
	}
	c.lastUCTSTimestamp = ucts
	return ucts
}
