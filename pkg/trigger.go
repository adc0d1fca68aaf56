package lstio

import "fmt"

// TriggerBits are the flags of the TIB trigger pattern and of the UCTS
// trigger type byte.
type TriggerBits uint8

const (
	TriggerBitMono        TriggerBits = 1 << 0
	TriggerBitStereo      TriggerBits = 1 << 1
	TriggerBitCalibration TriggerBits = 1 << 2
	TriggerBitSinglePE    TriggerBits = 1 << 3
	TriggerBitSoftware    TriggerBits = 1 << 4
	TriggerBitPedestal    TriggerBits = 1 << 5
	TriggerBitSlowControl TriggerBits = 1 << 6

	TriggerBitsPhysics = TriggerBitMono | TriggerBitStereo
	TriggerBitsOther   = TriggerBitCalibration | TriggerBitSinglePE |
		TriggerBitSoftware | TriggerBitPedestal | TriggerBitSlowControl
)

// PixelStatusBits are the flags of the per-pixel status byte.
type PixelStatusBits uint8

const (
	PixelBitReserved0      PixelStatusBits = 1 << 0
	PixelBitReserved1      PixelStatusBits = 1 << 1
	PixelBitHighGainStored PixelStatusBits = 1 << 2
	PixelBitLowGainStored  PixelStatusBits = 1 << 3
)

// ChannelInfo extracts the stored-gain bits of a pixel status byte:
// 0 means the pixel was not read out, 1 high gain stored, 2 low gain
// stored, 3 both.
func ChannelInfo(status uint8) uint8 {
	return (status & 0b1100) >> 2
}

// EventTypeFromTriggerBits maps a trigger pattern to an event type.
// Patterns that mix physics and calibration-like bits, and patterns with
// several calibration-like bits set, cannot be classified and map to
// UNKNOWN.
func EventTypeFromTriggerBits(bits TriggerBits) EventType {
	if bits&TriggerBitsPhysics != 0 && bits&TriggerBitsOther == 0 {
		return EventTypeSubarray
	}
	// Flatfield events in some runs also carry the mono bit.
	if bits == TriggerBitCalibration || bits == TriggerBitCalibration|TriggerBitMono {
		return EventTypeFlatfield
	}
	switch bits {
	case TriggerBitPedestal:
		return EventTypeSkyPedestal
	case TriggerBitSinglePE:
		return EventTypeSinglePE
	}
	return EventTypeUnknown
}

func (b TriggerBits) String() string {
	return fmt.Sprintf("TriggerBits(0b%07b)", uint8(b))
}
