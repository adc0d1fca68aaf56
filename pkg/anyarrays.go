package lstio

import "encoding/binary"

// The auxiliary device data arrives as opaque byte columns whose layout is
// fixed by the camera server. All fields are little endian and packed, so
// they are read with a plain byte cursor instead of binary.Read on a
// struct.

type byteCursor struct {
	data []byte
	pos  int
}

func (c *byteCursor) u8() uint8 {
	v := c.data[c.pos]
	c.pos++
	return v
}

func (c *byteCursor) u16() uint16 {
	v := binary.LittleEndian.Uint16(c.data[c.pos:])
	c.pos += 2
	return v
}

// u24 reads a 3-byte little endian counter into a uint32.
func (c *byteCursor) u24() uint32 {
	v := uint32(c.data[c.pos]) | uint32(c.data[c.pos+1])<<8 | uint32(c.data[c.pos+2])<<16
	c.pos += 3
	return v
}

func (c *byteCursor) u32() uint32 {
	v := binary.LittleEndian.Uint32(c.data[c.pos:])
	c.pos += 4
	return v
}

func (c *byteCursor) u64() uint64 {
	v := binary.LittleEndian.Uint64(c.data[c.pos:])
	c.pos += 8
	return v
}

const (
	tibBlockSize     = 12
	uctsBlockSize    = 36
	uctsOldBlockSize = 30
	swatBlockSize    = 27
	dragonModuleSize = 22
)

func decodeTIB(data []byte) TIBData {
	c := byteCursor{data: data}
	return TIBData{
		EventCounter:  c.u32(),
		PPSCounter:    c.u16(),
		TenMHzCounter: c.u24(),
		StereoPattern: c.u16(),
		MaskedTrigger: c.u8(),
	}
}

// decodeUCTS decodes the CDTS block. The layout changed with idaq version
// 37201; newLayout selects the current one.
func decodeUCTS(data []byte, newLayout bool) UCTSData {
	c := byteCursor{data: data}
	if !newLayout {
		return UCTSData{
			EventCounter:      c.u32(),
			PPSCounter:        c.u32(),
			ClockCounter:      c.u32(),
			Timestamp:         c.u64(),
			CameraTimestamp:   c.u64(),
			TriggerType:       c.u8(),
			WhiteRabbitStatus: c.u8(),
		}
	}
	return UCTSData{
		Timestamp:         c.u64(),
		Address:           c.u32(),
		EventCounter:      c.u32(),
		BusyCounter:       c.u32(),
		PPSCounter:        c.u32(),
		ClockCounter:      c.u32(),
		TriggerType:       c.u8(),
		WhiteRabbitStatus: c.u8(),
		StereoPattern:     c.u8(),
		NumInBunch:        c.u8(),
		CDTSVersion:       c.u32(),
	}
}

func decodeSWAT(data []byte) SWATData {
	c := byteCursor{data: data}
	return SWATData{
		Timestamp:      c.u64(),
		Counter1:       c.u32(),
		Counter2:       c.u32(),
		EventType:      c.u8(),
		CameraFlag:     c.u8(),
		CameraEventNum: c.u32(),
		ArrayFlag:      c.u8(),
		ArrayEventNum:  c.u32(),
	}
}

// decodeDragonCounters splits the per-module counter block into
// column-oriented slices of length nModules. A short block yields counters
// only for the modules it covers.
func decodeDragonCounters(data []byte, nModules int) DragonCounters {
	if n := len(data) / dragonModuleSize; n < nModules {
		nModules = n
	}
	counters := DragonCounters{
		PPSCounter:        make([]uint16, nModules),
		TenMHzCounter:     make([]uint32, nModules),
		EventCounter:      make([]uint32, nModules),
		TriggerCounter:    make([]uint32, nModules),
		LocalClockCounter: make([]uint64, nModules),
	}
	for i := 0; i < nModules; i++ {
		c := byteCursor{data: data[i*dragonModuleSize:]}
		counters.PPSCounter[i] = c.u16()
		counters.TenMHzCounter[i] = c.u32()
		counters.EventCounter[i] = c.u32()
		counters.TriggerCounter[i] = c.u32()
		counters.LocalClockCounter[i] = c.u64()
	}
	return counters
}
