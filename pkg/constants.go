package lstio

// Camera dimensioning. The LSTCam event builder delivers data for 265
// 7-pixel modules; every per-pixel array in the containers is sized with
// these regardless of how many pixels a given file actually carries.
const (
	NGains        = 2
	NModules      = 265
	NPixelsModule = 7
	NPixels       = NModules * NPixelsModule
	NSamples      = 40

	HighGain = 0
	LowGain  = 1

	// 4 DRS4 channels are cascaded for each pixel
	NCapacitorsChannel = 1024
	NCapacitorsPixel   = 4 * NCapacitorsChannel

	// 8 channels per module, only 7 are used
	NChannelsModule = 8

	ClockFrequencyKHz = 133e3
)

// First capacitor order according to the Dragon v5 board data format.
var (
	ChannelOrderHighGain = [NPixelsModule]int{0, 0, 1, 1, 2, 2, 3}
	ChannelOrderLowGain  = [NPixelsModule]int{4, 4, 5, 5, 6, 6, 7}
)

// TelescopeID is the id of LST-1 in the array.
const TelescopeID = 1

// LastRunWithOldFirmware is the last run taken before the 2019-11-05 Dragon
// firmware update. The readout before the update is shifted by one cell,
// which changes the timelapse and spike corrections.
const LastRunWithOldFirmware = 1573

// EarthLocation is a geodetic position in degrees / meters.
type EarthLocation struct {
	LonDeg  float64
	LatDeg  float64
	HeightM float64
}

// LST1Location is the position of LST-1: height of the central pin plus the
// distance from pin to elevation axis.
var LST1Location = EarthLocation{
	LonDeg:  -17.89149701,
	LatDeg:  28.76152611,
	HeightM: 2184 + 15.883,
}

// ReferenceLocation is the area averaged position of LST-1, MAGIC-1 and
// MAGIC-2, at the MC observation level.
var ReferenceLocation = EarthLocation{
	LonDeg:  -17.890879,
	LatDeg:  28.761579,
	HeightM: 2199,
}

// LSTLocations maps telescope id to its position.
var LSTLocations = map[int]EarthLocation{
	1: LST1Location,
}
