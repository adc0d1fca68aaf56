package lstio

// gpIndex flattens a (gain, pixel) pair into the per-camera arrays.
func gpIndex(gain, pixel int) int {
	return gain*NPixels + pixel
}

// firstCapacitorsForPixels maps the per-channel first capacitor ids of the
// Dragon modules onto a flat (NGains, NPixels) array. The seven pixels of
// a module share its eight DRS4 channels, two pixels per chip, with the
// low gain channels in the upper half. expectedPixelsID gives the camera
// pixel for each module pixel; nil keeps module order.
func firstCapacitorsForPixels(firstCapacitorID []uint16, expectedPixelsID []uint16) []uint16 {
	fc := make([]uint16, NGains*NPixels)
	nModules := len(firstCapacitorID) / NChannelsModule
	for pixelInModule := 0; pixelInModule < NPixelsModule; pixelInModule++ {
		for module := 0; module < nModules; module++ {
			index := module*NPixelsModule + pixelInModule
			pixel := index
			if expectedPixelsID != nil {
				pixel = int(expectedPixelsID[index])
			}
			base := module * NChannelsModule
			fc[gpIndex(HighGain, pixel)] = firstCapacitorID[base+ChannelOrderHighGain[pixelInModule]]
			fc[gpIndex(LowGain, pixel)] = firstCapacitorID[base+ChannelOrderLowGain[pixelInModule]]
		}
	}
	return fc
}
