package lstio

import (
	hdf5 "github.com/next-exp/hdf5-go"
)

type EventInfoHDF5 struct {
	evt_number int32
	timestamp  uint64
	event_type int32
	ucts_jump  int8
}

type RunInfoHDF5 struct {
	run_number  int32
	num_modules int32
	idaq        int32
	cs_serial   [STRLEN]byte
	data_model  [STRLEN]byte
}

type PointingHDF5 struct {
	azimuth  float64
	altitude float64
	ra       float64
	dec      float64
}

type CountersHDF5 struct {
	pps_counter        int32
	tenMHz_counter     int32
	trigger_counter    int32
	local_clock_lowest int64
}

const STRLEN = 20

func convertToHdf5String(s string) [STRLEN]byte {
	var byteArray [STRLEN]byte
	copy(byteArray[:], s)
	return byteArray
}

func createFile(fname string) *hdf5.File {
	f, err := hdf5.CreateFile(fname, hdf5.F_ACC_TRUNC)
	if err != nil {
		panic(err)
	}
	return f
}

func createGroup(file *hdf5.File, groupName string) *hdf5.Group {
	g, err := file.CreateGroup(groupName)
	if err != nil {
		panic(err)
	}
	return g
}

func create3dArray(group *hdf5.Group, name string, dtype *hdf5.Datatype, nPixels int, nSamples int) *hdf5.Dataset {
	dimsArray := []uint{0, 0, 0}
	unlimitedDims := -1 // H5S_UNLIMITED is -1L
	maxDimsArray := []uint{uint(unlimitedDims), uint(nPixels), uint(nSamples)}

	chunks := []uint{1, 50, uint(nSamples)}
	return createArray(group, name, dtype, dimsArray, maxDimsArray, chunks)
}

func create2dArray(group *hdf5.Group, name string, dtype *hdf5.Datatype, nPixels int) *hdf5.Dataset {
	dimsArray := []uint{0, 0}
	unlimitedDims := -1 // H5S_UNLIMITED is -1L
	maxDimsArray := []uint{uint(unlimitedDims), uint(nPixels)}
	chunks := []uint{1, 32768}
	if nPixels < 32768 {
		chunks[1] = uint(nPixels)
	}
	return createArray(group, name, dtype, dimsArray, maxDimsArray, chunks)
}

func createArray(group *hdf5.Group, name string, dtype *hdf5.Datatype, dims []uint, maxDims []uint, chunks []uint) *hdf5.Dataset {
	file_spaceArray, err := hdf5.CreateSimpleDataspace(dims, maxDims)
	if err != nil {
		panic(err)
	}

	plistArray, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		panic(err)
	}

	plistArray.SetChunk(chunks)
	plistArray.SetDeflate(configuration.CompressionLevel)

	dsetArray, err := group.CreateDatasetWith(name, dtype, file_spaceArray, plistArray)
	if err != nil {
		panic(err)
	}
	return dsetArray
}

func createTable(group *hdf5.Group, name string, datatype interface{}) *hdf5.Dataset {
	dims := []uint{0}
	unlimitedDims := -1 // H5S_UNLIMITED is -1L
	maxDims := []uint{uint(unlimitedDims)}
	file_space, err := hdf5.CreateSimpleDataspace(dims, maxDims)
	if err != nil {
		panic(err)
	}

	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		panic(err)
	}

	chunks := []uint{32768}
	plist.SetChunk(chunks)
	plist.SetDeflate(configuration.CompressionLevel)

	dtype, err := hdf5.NewDatatypeFromValue(datatype)
	if err != nil {
		panic(err)
	}

	dset, err := group.CreateDatasetWith(name, dtype, file_space, plist)
	if err != nil {
		panic(err)
	}
	return dset
}

func writeEntryToTable[T any](dataset *hdf5.Dataset, data T, evtCounter int) {
	array := []T{data}
	writeArrayToTable(dataset, &array, evtCounter)
}

func writeArrayToTable[T any](dataset *hdf5.Dataset, data *[]T, evtCounter int) {
	length := uint(len(*data))
	dims := []uint{length}
	dataspace, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		panic(err)
	}

	eventsInFile := uint(evtCounter)
	newsize := []uint{eventsInFile + length}
	dataset.Resize(newsize)
	filespace := dataset.Space()

	start := []uint{eventsInFile}
	count := []uint{length}
	filespace.SelectHyperslab(start, nil, count, nil)

	err = dataset.WriteSubset(data, dataspace, filespace)
	if err != nil {
		panic(err)
	}

	dataspace.Close()
	filespace.Close()
}

func write3dArray[T any](dataset *hdf5.Dataset, data *[]T, evtCounter int, nPixels int, nSamples int) {
	newsize := []uint{uint(evtCounter) + 1, uint(nPixels), uint(nSamples)}
	dataset.Resize(newsize)
	filespace := dataset.Space()

	start := []uint{uint(evtCounter), 0, 0}
	count := []uint{1, uint(nPixels), uint(nSamples)}
	filespace.SelectHyperslab(start, nil, count, nil)

	dataspace, err := hdf5.CreateSimpleDataspace(count, nil)
	if err != nil {
		panic(err)
	}

	err = dataset.WriteSubset(data, dataspace, filespace)
	if err != nil {
		panic(err)
	}

	dataspace.Close()
	filespace.Close()
}

func write2dArray[T any](dataset *hdf5.Dataset, data *[]T, evtCounter int, nPixels int) {
	newsize := []uint{uint(evtCounter) + 1, uint(nPixels)}
	dataset.Resize(newsize)
	filespace := dataset.Space()

	start := []uint{uint(evtCounter), 0}
	count := []uint{1, uint(nPixels)}
	filespace.SelectHyperslab(start, nil, count, nil)

	dataspace, err := hdf5.CreateSimpleDataspace(count, nil)
	if err != nil {
		panic(err)
	}

	err = dataset.WriteSubset(data, dataspace, filespace)
	if err != nil {
		panic(err)
	}

	dataspace.Close()
	filespace.Close()
}
