package lstio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/astrogo/fitsio"
)

// CameraConfig mirrors the CameraConfig table of a raw file.
type CameraConfig struct {
	ConfigurationID    uint64   `fits:"configuration_id"`
	Date               float64  `fits:"date"`
	NumPixels          int32    `fits:"num_pixels"`
	NumSamples         int32    `fits:"num_samples"`
	ExpectedPixelsID   []uint16 `fits:"expected_pixels_id"`
	DataModelVersion   string   `fits:"data_model_version"`
	TelescopeID        int32    `fits:"lstcam_telescope_id"`
	CSSerial           string   `fits:"lstcam_cs_serial"`
	NumModules         int32    `fits:"lstcam_num_modules"`
	ExpectedModulesID  []uint16 `fits:"lstcam_expected_modules_id"`
	IdaqVersion        uint32   `fits:"lstcam_idaq_version"`
	CdhsVersion        uint32   `fits:"lstcam_cdhs_version"`
	Algorithms         string   `fits:"lstcam_algorithms"`
	PreProcAlgorithms  string   `fits:"lstcam_pre_proc_algorithms"`
}

// ServiceInfo converts the table row into the event container block.
func (c *CameraConfig) ServiceInfo() *ServiceInfo {
	return &ServiceInfo{
		TelescopeID:       int(c.TelescopeID),
		CSSerial:          c.CSSerial,
		ConfigurationID:   c.ConfigurationID,
		Date:              c.Date,
		NumPixels:         int(c.NumPixels),
		NumSamples:        int(c.NumSamples),
		PixelIDs:          c.ExpectedPixelsID,
		DataModelVersion:  c.DataModelVersion,
		NumModules:        int(c.NumModules),
		ModuleIDs:         c.ExpectedModulesID,
		IdaqVersion:       c.IdaqVersion,
		CdhsVersion:       c.CdhsVersion,
		Algorithms:        c.Algorithms,
		PreProcAlgorithms: c.PreProcAlgorithms,
	}
}

// RawEvent mirrors one row of the Events table. The lstcam byte columns
// stay opaque here and are decoded later.
type RawEvent struct {
	ConfigurationID    uint64   `fits:"configuration_id"`
	EventID            uint64   `fits:"event_id"`
	TelEventID         uint64   `fits:"tel_event_id"`
	TriggerType        uint16   `fits:"trigger_type"`
	Waveform           []uint16 `fits:"waveform"`
	PixelStatus        []uint8  `fits:"pixel_status"`
	PedID              int32    `fits:"ped_id"`
	ModuleStatus       []uint8  `fits:"lstcam_module_status"`
	ExtdevicesPresence uint16   `fits:"lstcam_extdevices_presence"`
	TIBData            []uint8  `fits:"lstcam_tib_data"`
	CDTSData           []uint8  `fits:"lstcam_cdts_data"`
	SWATData           []uint8  `fits:"lstcam_swat_data"`
	Counters           []uint8  `fits:"lstcam_counters"`
	ChipsFlags         []uint16 `fits:"lstcam_chips_flags"`
	FirstCapacitorID   []uint16 `fits:"lstcam_first_capacitor_id"`
	DrsTagStatus       []uint16 `fits:"lstcam_drs_tag_status"`
	DrsTag             []uint16 `fits:"lstcam_drs_tag"`
}

// RawFile reads one stream file: its CameraConfig row and the Events rows
// in file order.
type RawFile struct {
	name   string
	osf    *os.File
	fits   *fitsio.File
	events *fitsio.Table
	rows   *fitsio.Rows
	config CameraConfig
	nRows  int64
}

// OpenRawFile opens a single raw stream file and reads its configuration.
func OpenRawFile(filename string) (*RawFile, error) {
	osf, err := os.Open(filename)
	if err != nil {
		return nil, ErrOpenFile{Filename: filename, Err: err}
	}
	f, err := fitsio.Open(osf)
	if err != nil {
		osf.Close()
		return nil, ErrOpenFile{Filename: filename, Err: err}
	}
	r := &RawFile{name: filename, osf: osf, fits: f}
	if err := r.readConfig(); err != nil {
		r.Close()
		return nil, err
	}
	if err := r.openEvents(); err != nil {
		r.Close()
		return nil, err
	}
	logger.Info(fmt.Sprintf("Opened %s: run %d, %d events",
		filepath.Base(filename), r.config.ConfigurationID, r.nRows), "zfits")
	return r, nil
}

func (r *RawFile) table(name string) (*fitsio.Table, error) {
	for _, hdu := range r.fits.HDUs() {
		if hdu.Name() != name {
			continue
		}
		table, ok := hdu.(*fitsio.Table)
		if !ok {
			return nil, ErrMissingTable{Filename: r.name, TableName: name}
		}
		return table, nil
	}
	return nil, ErrMissingTable{Filename: r.name, TableName: name}
}

func (r *RawFile) readConfig() error {
	table, err := r.table("CameraConfig")
	if err != nil {
		return err
	}
	rows, err := table.Read(0, 1)
	if err != nil {
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return ErrMissingTable{Filename: r.name, TableName: "CameraConfig"}
	}
	return rows.Scan(&r.config)
}

func (r *RawFile) openEvents() error {
	table, err := r.table("Events")
	if err != nil {
		return err
	}
	r.events = table
	r.nRows = table.NumRows()
	rows, err := table.Read(0, r.nRows)
	if err != nil {
		return err
	}
	r.rows = rows
	return nil
}

// Config returns the CameraConfig row of this stream.
func (r *RawFile) Config() *CameraConfig { return &r.config }

// NumEvents returns the number of rows in the Events table.
func (r *RawFile) NumEvents() int64 { return r.nRows }

// NextEvent returns the next event row, or io.EOF after the last one.
func (r *RawFile) NextEvent() (*RawEvent, error) {
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	var evt RawEvent
	if err := r.rows.Scan(&evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

func (r *RawFile) Close() error {
	var errs []error
	if r.rows != nil {
		errs = append(errs, r.rows.Close())
	}
	if r.fits != nil {
		errs = append(errs, r.fits.Close())
	}
	if r.osf != nil {
		errs = append(errs, r.osf.Close())
	}
	return errors.Join(errs...)
}

// IsCompatible reports whether the file is a camera raw file this package
// can read. Any error while probing counts as not compatible.
func IsCompatible(filename string) bool {
	osf, err := os.Open(filename)
	if err != nil {
		return false
	}
	defer osf.Close()
	f, err := fitsio.Open(osf)
	if err != nil {
		return false
	}
	defer f.Close()
	for _, hdu := range f.HDUs() {
		if hdu.Name() != "Events" {
			continue
		}
		return compatibleEventsHeader(hdu.Header())
	}
	return false
}

// compatibleEventsHeader checks the Events header for the camera server's
// signature: a compressed bintable written by CTA holding R1.CameraEvent
// rows with the lstcam counter column.
func compatibleEventsHeader(hdr *fitsio.Header) bool {
	ztable, ok := headerBool(hdr, "ZTABLE")
	if !ok || !ztable {
		return false
	}
	if origin, ok := headerString(hdr, "ORIGIN"); !ok || origin != "CTA" {
		return false
	}
	if pbfhead, ok := headerString(hdr, "PBFHEAD"); !ok || pbfhead != "R1.CameraEvent" {
		return false
	}
	ncols, ok := headerInt(hdr, "TFIELDS")
	if !ok {
		return false
	}
	for i := 1; i <= ncols; i++ {
		if name, ok := headerString(hdr, "TTYPE"+strconv.Itoa(i)); ok && name == "lstcam_counters" {
			return true
		}
	}
	return false
}

func headerString(hdr *fitsio.Header, key string) (string, bool) {
	card := hdr.Get(key)
	if card == nil {
		return "", false
	}
	s, ok := card.Value.(string)
	return s, ok
}

func headerBool(hdr *fitsio.Header, key string) (bool, bool) {
	card := hdr.Get(key)
	if card == nil {
		return false, false
	}
	b, ok := card.Value.(bool)
	return b, ok
}

func headerInt(hdr *fitsio.Header, key string) (int, bool) {
	card := hdr.Get(key)
	if card == nil {
		return 0, false
	}
	switch v := card.Value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	return 0, false
}

// Stream files follow the pattern <tel>.<stream>.Run<run>.<subrun><ext>,
// for example LST-1.1.Run02008.0000.fits.fz.
var streamFileRe = regexp.MustCompile(`^(LST-\d+)\.(\d+)\.Run(\d+)\.(\d+)(.*)$`)

type streamFileInfo struct {
	Tel    string
	Stream int
	Run    int
	Subrun int
	Ext    string
}

func parseStreamFilename(name string) (streamFileInfo, bool) {
	m := streamFileRe.FindStringSubmatch(name)
	if m == nil {
		return streamFileInfo{}, false
	}
	stream, _ := strconv.Atoi(m[2])
	run, _ := strconv.Atoi(m[3])
	subrun, _ := strconv.Atoi(m[4])
	return streamFileInfo{Tel: m[1], Stream: stream, Run: run, Subrun: subrun, Ext: m[5]}, true
}

// allStreamPaths discovers the sibling stream files of path for the same
// run and subrun. If the name does not match the stream pattern, or
// allStreams is false, only path itself is returned.
func allStreamPaths(path string, allStreams bool) ([]string, error) {
	info, ok := parseStreamFilename(filepath.Base(path))
	if !ok || !allStreams {
		return []string{path}, nil
	}
	pattern := filepath.Join(filepath.Dir(path),
		fmt.Sprintf("%s.*.Run%05d.%04d%s", info.Tel, info.Run, info.Subrun, info.Ext))
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return []string{path}, err
	}
	sort.Strings(matches)
	return matches, nil
}
