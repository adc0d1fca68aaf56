package lstio

import (
	"encoding/json"
	"os"
)

type Configuration struct {
	MaxEvents  int    `json:"max_events"`
	Verbosity  int    `json:"verbosity"`
	FileIn     string `json:"file_in"`
	FileOut    string `json:"file_out"`
	AllStreams bool   `json:"all_streams"`

	// Trigger information. UCTS is the preferred source for data newer than
	// 2020-06-25; the source falls back to TIB when UCTS is not present.
	FillTriggerInfo    bool   `json:"fill_trigger_info"`
	DefaultTriggerType string `json:"default_trigger_type"`

	// Flatfield tagging heuristic. When UseFlatfieldHeuristic is nil the
	// decision is made from the run start date.
	UseFlatfieldHeuristic     *bool   `json:"use_flatfield_heuristic"`
	MinFlatfieldADC           float32 `json:"min_flatfield_adc"`
	MaxFlatfieldADC           float32 `json:"max_flatfield_adc"`
	MinFlatfieldPixelFraction float32 `json:"min_flatfield_pixel_fraction"`

	// R0 -> R1 corrections
	ApplyDRS4Corrections        bool    `json:"apply_drs4_corrections"`
	ApplyDRS4PedestalCorrection bool    `json:"apply_drs4_pedestal_correction"`
	ApplyTimelapseCorrection    bool    `json:"apply_timelapse_correction"`
	ApplySpikeCorrection        bool    `json:"apply_spike_correction"`
	Offset                      int     `json:"offset"`
	R1SampleStart               int     `json:"r1_sample_start"`
	R1SampleEnd                 int     `json:"r1_sample_end"`
	SelectGain                  bool    `json:"select_gain"`
	GainSelectionThreshold      float32 `json:"gain_selection_threshold"`
	CalibScaleHighGain          float64 `json:"calib_scale_high_gain"`
	CalibScaleLowGain           float64 `json:"calib_scale_low_gain"`
	AddCalibrationTimeshift     bool    `json:"add_calibration_timeshift"`
	CalibrateFlatfieldsAndPeds  bool    `json:"calibrate_flatfields_and_pedestals"`

	// Calibration inputs
	CalibrationPath         string `json:"calibration_path"`
	DRS4PedestalPath        string `json:"drs4_pedestal_path"`
	DRS4TimeCalibrationPath string `json:"drs4_time_calibration_path"`
	PedestalIDsPath         string `json:"pedestal_ids_path"`

	// Pointing
	FillPointingInfo bool   `json:"fill_pointing_info"`
	DriveReportPath  string `json:"drive_report_path"`

	// Instrument description
	CameraGeometryPath string `json:"camera_geometry_path"`
	PulseShapePath     string `json:"pulse_shape_path"`

	// Instrument database
	NoDB   bool   `json:"no_db"`
	Host   string `json:"host"`
	User   string `json:"user"`
	Passwd string `json:"pass"`
	DBName string `json:"dbname"`

	// HDF5 output
	WriteData        bool `json:"write_data"`
	CompressionLevel int  `json:"compression_level"`
}

var configuration Configuration

func GetConfiguration() Configuration {
	return configuration
}

func SetConfiguration(config Configuration) {
	configuration = config
}

// DefaultConfiguration returns the settings used when the config file does
// not override them.
func DefaultConfiguration() Configuration {
	var config Configuration
	config.MaxEvents = 1000000000
	config.Verbosity = 0
	config.AllStreams = true
	config.FillTriggerInfo = true
	config.DefaultTriggerType = "ucts"
	config.MinFlatfieldADC = 3000
	config.MaxFlatfieldADC = 12000
	config.MinFlatfieldPixelFraction = 0.8
	config.ApplyDRS4Corrections = true
	config.ApplyDRS4PedestalCorrection = true
	config.ApplyTimelapseCorrection = true
	config.ApplySpikeCorrection = true
	config.Offset = 400
	config.R1SampleStart = 3
	config.R1SampleEnd = 39
	config.SelectGain = true
	config.GainSelectionThreshold = 3500
	config.CalibScaleHighGain = 1.0
	config.CalibScaleLowGain = 1.0
	config.AddCalibrationTimeshift = true
	config.CalibrateFlatfieldsAndPeds = true
	config.FillPointingInfo = false
	config.NoDB = false
	config.Host = "db.lst1.iac.es"
	config.User = "lstreader"
	config.Passwd = "readonly"
	config.DBName = "LST1"
	config.WriteData = true
	config.CompressionLevel = 4
	return config
}

func LoadConfiguration(filename string) (Configuration, error) {
	config := DefaultConfiguration()

	data, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = json.Unmarshal(data, &config)
	if err != nil {
		return config, err
	}
	return config, nil
}
