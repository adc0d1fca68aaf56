package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	lstio "github.com/cta-lst/lstio_go/pkg"
)

var configuration lstio.Configuration

var (
	logger         Logger
	VerbosityLevel int
)

func init() {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	handlerStdOut := NewHandler(os.Stdout, opts)
	handlerStdErr := slog.NewJSONHandler(os.Stderr, opts)
	logger = Logger{
		InfoLog:  slog.New(handlerStdOut),
		ErrorLog: slog.New(handlerStdErr),
	}
}

func main() {
	configFilename := flag.String("config", "", "Configuration file path")
	flag.Parse()

	var err error
	configuration, err = lstio.LoadConfiguration(*configFilename)
	if err != nil {
		message := fmt.Errorf("Error reading configuration file: %w", err)
		logger.Error(message.Error())
		return
	}
	lstio.SetConfiguration(configuration)
	lstio.SetLogger(logger)

	VerbosityLevel = configuration.Verbosity
	if VerbosityLevel > 0 {
		message := fmt.Sprintf("Reading configuration file: %s", *configFilename)
		logger.Info(message, "main")
		printConfiguration(configuration, logger.InfoLog)
	}

	source, err := lstio.OpenURL(configuration.FileIn)
	if err != nil {
		message := fmt.Errorf("Error opening input: %w", err)
		logger.Error(message.Error())
		return
	}
	defer source.Close()

	if lstSource, ok := source.(*lstio.LSTEventSource); ok && VerbosityLevel > 0 {
		message := fmt.Sprintf("Run %d, %d events in input files",
			source.ObservationID(), lstSource.NumEvents())
		logger.Info(message, "main")
	}

	var writer *lstio.Writer
	if configuration.WriteData {
		writer = lstio.NewWriter(configuration.FileOut)
	}

	start := time.Now()
	eventsRead := 0
	typeCounts := map[lstio.EventType]int{}

	for {
		event, err := source.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				message := fmt.Errorf("error reading event: %w", err)
				logger.Error(message.Error())
			}
			break
		}
		eventsRead++
		typeCounts[event.Trigger.EventType]++

		if VerbosityLevel > 1 {
			message := fmt.Sprintf("Event %d, type %s",
				event.Index.EventID, event.Trigger.EventType)
			logger.Info(message, "main")
		}

		if writer != nil {
			writer.WriteEvent(event)
		}
	}

	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error(err.Error())
		}
	}

	fmt.Println("Total events processed: ", eventsRead)
	for eventType, n := range typeCounts {
		fmt.Printf("  %s: %d\n", eventType, n)
	}
	fmt.Println("Elapsed time: ", time.Since(start))
}

func printConfiguration(config lstio.Configuration, logger *slog.Logger) {
	logger.Info(fmt.Sprintf("File in: %s", config.FileIn), "module", "config")
	logger.Info(fmt.Sprintf("File out: %s", config.FileOut), "module", "config")
	logger.Info(fmt.Sprintf("All streams: %t", config.AllStreams), "module", "config")
	logger.Info(fmt.Sprintf("Max events: %d", config.MaxEvents), "module", "config")
	logger.Info(fmt.Sprintf("Verbosity: %d", config.Verbosity), "module", "config")
	logger.Info(fmt.Sprintf("No DB: %t", config.NoDB), "module", "config")
	logger.Info(fmt.Sprintf("Host: %s", config.Host), "module", "config")
	logger.Info(fmt.Sprintf("DB name: %s", config.DBName), "module", "config")
	logger.Info(fmt.Sprintf("Apply DRS4 corrections: %t", config.ApplyDRS4Corrections), "module", "config")
	logger.Info(fmt.Sprintf("Select gain: %t", config.SelectGain), "module", "config")
	logger.Info(fmt.Sprintf("Calibration path: %s", config.CalibrationPath), "module", "config")
	logger.Info(fmt.Sprintf("DRS4 pedestal path: %s", config.DRS4PedestalPath), "module", "config")
	logger.Info(fmt.Sprintf("DRS4 time calibration path: %s", config.DRS4TimeCalibrationPath), "module", "config")
	logger.Info(fmt.Sprintf("Pedestal ids path: %s", config.PedestalIDsPath), "module", "config")
	logger.Info(fmt.Sprintf("Fill pointing info: %t", config.FillPointingInfo), "module", "config")
	logger.Info(fmt.Sprintf("Drive report path: %s", config.DriveReportPath), "module", "config")
	logger.Info(fmt.Sprintf("Write data: %t", config.WriteData), "module", "config")
	logger.Info(fmt.Sprintf("Default trigger type: %s", config.DefaultTriggerType), "module", "config")
}
