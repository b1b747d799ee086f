package config

// The config package reads the configuration of the correction decoding
// tools from a JSON or YAML file.  The format is chosen by the file name
// extension: ".yaml" or ".yml" for YAML, anything else for JSON.
//
// An example config file:
//
//	{
//		"input": ["/dev/ttyACM0", "/dev/ttyACM1"],
//		"protocol": "auto",
//		"ambiguityCycles": 8388608,
//		"majorityVoteFix": true,
//		"roundEpoch": false,
//		"glonassLeapSeconds": 18,
//		"ephemerisDepth": 2,
//		"logLevel": "info",
//		"statsSchedule": "@every 1m",
//		"stopOnEOF": false,
//		"timeout": 5,
//		"sleeptime": 2
//	}
//
// The input is a list of files, any one of which may be the source of the
// data.  A GNSS device on a serial USB connection appears as one of a set
// of device files and which one depends on how many times the device has
// been reconnected since the machine booted, so the tools try each in turn.
//
// The timeout controls how long to keep reading after hitting end of file,
// which for a device just means that no data has arrived yet.  The sleep
// time is the pause between read attempts and between attempts to open the
// input.

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/bsdroid/ntrip-sub004/rtcm/ephemeris"
	"github.com/bsdroid/ntrip-sub004/rtcm/handler"
	"github.com/bsdroid/ntrip-sub004/rtcm/rtcm2"
	"github.com/bsdroid/ntrip-sub004/rtcm/utils"
)

// Config contains the values from the config file.
type Config struct {
	Filenames []string `json:"input" yaml:"input"`

	// Protocol is "auto", "rtcm2" or "rtcm3".
	Protocol string `json:"protocol" yaml:"protocol"`

	// AmbiguityCycles is the RTCM2 carrier phase ambiguity.
	AmbiguityCycles float64 `json:"ambiguityCycles" yaml:"ambiguityCycles"`
	// MajorityVoteFix sets the constellation of an RTCM2 observation
	// message from the majority of its satellites.
	MajorityVoteFix bool `json:"majorityVoteFix" yaml:"majorityVoteFix"`
	// RoundEpoch rounds RTCM2 epochs to the nearest 100 ms.
	RoundEpoch bool `json:"roundEpoch" yaml:"roundEpoch"`

	// GlonassLeapSeconds is the GPS-UTC offset, used to convert GLONASS
	// times and to read the clock.
	GlonassLeapSeconds int `json:"glonassLeapSeconds" yaml:"glonassLeapSeconds"`

	EphemerisDepth int `json:"ephemerisDepth" yaml:"ephemerisDepth"`

	// LogLevel is "debug", "info", "warn" or "error".
	LogLevel string `json:"logLevel" yaml:"logLevel"`

	// StatsSchedule is a cron spec for the message count report, for
	// example "@every 1m".  Empty means no report.
	StatsSchedule string `json:"statsSchedule" yaml:"statsSchedule"`

	// StopOnEOF says to stop when the input is exhausted rather than
	// looking for it again.
	StopOnEOF bool `json:"stopOnEOF" yaml:"stopOnEOF"`

	// LostInputConnectionTimeout is the time in seconds to keep retrying
	// after end of file.
	LostInputConnectionTimeout uint `json:"timeout" yaml:"timeout"`
	// LostInputConnectionSleepTime is the time in seconds to sleep between
	// read attempts and connection attempts.
	LostInputConnectionSleepTime uint `json:"sleeptime" yaml:"sleeptime"`

	// logging indicates that the search for the input should be logged.
	// It's turned off after the first success to avoid filling the log.
	logging bool
	logger  *slog.Logger
}

// GetConfigFromFile reads the config from the named file.
func GetConfigFromFile(configFileName string, logger *slog.Logger) (*Config, error) {
	reader, err := os.Open(configFileName)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open the config file")
	}
	defer reader.Close()

	ext := strings.ToLower(filepath.Ext(configFileName))
	return getConfig(reader, ext == ".yaml" || ext == ".yml", logger)
}

// Default returns the config to use when there is no config file.
func Default(logger *slog.Logger) *Config {
	var config Config
	config.applyDefaults(logger)
	return &config
}

// getConfig reads from the given source and returns the config.
func getConfig(source io.Reader, isYAML bool, logger *slog.Logger) (*Config, error) {
	data, err := io.ReadAll(source)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read the config file")
	}

	var config Config
	if isYAML {
		err = yaml.Unmarshal(data, &config)
	} else {
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, errors.Wrap(err, "cannot parse the config file")
	}

	config.applyDefaults(logger)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyDefaults sets the fields that the file left empty.
func (config *Config) applyDefaults(logger *slog.Logger) {
	if config.Protocol == "" {
		config.Protocol = handler.ProtocolAuto
	}
	if config.AmbiguityCycles == 0 {
		config.AmbiguityCycles = rtcm2.DefaultAmbiguityCycles
	}
	if config.GlonassLeapSeconds == 0 {
		config.GlonassLeapSeconds = utils.GPSLeapSeconds
	}
	if config.EphemerisDepth == 0 {
		config.EphemerisDepth = ephemeris.DefaultDepth
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.LostInputConnectionSleepTime == 0 {
		config.LostInputConnectionSleepTime = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	config.logger = logger
	config.logging = true
}

// Validate checks the values.
func (config *Config) Validate() error {
	if _, err := handler.ParseProtocol(config.Protocol); err != nil {
		return err
	}
	if _, err := ParseLogLevel(config.LogLevel); err != nil {
		return err
	}
	if config.AmbiguityCycles < 0 {
		return errors.Errorf("ambiguityCycles must be positive, got %g", config.AmbiguityCycles)
	}
	if config.EphemerisDepth < 0 {
		return errors.Errorf("ephemerisDepth must be positive, got %d", config.EphemerisDepth)
	}
	return nil
}

// ParseLogLevel converts a level name to a slog level.
func ParseLogLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, errors.Errorf("unknown log level %q", name)
	}
	return level, nil
}

// Level returns the log level.  It assumes that the config is valid.
func (config *Config) Level() slog.Level {
	level, _ := ParseLogLevel(config.LogLevel)
	return level
}

// HandlerOptions returns the options for the message handler.
func (config *Config) HandlerOptions() handler.Options {
	options := handler.DefaultOptions()
	options.Protocol = config.Protocol
	options.RTCM2.Obs.AmbiguityCycles = config.AmbiguityCycles
	options.RTCM2.Obs.MajorityVoteFix = config.MajorityVoteFix
	options.RTCM2.Obs.RoundEpoch = config.RoundEpoch
	options.RTCM2.LeapSeconds = config.GlonassLeapSeconds
	options.RTCM3.LeapSeconds = config.GlonassLeapSeconds
	options.EphemerisDepth = config.EphemerisDepth
	return options
}

// WaitTimeOnEOF returns the pause between reads after end of file.
func (config *Config) WaitTimeOnEOF() time.Duration {
	return time.Duration(config.LostInputConnectionSleepTime) * time.Second
}

// TimeoutOnEOF returns the time to keep retrying after end of file.
func (config *Config) TimeoutOnEOF() time.Duration {
	return time.Duration(config.LostInputConnectionTimeout) * time.Second
}

// WaitAndConnectToInput tries repeatedly to open one of the input files,
// until it succeeds or the context is cancelled.
func (config *Config) WaitAndConnectToInput(ctx context.Context) (io.ReadCloser, error) {
	if len(config.Filenames) == 0 {
		return nil, errors.New("no input files in the config")
	}
	for {
		file := config.getInputFile()
		if file != nil {
			return file, nil
		}
		if config.logging {
			config.logger.Info("waitAndConnectToInput: failed to connect to the input - retrying")
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "waiting for input")
		case <-time.After(config.WaitTimeOnEOF()):
		}
	}
}

// getInputFile returns the first file in the list that it can open for
// reading, or nil if it can't open any of them.
func (config *Config) getInputFile() *os.File {
	for _, name := range config.Filenames {
		file, err := os.Open(name)
		if err == nil {
			if config.logging {
				config.logger.Info("getInputFile: found input", "file", name)
				config.logging = false
			}
			return file
		}
	}

	return nil
}
