// displaycorrections reads a stream of GNSS correction data in RTCM version
// 2 or version 3 format and writes a readable version of every record that
// it finds: observations, antenna positions and descriptors, ephemerides
// and the State Space Representation clock, orbit and bias corrections.
// Anything in the input that's not RTCM is displayed in "od" format - hex
// values and readable text.
//
// The protocol can be given with --protocol.  By default the tool looks at
// the start of the input and works it out.
//
// Usage:
//
//	displaycorrections [flags] [file]
//
// Examples:
//
//	displaycorrections testdata.rtcm3
//	displaycorrections --protocol rtcm2 --ambiguity 1048576 - < testdata.rtcm2
//	displaycorrections --date 2020-11-13 testdata.rtcm3
//	displaycorrections --config displaycorrections.yaml --stats "@every 1m"
//
// With no file, or a file called "-", the input is taken from the standard
// input channel.  With no file but a config, the input is one of the files
// named in the config, which is typically a list of device files for a GNSS
// receiver on a serial USB connection.  The tool then runs until it's shut
// down, looking for the device again whenever the connection is lost.
//
// Some messages contain a time that rolls over, every hour for RTCM2 and
// every week for RTCM3 and SSR, and the GPS ephemerides carry a ten-bit
// week number.  These are resolved against the current time.  When
// replaying recorded data, give a time near the start of the recording with
// --date, either as yyyy-mm-dd or in RFC3339 format.
//
// --log-dir names a directory which receives a copy of the display in a
// daily log file.  At the end of each day the file is moved to the "ready"
// subdirectory.
//
// --stats takes a cron spec, for example "@every 30s", and writes a count of
// the messages of each type to the log on that schedule.  A final count is
// written at the end.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/robfig/cron"
	"github.com/spf13/pflag"

	"github.com/bsdroid/ntrip-sub004/apps/appcore"
	"github.com/bsdroid/ntrip-sub004/clock"
	"github.com/bsdroid/ntrip-sub004/config"
	"github.com/bsdroid/ntrip-sub004/dailylog"
	"github.com/bsdroid/ntrip-sub004/rtcm/handler"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[0], os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// options holds the values from the command line.
type options struct {
	configFile string
	protocol   string
	ambiguity  float64
	logLevel   string
	stats      string
	date       string
	logDir     string
	file       string
}

// parseArgs reads the command line.
func parseArgs(appName string, args []string, stderr io.Writer) (*options, error) {
	var opts options

	flags := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVarP(&opts.configFile, "config", "c", "", "Config file, JSON or YAML.")
	flags.StringVarP(&opts.protocol, "protocol", "p", "", "Input protocol: auto, rtcm2 or rtcm3.")
	flags.Float64VarP(&opts.ambiguity, "ambiguity", "a", 0, "RTCM2 carrier phase ambiguity in cycles.")
	flags.StringVarP(&opts.logLevel, "log-level", "l", "", "Log level: debug, info, warn or error.")
	flags.StringVarP(&opts.stats, "stats", "s", "", "Cron spec for the message count report, for example \"@every 1m\".")
	flags.StringVarP(&opts.date, "date", "d", "", "Time near the start of the input, yyyy-mm-dd or RFC3339.")
	flags.StringVar(&opts.logDir, "log-dir", "", "Directory for daily log files of the display.")
	flags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [flags] [file]\n", appName)
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	switch flags.NArg() {
	case 0:
	case 1:
		opts.file = flags.Arg(0)
	default:
		flags.Usage()
		return nil, errors.New("expected at most one file")
	}

	return &opts, nil
}

// getConfig gets the config from the file, if there is one, and applies the
// command line settings over it.
func getConfig(opts *options, logger *slog.Logger) (*config.Config, error) {
	conf := config.Default(logger)
	if opts.configFile != "" {
		var err error
		conf, err = config.GetConfigFromFile(opts.configFile, logger)
		if err != nil {
			return nil, err
		}
	}

	if opts.protocol != "" {
		conf.Protocol = opts.protocol
	}
	if opts.ambiguity != 0 {
		conf.AmbiguityCycles = opts.ambiguity
	}
	if opts.logLevel != "" {
		conf.LogLevel = opts.logLevel
	}
	if opts.stats != "" {
		conf.StatsSchedule = opts.stats
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	return conf, nil
}

// getTime gets a time from a string in one of two formats, "yyyy-mm-dd" or
// RFC3339, for example "2020-11-13T09:10:11Z".
func getTime(timeStr string) (time.Time, error) {
	const dateLayout = "2006-01-02"

	if len(dateLayout) == len(timeStr) {
		return time.Parse(dateLayout, timeStr)
	}
	return time.Parse(time.RFC3339, timeStr)
}

// newLogger creates a logger which writes to the writer.
func newLogger(writer io.Writer, level slog.Level) *slog.Logger {
	logHandler := log.NewWithOptions(writer, log.Options{
		Level:           log.Level(level),
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	return slog.New(logHandler)
}

func run(ctx context.Context, appName string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseArgs(appName, args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "%s: %v\n", appName, err)
		return 2
	}

	// The config tells us the log level, so log at info until we have it.
	logger := newLogger(stderr, slog.LevelInfo)

	conf, err := getConfig(opts, logger)
	if err != nil {
		logger.Error("cannot get the config", "error", err)
		return 1
	}
	logger = newLogger(stderr, conf.Level())

	var c clock.Clock = clock.NewSystemClock()
	if opts.date != "" {
		startTime, err := getTime(opts.date)
		if err != nil {
			logger.Error("bad --date", "error", err)
			return 1
		}
		c = clock.NewStoppedClock(startTime)
	}

	messageHandler := handler.New(conf.HandlerOptions(), c, logger, conf.Level())

	if conf.StatsSchedule != "" {
		cronjob := cron.New()
		err := cronjob.AddFunc(conf.StatsSchedule, func() {
			logger.Info("message counts\n" + messageHandler.CountsReport())
		})
		if err != nil {
			logger.Error("bad stats schedule", "schedule", conf.StatsSchedule, "error", err)
			return 1
		}
		cronjob.Start()
		defer cronjob.Stop()
	}

	messageChan := make(chan handler.Message, 100)
	displayDone := make(chan error, 1)
	go func() {
		displayDone <- DisplayMessages(messageChan, stdout)
	}()
	channels := []chan handler.Message{messageChan}

	// The daily log gets a copy of the display on its own channel.
	var logChan chan handler.Message
	logDone := make(chan error, 1)
	if opts.logDir != "" {
		logWriter, err := dailylog.New(opts.logDir, "corrections", logger)
		if err != nil {
			logger.Error("cannot create the daily log", "error", err)
			close(messageChan)
			<-displayDone
			return 1
		}
		defer logWriter.Close()
		logChan = make(chan handler.Message, 100)
		go func() {
			logDone <- DisplayMessages(logChan, logWriter)
		}()
		channels = append(channels, logChan)
	} else {
		logDone <- nil
	}

	appCore := appcore.New(conf, messageHandler, channels, logger)

	if opts.file != "" || len(conf.Filenames) == 0 {
		// Read the file once and stop at the end.
		reader, err := openFile(opts.file, stdin)
		if err != nil {
			logger.Error("cannot open the input", "file", opts.file, "error", err)
			closeChannels(channels)
			<-displayDone
			<-logDone
			return 1
		}
		defer reader.Close()
		err = appCore.HandleMessagesUntilEOF(ctx, bufio.NewReader(reader))
		if err != nil && !errors.Is(err, io.EOF) {
			logger.Error("reading the input", "error", err)
		}
	} else {
		err = appCore.HandleMessages(ctx)
		if err != nil && ctx.Err() == nil {
			logger.Error("reading the input", "error", err)
		}
	}

	closeChannels(channels)
	if err := <-logDone; err != nil {
		logger.Error("writing the daily log", "error", err)
	}
	if err := <-displayDone; err != nil {
		logger.Error("writing the output", "error", err)
		return 1
	}

	if conf.StatsSchedule != "" {
		logger.Info("message counts\n" + messageHandler.CountsReport())
	}

	return 0
}

// DisplayMessages receives messages from the given channel, produces a
// readable display of each and writes them to the writer.  It runs until
// the channel is closed.  After a write error it keeps draining the channel
// so that the sender is not blocked.
func DisplayMessages(messageChan chan handler.Message, writer io.Writer) error {
	var writeError error
	for message := range messageChan {
		if writeError != nil {
			continue
		}
		_, writeError = io.WriteString(writer, message.String()+"\n")
	}
	return writeError
}

func closeChannels(channels []chan handler.Message) {
	for _, ch := range channels {
		close(ch)
	}
}

// openFile opens the given file.  If the name is "-" or empty it returns
// the standard input.
func openFile(fileName string, stdin io.Reader) (io.ReadCloser, error) {
	if fileName == "" || fileName == "-" {
		return io.NopCloser(stdin), nil
	}

	return os.Open(fileName)
}
