// Package dailylog writes the decoded records to a daily log file with a
// datestamped name, for example "corrections.20230601.log".  Each file
// contains no more than one day's worth of records.
//
// The records arrive in bursts, typically one every second, and a burst that
// arrives just after midnight could contain records from yesterday and today.
// In any case, the host machine's clock may have drifted a little.  To avoid
// these problems and to give time for the log file to be rolled over, the
// Writer avoids logging around midnight.
//
// Calls to Write within one minute before or after midnight UTC are ignored.
// A cron job runs at one minute before midnight that closes the day's log
// and moves it into the "ready" subdirectory to signal that it's ready for
// processing.  The first call of Write after 00:01 creates a new log file
// for that day.
package dailylog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron"

	"github.com/bsdroid/ntrip-sub004/clock"
)

// ReadyDirectory is the subdirectory of the log directory that receives
// each day's log when it's complete.
const ReadyDirectory = "ready"

// endOfDaySpec is the cron spec of the end of day job, 23:59:00 UTC.
const endOfDaySpec = "0 59 23 * * *"

// Writer satisfies the io.Writer interface and writes data to the daily log
// file.
type Writer struct {
	logMutex        sync.Mutex
	clock           clock.Clock
	logger          *slog.Logger
	directory       string
	prefix          string
	currentYYYYMMDD string   // The date of the current log file.
	logFile         *os.File // The current log file (nil if not logging).
	cronjob         *cron.Cron
}

// This is a compile-time check that Writer implements the io.Writer interface.
var _ io.Writer = (*Writer)(nil)

// New creates a Writer which logs to files in the given directory, with
// names starting with the prefix, and starts the end of day job.
func New(directory, prefix string, logger *slog.Logger) (*Writer, error) {
	writer := newWriterWithClock(clock.NewSystemClock(), directory, prefix, logger)

	cr := cron.NewWithLocation(time.UTC)
	if err := cr.AddFunc(endOfDaySpec, writer.endOfDay); err != nil {
		return nil, errors.Wrap(err, "scheduling the end of day job")
	}
	writer.cronjob = cr
	cr.Start()

	return writer, nil
}

// newWriterWithClock creates a Writer with a supplied clock and no cron
// job.
func newWriterWithClock(c clock.Clock, directory, prefix string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{clock: c, logger: logger, directory: directory, prefix: prefix}
}

// Write writes the buffer to the daily log file, creating the file at the
// start of each day.
func (lw *Writer) Write(buffer []byte) (int, error) {

	// Avoid a race with endOfDay.
	lw.logMutex.Lock()
	defer lw.logMutex.Unlock()

	if !lw.loggingAllowed() {
		// On the first call after end of day, close the log file.
		lw.closeLog()
		// Nothing is written but the caller shouldn't see an error.
		return len(buffer), nil
	}

	yyyymmdd := lw.todayYYYYMMDD()
	if lw.logFile == nil || yyyymmdd != lw.currentYYYYMMDD {
		// We have just started up or the day has rolled over without the
		// end of day job running.
		lw.closeLog()
		file, err := openFile(lw.Filename(yyyymmdd))
		if err != nil {
			return 0, err
		}
		lw.logger.Info("dailylog: start of day", "file", file.Name())

		lw.currentYYYYMMDD = yyyymmdd
		lw.logFile = file
	}

	return lw.logFile.Write(buffer)
}

// Close stops the end of day job and closes the log file, leaving it in
// place.
func (lw *Writer) Close() error {
	if lw.cronjob != nil {
		lw.cronjob.Stop()
	}

	lw.logMutex.Lock()
	defer lw.logMutex.Unlock()

	if lw.logFile == nil {
		return nil
	}
	err := lw.logFile.Close()
	lw.logFile = nil
	return errors.Wrap(err, "closing the log file")
}

// Filename returns the name of the log file for the given day.
func (lw *Writer) Filename(yyyymmdd string) string {
	return filepath.Join(lw.directory, lw.prefix+"."+yyyymmdd+".log")
}

// todayYYYYMMDD returns today's date in the UTC timezone in yyyymmdd format.
func (lw *Writer) todayYYYYMMDD() string {
	nowUTC := lw.clock.Now().In(time.UTC)
	return fmt.Sprintf("%04d%02d%02d", nowUTC.Year(), nowUTC.Month(), nowUTC.Day())
}

// loggingAllowed returns true if logging should be enabled.  Logging is
// enabled all day except for one minute either side of midnight UTC.
func (lw *Writer) loggingAllowed() bool {
	nowUTC := lw.clock.Now().In(time.UTC)
	if nowUTC.Hour() == 0 && nowUTC.Minute() == 0 {
		return false
	}
	if nowUTC.Hour() == 23 && nowUTC.Minute() == 59 {
		return false
	}
	return true
}

// endOfDay saves the day's log.  It's run soon after logging is disabled at
// the end of the day.  If it's delayed for some reason the mutex prevents a
// race with Write and in the worst case the log will contain records from
// more than one day.
func (lw *Writer) endOfDay() {
	lw.logMutex.Lock()
	defer lw.logMutex.Unlock()

	if lw.loggingAllowed() {
		lw.logger.Warn("dailylog: endOfDay called when logging is allowed")
		return
	}

	lw.closeLog()
}

// closeLog closes any open log file and moves it to the ready directory.
// It doesn't take the mutex, so it should only be called by a method which
// does.
func (lw *Writer) closeLog() {
	if lw.logFile == nil {
		return
	}

	name := lw.logFile.Name()
	if err := lw.logFile.Close(); err != nil {
		lw.logger.Warn("dailylog: error while closing the log file - continuing",
			"file", name, "error", err)
	}
	lw.logFile = nil

	if err := saveLog(name); err != nil {
		lw.logger.Error("dailylog: cannot save the log", "file", name, "error", err)
	}
}

// saveLog moves the named log file into the ready directory alongside it.
func saveLog(logFilename string) error {
	readyDir := filepath.Join(filepath.Dir(logFilename), ReadyDirectory)
	if err := os.MkdirAll(readyDir, 0o755); err != nil {
		return errors.Wrapf(err, "creating directory %q", readyDir)
	}
	target := filepath.Join(readyDir, filepath.Base(logFilename))
	return errors.Wrap(os.Rename(logFilename, target), "moving the log file")
}

// openFile either creates and opens the file or, if it already exists,
// opens it in append mode.
func openFile(name string) (*os.File, error) {
	file, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "opening the log file")
	}
	return file, nil
}
