// Package log provides the file-backed loggers shared by every command.
// Output goes to a log file under the user config directory so stdout
// stays reserved for command output.
package log

import (
	"io"
	stdlog "log"
	"os"
	"path/filepath"

	"github.com/kastheco/ito/internal/sentry"
)

const defaultFlags = stdlog.LstdFlags | stdlog.Lshortfile

// The loggers default to io.Discard so packages can log before (or
// without) Initialize; Initialize rewires them to the log file.
var (
	InfoLog    = stdlog.New(io.Discard, "INFO: ", defaultFlags)
	WarningLog = stdlog.New(io.Discard, "WARNING: ", defaultFlags)
	ErrorLog   = stdlog.New(io.Discard, "ERROR: ", defaultFlags)
)

var logFile *os.File

// Initialize opens the log file and wires up the package loggers. When
// telemetry is enabled, warnings and errors are also forwarded to sentry
// as breadcrumbs and events.
//
// Initialize never fails: if the log file cannot be opened, loggers write
// to io.Discard.
func Initialize(telemetry ...bool) {
	var out io.Writer = io.Discard
	if dir, err := logDir(); err == nil {
		if f, err := os.OpenFile(filepath.Join(dir, "ito.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			logFile = f
			out = f
		}
	}

	warnOut, errOut := out, out
	if len(telemetry) > 0 && telemetry[0] {
		warnOut = sentry.NewWriter(out, sentry.LevelWarning)
		errOut = sentry.NewWriter(out, sentry.LevelError)
	}

	InfoLog = stdlog.New(out, "INFO: ", defaultFlags)
	WarningLog = stdlog.New(warnOut, "WARNING: ", defaultFlags)
	ErrorLog = stdlog.New(errOut, "ERROR: ", defaultFlags)
}

// Close closes the underlying log file. Safe to call when Initialize
// fell back to io.Discard.
func Close() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

func logDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".config", "ito")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
