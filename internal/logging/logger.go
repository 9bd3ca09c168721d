// Package logging builds the charm loggers used by the command line tools.
// Its level, prefix and destination come from the environment.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/charmbracelet/log"
)

const filePattern = "stackframe-*-debug.log"

// LoggerCloser is a logger that owns its writer.
type LoggerCloser struct {
	*log.Logger
	closer io.Closer
	// Path is the log file, empty when logging to stderr.
	Path string
}

// Close closes the underlying writer if it's closeable
func (lc *LoggerCloser) Close() error {
	if lc.closer != nil {
		return lc.closer.Close()
	}
	return nil
}

// ParseLevel maps a STACKFRAME_LOG_LEVEL value to a level, defaulting to
// info.
func ParseLevel(s string) log.Level {
	switch s {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	}
	return log.InfoLevel
}

// NewLoggerWithWriter creates a logger writing to w.
func NewLoggerWithWriter(w io.Writer) *LoggerCloser {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
	lg.SetLevel(ParseLevel(os.Getenv("STACKFRAME_LOG_LEVEL")))

	prefix := os.Getenv("STACKFRAME_LOG_PREFIX")
	if prefix == "" {
		prefix = "stackframe "
	}

	var closer io.Closer
	if c, ok := w.(io.Closer); ok {
		closer = c
	}
	return &LoggerCloser{
		Logger: lg.WithPrefix(prefix),
		closer: closer,
	}
}

// NewLogger creates a logger configured by the environment:
//
//	STACKFRAME_LOG_LEVEL    debug, info, warn or error (default info)
//	STACKFRAME_LOG_PREFIX   message prefix (default "stackframe ")
//	STACKFRAME_LOG_TO_FILE  "1" logs to a timestamped file in the working
//	                        directory instead of stderr
func NewLogger() *LoggerCloser {
	if os.Getenv("STACKFRAME_LOG_TO_FILE") != "1" {
		return NewLoggerWithWriter(os.Stderr)
	}
	name := fmt.Sprintf("stackframe-%s-debug.log", time.Now().Format("20060102-150405"))
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return NewLoggerWithWriter(os.Stderr)
	}
	lc := NewLoggerWithWriter(f)
	lc.Path = name
	return lc
}

// IsDebug returns true if debug logging is enabled
func IsDebug() bool {
	return os.Getenv("STACKFRAME_LOG_LEVEL") == "debug"
}

// LatestFile returns the newest log file NewLogger wrote in dir.
func LatestFile(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, filePattern))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no log files in %s", dir)
	}
	// The timestamp in the name sorts chronologically.
	slices.Sort(matches)
	return matches[len(matches)-1], nil
}
