//go:build !stdlog && !nolog
// +build !stdlog,!nolog

package build

import "os"

// LoggingType is a log type that writes to both stderr and the log rotator, if
// present.
const LoggingType = LogTypeDefault

// Write writes the byte slice to both stderr and the log rotator, if present.
func (w *LogWriter) Write(b []byte) (int, error) {
	os.Stderr.Write(b)
	if w.Rotator != nil {
		w.Rotator.Write(b)
	}
	return len(b), nil
}
