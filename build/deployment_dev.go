//go:build dev
// +build dev

package build

// Deployment specifies a development build.
const Deployment = Development

// LogLevel is the level used by the stdout sub-loggers of unit tests.
const LogLevel = "debug"
