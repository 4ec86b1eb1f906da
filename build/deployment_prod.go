//go:build !dev
// +build !dev

package build

// Deployment specifies a production build.
const Deployment = Production

// LogLevel is the level sub-loggers start at when they aren't handed a
// logger by the caller. Production builds disable them instead.
const LogLevel = "off"
