// Package logging provides structured logging for rendercast.
//
// This package wraps a zap logger with package-level convenience functions so
// that library packages can log without threading a logger through every
// constructor.
//
// # Log Levels
//
//   - Debug: advertisements, raw headers, port allocations, fetch retries
//   - Info: devices delivered, sessions started and stopped
//   - Warn: fetch exhaustion, transport hiccups
//   - Error: startup failures
//
// # Configuration
//
// Logging is silent unless a level is passed to Initialize or set through
// the RENDERCAST_LOG_LEVEL environment variable:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Output goes to stderr so that command output on stdout stays parseable.
package logging
