package common

import (
	"log/slog"
	"os"
)

// Version is the service version string, overridable at build time with
// -ldflags "-X github.com/wuxxin/serve-once/common.Version=...".
var Version = "dev"

// PackageName tags log output and identifies the service.
const PackageName = "serve-once"

// LoggingOpts configures the process-wide structured logger.
type LoggingOpts struct {
	// Debug enables debug-level messages (per-request admission decisions).
	Debug bool

	// JSON switches output from human-readable text to JSON.
	JSON bool

	// Service is added as a 'service' attribute to every message.
	Service string

	// Version is added as a 'version' attribute to every message.
	Version string
}

// SetupLogger creates a slog logger writing to stderr. Standard output is
// never used for diagnostics; it is reserved for the request-body echo.
func SetupLogger(opts *LoggingOpts) *slog.Logger {
	logLevel := slog.LevelInfo
	if opts.Debug {
		logLevel = slog.LevelDebug
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	}

	log := slog.New(handler)
	if opts.Service != "" {
		log = log.With("service", opts.Service)
	}
	if opts.Version != "" {
		log = log.With("version", opts.Version)
	}
	return log
}
