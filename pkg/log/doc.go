// Package log provides the provisioning event journal.
//
// The journal is separate from operational logging (slog). It records a
// machine-readable trace of what the provisioning subsystem did on each boot:
// state transitions, handled requests, storage writes, radio operations and
// errors. Each boot is tagged with a BootID so traces from consecutive soft
// restarts can be told apart.
//
// # Basic Usage
//
//	// For development: journal to console via slog
//	cfg.EventLogger = log.NewSlogAdapter(slog.Default())
//
//	// On a device: append to a CBOR file
//	cfg.EventLogger, _ = log.NewFileLogger("/var/lib/wificfg/events.wlog")
//
//	// Both
//	cfg.EventLogger = log.NewMultiLogger(console, file)
//
// # File Format
//
// Journal files are a stream of CBOR-encoded events with integer keys. The
// wificfg-log tool views, filters and summarizes them.
package log
